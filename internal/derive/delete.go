package derive

import (
	"context"
	"errors"
	"fmt"

	"thirdcoast.systems/sonicstream/internal/asset"
	"thirdcoast.systems/sonicstream/internal/faults"
	"thirdcoast.systems/sonicstream/pkg/ytdlp"
)

// Delete removes an asset's artifacts, its record and every group reference
// to it. Artifacts are located by convention as well as from the record, so
// a retry after a partial delete converges. Artifacts another record still
// uses (a shared thumbnail, or the base-name keys of a same-named asset with a
// different extension) are left in place. An unknown name only loses its
// audio object and group references, then is reported as AssetNotFound.
func (p *Pipeline) Delete(ctx context.Context, name string) (res *DeleteResult, err error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	run := p.begin("delete", name)
	defer run.finish(&err)

	if err := p.lock(ctx, run, name); err != nil {
		return nil, err
	}

	rec, err := p.getRecord(ctx, name)
	if err != nil {
		if !errors.Is(err, faults.ErrAssetNotFound) {
			return nil, err
		}
		run.transition(StatePublishing)
		if err := p.deleteObjects(ctx, run, []string{asset.AudioKey(name)}, nil); err != nil {
			return nil, err
		}
		run.transition(StateRecordingMetadata)
		if _, err := p.removeGroupRefs(ctx, name); err != nil {
			return nil, err
		}
		return nil, faults.Wrap(faults.ErrAssetNotFound, "derive", "delete", name, nil)
	}

	others, err := retryValue(ctx, p, "record.list", func(ctx context.Context) ([]*asset.Record, error) {
		return p.deps.Records.List(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("derive: list records: %w", err)
	}
	keys, folders := deletionTargets(rec, others)

	run.transition(StatePublishing)
	if err := p.deleteObjects(ctx, run, keys, folders); err != nil {
		return nil, err
	}

	run.transition(StateRecordingMetadata)
	err = p.retry(ctx, "record.delete", func(ctx context.Context) error {
		return p.deps.Records.Delete(ctx, name)
	})
	if err != nil && !errors.Is(err, asset.ErrNotFound) {
		return nil, fmt.Errorf("derive: delete record: %w", err)
	}
	groups, err := p.removeGroupRefs(ctx, name)
	if err != nil {
		return nil, err
	}

	run.log().Info("derive: asset deleted", "groups_updated", groups)
	return &DeleteResult{Name: name, GroupsUpdated: groups}, nil
}

// deletionTargets lists the object keys and stem folders owned by rec alone.
func deletionTargets(rec *asset.Record, others []*asset.Record) ([]string, []string) {
	base := asset.BaseName(rec.Name)

	images := map[string]bool{}
	folders := map[string]bool{}
	baseShared := false
	for _, o := range others {
		if o.Name == rec.Name {
			continue
		}
		if o.ImageURL != "" {
			images[o.ImageURL] = true
		}
		if o.StemFolder != "" {
			folders[o.StemFolder] = true
		}
		if asset.BaseName(o.Name) == base {
			baseShared = true
		}
	}

	keys := []string{asset.AudioKey(rec.Name)}
	var thumbs, stemFolders []string
	if !baseShared {
		keys = append(keys, asset.ChordsKey(rec.Name))
		for _, ext := range ytdlp.ThumbnailExtensions {
			thumbs = append(thumbs, base+ext)
		}
		stemFolders = append(stemFolders, base)
	}
	if rec.ImageURL != "" {
		thumbs = append(thumbs, rec.ImageURL)
	}
	if rec.StemFolder != "" {
		stemFolders = append(stemFolders, rec.StemFolder)
	}

	for _, img := range asset.Dedupe(thumbs) {
		if !images[img] {
			keys = append(keys, asset.ThumbnailKey(img))
		}
	}
	var keep []string
	for _, f := range asset.Dedupe(stemFolders) {
		if !folders[f] {
			keep = append(keep, f)
		}
	}
	return keys, keep
}

func (p *Pipeline) deleteObjects(ctx context.Context, run *Run, keys, folders []string) error {
	for _, key := range keys {
		if err := p.retry(ctx, "object.delete", func(ctx context.Context) error {
			return p.deps.Objects.Delete(ctx, key)
		}); err != nil {
			return fmt.Errorf("derive: delete %s: %w", key, err)
		}
	}
	for _, folder := range folders {
		n, err := retryValue(ctx, p, "object.delete_prefix", func(ctx context.Context) (int, error) {
			return p.deps.Objects.DeletePrefix(ctx, asset.StemPrefix(folder))
		})
		if err != nil {
			return fmt.Errorf("derive: delete stems %s: %w", folder, err)
		}
		if n > 0 {
			run.log().Debug("derive: stems removed", "folder", folder, "count", n)
		}
	}
	return nil
}

func (p *Pipeline) removeGroupRefs(ctx context.Context, name string) (int, error) {
	n, err := retryValue(ctx, p, "group.remove_ref", func(ctx context.Context) (int, error) {
		return p.deps.Groups.RemoveAssetReference(ctx, name)
	})
	if err != nil {
		return 0, fmt.Errorf("derive: remove group references: %w", err)
	}
	return n, nil
}
