package derive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"thirdcoast.systems/sonicstream/internal/asset"
	"thirdcoast.systems/sonicstream/internal/assetname"
	"thirdcoast.systems/sonicstream/internal/faults"
	"thirdcoast.systems/sonicstream/internal/sourceurl"
)

// audioExt is the container every ingested asset is converted to.
const audioExt = ".mp3"

// Ingest downloads a remote source, publishes its audio and thumbnail under a
// fresh collision-free name and records it.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (res *IngestResult, err error) {
	if err := p.check(req); err != nil {
		return nil, err
	}
	if p.deps.Fetcher == nil {
		return nil, errors.New("derive: no fetcher configured")
	}
	src, err := sourceurl.Normalize(req.URL)
	if err != nil {
		return nil, err
	}

	run := p.begin("ingest", "")
	defer run.finish(&err)

	h, err := run.stage(p.deps.Staging)
	if err != nil {
		return nil, err
	}

	run.transition(StateInvoking)
	info, err := p.deps.Fetcher.GetInfo(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("derive: fetch metadata: %w", err)
	}

	base := assetname.BaseName(info.Title, p.opts.Now())
	name, err := p.reserve(ctx, run, base, audioExt)
	if err != nil {
		return nil, err
	}

	dl, err := p.deps.Fetcher.DownloadAudio(ctx, src.URL, h.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("derive: download media: %w", err)
	}

	run.transition(StateValidating)
	if err := requireNonEmpty(dl.AudioPath); err != nil {
		return nil, err
	}

	uploads := []upload{{key: asset.AudioKey(name), path: dl.AudioPath}}
	var image string
	if dl.ThumbnailPath != "" {
		if requireNonEmpty(dl.ThumbnailPath) == nil {
			image = asset.BaseName(name) + strings.ToLower(filepath.Ext(dl.ThumbnailPath))
			uploads = append(uploads, upload{key: asset.ThumbnailKey(image), path: dl.ThumbnailPath})
		} else {
			run.log().Warn("derive: ignoring empty thumbnail", "path", dl.ThumbnailPath)
		}
	}

	run.transition(StatePublishing)
	published, err := p.publish(ctx, run, uploads)
	if err != nil {
		return nil, err
	}

	run.transition(StateRecordingMetadata)
	now := p.opts.Now()
	rec := &asset.Record{
		Name:      name,
		Path:      asset.AudioKey(name),
		ImageURL:  image,
		Stems:     []string{},
		SourceURL: src.URL,
		Title:     info.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.createRecord(ctx, rec); err != nil {
		p.discard(ctx, run, published...)
		return nil, err
	}

	res = &IngestResult{Record: rec}
	if u, err := p.signedURL(ctx, rec.Path); err != nil {
		run.log().Warn("derive: failed to sign download url", "error", err)
	} else {
		res.DownloadURL = u
	}
	return res, nil
}

// createRecord writes rec only if its name is still free.
func (p *Pipeline) createRecord(ctx context.Context, rec *asset.Record) error {
	err := p.retry(ctx, "record.create", func(ctx context.Context) error {
		return p.deps.Records.Create(ctx, rec)
	})
	if errors.Is(err, asset.ErrExists) {
		return faults.Wrap(faults.ErrPublishFailed, "derive", "record", rec.Name+" was created concurrently", err)
	}
	if err != nil {
		return faults.Wrap(faults.ErrPublishFailed, "derive", "record", rec.Name, err)
	}
	return nil
}

func requireNonEmpty(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return faults.Wrap(faults.ErrOutputMissing, "derive", "validate", path, err)
	}
	if !fi.Mode().IsRegular() || fi.Size() == 0 {
		return faults.Wrap(faults.ErrOutputMissing, "derive", "validate", path+" is empty", nil)
	}
	return nil
}
