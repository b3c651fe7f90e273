package derive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"thirdcoast.systems/sonicstream/internal/asset"
	"thirdcoast.systems/sonicstream/internal/faults"
	"thirdcoast.systems/sonicstream/pkg/spleeter"
)

// SeparateStems splits an asset into stems, publishes them under
// stems/<base>/ and marks the record as having stems.
func (p *Pipeline) SeparateStems(ctx context.Context, req SeparateRequest) (res *SeparateResult, err error) {
	if err := p.check(req); err != nil {
		return nil, err
	}
	if err := checkName(req.Name); err != nil {
		return nil, err
	}
	model, err := spleeter.ValidateModel(req.Model)
	if err != nil {
		return nil, err
	}
	if p.deps.Separator == nil {
		return nil, errors.New("derive: no separator configured")
	}

	run := p.begin("separate", req.Name)
	defer run.finish(&err)

	if err := p.lock(ctx, run, req.Name); err != nil {
		return nil, err
	}
	rec, err := p.getRecord(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	h, err := run.stage(p.deps.Staging)
	if err != nil {
		return nil, err
	}
	input, err := p.fetchPrimary(ctx, h, req.Name)
	if err != nil {
		return nil, err
	}

	run.transition(StateInvoking)
	out, err := p.deps.Separator.Separate(ctx, input, h.OutputDir, model)
	if err != nil {
		return nil, fmt.Errorf("derive: separate: %w", err)
	}

	run.transition(StateValidating)
	if len(out.Stems) == 0 {
		return nil, faults.Wrap(faults.ErrNoStemsProduced, "derive", "separate", req.Name, nil)
	}
	for _, path := range out.Paths() {
		if err := requireNonEmpty(path); err != nil {
			return nil, err
		}
	}

	run.transition(StatePublishing)
	folder := asset.BaseName(req.Name)
	if err := p.publishStems(ctx, run, folder, out, rec); err != nil {
		return nil, err
	}

	run.transition(StateRecordingMetadata)
	hasStems := true
	updated, err := retryValue(ctx, p, "record.update", func(ctx context.Context) (*asset.Record, error) {
		return p.deps.Records.Update(ctx, req.Name, asset.Patch{
			HasStems:   &hasStems,
			Stems:      out.Stems,
			StemFolder: &folder,
		})
	})
	if err != nil {
		return nil, faults.Wrap(faults.ErrPublishFailed, "derive", "record", req.Name, err)
	}

	run.log().Info("derive: stems published", "model", model, "stems", len(out.Stems), "folder", folder)
	return &SeparateResult{Record: updated, Folder: folder, Stems: out.Stems}, nil
}

// publishStems uploads every stem with bounded parallelism. On failure it
// removes what this run wrote: the whole folder when the asset had no stems
// before, otherwise only the keys of stems the record does not already list.
// Overwritten stems the record lists remain valid objects.
func (p *Pipeline) publishStems(ctx context.Context, run *Run, folder string, out *spleeter.Result, rec *asset.Record) error {
	var (
		mu   sync.Mutex
		done []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.UploadConcurrency)
	for _, stem := range out.Stems {
		key := asset.StemKey(folder, stem)
		path := filepath.Join(out.Dir, stem)
		g.Go(func() error {
			err := p.retry(gctx, "object.put", func(ctx context.Context) error {
				return p.deps.Objects.Put(ctx, key, path)
			})
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			mu.Lock()
			done = append(done, stem)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		current := rec.StemFolder
		if current == "" {
			current = folder
		}
		if rec.HasStems && current == folder {
			var stale []string
			for _, stem := range done {
				if !slices.Contains(rec.Stems, stem) {
					stale = append(stale, asset.StemKey(folder, stem))
				}
			}
			p.discard(ctx, run, stale...)
		} else if !rec.HasStems {
			p.discardPrefix(ctx, run, asset.StemPrefix(folder))
		} else {
			keys := make([]string, 0, len(done))
			for _, stem := range done {
				keys = append(keys, asset.StemKey(folder, stem))
			}
			p.discard(ctx, run, keys...)
		}
		return faults.Wrap(faults.ErrPublishFailed, "derive", "publish", asset.StemPrefix(folder), err)
	}
	return nil
}
