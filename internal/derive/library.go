package derive

import (
	"context"
	"errors"
	"slices"
	"time"

	"thirdcoast.systems/sonicstream/internal/asset"
	"thirdcoast.systems/sonicstream/internal/faults"
	"thirdcoast.systems/sonicstream/internal/sourceurl"
)

// List returns every asset record, newest first.
func (p *Pipeline) List(ctx context.Context) ([]*asset.Record, error) {
	return retryValue(ctx, p, "record.list", func(ctx context.Context) ([]*asset.Record, error) {
		return p.deps.Records.List(ctx)
	})
}

// StreamURL signs the primary artifact of name.
func (p *Pipeline) StreamURL(ctx context.Context, name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	return p.signedURL(ctx, asset.AudioKey(name))
}

// ThumbnailURL signs the thumbnail recorded for name.
func (p *Pipeline) ThumbnailURL(ctx context.Context, name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	rec, err := p.getRecord(ctx, name)
	if err != nil {
		return "", err
	}
	if rec.ImageURL == "" {
		return "", faults.Wrap(faults.ErrAssetNotFound, "derive", "thumbnail", name+" has no thumbnail", nil)
	}
	return p.signedURL(ctx, asset.ThumbnailKey(rec.ImageURL))
}

// StemURL signs one stem of name.
func (p *Pipeline) StemURL(ctx context.Context, name, stem string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	rec, err := p.getRecord(ctx, name)
	if err != nil {
		return "", err
	}
	if !rec.HasStems || !slices.Contains(rec.Stems, stem) {
		return "", faults.Wrap(faults.ErrAssetNotFound, "derive", "stem", name+" has no stem "+stem, nil)
	}
	folder := rec.StemFolder
	if folder == "" {
		folder = asset.BaseName(name)
	}
	return p.signedURL(ctx, asset.StemKey(folder, stem))
}

// Inspect fetches remote metadata without downloading or recording anything.
func (p *Pipeline) Inspect(ctx context.Context, rawURL string) (*SourceInfo, error) {
	if p.deps.Fetcher == nil {
		return nil, errors.New("derive: no fetcher configured")
	}
	src, err := sourceurl.Normalize(rawURL)
	if err != nil {
		return nil, err
	}
	info, err := p.deps.Fetcher.GetInfo(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	return &SourceInfo{
		URL:       src.URL,
		Domain:    src.CanonicalDomain,
		Title:     info.Title,
		Thumbnail: info.Thumbnail,
		Duration:  time.Duration(info.Duration * float64(time.Second)),
		Uploader:  info.Uploader,
	}, nil
}
