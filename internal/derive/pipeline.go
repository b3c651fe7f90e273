// Package derive runs derivations: turning a remote source or an existing
// asset into new published artifacts.
//
// Every operation follows the same shape. A Run acquires private staging,
// invokes one external tool, validates what the tool left behind, publishes
// it to the object store and finally records metadata. Cleanup of staging and
// of any name lock always runs, whether the run ends in Done or Aborted.
package derive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-retry"

	"thirdcoast.systems/sonicstream/internal/asset"
	"thirdcoast.systems/sonicstream/internal/assetname"
	"thirdcoast.systems/sonicstream/internal/faults"
	"thirdcoast.systems/sonicstream/internal/namelock"
	"thirdcoast.systems/sonicstream/internal/objectstore"
	"thirdcoast.systems/sonicstream/internal/staging"
	"thirdcoast.systems/sonicstream/internal/toolexec"
	"thirdcoast.systems/sonicstream/pkg/chords"
	"thirdcoast.systems/sonicstream/pkg/ffmpeg"
	"thirdcoast.systems/sonicstream/pkg/spleeter"
	"thirdcoast.systems/sonicstream/pkg/ytdlp"
)

const (
	DefaultSignedURLTTL      = 15 * time.Minute
	DefaultUploadConcurrency = 4
	DefaultRetryAttempts     = 3
	DefaultRetryBaseDelay    = 200 * time.Millisecond
	cleanupTimeout           = 30 * time.Second
)

// Fetcher retrieves remote media. *ytdlp.Client implements it.
type Fetcher interface {
	GetInfo(ctx context.Context, url string) (*ytdlp.Info, error)
	DownloadAudio(ctx context.Context, url, destDir string) (*ytdlp.Download, error)
}

// Separator splits audio into stems. *spleeter.Client implements it.
type Separator interface {
	Separate(ctx context.Context, input, outputDir, model string) (*spleeter.Result, error)
}

// Transcoder runs ffmpeg commands and probes their output. *ffmpeg.Tool
// implements it.
type Transcoder interface {
	Run(ctx context.Context, cmd *ffmpeg.Command) (*toolexec.Result, error)
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// ChordExtractor produces chord documents. *chords.Client implements it.
type ChordExtractor interface {
	Extract(ctx context.Context, input string) (chords.Document, error)
}

// Dependencies are the collaborators a Pipeline drives.
type Dependencies struct {
	Objects objectstore.Store
	Records asset.RecordStore
	Groups  asset.GroupStore
	Locks   namelock.Locker
	Staging *staging.Manager

	Fetcher    Fetcher
	Separator  Separator
	Transcoder Transcoder
	Chords     ChordExtractor

	Logger *slog.Logger
}

// Options tune a Pipeline. Zero values select defaults.
type Options struct {
	NamingStyle       assetname.Style
	MaxNamingAttempts int
	SignedURLTTL      time.Duration
	UploadConcurrency int
	RetryAttempts     uint64
	RetryBaseDelay    time.Duration
	Now               func() time.Time

	// OnRun is called when a run starts.
	OnRun func(*Run)
}

// Pipeline executes derivations against one set of stores and tools.
type Pipeline struct {
	deps     Dependencies
	opts     Options
	validate *validator.Validate
}

// New checks deps and applies option defaults.
func New(deps Dependencies, opts Options) (*Pipeline, error) {
	switch {
	case deps.Objects == nil:
		return nil, errors.New("derive: object store is required")
	case deps.Records == nil:
		return nil, errors.New("derive: record store is required")
	case deps.Groups == nil:
		return nil, errors.New("derive: group store is required")
	case deps.Locks == nil:
		return nil, errors.New("derive: name locker is required")
	case deps.Staging == nil:
		return nil, errors.New("derive: staging manager is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	style, err := assetname.ParseStyle(string(opts.NamingStyle))
	if err != nil {
		return nil, fmt.Errorf("derive: %w", err)
	}
	opts.NamingStyle = style
	if opts.MaxNamingAttempts <= 0 {
		opts.MaxNamingAttempts = assetname.DefaultMaxAttempts
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = DefaultSignedURLTTL
	}
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = DefaultUploadConcurrency
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = DefaultRetryAttempts
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Pipeline{
		deps:     deps,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

func (p *Pipeline) begin(derivation, assetName string) *Run {
	r := newRun(derivation, assetName, p.deps.Logger)
	if p.opts.OnRun != nil {
		p.opts.OnRun(r)
	}
	return r
}

func (p *Pipeline) check(req any) error {
	if err := p.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return faults.BadRequest("derive", fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag()))
		}
		return faults.BadRequest("derive", err.Error())
	}
	return nil
}

func checkName(name string) error {
	if !asset.ValidName(name) {
		return faults.BadRequest("derive", fmt.Sprintf("invalid asset name %q", name))
	}
	return nil
}

func (p *Pipeline) backoff() retry.Backoff {
	b := retry.NewExponential(p.opts.RetryBaseDelay)
	b = retry.WithJitterPercent(10, b)
	return retry.WithMaxRetries(p.opts.RetryAttempts, b)
}

// retryValue retries fn while it fails with a retryable store error.
func retryValue[T any](ctx context.Context, p *Pipeline, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	return retry.DoValue(ctx, p.backoff(), func(ctx context.Context) (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil && faults.Retryable(err) {
			p.deps.Logger.Warn("derive: store unavailable, retrying", "op", op, "attempt", attempt, "error", err)
			return v, retry.RetryableError(err)
		}
		return v, err
	})
}

func (p *Pipeline) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := retryValue(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// getRecord loads name, mapping absence to AssetNotFound.
func (p *Pipeline) getRecord(ctx context.Context, name string) (*asset.Record, error) {
	rec, err := retryValue(ctx, p, "record.get", func(ctx context.Context) (*asset.Record, error) {
		return p.deps.Records.Get(ctx, name)
	})
	if errors.Is(err, asset.ErrNotFound) {
		return nil, faults.Wrap(faults.ErrAssetNotFound, "derive", "lookup", name, nil)
	}
	return rec, err
}

// fetchPrimary downloads the asset's audio into the run's input directory.
func (p *Pipeline) fetchPrimary(ctx context.Context, h *staging.Handle, name string) (string, error) {
	local := h.Input(name)
	err := p.retry(ctx, "object.get", func(ctx context.Context) error {
		return p.deps.Objects.Get(ctx, asset.AudioKey(name), local)
	})
	if errors.Is(err, objectstore.ErrNotExist) {
		return "", faults.Wrap(faults.ErrAssetNotFound, "derive", "download", "primary artifact missing for "+name, nil)
	}
	if err != nil {
		return "", fmt.Errorf("derive: download %s: %w", name, err)
	}
	return local, nil
}

// nameTaken reports whether name is held by a record or a published object.
func (p *Pipeline) nameTaken(ctx context.Context, name string) (bool, error) {
	return retryValue(ctx, p, "name.exists", func(ctx context.Context) (bool, error) {
		return assetname.Any(
			p.deps.Records.Exists,
			func(ctx context.Context, name string) (bool, error) {
				return p.deps.Objects.Exists(ctx, asset.AudioKey(name))
			},
		)(ctx, name)
	})
}

// reserve picks the first free name for base+ext and holds its lock for the
// rest of the run. A candidate that is locked elsewhere, or that became taken
// before the lock was acquired, is skipped.
func (p *Pipeline) reserve(ctx context.Context, run *Run, base, ext string) (string, error) {
	resolver := &assetname.Resolver{
		Exists:      p.nameTaken,
		Style:       p.opts.NamingStyle,
		MaxAttempts: p.opts.MaxNamingAttempts,
		Now:         p.opts.Now,
	}
	skip := make(map[string]bool)
	for {
		name, err := resolver.Next(ctx, base, ext, skip)
		if err != nil {
			return "", err
		}

		release, ok, err := p.deps.Locks.TryLock(ctx, name)
		if err != nil {
			return "", fmt.Errorf("derive: lock %s: %w", name, err)
		}
		if !ok {
			run.log().Debug("derive: candidate locked elsewhere", "candidate", name)
			skip[name] = true
			continue
		}

		taken, err := p.nameTaken(ctx, name)
		if err != nil {
			release()
			return "", err
		}
		if taken {
			release()
			skip[name] = true
			continue
		}

		run.hold(release)
		run.setAsset(name)
		run.log().Info("derive: name reserved", "base", base)
		return name, nil
	}
}

// lock holds name's lock for the rest of the run.
func (p *Pipeline) lock(ctx context.Context, run *Run, name string) error {
	release, err := p.deps.Locks.Lock(ctx, name)
	if err != nil {
		return fmt.Errorf("derive: lock %s: %w", name, err)
	}
	run.hold(release)
	return nil
}

// publish uploads local files under keys. On failure every key already
// written is removed and the error is tagged PublishFailed.
func (p *Pipeline) publish(ctx context.Context, run *Run, uploads []upload) ([]string, error) {
	var done []string
	for _, u := range uploads {
		err := p.retry(ctx, "object.put", func(ctx context.Context) error {
			return p.deps.Objects.Put(ctx, u.key, u.path)
		})
		if err != nil {
			p.discard(ctx, run, done...)
			return nil, faults.Wrap(faults.ErrPublishFailed, "derive", "publish", u.key, err)
		}
		done = append(done, u.key)
		run.log().Debug("derive: published", "key", u.key)
	}
	return done, nil
}

type upload struct {
	key  string
	path string
}

// discard removes keys best-effort. It runs detached from ctx so that a
// canceled request still cleans up after itself.
func (p *Pipeline) discard(ctx context.Context, run *Run, keys ...string) {
	if len(keys) == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for _, k := range keys {
		if err := p.deps.Objects.Delete(cctx, k); err != nil {
			run.log().Warn("derive: failed to remove partial upload", "key", k, "error", err)
		}
	}
}

func (p *Pipeline) discardPrefix(ctx context.Context, run *Run, prefix string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if _, err := p.deps.Objects.DeletePrefix(cctx, prefix); err != nil {
		run.log().Warn("derive: failed to remove partial uploads", "prefix", prefix, "error", err)
	}
}

func (p *Pipeline) signedURL(ctx context.Context, key string) (string, error) {
	u, err := retryValue(ctx, p, "object.sign", func(ctx context.Context) (string, error) {
		return p.deps.Objects.SignedReadURL(ctx, key, p.opts.SignedURLTTL)
	})
	if errors.Is(err, objectstore.ErrNotExist) {
		return "", faults.Wrap(faults.ErrAssetNotFound, "derive", "sign", key, nil)
	}
	return u, err
}

func errorsIsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
