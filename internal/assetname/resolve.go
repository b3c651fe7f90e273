package assetname

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"thirdcoast.systems/sonicstream/internal/faults"
)

// DefaultMaxAttempts bounds how many candidates Resolve tries.
const DefaultMaxAttempts = 1000

// Style selects how a colliding candidate is disambiguated.
type Style string

const (
	// StyleCounter appends "(n)" with n = 1, 2, ...
	StyleCounter Style = "counter"
	// StyleTimestamp appends "_<unix-millis>", then a counter if that also
	// collides.
	StyleTimestamp Style = "timestamp"
)

// ParseStyle maps a configuration value to a Style.
func ParseStyle(s string) (Style, error) {
	switch Style(s) {
	case "", StyleCounter:
		return StyleCounter, nil
	case StyleTimestamp:
		return StyleTimestamp, nil
	default:
		return "", fmt.Errorf("unknown naming style %q", s)
	}
}

// ExistsFunc reports whether a full asset name (base plus extension) is
// already taken.
type ExistsFunc func(ctx context.Context, name string) (bool, error)

// Resolver finds the first free name for a base and extension.
type Resolver struct {
	Exists      ExistsFunc
	Style       Style
	MaxAttempts int
	// Now is used by the timestamp style. Nil means time.Now.
	Now func() time.Time
}

// Candidates returns the ordered list of names Resolve would try. The
// sequence depends only on base, ext and the clock.
func (r *Resolver) Candidates(base, ext string) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		limit := r.maxAttempts()
		if !yield(0, base+ext) {
			return
		}
		stem := base
		start := 1
		if r.Style == StyleTimestamp {
			stem = base + "_" + strconv.FormatInt(r.now().UnixMilli(), 10)
			if !yield(1, stem+ext) {
				return
			}
			start = 2
		}
		for i := start; i < limit; i++ {
			n := i
			if r.Style == StyleTimestamp {
				n = i - 1
			}
			if !yield(i, fmt.Sprintf("%s(%d)%s", stem, n, ext)) {
				return
			}
		}
	}
}

// Resolve returns the first candidate for which Exists reports false.
// With a constant predicate and the counter style, repeated calls return the
// same name. Resolve does not reserve anything; callers that need
// exactly-once creation pair it with a name lock and a recheck (see Next).
func (r *Resolver) Resolve(ctx context.Context, base, ext string) (string, error) {
	return r.Next(ctx, base, ext, nil)
}

// Next is Resolve with an extra skip set: names in skip are treated as taken
// without consulting Exists. Callers use it to move past a candidate whose
// reservation failed.
func (r *Resolver) Next(ctx context.Context, base, ext string, skip map[string]bool) (string, error) {
	if base == "" {
		return "", faults.BadRequest("assetname", "base name is required")
	}
	if r.Exists == nil {
		return "", errors.New("assetname: resolver has no existence check")
	}

	for _, candidate := range r.Candidates(base, ext) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if skip[candidate] {
			continue
		}
		taken, err := r.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("assetname: check %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}

	return "", faults.Wrap(faults.ErrNamingExhausted, "assetname", "resolve",
		fmt.Sprintf("no free name for %q after %d attempts", base+ext, r.maxAttempts()), nil)
}

func (r *Resolver) maxAttempts() int {
	if r.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return r.MaxAttempts
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// FileExists checks names as files inside dir.
func FileExists(dir string) ExistsFunc {
	return func(_ context.Context, name string) (bool, error) {
		_, err := os.Stat(filepath.Join(dir, name))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
}

// Any reports a name as taken when any predicate does.
func Any(preds ...ExistsFunc) ExistsFunc {
	return func(ctx context.Context, name string) (bool, error) {
		for _, p := range preds {
			if p == nil {
				continue
			}
			taken, err := p(ctx, name)
			if err != nil || taken {
				return taken, err
			}
		}
		return false, nil
	}
}
