package namelock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// File locks keys with flock(2) on files under Dir, so separate processes on
// one host exclude each other. Lock files are left in place.
type File struct {
	Dir        string
	RetryDelay time.Duration
}

func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("namelock: lock directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("namelock: create lock dir: %w", err)
	}
	return &File{Dir: dir, RetryDelay: 100 * time.Millisecond}, nil
}

// Path returns the lock file used for key.
func (f *File) Path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.Dir, hex.EncodeToString(sum[:16])+".lock")
}

func (f *File) releaser(fl *flock.Flock, key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := fl.Unlock(); err != nil {
				slog.Warn("failed to release name lock", "key", key, "path", fl.Path(), "error", err)
			}
		})
	}
}

func (f *File) TryLock(ctx context.Context, key string) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	fl := flock.New(f.Path(key))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("namelock: try lock %q: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return f.releaser(fl, key), true, nil
}

func (f *File) Lock(ctx context.Context, key string) (func(), error) {
	delay := f.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	fl := flock.New(f.Path(key))
	ok, err := fl.TryLockContext(ctx, delay)
	if err != nil {
		return nil, fmt.Errorf("namelock: lock %q: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("namelock: lock %q: %w", key, context.Cause(ctx))
	}
	return f.releaser(fl, key), nil
}

var _ Locker = (*File)(nil)
