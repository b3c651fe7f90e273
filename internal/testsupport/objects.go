// Package testsupport provides in-memory store implementations for tests.
package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"thirdcoast.systems/sonicstream/internal/objectstore"
)

// Objects is an in-memory objectstore.Store.
type Objects struct {
	mu   sync.Mutex
	data map[string][]byte

	// FailPut, when set, is consulted before every write.
	FailPut func(key string) error
	// FailDelete, when set, is consulted before every delete.
	FailDelete func(key string) error
}

var _ objectstore.Store = (*Objects)(nil)

func NewObjects() *Objects {
	return &Objects{data: make(map[string][]byte)}
}

func (o *Objects) put(key string, data []byte) error {
	k, err := objectstore.CleanKey(key)
	if err != nil {
		return err
	}
	o.mu.Lock()
	fail := o.FailPut
	o.mu.Unlock()
	if fail != nil {
		if err := fail(k); err != nil {
			return err
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.data[k] = append([]byte(nil), data...)
	return nil
}

func (o *Objects) Put(ctx context.Context, key, localPath string) error {
	b, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	return o.put(key, b)
}

func (o *Objects) PutBytes(ctx context.Context, key string, data []byte, _ string) error {
	return o.put(key, data)
}

func (o *Objects) Get(ctx context.Context, key, localPath string) error {
	b, err := o.GetBytes(ctx, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, b, 0o600)
}

func (o *Objects) GetBytes(ctx context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.data[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, objectstore.ErrNotExist)
	}
	return append([]byte(nil), b...), nil
}

func (o *Objects) Exists(ctx context.Context, key string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.data[key]
	return ok, nil
}

func (o *Objects) Delete(ctx context.Context, key string) error {
	if o.FailDelete != nil {
		if err := o.FailDelete(key); err != nil {
			return err
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.data, key)
	return nil
}

func (o *Objects) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if o.FailDelete != nil {
		if err := o.FailDelete(prefix); err != nil {
			return 0, err
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for k := range o.data {
		if strings.HasPrefix(k, prefix) {
			delete(o.data, k)
			n++
		}
	}
	return n, nil
}

func (o *Objects) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.data[key]; !ok {
		return "", fmt.Errorf("sign %s: %w", key, objectstore.ErrNotExist)
	}
	return fmt.Sprintf("mem://%s?ttl=%s", key, ttl), nil
}

// Keys returns every stored key, sorted.
func (o *Objects) Keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.data))
	for k := range o.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is stored.
func (o *Objects) Has(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.data[key]
	return ok
}

// Seed stores data under key without consulting FailPut.
func (o *Objects) Seed(key string, data []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.data[key] = append([]byte(nil), data...)
}
