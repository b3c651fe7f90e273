package testsupport

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"thirdcoast.systems/sonicstream/internal/asset"
)

// Records is an in-memory asset.RecordStore.
type Records struct {
	mu   sync.Mutex
	recs map[string]*asset.Record
	now  func() time.Time

	// Fail, when set, is consulted before every operation with the
	// operation name ("get", "create", ...).
	Fail func(op, name string) error
}

var _ asset.RecordStore = (*Records)(nil)

func NewRecords() *Records {
	return &Records{recs: make(map[string]*asset.Record), now: time.Now}
}

func clone(r *asset.Record) *asset.Record {
	c := *r
	c.Stems = append([]string(nil), r.Stems...)
	if r.PitchSemitones != nil {
		v := *r.PitchSemitones
		c.PitchSemitones = &v
	}
	return &c
}

func (s *Records) fail(op, name string) error {
	if s.Fail == nil {
		return nil
	}
	return s.Fail(op, name)
}

func (s *Records) Get(ctx context.Context, name string) (*asset.Record, error) {
	if err := s.fail("get", name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[name]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", name, asset.ErrNotFound)
	}
	return clone(r), nil
}

func (s *Records) Create(ctx context.Context, rec *asset.Record) error {
	if err := s.fail("create", rec.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.Name]; ok {
		return fmt.Errorf("record %s: %w", rec.Name, asset.ErrExists)
	}
	c := clone(rec)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	s.recs[rec.Name] = c
	return nil
}

func (s *Records) Set(ctx context.Context, rec *asset.Record) error {
	if err := s.fail("set", rec.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.Name] = clone(rec)
	return nil
}

func (s *Records) Update(ctx context.Context, name string, patch asset.Patch) (*asset.Record, error) {
	if err := s.fail("update", name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[name]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", name, asset.ErrNotFound)
	}
	patch.Apply(r, s.now())
	return clone(r), nil
}

func (s *Records) Delete(ctx context.Context, name string) error {
	if err := s.fail("delete", name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[name]; !ok {
		return fmt.Errorf("record %s: %w", name, asset.ErrNotFound)
	}
	delete(s.recs, name)
	return nil
}

func (s *Records) Exists(ctx context.Context, name string) (bool, error) {
	if err := s.fail("exists", name); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.recs[name]
	return ok, nil
}

func (s *Records) List(ctx context.Context) ([]*asset.Record, error) {
	if err := s.fail("list", ""); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*asset.Record, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
