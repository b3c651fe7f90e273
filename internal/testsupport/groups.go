package testsupport

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"thirdcoast.systems/sonicstream/internal/asset"
)

// Groups is an in-memory asset.GroupStore.
type Groups struct {
	mu     sync.Mutex
	groups map[string]*asset.Group
}

var _ asset.GroupStore = (*Groups)(nil)

func NewGroups() *Groups {
	return &Groups{groups: make(map[string]*asset.Group)}
}

func cloneGroup(g *asset.Group) *asset.Group {
	c := *g
	c.Files = append([]string(nil), g.Files...)
	return &c
}

func (s *Groups) List(ctx context.Context) ([]*asset.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*asset.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, cloneGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Groups) Get(ctx context.Context, id string) (*asset.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", id, asset.ErrNotFound)
	}
	return cloneGroup(g), nil
}

func (s *Groups) Create(ctx context.Context, g *asset.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if _, ok := s.groups[g.ID]; ok {
		return fmt.Errorf("group %s: %w", g.ID, asset.ErrExists)
	}
	now := time.Now()
	g.Files = asset.Dedupe(g.Files)
	g.CreatedAt, g.UpdatedAt = now, now
	s.groups[g.ID] = cloneGroup(g)
	return nil
}

func (s *Groups) Update(ctx context.Context, id string, patch asset.GroupPatch) (*asset.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", id, asset.ErrNotFound)
	}
	patch.Apply(g, time.Now())
	return cloneGroup(g), nil
}

func (s *Groups) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return fmt.Errorf("group %s: %w", id, asset.ErrNotFound)
	}
	delete(s.groups, id)
	return nil
}

func (s *Groups) RemoveAssetReference(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, g := range s.groups {
		if !slices.Contains(g.Files, name) {
			continue
		}
		g.Files = slices.DeleteFunc(g.Files, func(f string) bool { return f == name })
		g.UpdatedAt = time.Now()
		n++
	}
	return n, nil
}
