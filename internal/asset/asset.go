// Package asset defines asset metadata records, groups and the stores that
// hold them.
package asset

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when a record or group is absent.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned by Create when the name is already taken.
	ErrExists = errors.New("already exists")
)

// Record is the metadata kept for one asset. Name is the published file name
// including its extension.
type Record struct {
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	ImageURL   string   `json:"imageUrl,omitempty"`
	HasStems   bool     `json:"hasStems"`
	Stems      []string `json:"stems"`
	StemFolder string   `json:"stemFolder,omitempty"`

	SourceURL      string   `json:"sourceUrl,omitempty"`
	Title          string   `json:"title,omitempty"`
	DerivedFrom    string   `json:"derivedFrom,omitempty"`
	PitchSemitones *float64 `json:"pitchSemitones,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Patch lists the fields an Update changes. Nil fields are left alone.
type Patch struct {
	ImageURL   *string
	HasStems   *bool
	Stems      []string
	StemFolder *string
	Title      *string
}

// Apply merges p into r and stamps UpdatedAt.
func (p Patch) Apply(r *Record, now time.Time) {
	if p.ImageURL != nil {
		r.ImageURL = *p.ImageURL
	}
	if p.HasStems != nil {
		r.HasStems = *p.HasStems
	}
	if p.Stems != nil {
		r.Stems = append([]string(nil), p.Stems...)
	}
	if p.StemFolder != nil {
		r.StemFolder = *p.StemFolder
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	r.UpdatedAt = now
}

// RecordStore holds asset records keyed by name.
type RecordStore interface {
	Get(ctx context.Context, name string) (*Record, error)
	// Create writes rec only if no record with rec.Name exists; otherwise it
	// returns ErrExists and leaves the stored record untouched.
	Create(ctx context.Context, rec *Record) error
	Set(ctx context.Context, rec *Record) error
	Update(ctx context.Context, name string, patch Patch) (*Record, error)
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]*Record, error)
}

// Group is a user-defined collection of asset names.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Files     []string  `json:"files"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GroupPatch is a partial group update.
type GroupPatch struct {
	Name  *string
	Files []string
}

// Apply merges p into g. Files are de-duplicated, keeping first occurrence.
func (p GroupPatch) Apply(g *Group, now time.Time) {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.Files != nil {
		g.Files = Dedupe(p.Files)
	}
	g.UpdatedAt = now
}

// Dedupe returns names without repeats, preserving order.
func Dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// GroupStore holds groups. The pipeline uses List and RemoveAssetReference;
// the rest exists for the group service.
type GroupStore interface {
	List(ctx context.Context) ([]*Group, error)
	Get(ctx context.Context, id string) (*Group, error)
	Create(ctx context.Context, g *Group) error
	Update(ctx context.Context, id string, patch GroupPatch) (*Group, error)
	Delete(ctx context.Context, id string) error
	// RemoveAssetReference drops name from every group and reports how many
	// groups changed.
	RemoveAssetReference(ctx context.Context, name string) (int, error)
}
