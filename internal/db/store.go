package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"thirdcoast.systems/sonicstream/internal/asset"
)

// AssetStore implements asset.RecordStore on PostgreSQL.
type AssetStore struct {
	q   *Queries
	now func() time.Time
}

func NewAssetStore(conn DBTX) *AssetStore {
	return &AssetStore{q: New(conn), now: time.Now}
}

func recordFromRow(a *Asset) *asset.Record {
	stems := a.Stems
	if stems == nil {
		stems = []string{}
	}
	return &asset.Record{
		Name:           a.Name,
		Path:           a.Path,
		ImageURL:       a.ImageUrl,
		HasStems:       a.HasStems,
		Stems:          stems,
		StemFolder:     a.StemFolder,
		SourceURL:      a.SourceUrl,
		Title:          a.Title,
		DerivedFrom:    a.DerivedFrom,
		PitchSemitones: a.PitchSemitones,
		CreatedAt:      timeOf(a.CreatedAt),
		UpdatedAt:      timeOf(a.UpdatedAt),
	}
}

func (s *AssetStore) insertParams(rec *asset.Record) *InsertAssetParams {
	now := s.now()
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	return &InsertAssetParams{
		Name:           rec.Name,
		Path:           rec.Path,
		ImageUrl:       rec.ImageURL,
		HasStems:       rec.HasStems,
		Stems:          rec.Stems,
		StemFolder:     rec.StemFolder,
		SourceUrl:      rec.SourceURL,
		Title:          rec.Title,
		DerivedFrom:    rec.DerivedFrom,
		PitchSemitones: rec.PitchSemitones,
		CreatedAt:      timestamptz(created),
		UpdatedAt:      timestamptz(updated),
	}
}

func (s *AssetStore) Get(ctx context.Context, name string) (*asset.Record, error) {
	row, err := s.q.GetAsset(ctx, name)
	if err != nil {
		return nil, wrapErr("get asset", name, err)
	}
	return recordFromRow(row), nil
}

func (s *AssetStore) Create(ctx context.Context, rec *asset.Record) error {
	n, err := s.q.InsertAssetIfAbsent(ctx, s.insertParams(rec))
	if err != nil {
		return wrapErr("create asset", rec.Name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", asset.ErrExists, rec.Name)
	}
	return nil
}

func (s *AssetStore) Set(ctx context.Context, rec *asset.Record) error {
	return wrapErr("set asset", rec.Name, s.q.UpsertAsset(ctx, s.insertParams(rec)))
}

func (s *AssetStore) Update(ctx context.Context, name string, patch asset.Patch) (*asset.Record, error) {
	row, err := s.q.UpdateAssetFields(ctx, &UpdateAssetFieldsParams{
		Name:       name,
		ImageUrl:   patch.ImageURL,
		HasStems:   patch.HasStems,
		Stems:      patch.Stems,
		StemFolder: patch.StemFolder,
		Title:      patch.Title,
		UpdatedAt:  timestamptz(s.now()),
	})
	if err != nil {
		return nil, wrapErr("update asset", name, err)
	}
	return recordFromRow(row), nil
}

func (s *AssetStore) Delete(ctx context.Context, name string) error {
	n, err := s.q.DeleteAsset(ctx, name)
	if err != nil {
		return wrapErr("delete asset", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", asset.ErrNotFound, name)
	}
	return nil
}

func (s *AssetStore) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := s.q.AssetExists(ctx, name)
	return ok, wrapErr("asset exists", name, err)
}

func (s *AssetStore) List(ctx context.Context) ([]*asset.Record, error) {
	rows, err := s.q.ListAssets(ctx)
	if err != nil {
		return nil, wrapErr("list assets", "", err)
	}
	out := make([]*asset.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, recordFromRow(r))
	}
	return out, nil
}

// GroupStore implements asset.GroupStore on PostgreSQL.
type GroupStore struct {
	q   *Queries
	now func() time.Time
}

func NewGroupStore(conn DBTX) *GroupStore {
	return &GroupStore{q: New(conn), now: time.Now}
}

func groupFromRow(g *AssetGroup) *asset.Group {
	files := g.Files
	if files == nil {
		files = []string{}
	}
	return &asset.Group{
		ID:        uuid.UUID(g.ID.Bytes).String(),
		Name:      g.Name,
		Files:     files,
		CreatedAt: timeOf(g.CreatedAt),
		UpdatedAt: timeOf(g.UpdatedAt),
	}
}

func parseGroupID(id string) (pgtype.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("%w: group %s", asset.ErrNotFound, id)
	}
	return pgtype.UUID{Bytes: u, Valid: true}, nil
}

func (s *GroupStore) List(ctx context.Context) ([]*asset.Group, error) {
	rows, err := s.q.ListGroups(ctx)
	if err != nil {
		return nil, wrapErr("list groups", "", err)
	}
	out := make([]*asset.Group, 0, len(rows))
	for _, r := range rows {
		out = append(out, groupFromRow(r))
	}
	return out, nil
}

func (s *GroupStore) Get(ctx context.Context, id string) (*asset.Group, error) {
	gid, err := parseGroupID(id)
	if err != nil {
		return nil, err
	}
	row, err := s.q.GetGroup(ctx, gid)
	if err != nil {
		return nil, wrapErr("get group", id, err)
	}
	return groupFromRow(row), nil
}

// Create assigns a new UUID when g.ID is empty.
func (s *GroupStore) Create(ctx context.Context, g *asset.Group) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	gid, err := uuid.Parse(g.ID)
	if err != nil {
		return fmt.Errorf("db: group id %q: %w", g.ID, err)
	}
	now := s.now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = g.CreatedAt
	g.Files = asset.Dedupe(g.Files)

	err = s.q.InsertGroup(ctx, &InsertGroupParams{
		ID:        pgtype.UUID{Bytes: gid, Valid: true},
		Name:      g.Name,
		Files:     g.Files,
		CreatedAt: timestamptz(g.CreatedAt),
		UpdatedAt: timestamptz(g.UpdatedAt),
	})
	return wrapErr("create group", g.ID, err)
}

func (s *GroupStore) Update(ctx context.Context, id string, patch asset.GroupPatch) (*asset.Group, error) {
	gid, err := parseGroupID(id)
	if err != nil {
		return nil, err
	}
	var files []string
	if patch.Files != nil {
		files = asset.Dedupe(patch.Files)
	}
	row, err := s.q.UpdateGroup(ctx, &UpdateGroupParams{
		ID:        gid,
		Name:      patch.Name,
		Files:     files,
		UpdatedAt: timestamptz(s.now()),
	})
	if err != nil {
		return nil, wrapErr("update group", id, err)
	}
	return groupFromRow(row), nil
}

func (s *GroupStore) Delete(ctx context.Context, id string) error {
	gid, err := parseGroupID(id)
	if err != nil {
		return err
	}
	n, err := s.q.DeleteGroup(ctx, gid)
	if err != nil {
		return wrapErr("delete group", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: group %s", asset.ErrNotFound, id)
	}
	return nil
}

func (s *GroupStore) RemoveAssetReference(ctx context.Context, name string) (int, error) {
	n, err := s.q.RemoveAssetFromGroups(ctx, name, timestamptz(s.now()))
	if err != nil {
		return 0, wrapErr("remove asset reference", name, err)
	}
	return int(n), nil
}

var (
	_ asset.RecordStore = (*AssetStore)(nil)
	_ asset.GroupStore  = (*GroupStore)(nil)
)
