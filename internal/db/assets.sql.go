package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const assetColumns = `name, path, image_url, has_stems, stems, stem_folder, source_url, title, derived_from, pitch_semitones, created_at, updated_at`

func scanAsset(row interface{ Scan(...any) error }, i *Asset) error {
	return row.Scan(
		&i.Name,
		&i.Path,
		&i.ImageUrl,
		&i.HasStems,
		&i.Stems,
		&i.StemFolder,
		&i.SourceUrl,
		&i.Title,
		&i.DerivedFrom,
		&i.PitchSemitones,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
}

const getAsset = `-- name: GetAsset :one
SELECT ` + assetColumns + ` FROM assets WHERE name = $1
`

func (q *Queries) GetAsset(ctx context.Context, name string) (*Asset, error) {
	row := q.db.QueryRow(ctx, getAsset, name)
	var i Asset
	err := scanAsset(row, &i)
	return &i, err
}

const assetExists = `-- name: AssetExists :one
SELECT EXISTS (SELECT 1 FROM assets WHERE name = $1)
`

func (q *Queries) AssetExists(ctx context.Context, name string) (bool, error) {
	row := q.db.QueryRow(ctx, assetExists, name)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const listAssets = `-- name: ListAssets :many
SELECT ` + assetColumns + ` FROM assets ORDER BY created_at, name
`

func (q *Queries) ListAssets(ctx context.Context) ([]*Asset, error) {
	rows, err := q.db.Query(ctx, listAssets)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Asset
	for rows.Next() {
		var i Asset
		if err := scanAsset(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, &i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type InsertAssetParams struct {
	Name           string             `json:"name"`
	Path           string             `json:"path"`
	ImageUrl       string             `json:"image_url"`
	HasStems       bool               `json:"has_stems"`
	Stems          []string           `json:"stems"`
	StemFolder     string             `json:"stem_folder"`
	SourceUrl      string             `json:"source_url"`
	Title          string             `json:"title"`
	DerivedFrom    string             `json:"derived_from"`
	PitchSemitones *float64           `json:"pitch_semitones"`
	CreatedAt      pgtype.Timestamptz `json:"created_at"`
	UpdatedAt      pgtype.Timestamptz `json:"updated_at"`
}

func (arg *InsertAssetParams) args() []any {
	stems := arg.Stems
	if stems == nil {
		stems = []string{}
	}
	return []any{
		arg.Name,
		arg.Path,
		arg.ImageUrl,
		arg.HasStems,
		stems,
		arg.StemFolder,
		arg.SourceUrl,
		arg.Title,
		arg.DerivedFrom,
		arg.PitchSemitones,
		arg.CreatedAt,
		arg.UpdatedAt,
	}
}

const insertAssetIfAbsent = `-- name: InsertAssetIfAbsent :execrows
INSERT INTO assets (` + assetColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (name) DO NOTHING
`

// InsertAssetIfAbsent returns the number of rows written: 0 when the name is
// already taken.
func (q *Queries) InsertAssetIfAbsent(ctx context.Context, arg *InsertAssetParams) (int64, error) {
	result, err := q.db.Exec(ctx, insertAssetIfAbsent, arg.args()...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const upsertAsset = `-- name: UpsertAsset :exec
INSERT INTO assets (` + assetColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (name) DO UPDATE SET
    path = EXCLUDED.path,
    image_url = EXCLUDED.image_url,
    has_stems = EXCLUDED.has_stems,
    stems = EXCLUDED.stems,
    stem_folder = EXCLUDED.stem_folder,
    source_url = EXCLUDED.source_url,
    title = EXCLUDED.title,
    derived_from = EXCLUDED.derived_from,
    pitch_semitones = EXCLUDED.pitch_semitones,
    updated_at = EXCLUDED.updated_at
`

func (q *Queries) UpsertAsset(ctx context.Context, arg *InsertAssetParams) error {
	_, err := q.db.Exec(ctx, upsertAsset, arg.args()...)
	return err
}

const updateAssetFields = `-- name: UpdateAssetFields :one
UPDATE assets SET
    image_url = COALESCE($2::text, image_url),
    has_stems = COALESCE($3::boolean, has_stems),
    stems = COALESCE($4::text[], stems),
    stem_folder = COALESCE($5::text, stem_folder),
    title = COALESCE($6::text, title),
    updated_at = $7
WHERE name = $1
RETURNING ` + assetColumns + `
`

type UpdateAssetFieldsParams struct {
	Name       string             `json:"name"`
	ImageUrl   *string            `json:"image_url"`
	HasStems   *bool              `json:"has_stems"`
	Stems      []string           `json:"stems"`
	StemFolder *string            `json:"stem_folder"`
	Title      *string            `json:"title"`
	UpdatedAt  pgtype.Timestamptz `json:"updated_at"`
}

func (q *Queries) UpdateAssetFields(ctx context.Context, arg *UpdateAssetFieldsParams) (*Asset, error) {
	row := q.db.QueryRow(ctx, updateAssetFields,
		arg.Name,
		arg.ImageUrl,
		arg.HasStems,
		arg.Stems,
		arg.StemFolder,
		arg.Title,
		arg.UpdatedAt,
	)
	var i Asset
	err := scanAsset(row, &i)
	return &i, err
}

const deleteAsset = `-- name: DeleteAsset :execrows
DELETE FROM assets WHERE name = $1
`

func (q *Queries) DeleteAsset(ctx context.Context, name string) (int64, error) {
	result, err := q.db.Exec(ctx, deleteAsset, name)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
