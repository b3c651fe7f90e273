package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const groupColumns = `id, name, files, created_at, updated_at`

func scanGroup(row interface{ Scan(...any) error }, i *AssetGroup) error {
	return row.Scan(&i.ID, &i.Name, &i.Files, &i.CreatedAt, &i.UpdatedAt)
}

const listGroups = `-- name: ListGroups :many
SELECT ` + groupColumns + ` FROM asset_groups ORDER BY created_at, id
`

func (q *Queries) ListGroups(ctx context.Context) ([]*AssetGroup, error) {
	rows, err := q.db.Query(ctx, listGroups)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AssetGroup
	for rows.Next() {
		var i AssetGroup
		if err := scanGroup(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, &i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getGroup = `-- name: GetGroup :one
SELECT ` + groupColumns + ` FROM asset_groups WHERE id = $1
`

func (q *Queries) GetGroup(ctx context.Context, id pgtype.UUID) (*AssetGroup, error) {
	row := q.db.QueryRow(ctx, getGroup, id)
	var i AssetGroup
	err := scanGroup(row, &i)
	return &i, err
}

const insertGroup = `-- name: InsertGroup :exec
INSERT INTO asset_groups (` + groupColumns + `) VALUES ($1, $2, $3, $4, $5)
`

type InsertGroupParams struct {
	ID        pgtype.UUID        `json:"id"`
	Name      string             `json:"name"`
	Files     []string           `json:"files"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
	UpdatedAt pgtype.Timestamptz `json:"updated_at"`
}

func (q *Queries) InsertGroup(ctx context.Context, arg *InsertGroupParams) error {
	files := arg.Files
	if files == nil {
		files = []string{}
	}
	_, err := q.db.Exec(ctx, insertGroup, arg.ID, arg.Name, files, arg.CreatedAt, arg.UpdatedAt)
	return err
}

const updateGroup = `-- name: UpdateGroup :one
UPDATE asset_groups SET
    name = COALESCE($2::text, name),
    files = COALESCE($3::text[], files),
    updated_at = $4
WHERE id = $1
RETURNING ` + groupColumns + `
`

type UpdateGroupParams struct {
	ID        pgtype.UUID        `json:"id"`
	Name      *string            `json:"name"`
	Files     []string           `json:"files"`
	UpdatedAt pgtype.Timestamptz `json:"updated_at"`
}

func (q *Queries) UpdateGroup(ctx context.Context, arg *UpdateGroupParams) (*AssetGroup, error) {
	row := q.db.QueryRow(ctx, updateGroup, arg.ID, arg.Name, arg.Files, arg.UpdatedAt)
	var i AssetGroup
	err := scanGroup(row, &i)
	return &i, err
}

const deleteGroup = `-- name: DeleteGroup :execrows
DELETE FROM asset_groups WHERE id = $1
`

func (q *Queries) DeleteGroup(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteGroup, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const removeAssetFromGroups = `-- name: RemoveAssetFromGroups :execrows
UPDATE asset_groups
SET files = array_remove(files, $1::text), updated_at = $2
WHERE $1::text = ANY(files)
`

func (q *Queries) RemoveAssetFromGroups(ctx context.Context, name string, updatedAt pgtype.Timestamptz) (int64, error) {
	result, err := q.db.Exec(ctx, removeAssetFromGroups, name, updatedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
