package localdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"thirdcoast.systems/sonicstream/internal/asset"
)

// Groups implements asset.GroupStore.
type Groups struct {
	s *Store
}

const groupColumns = `id, name, files_json, created_at, updated_at`

func scanGroup(row rowScanner) (*asset.Group, error) {
	var (
		g         asset.Group
		filesJSON string
		created   string
		updated   string
	)
	if err := row.Scan(&g.ID, &g.Name, &filesJSON, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(filesJSON), &g.Files); err != nil {
		return nil, fmt.Errorf("decode files for group %s: %w", g.ID, err)
	}
	if g.Files == nil {
		g.Files = []string{}
	}
	g.CreatedAt = parseTime(created)
	g.UpdatedAt = parseTime(updated)
	return &g, nil
}

func encodeFiles(files []string) (string, error) {
	if files == nil {
		files = []string{}
	}
	b, err := json.Marshal(files)
	return string(b), err
}

func (g *Groups) List(ctx context.Context) ([]*asset.Group, error) {
	rows, err := g.s.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM asset_groups ORDER BY created_at, id`)
	if err != nil {
		return nil, wrapErr("list groups", "", err)
	}
	defer rows.Close()

	var out []*asset.Group
	for rows.Next() {
		grp, err := scanGroup(rows)
		if err != nil {
			return nil, wrapErr("list groups", "", err)
		}
		out = append(out, grp)
	}
	return out, wrapErr("list groups", "", rows.Err())
}

func (g *Groups) Get(ctx context.Context, id string) (*asset.Group, error) {
	grp, err := scanGroup(g.s.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM asset_groups WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: group %s", asset.ErrNotFound, id)
	}
	if err != nil {
		return nil, wrapErr("get group", id, err)
	}
	return grp, nil
}

// Create assigns a new UUID when grp.ID is empty.
func (g *Groups) Create(ctx context.Context, grp *asset.Group) error {
	if grp.ID == "" {
		grp.ID = uuid.NewString()
	}
	if grp.CreatedAt.IsZero() {
		grp.CreatedAt = g.s.now()
	}
	grp.UpdatedAt = grp.CreatedAt
	grp.Files = asset.Dedupe(grp.Files)

	filesJSON, err := encodeFiles(grp.Files)
	if err != nil {
		return err
	}
	_, err = g.s.db.ExecContext(ctx, `INSERT INTO asset_groups (`+groupColumns+`) VALUES (?, ?, ?, ?, ?)`,
		grp.ID, grp.Name, filesJSON, formatTime(grp.CreatedAt), formatTime(grp.UpdatedAt))
	return wrapErr("create group", grp.ID, err)
}

func (g *Groups) Update(ctx context.Context, id string, patch asset.GroupPatch) (*asset.Group, error) {
	var out *asset.Group
	err := g.s.withTx(ctx, func(tx *sql.Tx) error {
		grp, err := scanGroup(tx.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM asset_groups WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: group %s", asset.ErrNotFound, id)
		}
		if err != nil {
			return wrapErr("update group", id, err)
		}

		patch.Apply(grp, g.s.now())
		filesJSON, err := encodeFiles(grp.Files)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE asset_groups SET name = ?, files_json = ?, updated_at = ? WHERE id = ?`,
			grp.Name, filesJSON, formatTime(grp.UpdatedAt), id)
		if err != nil {
			return wrapErr("update group", id, err)
		}
		out = grp
		return nil
	})
	return out, err
}

func (g *Groups) Delete(ctx context.Context, id string) error {
	res, err := g.s.db.ExecContext(ctx, `DELETE FROM asset_groups WHERE id = ?`, id)
	if err != nil {
		return wrapErr("delete group", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("delete group", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: group %s", asset.ErrNotFound, id)
	}
	return nil
}

func (g *Groups) RemoveAssetReference(ctx context.Context, name string) (int, error) {
	changed := 0
	err := g.s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+groupColumns+` FROM asset_groups`)
		if err != nil {
			return wrapErr("remove asset reference", name, err)
		}
		var affected []*asset.Group
		for rows.Next() {
			grp, err := scanGroup(rows)
			if err != nil {
				rows.Close()
				return wrapErr("remove asset reference", name, err)
			}
			if slices.Contains(grp.Files, name) {
				affected = append(affected, grp)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return wrapErr("remove asset reference", name, err)
		}

		now := formatTime(g.s.now())
		for _, grp := range affected {
			files := slices.DeleteFunc(grp.Files, func(f string) bool { return f == name })
			filesJSON, err := encodeFiles(files)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE asset_groups SET files_json = ?, updated_at = ? WHERE id = ?`,
				filesJSON, now, grp.ID); err != nil {
				return wrapErr("remove asset reference", name, err)
			}
		}
		changed = len(affected)
		return nil
	})
	return changed, err
}

var _ asset.GroupStore = (*Groups)(nil)
