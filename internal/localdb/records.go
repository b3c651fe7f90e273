package localdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"thirdcoast.systems/sonicstream/internal/asset"
)

// Records implements asset.RecordStore.
type Records struct {
	s *Store
}

const recordColumns = `name, path, image_url, has_stems, stems_json, stem_folder, source_url, title, derived_from, pitch_semitones, created_at, updated_at`

type rowScanner interface{ Scan(...any) error }

func scanRecord(row rowScanner) (*asset.Record, error) {
	var (
		rec       asset.Record
		stemsJSON string
		pitch     sql.NullFloat64
		created   string
		updated   string
	)
	if err := row.Scan(&rec.Name, &rec.Path, &rec.ImageURL, &rec.HasStems, &stemsJSON, &rec.StemFolder,
		&rec.SourceURL, &rec.Title, &rec.DerivedFrom, &pitch, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(stemsJSON), &rec.Stems); err != nil {
		return nil, fmt.Errorf("decode stems for %s: %w", rec.Name, err)
	}
	if rec.Stems == nil {
		rec.Stems = []string{}
	}
	if pitch.Valid {
		v := pitch.Float64
		rec.PitchSemitones = &v
	}
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return &rec, nil
}

func recordArgs(rec *asset.Record) ([]any, error) {
	stems := rec.Stems
	if stems == nil {
		stems = []string{}
	}
	stemsJSON, err := json.Marshal(stems)
	if err != nil {
		return nil, err
	}
	var pitch any
	if rec.PitchSemitones != nil {
		pitch = *rec.PitchSemitones
	}
	return []any{
		rec.Name, rec.Path, rec.ImageURL, rec.HasStems, string(stemsJSON), rec.StemFolder,
		rec.SourceURL, rec.Title, rec.DerivedFrom, pitch,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	}, nil
}

func (r *Records) stamp(rec *asset.Record) {
	now := r.s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
}

func (r *Records) Get(ctx context.Context, name string) (*asset.Record, error) {
	row := r.s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM assets WHERE name = ?`, name)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", asset.ErrNotFound, name)
	}
	if err != nil {
		return nil, wrapErr("get asset", name, err)
	}
	return rec, nil
}

func (r *Records) Create(ctx context.Context, rec *asset.Record) error {
	r.stamp(rec)
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	res, err := r.s.db.ExecContext(ctx, `INSERT INTO assets (`+recordColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(name) DO NOTHING`, args...)
	if err != nil {
		return wrapErr("create asset", rec.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("create asset", rec.Name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", asset.ErrExists, rec.Name)
	}
	return nil
}

func (r *Records) Set(ctx context.Context, rec *asset.Record) error {
	r.stamp(rec)
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx, `INSERT INTO assets (`+recordColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET
            path = excluded.path,
            image_url = excluded.image_url,
            has_stems = excluded.has_stems,
            stems_json = excluded.stems_json,
            stem_folder = excluded.stem_folder,
            source_url = excluded.source_url,
            title = excluded.title,
            derived_from = excluded.derived_from,
            pitch_semitones = excluded.pitch_semitones,
            updated_at = excluded.updated_at`, args...)
	return wrapErr("set asset", rec.Name, err)
}

func (r *Records) Update(ctx context.Context, name string, patch asset.Patch) (*asset.Record, error) {
	var out *asset.Record
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM assets WHERE name = ?`, name)
		rec, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", asset.ErrNotFound, name)
		}
		if err != nil {
			return wrapErr("update asset", name, err)
		}

		patch.Apply(rec, r.s.now())
		stemsJSON, err := json.Marshal(rec.Stems)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE assets SET image_url = ?, has_stems = ?, stems_json = ?,
            stem_folder = ?, title = ?, updated_at = ? WHERE name = ?`,
			rec.ImageURL, rec.HasStems, string(stemsJSON), rec.StemFolder, rec.Title, formatTime(rec.UpdatedAt), name)
		if err != nil {
			return wrapErr("update asset", name, err)
		}
		out = rec
		return nil
	})
	return out, err
}

func (r *Records) Delete(ctx context.Context, name string) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM assets WHERE name = ?`, name)
	if err != nil {
		return wrapErr("delete asset", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("delete asset", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", asset.ErrNotFound, name)
	}
	return nil
}

func (r *Records) Exists(ctx context.Context, name string) (bool, error) {
	var one int
	err := r.s.db.QueryRowContext(ctx, `SELECT 1 FROM assets WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr("asset exists", name, err)
	}
	return true, nil
}

func (r *Records) List(ctx context.Context) ([]*asset.Record, error) {
	rows, err := r.s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM assets ORDER BY created_at, name`)
	if err != nil {
		return nil, wrapErr("list assets", "", err)
	}
	defer rows.Close()

	var out []*asset.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, wrapErr("list assets", "", err)
		}
		out = append(out, rec)
	}
	return out, wrapErr("list assets", "", rows.Err())
}

var _ asset.RecordStore = (*Records)(nil)
