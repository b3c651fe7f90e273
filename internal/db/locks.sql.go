package db

import (
	"context"
)

const tryAdvisoryLock = `-- name: TryAdvisoryLock :one
SELECT pg_try_advisory_lock($1)
`

func (q *Queries) TryAdvisoryLock(ctx context.Context, id int64) (bool, error) {
	row := q.db.QueryRow(ctx, tryAdvisoryLock, id)
	var acquired bool
	err := row.Scan(&acquired)
	return acquired, err
}

const advisoryLock = `-- name: AdvisoryLock :exec
SELECT pg_advisory_lock($1)
`

func (q *Queries) AdvisoryLock(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, advisoryLock, id)
	return err
}

const advisoryUnlock = `-- name: AdvisoryUnlock :one
SELECT pg_advisory_unlock($1)
`

func (q *Queries) AdvisoryUnlock(ctx context.Context, id int64) (bool, error) {
	row := q.db.QueryRow(ctx, advisoryUnlock, id)
	var released bool
	err := row.Scan(&released)
	return released, err
}
