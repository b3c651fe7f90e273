package db

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLocker serializes work on a name across replicas with session
// advisory locks. Each held lock pins one pooled connection until released.
type AdvisoryLocker struct {
	Pool  *pgxpool.Pool
	Scope string
}

func NewAdvisoryLocker(pool *pgxpool.Pool, scope string) *AdvisoryLocker {
	if scope == "" {
		scope = "asset-name"
	}
	return &AdvisoryLocker{Pool: pool, Scope: scope}
}

// TryLock takes the lock for key without waiting. ok is false when another
// session holds it.
func (l *AdvisoryLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	lockID := advisoryLockID(l.Scope, key)
	conn, err := l.Pool.Acquire(ctx)
	if err != nil {
		return nil, false, wrapErr("acquire lock conn", key, err)
	}
	acquired, err := New(conn).TryAdvisoryLock(ctx, lockID)
	if err != nil || !acquired {
		conn.Release()
		return nil, false, wrapErr("try advisory lock", key, err)
	}
	return l.releaser(conn, lockID, key), true, nil
}

// Lock waits for the lock for key until ctx is done.
func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockID := advisoryLockID(l.Scope, key)
	conn, err := l.Pool.Acquire(ctx)
	if err != nil {
		return nil, wrapErr("acquire lock conn", key, err)
	}
	if err := New(conn).AdvisoryLock(ctx, lockID); err != nil {
		// A canceled pg_advisory_lock may leave the session in an unknown
		// state; drop the connection rather than returning it to the pool.
		_ = conn.Conn().Close(context.Background())
		conn.Release()
		return nil, wrapErr("advisory lock", key, err)
	}
	return l.releaser(conn, lockID, key), nil
}

func (l *AdvisoryLocker) releaser(conn *pgxpool.Conn, lockID int64, key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.unlock(conn, lockID, key) })
	}
}

func (l *AdvisoryLocker) unlock(conn *pgxpool.Conn, lockID int64, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := New(conn).AdvisoryUnlock(ctx, lockID); err != nil {
		slog.Warn("advisory unlock failed", "key", key, "error", err)
		_ = conn.Conn().Close(ctx)
	}
	conn.Release()
}
