package db

import (
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"thirdcoast.systems/sonicstream/internal/asset"
	"thirdcoast.systems/sonicstream/internal/faults"
)

func IsUndefinedColumnErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 42703 = undefined_column
		// 42P01 = undefined_table
		return pgErr.Code == "42703" || pgErr.Code == "42P01"
	}
	return false
}

// isUnavailable reports errors worth retrying: lost connections, timeouts,
// server shutdown, serialization conflicts and resource exhaustion.
func isUnavailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection_exception
			return true
		case strings.HasPrefix(pgErr.Code, "53"): // insufficient_resources
			return true
		case pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03": // shutdown
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01": // serialization / deadlock
			return true
		}
		return false
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// wrapErr maps pgx errors onto the store contract: no rows becomes
// asset.ErrNotFound and transient failures are tagged StoreUnavailable.
func wrapErr(op, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%w: %s", asset.ErrNotFound, key)
	case IsUndefinedColumnErr(err):
		return fmt.Errorf("db: %s %s: schema out of date, run pg-migrator: %w", op, key, err)
	case isUnavailable(err):
		return faults.Wrap(faults.ErrStoreUnavailable, "db", op, key, err)
	default:
		return fmt.Errorf("db: %s %s: %w", op, key, err)
	}
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

func timeOf(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

// advisoryLockID maps a scoped key onto the int64 space Postgres advisory
// locks use.
func advisoryLockID(scope, id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(scope))
	_, _ = h.Write([]byte(":"))
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}
