package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"thirdcoast.systems/sonicstream/internal/config"
)

var dbOpenBackoffBase = 1 * time.Second

// OpenDBPoolWithRetry initializes a new PostgreSQL connection pool with retry logic.
// Attempts back off along the Fibonacci sequence.
func OpenDBPoolWithRetry(ctx context.Context, conf config.DatabaseConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(conf.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	attempts := conf.DatabaseRetries
	if attempts < 1 {
		attempts = 1
	}
	backoff := func() retry.Backoff {
		return retry.WithMaxRetries(uint64(attempts-1), retry.NewFibonacci(dbOpenBackoffBase))
	}

	host := cfg.ConnConfig.Host
	slog.Info("Connecting to database", "host", host)

	pool, err := retry.DoValue(ctx, backoff(), func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			slog.Warn("could not open database pool", "host", host, "error", err)
			return nil, retry.RetryableError(err)
		}
		return pool, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after multiple attempts: %w", err)
	}

	slog.Info("Testing connection to database", "host", host)
	err = retry.Do(ctx, backoff(), func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			slog.Warn("could not ping database", "host", host, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database after multiple attempts: %w", err)
	}

	slog.Info("Pinged database", "host", host)
	return pool, nil
}
