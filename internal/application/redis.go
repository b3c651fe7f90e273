package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"thirdcoast.systems/sonicstream/internal/config"
)

// OpenRedis connects to the lock server and verifies it answers.
func OpenRedis(ctx context.Context, conf config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", conf.Addr, err)
	}

	slog.Info("Connected to redis", "addr", conf.Addr, "db", conf.DB)
	return client, nil
}
