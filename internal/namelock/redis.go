package namelock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"thirdcoast.systems/sonicstream/internal/faults"
)

// Release and refresh only act while the caller's token still owns the key.
var (
	unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis locks keys across hosts with SET NX PX. A held lock is refreshed
// every TTL/3 so long tool runs keep it; a crashed holder loses it after TTL.
type Redis struct {
	Client     redis.UniversalClient
	Prefix     string
	TTL        time.Duration
	RetryDelay time.Duration
}

func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "sonicstream:lock:"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Redis{Client: client, Prefix: prefix, TTL: ttl, RetryDelay: 100 * time.Millisecond}
}

func (r *Redis) TryLock(ctx context.Context, key string) (func(), bool, error) {
	k := r.Prefix + key
	token := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, k, token, r.TTL).Result()
	if err != nil {
		return nil, false, wrapRedisErr("setnx", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return r.hold(k, token), true, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	delay := r.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for {
		release, ok, err := r.TryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (r *Redis) hold(k, token string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.TTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), r.TTL/3)
				n, err := refreshScript.Run(ctx, r.Client, []string{k}, token, r.TTL.Milliseconds()).Int()
				cancel()
				if err != nil {
					slog.Warn("name lock refresh failed", "key", k, "error", err)
					continue
				}
				if n == 0 {
					slog.Warn("name lock lost before release", "key", k)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := unlockScript.Run(ctx, r.Client, []string{k}, token).Err(); err != nil {
				slog.Warn("failed to release name lock", "key", k, "error", err)
			}
		})
	}
}

func wrapRedisErr(op, key string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) {
		return faults.Wrap(faults.ErrStoreUnavailable, "namelock", op, key, err)
	}
	return fmt.Errorf("namelock: %s %s: %w", op, key, err)
}

var _ Locker = (*Redis)(nil)
