package namelock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/sonicstream/internal/faults"
)

// exerciseLocker checks the contract every Locker implements.
func exerciseLocker(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()

	release, ok, err := l.TryLock(ctx, "My_Song.mp3")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "My_Song.mp3")
	require.NoError(t, err)
	require.False(t, ok, "second TryLock on a held key must fail")

	other, ok, err := l.TryLock(ctx, "Other.mp3")
	require.NoError(t, err)
	require.True(t, ok, "distinct keys are independent")
	other()

	waitCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "My_Song.mp3")
	require.Error(t, err, "Lock on a held key waits until ctx is done")

	release()
	release()

	release, err = l.Lock(ctx, "My_Song.mp3")
	require.NoError(t, err)
	release()
}

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, "shared.mp3")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxInside)
}

func TestLocal(t *testing.T) {
	l := NewLocal()
	exerciseLocker(t, l)
	exerciseMutualExclusion(t, l)
	require.Empty(t, l.slots, "released keys are forgotten")
}

func TestFile(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)
	f.RetryDelay = 10 * time.Millisecond
	exerciseLocker(t, f)
	exerciseMutualExclusion(t, f)

	require.NotEqual(t, f.Path("a.mp3"), f.Path("a(1).mp3"))
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	r := NewRedis(client, "test:lock:", time.Minute)
	r.RetryDelay = 10 * time.Millisecond
	return mr, r
}

func TestRedis(t *testing.T) {
	_, r := newRedis(t)
	exerciseLocker(t, r)
	exerciseMutualExclusion(t, r)
}

func TestRedis_ReleaseOnlyDeletesOwnToken(t *testing.T) {
	mr, r := newRedis(t)
	ctx := context.Background()

	release, ok, err := r.TryLock(ctx, "x.mp3")
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate expiry and takeover by another holder.
	mr.FastForward(2 * time.Minute)
	require.False(t, mr.Exists("test:lock:x.mp3"))
	other, ok, err := r.TryLock(ctx, "x.mp3")
	require.NoError(t, err)
	require.True(t, ok)

	release()
	require.True(t, mr.Exists("test:lock:x.mp3"), "stale release must not drop the new holder's lock")

	other()
	require.False(t, mr.Exists("test:lock:x.mp3"))
}

func TestRedis_UnavailableIsRetryable(t *testing.T) {
	mr, r := newRedis(t)
	mr.Close()

	_, _, err := r.TryLock(context.Background(), "x.mp3")
	require.Error(t, err)
	require.True(t, faults.Retryable(err), "%v", err)
}
