package locker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-engine/internal/config"
)

func setupTestLocker(t *testing.T, cfg config.Locker) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	client, err := InitClient(context.Background(), config.RedisConnection{AddressRedis: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRedis(client, cfg, log), mr
}

func TestRedis_LockAndUnlock(t *testing.T) {
	l, mr := setupTestLocker(t, config.Locker{TTL: time.Second, RetryInterval: 5 * time.Millisecond, WaitTimeout: time.Second})

	unlock, err := l.Lock(context.Background(), "subscription:u1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:subscription:u1"))
	assert.Equal(t, time.Second, mr.TTL("lock:subscription:u1"))

	unlock()
	assert.False(t, mr.Exists("lock:subscription:u1"))
}

func TestRedis_WaitTimeout(t *testing.T) {
	l, _ := setupTestLocker(t, config.Locker{TTL: time.Minute, RetryInterval: 5 * time.Millisecond, WaitTimeout: 30 * time.Millisecond})

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	_, err = l.Lock(context.Background(), "k")
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestRedis_UnlockDoesNotReleaseForeignLock(t *testing.T) {
	l, mr := setupTestLocker(t, config.Locker{TTL: time.Second, RetryInterval: 5 * time.Millisecond, WaitTimeout: time.Second})

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// Блокировка истекла и перехвачена другим владельцем.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("lock:k", "other-owner"))

	unlock()
	got, err := mr.Get("lock:k")
	require.NoError(t, err)
	assert.Equal(t, "other-owner", got)
}

func TestRedis_MutualExclusion(t *testing.T) {
	l, _ := setupTestLocker(t, config.Locker{TTL: 5 * time.Second, RetryInterval: time.Millisecond, WaitTimeout: 5 * time.Second})

	var (
		counter int
		inside  atomic.Int32
		wg      sync.WaitGroup
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "k")
			if !assert.NoError(t, err) {
				return
			}
			assert.EqualValues(t, 1, inside.Add(1))
			counter++
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, counter)
}

func TestInitClient_InvalidAddr(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := InitClient(ctx, config.RedisConnection{AddressRedis: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	assert.Error(t, err)
}
