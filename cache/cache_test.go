package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unschooling-payment-service/cache"
)

func newTestRedisStore(t *testing.T) (*cache.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return cache.NewRedisStore(client, "payments:", time.Hour), mr
}

func TestRedisStore_ReceiptIndex(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	_, ok, err := store.GetOrderID(ctx, "rcpt_1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.PutOrderID(ctx, "rcpt_1", "order_1"))
	id, ok, err := store.GetOrderID(ctx, "rcpt_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "order_1", id)
	assert.True(t, mr.Exists("payments:receipt:rcpt_1"))

	mr.FastForward(2 * time.Hour)
	_, ok, err = store.GetOrderID(ctx, "rcpt_1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_LockExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	release, err := store.Acquire(ctx, "rcpt_1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("payments:lock:rcpt_1"))

	shortCtx, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	_, err = store.Acquire(shortCtx, "rcpt_1", 30*time.Second)
	assert.True(t, errors.Is(err, cache.ErrLockTimeout))

	release()
	assert.False(t, mr.Exists("payments:lock:rcpt_1"))

	release2, err := store.Acquire(ctx, "rcpt_1", 30*time.Second)
	require.NoError(t, err)
	release2()
}

func TestRedisStore_ReleaseDoesNotDropForeignLock(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	release, err := store.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	// lock expires and another holder takes it
	mr.FastForward(2 * time.Second)
	release2, err := store.Acquire(ctx, "k", 30*time.Second)
	require.NoError(t, err)

	release()
	assert.True(t, mr.Exists("payments:lock:k"))
	release2()
	assert.False(t, mr.Exists("payments:lock:k"))
}

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	locker := cache.NewLocalLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), "user-1|grow|monthly", 0)
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
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestLocalLocker_DifferentKeysIndependent(t *testing.T) {
	locker := cache.NewLocalLocker()
	r1, err := locker.Acquire(context.Background(), "a", 0)
	require.NoError(t, err)
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r2, err := locker.Acquire(ctx, "b", 0)
	require.NoError(t, err)
	r2()

	_, err = locker.Acquire(ctx, "a", 0)
	assert.True(t, errors.Is(err, cache.ErrLockTimeout))
}
