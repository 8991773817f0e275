package lease

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"analytics-chat-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	l := NewLocalLocker()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := l.Acquire(context.Background(), "conv-1", time.Minute)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			assert.NoError(t, lease.Release(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
}

func TestLocalLockerDifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocalLocker()
	a, err := l.Acquire(context.Background(), "a", time.Minute)
	require.NoError(t, err)
	defer a.Release(context.Background())

	b, err := l.Acquire(context.Background(), "b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "b", b.Key())
	require.NoError(t, b.Release(context.Background()))
}

func TestLocalLockerTimesOut(t *testing.T) {
	l := NewLocalLocker()
	held, err := l.Acquire(context.Background(), "conv", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "conv", time.Minute)
	assert.True(t, errors.Is(err, ErrLeaseNotAcquired))

	require.NoError(t, held.Release(context.Background()))
	require.NoError(t, held.Release(context.Background()))

	again, err := l.Acquire(context.Background(), "conv", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(context.Background()))
}

func TestLocalLockerForgetsReleasedKeys(t *testing.T) {
	l := NewLocalLocker()
	for i := 0; i < 50; i++ {
		held, err := l.Acquire(context.Background(), uuid.NewString(), time.Minute)
		require.NoError(t, err)
		require.NoError(t, held.Release(context.Background()))
	}
	assert.Equal(t, 0, l.Len())

	held, err := l.Acquire(context.Background(), "conv", time.Minute)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "conv", time.Minute)
	require.Error(t, err)
	assert.Equal(t, 1, l.Len())

	require.NoError(t, held.Release(context.Background()))
	assert.Equal(t, 0, l.Len())
}

type countingLease struct {
	Lease
	mu      sync.Mutex
	extends int
	err     error
}

func (c *countingLease) Extend(context.Context, time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extends++
	return c.err
}

func (c *countingLease) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extends
}

func TestKeepAliveExtendsUntilStopped(t *testing.T) {
	l := &countingLease{err: ErrLeaseLost}
	var failures int32
	stop := KeepAlive(context.Background(), l, 30*time.Millisecond, func(err error) {
		assert.True(t, errors.Is(err, ErrLeaseLost))
		atomic.AddInt32(&failures, 1)
	})

	assert.Eventually(t, func() bool { return l.count() >= 3 }, time.Second, 5*time.Millisecond)
	stop()
	n := l.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, l.count())
	assert.Positive(t, atomic.LoadInt32(&failures))
}

func TestRedisLocker(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	l := NewRedisLocker(rdb, logger.NewNopLogger())
	key := "test-" + uuid.NewString()

	first, err := l.Acquire(context.Background(), key, 2*time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, key, 2*time.Second)
	assert.True(t, errors.Is(err, ErrLeaseNotAcquired))

	require.NoError(t, first.Release(context.Background()))

	second, err := l.Acquire(context.Background(), key, 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release(context.Background()))

	// a kept-alive lease outlives its ttl
	short, err := l.Acquire(context.Background(), key, 300*time.Millisecond)
	require.NoError(t, err)
	stop := KeepAlive(context.Background(), short, 300*time.Millisecond, nil)
	time.Sleep(time.Second)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel2()
	_, err = l.Acquire(ctx2, key, time.Second)
	assert.True(t, errors.Is(err, ErrLeaseNotAcquired))
	stop()
	require.NoError(t, short.Release(context.Background()))
	assert.True(t, errors.Is(short.Extend(context.Background(), time.Second), ErrLeaseLost))
}
