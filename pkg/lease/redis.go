package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"analytics-chat-be/internal/pkg/logger"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lease:"

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Refreshes the expiry only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var errHeld = errors.New("lease held")

type RedisLocker struct {
	rdb    *redis.Client
	logger logger.ILogger
}

var _ Locker = &RedisLocker{}

func NewRedisLocker(rdb *redis.Client, log logger.ILogger) *RedisLocker {
	return &RedisLocker{rdb: rdb, logger: log}
}

// Acquire polls SET NX with exponential backoff. It gives up when ctx is done
// or after ttl has elapsed, whichever comes first.
func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	redisKey := keyPrefix + key

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	_, err := backoff.Retry(ctx, func() (bool, error) {
		ok, err := r.rdb.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			return false, backoff.Permanent(err)
		}
		if !ok {
			return false, errHeld
		}
		return true, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(ttl))
	if err != nil {
		r.logger.Warn("Lease", "Failed to acquire lease", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: %s: %v", ErrLeaseNotAcquired, key, err)
	}

	r.logger.Debug("Lease", "Lease acquired", map[string]interface{}{"key": key})
	return &redisLease{key: key, redisKey: redisKey, token: token, locker: r}, nil
}

type redisLease struct {
	key      string
	redisKey string
	token    string
	locker   *RedisLocker
}

func (l *redisLease) Key() string { return l.key }

func (l *redisLease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.locker.rdb, []string{l.redisKey}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lease %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLeaseLost, l.key)
	}
	return nil
}

func (l *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.locker.rdb, []string{l.redisKey}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	if n == 0 {
		l.locker.logger.Debug("Lease", "Lease already released or expired", map[string]interface{}{"key": l.key})
	}
	return nil
}
