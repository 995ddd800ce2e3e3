package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a lock could not be taken before ctx ended.
var ErrLockTimeout = errors.New("lock not acquired")

const lockPollInterval = 50 * time.Millisecond

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisClient parses redisURL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisStore holds cross-instance idempotency state: short-lived locks and
// a receipt -> order id index.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	indexTTL time.Duration
}

// NewRedisStore creates a RedisStore. Keys are namespaced under prefix.
func NewRedisStore(client *redis.Client, prefix string, indexTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, indexTTL: indexTTL}
}

func (s *RedisStore) lockKey(key string) string {
	return s.prefix + "lock:" + key
}

func (s *RedisStore) receiptKey(receipt string) string {
	return s.prefix + "receipt:" + receipt
}

// Acquire blocks until key is locked or ctx ends. The lock expires after ttl
// even if release is never called.
func (s *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	k := s.lockKey(key)

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := s.client.SetNX(ctx, k, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return func() {
				rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(rctx, s.client, []string{k}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-ticker.C:
		}
	}
}

// GetOrderID looks up the order created for receipt.
func (s *RedisStore) GetOrderID(ctx context.Context, receipt string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.receiptKey(receipt)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// PutOrderID records receipt -> orderID for the index TTL.
func (s *RedisStore) PutOrderID(ctx context.Context, receipt, orderID string) error {
	return s.client.Set(ctx, s.receiptKey(receipt), orderID, s.indexTTL).Err()
}
