package rendercache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "folioserve:"
	lockTTL       = 30 * time.Second
	waitTimeout   = 30 * time.Second
)

var releaseLock = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Redis is a Cache shared by every instance pointing at the same Redis. A
// SETNX lock per key makes one instance render while the others poll for the
// result.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis returns a Redis cache using client. Keys are stored under
// prefix+"page:" and locks under prefix+"lock:".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) pageKey(key string) string { return r.prefix + "page:" + key }
func (r *Redis) lockKey(key string) string { return r.prefix + "lock:" + key }

// GetOrRender implements Cache.
func (r *Redis) GetOrRender(ctx context.Context, key string, ttl time.Duration, render RenderFunc) ([]byte, error) {
	pageKey := r.pageKey(key)

	b, err := r.client.Get(ctx, pageKey).Bytes()
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	lockKey := r.lockKey(key)
	owner := strconv.FormatInt(time.Now().UnixNano(), 10)

	acquired, err := r.client.SetNX(ctx, lockKey, owner, lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire render lock: %w", err)
	}

	if !acquired {
		return r.wait(ctx, pageKey, lockKey)
	}

	defer releaseLock.Run(context.Background(), r.client, []string{lockKey}, owner)

	b, err = render(ctx)
	if err != nil {
		return nil, fmt.Errorf("render failed: %w", err)
	}

	if err := r.client.Set(ctx, pageKey, b, ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store rendered page: %w", err)
	}

	return b, nil
}

// wait polls for the page another instance is rendering, backing off from
// 10ms up to 500ms, until it appears, the lock vanishes or waitTimeout passes.
func (r *Redis) wait(ctx context.Context, pageKey, lockKey string) ([]byte, error) {
	backoff := 10 * time.Millisecond
	deadline := time.Now().Add(waitTimeout)

	for {
		b, err := r.client.Get(ctx, pageKey).Bytes()
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis get error: %w", err)
		}

		exists, err := r.client.Exists(ctx, lockKey).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check render lock: %w", err)
		}
		if exists == 0 {
			// The lock may have been released right after the page was set.
			if b, err := r.client.Get(ctx, pageKey).Bytes(); err == nil {
				return b, nil
			}
			return nil, errors.New("render by lock owner failed")
		}

		if time.Now().After(deadline) {
			return nil, errors.New("timeout waiting for rendered page")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, 500*time.Millisecond)
	}
}

// Invalidate implements Cache.
func (r *Redis) Invalidate(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.pageKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete rendered page: %w", err)
	}

	return nil
}

// Len implements Cache by scanning the page namespace.
func (r *Redis) Len(ctx context.Context) (int, error) {
	n := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"page:*", 0).Iterator()
	for iter.Next(ctx) {
		n++
	}

	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan rendered pages: %w", err)
	}

	return n, nil
}
