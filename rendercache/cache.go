// Package rendercache stores rendered response buffers so a page is built at
// most once per key, also across concurrent callers and, with the redis
// backend, across server instances sharing one Redis.
package rendercache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RenderFunc produces the bytes for a key on a cache miss.
type RenderFunc func(ctx context.Context) ([]byte, error)

// Cache returns rendered buffers, calling a RenderFunc only on a miss.
// Implementations are safe for concurrent use and never return a slice they
// keep a reference to; callers may hold the result for the process lifetime.
type Cache interface {
	// GetOrRender returns the cached bytes for key, or renders, stores and
	// returns them. Concurrent misses for the same key render once.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key
	//   - ttl: Time-to-live of a freshly rendered entry; 0 means no expiry
	//   - render: Called on a miss
	//
	// Returns:
	//   - The cached or freshly rendered bytes
	//   - An error if the backend or render fails; nothing is stored then
	GetOrRender(ctx context.Context, key string, ttl time.Duration, render RenderFunc) ([]byte, error)

	// Invalidate drops key. Dropping a missing key is not an error.
	Invalidate(ctx context.Context, key string) error

	// Len returns the number of cached entries.
	Len(ctx context.Context) (int, error)
}

// Backend names accepted by New.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// CleanupInterval for the memory backend; 0 means 10 minutes.
	CleanupInterval time.Duration
	// Redis settings, used by the redis backend only.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Prefix namespaces every redis key; empty means "folioserve:".
	Prefix string
}

// New builds the Cache named by opts.Backend. An empty backend means memory.
func New(opts Options) (Cache, error) {
	switch opts.Backend {
	case BackendNone:
		return NewNone(), nil
	case "", BackendMemory:
		interval := opts.CleanupInterval
		if interval <= 0 {
			interval = 10 * time.Minute
		}
		return NewMemory(interval), nil
	case BackendRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("redis backend requires an address")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		return NewRedis(client, opts.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown render cache backend %q", opts.Backend)
	}
}

type none struct{}

// NewNone returns a Cache that stores nothing and renders on every call.
func NewNone() Cache {
	return none{}
}

func (none) GetOrRender(ctx context.Context, _ string, _ time.Duration, render RenderFunc) ([]byte, error) {
	return render(ctx)
}

func (none) Invalidate(context.Context, string) error { return nil }

func (none) Len(context.Context) (int, error) { return 0, nil }
