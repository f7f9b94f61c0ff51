package rendercache

import (
	"bytes"
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Memory is an in-process Cache backed by go-cache. A singleflight group
// collapses concurrent misses for one key into a single render.
type Memory struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewMemory returns an empty Memory cache that purges expired entries every
// cleanupInterval.
func NewMemory(cleanupInterval time.Duration) *Memory {
	return &Memory{cache: cache.New(cache.NoExpiration, cleanupInterval)}
}

// GetOrRender implements Cache.
func (m *Memory) GetOrRender(ctx context.Context, key string, ttl time.Duration, render RenderFunc) ([]byte, error) {
	if b, ok := m.lookup(key); ok {
		return bytes.Clone(b), nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		// Another caller may have filled the key while we waited.
		if b, ok := m.lookup(key); ok {
			return b, nil
		}

		b, err := render(ctx)
		if err != nil {
			return nil, err
		}

		b = bytes.Clone(b)
		m.cache.Set(key, b, expiration(ttl))
		return b, nil
	})
	if err != nil {
		return nil, err
	}

	return bytes.Clone(v.([]byte)), nil
}

// Invalidate implements Cache.
func (m *Memory) Invalidate(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.cache.Delete(key)
	return nil
}

// Len implements Cache.
func (m *Memory) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return m.cache.ItemCount(), nil
}

func (m *Memory) lookup(key string) ([]byte, bool) {
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, false
	}

	b, ok := v.([]byte)
	return b, ok
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return cache.NoExpiration
	}

	return ttl
}
