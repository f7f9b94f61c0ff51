package rendercache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constRender(b string, calls *int32) RenderFunc {
	return func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(calls, 1)
		return []byte(b), nil
	}
}

func TestMemory_GetOrRender(t *testing.T) {
	ctx := context.Background()

	t.Run("miss renders and hit does not", func(t *testing.T) {
		m := NewMemory(time.Minute)
		var calls int32

		b, err := m.GetOrRender(ctx, "page", 0, constRender("one", &calls))
		require.NoError(t, err)
		assert.Equal(t, "one", string(b))

		b, err = m.GetOrRender(ctx, "page", 0, constRender("two", &calls))
		require.NoError(t, err)
		assert.Equal(t, "one", string(b))
		assert.Equal(t, int32(1), calls)
	})

	t.Run("render error is returned and not stored", func(t *testing.T) {
		m := NewMemory(time.Minute)

		_, err := m.GetOrRender(ctx, "page", 0, func(context.Context) ([]byte, error) {
			return nil, assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		n, err := m.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("returned slices are independent copies", func(t *testing.T) {
		m := NewMemory(time.Minute)
		var calls int32

		first, err := m.GetOrRender(ctx, "page", 0, constRender("abc", &calls))
		require.NoError(t, err)
		first[0] = 'X'

		second, err := m.GetOrRender(ctx, "page", 0, constRender("zzz", &calls))
		require.NoError(t, err)
		assert.Equal(t, "abc", string(second))
	})

	t.Run("ttl expires entries", func(t *testing.T) {
		m := NewMemory(time.Minute)
		var calls int32

		_, err := m.GetOrRender(ctx, "page", 10*time.Millisecond, constRender("v", &calls))
		require.NoError(t, err)
		time.Sleep(30 * time.Millisecond)
		_, err = m.GetOrRender(ctx, "page", 10*time.Millisecond, constRender("v", &calls))
		require.NoError(t, err)

		assert.Equal(t, int32(2), calls)
	})

	t.Run("concurrent misses render once", func(t *testing.T) {
		m := NewMemory(time.Minute)
		var calls int32
		render := func(context.Context) ([]byte, error) {
			atomic.AddInt32(&calls, 1)
			time.Sleep(20 * time.Millisecond)
			return []byte("shared"), nil
		}

		const n = 10
		var wg sync.WaitGroup
		results := make([][]byte, n)
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], errs[i] = m.GetOrRender(ctx, "page", 0, render)
			}()
		}
		wg.Wait()

		for i := range n {
			require.NoError(t, errs[i])
			assert.Equal(t, "shared", string(results[i]))
		}
		assert.Equal(t, int32(1), calls)
	})
}

func TestMemory_InvalidateAndLen(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	var calls int32

	_, _ = m.GetOrRender(ctx, "a", 0, constRender("v", &calls))
	_, _ = m.GetOrRender(ctx, "b", 0, constRender("v", &calls))

	n, err := m.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, m.Invalidate(ctx, "a"))
	require.NoError(t, m.Invalidate(ctx, "missing"))

	n, err = m.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, m.Invalidate(cancelled, "b"), context.Canceled)
	_, err = m.Len(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNone(t *testing.T) {
	ctx := context.Background()
	c := NewNone()
	var calls int32

	for range 3 {
		b, err := c.GetOrRender(ctx, "page", 0, constRender("v", &calls))
		require.NoError(t, err)
		assert.Equal(t, "v", string(b))
	}
	assert.Equal(t, int32(3), calls)

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, c.Invalidate(ctx, "page"))
}

func TestNew(t *testing.T) {
	t.Run("defaults to memory", func(t *testing.T) {
		c, err := New(Options{})
		require.NoError(t, err)
		assert.IsType(t, &Memory{}, c)
	})

	t.Run("none", func(t *testing.T) {
		c, err := New(Options{Backend: BackendNone})
		require.NoError(t, err)
		assert.Equal(t, NewNone(), c)
	})

	t.Run("redis needs an address", func(t *testing.T) {
		_, err := New(Options{Backend: BackendRedis})
		assert.Error(t, err)
	})

	t.Run("redis with address", func(t *testing.T) {
		c, err := New(Options{Backend: BackendRedis, RedisAddr: "127.0.0.1:6379"})
		require.NoError(t, err)
		assert.IsType(t, &Redis{}, c)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := New(Options{Backend: "memcached"})
		assert.Error(t, err)
	})
}

func TestInterfaces(t *testing.T) {
	var _ Cache = (*Memory)(nil)
	var _ Cache = (*Redis)(nil)
	var _ Cache = none{}
}
