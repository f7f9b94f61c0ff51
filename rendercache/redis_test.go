package rendercache

import (
	"context"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedis connects to FOLIOSERVE_TEST_REDIS or skips the test.
func newTestRedis(t *testing.T) *Redis {
	t.Helper()

	addr := os.Getenv("FOLIOSERVE_TEST_REDIS")
	if addr == "" {
		t.Skip("FOLIOSERVE_TEST_REDIS not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := "folioserve-test:" + strconv.FormatInt(time.Now().UnixNano(), 10) + ":"
	return NewRedis(client, prefix)
}

func TestRedis_GetOrRender(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()
	var calls int32

	b, err := r.GetOrRender(ctx, "page", time.Minute, constRender("body", &calls))
	require.NoError(t, err)
	assert.Equal(t, "body", string(b))

	b, err = r.GetOrRender(ctx, "page", time.Minute, constRender("other", &calls))
	require.NoError(t, err)
	assert.Equal(t, "body", string(b))
	assert.Equal(t, int32(1), calls)

	n, err := r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, r.Invalidate(ctx, "page"))
	n, err = r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRedis_ConcurrentRenderOnce(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	var calls int32
	render := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return []byte("shared"), nil
	}

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := r.GetOrRender(ctx, "page", time.Minute, render)
			assert.NoError(t, err)
			assert.Equal(t, "shared", string(b))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls)
}
