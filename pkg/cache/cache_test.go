package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofetch/geofetch/internal/testutil"
)

type searchResult struct {
	URLs []string `json:"urls"`
}

func newCaches(t *testing.T) map[string]func(now func() time.Time) Cache {
	t.Helper()

	return map[string]func(now func() time.Time) Cache{
		"redis": func(now func() time.Time) Cache {
			_, client := testutil.NewMiniredisClient(t)
			c := NewRedisCache(client, "geofetch")
			c.now = now

			return c
		},
		"memory": func(now func() time.Time) Cache {
			c := NewMemoryCache()
			c.now = now

			return c
		},
	}
}

func TestCacheRoundTrip(t *testing.T) {
	for name, build := range newCaches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := build(time.Now)

			var got searchResult
			hit, err := c.Get(ctx, "esgf:abc", &got)
			require.NoError(t, err)
			assert.False(t, hit)

			want := searchResult{URLs: []string{"https://a/1.nc", "https://b/2.nc"}}
			require.NoError(t, c.Set(ctx, "esgf:abc", want, time.Hour))

			hit, err = c.Get(ctx, "esgf:abc", &got)
			require.NoError(t, err)
			assert.True(t, hit)
			assert.Equal(t, want, got)

			require.NoError(t, c.Invalidate(ctx, "esgf:abc"))
			hit, err = c.Get(ctx, "esgf:abc", &got)
			require.NoError(t, err)
			assert.False(t, hit)
		})
	}
}

func TestCacheExpiry(t *testing.T) {
	for name, build := range newCaches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := time.Date(2024, time.May, 6, 0, 0, 0, 0, time.UTC)
			c := build(func() time.Time { return clock })

			require.NoError(t, c.Set(ctx, "k", []int{1, 2}, time.Minute))

			var got []int
			hit, err := c.Get(ctx, "k", &got)
			require.NoError(t, err)
			assert.True(t, hit)

			clock = clock.Add(2 * time.Minute)

			hit, err = c.Get(ctx, "k", &got)
			require.NoError(t, err)
			assert.False(t, hit)
		})
	}
}

func TestRedisCacheKeyPrefix(t *testing.T) {
	mr, client := testutil.NewMiniredisClient(t)
	c := NewRedisCache(client, "geofetch")

	require.NoError(t, c.Set(context.Background(), "esgf:q", "v", time.Hour))
	assert.True(t, mr.Exists("geofetch:cache:esgf:q"))
	assert.Equal(t, time.Hour, mr.TTL("geofetch:cache:esgf:q"))

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists("geofetch:cache:esgf:q"))
}

func TestRedisCacheCorruptEntry(t *testing.T) {
	mr, client := testutil.NewMiniredisClient(t)
	c := NewRedisCache(client, "geofetch")

	require.NoError(t, mr.Set("geofetch:cache:bad", "not json"))

	var got string
	_, err := c.Get(context.Background(), "bad", &got)
	require.Error(t, err)
}
