package sales

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheVersionPerCompany(t *testing.T) {
	ctx := context.Background()
	cache, _ := newRedisCache(t)

	key1, err := cache.BuildKey(ctx, 1, "list")
	require.NoError(t, err)
	assert.Equal(t, "sales:1:list:v1", key1)

	require.NoError(t, cache.Bump(ctx, 1))
	key1, err = cache.BuildKey(ctx, 1, "list")
	require.NoError(t, err)
	assert.Equal(t, "sales:1:list:v2", key1)

	key2, err := cache.BuildKey(ctx, 2, "list")
	require.NoError(t, err)
	assert.Equal(t, "sales:2:list:v1", key2)
}

func TestCacheFetchJSONUsesLoaderOnce(t *testing.T) {
	ctx := context.Background()
	cache, mr := newRedisCache(t)
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return ListResult{Total: 3}, nil
	}

	var first, second ListResult
	require.NoError(t, cache.FetchJSON(ctx, "k", &first, loader))
	require.NoError(t, cache.FetchJSON(ctx, "k", &second, loader))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 3, second.Total)
	assert.Equal(t, time.Minute, mr.TTL("k"))
}

func TestNilCachePassesThrough(t *testing.T) {
	var cache *Cache
	key, err := cache.BuildKey(context.Background(), 5, "sale", "1")
	require.NoError(t, err)
	assert.Equal(t, "sales:5:sale:1", key)
	require.NoError(t, cache.Bump(context.Background(), 5))

	var out ListResult
	require.NoError(t, cache.FetchJSON(context.Background(), key, &out, func(context.Context) (any, error) {
		return ListResult{Total: 1}, nil
	}))
	assert.Equal(t, 1, out.Total)
}

func TestServiceListInvalidatedAfterTransition(t *testing.T) {
	ctx := context.Background()
	cache, _ := newRedisCache(t)
	ts := newTestService()
	ts.cache = cache

	sale := ts.createDraft(t)
	before, err := ts.List(ctx, actor, ListFilter{Limit: 20})
	require.NoError(t, err)
	require.Len(t, before.Sales, 1)
	assert.Equal(t, StatusDraft, before.Sales[0].Status)

	_, err = ts.Confirm(ctx, actor, sale.ID)
	require.NoError(t, err)

	after, err := ts.List(ctx, actor, ListFilter{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, after.Sales[0].Status)
}
