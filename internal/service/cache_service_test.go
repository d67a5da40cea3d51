package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheServiceRecordsHitAndMissMetrics(t *testing.T) {
	store := &memoryCache{}
	metrics := NewMetricsService()
	cache := NewCacheService(store, metrics, time.Minute, nil, true)

	var out string
	hit, err := cache.Get(context.Background(), "catalog:facets", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Set(context.Background(), "catalog:facets", "cached", 0))

	hit, err = cache.Get(context.Background(), "catalog:facets", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "cached", out)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheMisses))
	assert.Equal(t, 0.5, testutil.ToFloat64(metrics.cacheHitRatio))
}

func TestCacheServiceDisabledSkipsStore(t *testing.T) {
	store := &memoryCache{}
	cache := NewCacheService(store, nil, time.Minute, nil, false)

	assert.False(t, cache.Enabled())

	var out string
	hit, err := cache.Get(context.Background(), "catalog:facets", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, cache.Set(context.Background(), "catalog:facets", "value", 0))
	require.NoError(t, cache.Invalidate(context.Background(), "catalog:*"))

	assert.Zero(t, store.gets)
	assert.Zero(t, store.sets)
}

func TestNilCacheServiceIsInert(t *testing.T) {
	var cache *CacheService

	assert.False(t, cache.Enabled())

	var out string
	hit, err := cache.Get(context.Background(), "stats:dashboard", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, cache.Set(context.Background(), "stats:dashboard", "value", 0))
	require.NoError(t, cache.Invalidate(context.Background(), "stats:*"))
}

func TestCacheServiceSetUsesDefaultTTL(t *testing.T) {
	store := &ttlRecordingStore{}
	cache := NewCacheService(store, nil, 5*time.Minute, nil, true)

	require.NoError(t, cache.Set(context.Background(), "catalog:facets", "value", 0))
	assert.Equal(t, 5*time.Minute, store.lastTTL)

	require.NoError(t, cache.Set(context.Background(), "catalog:facets", "value", time.Second))
	assert.Equal(t, time.Second, store.lastTTL)
}

type ttlRecordingStore struct {
	memoryCache
	lastTTL time.Duration
}

func (s *ttlRecordingStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.lastTTL = ttl
	return s.memoryCache.Set(ctx, key, value, ttl)
}
