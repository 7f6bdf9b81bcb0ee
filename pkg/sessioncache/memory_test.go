package sessioncache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/trellis/pkg/models"
)

func testRun() *models.MatchRun {
	return &models.MatchRun{
		Results: []models.MatchResult{
			{ExternalRecord: models.ExternalRecord{ProductName: "blue dream wax"}, Strategy: models.StrategyExact, Confidence: 1.0},
		},
		MatchedCount: 1,
	}
}

func TestMemoryCache_PutGet(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()

	handle, err := cache.Put(ctx, "tenant-1", testRun())
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	entry, err := cache.Get(ctx, "tenant-1", handle)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, handle, entry.Handle)
	assert.Equal(t, "tenant-1", entry.TenantID)
	assert.Equal(t, 1, entry.Run.MatchedCount)
}

func TestMemoryCache_UnknownHandle(t *testing.T) {
	cache := NewMemoryCache(time.Minute)

	entry, err := cache.Get(context.Background(), "tenant-1", "no-such-handle")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestMemoryCache_TenantIsolation(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()

	handle, err := cache.Put(ctx, "tenant-1", testRun())
	require.NoError(t, err)

	entry, err := cache.Get(ctx, "tenant-2", handle)
	require.NoError(t, err)
	assert.Nil(t, entry)

	deleted, err := cache.Delete(ctx, "tenant-2", handle)
	require.NoError(t, err)
	assert.False(t, deleted)

	// still present for its owner
	entry, err = cache.Get(ctx, "tenant-1", handle)
	require.NoError(t, err)
	assert.NotNil(t, entry)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	current := time.Now()
	cache.now = func() time.Time { return current }
	ctx := context.Background()

	handle, err := cache.Put(ctx, "tenant-1", testRun())
	require.NoError(t, err)

	current = current.Add(30 * time.Second)
	entry, err := cache.Get(ctx, "tenant-1", handle)
	require.NoError(t, err)
	assert.NotNil(t, entry)

	current = current.Add(31 * time.Second)
	entry, err = cache.Get(ctx, "tenant-1", handle)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestMemoryCache_SweepOnWrite(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	current := time.Now()
	cache.now = func() time.Time { return current }
	ctx := context.Background()

	stale, err := cache.Put(ctx, "tenant-1", testRun())
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = cache.Put(ctx, "tenant-1", testRun())
	require.NoError(t, err)

	cache.mu.RLock()
	_, ok := cache.entries[stale]
	cache.mu.RUnlock()
	assert.False(t, ok, "expired entry should be swept on write")
}

func TestMemoryCache_Delete(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()

	handle, err := cache.Put(ctx, "tenant-1", testRun())
	require.NoError(t, err)

	deleted, err := cache.Delete(ctx, "tenant-1", handle)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = cache.Delete(ctx, "tenant-1", handle)
	require.NoError(t, err)
	assert.False(t, deleted)

	entry, err := cache.Get(ctx, "tenant-1", handle)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestMemoryCache_DistinctHandles(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()

	first, err := cache.Put(ctx, "tenant-1", testRun())
	require.NoError(t, err)
	second, err := cache.Put(ctx, "tenant-1", testRun())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
