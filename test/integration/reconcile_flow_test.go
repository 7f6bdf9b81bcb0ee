package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/trellis/pkg/inventory"
	"github.com/Ramsey-B/trellis/pkg/matching"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/sessioncache"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// TestReconcileFlow exercises the full fetch, parse, match and cache
// pipeline against an in-memory feed server and catalog.
func TestReconcileFlow(t *testing.T) {
	feed := `{
		"inventory_transfer_items": [
			{"product_name": "acme blue dream wax 1g", "vendor": "Acme", "quantity": "10"},
			{"product_name": "Acme BlueDream Wax Jar 1g"},
			{"product_name": "Glassware Display Stand"},
			{"vendor": "nameless"}
		]
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(feed))
	}))
	defer server.Close()

	catalog := []models.Product{
		{
			ID:              "p-blue-dream",
			TenantID:        "test-tenant",
			DisplayName:     "Acme - Blue Dream Wax - 1g",
			Vendor:          "Acme",
			StrainID:        "s-blue-dream",
			LineageSnapshot: models.LineageHybrid,
		},
		{
			ID:              "p-sunset",
			TenantID:        "test-tenant",
			DisplayName:     "Acme - Sunset Sherbet Cartridge - 0.5g",
			Vendor:          "Acme",
			StrainID:        "s-sunset",
			LineageSnapshot: models.LineageIndica,
		},
	}

	ctx := context.Background()
	logger := testLogger()

	// fetch + parse
	client := inventory.NewClient(inventory.DefaultConfig(), logger)
	body, err := client.Fetch(ctx, server.URL)
	require.NoError(t, err)

	parsed, err := inventory.Parse(body)
	require.NoError(t, err)
	require.Len(t, parsed.Records, 3)
	assert.Equal(t, 1, parsed.SkippedCount)

	// index + match
	occurrences := map[string]int{"s-blue-dream": 1, "s-sunset": 1}
	idx := matching.NewIndex(catalog, occurrences, matching.DefaultFallbackScanLimit)
	engine := matching.NewEngine(matching.DefaultConfig(), logger)

	run := engine.Match(ctx, parsed.Records, idx)
	require.Len(t, run.Results, 3)

	exact := run.Results[0]
	require.True(t, exact.Matched())
	assert.Equal(t, models.StrategyExact, exact.Strategy)
	assert.Equal(t, "p-blue-dream", *exact.ProductID)
	assert.Equal(t, models.LineageHybrid, *exact.Lineage)

	fuzzy := run.Results[1]
	require.True(t, fuzzy.Matched())
	assert.Equal(t, models.StrategyWordOverlap, fuzzy.Strategy)
	assert.Equal(t, "p-blue-dream", *fuzzy.ProductID)
	assert.Less(t, fuzzy.Confidence, exact.Confidence)

	unmatched := run.Results[2]
	assert.False(t, unmatched.Matched())
	assert.Equal(t, models.StrategyNone, unmatched.Strategy)

	assert.Equal(t, 2, run.MatchedCount)
	assert.Equal(t, 1, run.UnmatchedCount)

	// cache the run and read it back through the handle
	cache := sessioncache.NewMemoryCache(30 * time.Minute)
	handle, err := cache.Put(ctx, "test-tenant", run)
	require.NoError(t, err)

	entry, err := cache.Get(ctx, "test-tenant", handle)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, run.MatchedCount, entry.Run.MatchedCount)
	assert.Len(t, entry.Run.Results, 3)

	// other tenants cannot see the run
	foreign, err := cache.Get(ctx, "other-tenant", handle)
	require.NoError(t, err)
	assert.Nil(t, foreign)

	// clearing the handle removes the run
	deleted, err := cache.Delete(ctx, "test-tenant", handle)
	require.NoError(t, err)
	assert.True(t, deleted)

	entry, err = cache.Get(ctx, "test-tenant", handle)
	require.NoError(t, err)
	assert.Nil(t, entry)
}
