// Package reconcile orchestrates one reconciliation run: fetch the
// external feed, index the catalog, run the staged matcher and park the
// result in the session cache.
package reconcile

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/trellis/internal/repositories/product"
	"github.com/Ramsey-B/trellis/pkg/events"
	"github.com/Ramsey-B/trellis/pkg/inventory"
	"github.com/Ramsey-B/trellis/pkg/matching"
	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/sessioncache"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// DefaultSampleSize is how many matches the summary response inlines.
const DefaultSampleSize = 10

// Service runs reconciliations.
type Service struct {
	products    *product.Repository
	fetcher     *inventory.Client
	cache       sessioncache.Cache
	emitter     events.Emitter
	logger      ectologger.Logger
	matchConfig matching.Config
	sampleSize  int
}

// NewService creates a new reconciliation service
func NewService(
	products *product.Repository,
	fetcher *inventory.Client,
	cache sessioncache.Cache,
	emitter events.Emitter,
	logger ectologger.Logger,
	matchConfig matching.Config,
	sampleSize int,
) *Service {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Service{
		products:    products,
		fetcher:     fetcher,
		cache:       cache,
		emitter:     emitter,
		logger:      logger,
		matchConfig: matchConfig,
		sampleSize:  sampleSize,
	}
}

// Reconcile fetches the feed at req.URL and matches it against the current
// catalog. The full result set goes into the session cache; the response
// carries only the handle, counts and a small sample.
func (s *Service) Reconcile(ctx context.Context, tenantID string, req models.ReconcileRequest) (*models.ReconcileResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Service.Reconcile")
	defer span.End()

	start := time.Now()
	status := "error"
	defer func() {
		metrics.ReconciliationRunsTotal.WithLabelValues(tenantID, status).Inc()
		metrics.ReconciliationDuration.WithLabelValues(tenantID).Observe(time.Since(start).Seconds())
	}()

	body, err := s.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	parsed, err := inventory.Parse(body)
	if err != nil {
		return nil, err
	}

	catalog, err := s.products.ListAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	// Occurrence counts order the bounded fallback tier.
	occurrences := make(map[string]int, len(catalog))
	for i := range catalog {
		occurrences[catalog[i].StrainID]++
	}

	config := s.matchConfig
	if req.OverlapThreshold != nil {
		config.OverlapThreshold = *req.OverlapThreshold
	}
	engine := matching.NewEngine(config, s.logger)

	idx := matching.NewIndex(catalog, occurrences, config.FallbackScanLimit)
	run := engine.Match(ctx, parsed.Records, idx)
	run.SkippedCount += parsed.SkippedCount

	handle, err := s.cache.Put(ctx, tenantID, run)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to store reconciliation result")
	}

	status = "ok"
	s.emitter.EmitReconciliationCompleted(ctx, tenantID, handle, run)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"cache_handle": handle,
		"records":      len(parsed.Records),
		"matched":      run.MatchedCount,
		"unmatched":    run.UnmatchedCount,
		"skipped":      run.SkippedCount,
		"catalog_size": idx.Size(),
	}).Info("Completed reconciliation run")

	return &models.ReconcileResponse{
		CacheHandle:    handle,
		MatchedCount:   run.MatchedCount,
		UnmatchedCount: run.UnmatchedCount,
		SkippedCount:   run.SkippedCount,
		SampleMatches:  sampleMatches(run, s.sampleSize),
	}, nil
}

// sampleMatches returns the first n matched results in run order.
func sampleMatches(run *models.MatchRun, n int) []models.MatchResult {
	sample := make([]models.MatchResult, 0, n)
	for _, result := range run.Results {
		if !result.Matched() {
			continue
		}
		sample = append(sample, result)
		if len(sample) == n {
			break
		}
	}
	return sample
}

// GetRun returns the cached run for a handle.
func (s *Service) GetRun(ctx context.Context, tenantID, handle string) (*sessioncache.Entry, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Service.GetRun")
	defer span.End()

	entry, err := s.cache.Get(ctx, tenantID, handle)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read reconciliation result")
	}
	if entry == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "no reconciliation result for handle %q", handle)
	}
	return entry, nil
}

// ClearRun evicts the cached run for a handle.
func (s *Service) ClearRun(ctx context.Context, tenantID, handle string) error {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Service.ClearRun")
	defer span.End()

	removed, err := s.cache.Delete(ctx, tenantID, handle)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear reconciliation result")
	}
	if !removed {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "no reconciliation result for handle %q", handle)
	}
	return nil
}
