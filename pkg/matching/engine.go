package matching

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/normalizers"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

const (
	// DefaultOverlapThreshold is the minimum word-overlap ratio for the
	// overlap tiers. Tunable up for precision, down for recall.
	DefaultOverlapThreshold = 0.5

	// DefaultFallbackScanLimit bounds the global fallback tier.
	DefaultFallbackScanLimit = 200

	// DefaultWorkerCount is the matching parallelism across records.
	DefaultWorkerCount = 4
)

// Per-tier confidences. Monotonically decreasing by tier.
const (
	confidenceExact       = 1.0
	confidenceContainment = 0.85
	confidenceWordOverlap = 0.7
	confidenceFallback    = 0.5
)

// Config tunes one Engine instance.
type Config struct {
	OverlapThreshold  float64
	FallbackScanLimit int
	WorkerCount       int
}

// DefaultConfig returns the default matching configuration
func DefaultConfig() Config {
	return Config{
		OverlapThreshold:  DefaultOverlapThreshold,
		FallbackScanLimit: DefaultFallbackScanLimit,
		WorkerCount:       DefaultWorkerCount,
	}
}

// Engine runs the staged strategy pipeline. Strategies are tried in order,
// first success wins; the pipeline only reads the prebuilt index, so a run
// is deterministic for a given catalog and record list.
type Engine struct {
	config Config
	logger ectologger.Logger
}

// NewEngine creates a new match engine
func NewEngine(config Config, logger ectologger.Logger) *Engine {
	if config.OverlapThreshold <= 0 || config.OverlapThreshold > 1 {
		config.OverlapThreshold = DefaultOverlapThreshold
	}
	if config.FallbackScanLimit <= 0 {
		config.FallbackScanLimit = DefaultFallbackScanLimit
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultWorkerCount
	}
	return &Engine{
		config: config,
		logger: logger,
	}
}

// Threshold returns the engine's overlap threshold.
func (e *Engine) Threshold() float64 {
	return e.config.OverlapThreshold
}

// Match reconciles the external records against the indexed catalog.
// Records with no usable product name are counted as skipped. No match is
// a valid terminal state, not an error.
func (e *Engine) Match(ctx context.Context, records []models.ExternalRecord, idx *Index) *models.MatchRun {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Match")
	defer span.End()

	run := &models.MatchRun{
		Results:   make([]models.MatchResult, len(records)),
		StartedAt: time.Now().UTC(),
	}

	// Records are independent during the matching pass; parallelize with a
	// bounded worker pool, writing each result to its own slot so output
	// order matches input order.
	workers := e.config.WorkerCount
	if workers > len(records) {
		workers = len(records)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				run.Results[i] = e.matchRecord(records[i], idx)
			}
		}()
	}

	for i := range records {
		select {
		case <-ctx.Done():
			// Mark remaining records unmatched rather than returning a
			// partially-populated run.
			for j := i; j < len(records); j++ {
				run.Results[j] = noMatch(records[j])
			}
			close(jobs)
			wg.Wait()
			run.CompletedAt = time.Now().UTC()
			e.tally(run)
			return run
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	run.CompletedAt = time.Now().UTC()
	e.tally(run)

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"records":   len(records),
		"matched":   run.MatchedCount,
		"unmatched": run.UnmatchedCount,
		"skipped":   run.SkippedCount,
	}).Info("Completed match run")

	return run
}

func (e *Engine) tally(run *models.MatchRun) {
	for i := range run.Results {
		result := &run.Results[i]
		switch {
		case result.Matched():
			run.MatchedCount++
		case result.Strategy == models.StrategyNone && result.ExternalRecord.ProductName == "":
			run.SkippedCount++
		default:
			run.UnmatchedCount++
		}
		metrics.MatchesByStrategy.WithLabelValues(string(result.Strategy)).Inc()
	}
}

func noMatch(record models.ExternalRecord) models.MatchResult {
	return models.MatchResult{
		ExternalRecord: record,
		Strategy:       models.StrategyNone,
		Confidence:     0,
	}
}

func matched(record models.ExternalRecord, row *indexedProduct, strategy models.MatchStrategy, confidence float64) models.MatchResult {
	lineage := row.product.LineageSnapshot
	return models.MatchResult{
		ExternalRecord: record,
		ProductID:      &row.product.ID,
		ProductName:    &row.product.DisplayName,
		Lineage:        &lineage,
		Strategy:       strategy,
		Confidence:     confidence,
	}
}

// matchRecord tries the strategy tiers in order for one record.
func (e *Engine) matchRecord(record models.ExternalRecord, idx *Index) models.MatchResult {
	normalized := normalizers.Normalize(record.ProductName)
	if normalized.Key == "" {
		record.ProductName = ""
		return noMatch(record)
	}
	vendorToken := vendorTokenFor(record.Vendor, normalized)

	// A name-derived token is a guess. When the record carries no explicit
	// vendor and its guessed token matches no catalog bucket, treat the
	// record as vendor-less so it can reach the global fallback instead of
	// being rejected on a token that never named a vendor. An explicit
	// vendor absent from the catalog still means no match.
	if record.Vendor == "" && len(idx.Bucket(vendorToken)) == 0 {
		vendorToken = ""
	}

	// Tier 1: exact key match
	if row, ok := idx.exact[normalized.Key]; ok {
		return matched(record, row, models.StrategyExact, confidenceExact)
	}

	// Tier 2: containment, vendor-constrained when both tokens are present
	if row := e.containment(normalized, vendorToken, idx); row != nil {
		return matched(record, row, models.StrategyContainment, confidenceContainment)
	}

	// Tier 3: word overlap within the vendor bucket
	if vendorToken != "" {
		if row := e.bestOverlap(normalized.Words, idx.Bucket(vendorToken)); row != nil {
			return matched(record, row, models.StrategyWordOverlap, confidenceWordOverlap)
		}
		return noMatch(record)
	}

	// Tier 4: bounded global fallback for vendor-less records
	if row := e.bestOverlap(normalized.Words, idx.fallback); row != nil {
		return matched(record, row, models.StrategyFallback, confidenceFallback)
	}

	return noMatch(record)
}

// containment returns the first candidate whose key contains, or is
// contained by, the record key. Candidates come from the record's vendor
// bucket when both sides carry a token; a missing token on either side
// relaxes the constraint to the whole catalog rather than over-rejecting
// unlabeled vendors.
func (e *Engine) containment(normalized normalizers.NormalizedName, vendorToken string, idx *Index) *indexedProduct {
	candidates := idx.all
	if vendorToken != "" {
		candidates = idx.Bucket(vendorToken)
	}

	for _, row := range candidates {
		if vendorToken != "" && row.vendorToken == "" {
			continue
		}
		if strings.Contains(row.normalized.Key, normalized.Key) || strings.Contains(normalized.Key, row.normalized.Key) {
			return row
		}
	}
	return nil
}

// bestOverlap returns the candidate with the highest overlap ratio at or
// above the threshold. Ties keep the earlier candidate so runs stay
// deterministic.
func (e *Engine) bestOverlap(words normalizers.WordSet, candidates []*indexedProduct) *indexedProduct {
	var best *indexedProduct
	bestRatio := 0.0

	for _, row := range candidates {
		ratio := words.Overlap(row.normalized.Words)
		if ratio >= e.config.OverlapThreshold && ratio > bestRatio {
			best = row
			bestRatio = ratio
		}
	}
	return best
}
