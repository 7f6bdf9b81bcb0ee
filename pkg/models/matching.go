package models

import "time"

// MatchStrategy identifies the tier that produced a match.
type MatchStrategy string

const (
	StrategyExact       MatchStrategy = "exact"
	StrategyContainment MatchStrategy = "containment"
	StrategyWordOverlap MatchStrategy = "word_overlap"
	StrategyFallback    MatchStrategy = "global_fallback"
	StrategyNone        MatchStrategy = "none"
)

// ExternalRecord is one item from the external inventory feed after schema
// validation. Optional fields default to empty strings at the parse
// boundary, not downstream.
type ExternalRecord struct {
	ProductName string `json:"product_name"`
	Vendor      string `json:"vendor,omitempty"`
	Quantity    string `json:"quantity,omitempty"`
}

// MatchResult pairs one external record with its catalog match, if any.
// Transient; lives only in the session cache.
type MatchResult struct {
	ExternalRecord ExternalRecord `json:"external_record"`
	ProductID      *string        `json:"product_id,omitempty"`
	ProductName    *string        `json:"product_name,omitempty"`
	Lineage        *Lineage       `json:"lineage,omitempty"`
	Strategy       MatchStrategy  `json:"strategy"`
	Confidence     float64        `json:"confidence"`
}

// Matched reports whether a catalog row was found for the record.
func (r MatchResult) Matched() bool {
	return r.ProductID != nil
}

// MatchRun is the full output of one reconciliation pass.
type MatchRun struct {
	Results        []MatchResult `json:"results"`
	MatchedCount   int           `json:"matched_count"`
	UnmatchedCount int           `json:"unmatched_count"`
	SkippedCount   int           `json:"skipped_count"` // feed items with no usable product name
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    time.Time     `json:"completed_at"`
}

// ReconcileRequest is the request for running a reconciliation
type ReconcileRequest struct {
	URL              string   `json:"url" validate:"required,url"`
	OverlapThreshold *float64 `json:"overlap_threshold,omitempty" validate:"omitempty,gt=0,lte=1"`
}

// ReconcileResponse is the compact summary returned to the caller. The full
// match set is retrievable only via the cache handle.
type ReconcileResponse struct {
	CacheHandle    string        `json:"cache_handle"`
	MatchedCount   int           `json:"matched_count"`
	UnmatchedCount int           `json:"unmatched_count"`
	SkippedCount   int           `json:"skipped_count"`
	SampleMatches  []MatchResult `json:"sample_matches"`
}

// LineageUpdateRequest is the request for a sovereign or brand-scoped
// lineage change
type LineageUpdateRequest struct {
	StrainName string `json:"strain_name" validate:"required"`
	NewLineage string `json:"new_lineage" validate:"required"`
	Scope      string `json:"scope" validate:"required,oneof=strain brand"`
	Brand      string `json:"brand" validate:"required_if=Scope brand"`
	Reason     string `json:"reason"`
}

// LineageUpdateResponse reports the outcome of a lineage change
type LineageUpdateResponse struct {
	AffectedProductCount int      `json:"affected_product_count"`
	PreviousLineage      *Lineage `json:"previous_lineage,omitempty"`
	NewLineage           Lineage  `json:"new_lineage"`
}
