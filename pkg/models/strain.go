package models

import "time"

// Strain represents one normalized strain name and its lineage values.
// Field order matches schema: id, tenant_id, normalized_name, display_name, ...
type Strain struct {
	ID               string     `json:"id" db:"id"`
	TenantID         string     `json:"tenant_id" db:"tenant_id"`
	NormalizedName   string     `json:"normalized_name" db:"normalized_name"`
	DisplayName      string     `json:"display_name" db:"display_name"`
	CanonicalLineage Lineage    `json:"canonical_lineage" db:"canonical_lineage"`
	SovereignLineage *Lineage   `json:"sovereign_lineage,omitempty" db:"sovereign_lineage"`
	TotalOccurrences int        `json:"total_occurrences" db:"total_occurrences"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// StrainListResponse is the response for listing strains
type StrainListResponse struct {
	Items      []Strain `json:"items"`
	TotalCount int      `json:"total_count"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}

// BrandLineageOverride scopes a lineage value to one (strain, brand) pair.
// Highest precedence in effective-lineage resolution.
type BrandLineageOverride struct {
	StrainID  string    `json:"strain_id" db:"strain_id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Brand     string    `json:"brand" db:"brand"`
	Lineage   Lineage   `json:"lineage" db:"lineage"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LineageHistory is one row of the append-only change log. Written only for
// sovereign and override changes, never for canonical recomputation.
type LineageHistory struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	StrainID   string    `json:"strain_id" db:"strain_id"`
	Scope      string    `json:"scope" db:"scope"` // "strain" or "brand"
	Brand      *string   `json:"brand,omitempty" db:"brand"`
	OldLineage *Lineage  `json:"old_lineage,omitempty" db:"old_lineage"`
	NewLineage *Lineage  `json:"new_lineage,omitempty" db:"new_lineage"`
	Reason     string    `json:"reason" db:"reason"`
	ChangedBy  string    `json:"changed_by" db:"changed_by"`
	ChangedAt  time.Time `json:"changed_at" db:"changed_at"`
}

// LineageHistoryListResponse is the response for listing history rows
type LineageHistoryListResponse struct {
	Items      []LineageHistory `json:"items"`
	TotalCount int              `json:"total_count"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
}

// History scopes
const (
	HistoryScopeStrain = "strain"
	HistoryScopeBrand  = "brand"
)
