package models

import "time"

// Product represents one catalog row tied to a strain.
// Field order matches schema: id, tenant_id, normalized_name, display_name, ...
type Product struct {
	ID              string    `json:"id" db:"id"`
	TenantID        string    `json:"tenant_id" db:"tenant_id"`
	NormalizedName  string    `json:"normalized_name" db:"normalized_name"`
	DisplayName     string    `json:"display_name" db:"display_name"`
	Vendor          string    `json:"vendor" db:"vendor"`
	Brand           string    `json:"brand" db:"brand"`
	ProductType     string    `json:"product_type" db:"product_type"`
	StrainID        string    `json:"strain_id" db:"strain_id"`
	Lineage         Lineage   `json:"lineage" db:"lineage"` // lineage as reported on ingestion, feeds the canonical vote
	LineageSnapshot Lineage   `json:"lineage_snapshot" db:"lineage_snapshot"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// ProductListResponse is the response for listing products
type ProductListResponse struct {
	Items      []Product `json:"items"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}

// CatalogRow is one product record handed over by the ingestion layer.
// Absent fields arrive as empty strings, never as an error.
type CatalogRow struct {
	ProductName string `json:"product_name"`
	Vendor      string `json:"vendor"`
	Brand       string `json:"brand"`
	ProductType string `json:"product_type"`
	Lineage     string `json:"lineage"`
	Strain      string `json:"strain"`
}

// ReplaceCatalogRequest is the request for replacing the catalog
type ReplaceCatalogRequest struct {
	Rows []CatalogRow `json:"rows" validate:"required,min=1"`
}

// ReplaceCatalogResponse summarizes a catalog replacement
type ReplaceCatalogResponse struct {
	IngestedCount int `json:"ingested_count"`
	SkippedCount  int `json:"skipped_count"`
	StrainCount   int `json:"strain_count"`
}
