// Package matching implements the staged match pipeline that reconciles
// external inventory records against the product catalog.
package matching

import (
	"sort"

	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/normalizers"
)

// indexedProduct is one catalog row with its precomputed normalization.
type indexedProduct struct {
	product     *models.Product
	normalized  normalizers.NormalizedName
	vendorToken string
	occurrences int
}

// Index holds the per-run catalog indices. Built once per reconciliation,
// read-only during the matching pass, safe for concurrent readers.
type Index struct {
	exact    map[string]*indexedProduct
	buckets  map[string][]*indexedProduct
	fallback []*indexedProduct
	all      []*indexedProduct
}

// vendorTokenFor derives the bucket token for a catalog row: the explicit
// vendor field when present, otherwise the name-derived token.
func vendorTokenFor(vendor string, normalized normalizers.NormalizedName) string {
	if vendor != "" {
		if token := normalizers.Normalize(vendor).VendorToken; token != "" {
			return token
		}
	}
	return normalized.VendorToken
}

// NewIndex builds the match indices from the catalog. occurrences maps
// strain ID to that strain's total product count and orders the bounded
// fallback list; fallbackLimit caps how many rows the global fallback tier
// may ever scan.
func NewIndex(products []models.Product, occurrences map[string]int, fallbackLimit int) *Index {
	idx := &Index{
		exact:   make(map[string]*indexedProduct, len(products)),
		buckets: make(map[string][]*indexedProduct),
		all:     make([]*indexedProduct, 0, len(products)),
	}

	for i := range products {
		p := &products[i]
		normalized := normalizers.Normalize(p.DisplayName)
		if normalized.Key == "" {
			continue
		}

		row := &indexedProduct{
			product:     p,
			normalized:  normalized,
			vendorToken: vendorTokenFor(p.Vendor, normalized),
			occurrences: occurrences[p.StrainID],
		}

		idx.all = append(idx.all, row)

		// First row wins for duplicate keys so runs stay deterministic.
		if _, exists := idx.exact[normalized.Key]; !exists {
			idx.exact[normalized.Key] = row
		}

		if row.vendorToken != "" {
			idx.buckets[row.vendorToken] = append(idx.buckets[row.vendorToken], row)
		}
	}

	if fallbackLimit <= 0 {
		fallbackLimit = DefaultFallbackScanLimit
	}

	idx.fallback = make([]*indexedProduct, len(idx.all))
	copy(idx.fallback, idx.all)
	sort.SliceStable(idx.fallback, func(i, j int) bool {
		if idx.fallback[i].occurrences != idx.fallback[j].occurrences {
			return idx.fallback[i].occurrences > idx.fallback[j].occurrences
		}
		return idx.fallback[i].normalized.Key < idx.fallback[j].normalized.Key
	})
	if len(idx.fallback) > fallbackLimit {
		idx.fallback = idx.fallback[:fallbackLimit]
	}

	return idx
}

// Bucket returns the catalog rows sharing a vendor token.
func (idx *Index) Bucket(token string) []*indexedProduct {
	return idx.buckets[token]
}

// Size returns the number of indexed catalog rows.
func (idx *Index) Size() int {
	return len(idx.all)
}
