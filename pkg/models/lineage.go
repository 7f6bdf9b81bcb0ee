package models

import "strings"

// Lineage is the classification assigned to a strain or product.
type Lineage string

const (
	LineageSativa        Lineage = "SATIVA"
	LineageIndica        Lineage = "INDICA"
	LineageHybrid        Lineage = "HYBRID"
	LineageCBD           Lineage = "CBD"
	LineageMixed         Lineage = "MIXED"
	LineageParaphernalia Lineage = "PARAPHERNALIA"
)

// lineages holds every valid lineage value
var lineages = map[Lineage]struct{}{
	LineageSativa:        {},
	LineageIndica:        {},
	LineageHybrid:        {},
	LineageCBD:           {},
	LineageMixed:         {},
	LineageParaphernalia: {},
}

// ParseLineage normalizes and validates a lineage string. Returns false for
// unknown values.
func ParseLineage(s string) (Lineage, bool) {
	l := Lineage(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := lineages[l]
	return l, ok
}

// IsValid reports whether the lineage is a known value.
func (l Lineage) IsValid() bool {
	_, ok := lineages[l]
	return ok
}

// productTypeDefaults maps product types to the lineage they carry when no
// override, sovereign or canonical value applies.
var productTypeDefaults = map[string]Lineage{
	"paraphernalia": LineageParaphernalia,
	"accessory":     LineageParaphernalia,
	"battery":       LineageParaphernalia,
}

// DefaultLineageForProductType returns the type-based default lineage, the
// lowest rung of the resolution order. Unknown types default to MIXED.
func DefaultLineageForProductType(productType string) Lineage {
	if l, ok := productTypeDefaults[strings.ToLower(strings.TrimSpace(productType))]; ok {
		return l
	}
	return LineageMixed
}
