package inventory

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/trellis/pkg/models"
)

// wrapperKeys are the object keys that may hold the item array when the
// body is not a top-level array.
var wrapperKeys = []string{
	"inventory_transfer_items",
	"inventory_items",
	"transfer_items",
	"items",
	"records",
	"data",
}

// nameKeys are the accepted product-name field names, tried in order.
var nameKeys = []string{
	"product_name",
	"productname",
	"item_name",
	"name",
	"product",
}

// vendorKeys are the accepted vendor field names, tried in order.
var vendorKeys = []string{
	"vendor",
	"vendor_name",
	"brand",
	"supplier",
}

var quantityKeys = []string{
	"quantity",
	"qty",
	"count",
}

// ParseResult is the outcome of parsing a feed body.
type ParseResult struct {
	Records []models.ExternalRecord
	// SkippedCount is the number of items carrying no usable product name.
	SkippedCount int
}

// Parse extracts external records from a feed body. Accepts a top-level
// JSON array of objects or an object wrapping the array under a known key.
// Shapes outside that contract return a 422 "unrecognized schema" error,
// never a panic. Items without a product name are skipped and counted.
func Parse(body []byte) (*ParseResult, error) {
	items, err := extractItems(body)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{
		Records: make([]models.ExternalRecord, 0, len(items)),
	}

	for _, item := range items {
		name := firstStringField(item, nameKeys)
		if name == "" {
			result.SkippedCount++
			continue
		}

		result.Records = append(result.Records, models.ExternalRecord{
			ProductName: name,
			Vendor:      firstStringField(item, vendorKeys),
			Quantity:    firstStringField(item, quantityKeys),
		})
	}

	return result, nil
}

func unrecognizedSchema(detail string) error {
	return httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "unrecognized inventory schema: %s", detail)
}

func extractItems(body []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, unrecognizedSchema("empty body")
	}

	// Top-level array
	if strings.HasPrefix(trimmed, "[") {
		var items []map[string]any
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, unrecognizedSchema("top-level array does not contain objects")
		}
		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, unrecognizedSchema("body is neither an array nor an object")
	}

	for _, key := range wrapperKeys {
		raw, ok := wrapper[key]
		if !ok {
			continue
		}
		var items []map[string]any
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, unrecognizedSchema(fmt.Sprintf("%q is not an array of objects", key))
		}
		return items, nil
	}

	return nil, unrecognizedSchema("no known item array key found")
}

// firstStringField returns the first non-empty value among the candidate
// keys. Numeric values are rendered so quantity-like fields survive.
func firstStringField(item map[string]any, keys []string) string {
	for _, key := range keys {
		value, ok := item[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
		}
	}
	return ""
}
