package inventory

import (
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_TopLevelArray(t *testing.T) {
	body := []byte(`[
		{"product_name": "Blue Dream Wax 1g", "vendor": "Acme", "quantity": "12"},
		{"product_name": "Sunset Sherbet Cart"}
	]`)

	result, err := Parse(body)
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	assert.Equal(t, "Blue Dream Wax 1g", result.Records[0].ProductName)
	assert.Equal(t, "Acme", result.Records[0].Vendor)
	assert.Equal(t, "12", result.Records[0].Quantity)
	assert.Equal(t, "Sunset Sherbet Cart", result.Records[1].ProductName)
	assert.Equal(t, "", result.Records[1].Vendor)
	assert.Equal(t, 0, result.SkippedCount)
}

func TestParse_WrappedItems(t *testing.T) {
	t.Run("inventory_transfer_items", func(t *testing.T) {
		body := []byte(`{"inventory_transfer_items": [{"product_name": "OG Kush"}]}`)
		result, err := Parse(body)
		require.NoError(t, err)
		require.Len(t, result.Records, 1)
		assert.Equal(t, "OG Kush", result.Records[0].ProductName)
	})

	t.Run("items", func(t *testing.T) {
		body := []byte(`{"items": [{"name": "OG Kush"}], "page": 1}`)
		result, err := Parse(body)
		require.NoError(t, err)
		require.Len(t, result.Records, 1)
	})

	t.Run("data", func(t *testing.T) {
		body := []byte(`{"data": [{"item_name": "OG Kush", "supplier": "Grove"}]}`)
		result, err := Parse(body)
		require.NoError(t, err)
		require.Len(t, result.Records, 1)
		assert.Equal(t, "Grove", result.Records[0].Vendor)
	})
}

func TestParse_AlternateFieldNames(t *testing.T) {
	body := []byte(`[
		{"productname": "A"},
		{"item_name": "B", "vendor_name": "V"},
		{"name": "C", "brand": "Br", "qty": 3},
		{"product": "D", "count": 1.5}
	]`)

	result, err := Parse(body)
	require.NoError(t, err)
	require.Len(t, result.Records, 4)
	assert.Equal(t, "A", result.Records[0].ProductName)
	assert.Equal(t, "V", result.Records[1].Vendor)
	assert.Equal(t, "Br", result.Records[2].Vendor)
	assert.Equal(t, "3", result.Records[2].Quantity)
	assert.Equal(t, "1.5", result.Records[3].Quantity)
}

func TestParse_SkipsNamelessItems(t *testing.T) {
	body := []byte(`[
		{"product_name": "Blue Dream"},
		{"vendor": "Acme"},
		{"product_name": "   "},
		{"product_name": "Sunset Sherbet"}
	]`)

	result, err := Parse(body)
	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
	assert.Equal(t, 2, result.SkippedCount)
}

func TestParse_UnrecognizedSchema(t *testing.T) {
	cases := map[string][]byte{
		"empty body":           []byte("   "),
		"scalar body":          []byte(`42`),
		"array of scalars":     []byte(`[1, 2, 3]`),
		"object no known keys": []byte(`{"inventory": []}`),
		"wrapper not an array": []byte(`{"items": {"product_name": "x"}}`),
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			result, err := Parse(body)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, httperror.IsHTTPError(err))
			assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))
		})
	}
}

func TestParse_EmptyItemArray(t *testing.T) {
	result, err := Parse([]byte(`{"items": []}`))
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Equal(t, 0, result.SkippedCount)
}
