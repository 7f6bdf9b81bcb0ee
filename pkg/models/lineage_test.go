package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLineage(t *testing.T) {
	t.Run("case and whitespace insensitive", func(t *testing.T) {
		l, ok := ParseLineage("  sativa ")
		assert.True(t, ok)
		assert.Equal(t, LineageSativa, l)

		l, ok = ParseLineage("Hybrid")
		assert.True(t, ok)
		assert.Equal(t, LineageHybrid, l)
	})

	t.Run("unknown value", func(t *testing.T) {
		_, ok := ParseLineage("ruderalis")
		assert.False(t, ok)

		_, ok = ParseLineage("")
		assert.False(t, ok)
	})
}

func TestDefaultLineageForProductType(t *testing.T) {
	assert.Equal(t, LineageParaphernalia, DefaultLineageForProductType("paraphernalia"))
	assert.Equal(t, LineageParaphernalia, DefaultLineageForProductType("Battery"))
	assert.Equal(t, LineageParaphernalia, DefaultLineageForProductType(" accessory "))
	assert.Equal(t, LineageMixed, DefaultLineageForProductType("flower"))
	assert.Equal(t, LineageMixed, DefaultLineageForProductType(""))
}
