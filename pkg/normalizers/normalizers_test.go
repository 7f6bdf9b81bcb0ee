package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_KeyAndVendor(t *testing.T) {
	t.Run("vendor prefix with pack size", func(t *testing.T) {
		n := Normalize("Acme - Blue Dream Wax - 1g")
		assert.Equal(t, "acme blue dream wax", n.Key)
		assert.Equal(t, "acme", n.VendorToken)
		assert.True(t, n.Words.Contains("blue"))
		assert.True(t, n.Words.Contains("dream"))
		assert.False(t, n.Words.Contains("1g"))
	})

	t.Run("no vendor separator falls back to first token", func(t *testing.T) {
		n := Normalize("acme blue dream wax 1g")
		assert.Equal(t, "acme blue dream wax", n.Key)
		assert.Equal(t, "acme", n.VendorToken)
	})

	t.Run("short first token joins the second", func(t *testing.T) {
		n := Normalize("GB Super Lemon Haze")
		assert.Equal(t, "gb super", n.VendorToken)
	})

	t.Run("empty input", func(t *testing.T) {
		n := Normalize("")
		assert.Equal(t, "", n.Key)
		assert.Equal(t, "", n.VendorToken)
		assert.Empty(t, n.Words)
	})

	t.Run("only fillers and pack sizes", func(t *testing.T) {
		n := Normalize("the pack 3.5g")
		assert.Equal(t, "", n.Key)
		assert.Empty(t, n.Words)
	})
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Acme - Blue Dream Wax - 1g",
		"Sunset   Sherbet__Cart",
		"OG Kush 100mg Gummies 10ct",
		"Brand The Pack Of Wax",
	}

	for _, raw := range inputs {
		first := Normalize(raw)
		second := Normalize(first.Key)
		assert.Equal(t, first.Key, second.Key, "normalizing %q twice diverged", raw)
	}
}

func TestNormalize_StripsFillerAndPackSizes(t *testing.T) {
	n := Normalize("OG Kush Gummies 100mg 10ct 2pk each")
	assert.Equal(t, "og kush gummies", n.Key)

	n = Normalize("Sunset Sherbet Cartridge 0.5g")
	assert.Equal(t, "sunset sherbet cartridge", n.Key)
}

func TestNormalize_SeparatorCollapse(t *testing.T) {
	a := Normalize("blue-dream_wax")
	b := Normalize("Blue  Dream   Wax")
	assert.Equal(t, a.Key, b.Key)
}

func TestNormalize_PunctuationDropped(t *testing.T) {
	n := Normalize("Wedding Cake, Live Resin!")
	assert.Equal(t, "wedding cake live resin", n.Key)
}

func TestWordSet_Overlap(t *testing.T) {
	set := func(tokens ...string) WordSet {
		w := make(WordSet, len(tokens))
		for _, tok := range tokens {
			w[tok] = struct{}{}
		}
		return w
	}

	t.Run("identical sets", func(t *testing.T) {
		a := set("acme", "blue", "dream")
		assert.Equal(t, 1.0, a.Overlap(a))
	})

	t.Run("ratio uses the smaller set", func(t *testing.T) {
		a := set("acme", "wax")
		b := set("acme", "bluedream", "wax", "jar")
		assert.InDelta(t, 1.0, a.Overlap(b), 1e-9)
		assert.InDelta(t, 1.0, b.Overlap(a), 1e-9)
	})

	t.Run("partial overlap", func(t *testing.T) {
		a := set("acme", "blue", "dream", "wax")
		b := set("acme", "bluedream", "wax", "jar")
		assert.InDelta(t, 0.5, a.Overlap(b), 1e-9)
	})

	t.Run("disjoint sets", func(t *testing.T) {
		a := set("sunset", "sherbet")
		b := set("blue", "dream")
		assert.Equal(t, 0.0, a.Overlap(b))
	})

	t.Run("empty set", func(t *testing.T) {
		a := set("acme")
		assert.Equal(t, 0.0, a.Overlap(WordSet{}))
		assert.Equal(t, 0.0, WordSet{}.Overlap(a))
	})
}
