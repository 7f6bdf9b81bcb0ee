// Package normalizers provides product name normalization for match indexing
package normalizers

import (
	"regexp"
	"strings"
	"unicode"
)

// WordSet is an unordered set of significant tokens. Order is irrelevant
// for overlap scoring.
type WordSet map[string]struct{}

// Contains reports whether the set holds the given token.
func (w WordSet) Contains(token string) bool {
	_, ok := w[token]
	return ok
}

// Overlap returns |w ∩ other| / min(|w|, |other|). Returns 0 when either
// set is empty.
func (w WordSet) Overlap(other WordSet) float64 {
	if len(w) == 0 || len(other) == 0 {
		return 0
	}

	smaller, larger := w, other
	if len(other) < len(w) {
		smaller, larger = other, w
	}

	shared := 0
	for token := range smaller {
		if larger.Contains(token) {
			shared++
		}
	}

	return float64(shared) / float64(len(smaller))
}

// NormalizedName is the output of normalizing a raw product name.
type NormalizedName struct {
	// Key is the lowercased, separator-collapsed, filler-stripped form of
	// the name. Substring-comparable.
	Key string
	// VendorToken is the short prefix used to bucket catalog rows during
	// matching. Empty when the name yields no tokens.
	VendorToken string
	// Words is the set of significant tokens remaining in the key.
	Words WordSet
}

// fillerWords are generic tokens that carry no matching signal.
var fillerWords = map[string]struct{}{
	"brand": {},
	"pack":  {},
	"stick": {},
	"each":  {},
	"unit":  {},
	"the":   {},
	"and":   {},
	"of":    {},
	"a":     {},
	"an":    {},
}

// packSizeRe matches quantity tokens such as "1g", "3.5g", "100mg", "2oz",
// "30ml", "5pk" and "10ct".
var packSizeRe = regexp.MustCompile(`^\d+(\.\d+)?(g|mg|kg|oz|ml|l|pk|ct|x)?$`)

const vendorSeparator = " - "

// Normalize turns a raw product name into its normalized key, vendor token
// and significant word set. Pure and deterministic; empty input yields an
// empty key and empty word set. Idempotent: normalizing a key returns the
// same key.
func Normalize(raw string) NormalizedName {
	vendorSegment := ""
	if idx := strings.Index(raw, vendorSeparator); idx > 0 {
		vendorSegment = raw[:idx]
	}

	tokens := significantTokens(raw)

	name := NormalizedName{
		Key:   strings.Join(tokens, " "),
		Words: make(WordSet, len(tokens)),
	}
	for _, token := range tokens {
		name.Words[token] = struct{}{}
	}

	if vendorSegment != "" {
		name.VendorToken = vendorToken(significantTokens(vendorSegment))
	} else {
		name.VendorToken = vendorToken(tokens)
	}

	return name
}

// vendorToken takes the first word of the token list, or the first two when
// the first is too short to identify a vendor on its own.
func vendorToken(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	if len(tokens) >= 2 && len(tokens[0]) < 3 {
		return tokens[0] + " " + tokens[1]
	}
	return tokens[0]
}

// significantTokens lowercases, collapses whitespace/hyphens/underscores
// and drops filler and pack-size tokens. Token order is preserved.
func significantTokens(s string) []string {
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '-' || r == '_' || unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsPunct(r):
			// drop punctuation entirely so "3.5g" keeps its digits but
			// "wax," becomes "wax"
			if r == '.' {
				b.WriteRune(r)
			}
		default:
			b.WriteRune(r)
		}
	}

	fields := strings.Fields(b.String())
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		field = strings.Trim(field, ".")
		if field == "" {
			continue
		}
		if _, ok := fillerWords[field]; ok {
			continue
		}
		if isPackSize(field) {
			continue
		}
		tokens = append(tokens, field)
	}

	return tokens
}

func isPackSize(token string) bool {
	if !unicode.IsDigit(rune(token[0])) {
		return false
	}
	return packSizeRe.MatchString(token)
}
