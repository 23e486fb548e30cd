package zonalstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenSortRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"new york mets", "new york mets", 100},
		{"new york mets", "mets new york", 100},
		{"New-York, Mets!", "mets new york", 100},
		{"fuzzy wuzzy was a bear", "wuzzy fuzzy was a bear", 100},
		{"new york mets", "new york meats", 96},
		{"abcd", "abce", 75},
		{"aaaaaa", "aaaaaaaaaa", 75},
		{"abcd", "ab", 67},
		{"", "anything", 0},
		{"abc", "xyz", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TokenSortRatio(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestTokenSortRatio_UnequalLengthsPassThreshold(t *testing.T) {
	assert.GreaterOrEqual(t, TokenSortRatio("aaaaaa", "aaaaaaaaaa"), CRSSimilarityThreshold)
}

func TestTokenSortRatio_Symmetric(t *testing.T) {
	a := stripBrackets(knownWKT("EPSG:4326"))
	b := stripBrackets(knownWKT("EPSG:4269"))
	assert.Equal(t, TokenSortRatio(a, b), TokenSortRatio(b, a))
	assert.Equal(t, 84, TokenSortRatio(a, b))
	assert.Equal(t, 33, TokenSortRatio(a, stripBrackets(localWKT)))
}
