package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  QueryClass
	}{
		{"uuid", "1e7d5e08-9e24-471b-ae37-49b477f695e3", ClassIdentifier},
		{"uuid upper with spaces", "  1E7D5E08-9E24-471B-AE37-49B477F695E3 ", ClassIdentifier},
		{"uuid fragment", "1e7d5e08-9e24", ClassShort},
		{"double quoted", `"Land Cover Map 2015"`, ClassTitleLike},
		{"single quoted", `'soil carbon'`, ClassTitleLike},
		{"curly quoted", "“daily rainfall”", ClassTitleLike},
		{"mismatched quotes", `"soil carbon'`, ClassShort},
		{"empty quotes", `""`, ClassShort},
		{"one token", "soil", ClassShort},
		{"two tokens", "soil carbon", ClassShort},
		{"three tokens", "soil carbon grassland", ClassNormal},
		{"sentence", "river water quality in upland catchments", ClassNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.query))
		})
	}
}

func TestSearchText(t *testing.T) {
	assert.Equal(t, "Land Cover Map", searchText(`"Land Cover Map"`, ClassTitleLike))
	assert.Equal(t, "soil carbon", searchText("  soil carbon ", ClassShort))
	assert.Equal(t, `"kept"`, searchText(`"kept"`, ClassNormal))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"land", "cover", "map", "2015"}, tokens("Land-Cover Map (2015)"))
	assert.Empty(t, tokens("  -- "))
}
