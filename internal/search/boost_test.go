package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsExactMatch(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		title    string
		keywords []string
		want     bool
	}{
		{"title run", "land cover", "Land Cover Map 2015", nil, true},
		{"title run with punctuation", "cover map", "Land-Cover: Map", nil, true},
		{"tokens not contiguous", "land map", "Land Cover Map", nil, false},
		{"partial token", "land cov", "Land Cover Map", nil, false},
		{"keyword equal", "Remote Sensing", "Satellite imagery", []string{"remote sensing"}, true},
		{"keyword substring", "remote", "Satellite imagery", []string{"remote sensing"}, false},
		{"blank query", "  ", "Land Cover", []string{""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsExactMatch(tt.query, tt.title, tt.keywords))
		})
	}
}

func TestApplyExactMatch_OutranksHigherFusionScore(t *testing.T) {
	// Given: a non-exact hit with a better fused score than an exact one
	hits := []*Hit{
		{ID: "soil", Title: "Soil survey", Score: 1.0, RRFScore: 0.030},
		{ID: "other", Title: "Upland streams", Score: 0.9, RRFScore: 0.027},
		{ID: "lcm", Title: "Land Cover Map", Score: 0.8, RRFScore: 0.024},
	}

	// When: applying the exact-match bonus for "land cover"
	ApplyExactMatch(hits, "land cover", 0.25)

	// Then: the exact match is boosted and clamped, and ranks first
	assert.Equal(t, []string{"lcm", "soil", "other"}, ids(hits))
	assert.True(t, hits[0].ExactMatch)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-12)
	assert.False(t, hits[1].ExactMatch)
}

func TestApplyExactMatch_EqualScorePrefersExact(t *testing.T) {
	// Given: both hits reach the display ceiling
	hits := []*Hit{
		{ID: "a", Title: "Alpha", Score: 1.0, RRFScore: 0.033},
		{ID: "b", Title: "Rainfall", Score: 0.99, RRFScore: 0.032},
	}

	ApplyExactMatch(hits, "rainfall", 0.25)

	// Then: exact match ranks first at equal score
	assert.Equal(t, []string{"b", "a"}, ids(hits))
	assert.Equal(t, hits[0].Score, hits[1].Score)
}

func TestApplyExactMatch_ClampsNegative(t *testing.T) {
	hits := []*Hit{{ID: "x", Score: -0.5}}

	ApplyExactMatch(hits, "nothing", 0.25)

	assert.Equal(t, 0.0, hits[0].Score)
}
