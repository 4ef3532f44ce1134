package search

import (
	"slices"
	"sort"
	"strings"
)

// IsExactMatch reports whether the query tokens appear contiguously in the
// title tokens, or the query equals one of the keywords (case-insensitive).
func IsExactMatch(query, title string, keywords []string) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.EqualFold(strings.TrimSpace(kw), q) {
			return true
		}
	}
	return containsRun(tokens(title), tokens(q))
}

// containsRun reports whether needle occurs as a contiguous run in haystack.
func containsRun(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if slices.Equal(haystack[i:i+len(needle)], needle) {
			return true
		}
	}
	return false
}

// ApplyExactMatch adds bonus to the display score of exact matches,
// clamps scores to [0,1] and re-sorts. Exact matches rank ahead of
// non-exact hits with an equal display score.
func ApplyExactMatch(hits []*Hit, query string, bonus float64) {
	for _, h := range hits {
		if IsExactMatch(query, h.Title, h.Keywords) {
			h.ExactMatch = true
			h.Score += bonus
		}
		h.Score = min(max(h.Score, 0), 1)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ExactMatch != b.ExactMatch {
			return a.ExactMatch
		}
		return fusionLess(a, b)
	})
}
