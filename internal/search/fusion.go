package search

import "sort"

// Weights configures the relative importance of each retrieval path.
type Weights struct {
	Semantic float64
	Keyword  float64
}

// WeightsFor returns the fusion weights for a query class. Short queries
// favour keyword matches; every other class weighs both paths equally.
func WeightsFor(class QueryClass, cfg Config) Weights {
	w := Weights{Semantic: 1, Keyword: 1}
	if class == ClassShort {
		w.Keyword *= cfg.ShortQueryKeywordWeight
	}
	return w
}

// RRFFusion combines ranked ID lists using Reciprocal Rank Fusion.
//
// Algorithm: RRF_score(d) = Σ weight_i / (k + rank_i)
//
// Where:
//   - k = smoothing constant (default: 60)
//   - rank_i = position in ranked list i (1-indexed)
//   - weight_i = weight for retrieval path i
//
// A document absent from a list receives no contribution from it.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a fusion with smoothing constant k.
// If k <= 0, defaults to 60.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines semantic and keyword rankings. Hits are returned sorted
// with Score set to RRFScore normalised by the best hit.
//
// Order: RRFScore (desc) → in both lists → best rank (asc) → ID (asc)
func (f *RRFFusion) Fuse(semantic, keyword []string, w Weights) []*Hit {
	if len(semantic) == 0 && len(keyword) == 0 {
		return []*Hit{}
	}

	hits := make(map[string]*Hit, len(semantic)+len(keyword))
	get := func(id string) *Hit {
		h, ok := hits[id]
		if !ok {
			h = &Hit{ID: id}
			hits[id] = h
		}
		return h
	}

	for i, id := range semantic {
		h := get(id)
		if h.FromSemantic {
			continue // duplicate ID keeps its best rank
		}
		h.FromSemantic = true
		h.SemanticRank = i + 1
		h.RRFScore += w.Semantic / float64(f.K+i+1)
	}
	for i, id := range keyword {
		h := get(id)
		if h.FromKeyword {
			continue
		}
		h.FromKeyword = true
		h.KeywordRank = i + 1
		h.RRFScore += w.Keyword / float64(f.K+i+1)
	}

	out := make([]*Hit, 0, len(hits))
	for _, h := range hits {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		return fusionLess(out[i], out[j])
	})

	if top := out[0].RRFScore; top > 0 {
		for _, h := range out {
			h.Score = h.RRFScore / top
		}
	}
	return out
}

// fusionLess reports whether a ranks before b on fusion evidence alone.
func fusionLess(a, b *Hit) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if aBoth, bBoth := a.inBoth(), b.inBoth(); aBoth != bBoth {
		return aBoth
	}
	if ar, br := a.bestRank(), b.bestRank(); ar != br {
		return ar < br
	}
	return a.ID < b.ID
}

func (h *Hit) inBoth() bool {
	return h.FromSemantic && h.FromKeyword
}

// bestRank is the smaller non-zero rank.
func (h *Hit) bestRank() int {
	switch {
	case h.SemanticRank == 0:
		return h.KeywordRank
	case h.KeywordRank == 0:
		return h.SemanticRank
	default:
		return min(h.SemanticRank, h.KeywordRank)
	}
}
