package resolver

import (
	"fmt"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/AJMSD/raga/download/catalog"
)

// MatchPolicy picks one search candidate. Candidates arrive in provider
// ranking order; qualified reports whether one satisfies the reference's
// qualifier. Choose returns false when no candidate is acceptable.
type MatchPolicy interface {
	Name() string
	Choose(query string, candidates []catalog.Entity, qualified func(catalog.Entity) bool) (catalog.Entity, bool)
}

// Policy names accepted by ParsePolicy.
const (
	PolicyTop       = "top"
	PolicyQualified = "qualified"
	PolicySimilar   = "similar"
)

// ParsePolicy maps a configured policy name to its implementation.
func ParsePolicy(name string) (MatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyTop:
		return TopResult{}, nil
	case PolicyQualified:
		return FirstQualified{}, nil
	case PolicySimilar:
		return Similarity{}, nil
	}
	return nil, fmt.Errorf("unknown match policy %q (want %s, %s or %s)", name, PolicyTop, PolicyQualified, PolicySimilar)
}

// TopResult trusts the provider ranking and only validates the first result.
type TopResult struct{}

func (TopResult) Name() string { return PolicyTop }

func (TopResult) Choose(_ string, candidates []catalog.Entity, qualified func(catalog.Entity) bool) (catalog.Entity, bool) {
	if len(candidates) == 0 || !qualified(candidates[0]) {
		return nil, false
	}
	return candidates[0], true
}

// FirstQualified walks the ranking and takes the first candidate that
// satisfies the qualifier.
type FirstQualified struct{}

func (FirstQualified) Name() string { return PolicyQualified }

func (FirstQualified) Choose(_ string, candidates []catalog.Entity, qualified func(catalog.Entity) bool) (catalog.Entity, bool) {
	for _, c := range candidates {
		if qualified(c) {
			return c, true
		}
	}
	return nil, false
}

// Similarity takes the candidate whose title is closest to the query by
// normalized Levenshtein similarity. Ties keep the better ranked candidate.
type Similarity struct{}

func (Similarity) Name() string { return PolicySimilar }

func (Similarity) Choose(query string, candidates []catalog.Entity, qualified func(catalog.Entity) bool) (catalog.Entity, bool) {
	target := Normalize(query)
	var best catalog.Entity
	bestScore := float32(-1)
	for _, c := range candidates {
		score, err := edlib.StringsSimilarity(target, Normalize(c.Title()), edlib.Levenshtein)
		if err != nil {
			continue
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if best == nil || !qualified(best) {
		return nil, false
	}
	return best, true
}
