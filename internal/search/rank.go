package search

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/acormier/vireo/internal/domain"
)

// RankTaxa orders candidates by fuzzy match quality against query,
// best match first. Candidates that do not match at all keep their
// incoming order after the matched ones, so callers never lose results
// the source considered relevant.
func RankTaxa(query string, taxa []*domain.Taxon) []*domain.Taxon {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" || len(taxa) < 2 {
		return taxa
	}

	names := make([]string, len(taxa))
	for i, t := range taxa {
		names[i] = strings.ToLower(t.FullName())
	}

	ranks := fuzzy.RankFindFold(query, names)

	// Sort by distance (lower is better)
	sort.Slice(ranks, func(i, j int) bool {
		return ranks[i].Distance < ranks[j].Distance
	})

	matched := make(map[int]bool, len(ranks))
	ranked := make([]*domain.Taxon, 0, len(taxa))
	for _, r := range ranks {
		matched[r.OriginalIndex] = true
		ranked = append(ranked, taxa[r.OriginalIndex])
	}
	for i, t := range taxa {
		if !matched[i] {
			ranked = append(ranked, t)
		}
	}
	return ranked
}
