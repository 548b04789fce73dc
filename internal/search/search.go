// Package search provides in-memory fuzzy matching over taxon names.
// The Index holds a snapshot of taxa (typically the user's observed
// set) for interactive filtering; RankTaxa orders an existing candidate
// slice by match quality.
package search

import (
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/acormier/vireo/internal/domain"
)

// Result is one filter hit with match metadata for highlighting
type Result struct {
	Taxon          *domain.Taxon
	MatchedIndexes []int // Character positions in the display name that matched
	Score          int   // Match score (higher = better)
}

// indexSource implements fuzzy.Source for zero-allocation matching.
// Display names are lowercased once at index time.
type indexSource struct {
	taxa       []*domain.Taxon
	lowerNames []string
}

// String returns the lowercase display name at index i (implements fuzzy.Source)
func (s *indexSource) String(i int) string { return s.lowerNames[i] }

// Len returns the number of indexed taxa (implements fuzzy.Source)
func (s *indexSource) Len() int { return len(s.taxa) }

// Index is a fuzzy-searchable snapshot of taxon names. Matching runs
// against the full display name, so both the scientific and the common
// name are searchable.
type Index struct {
	mu      sync.RWMutex
	source  *indexSource
	indexed map[int64]bool
}

// NewIndex creates an empty taxon name index
func NewIndex() *Index {
	return &Index{
		source:  &indexSource{},
		indexed: make(map[int64]bool),
	}
}

// Add indexes taxa by display name, skipping IDs already present
func (idx *Index) Add(taxa ...*domain.Taxon) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, t := range taxa {
		if t == nil || idx.indexed[t.ID] {
			continue
		}
		idx.indexed[t.ID] = true
		idx.source.taxa = append(idx.source.taxa, t)
		idx.source.lowerNames = append(idx.source.lowerNames, strings.ToLower(t.FullName()))
	}
}

// Filter returns the indexed taxa matching query, best match first
func (idx *Index) Filter(query string) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" || idx.source.Len() == 0 {
		return nil
	}

	matches := fuzzy.FindFrom(query, idx.source)

	results := make([]Result, len(matches))
	for i, match := range matches {
		results[i] = Result{
			Taxon:          idx.source.taxa[match.Index],
			MatchedIndexes: match.MatchedIndexes,
			Score:          match.Score,
		}
	}
	return results
}

// Clear removes all indexed taxa
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.source = &indexSource{}
	idx.indexed = make(map[int64]bool)
}

// Count returns the number of indexed taxa
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.source.Len()
}
