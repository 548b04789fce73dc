package search

import (
	"testing"

	"github.com/acormier/vireo/internal/domain"
)

func monarch() *domain.Taxon {
	return &domain.Taxon{ID: 48662, Name: "Danaus plexippus", CommonName: "Monarch"}
}

func queen() *domain.Taxon {
	return &domain.Taxon{ID: 48663, Name: "Danaus gilippus", CommonName: "Queen"}
}

func honeybee() *domain.Taxon {
	return &domain.Taxon{ID: 47219, Name: "Apis mellifera", CommonName: "Western Honey Bee"}
}

func TestIndexFilterMatchesCommonName(t *testing.T) {
	idx := NewIndex()
	idx.Add(monarch(), queen(), honeybee())

	results := idx.Filter("monarch")
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Taxon.ID != 48662 {
		t.Errorf("expected taxon 48662, got %d", results[0].Taxon.ID)
	}
	if len(results[0].MatchedIndexes) == 0 {
		t.Error("expected matched character positions")
	}
}

func TestIndexFilterMatchesScientificName(t *testing.T) {
	idx := NewIndex()
	idx.Add(monarch(), queen(), honeybee())

	results := idx.Filter("danaus")
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Taxon.ID == 47219 {
			t.Error("honey bee should not match danaus")
		}
	}
}

func TestIndexFilterEmptyQuery(t *testing.T) {
	idx := NewIndex()
	idx.Add(monarch())

	if results := idx.Filter(""); results != nil {
		t.Errorf("expected nil for empty query, got %d results", len(results))
	}
	if results := idx.Filter("   "); results != nil {
		t.Errorf("expected nil for blank query, got %d results", len(results))
	}
}

func TestIndexFilterEmptyIndex(t *testing.T) {
	idx := NewIndex()
	if results := idx.Filter("monarch"); results != nil {
		t.Errorf("expected nil from empty index, got %d results", len(results))
	}
}

func TestIndexAddDeduplicates(t *testing.T) {
	idx := NewIndex()
	idx.Add(monarch(), monarch(), nil)
	idx.Add(monarch())

	if idx.Count() != 1 {
		t.Errorf("expected 1 indexed taxon, got %d", idx.Count())
	}
}

func TestIndexClear(t *testing.T) {
	idx := NewIndex()
	idx.Add(monarch(), queen())
	idx.Clear()

	if idx.Count() != 0 {
		t.Errorf("expected empty index after clear, got %d", idx.Count())
	}
	idx.Add(monarch())
	if idx.Count() != 1 {
		t.Errorf("expected re-add after clear to work, got %d", idx.Count())
	}
}

func TestRankTaxaBestMatchFirst(t *testing.T) {
	candidates := []*domain.Taxon{queen(), honeybee(), monarch()}

	ranked := RankTaxa("monarch", candidates)
	if len(ranked) != 3 {
		t.Fatalf("expected all 3 candidates back, got %d", len(ranked))
	}
	if ranked[0].ID != 48662 {
		t.Errorf("expected monarch first, got %d", ranked[0].ID)
	}
}

func TestRankTaxaKeepsUnmatchedTail(t *testing.T) {
	candidates := []*domain.Taxon{queen(), honeybee(), monarch()}

	// Queen and Monarch both match "danaus"; the shorter name ranks
	// first and the honey bee stays at the tail.
	ranked := RankTaxa("danaus", candidates)
	if len(ranked) != 3 {
		t.Fatalf("expected all 3 candidates back, got %d", len(ranked))
	}
	if ranked[0].ID != 48663 {
		t.Errorf("expected queen first, got %d", ranked[0].ID)
	}
	if ranked[1].ID != 48662 {
		t.Errorf("expected monarch second, got %d", ranked[1].ID)
	}
	if ranked[2].ID != 47219 {
		t.Errorf("expected honey bee last, got %d", ranked[2].ID)
	}
}

func TestRankTaxaEmptyQuery(t *testing.T) {
	candidates := []*domain.Taxon{queen(), monarch()}

	ranked := RankTaxa("", candidates)
	if len(ranked) != 2 || ranked[0].ID != 48663 {
		t.Error("expected empty query to keep incoming order")
	}
}
