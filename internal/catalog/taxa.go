package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/acormier/vireo/internal/domain"
	"github.com/acormier/vireo/internal/search"
)

// Taxa is the taxon catalog. Reads go through the cache-aside
// controller; full reads additionally resolve the taxonomic closure so
// every returned taxon carries its ancestor and child records.
type Taxa struct {
	ctrl   *Controller[*domain.Taxon]
	db     domain.EntityStore
	src    domain.RemoteSource
	logger *slog.Logger
}

// NewTaxa creates a taxon catalog over the local mirror and the remote
// source.
func NewTaxa(db domain.EntityStore, src domain.RemoteSource, logger *slog.Logger) *Taxa {
	if logger == nil {
		logger = slog.Default()
	}
	return &Taxa{
		ctrl:   NewController(domain.KindTaxon, db.GetTaxa, src.TaxaByIDs, db.UpsertTaxa, logger),
		db:     db,
		src:    src,
		logger: logger,
	}
}

// GetByIDs returns the taxa for ids. Unless opts.AcceptPartial is set,
// the taxonomic closure is resolved one level deep and the requested
// taxa are upgraded to full records, so a repeat read is served
// entirely from the mirror.
func (t *Taxa) GetByIDs(ctx context.Context, ids []int64, opts Options) ([]*domain.Taxon, error) {
	taxa, err := t.ctrl.GetByIDs(ctx, ids, opts)
	if err != nil {
		return nil, err
	}
	if opts.AcceptPartial {
		return taxa, nil
	}
	if err := t.resolveClosure(ctx, taxa); err != nil {
		return nil, err
	}
	return taxa, nil
}

// resolveClosure loads the ancestor and child records of taxa in one
// batched read and attaches them. Related records stay partial; only
// the requested taxa become full, and those are persisted so the
// upgrade survives a restart. The root taxon is never expanded.
func (t *Taxa) resolveClosure(ctx context.Context, taxa []*domain.Taxon) error {
	var related []int64
	seen := make(map[int64]bool)
	for _, tx := range taxa {
		for _, id := range tx.RelatedIDs() {
			if !seen[id] {
				seen[id] = true
				related = append(related, id)
			}
		}
	}

	byID := make(map[int64]*domain.Taxon, len(related))
	if len(related) > 0 {
		resolved, err := t.ctrl.GetByIDs(ctx, related, Options{AcceptPartial: true})
		if err != nil {
			return fmt.Errorf("resolving related taxa: %w", err)
		}
		for _, r := range resolved {
			byID[r.ID] = r
		}
	}

	now := time.Now().Unix()
	var upgraded []*domain.Taxon
	for _, tx := range taxa {
		tx.Ancestors = nil
		tx.Children = nil
		for _, id := range tx.AncestorIDs {
			if id == domain.RootTaxonID || id == tx.ID {
				continue
			}
			if r, ok := byID[id]; ok {
				tx.Ancestors = append(tx.Ancestors, r)
			}
		}
		for _, id := range tx.ChildIDs {
			if id == tx.ID {
				continue
			}
			if r, ok := byID[id]; ok {
				tx.Children = append(tx.Children, r)
			}
		}
		if tx.Partial {
			tx.Partial = false
			tx.UpdatedAt = now
			upgraded = append(upgraded, tx)
		}
	}

	if len(upgraded) > 0 {
		if err := t.db.UpsertTaxa(ctx, upgraded); err != nil {
			t.logger.Error("failed to persist resolved taxa",
				"count", len(upgraded), "error", err)
		}
	}
	return nil
}

// Search finds taxa by scientific or common name. Local candidates are
// fuzzy-ranked first; when they cannot fill the limit the remote
// autocomplete supplements them, and its results are written through to
// the mirror. A remote failure degrades to the local results rather
// than failing the search outright.
func (t *Taxa) Search(ctx context.Context, query string, limit int) ([]*domain.Taxon, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}

	// Over-fetch locally so the fuzzy ranking has material to reorder
	local, err := t.db.SearchTaxaByName(ctx, query, limit*4)
	if err != nil {
		return nil, fmt.Errorf("local taxon search: %w", err)
	}
	ranked := search.RankTaxa(query, local)
	if len(ranked) >= limit {
		return ranked[:limit], nil
	}

	remote, err := t.src.SearchTaxa(ctx, query, limit)
	if err != nil {
		if len(ranked) > 0 {
			t.logger.Warn("remote search failed, returning local results",
				"query", query, "error", err)
			return ranked, nil
		}
		return nil, fmt.Errorf("remote taxon search: %w", err)
	}

	merged := make([]*domain.Taxon, 0, len(ranked)+len(remote))
	have := make(map[int64]bool, len(ranked))
	for _, tx := range ranked {
		have[tx.ID] = true
		merged = append(merged, tx)
	}
	var additions []*domain.Taxon
	for _, tx := range remote {
		if !have[tx.ID] {
			have[tx.ID] = true
			merged = append(merged, tx)
			additions = append(additions, tx)
		}
	}

	// Only the additions are written through; rewriting a known taxon
	// from an autocomplete hit would downgrade a full record to partial.
	if len(additions) > 0 {
		if err := t.db.UpsertTaxa(ctx, additions); err != nil {
			t.logger.Error("failed to persist search results",
				"count", len(additions), "error", err)
		}
	}

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}
