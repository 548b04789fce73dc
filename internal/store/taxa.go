package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/acormier/vireo/internal/domain"
)

// GetTaxa returns the locally stored taxa among ids. Missing IDs are
// simply absent from the result; no error is reported for them.
func (db *DB) GetTaxa(ctx context.Context, ids []int64) ([]*domain.Taxon, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	conn, err := db.handle()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
	SELECT id, name, rank, common_name, ancestor_ids, child_ids,
	       photo_url, iconic_taxon_id, observations_count, partial, updated_at
	FROM taxa
	WHERE id IN (%s)`, placeholders(len(ids)))

	rows, err := conn.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query taxa: %w", err)
	}
	defer rows.Close()

	return scanTaxa(rows)
}

// UpsertTaxa inserts or replaces taxa in a single transaction. Every
// column is written, so a full record cleanly overwrites a partial one.
func (db *DB) UpsertTaxa(ctx context.Context, taxa []*domain.Taxon) error {
	if len(taxa) == 0 {
		return nil
	}

	conn, err := db.handle()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO taxa (
		id, name, rank, common_name, ancestor_ids, child_ids,
		photo_url, iconic_taxon_id, observations_count, partial, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		rank = excluded.rank,
		common_name = excluded.common_name,
		ancestor_ids = excluded.ancestor_ids,
		child_ids = excluded.child_ids,
		photo_url = excluded.photo_url,
		iconic_taxon_id = excluded.iconic_taxon_id,
		observations_count = excluded.observations_count,
		partial = excluded.partial,
		updated_at = excluded.updated_at
	`

	for _, t := range taxa {
		ancestorsJSON, err := idsToJSON(t.AncestorIDs)
		if err != nil {
			return fmt.Errorf("taxon %d: %w", t.ID, err)
		}
		childrenJSON, err := idsToJSON(t.ChildIDs)
		if err != nil {
			return fmt.Errorf("taxon %d: %w", t.ID, err)
		}

		if _, err := tx.ExecContext(ctx, query,
			t.ID,
			t.Name,
			t.Rank,
			t.CommonName,
			ancestorsJSON,
			childrenJSON,
			t.PhotoURL,
			t.IconicTaxonID,
			t.ObservationsCount,
			t.Partial,
			t.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert taxon %d: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit taxa: %w", err)
	}

	return nil
}

// SearchTaxaByName returns taxa whose scientific or common name contains
// the query, most observed first. Matching is a coarse substring filter;
// callers layer fuzzy ranking on top.
func (db *DB) SearchTaxaByName(ctx context.Context, query string, limit int) ([]*domain.Taxon, error) {
	if query == "" || limit <= 0 {
		return nil, nil
	}

	conn, err := db.handle()
	if err != nil {
		return nil, err
	}

	pattern := "%" + query + "%"
	stmt := `
	SELECT id, name, rank, common_name, ancestor_ids, child_ids,
	       photo_url, iconic_taxon_id, observations_count, partial, updated_at
	FROM taxa
	WHERE name LIKE ? OR common_name LIKE ?
	ORDER BY observations_count DESC, id ASC
	LIMIT ?`

	rows, err := conn.QueryContext(ctx, stmt, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search taxa: %w", err)
	}
	defer rows.Close()

	return scanTaxa(rows)
}

// scanTaxa converts query rows into taxon records
func scanTaxa(rows *sql.Rows) ([]*domain.Taxon, error) {
	var taxa []*domain.Taxon

	for rows.Next() {
		t := &domain.Taxon{}
		var ancestorsJSON, childrenJSON string

		if err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.Rank,
			&t.CommonName,
			&ancestorsJSON,
			&childrenJSON,
			&t.PhotoURL,
			&t.IconicTaxonID,
			&t.ObservationsCount,
			&t.Partial,
			&t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan taxon: %w", err)
		}

		ancestors, err := jsonToIDs(ancestorsJSON)
		if err != nil {
			return nil, fmt.Errorf("taxon %d: %w", t.ID, err)
		}
		children, err := jsonToIDs(childrenJSON)
		if err != nil {
			return nil, fmt.Errorf("taxon %d: %w", t.ID, err)
		}
		t.AncestorIDs = ancestors
		t.ChildIDs = children

		taxa = append(taxa, t)
	}

	return taxa, rows.Err()
}
