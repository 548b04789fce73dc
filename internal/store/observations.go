package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/acormier/vireo/internal/domain"
)

// GetObservations returns the locally stored observations among ids.
// Missing IDs are simply absent from the result. Taxon records are not
// joined here; callers resolve them through the taxa queries.
func (db *DB) GetObservations(ctx context.Context, ids []int64) ([]*domain.Observation, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	conn, err := db.handle()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
	SELECT id, taxon_id, username, created_at, observed_on, updated_at,
	       description, place_guess, quality_grade, photo_urls, partial
	FROM observations
	WHERE id IN (%s)`, placeholders(len(ids)))

	rows, err := conn.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// UpsertObservations inserts or replaces observations in a single
// transaction. Every column is written wholesale.
func (db *DB) UpsertObservations(ctx context.Context, obs []*domain.Observation) error {
	if len(obs) == 0 {
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
	INSERT INTO observations (
		id, taxon_id, username, created_at, observed_on, updated_at,
		description, place_guess, quality_grade, photo_urls, partial
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		taxon_id = excluded.taxon_id,
		username = excluded.username,
		created_at = excluded.created_at,
		observed_on = excluded.observed_on,
		updated_at = excluded.updated_at,
		description = excluded.description,
		place_guess = excluded.place_guess,
		quality_grade = excluded.quality_grade,
		photo_urls = excluded.photo_urls,
		partial = excluded.partial
	`

	for _, o := range obs {
		photosJSON, err := stringsToJSON(o.PhotoURLs)
		if err != nil {
			return fmt.Errorf("observation %d: %w", o.ID, err)
		}

		if _, err := tx.ExecContext(ctx, query,
			o.ID,
			o.TaxonID,
			o.Username,
			o.CreatedAt.UTC().Format(time.RFC3339),
			timeToNullString(o.ObservedOn),
			timeToNullString(o.UpdatedAt),
			o.Description,
			o.PlaceGuess,
			o.QualityGrade,
			photosJSON,
			o.Partial,
		); err != nil {
			return fmt.Errorf("failed to upsert observation %d: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit observations: %w", err)
	}

	return nil
}

// CountObservations returns how many observations the mirror holds for
// a user.
func (db *DB) CountObservations(ctx context.Context, username string) (int, error) {
	conn, err := db.handle()
	if err != nil {
		return 0, err
	}

	var count int
	err = conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM observations WHERE username = ?", username,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return count, nil
}

// ObservationPage reads one page of a user's observations ordered by
// creation time descending. Pages are 1-based; a page past the end is
// empty, not an error.
func (db *DB) ObservationPage(ctx context.Context, username string, page, pageSize int) ([]*domain.Observation, error) {
	if pageSize <= 0 {
		return nil, nil
	}
	if page < 1 {
		page = 1
	}

	conn, err := db.handle()
	if err != nil {
		return nil, err
	}

	query := `
	SELECT id, taxon_id, username, created_at, observed_on, updated_at,
	       description, place_guess, quality_grade, photo_urls, partial
	FROM observations
	WHERE username = ?
	ORDER BY created_at DESC, id DESC
	LIMIT ? OFFSET ?`

	rows, err := conn.QueryContext(ctx, query, username, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query observation page: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// scanObservations converts query rows into observation records
func scanObservations(rows *sql.Rows) ([]*domain.Observation, error) {
	var obs []*domain.Observation

	for rows.Next() {
		o := &domain.Observation{}
		var created string
		var observedOn, updatedAt sql.NullString
		var photosJSON string

		if err := rows.Scan(
			&o.ID,
			&o.TaxonID,
			&o.Username,
			&created,
			&observedOn,
			&updatedAt,
			&o.Description,
			&o.PlaceGuess,
			&o.QualityGrade,
			&photosJSON,
			&o.Partial,
		); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}

		o.CreatedAt = nullStringToTime(sql.NullString{String: created, Valid: true})
		o.ObservedOn = nullStringToTime(observedOn)
		o.UpdatedAt = nullStringToTime(updatedAt)

		photos, err := jsonToStrings(photosJSON)
		if err != nil {
			return nil, fmt.Errorf("observation %d: %w", o.ID, err)
		}
		o.PhotoURLs = photos

		obs = append(obs, o)
	}

	return obs, rows.Err()
}
