package domain

import (
	"context"
	"time"
)

// ObservationQuery narrows a remote observation listing. Zero values
// mean "no constraint"; IDAbove drives resumable pagination when the
// listing is ordered by ID ascending.
type ObservationQuery struct {
	Username     string     // Observer login (required for user sync)
	UpdatedSince *time.Time // Only records updated after this instant
	IDAbove      int64      // Only records with ID strictly greater
	Page         int        // 1-based page number
	PerPage      int        // Page size (remote caps at 200)
}

// RemoteSource is the paginated HTTP API the mirror is synchronized
// against. Transport errors surface as ordinary errors; retry policy
// belongs to the implementation, not the callers.
type RemoteSource interface {
	// TaxaByIDs fetches full taxon records in one batched call
	TaxaByIDs(ctx context.Context, ids []int64) ([]*Taxon, error)

	// ObservationsByIDs fetches full observation records in one batched call
	ObservationsByIDs(ctx context.Context, ids []int64) ([]*Observation, error)

	// CountObservations returns the total result count for a query
	// without fetching any rows
	CountObservations(ctx context.Context, q ObservationQuery) (int, error)

	// ObservationsPage fetches one page of a listing ordered by ID
	// ascending. Returns (rows, totalResults, error).
	ObservationsPage(ctx context.Context, q ObservationQuery) ([]*Observation, int, error)

	// SearchTaxa runs a name autocomplete query against the remote
	SearchTaxa(ctx context.Context, query string, limit int) ([]*Taxon, error)
}
