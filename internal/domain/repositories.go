package domain

import (
	"context"
)

// EntityStore is the local mirror's persistence contract. All writes
// are single-statement upserts so concurrent writers cannot interleave
// a partial record.
type EntityStore interface {
	// === Taxa ===
	GetTaxa(ctx context.Context, ids []int64) ([]*Taxon, error)
	UpsertTaxa(ctx context.Context, taxa []*Taxon) error
	SearchTaxaByName(ctx context.Context, query string, limit int) ([]*Taxon, error)

	// === Observations ===
	GetObservations(ctx context.Context, ids []int64) ([]*Observation, error)
	UpsertObservations(ctx context.Context, obs []*Observation) error

	// CountObservations returns the local row count for a user
	CountObservations(ctx context.Context, username string) (int, error)

	// ObservationPage reads one local page sorted by creation time
	// descending. Page numbers are 1-based.
	ObservationPage(ctx context.Context, username string, page, pageSize int) ([]*Observation, error)
}

// AppStateStore persists the single-row sync checkpoint. Read returns
// a zero-valued default when no row exists yet; Write replaces the row
// wholesale.
type AppStateStore interface {
	ReadAppState(ctx context.Context) (*AppState, error)
	WriteAppState(ctx context.Context, state *AppState) error
}
