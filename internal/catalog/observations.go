package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/acormier/vireo/internal/domain"
)

// Observations is the observation catalog. Individual reads go through
// the cache-aside controller; page fetches feed the sync pipeline and
// write through both the observations and their embedded taxa.
type Observations struct {
	ctrl   *Controller[*domain.Observation]
	db     domain.EntityStore
	src    domain.RemoteSource
	taxa   *Taxa
	logger *slog.Logger
}

// NewObservations creates an observation catalog over the local mirror
// and the remote source. The taxon catalog serves AttachTaxa joins.
func NewObservations(db domain.EntityStore, src domain.RemoteSource, taxa *Taxa, logger *slog.Logger) *Observations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observations{
		ctrl:   NewController(domain.KindObservation, db.GetObservations, src.ObservationsByIDs, db.UpsertObservations, logger),
		db:     db,
		src:    src,
		taxa:   taxa,
		logger: logger,
	}
}

// GetByIDs returns the observations for ids, fetching local misses
// remotely in one batch.
func (o *Observations) GetByIDs(ctx context.Context, ids []int64, opts Options) ([]*domain.Observation, error) {
	return o.ctrl.GetByIDs(ctx, ids, opts)
}

// AttachTaxa joins taxon records onto observations that reference one
// but do not carry it yet. Partial taxon records are accepted; display
// needs names, not the full taxonomy.
func (o *Observations) AttachTaxa(ctx context.Context, obs []*domain.Observation) error {
	var ids []int64
	seen := make(map[int64]bool)
	for _, ob := range obs {
		if ob.Taxon == nil && ob.TaxonID != 0 && !seen[ob.TaxonID] {
			seen[ob.TaxonID] = true
			ids = append(ids, ob.TaxonID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	taxa, err := o.taxa.GetByIDs(ctx, ids, Options{AcceptPartial: true})
	if err != nil {
		return fmt.Errorf("joining taxa: %w", err)
	}

	byID := make(map[int64]*domain.Taxon, len(taxa))
	for _, t := range taxa {
		byID[t.ID] = t
	}
	for _, ob := range obs {
		if ob.Taxon == nil && ob.TaxonID != 0 {
			ob.Taxon = byID[ob.TaxonID]
		}
	}
	return nil
}

// CountLocal returns the number of mirrored observations for a user
func (o *Observations) CountLocal(ctx context.Context, username string) (int, error) {
	return o.db.CountObservations(ctx, username)
}

// LocalPage reads one page of a user's mirrored observations, newest
// first. Page numbers are 1-based.
func (o *Observations) LocalPage(ctx context.Context, username string, page, pageSize int) ([]*domain.Observation, error) {
	return o.db.ObservationPage(ctx, username, page, pageSize)
}

// CountRemote returns the number of observations the remote holds for a
// user with IDs above idAbove, without fetching any rows.
func (o *Observations) CountRemote(ctx context.Context, username string, idAbove int64) (int, error) {
	return o.src.CountObservations(ctx, domain.ObservationQuery{
		Username: username,
		IDAbove:  idAbove,
	})
}

// FetchUserPage fetches one page of a user's observations ordered by ID
// ascending, for resumable sync. The rows and their embedded taxa are
// written through to the mirror best-effort; the page is returned even
// when persistence fails so the sync pipeline keeps moving. Returns the
// page and the remote's total result count for the query.
func (o *Observations) FetchUserPage(ctx context.Context, username string, idAbove int64, perPage int) ([]*domain.Observation, int, error) {
	obs, total, err := o.src.ObservationsPage(ctx, domain.ObservationQuery{
		Username: username,
		IDAbove:  idAbove,
		PerPage:  perPage,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("fetching observation page: %w", err)
	}
	if len(obs) == 0 {
		return nil, total, nil
	}

	if err := o.db.UpsertObservations(ctx, obs); err != nil {
		o.logger.Error("failed to persist synced observations",
			"count", len(obs), "error", err)
	}

	var taxa []*domain.Taxon
	seen := make(map[int64]bool)
	for _, ob := range obs {
		if ob.Taxon != nil && !seen[ob.Taxon.ID] {
			seen[ob.Taxon.ID] = true
			taxa = append(taxa, ob.Taxon)
		}
	}
	if len(taxa) > 0 {
		if err := o.db.UpsertTaxa(ctx, taxa); err != nil {
			o.logger.Error("failed to persist embedded taxa",
				"count", len(taxa), "error", err)
		}
	}

	return obs, total, nil
}
