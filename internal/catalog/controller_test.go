package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/acormier/vireo/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ctrlHarness wires a controller over closures so each test scripts the
// three accessors directly.
type ctrlHarness struct {
	local       map[int64]*domain.Taxon
	remote      map[int64]*domain.Taxon
	remoteCalls int
	remoteIDs   []int64
	remoteErr   error
	persisted   []*domain.Taxon
	persistErr  error
}

func (h *ctrlHarness) controller() *Controller[*domain.Taxon] {
	return NewController(domain.KindTaxon,
		func(ctx context.Context, ids []int64) ([]*domain.Taxon, error) {
			var out []*domain.Taxon
			for _, id := range ids {
				if t, ok := h.local[id]; ok {
					out = append(out, t)
				}
			}
			return out, nil
		},
		func(ctx context.Context, ids []int64) ([]*domain.Taxon, error) {
			h.remoteCalls++
			h.remoteIDs = append(h.remoteIDs, ids...)
			if h.remoteErr != nil {
				return nil, h.remoteErr
			}
			var out []*domain.Taxon
			for _, id := range ids {
				if t, ok := h.remote[id]; ok {
					out = append(out, t)
				}
			}
			return out, nil
		},
		func(ctx context.Context, records []*domain.Taxon) error {
			if h.persistErr != nil {
				return h.persistErr
			}
			h.persisted = append(h.persisted, records...)
			return nil
		},
		testLogger(),
	)
}

func TestControllerServesLocalHits(t *testing.T) {
	h := &ctrlHarness{
		local: map[int64]*domain.Taxon{1: {ID: 1, Name: "Aves"}},
	}
	c := h.controller()

	got, err := c.GetByIDs(context.Background(), []int64{1}, Options{})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("expected local taxon 1, got %v", got)
	}
	if h.remoteCalls != 0 {
		t.Errorf("expected no remote fetch, got %d", h.remoteCalls)
	}
}

func TestControllerFetchesAndPersistsMissing(t *testing.T) {
	h := &ctrlHarness{
		local:  map[int64]*domain.Taxon{1: {ID: 1, Name: "Aves"}},
		remote: map[int64]*domain.Taxon{2: {ID: 2, Name: "Insecta", Partial: true}},
	}
	c := h.controller()

	got, err := c.GetByIDs(context.Background(), []int64{1, 2}, Options{AcceptPartial: true})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected union of local and fetched, got %d records", len(got))
	}
	if h.remoteCalls != 1 {
		t.Fatalf("expected one batched remote fetch, got %d", h.remoteCalls)
	}
	if len(h.remoteIDs) != 1 || h.remoteIDs[0] != 2 {
		t.Errorf("expected remote fetch of only the miss, got %v", h.remoteIDs)
	}
	if len(h.persisted) != 1 || h.persisted[0].ID != 2 {
		t.Errorf("expected fetched record persisted, got %v", h.persisted)
	}
}

func TestControllerPartialHitCountsAsMiss(t *testing.T) {
	h := &ctrlHarness{
		local:  map[int64]*domain.Taxon{1: {ID: 1, Name: "Aves", Partial: true}},
		remote: map[int64]*domain.Taxon{1: {ID: 1, Name: "Aves", Partial: true, Rank: "class"}},
	}
	c := h.controller()

	got, err := c.GetByIDs(context.Background(), []int64{1}, Options{})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if h.remoteCalls != 1 {
		t.Fatalf("expected partial hit to be refetched, remote calls = %d", h.remoteCalls)
	}
	if len(got) != 1 || got[0].Rank != "class" {
		t.Errorf("expected the refetched record, got %v", got)
	}
}

func TestControllerAcceptPartialKeepsLocal(t *testing.T) {
	h := &ctrlHarness{
		local: map[int64]*domain.Taxon{1: {ID: 1, Name: "Aves", Partial: true}},
	}
	c := h.controller()

	got, err := c.GetByIDs(context.Background(), []int64{1}, Options{AcceptPartial: true})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(got) != 1 || h.remoteCalls != 0 {
		t.Errorf("expected partial local hit accepted without fetch, got %d records, %d fetches", len(got), h.remoteCalls)
	}
}

func TestControllerRefreshSkipsLocal(t *testing.T) {
	h := &ctrlHarness{
		local:  map[int64]*domain.Taxon{1: {ID: 1, Name: "stale"}},
		remote: map[int64]*domain.Taxon{1: {ID: 1, Name: "fresh"}},
	}
	c := h.controller()

	got, err := c.GetByIDs(context.Background(), []int64{1}, Options{Refresh: true})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if h.remoteCalls != 1 {
		t.Fatalf("expected refresh to hit the remote, calls = %d", h.remoteCalls)
	}
	if len(got) != 1 || got[0].Name != "fresh" {
		t.Errorf("expected the refetched record, got %v", got)
	}
}

func TestControllerRemoteErrorPropagates(t *testing.T) {
	remoteErr := errors.New("api down")
	h := &ctrlHarness{remoteErr: remoteErr}
	c := h.controller()

	_, err := c.GetByIDs(context.Background(), []int64{1}, Options{})
	if !errors.Is(err, remoteErr) {
		t.Fatalf("expected remote error to propagate, got %v", err)
	}
	if len(h.persisted) != 0 {
		t.Errorf("expected nothing persisted on fetch failure")
	}
}

func TestControllerPersistFailureSwallowed(t *testing.T) {
	h := &ctrlHarness{
		remote:     map[int64]*domain.Taxon{1: {ID: 1, Name: "Aves"}},
		persistErr: errors.New("disk full"),
	}
	c := h.controller()

	got, err := c.GetByIDs(context.Background(), []int64{1}, Options{})
	if err != nil {
		t.Fatalf("expected persist failure to be swallowed, got %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("expected fetched record despite persist failure, got %v", got)
	}
}

func TestControllerDeduplicatesIDs(t *testing.T) {
	h := &ctrlHarness{
		remote: map[int64]*domain.Taxon{1: {ID: 1}, 2: {ID: 2}},
	}
	c := h.controller()

	got, err := c.GetByIDs(context.Background(), []int64{1, 1, 2, 1}, Options{})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 records for deduped request, got %d", len(got))
	}
	if len(h.remoteIDs) != 2 {
		t.Errorf("expected deduped remote fetch, got %v", h.remoteIDs)
	}
}

func TestControllerEmptyRequest(t *testing.T) {
	h := &ctrlHarness{}
	c := h.controller()

	got, err := c.GetByIDs(context.Background(), nil, Options{})
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for empty request, got %v, %v", got, err)
	}
	if h.remoteCalls != 0 {
		t.Errorf("expected no remote call for empty request")
	}
}
