package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/acormier/vireo/internal/domain"
	"github.com/acormier/vireo/internal/scheduler"
)

// fakeCatalog is an in-memory Catalog whose remote side serves canned
// rows in ID order. Fetches can be scripted to fail or block on a
// specific call.
type fakeCatalog struct {
	mu         sync.Mutex
	local      map[int64]*domain.Observation
	remote     []*domain.Observation // ID ascending
	fetchCalls int
	fetchArgs  []int64 // idAbove per fetch
	failCall   int     // 1-based fetch to fail, 0 = never
	failErr    error
	gateCall   int // 1-based fetch to block on
	gate       chan struct{}
	pageReads  int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{local: make(map[int64]*domain.Observation)}
}

func (f *fakeCatalog) CountLocal(ctx context.Context, username string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.local {
		if o.Username == username {
			n++
		}
	}
	return n, nil
}

func (f *fakeCatalog) LocalPage(ctx context.Context, username string, page, pageSize int) ([]*domain.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageReads++
	var rows []*domain.Observation
	for _, o := range f.local {
		if o.Username == username {
			cp := *o
			rows = append(rows, &cp)
		}
	}
	for i := 0; i < len(rows); i++ {
		for j := i + 1; j < len(rows); j++ {
			if rows[j].CreatedAt.After(rows[i].CreatedAt) ||
				(rows[j].CreatedAt.Equal(rows[i].CreatedAt) && rows[j].ID > rows[i].ID) {
				rows[i], rows[j] = rows[j], rows[i]
			}
		}
	}
	start := (page - 1) * pageSize
	if start >= len(rows) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end], nil
}

func (f *fakeCatalog) AttachTaxa(ctx context.Context, obs []*domain.Observation) error {
	return nil
}

func (f *fakeCatalog) CountRemote(ctx context.Context, username string, idAbove int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.remote {
		if o.Username == username && o.ID > idAbove {
			n++
		}
	}
	return n, nil
}

func (f *fakeCatalog) FetchUserPage(ctx context.Context, username string, idAbove int64, perPage int) ([]*domain.Observation, int, error) {
	f.mu.Lock()
	f.fetchCalls++
	call := f.fetchCalls
	f.fetchArgs = append(f.fetchArgs, idAbove)
	gate := f.gate
	gateCall := f.gateCall
	f.mu.Unlock()

	if gate != nil && call == gateCall {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCall != 0 && call == f.failCall {
		return nil, 0, f.failErr
	}
	var rows []*domain.Observation
	total := 0
	for _, o := range f.remote {
		if o.Username == username && o.ID > idAbove {
			total++
			if len(rows) < perPage {
				cp := *o
				rows = append(rows, &cp)
			}
		}
	}
	// Mirror the real catalog: rows land locally before they return
	for _, o := range rows {
		cp := *o
		f.local[o.ID] = &cp
	}
	return rows, total, nil
}

func (f *fakeCatalog) setFailCall(call int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCall = call
	f.failErr = err
}

func (f *fakeCatalog) args() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.fetchArgs...)
}

func (f *fakeCatalog) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageReads
}

// fakeStates persists AppState as JSON so every write is a real deep
// copy, and records the resume marker at each write.
type fakeStates struct {
	mu      sync.Mutex
	raw     []byte
	writes  int
	history []*int64
}

func (f *fakeStates) ReadAppState(ctx context.Context) (*domain.AppState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := domain.NewAppState()
	if f.raw != nil {
		if err := json.Unmarshal(f.raw, st); err != nil {
			return nil, err
		}
		if st.Frequent == nil {
			st.Frequent = map[int64]int{}
		}
		if st.Observed == nil {
			st.Observed = map[int64]int{}
		}
	}
	return st, nil
}

func (f *fakeStates) WriteAppState(ctx context.Context, st *domain.AppState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = raw
	f.writes++
	if st.SyncResumeID != nil {
		id := *st.SyncResumeID
		f.history = append(f.history, &id)
	} else {
		f.history = append(f.history, nil)
	}
	return nil
}

func (f *fakeStates) seed(t *testing.T, st *domain.AppState) {
	t.Helper()
	raw, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("seeding app state: %v", err)
	}
	f.mu.Lock()
	f.raw = raw
	f.mu.Unlock()
}

func (f *fakeStates) persisted(t *testing.T) *domain.AppState {
	t.Helper()
	st, err := f.ReadAppState(context.Background())
	if err != nil {
		t.Fatalf("reading persisted state: %v", err)
	}
	return st
}

func (f *fakeStates) resumeHistory() []*int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*int64(nil), f.history...)
}

// harness wires a coordinator over the fakes and a real scheduler,
// collecting every delivered page.
type harness struct {
	cat    *fakeCatalog
	states *fakeStates
	sched  *scheduler.Scheduler
	coord  *Coordinator

	mu    sync.Mutex
	pages []domain.Page
}

func newHarness(t *testing.T, pageSize int) *harness {
	t.Helper()
	h := &harness{cat: newFakeCatalog(), states: &fakeStates{}}
	h.sched = scheduler.New(scheduler.Config{Workers: 2}, nil)
	t.Cleanup(h.sched.Close)
	h.coord = New(Config{
		Username: "alice",
		PageSize: pageSize,
		OnPage: func(p domain.Page) {
			h.mu.Lock()
			h.pages = append(h.pages, p)
			h.mu.Unlock()
		},
	}, h.sched, h.cat, h.states, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.coord.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func (h *harness) delivered() []domain.Page {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Page(nil), h.pages...)
}

func (h *harness) lastPage(t *testing.T) domain.Page {
	t.Helper()
	pages := h.delivered()
	if len(pages) == 0 {
		t.Fatal("no pages delivered")
	}
	return pages[len(pages)-1]
}

func remoteObs(id, taxonID int64) *domain.Observation {
	return &domain.Observation{
		ID:        id,
		TaxonID:   taxonID,
		Username:  "alice",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute),
	}
}

func seedRemote(cat *fakeCatalog, n int, taxonID int64) {
	for id := int64(1); id <= int64(n); id++ {
		cat.remote = append(cat.remote, remoteObs(id, taxonID))
	}
}

func seedLocal(cat *fakeCatalog, n int, taxonID int64) {
	for id := int64(1); id <= int64(n); id++ {
		cat.local[id] = remoteObs(id, taxonID)
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartColdWhenMirrorEmpty(t *testing.T) {
	h := newHarness(t, 5)
	h.start(t)

	if h.coord.State() != StateColdStart {
		t.Errorf("expected cold start, got %s", h.coord.State())
	}
	st := h.coord.Status()
	if st.TotalRows != 0 || st.TotalPages != 0 || st.LoadedPages != 0 {
		t.Errorf("expected zeroed counters, got %+v", st)
	}
}

func TestStartWarmWithLocalRows(t *testing.T) {
	h := newHarness(t, 5)
	seedLocal(h.cat, 8, 100)
	h.start(t)

	if h.coord.State() != StateWarm {
		t.Errorf("expected warm start, got %s", h.coord.State())
	}
	st := h.coord.Status()
	if st.TotalRows != 8 || st.TotalPages != 2 || st.LoadedPages != 2 {
		t.Errorf("expected 8 rows over 2 loaded pages, got %+v", st)
	}
}

func TestColdStartDeliversEmptyPageImmediately(t *testing.T) {
	h := newHarness(t, 5)
	h.start(t)

	h.coord.LoadPage(3)

	pages := h.delivered()
	if len(pages) != 1 {
		t.Fatalf("expected immediate delivery, got %d pages", len(pages))
	}
	if pages[0].Number != 1 || !pages[0].IsEmpty() {
		t.Errorf("expected empty page 1, got %+v", pages[0])
	}
	if h.cat.reads() != 0 {
		t.Errorf("expected no store read during cold start, got %d", h.cat.reads())
	}
}

func TestColdStartSyncFlipsWarm(t *testing.T) {
	h := newHarness(t, 5)
	seedRemote(h.cat, 8, 100)
	h.start(t)

	if err := h.coord.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	h.sched.Wait()

	if h.coord.State() != StateIdle {
		t.Errorf("expected idle after sync, got %s", h.coord.State())
	}
	st := h.coord.Status()
	if st.TotalRows != 8 || st.TotalPages != 2 || st.LoadedPages != 2 {
		t.Errorf("expected 8 rows over 2 pages, got %+v", st)
	}

	persisted := h.states.persisted(t)
	if persisted.SyncResumeID != nil {
		t.Errorf("expected resume cleared after full sync, got %d", *persisted.SyncResumeID)
	}
	if persisted.LastSyncTime == nil {
		t.Error("expected completion time stamped")
	}
	if persisted.Observed[100] != 8 {
		t.Errorf("expected 8 observations tallied for taxon 100, got %d", persisted.Observed[100])
	}

	// The first synced page reloads page 1 so the consumer sees rows
	var reloaded *domain.Page
	for _, p := range h.delivered() {
		if !p.IsEmpty() && p.Number == 1 {
			cp := p
			reloaded = &cp
		}
	}
	if reloaded == nil {
		t.Fatal("expected a non-empty page 1 delivered during sync")
	}
	for i := 1; i < len(reloaded.Observations); i++ {
		if reloaded.Observations[i].CreatedAt.After(reloaded.Observations[i-1].CreatedAt) {
			t.Fatal("expected page sorted newest first")
		}
	}
}

func TestSyncPersistsCheckpointPerPage(t *testing.T) {
	h := newHarness(t, 5)
	seedRemote(h.cat, 8, 100)
	h.start(t)

	if err := h.coord.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	h.sched.Wait()

	history := h.states.resumeHistory()
	if len(history) != 3 {
		t.Fatalf("expected 3 checkpoint writes (two pages + completion), got %d", len(history))
	}
	if history[0] == nil || *history[0] != 5 {
		t.Errorf("expected first write at resume 5, got %v", history[0])
	}
	if history[1] == nil || *history[1] != 8 {
		t.Errorf("expected second write at resume 8, got %v", history[1])
	}
	if history[2] != nil {
		t.Errorf("expected completion write to clear resume, got %d", *history[2])
	}
}

func TestSyncFailureKeepsResumeThenResumes(t *testing.T) {
	h := newHarness(t, 5)
	seedRemote(h.cat, 8, 100)
	h.cat.setFailCall(2, errors.New("connection reset"))
	h.start(t)

	if err := h.coord.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	h.sched.Wait()

	if h.coord.State() != StateIdle {
		t.Errorf("expected idle after failed sync, got %s", h.coord.State())
	}
	if h.coord.Status().LastError == nil {
		t.Error("expected failure recorded in status")
	}
	persisted := h.states.persisted(t)
	if persisted.SyncResumeID == nil || *persisted.SyncResumeID != 5 {
		t.Fatalf("expected resume to survive the failure at 5, got %v", persisted.SyncResumeID)
	}
	if persisted.LastSyncTime != nil {
		t.Error("expected no completion stamp after failure")
	}

	// Second pass picks up above the checkpoint instead of refetching
	h.cat.setFailCall(0, nil)
	if err := h.coord.Sync(context.Background()); err != nil {
		t.Fatalf("resumed Sync: %v", err)
	}
	h.sched.Wait()

	args := h.cat.args()
	want := []int64{0, 5, 5}
	if len(args) != len(want) {
		t.Fatalf("expected fetches %v, got %v", want, args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("expected fetches %v, got %v", want, args)
		}
	}

	persisted = h.states.persisted(t)
	if persisted.SyncResumeID != nil {
		t.Errorf("expected resume cleared after completion, got %d", *persisted.SyncResumeID)
	}
	if persisted.LastSyncTime == nil {
		t.Error("expected completion stamp after resumed sync")
	}
	if persisted.Observed[100] != 8 {
		t.Errorf("expected tallies to span both passes, got %d", persisted.Observed[100])
	}
	if n, _ := h.cat.CountLocal(context.Background(), "alice"); n != 8 {
		t.Errorf("expected 8 mirrored rows without duplicates, got %d", n)
	}
}

func TestSyncRejectedWhileSyncing(t *testing.T) {
	h := newHarness(t, 5)
	seedRemote(h.cat, 8, 100)
	gate := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)
	h.cat.gate = gate
	h.cat.gateCall = 1
	h.start(t)

	if err := h.coord.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := h.coord.Sync(context.Background()); !errors.Is(err, domain.ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress from second Sync, got %v", err)
	}
	if err := h.coord.Refresh(context.Background()); !errors.Is(err, domain.ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress from Refresh, got %v", err)
	}

	release()
	h.sched.Wait()
	if h.coord.State() != StateIdle {
		t.Errorf("expected idle after release, got %s", h.coord.State())
	}
}

func TestRefreshClearsResumeAndRebuildsTallies(t *testing.T) {
	h := newHarness(t, 5)
	seedRemote(h.cat, 8, 100)
	seedLocal(h.cat, 5, 100)
	resume := int64(5)
	stale := domain.NewAppState()
	stale.SyncResumeID = &resume
	stale.Observed[100] = 5
	h.states.seed(t, stale)
	h.start(t)

	if err := h.coord.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	h.sched.Wait()

	args := h.cat.args()
	if len(args) == 0 || args[0] != 0 {
		t.Fatalf("expected refresh to restart from zero, got fetches %v", args)
	}

	persisted := h.states.persisted(t)
	if persisted.SyncResumeID != nil {
		t.Errorf("expected resume cleared, got %d", *persisted.SyncResumeID)
	}
	if persisted.Observed[100] != 8 {
		t.Errorf("expected tallies rebuilt to 8, not stacked on stale counts, got %d", persisted.Observed[100])
	}
	if n, _ := h.cat.CountLocal(context.Background(), "alice"); n != 8 {
		t.Errorf("expected 8 mirrored rows, got %d", n)
	}
}

func TestLoadPageClampsAndCaches(t *testing.T) {
	h := newHarness(t, 5)
	seedLocal(h.cat, 8, 100)
	h.start(t)

	h.coord.LoadPage(99)
	h.sched.Wait()
	if got := h.lastPage(t); got.Number != 2 {
		t.Errorf("expected clamp to last page 2, got %d", got.Number)
	}

	h.coord.LoadPage(-3)
	h.sched.Wait()
	if got := h.lastPage(t); got.Number != 1 {
		t.Errorf("expected clamp to first page, got %d", got.Number)
	}

	// Both pages are cached now; paging again touches no storage
	h.coord.NextPage()
	if got := h.lastPage(t); got.Number != 2 {
		t.Errorf("expected next page 2, got %d", got.Number)
	}
	h.coord.NextPage()
	if got := h.lastPage(t); got.Number != 2 {
		t.Errorf("expected next page clamped at 2, got %d", got.Number)
	}
	h.coord.PrevPage()
	if got := h.lastPage(t); got.Number != 1 {
		t.Errorf("expected previous page 1, got %d", got.Number)
	}
	if h.cat.reads() != 2 {
		t.Errorf("expected 2 store reads with cache serving the rest, got %d", h.cat.reads())
	}
}

func TestStopKeepsCheckpoint(t *testing.T) {
	h := newHarness(t, 5)
	seedRemote(h.cat, 8, 100)
	gate := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)
	h.cat.gate = gate
	h.cat.gateCall = 2
	h.start(t)

	if err := h.coord.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	waitFor(t, func() bool {
		return h.states.persisted(t).SyncResumeID != nil
	}, "first page checkpoint never persisted")

	h.coord.Stop()
	release()
	h.sched.Wait()

	if h.coord.State() != StateIdle {
		t.Errorf("expected idle after stop, got %s", h.coord.State())
	}
	persisted := h.states.persisted(t)
	if persisted.SyncResumeID == nil {
		t.Error("expected resume checkpoint kept after cancellation")
	}
	if persisted.LastSyncTime != nil {
		t.Error("expected cancellation not to count as completion")
	}
}

func TestSyncWithNothingRemote(t *testing.T) {
	h := newHarness(t, 5)
	h.start(t)

	if err := h.coord.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	h.sched.Wait()

	persisted := h.states.persisted(t)
	if persisted.LastSyncTime == nil {
		t.Error("expected an empty sync to count as complete")
	}
	if persisted.SyncResumeID != nil {
		t.Error("expected no resume marker after empty sync")
	}
	if h.coord.State() != StateIdle {
		t.Errorf("expected idle, got %s", h.coord.State())
	}
}

func TestSyncBeforeStart(t *testing.T) {
	h := newHarness(t, 5)
	if err := h.coord.Sync(context.Background()); err == nil {
		t.Fatal("expected error syncing before Start")
	}
}
