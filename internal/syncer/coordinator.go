// Package syncer coordinates the observation mirror: paging reads out
// of the local store, and pulling the user's remote observations down
// page by page with a persistent resume checkpoint, so an interrupted
// sync continues where it stopped instead of starting over.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/acormier/vireo/internal/domain"
	"github.com/acormier/vireo/internal/scheduler"
)

const (
	// DefaultPageSize is the page length used when Config.PageSize is
	// unset. It matches the remote listing default, so one synced page
	// maps to one displayed page.
	DefaultPageSize = 50

	// pageCacheSize bounds the rendered-page LRU
	pageCacheSize = 20

	syncGroup = "observation-sync"
	pageGroup = "observation-pages"
)

// Catalog is the slice of the observation catalog the coordinator
// drives.
type Catalog interface {
	CountLocal(ctx context.Context, username string) (int, error)
	LocalPage(ctx context.Context, username string, page, pageSize int) ([]*domain.Observation, error)
	AttachTaxa(ctx context.Context, obs []*domain.Observation) error
	CountRemote(ctx context.Context, username string, idAbove int64) (int, error)
	FetchUserPage(ctx context.Context, username string, idAbove int64, perPage int) ([]*domain.Observation, int, error)
}

// Config tunes the coordinator.
type Config struct {
	// Username is the observer whose observations are mirrored
	Username string

	// PageSize is the rows per page (default DefaultPageSize)
	PageSize int

	// OnPage receives every loaded page. Cache hits deliver on the
	// caller's goroutine; store reads deliver on the scheduler's
	// dispatcher. Never invoked concurrently with itself from the
	// dispatcher side.
	OnPage func(page domain.Page)
}

// Coordinator owns the observation sync state machine. Construct with
// New, call Start to adopt the persisted checkpoint, then drive it with
// LoadPage and Sync.
type Coordinator struct {
	cfg    Config
	sched  *scheduler.Scheduler
	obs    Catalog
	states domain.AppStateStore
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	appState    *domain.AppState
	currentPage int
	totalPages  int
	loadedPages int
	totalRows   int
	cache       *pageCache
	coldStart   bool

	// set by the sync pager and read by the finished handler to tell a
	// completed pass from a cancelled or failed one
	syncDone    bool
	syncFailed  bool
	lastSyncErr error
}

// Status is a point-in-time snapshot of the coordinator
type Status struct {
	State       State
	Username    string
	CurrentPage int
	TotalPages  int
	LoadedPages int
	TotalRows   int
	CachedPages int
	ResumeID    *int64
	LastSync    *time.Time
	LastError   error
}

// syncPage carries one synced page from the pager to the result
// handler. localRows is the mirror's row count after persisting the
// page; -1 when the recount failed.
type syncPage struct {
	rows      []*domain.Observation
	localRows int
}

// New creates a coordinator. Call Start before anything else.
func New(cfg Config, sched *scheduler.Scheduler, obs Catalog, states domain.AppStateStore, logger *slog.Logger) *Coordinator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:    cfg,
		sched:  sched,
		obs:    obs,
		states: states,
		logger: logger,
		cache:  newPageCache(pageCacheSize),
	}
}

// Start adopts the persisted checkpoint and classifies the mirror as
// cold or warm. A cold mirror renders empty pages until the first sync;
// a warm one serves every page locally right away.
func (c *Coordinator) Start(ctx context.Context) error {
	st, err := c.states.ReadAppState(ctx)
	if err != nil {
		return fmt.Errorf("reading app state: %w", err)
	}
	count, err := c.obs.CountLocal(ctx, c.cfg.Username)
	if err != nil {
		return fmt.Errorf("counting local observations: %w", err)
	}

	c.mu.Lock()
	c.appState = st
	c.totalRows = count
	c.totalPages = c.pagesLocked(count)
	c.currentPage = 1
	if count == 0 {
		c.state = StateColdStart
		c.coldStart = true
		c.loadedPages = 0
	} else {
		c.state = StateWarm
		c.coldStart = false
		c.loadedPages = c.totalPages
	}
	state := c.state
	c.mu.Unlock()

	c.logger.Info("sync coordinator started",
		"username", c.cfg.Username, "local_rows", count, "state", state.String())
	return nil
}

// LoadPage loads one page of the mirror and delivers it to OnPage.
// Out-of-range numbers clamp to the nearest loadable page rather than
// failing. During cold start the empty page is delivered immediately so
// the consumer renders instead of waiting on the network.
func (c *Coordinator) LoadPage(page int) {
	c.mu.Lock()
	page = c.clampLocked(page)
	c.currentPage = page

	if c.coldStart {
		p := domain.Page{Number: page, TotalResults: c.totalRows}
		c.mu.Unlock()
		c.deliver(p)
		return
	}
	if cached, ok := c.cache.Get(page); ok {
		c.mu.Unlock()
		c.deliver(cached)
		return
	}
	c.mu.Unlock()

	c.logger.Debug("loading page", "page", page)

	username := c.cfg.Username
	size := c.cfg.PageSize
	c.sched.Schedule(func(ctx context.Context) (any, error) {
		rows, err := c.obs.LocalPage(ctx, username, page, size)
		if err != nil {
			return nil, fmt.Errorf("loading page %d: %w", page, err)
		}
		if err := c.obs.AttachTaxa(ctx, rows); err != nil {
			c.logger.Warn("failed to join taxa onto page", "page", page, "error", err)
		}
		return domain.Page{Number: page, TotalResults: c.rowsSnapshot(), Observations: rows}, nil
	}, scheduler.Signals{
		OnResult: func(v any) {
			p, ok := v.(domain.Page)
			if !ok {
				return
			}
			c.mu.Lock()
			c.cache.Put(p.Number, p)
			c.mu.Unlock()
			c.deliver(p)
		},
		OnError: func(err error) {
			c.logger.Error("page load failed", "page", page, "error", err)
		},
	}, scheduler.WithGroup(pageGroup), scheduler.WithPriority(scheduler.PriorityHigh))
}

// NextPage loads the page after the current one, clamped to the end
func (c *Coordinator) NextPage() {
	c.mu.Lock()
	page := c.currentPage + 1
	c.mu.Unlock()
	c.LoadPage(page)
}

// PrevPage loads the page before the current one, clamped to the start
func (c *Coordinator) PrevPage() {
	c.mu.Lock()
	page := c.currentPage - 1
	c.mu.Unlock()
	c.LoadPage(page)
}

// Sync pulls the user's observations down from the remote, resuming
// from the persisted checkpoint. It returns once the work is scheduled;
// pages surface through OnPage bookkeeping and completion through the
// persisted checkpoint. Returns ErrSyncInProgress when a sync is
// already running.
func (c *Coordinator) Sync(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateSyncing {
		c.mu.Unlock()
		return domain.ErrSyncInProgress
	}
	if c.appState == nil {
		c.mu.Unlock()
		return fmt.Errorf("coordinator not started")
	}
	prev := c.state
	c.state = StateSyncing
	c.syncDone = false
	c.syncFailed = false
	c.lastSyncErr = nil

	var resume int64
	if c.appState.SyncResumeID != nil {
		resume = *c.appState.SyncResumeID
	}
	if resume == 0 {
		// A fresh pass rebuilds the observed counters from scratch;
		// they are per-pass tallies, not an append-only log.
		c.appState.Observed = map[int64]int{}
	}
	c.mu.Unlock()

	username := c.cfg.Username
	size := c.cfg.PageSize

	// Probe how much work remains so the progress counters are
	// meaningful from the first page.
	expected, err := c.obs.CountRemote(ctx, username, resume)
	if err != nil {
		c.mu.Lock()
		c.state = prev
		c.mu.Unlock()
		return fmt.Errorf("probing remote count: %w", err)
	}

	c.logger.Info("starting observation sync",
		"username", username, "resume_id", resume, "remaining", expected)

	lastID := resume
	exhausted := false
	c.sched.SchedulePaginated(func(ctx context.Context) (any, int, bool, error) {
		if exhausted {
			c.noteSyncDone()
			return nil, 0, true, nil
		}
		rows, _, err := c.obs.FetchUserPage(ctx, username, lastID, size)
		if err != nil {
			return nil, 0, false, err
		}
		if len(rows) == 0 {
			c.noteSyncDone()
			return nil, 0, true, nil
		}
		if len(rows) < size {
			exhausted = true
		}
		for _, o := range rows {
			if o.ID > lastID {
				lastID = o.ID
			}
		}
		// The checkpoint is persisted before the page is emitted, so a
		// crash after emission never replays an already-consumed page.
		if err := c.advanceCheckpoint(ctx, rows, lastID); err != nil {
			return nil, 0, false, err
		}
		localRows := -1
		if n, err := c.obs.CountLocal(ctx, username); err == nil {
			localRows = n
		}
		return syncPage{rows: rows, localRows: localRows}, len(rows), false, nil
	}, scheduler.Signals{
		OnResult:   c.handleSyncPage,
		OnError:    c.handleSyncError,
		OnFinished: c.handleSyncFinished,
	}, scheduler.WithGroup(syncGroup), scheduler.WithTotal(expected))

	return nil
}

// Refresh discards the resume checkpoint and the page cache, then runs
// a full sync pass. Returns ErrSyncInProgress when a sync is already
// running.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateSyncing {
		c.mu.Unlock()
		return domain.ErrSyncInProgress
	}
	if c.appState != nil {
		c.appState.SyncResumeID = nil
	}
	c.cache.Clear()
	c.mu.Unlock()

	return c.Sync(ctx)
}

// Stop cancels in-flight sync and page work. The resume checkpoint
// keeps whatever the last persisted page earned, so the next Sync
// continues from there.
func (c *Coordinator) Stop() {
	c.sched.Cancel(syncGroup)
	c.sched.Cancel(pageGroup)
}

// Status returns a snapshot of the coordinator's counters
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:       c.state,
		Username:    c.cfg.Username,
		CurrentPage: c.currentPage,
		TotalPages:  c.totalPages,
		LoadedPages: c.loadedPages,
		TotalRows:   c.totalRows,
		CachedPages: c.cache.Len(),
		LastError:   c.lastSyncErr,
	}
	if c.appState != nil {
		if c.appState.SyncResumeID != nil {
			id := *c.appState.SyncResumeID
			st.ResumeID = &id
		}
		if c.appState.LastSyncTime != nil {
			t := *c.appState.LastSyncTime
			st.LastSync = &t
		}
	}
	return st
}

// State returns the coordinator's current phase
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// --- Sync signal handlers ---

// handleSyncPage folds one synced page into the paging counters. The
// first page of a cold start flips the mirror warm and reloads page 1
// so the consumer sees rows as soon as any exist.
func (c *Coordinator) handleSyncPage(v any) {
	p, ok := v.(syncPage)
	if !ok || len(p.rows) == 0 {
		return
	}

	c.mu.Lock()
	if p.localRows >= 0 {
		c.totalRows = p.localRows
	} else {
		c.totalRows += len(p.rows)
	}
	c.totalPages = c.pagesLocked(c.totalRows)
	c.loadedPages = c.totalPages
	first := c.coldStart
	c.coldStart = false
	c.mu.Unlock()

	c.logger.Debug("synced page", "rows", len(p.rows), "total_rows", c.rowsSnapshot())

	if first {
		c.LoadPage(1)
	}
}

func (c *Coordinator) handleSyncError(err error) {
	c.logger.Error("observation sync failed", "error", err)
	c.mu.Lock()
	c.syncFailed = true
	c.lastSyncErr = err
	c.mu.Unlock()
}

// handleSyncFinished closes out the pass. Only a pass whose pager ran
// to exhaustion counts as complete; cancellation and failure both leave
// the resume checkpoint standing so the next Sync picks up from it.
func (c *Coordinator) handleSyncFinished() {
	c.mu.Lock()
	success := c.syncDone && !c.syncFailed
	if success {
		c.appState.SetObservationCheckpoint(time.Now())
		c.cache.Clear()
		if err := c.states.WriteAppState(context.Background(), c.appState); err != nil {
			c.logger.Error("failed to persist sync completion", "error", err)
		}
	}
	c.state = StateIdle
	rows := c.totalRows
	err := c.lastSyncErr
	c.mu.Unlock()

	if success {
		c.logger.Info("observation sync complete", "username", c.cfg.Username, "total_rows", rows)
	} else {
		c.logger.Warn("observation sync did not complete", "username", c.cfg.Username, "error", err)
	}
}

// --- Private helpers ---

// advanceCheckpoint records the page's taxa tallies, raises the resume
// marker, and persists the whole checkpoint. Failure fails the page;
// an unpersisted checkpoint must not let its page count as synced.
func (c *Coordinator) advanceCheckpoint(ctx context.Context, rows []*domain.Observation, lastID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.appState.AdvanceResumeID(lastID)
	for _, o := range rows {
		if o.TaxonID != 0 {
			c.appState.RecordObserved(o.TaxonID, 1)
		}
	}
	if err := c.states.WriteAppState(ctx, c.appState); err != nil {
		return fmt.Errorf("persisting sync checkpoint: %w", err)
	}
	return nil
}

func (c *Coordinator) noteSyncDone() {
	c.mu.Lock()
	c.syncDone = true
	c.mu.Unlock()
}

func (c *Coordinator) deliver(p domain.Page) {
	if c.cfg.OnPage != nil {
		c.cfg.OnPage(p)
	}
}

func (c *Coordinator) rowsSnapshot() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalRows
}

// clampLocked bounds a requested page to [1, loadable]. Caller holds mu.
func (c *Coordinator) clampLocked(page int) int {
	max := c.totalPages
	if c.loadedPages < max {
		max = c.loadedPages
	}
	if max < 1 {
		max = 1
	}
	if page < 1 {
		return 1
	}
	if page > max {
		return max
	}
	return page
}

// pagesLocked returns how many pages n rows span. Caller holds mu.
func (c *Coordinator) pagesLocked(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + c.cfg.PageSize - 1) / c.cfg.PageSize
}
