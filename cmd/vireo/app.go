package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/acormier/vireo/internal/adapter"
	"github.com/acormier/vireo/internal/adapter/source/inat"
	"github.com/acormier/vireo/internal/catalog"
	"github.com/acormier/vireo/internal/images"
	"github.com/acormier/vireo/internal/scheduler"
	"github.com/acormier/vireo/internal/store"
)

// app bundles the wired stack for one command invocation.
type app struct {
	cfg    *adapter.Config
	logger *slog.Logger
	db     *store.DB
	photos *images.Cache
	sched  *scheduler.Scheduler
	taxa   *catalog.Taxa
	obs    *catalog.Observations
}

// openApp loads configuration and opens every backing service. Callers
// must defer close.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := adapter.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = adapter.NullLogger()
	}
	slog.SetDefault(logger)

	dataDir, err := cfg.DataPath()
	if err != nil {
		return nil, err
	}

	db, err := store.Open(filepath.Join(dataDir, "vireo.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	photos, err := images.Open(dataDir, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open photo cache: %w", err)
	}

	client := inat.NewClient(cfg.API.BaseURL, logger)
	taxa := catalog.NewTaxa(db, client, logger)
	obs := catalog.NewObservations(db, client, taxa, logger)
	sched := scheduler.New(scheduler.Config{Workers: cfg.Sync.Workers}, logger)

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		photos: photos,
		sched:  sched,
		taxa:   taxa,
		obs:    obs,
	}, nil
}

// close tears the stack down in reverse order. The scheduler goes first
// so no worker touches a closed store.
func (a *app) close() {
	a.sched.Close()
	if err := a.photos.Close(); err != nil {
		a.logger.Error("failed to close photo cache", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close store", "error", err)
	}
}

// username resolves the sync account, preferring the flag override.
func (a *app) username(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if a.cfg.Account.Username == "" {
		return "", fmt.Errorf("no username configured; run `vireo config --set-username <login>` or pass --username")
	}
	return a.cfg.Account.Username, nil
}
