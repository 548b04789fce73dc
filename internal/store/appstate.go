package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/acormier/vireo/internal/domain"
)

// ReadAppState loads the persisted checkpoint, returning a fresh default
// state when none has been written yet.
func (db *DB) ReadAppState(ctx context.Context) (*domain.AppState, error) {
	conn, err := db.handle()
	if err != nil {
		return nil, err
	}

	var content string
	err = conn.QueryRowContext(ctx,
		"SELECT content FROM app_state WHERE id = 0",
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewAppState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read app state: %w", err)
	}

	state := domain.NewAppState()
	if err := json.Unmarshal([]byte(content), state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal app state: %w", err)
	}

	// Explicit nulls in an older document deserialize maps back to nil
	if state.Frequent == nil {
		state.Frequent = map[int64]int{}
	}
	if state.Observed == nil {
		state.Observed = map[int64]int{}
	}

	return state, nil
}

// WriteAppState replaces the checkpoint row wholesale
func (db *DB) WriteAppState(ctx context.Context, state *domain.AppState) error {
	conn, err := db.handle()
	if err != nil {
		return err
	}

	content, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal app state: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM app_state"); err != nil {
		return fmt.Errorf("failed to clear app state: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO app_state (id, content, updated_at) VALUES (0, ?, ?)",
		string(content), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to write app state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit app state: %w", err)
	}

	return nil
}
