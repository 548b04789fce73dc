// Package catalog implements the cache-aside read path over the local
// mirror: reads prefer local records, fetch the remainder remotely in
// one batch, and write fetched records through to the mirror so the
// next read is served locally.
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/acormier/vireo/internal/domain"
)

// Options control how a read treats the local mirror
type Options struct {
	// AcceptPartial lets partial local records satisfy the read. When
	// false, a partial hit counts as a miss and is refetched.
	AcceptPartial bool

	// Refresh skips the local lookup entirely and refetches every
	// requested record from the source.
	Refresh bool
}

// Controller is the generic cache-aside engine shared by the taxon and
// observation catalogs. It is parameterized over the entity type; kind
// only labels log and error output.
type Controller[T domain.Entity] struct {
	kind    domain.EntityKind
	local   func(ctx context.Context, ids []int64) ([]T, error)
	remote  func(ctx context.Context, ids []int64) ([]T, error)
	persist func(ctx context.Context, records []T) error
	logger  *slog.Logger
}

// NewController wires a cache-aside controller from its three data
// accessors.
func NewController[T domain.Entity](
	kind domain.EntityKind,
	local func(ctx context.Context, ids []int64) ([]T, error),
	remote func(ctx context.Context, ids []int64) ([]T, error),
	persist func(ctx context.Context, records []T) error,
	logger *slog.Logger,
) *Controller[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller[T]{
		kind:    kind,
		local:   local,
		remote:  remote,
		persist: persist,
		logger:  logger,
	}
}

// GetByIDs returns the entities for ids, preferring the local mirror
// and fetching the remainder remotely in a single batched call. Fetched
// records are persisted best-effort; a persistence failure is logged
// and swallowed because the caller already holds the records. A remote
// fetch failure propagates with nothing returned.
//
// Result order is not guaranteed; callers sort if they need an order.
func (c *Controller[T]) GetByIDs(ctx context.Context, ids []int64, opts Options) ([]T, error) {
	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	var found []T
	if !opts.Refresh {
		local, err := c.local(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("local %s lookup: %w", c.kind, err)
		}
		if opts.AcceptPartial {
			found = local
		} else {
			// Partial hits count as misses so they get refetched whole
			for _, e := range local {
				if !e.IsPartial() {
					found = append(found, e)
				}
			}
		}
	}

	missing := domain.MissingIDs(ids, found)
	if len(missing) == 0 {
		return found, nil
	}

	c.logger.Debug("fetching missing records",
		"kind", c.kind.String(), "local", len(found), "missing", len(missing))

	fetched, err := c.remote(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("remote %s fetch: %w", c.kind, err)
	}

	if err := c.persist(ctx, fetched); err != nil {
		c.logger.Error("failed to persist fetched records",
			"kind", c.kind.String(), "count", len(fetched), "error", err)
	}

	return append(found, fetched...), nil
}

// dedupeIDs removes duplicate IDs preserving first-seen order
func dedupeIDs(ids []int64) []int64 {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[int64]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
