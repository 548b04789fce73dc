package scheduler

import (
	"context"
	"sync/atomic"
)

// Priority orders queued tasks. Workers always drain higher priorities
// first; within a priority, tasks run in schedule order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// String returns a human-readable priority name
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// TaskFunc is a unit of deferred work. The context is the scheduler's
// base context; it is cancelled on Close, not on group cancellation.
type TaskFunc func(ctx context.Context) (any, error)

// PageFunc produces the next page of a paginated task. Each call
// returns one page and its row count; a call returning done=true
// carries no page and ends the task successfully. Pages are delivered
// in the order produced, never reordered.
type PageFunc func(ctx context.Context) (page any, count int, done bool, err error)

// Signals is the observable side of a task. All callbacks are invoked
// from a single dispatcher goroutine, in order: zero or more OnResult
// and OnProgress calls, at most one of OnResult/OnError for a plain
// task, and exactly one OnFinished, always last, regardless of
// success, failure, or cancellation. Payloads are delivered as `any`;
// consumers type-assert.
//
// Nil callbacks are skipped.
type Signals struct {
	// OnProgress reports completed work units: the page length for
	// each page of a paginated task, the task's weight for a plain one
	OnProgress func(n int)

	// OnResult delivers the return value of a plain task, or one page
	// of a paginated task (fired once per page)
	OnResult func(v any)

	// OnError delivers the task's failure. At most one of
	// OnResult/OnError fires for a plain task; a paginated task may
	// deliver pages and then an error.
	OnError func(err error)

	// OnFinished fires exactly once per task, after every other
	// signal, whether the task returned, failed, or was cancelled
	// before running
	OnFinished func()
}

// Option configures a scheduled task
type Option func(*task)

// WithPriority sets the task's queue priority (default PriorityNormal)
func WithPriority(p Priority) Option {
	return func(t *task) { t.priority = p }
}

// WithGroup tags the task for bulk cancellation via Cancel
func WithGroup(group string) Option {
	return func(t *task) { t.group = group }
}

// WithWeight sets how many aggregate progress units a plain task
// contributes (default 1)
func WithWeight(n int) Option {
	return func(t *task) {
		if n >= 0 {
			t.weight = n
		}
	}
}

// WithTotal declares the expected row count of a paginated task so the
// aggregate counters can account for it up front. The count is
// bookkeeping only; the task runs to exhaustion regardless.
func WithTotal(n int) Option {
	return func(t *task) {
		if n >= 0 {
			t.expected = n
		}
	}
}

// task states
const (
	stateQueued int32 = iota
	stateRunning
	stateDone
	stateCancelled
)

// task is a scheduled unit of work, owned by the scheduler from
// schedule until its finished signal dispatches.
type task struct {
	fn    TaskFunc
	pager PageFunc
	sig   Signals

	priority Priority
	group    string
	weight   int // progress contribution of a plain task
	expected int // declared row count of a paginated task

	state     atomic.Int32
	discarded atomic.Bool // set when cancelled while running

	// remaining aggregate units not yet advanced; guarded by the
	// scheduler mutex so group cancellation can return exactly the
	// unearned contribution
	remaining int
}

func (t *task) paginated() bool { return t.pager != nil }

// contribution returns the progress units this task adds when
// scheduled: its weight, plus one terminal unit for paginated tasks on
// top of their declared total.
func (t *task) contribution() int {
	if t.paginated() {
		return t.expected + 1
	}
	return t.weight
}

// event kinds carried from workers to the dispatcher
const (
	evResult int = iota
	evProgress
	evError
	evFinished
)

type event struct {
	task  *task
	kind  int
	value any
	n     int
	err   error
}
