// Package scheduler runs deferred work on a bounded worker pool and
// reports lifecycle events through per-task signal callbacks.
//
// Tasks are queued with a priority and an optional group tag. Workers
// execute them off the caller's goroutine; results, errors, and
// progress increments are marshalled back through a single dispatcher
// goroutine so consumers never observe concurrent callbacks. Groups
// exist for bulk cancellation: cancelling a group drops its queued
// tasks and discards the results of its running ones without touching
// other groups.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// maxWorkers caps the pool regardless of core count. The remote API
// throttles aggressively past five concurrent requests, so a larger
// pool only trades throughput for rate-limit errors.
const maxWorkers = 5

// eventBuffer sizes the worker-to-dispatcher channel
const eventBuffer = 256

// Config tunes the scheduler.
type Config struct {
	// Workers is the worker goroutine count. Defaults to the core
	// count, capped at maxWorkers.
	Workers int

	// ResetDelay is the debounce before the aggregate progress
	// counters reset to zero after all work completes (default 1s)
	ResetDelay time.Duration
}

// DefaultConfig returns the standard scheduler configuration
func DefaultConfig() Config {
	workers := runtime.NumCPU()
	if workers > maxWorkers {
		workers = maxWorkers
	}
	if workers < 1 {
		workers = 1
	}
	return Config{
		Workers:    workers,
		ResetDelay: time.Second,
	}
}

// Scheduler executes tasks on a fixed pool of workers. The zero value
// is not usable; construct with New and release with Close.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cond    *sync.Cond // wakes workers on enqueue and close
	idle    *sync.Cond // broadcast when active drops to zero
	queues  [3][]*task // indexed by Priority, FIFO within a priority
	running map[*task]struct{}
	active  int // tasks whose finished signal has not yet dispatched
	closed  bool

	progress     *Progress
	events       chan event
	workers      sync.WaitGroup
	emitters     sync.WaitGroup // cancellation goroutines still emitting
	dispatchDone chan struct{}
}

// New starts a scheduler with cfg.Workers workers. A nil logger
// discards log output.
func New(cfg Config, logger *slog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = def.ResetDelay
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:          cfg,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		running:      make(map[*task]struct{}),
		progress:     newProgress(cfg.ResetDelay),
		events:       make(chan event, eventBuffer),
		dispatchDone: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.idle = sync.NewCond(&s.mu)

	for i := 0; i < cfg.Workers; i++ {
		s.workers.Add(1)
		go s.worker()
	}
	go s.dispatch()
	return s
}

// Schedule enqueues fn for execution on a worker and returns without
// blocking. sig.OnFinished fires exactly once whether fn returns,
// fails, or the task is cancelled before running; on success
// sig.OnResult fires with fn's return value, on failure sig.OnError
// fires with its error, never both.
func (s *Scheduler) Schedule(fn TaskFunc, sig Signals, opts ...Option) {
	t := &task{fn: fn, sig: sig, priority: PriorityNormal, weight: 1}
	for _, opt := range opts {
		opt(t)
	}
	s.enqueue(t)
}

// SchedulePaginated enqueues a paginated task. Each page produced by
// next fires one sig.OnResult and one sig.OnProgress with the page's
// row count, in production order; sig.OnFinished fires once the pager
// is exhausted, fails, or the task is cancelled. Progress already
// emitted is never retracted.
func (s *Scheduler) SchedulePaginated(next PageFunc, sig Signals, opts ...Option) {
	t := &task{pager: next, sig: sig, priority: PriorityNormal, weight: 1}
	for _, opt := range opts {
		opt(t)
	}
	s.enqueue(t)
}

func (s *Scheduler) enqueue(t *task) {
	if t.priority < PriorityLow || t.priority > PriorityHigh {
		t.priority = PriorityNormal
	}
	t.remaining = t.contribution()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("task scheduled after close", "group", t.group)
		if t.sig.OnFinished != nil {
			go t.sig.OnFinished()
		}
		return
	}
	s.progress.Add(t.remaining)
	s.queues[t.priority] = append(s.queues[t.priority], t)
	s.active++
	s.mu.Unlock()
	s.cond.Signal()
}

// Cancel drops every queued task tagged with group and discards the
// eventual results of its running tasks. Running tasks are not
// interrupted; they complete and their results are thrown away. Tasks
// in other groups are untouched, and the aggregate progress counters
// shrink by exactly the cancelled tasks' unearned contribution. Safe
// to call concurrently with task completion.
func (s *Scheduler) Cancel(group string) {
	s.cancelWhere(func(t *task) bool { return t.group == group }, false)
}

// CancelAll drops all queued tasks, discards the results of everything
// running, and resets the aggregate progress counters to zero.
func (s *Scheduler) CancelAll() {
	s.cancelWhere(func(t *task) bool { return true }, true)
}

func (s *Scheduler) cancelWhere(match func(*task) bool, reset bool) {
	var cancelled []*task
	refund := 0

	s.mu.Lock()
	for p := range s.queues {
		kept := s.queues[p][:0]
		for _, t := range s.queues[p] {
			if match(t) {
				t.state.Store(stateCancelled)
				refund += t.remaining
				t.remaining = 0
				cancelled = append(cancelled, t)
			} else {
				kept = append(kept, t)
			}
		}
		s.queues[p] = kept
	}
	for t := range s.running {
		if match(t) && !t.discarded.Load() {
			t.discarded.Store(true)
			refund += t.remaining
			t.remaining = 0
		}
	}
	emit := !s.closed && len(cancelled) > 0
	if emit {
		s.emitters.Add(1)
	}
	s.mu.Unlock()

	if reset {
		s.progress.Reset()
	} else {
		s.progress.Remove(refund)
	}

	// Finished signals for never-run tasks are emitted off the
	// caller's goroutine so Cancel stays non-blocking even when the
	// dispatcher is busy.
	if emit {
		go func() {
			defer s.emitters.Done()
			for _, t := range cancelled {
				s.events <- event{task: t, kind: evFinished}
			}
		}()
	}
}

// Progress exposes the aggregate work counters
func (s *Scheduler) Progress() *Progress {
	return s.progress
}

// Wait blocks until every scheduled task has dispatched its finished
// signal. It does not prevent new work from being scheduled. Must not
// be called from inside a signal callback.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	for s.active > 0 {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Close cancels queued work, waits for running tasks and their signals
// to drain, and stops the workers. Queued tasks still receive their
// finished signal. Must not be called from inside a signal callback.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var cancelled []*task
	for p := range s.queues {
		for _, t := range s.queues[p] {
			t.state.Store(stateCancelled)
			t.remaining = 0
			cancelled = append(cancelled, t)
		}
		s.queues[p] = nil
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	s.cancel()
	s.workers.Wait()
	s.emitters.Wait()
	for _, t := range cancelled {
		s.events <- event{task: t, kind: evFinished}
	}
	close(s.events)
	<-s.dispatchDone
	s.progress.Reset()
}

// worker pops tasks in priority order until the scheduler closes
func (s *Scheduler) worker() {
	defer s.workers.Done()
	for {
		t := s.next()
		if t == nil {
			return
		}
		if t.paginated() {
			s.runPaginated(t)
		} else {
			s.runPlain(t)
		}
	}
}

// next blocks until a task is available or the scheduler is closed
func (s *Scheduler) next() *task {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		for p := PriorityHigh; p >= PriorityLow; p-- {
			if q := s.queues[p]; len(q) > 0 {
				t := q[0]
				s.queues[p] = q[1:]
				t.state.Store(stateRunning)
				s.running[t] = struct{}{}
				return t
			}
		}
		if s.closed {
			return nil
		}
		s.cond.Wait()
	}
}

func (s *Scheduler) runPlain(t *task) {
	if t.discarded.Load() {
		s.finish(t)
		return
	}
	v, err := s.safeCall(t)

	if t.discarded.Load() {
		s.finish(t)
		return
	}
	if err != nil {
		s.logger.Error("task failed", "group", t.group, "error", err)
		s.emit(event{task: t, kind: evError, err: err})
	} else {
		s.emit(event{task: t, kind: evResult, value: v})
	}
	if t.weight > 0 {
		s.advance(t, t.weight)
		s.emit(event{task: t, kind: evProgress, n: t.weight})
	}
	s.finish(t)
}

func (s *Scheduler) runPaginated(t *task) {
	for {
		if t.discarded.Load() {
			s.finish(t)
			return
		}
		page, count, done, err := s.safeNext(t)
		if t.discarded.Load() {
			s.finish(t)
			return
		}
		if err != nil {
			s.logger.Error("paginated task failed", "group", t.group, "error", err)
			s.emit(event{task: t, kind: evError, err: err})
			break
		}
		if done {
			break
		}
		s.emit(event{task: t, kind: evResult, value: page})
		if count > 0 {
			s.advance(t, count)
			s.emit(event{task: t, kind: evProgress, n: count})
		}
	}

	// The task's own terminal unit, on top of any page counts
	s.advance(t, 1)
	s.emit(event{task: t, kind: evProgress, n: 1})
	s.finish(t)
}

// safeCall runs a plain task's function, converting panics to errors
// so a bad task can never take down a worker.
func (s *Scheduler) safeCall(t *task) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return t.fn(s.ctx)
}

// safeNext pulls one page from a paginated task's pager, converting
// panics to errors.
func (s *Scheduler) safeNext(t *task) (page any, count int, done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return t.pager(s.ctx)
}

// advance earns n aggregate units for t, shrinking its refundable
// contribution.
func (s *Scheduler) advance(t *task, n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	earned := n
	if earned > t.remaining {
		earned = t.remaining
	}
	t.remaining -= earned
	s.mu.Unlock()
	s.progress.Advance(n)
}

func (s *Scheduler) finish(t *task) {
	t.state.Store(stateDone)
	s.mu.Lock()
	delete(s.running, t)
	s.mu.Unlock()
	s.emit(event{task: t, kind: evFinished})
}

func (s *Scheduler) emit(ev event) {
	s.events <- ev
}

// dispatch is the single consumer of worker events. Invoking every
// signal callback from one goroutine gives callers the ordering
// guarantees of the signal contract without their own locking.
func (s *Scheduler) dispatch() {
	defer close(s.dispatchDone)
	for ev := range s.events {
		sig := ev.task.sig
		switch ev.kind {
		case evResult:
			if sig.OnResult != nil {
				sig.OnResult(ev.value)
			}
		case evProgress:
			if sig.OnProgress != nil {
				sig.OnProgress(ev.n)
			}
		case evError:
			if sig.OnError != nil {
				sig.OnError(ev.err)
			}
		case evFinished:
			if sig.OnFinished != nil {
				sig.OnFinished()
			}
			s.taskDone()
		}
	}
}

func (s *Scheduler) taskDone() {
	s.mu.Lock()
	s.active--
	if s.active <= 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}
