package scheduler

import (
	"sync"
	"time"
)

// Progress is the scheduler's aggregate work counter: Max is the total
// expected units across all live tasks, Value the units completed so
// far. It is bookkeeping for progress indicators, not a correctness
// mechanism; a short debounce resets both counters to zero once all
// expected work has completed.
type Progress struct {
	mu         sync.Mutex
	value      int
	max        int
	resetDelay time.Duration
	timer      *time.Timer
}

// newProgress returns counters that reset resetDelay after completion
func newProgress(resetDelay time.Duration) *Progress {
	return &Progress{resetDelay: resetDelay}
}

// Add raises the expected total by n and aborts any pending reset
func (p *Progress) Add(n int) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.max += n
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Advance raises the completed count by n, capped at the expected
// total. Completion schedules the debounced reset.
func (p *Progress) Advance(n int) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value += n
	if p.value > p.max {
		p.value = p.max
	}
	p.maybeScheduleReset()
}

// Remove lowers the expected total by n, floored at the completed
// count. Used when queued tasks are cancelled before running.
func (p *Progress) Remove(n int) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.max -= n
	if p.max < p.value {
		p.max = p.value
	}
	p.maybeScheduleReset()
}

// Reset zeroes both counters immediately
func (p *Progress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}

// Current returns the completed and expected unit counts
func (p *Progress) Current() (value, max int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.max
}

// maybeScheduleReset arms the debounce timer when all expected work has
// completed. Caller holds p.mu.
func (p *Progress) maybeScheduleReset() {
	if p.max == 0 || p.value < p.max {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.resetDelay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		// New work may have arrived while the timer was pending
		if p.max > 0 && p.value >= p.max {
			p.reset()
		}
	})
}

// reset zeroes the counters and disarms the timer. Caller holds p.mu.
func (p *Progress) reset() {
	p.value = 0
	p.max = 0
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
