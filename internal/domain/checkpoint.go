package domain

import (
	"sort"
	"time"
)

// Display caps for the ranked taxon lists derived from AppState
// counters. History and frequency feed the "recently/frequently viewed"
// surfaces; observed feeds the user's life-list view.
const (
	MaxDisplayHistory  = 50
	MaxDisplayObserved = 100
)

// AppState is the process-wide sync checkpoint plus view bookkeeping.
// It is persisted as a single row (see AppStateStore) and must survive
// restarts; an interrupted sync resumes from SyncResumeID instead of
// re-fetching from LastSyncTime.
type AppState struct {
	// History is the append-only log of viewed taxon IDs, oldest first
	History []int64 `json:"history"`

	// Starred taxon IDs, in star order
	Starred []int64 `json:"starred"`

	// Frequent counts views per taxon ID
	Frequent map[int64]int `json:"frequent"`

	// Observed counts the user's synced observations per taxon ID
	Observed map[int64]int `json:"observed"`

	// SyncResumeID is the highest observation ID confirmed synced in
	// the current in-progress sync. Nil when no sync is underway or
	// the last one completed.
	SyncResumeID *int64 `json:"sync_resume_id"`

	// LastSyncTime is when the last full observation sync completed
	LastSyncTime *time.Time `json:"last_sync_time"`

	SetupComplete bool   `json:"setup_complete"`
	LastVersion   string `json:"last_version"`
}

// NewAppState returns the zero-valued default used on first run
func NewAppState() *AppState {
	return &AppState{
		Frequent: map[int64]int{},
		Observed: map[int64]int{},
	}
}

// ViewTaxon records one view of a taxon
func (s *AppState) ViewTaxon(id int64) {
	s.History = append(s.History, id)
	if s.Frequent == nil {
		s.Frequent = map[int64]int{}
	}
	s.Frequent[id]++
}

// RecordObserved adds n to a taxon's observation count
func (s *AppState) RecordObserved(id int64, n int) {
	if s.Observed == nil {
		s.Observed = map[int64]int{}
	}
	s.Observed[id] += n
}

// Star adds a taxon to the starred list if not already present
func (s *AppState) Star(id int64) {
	for _, existing := range s.Starred {
		if existing == id {
			return
		}
	}
	s.Starred = append(s.Starred, id)
}

// Unstar removes a taxon from the starred list
func (s *AppState) Unstar(id int64) {
	for i, existing := range s.Starred {
		if existing == id {
			s.Starred = append(s.Starred[:i], s.Starred[i+1:]...)
			return
		}
	}
}

// TopHistory returns the most recently viewed unique taxon IDs, newest
// first, capped at MaxDisplayHistory.
func (s *AppState) TopHistory() []int64 {
	seen := make(map[int64]bool, len(s.History))
	var top []int64
	for i := len(s.History) - 1; i >= 0 && len(top) < MaxDisplayHistory; i-- {
		id := s.History[i]
		if !seen[id] {
			seen[id] = true
			top = append(top, id)
		}
	}
	return top
}

// TopFrequent returns the most frequently viewed taxon IDs, capped at
// MaxDisplayHistory. Ties break toward the lower ID for stable output.
func (s *AppState) TopFrequent() []int64 {
	return topCounts(s.Frequent, MaxDisplayHistory)
}

// TopObserved returns the most observed taxon IDs, capped at
// MaxDisplayObserved.
func (s *AppState) TopObserved() []int64 {
	return topCounts(s.Observed, MaxDisplayObserved)
}

// DisplayIDs returns the union of all taxon IDs any display list may
// reference, for bulk prefetching.
func (s *AppState) DisplayIDs() []int64 {
	seen := map[int64]bool{}
	var ids []int64
	add := func(batch []int64) {
		for _, id := range batch {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	add(s.TopHistory())
	add(s.TopFrequent())
	add(s.TopObserved())
	add(s.Starred)
	return ids
}

// SetObservationCheckpoint marks a full sync as complete: the resume
// marker is cleared and the completion time stamped.
func (s *AppState) SetObservationCheckpoint(now time.Time) {
	s.SyncResumeID = nil
	t := now.UTC()
	s.LastSyncTime = &t
}

// AdvanceResumeID raises the resume marker, never lowering it. Returns
// true when the marker changed.
func (s *AppState) AdvanceResumeID(id int64) bool {
	if s.SyncResumeID != nil && *s.SyncResumeID >= id {
		return false
	}
	s.SyncResumeID = &id
	return true
}

func topCounts(counts map[int64]int, cap int) []int64 {
	ids := make([]int64, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > cap {
		ids = ids[:cap]
	}
	return ids
}
