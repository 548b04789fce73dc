package syncer

// State is the coordinator's lifecycle phase.
type State int32

const (
	// StateColdStart means the local mirror holds no observations yet;
	// pages render empty until the first sync delivers rows.
	StateColdStart State = iota

	// StateWarm means the mirror serves pages and no sync is running
	StateWarm

	// StateSyncing means an observation sync is in flight
	StateSyncing

	// StateIdle means the last sync finished, successfully or not
	StateIdle
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateColdStart:
		return "cold-start"
	case StateWarm:
		return "warm"
	case StateSyncing:
		return "syncing"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}
