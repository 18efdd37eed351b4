// Package player plays one media file through a decode, resample and output pipeline.
package player

// State represents the track player state.
type State int

const (
	StateUninitialized State = iota // Nothing opened
	StatePlaying                    // Pipeline open, Tick moves data
	StatePaused                     // Pipeline open, Tick does nothing
	StateEnd                        // Source exhausted and sink flushed
	StateError                      // Open or read failed, nothing held
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnd:
		return "end"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// HasPipeline reports whether a player in this state holds an open pipeline.
func (s State) HasPipeline() bool {
	return s == StatePlaying || s == StatePaused || s == StateEnd
}
