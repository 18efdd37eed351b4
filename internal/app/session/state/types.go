// Package state provides session state management.
package state

// Phase represents the session lifecycle phase.
type Phase int

const (
	PhaseLoading    Phase = iota // Building the track list
	PhaseActive                  // A track is open
	PhaseIdle                    // Nothing open: list ended, stopped, or empty
	PhaseTerminated              // Session has ended
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseActive:
		return "active"
	case PhaseIdle:
		return "idle"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// WatchState represents whether new files from watched directories are admitted.
type WatchState int

const (
	NotWatching WatchState = iota // No watcher, or admission paused
	Watching                      // New files are admitted
)

// String returns the string representation of the watch state.
func (w WatchState) String() string {
	switch w {
	case NotWatching:
		return "not_watching"
	case Watching:
		return "watching"
	default:
		return "unknown"
	}
}
