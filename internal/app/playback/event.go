package playback

import (
	"github.com/osa030/lightmusic/internal/app/player"
	"github.com/osa030/lightmusic/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventTrackOpened       EventType = iota // Track opened and playing
	EventTrackFailed                        // Track could not be opened and was skipped
	EventTrackEnded                         // Track played to the end
	EventPlaylistEnded                      // Walked past the last track
	EventPlaylistChanged                    // Tracks added, removed or reordered
	EventStateChanged                       // Paused, resumed or stopped
	EventRetryLimitReached                  // Too many consecutive failures, gave up
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackOpened:
		return "track_opened"
	case EventTrackFailed:
		return "track_failed"
	case EventTrackEnded:
		return "track_ended"
	case EventPlaylistEnded:
		return "playlist_ended"
	case EventPlaylistChanged:
		return "playlist_changed"
	case EventStateChanged:
		return "state_changed"
	case EventRetryLimitReached:
		return "retry_limit_reached"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type  EventType
	Index int          // Playlist index the event refers to
	Track *track.Track // Track at Index (nil when none)
	State player.State // Player state after the event
	Err   error        // Open failure for EventTrackFailed
}
