package notification

import (
	"fmt"
	"io"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/app/playback"
	"github.com/osa030/lightmusic/internal/domain/audio"
)

// Notification is one playback event as seen by subscribers.
type Notification struct {
	SequenceNo uint64
	Time       time.Time
	Type       playback.EventType
	Index      int
	Path       string
	Title      string // display name of the track, empty when none
	Duration   time.Duration
	State      string
	Error      string
}

// FromEvent converts a controller event.
func FromEvent(e playback.Event) *Notification {
	n := &Notification{
		Time:  time.Now(),
		Type:  e.Type,
		Index: e.Index,
		State: e.State.String(),
	}
	if e.Track != nil {
		n.Path = e.Track.Path
		n.Title = e.Track.DisplayName()
		n.Duration = e.Track.Duration
	}
	if e.Err != nil {
		n.Error = e.Err.Error()
	}
	return n
}

// ConsoleStream prints a now-playing line for the events a listener cares about.
type ConsoleStream struct {
	w io.Writer
}

// NewConsoleStream creates a console subscriber writing to w.
func NewConsoleStream(w io.Writer) *ConsoleStream {
	return &ConsoleStream{w: w}
}

// Send implements Stream.
func (s *ConsoleStream) Send(n *Notification) error {
	var err error
	switch n.Type {
	case playback.EventTrackOpened:
		if n.Duration > 0 {
			_, err = fmt.Fprintf(s.w, "▶ [%d] %s (%s)\n", n.Index+1, n.Title, audio.FormatClock(int64(n.Duration.Seconds())))
		} else {
			_, err = fmt.Fprintf(s.w, "▶ [%d] %s\n", n.Index+1, n.Title)
		}
	case playback.EventTrackFailed:
		_, err = fmt.Fprintf(s.w, "✗ [%d] %s: %s\n", n.Index+1, n.Title, n.Error)
	case playback.EventPlaylistEnded:
		_, err = fmt.Fprintln(s.w, "■ playlist ended")
	case playback.EventRetryLimitReached:
		_, err = fmt.Fprintf(s.w, "✗ too many unplayable tracks, stopped at [%d]\n", n.Index+1)
	case playback.EventStateChanged:
		_, err = fmt.Fprintf(s.w, "  %s\n", n.State)
	}
	return err
}

// LogStream writes every notification to the debug log.
type LogStream struct{}

// Send implements Stream.
func (LogStream) Send(n *Notification) error {
	zlog.Debug().Msgf("notification: seq=%d type=%s index=%d state=%s path=%s",
		n.SequenceNo, n.Type, n.Index, n.State, n.Path)
	return nil
}
