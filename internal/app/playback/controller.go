// Package playback sequences a playlist through a single track player.
package playback

import (
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/app/player"
	"github.com/osa030/lightmusic/internal/domain/playlist"
	"github.com/osa030/lightmusic/internal/domain/track"
)

// Errors
var (
	ErrEmptyPlaylist = errors.New("playlist is empty")
	ErrNoTrack       = errors.New("no track open")
)

// DefaultMaxConsecutiveFailures bounds how many tracks one open attempt skips.
const DefaultMaxConsecutiveFailures = 100

// RemovePolicy decides what happens when the current track is removed.
type RemovePolicy int

const (
	RemoveStop    RemovePolicy = iota // Close the player and wait for StartPlaying
	RemoveAdvance                     // Let the next tick open the track now in the slot
)

// ParseRemovePolicy parses "stop" or "advance". Anything else is stop.
func ParseRemovePolicy(s string) RemovePolicy {
	if s == "advance" {
		return RemoveAdvance
	}
	return RemoveStop
}

// TrackPlayer is the player the controller drives.
type TrackPlayer interface {
	State() player.State
	Open(path, device string) error
	Tick()
	Pause() error
	Unpause() error
	SeekTo(t time.Duration) error
	CloseAndReset()
	Position() int64
	Duration() int64
	ContainerText() string
	StreamText() string
}

// Config holds controller configuration.
type Config struct {
	Device                 string       // Output device name, fixed for the controller's lifetime
	MaxConsecutiveFailures int          // 0 means DefaultMaxConsecutiveFailures
	RemoveCurrent          RemovePolicy // Policy when the current track is removed
	Seed                   uint64       // Shuffle seed, 0 picks a random one
}

// Controller owns a playlist and the current index into it.
// index is in [0, len) while a track is selected and equals len once the
// list is exhausted or empty. Like the player, it is driven by one caller.
type Controller struct {
	list     *playlist.Playlist
	player   TrackPlayer
	config   Config
	rng      *rand.Rand
	index    int
	failures int

	running     bool   // playback was started; new tracks at the end are picked up
	endedLogged bool   // "playlist ended" reported for the current ending
	lastSeen    uint64 // version seen by IsPlaylistChangedSinceLastTime

	eventCh chan Event
}

// NewController creates a controller over the given tracks. Nothing is opened
// until StartPlaying or one of the jump operations is called.
func NewController(p TrackPlayer, config Config, tracks ...track.Track) *Controller {
	if config.MaxConsecutiveFailures <= 0 {
		config.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	list := playlist.New(tracks...)
	return &Controller{
		list:     list,
		player:   p,
		config:   config,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		lastSeen: list.Version(),
		eventCh:  make(chan Event, 64),
	}
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// OpenTrackAtIndex opens track i, skipping forward past tracks that fail to
// open. It gives up after MaxConsecutiveFailures failures in a row, leaving
// the player in Error at the last attempted index. Walking past the last
// track closes the player and marks the list as ended.
func (c *Controller) OpenTrackAtIndex(i int) {
	n := c.list.Len()
	if n == 0 {
		c.index = 0
		return
	}
	if i < 0 {
		i = 0
	}

	for {
		if i >= n {
			c.index = n
			c.player.CloseAndReset()
			c.logEnded()
			c.sendEvent(Event{Type: EventPlaylistEnded, Index: n})
			return
		}

		c.index = i
		t, _ := c.list.At(i)
		err := c.player.Open(t.Path, c.config.Device)
		if err == nil {
			c.failures = 0
			c.running = true
			c.endedLogged = false
			zlog.Info().Msgf("playback: now playing: index=%d track=%s", i, t.DisplayName())
			c.sendEvent(Event{Type: EventTrackOpened, Index: i, Track: &t})
			return
		}

		c.failures++
		zlog.Warn().Err(err).Msgf("playback: skipping track: index=%d path=%s failures=%d", i, t.Path, c.failures)
		c.sendEvent(Event{Type: EventTrackFailed, Index: i, Track: &t, Err: err})

		if c.failures > c.config.MaxConsecutiveFailures {
			zlog.Error().Msgf("playback: giving up after %d consecutive failures: index=%d", c.failures, i)
			c.failures = 0
			c.sendEvent(Event{Type: EventRetryLimitReached, Index: i, Track: &t})
			return
		}
		i++
	}
}

// TickCurrentTrack advances past ended or failed tracks and moves one packet
// of the current track. Only a Playing player is ticked.
func (c *Controller) TickCurrentTrack() {
	n := c.list.Len()
	if n == 0 {
		return
	}

	switch c.player.State() {
	case player.StateEnd:
		if c.index < n {
			t, _ := c.list.At(c.index)
			c.sendEvent(Event{Type: EventTrackEnded, Index: c.index, Track: &t})
		}
		c.OpenTrackAtIndex(c.index + 1)
	case player.StateError:
		c.OpenTrackAtIndex(c.index + 1)
	case player.StateUninitialized:
		// tracks appended after the end, or the slot left by a removal
		if c.running && c.index < n {
			c.OpenTrackAtIndex(c.index)
		}
	}

	if c.index >= c.list.Len() {
		c.logEnded()
		return
	}
	if c.player.State() == player.StatePlaying {
		c.player.Tick()
	}
}

func (c *Controller) logEnded() {
	if c.endedLogged {
		return
	}
	c.endedLogged = true
	zlog.Info().Msgf("playback: playlist ended: tracks=%d", c.list.Len())
}

// JumpToNextTrack opens the next track. Jumping from the last track ends the list.
func (c *Controller) JumpToNextTrack() {
	c.OpenTrackAtIndex(c.index + 1)
}

// JumpToPrevTrack opens the previous track, staying on the first one.
func (c *Controller) JumpToPrevTrack() {
	c.OpenTrackAtIndex(max(c.index-1, 0))
}

// ReloadCurrentTrack reopens the current track from the start.
func (c *Controller) ReloadCurrentTrack() {
	c.OpenTrackAtIndex(c.index)
}

// Shuffle permutes the list uniformly and plays from the first track.
func (c *Controller) Shuffle() {
	if c.list.Len() == 0 {
		return
	}
	c.list.Shuffle(c.rng)
	c.sendEvent(Event{Type: EventPlaylistChanged, Index: 0})
	c.OpenTrackAtIndex(0)
}

// AddNewTrack appends the file at path.
func (c *Controller) AddNewTrack(path string) track.Track {
	t := track.New(path, track.OriginUser)
	c.AddTracks(t)
	return t
}

// AddTracks appends tracks.
func (c *Controller) AddTracks(tracks ...track.Track) {
	if len(tracks) == 0 {
		return
	}
	c.list.Add(tracks...)
	zlog.Debug().Msgf("playback: tracks added: count=%d total=%d", len(tracks), c.list.Len())
	c.sendEvent(Event{Type: EventPlaylistChanged, Index: c.index})
}

// RemoveTrack removes entry i. The index keeps naming the same track; when
// the current track itself is removed the remove policy applies.
func (c *Controller) RemoveTrack(i int) error {
	removed, err := c.list.RemoveAt(i)
	if err != nil {
		return err
	}

	switch {
	case i < c.index:
		c.index--
	case i == c.index:
		c.player.CloseAndReset()
		if c.config.RemoveCurrent == RemoveStop {
			c.running = false
		}
		zlog.Info().Msgf("playback: current track removed: track=%s", removed.DisplayName())
	}
	c.sendEvent(Event{Type: EventPlaylistChanged, Index: c.index})
	return nil
}

// RemoveTrackByID removes the entry with the given identity.
func (c *Controller) RemoveTrackByID(id string) error {
	i := c.list.IndexOf(id)
	if i < 0 {
		return errors.Wrapf(playlist.ErrIndexOutOfRange, "track %s", id)
	}
	return c.RemoveTrack(i)
}

// RemoveAllTracks empties the list and closes the player.
func (c *Controller) RemoveAllTracks() {
	c.player.CloseAndReset()
	c.list.Clear()
	c.index = 0
	c.running = false
	c.failures = 0
	c.sendEvent(Event{Type: EventPlaylistChanged})
}

// IsPlaylistChangedSinceLastTime reports whether the list changed since the
// previous call. It has a single reader; use Watch for more observers.
func (c *Controller) IsPlaylistChangedSinceLastTime() bool {
	v := c.list.Version()
	if v == c.lastSeen {
		return false
	}
	c.lastSeen = v
	return true
}

// Watch returns an independent change watcher.
func (c *Controller) Watch() *playlist.Watcher {
	return c.list.Watch()
}

// StartPlaying opens the current track if nothing is open and resumes playback.
// An ended list starts over from the first track.
func (c *Controller) StartPlaying() error {
	n := c.list.Len()
	if n == 0 {
		return ErrEmptyPlaylist
	}
	c.running = true

	switch c.player.State() {
	case player.StateUninitialized, player.StateError, player.StateEnd:
		i := c.index
		if i >= n {
			i = 0
		}
		if c.player.State() == player.StateEnd {
			i = c.index + 1
		}
		c.OpenTrackAtIndex(i)
		return nil
	case player.StatePaused:
		if err := c.player.Unpause(); err != nil {
			return err
		}
		c.sendState()
	}
	return nil
}

// Stop pauses and rewinds the current track.
func (c *Controller) Stop() error {
	c.running = false
	if !c.player.State().HasPipeline() {
		return ErrNoTrack
	}
	if c.player.State() == player.StatePlaying {
		if err := c.player.Pause(); err != nil {
			return err
		}
	}
	if err := c.player.SeekTo(0); err != nil {
		return err
	}
	c.sendState()
	return nil
}

// PauseCurrentTrack pauses the current track.
func (c *Controller) PauseCurrentTrack() error {
	if err := c.player.Pause(); err != nil {
		return err
	}
	c.sendState()
	return nil
}

// UnpauseCurrentTrack resumes the current track.
func (c *Controller) UnpauseCurrentTrack() error {
	if err := c.player.Unpause(); err != nil {
		return err
	}
	c.running = true
	c.sendState()
	return nil
}

// TogglePause pauses a playing track and resumes a paused one.
func (c *Controller) TogglePause() error {
	if c.player.State() == player.StatePlaying {
		return c.PauseCurrentTrack()
	}
	if c.player.State() == player.StatePaused {
		return c.UnpauseCurrentTrack()
	}
	return c.StartPlaying()
}

// SeekCurrentTrack seeks to the given position in seconds, clamped to the track.
func (c *Controller) SeekCurrentTrack(seconds int64) error {
	if seconds < 0 {
		seconds = 0
	}
	if d := c.player.Duration(); d > 0 && seconds > d {
		seconds = d
	}
	if err := c.player.SeekTo(time.Duration(seconds) * time.Second); err != nil {
		return err
	}
	return nil
}

// SeekRelative moves the position by delta seconds.
func (c *Controller) SeekRelative(delta int64) error {
	return c.SeekCurrentTrack(c.player.Position() + delta)
}

// IsPlaying reports whether the current track is playing.
func (c *Controller) IsPlaying() bool {
	return c.player.State() == player.StatePlaying
}

// HasEnded reports whether the list is exhausted or empty.
func (c *Controller) HasEnded() bool {
	return c.index >= c.list.Len()
}

// State returns the player state.
func (c *Controller) State() player.State {
	return c.player.State()
}

// CurrentIndex returns the current index.
func (c *Controller) CurrentIndex() int {
	return c.index
}

// Len returns the number of tracks.
func (c *Controller) Len() int {
	return c.list.Len()
}

// TrackPathAt returns the path of entry i.
func (c *Controller) TrackPathAt(i int) (string, error) {
	t, err := c.list.At(i)
	if err != nil {
		return "", err
	}
	return t.Path, nil
}

// Tracks returns a copy of the list.
func (c *Controller) Tracks() []track.Track {
	return c.list.Tracks()
}

// ContainsPath reports whether a track with the path is in the list.
func (c *Controller) ContainsPath(path string) bool {
	return c.list.ContainsPath(path)
}

// CurrentTrack returns the track at the current index.
func (c *Controller) CurrentTrack() (track.Track, bool) {
	t, err := c.list.At(c.index)
	if err != nil {
		return track.Track{}, false
	}
	return t, true
}

// Position returns the current position in seconds.
func (c *Controller) Position() int64 {
	return c.player.Position()
}

// Duration returns the current track duration in seconds.
func (c *Controller) Duration() int64 {
	return c.player.Duration()
}

// ContainerText returns the container metadata of the current track.
func (c *Controller) ContainerText() string {
	return c.player.ContainerText()
}

// StreamText returns the stream metadata of the current track.
func (c *Controller) StreamText() string {
	return c.player.StreamText()
}

// Close closes the player and the event channel.
func (c *Controller) Close() {
	c.player.CloseAndReset()
	close(c.eventCh)
}

func (c *Controller) sendState() {
	e := Event{Type: EventStateChanged, Index: c.index}
	if t, ok := c.CurrentTrack(); ok {
		e.Track = &t
	}
	c.sendEvent(e)
}

// sendEvent sends an event without blocking.
func (c *Controller) sendEvent(e Event) {
	e.State = c.player.State()
	select {
	case c.eventCh <- e:
	default:
		zlog.Debug().Msgf("playback: event dropped, channel full: type=%s", e.Type)
	}
}
