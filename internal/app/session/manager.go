// Package session provides the session manager that drives playback.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/app/filter"
	"github.com/osa030/lightmusic/internal/app/library"
	"github.com/osa030/lightmusic/internal/app/notification"
	"github.com/osa030/lightmusic/internal/app/playback"
	"github.com/osa030/lightmusic/internal/app/player"
	"github.com/osa030/lightmusic/internal/app/session/state"
	"github.com/osa030/lightmusic/internal/domain/audio"
	"github.com/osa030/lightmusic/internal/domain/track"
	"github.com/osa030/lightmusic/internal/infra/config"
	"github.com/osa030/lightmusic/internal/infra/media"
	"github.com/osa030/lightmusic/internal/infra/watch"
)

var (
	ErrSessionNotRunning = errors.New("session is not running")
	ErrNothingToPlay     = errors.New("no tracks to play")
)

// Options carries what the manager needs besides configuration.
type Options struct {
	Args     []string             // Paths from the command line, listed before configured providers
	Player   playback.TrackPlayer // nil builds a player on the configured output
	ReadInfo library.InfoFunc     // nil uses media.ReadInfo
	Out      io.Writer            // Now-playing display, nil uses stdout
}

// Manager owns the playback controller and is its single driver.
// Run is the only goroutine that touches the controller; everything else
// reaches it through Submit or the watcher.
type Manager struct {
	mu sync.RWMutex

	// Configuration
	config *config.Config

	// Components
	stateMgr     *state.Manager
	playback     *playback.Controller
	filterChain  *filter.Chain
	notification *notification.Manager
	library      *library.ProviderChain
	enricher     *library.Enricher
	watcher      *watch.Watcher

	// Tracks admitted by the current batch but not yet in the playlist
	pending []track.Track

	out      io.Writer
	commands chan Command
	status   Status
	done     chan struct{}
}

// NewManager creates a new session manager.
func NewManager(cfg *config.Config, opts Options) (*Manager, error) {
	chain, err := library.NewProviderChainFromConfig(cfg, opts.Args)
	if errors.Is(err, library.ErrNoProviders) && cfg.Watch.Enabled {
		chain, err = nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create track providers")
	}

	p := opts.Player
	if p == nil {
		p = player.New(player.DefaultDeps(cfg.Output.Backend, cfg.Playback.ResampleQuality))
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	sessionID := uuid.New().String()

	m := &Manager{
		config:   cfg,
		stateMgr: state.New(sessionID),
		playback: playback.NewController(p, playback.Config{
			Device:                 cfg.Output.Device,
			MaxConsecutiveFailures: cfg.Playback.MaxConsecutiveFailures,
			RemoveCurrent:          playback.ParseRemovePolicy(cfg.Playlist.RemoveCurrent),
			Seed:                   cfg.Playlist.Seed,
		}),
		filterChain:  filter.NewChain(),
		notification: notification.NewManager(),
		library:      chain,
		enricher:     library.NewEnricher(opts.ReadInfo),
		out:          out,
		commands:     make(chan Command, 16),
		done:         make(chan struct{}),
	}

	m.notification.Subscribe("console", notification.NewConsoleStream(out))
	m.notification.Subscribe("log", notification.LogStream{})

	// Setup filters
	m.setupFilters()

	if cfg.Watch.Enabled {
		w, err := watch.New(cfg.Watch.Paths, media.IsSupported, time.Duration(cfg.Watch.SettleMs)*time.Millisecond)
		if err != nil {
			return nil, errors.Wrap(err, "failed to watch directories")
		}
		m.watcher = w
	}

	zlog.Info().Msgf("session: created: session_id=%s backend=%s device=%s", sessionID, cfg.Output.Backend, cfg.Output.Device)
	return m, nil
}

// setupFilters initializes the filter chain.
func (m *Manager) setupFilters() {
	cfg := m.config

	// SupportedFormatFilter
	f := filter.NewSupportedFormatFilter()
	if err := f.ValidateConfig(cfg.GetFilterSettings("supported_format_filter")); err != nil {
		zlog.Error().Msgf("session: failed to validate supported format filter config: %v", err)
	}
	m.filterChain.Add(f)

	// DuplicateTrackFilter
	if cfg.IsFilterEnabled("duplicate_track_filter") {
		m.filterChain.Add(filter.NewDuplicateTrackFilter(admissionView{m}))
	}

	// DurationLimitFilter
	if cfg.IsFilterEnabled("duration_limit_filter") {
		f := filter.NewDurationLimitFilter()
		if err := f.ValidateConfig(cfg.GetFilterSettings("duration_limit_filter")); err != nil {
			zlog.Error().Msgf("session: failed to validate duration limit filter config: %v", err)
		} else {
			m.filterChain.Add(f)
		}
	}

	// MaxTracksFilter
	if cfg.IsFilterEnabled("max_tracks_filter") {
		f := filter.NewMaxTracksFilter(
			func() int { return m.playback.Len() + len(m.pending) },
			func() time.Duration { return totalDuration(admissionView{m}.Tracks()) },
		)
		if err := f.ValidateConfig(cfg.GetFilterSettings("max_tracks_filter")); err != nil {
			zlog.Error().Msgf("session: failed to validate max tracks filter config: %v", err)
		} else {
			m.filterChain.Add(f)
		}
	}
}

// admissionView is the playlist plus the batch being admitted.
type admissionView struct {
	m *Manager
}

func (v admissionView) Tracks() []track.Track {
	return append(v.m.playback.Tracks(), v.m.pending...)
}

func totalDuration(tracks []track.Track) time.Duration {
	var total time.Duration
	for _, t := range tracks {
		total += t.Duration
	}
	return total
}

// Run loads the library and drives playback until ctx is canceled or a
// quit command arrives.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.done)

	notifyDone := make(chan struct{})
	go m.notifyLoop(notifyDone)
	zlog.Debug().Msgf("session: notifying: subscribers=%v", m.notification.Subscribers())
	defer func() {
		m.shutdown()
		<-notifyDone
		m.notification.Close()
	}()

	if err := m.load(ctx); err != nil {
		return err
	}

	var watchEvents <-chan watch.Event
	if m.watcher != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := m.watcher.Run(watchCtx); err != nil {
				zlog.Error().Err(err).Msg("session: watcher stopped")
			}
		}()
		watchEvents = m.watcher.Events()
		m.stateMgr.StartWatching()
	}

	m.start()
	m.refreshStatus()

	interval := m.tickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	refresh := time.NewTicker(m.config.RefreshInterval())
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			zlog.Info().Msg("session: stopping: context canceled")
			return nil

		case cmd := <-m.commands:
			if cmd.Kind == CmdQuit {
				zlog.Info().Msg("session: stopping: quit")
				return nil
			}
			m.apply(ctx, cmd)
			m.refreshStatus()

		case ev, ok := <-watchEvents:
			if !ok {
				watchEvents = nil
				m.stateMgr.StopWatching()
				continue
			}
			m.onWatchEvent(ctx, ev)

		case <-refresh.C:
			m.refreshStatus()

		case <-ticker.C:
			for range max(m.config.Playback.PacketsPerTick, 1) {
				m.playback.TickCurrentTrack()
			}
		}

		if next := m.tickInterval(); next != interval {
			interval = next
			ticker.Reset(interval)
		}
	}
}

// tickInterval is the tick period while playing and the idle sleep otherwise.
func (m *Manager) tickInterval() time.Duration {
	if m.playback.IsPlaying() {
		return m.config.TickInterval()
	}
	return m.config.IdleSleep()
}

// load builds the initial track list.
func (m *Manager) load(ctx context.Context) error {
	m.stateMgr.SetPhase(state.PhaseLoading)
	if m.library == nil {
		zlog.Info().Msg("session: no providers, waiting for watched files")
		return nil
	}

	candidates, err := m.library.GetCandidates(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to build track list")
	}

	tracks := make([]track.Track, len(candidates))
	for i, c := range candidates {
		tracks[i] = c.Track
	}
	enriched := m.enricher.EnrichAll(ctx, tracks)
	zlog.Debug().Msgf("session: read track info: enriched=%d total=%d", enriched, len(tracks))

	m.pending = m.pending[:0]
	for _, t := range tracks {
		if _, ok := m.check(ctx, t); ok {
			m.pending = append(m.pending, t)
		}
	}
	admitted := m.pending
	m.pending = nil
	m.playback.AddTracks(admitted...)

	zlog.Info().Msgf("session: track list loaded: candidates=%d admitted=%d", len(candidates), len(admitted))
	if len(admitted) == 0 && m.watcher == nil {
		return ErrNothingToPlay
	}
	return nil
}

// start applies shuffle and autoplay to the freshly loaded list.
func (m *Manager) start() {
	autoplay := m.config.AutoplayEnabled()
	if m.playback.Len() == 0 {
		return
	}
	if m.config.Playlist.Shuffle {
		m.playback.Shuffle()
		if !autoplay {
			_ = m.playback.PauseCurrentTrack()
		}
		return
	}
	if autoplay {
		if err := m.playback.StartPlaying(); err != nil {
			zlog.Warn().Err(err).Msg("session: initial play failed")
		}
	}
}

// check runs the filter chain and records the outcome.
func (m *Manager) check(ctx context.Context, t track.Track) (filter.Result, bool) {
	result := m.filterChain.Execute(ctx, t)
	if !result.Accepted {
		m.stateMgr.RecordRejected(result.Code)
		zlog.Info().Msgf("session: track rejected: path=%s origin=%s code=%s", t.Path, t.Origin, result.Code)
		return result, false
	}
	m.stateMgr.RecordAdmitted()
	return result, true
}

// admit enriches a single track, filters it and appends it.
func (m *Manager) admit(ctx context.Context, t track.Track) (filter.Result, bool) {
	m.enricher.Enrich(&t)
	result, ok := m.check(ctx, t)
	if !ok {
		return result, false
	}
	m.playback.AddTracks(t)
	zlog.Info().Msgf("session: track added: path=%s origin=%s", t.Path, t.Origin)
	return result, true
}

func (m *Manager) onWatchEvent(ctx context.Context, ev watch.Event) {
	zlog.Debug().Msgf("session: watch event: op=%s path=%s", ev.Op, ev.Path)
	switch ev.Op {
	case watch.Added:
		if !m.stateMgr.CanAdmitWatched() || m.playback.ContainsPath(ev.Path) {
			return
		}
		m.admit(ctx, track.New(ev.Path, track.OriginWatch))

	case watch.Removed:
		for i, t := range m.playback.Tracks() {
			if t.Path != ev.Path {
				continue
			}
			if err := m.playback.RemoveTrack(i); err != nil {
				zlog.Warn().Err(err).Msgf("session: failed to remove vanished track: path=%s", ev.Path)
			}
			return
		}
	}
}

// notifyLoop forwards controller events to subscribers until the
// controller closes its channel.
func (m *Manager) notifyLoop(done chan<- struct{}) {
	defer close(done)
	for e := range m.playback.Events() {
		zlog.Debug().Msgf("session: playback event: type=%s index=%d", e.Type, e.Index)
		m.notification.Broadcast(notification.FromEvent(e))
	}
}

func (m *Manager) shutdown() {
	m.stateMgr.StopWatching()
	m.stateMgr.SetPhase(state.PhaseTerminated)
	m.playback.Close()
	m.refreshStatus()
	zlog.Info().Msgf("session: terminated: session_id=%s", m.stateMgr.GetSessionID())
}

// Done returns a channel closed when Run has returned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Submit queues a command for the driver loop.
func (m *Manager) Submit(ctx context.Context, cmd Command) error {
	select {
	case m.commands <- cmd:
		return nil
	case <-m.done:
		return ErrSessionNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// apply runs one command on the driver goroutine.
func (m *Manager) apply(ctx context.Context, cmd Command) {
	var err error
	switch cmd.Kind {
	case CmdPlay:
		err = m.playback.StartPlaying()
	case CmdPause:
		err = m.playback.PauseCurrentTrack()
	case CmdToggle:
		err = m.playback.TogglePause()
	case CmdStop:
		err = m.playback.Stop()
	case CmdNext:
		m.playback.JumpToNextTrack()
	case CmdPrev:
		m.playback.JumpToPrevTrack()
	case CmdReload:
		m.playback.ReloadCurrentTrack()
	case CmdShuffle:
		m.playback.Shuffle()
	case CmdSeek:
		err = m.playback.SeekCurrentTrack(cmd.Arg)
	case CmdSeekBy:
		err = m.playback.SeekRelative(cmd.Arg)
	case CmdRemove:
		i := int(cmd.Arg)
		if i < 0 {
			if m.playback.HasEnded() {
				err = playback.ErrNoTrack
				break
			}
			i = m.playback.CurrentIndex()
		}
		err = m.playback.RemoveTrack(i)
	case CmdClear:
		m.playback.RemoveAllTracks()
	case CmdAdd:
		err = m.addPath(ctx, cmd.Path)
	case CmdList:
		m.printList()
	case CmdStatus:
		m.printStatus()
	case CmdInfo:
		m.printInfo()
	case CmdHelp:
		fmt.Fprintln(m.out, HelpText)
	}
	if err != nil {
		zlog.Warn().Err(err).Msgf("session: command failed: kind=%d", cmd.Kind)
		fmt.Fprintf(m.out, "error: %v\n", err)
	}
}

func (m *Manager) addPath(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "cannot add %s", path)
	}
	if result, ok := m.admit(ctx, track.New(path, track.OriginUser)); !ok {
		return errors.Newf("%s rejected: %s", path, result.Code)
	}
	return nil
}

func (m *Manager) printList() {
	tracks := m.playback.Tracks()
	if len(tracks) == 0 {
		fmt.Fprintln(m.out, "playlist is empty")
		return
	}
	current := m.playback.CurrentIndex()
	var b strings.Builder
	for i, t := range tracks {
		marker := "  "
		if i == current {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%3d. %s", marker, i+1, t.DisplayName())
		if t.Duration > 0 {
			fmt.Fprintf(&b, " (%s)", audio.FormatClock(int64(t.Duration.Seconds())))
		}
		b.WriteByte('\n')
	}
	fmt.Fprint(m.out, b.String())
}

func (m *Manager) printStatus() {
	s := m.GetStatus()
	if s.Track == nil {
		fmt.Fprintf(m.out, "%s, %d tracks\n", s.Phase, s.Length)
		return
	}
	fmt.Fprintf(m.out, "[%d/%d] %s  %s / %s  %s\n",
		s.Index+1, s.Length, s.Track.DisplayName(),
		audio.FormatClock(s.Position), audio.FormatClock(s.Duration), s.PlayerState)
}

func (m *Manager) printInfo() {
	if m.playback.ContainerText() == "" {
		fmt.Fprintln(m.out, "no track open")
		return
	}
	fmt.Fprintln(m.out, m.playback.ContainerText())
	fmt.Fprintln(m.out, m.playback.StreamText())
}

// Status represents the current session status with all information.
type Status struct {
	SessionID   string
	Phase       state.Phase
	PlayerState player.State
	Index       int
	Length      int
	Track       *track.Track
	Position    int64 // seconds
	Duration    int64 // seconds
	Watching    bool
	Admitted    int
	Rejected    map[string]int
	UpdatedAt   time.Time
}

// refreshStatus rebuilds the status snapshot. Driver goroutine only.
func (m *Manager) refreshStatus() {
	phase := m.stateMgr.GetPhase()
	if phase != state.PhaseTerminated {
		if m.playback.State().HasPipeline() && !m.playback.HasEnded() {
			phase = state.PhaseActive
		} else {
			phase = state.PhaseIdle
		}
		if phase != m.stateMgr.GetPhase() {
			zlog.Debug().Msgf("session: phase changed: phase=%s", phase)
			m.stateMgr.SetPhase(phase)
		}
	}

	admitted, rejected := m.stateMgr.GetAdmission()
	s := Status{
		SessionID:   m.stateMgr.GetSessionID(),
		Phase:       phase,
		PlayerState: m.playback.State(),
		Index:       m.playback.CurrentIndex(),
		Length:      m.playback.Len(),
		Position:    m.playback.Position(),
		Duration:    m.playback.Duration(),
		Watching:    m.stateMgr.IsWatching(),
		Admitted:    admitted,
		Rejected:    rejected,
		UpdatedAt:   time.Now(),
	}
	if t, ok := m.playback.CurrentTrack(); ok {
		s.Track = &t
	}

	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// GetStatus returns the latest status snapshot. Safe from any goroutine.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
