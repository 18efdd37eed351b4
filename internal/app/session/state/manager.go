package state

import (
	"sync"
	"time"
)

// Manager manages session state with thread-safe access.
type Manager struct {
	mu sync.RWMutex

	sessionID string

	phase    Phase
	watching WatchState

	startTime *time.Time
	endTime   *time.Time

	// Library load results
	admitted int
	rejected map[string]int // filter code -> count
}

// New creates a new state manager.
func New(sessionID string) *Manager {
	return &Manager{
		sessionID: sessionID,
		phase:     PhaseLoading,
		watching:  NotWatching,
		rejected:  make(map[string]int),
	}
}

// GetPhase returns the current session phase.
func (m *Manager) GetPhase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// SetPhase sets the session phase. Leaving Loading records the start time
// and entering Terminated records the end time.
func (m *Manager) SetPhase(p Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if m.phase == PhaseLoading && p != PhaseLoading && m.startTime == nil {
		m.startTime = &now
	}
	if p == PhaseTerminated && m.endTime == nil {
		m.endTime = &now
	}
	m.phase = p
}

// IsWatching returns true if files from watched directories are admitted.
func (m *Manager) IsWatching() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.watching == Watching
}

// GetWatchState returns the watch state.
func (m *Manager) GetWatchState() WatchState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.watching
}

// StartWatching sets the watch state to Watching.
func (m *Manager) StartWatching() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watching = Watching
}

// StopWatching sets the watch state to NotWatching.
func (m *Manager) StopWatching() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watching = NotWatching
}

// CanAdmitWatched returns true if a watched file may be added now.
// This is true when the session is past loading, not terminated, and watching.
func (m *Manager) CanAdmitWatched() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (m.phase == PhaseActive || m.phase == PhaseIdle) && m.watching == Watching
}

// GetSessionID returns the session ID.
func (m *Manager) GetSessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// GetTimes returns the start and end times.
func (m *Manager) GetTimes() (*time.Time, *time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.startTime, m.endTime
}

// RecordAdmitted counts an admitted track.
func (m *Manager) RecordAdmitted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admitted++
}

// RecordRejected counts a track rejected with the given filter code.
func (m *Manager) RecordRejected(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[code]++
}

// GetAdmission returns the admitted count and a copy of the rejection counts.
func (m *Manager) GetAdmission() (int, map[string]int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rejected := make(map[string]int, len(m.rejected))
	for k, v := range m.rejected {
		rejected[k] = v
	}
	return m.admitted, rejected
}
