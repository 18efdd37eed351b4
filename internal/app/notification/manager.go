// Package notification fans playback events out to subscribers.
package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// DefaultSendTimeout bounds one subscriber send.
const DefaultSendTimeout = 500 * time.Millisecond

// maxSendFailures is the number of failed sends in a row that drops a subscriber.
const maxSendFailures = 3

var errSendTimeout = errors.New("notification: send timed out")

// Stream receives notifications for one subscriber.
type Stream interface {
	Send(*Notification) error
}

type subscriber struct {
	id       string
	name     string
	stream   Stream
	failures int
}

// Manager stamps notifications with a sequence number and delivers them to
// every subscriber.
type Manager struct {
	mu          sync.Mutex
	subscribers map[string]*subscriber
	seq         uint64
	sendTimeout time.Duration
	closed      bool
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscribers: make(map[string]*subscriber),
		sendTimeout: DefaultSendTimeout,
	}
}

// Subscribe registers stream under name and returns the subscription ID.
func (m *Manager) Subscribe(name string, stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscribers[id] = &subscriber{id: id, name: name, stream: stream}
	zlog.Debug().Msgf("notification: subscribed: name=%s id=%s", name, id)
	return id
}

// Unsubscribe removes a subscription. It reports whether it existed.
func (m *Manager) Unsubscribe(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscribers[id]; !ok {
		return false
	}
	delete(m.subscribers, id)
	return true
}

// Subscribers returns the names of the current subscribers, sorted.
func (m *Manager) Subscribers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := lo.MapToSlice(m.subscribers, func(_ string, s *subscriber) string { return s.name })
	sort.Strings(names)
	return names
}

// Broadcast sends n to all subscribers at once and returns when each has
// accepted it or timed out. A subscriber that fails maxSendFailures times
// in a row is dropped. Broadcasts after Close are ignored.
func (m *Manager) Broadcast(n *Notification) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.seq++
	n.SequenceNo = m.seq
	subs := lo.Values(m.subscribers)
	m.mu.Unlock()

	errs := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.send(sub, n)
		}()
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range subs {
		if errs[i] == nil {
			sub.failures = 0
			continue
		}
		sub.failures++
		zlog.Warn().Err(errs[i]).Msgf("notification: send failed: subscriber=%s seq=%d failures=%d",
			sub.name, n.SequenceNo, sub.failures)
		if sub.failures >= maxSendFailures {
			delete(m.subscribers, sub.id)
			zlog.Warn().Msgf("notification: dropped subscriber: name=%s", sub.name)
		}
	}
}

func (m *Manager) send(sub *subscriber, n *Notification) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sub.stream.Send(n)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.Wrapf(errSendTimeout, "seq=%d", n.SequenceNo)
	}
}

// Close removes all subscribers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subscribers = make(map[string]*subscriber)
}
