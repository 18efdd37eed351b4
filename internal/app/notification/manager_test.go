package notification

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lightmusic/internal/app/playback"
	"github.com/osa030/lightmusic/internal/app/player"
	"github.com/osa030/lightmusic/internal/domain/track"
)

type recordStream struct {
	mu    sync.Mutex
	got   []uint64
	err   error
	delay time.Duration
}

func (s *recordStream) Send(n *Notification) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n.SequenceNo)
	return s.err
}

func (s *recordStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *recordStream) received() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.got...)
}

func TestManager_Broadcast(t *testing.T) {
	m := NewManager()
	a := &recordStream{}
	b := &recordStream{}
	idA := m.Subscribe("a", a)
	m.Subscribe("b", b)
	assert.Equal(t, []string{"a", "b"}, m.Subscribers())

	m.Broadcast(&Notification{Type: playback.EventTrackOpened})
	m.Broadcast(&Notification{Type: playback.EventTrackEnded})

	assert.Equal(t, []uint64{1, 2}, a.received())
	assert.Equal(t, []uint64{1, 2}, b.received())

	assert.True(t, m.Unsubscribe(idA))
	assert.False(t, m.Unsubscribe(idA))
	m.Broadcast(&Notification{})
	assert.Equal(t, []uint64{1, 2}, a.received())
	assert.Equal(t, []uint64{1, 2, 3}, b.received())
}

func TestManager_BroadcastTimeout(t *testing.T) {
	m := NewManager()
	m.sendTimeout = 20 * time.Millisecond
	slow := &recordStream{delay: time.Second}
	fast := &recordStream{}
	m.Subscribe("slow", slow)
	m.Subscribe("fast", fast)

	start := time.Now()
	m.Broadcast(&Notification{})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, []uint64{1}, fast.received())
}

func TestManager_DropsFailingSubscriber(t *testing.T) {
	tests := []struct {
		name     string
		failures []bool // per broadcast
		want     []string
	}{
		{name: "healthy", failures: []bool{false, false, false}, want: []string{"ok", "sub"}},
		{name: "fails in a row", failures: []bool{true, true, true}, want: []string{"ok"}},
		{name: "recovers in between", failures: []bool{true, true, false, true, true}, want: []string{"ok", "sub"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager()
			sub := &recordStream{}
			m.Subscribe("ok", &recordStream{})
			m.Subscribe("sub", sub)

			for _, fail := range tt.failures {
				sub.setErr(nil)
				if fail {
					sub.setErr(errors.New("broken pipe"))
				}
				m.Broadcast(&Notification{})
			}
			assert.Equal(t, tt.want, m.Subscribers())
		})
	}
}

func TestManager_Close(t *testing.T) {
	m := NewManager()
	s := &recordStream{}
	m.Subscribe("s", s)
	m.Broadcast(&Notification{})

	m.Close()
	assert.Empty(t, m.Subscribers())

	m.Subscribe("late", s)
	m.Broadcast(&Notification{})
	assert.Equal(t, []uint64{1}, s.received())
}

func TestFromEvent(t *testing.T) {
	tr := track.New("/music/song.flac", track.OriginUser)
	tr.Title = "Song"
	tr.Artists = []string{"Band"}
	tr.Duration = 90 * time.Second

	n := FromEvent(playback.Event{
		Type:  playback.EventTrackFailed,
		Index: 3,
		Track: &tr,
		State: player.StateError,
		Err:   errors.New("bad header"),
	})

	assert.Equal(t, playback.EventTrackFailed, n.Type)
	assert.Equal(t, 3, n.Index)
	assert.Equal(t, "/music/song.flac", n.Path)
	assert.Equal(t, tr.DisplayName(), n.Title)
	assert.Equal(t, player.StateError.String(), n.State)
	assert.Equal(t, "bad header", n.Error)
	assert.False(t, n.Time.IsZero())

	empty := FromEvent(playback.Event{Type: playback.EventPlaylistEnded})
	assert.Empty(t, empty.Path)
	assert.Empty(t, empty.Error)
}

func TestConsoleStream(t *testing.T) {
	tests := []struct {
		name string
		n    Notification
		want string
	}{
		{
			name: "opened with duration",
			n:    Notification{Type: playback.EventTrackOpened, Index: 0, Title: "Band - Song", Duration: 75 * time.Second},
			want: "▶ [1] Band - Song (00:01:15)\n",
		},
		{
			name: "opened without duration",
			n:    Notification{Type: playback.EventTrackOpened, Index: 4, Title: "song"},
			want: "▶ [5] song\n",
		},
		{
			name: "failed",
			n:    Notification{Type: playback.EventTrackFailed, Index: 1, Title: "x", Error: "boom"},
			want: "✗ [2] x: boom\n",
		},
		{
			name: "ended",
			n:    Notification{Type: playback.EventPlaylistEnded},
			want: "■ playlist ended\n",
		},
		{
			name: "silent for list changes",
			n:    Notification{Type: playback.EventPlaylistChanged},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewConsoleStream(&buf).Send(&tt.n))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}
