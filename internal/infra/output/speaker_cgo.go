//go:build cgo

package output

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

const (
	speakerMaxBuffered  = time.Second / 2
	speakerPollInterval = 5 * time.Millisecond
	speakerDrainTimeout = 5 * time.Second
)

func init() {
	register(BackendSpeaker, backend{
		open: openSpeaker,
		devices: func() ([]Device, error) {
			return []Device{{Name: DefaultDevice, Default: true, MaxChannels: 2}}, nil
		},
	})
}

// The speaker package drives one global device, initialized once.
var (
	speakerMu   sync.Mutex
	speakerInit bool
	speakerRate beep.SampleRate
)

func initSpeaker(rate int) (beep.SampleRate, error) {
	speakerMu.Lock()
	defer speakerMu.Unlock()
	if speakerInit {
		return speakerRate, nil
	}
	sr := beep.SampleRate(rate)
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return 0, errors.Wrap(err, "failed to initialize speaker")
	}
	speakerInit = true
	speakerRate = sr
	return sr, nil
}

// speakerStream is played by the speaker mixer. It emits silence while
// empty so the mixer keeps it, and ends once closed and drained.
type speakerStream struct {
	samples [][2]float64
	closed  bool
}

func (q *speakerStream) Stream(samples [][2]float64) (int, bool) {
	if q.closed && len(q.samples) == 0 {
		return 0, false
	}
	n := copy(samples, q.samples)
	q.samples = q.samples[n:]
	clear(samples[n:])
	return len(samples), true
}

func (q *speakerStream) Err() error {
	return nil
}

// speakerSink writes through beep's speaker.
type speakerSink struct {
	stream *speakerStream
	rate   beep.SampleRate
	closed bool
}

func openSpeaker(device string, want audio.Format) (Sink, error) {
	if !isDefaultDevice(device) {
		return nil, errors.Wrapf(ErrDeviceNotFound, "speaker only drives the default device, got %q", device)
	}
	rate, err := initSpeaker(want.SampleRate)
	if err != nil {
		return nil, err
	}
	s := &speakerSink{stream: &speakerStream{}, rate: rate}
	speaker.Play(s.stream)
	return s, nil
}

func (s *speakerSink) Format() audio.Format {
	return audio.Canonical(int(s.rate))
}

func (s *speakerSink) Write(data []byte) error {
	if s.closed {
		return ErrClosed
	}
	samples := s16ToStereo(data)
	limit := s.rate.N(speakerMaxBuffered)
	for s.buffered() > limit {
		time.Sleep(speakerPollInterval)
	}
	speaker.Lock()
	s.stream.samples = append(s.stream.samples, samples...)
	speaker.Unlock()
	return nil
}

// Flush waits until the speaker has played everything written.
func (s *speakerSink) Flush() error {
	if s.closed {
		return ErrClosed
	}
	deadline := time.Now().Add(speakerDrainTimeout)
	for s.buffered() > 0 {
		if time.Now().After(deadline) {
			zlog.Warn().Msgf("output: speaker drain timed out: remaining=%d", s.buffered())
			return nil
		}
		time.Sleep(speakerPollInterval)
	}
	return nil
}

func (s *speakerSink) buffered() int {
	speaker.Lock()
	defer speaker.Unlock()
	return len(s.stream.samples)
}

func (s *speakerSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	speaker.Lock()
	s.stream.samples = nil
	s.stream.closed = true
	speaker.Unlock()
	return nil
}
