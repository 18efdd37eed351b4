package output

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

func init() {
	register(BackendNull, backend{
		open: func(_ string, want audio.Format) (Sink, error) {
			return NewNull(want), nil
		},
		devices: func() ([]Device, error) {
			return []Device{{Name: DefaultDevice, Default: true, MaxChannels: 2}}, nil
		},
	})
}

// NullSink discards everything written to it.
type NullSink struct {
	format  audio.Format
	written atomic.Int64
	flushes atomic.Int64
	closed  atomic.Bool
}

// NewNull creates a sink that accepts format and discards the data.
func NewNull(format audio.Format) *NullSink {
	return &NullSink{format: format}
}

func (s *NullSink) Format() audio.Format {
	return s.format
}

func (s *NullSink) Write(data []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if fs := s.format.FrameSize(); fs > 0 && len(data)%fs != 0 {
		return errors.Wrapf(ErrUnsupportedData, "%d bytes is not a whole number of frames", len(data))
	}
	s.written.Add(int64(len(data)))
	return nil
}

func (s *NullSink) Flush() error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.flushes.Add(1)
	return nil
}

func (s *NullSink) Close() error {
	s.closed.Store(true)
	return nil
}

// Written returns the number of bytes accepted so far.
func (s *NullSink) Written() int64 {
	return s.written.Load()
}

// Flushes returns how many times Flush was called.
func (s *NullSink) Flushes() int64 {
	return s.flushes.Load()
}
