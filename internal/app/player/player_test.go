package player

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lightmusic/internal/domain/audio"
	"github.com/osa030/lightmusic/internal/infra/media"
)

type fakeSource struct {
	info       audio.ContainerInfo
	badStreams map[int]bool
	packets    []audio.Packet
	readErr    error
	decodeErr  map[int]bool // packet index -> fail
	pos        int
	opened     int
	seeks      []time.Duration
	closed     bool
}

func (s *fakeSource) Info() audio.ContainerInfo { return s.info }

func (s *fakeSource) OpenDecoder(stream int) error {
	if s.badStreams[stream] {
		return errors.New("decoder unavailable")
	}
	s.opened = stream
	return nil
}

func (s *fakeSource) ReadPacket() (audio.Packet, error) {
	if s.pos >= len(s.packets) {
		if s.readErr != nil {
			return audio.Packet{}, s.readErr
		}
		return audio.Packet{}, io.EOF
	}
	s.pos++
	return s.packets[s.pos-1], nil
}

func (s *fakeSource) Decode(pkt audio.Packet) (audio.Frame, error) {
	if s.decodeErr[s.pos-1] {
		return audio.Frame{}, errors.New("corrupt packet")
	}
	return audio.Frame{SampleFormat: audio.SampleFormatS16, Channels: 2, Samples: len(pkt.Data) / 4, Data: pkt.Data}, nil
}

// SeekTo lands on the first packet at or after t.
func (s *fakeSource) SeekTo(t time.Duration) error {
	s.seeks = append(s.seeks, t)
	s.pos = 0
	for s.pos < len(s.packets) && s.packets[s.pos].Timestamp < t {
		s.pos++
	}
	return nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeSink struct {
	format   audio.Format
	written  [][]byte
	writeErr error
	flushed  int
	closed   bool
}

func (s *fakeSink) Format() audio.Format { return s.format }

func (s *fakeSink) Write(data []byte) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = append(s.written, data)
	return nil
}

func (s *fakeSink) Flush() error {
	s.flushed++
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

type fakeResampler struct {
	tail    []byte
	resets  int
	flushes int
}

func (r *fakeResampler) Convert(f audio.Frame) ([]byte, error) { return f.Data, nil }

func (r *fakeResampler) Flush() []byte {
	r.flushes++
	return r.tail
}

func (r *fakeResampler) Reset() { r.resets++ }

type harness struct {
	source    *fakeSource
	sink      *fakeSink
	resampler *fakeResampler
	sinkErr   error
	resErr    error
	srcErr    error
	wantRate  int
}

func (h *harness) deps() Deps {
	return Deps{
		OpenSource: func(string) (Source, error) {
			if h.srcErr != nil {
				return nil, h.srcErr
			}
			return h.source, nil
		},
		OpenSink: func(_ string, want audio.Format) (Sink, error) {
			h.wantRate = want.SampleRate
			if h.sinkErr != nil {
				return nil, h.sinkErr
			}
			h.sink.format = want
			return h.sink, nil
		},
		NewResampler: func(audio.StreamInfo, audio.Format) (Resampler, error) {
			if h.resErr != nil {
				return nil, h.resErr
			}
			return h.resampler, nil
		},
	}
}

func audioStream(i, rate int) audio.StreamInfo {
	return audio.StreamInfo{Index: i, Type: audio.MediaAudio, Codec: "pcm", SampleRate: rate, Channels: 2}
}

func newHarness(packets ...audio.Packet) *harness {
	return &harness{
		source: &fakeSource{
			info: audio.ContainerInfo{
				Path:     "/music/a.wav",
				Duration: 3*time.Second + 700*time.Millisecond,
				Streams:  []audio.StreamInfo{audioStream(0, 44100)},
			},
			packets: packets,
		},
		sink:      &fakeSink{},
		resampler: &fakeResampler{},
	}
}

func pkt(stream int, ts time.Duration) audio.Packet {
	return audio.Packet{Stream: stream, Data: make([]byte, 16), Timestamp: ts}
}

func TestPlayer_OpenSuccess(t *testing.T) {
	h := newHarness()
	p := New(h.deps())

	assert.Equal(t, StateUninitialized, p.State())
	assert.Zero(t, p.Position())
	assert.Zero(t, p.Duration())

	require.NoError(t, p.Open("/music/a.wav", "default"))
	assert.Equal(t, StatePlaying, p.State())
	assert.Equal(t, int64(3), p.Duration())
	assert.Equal(t, 44100, h.wantRate)
	assert.Equal(t, audio.Canonical(44100), h.sink.Format())
	assert.Contains(t, p.ContainerText(), "a.wav")
	assert.Contains(t, p.StreamText(), "Stream #0")
	assert.Equal(t, "/music/a.wav", p.Path())
}

func TestPlayer_OpenFailures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(h *harness)
		wantErr    error
		srcClosed  bool
		sinkClosed bool
	}{
		{
			name:    "source fails",
			setup:   func(h *harness) { h.srcErr = errors.New("no such file") },
			wantErr: ErrSource,
		},
		{
			name: "no audio stream",
			setup: func(h *harness) {
				h.source.info.Streams = []audio.StreamInfo{{Index: 0, Type: audio.MediaVideo}}
			},
			wantErr:   ErrNoUsableStream,
			srcClosed: true,
		},
		{
			name:      "no decodable stream",
			setup:     func(h *harness) { h.source.badStreams = map[int]bool{0: true} },
			wantErr:   ErrNoUsableStream,
			srcClosed: true,
		},
		{
			name:      "sink fails",
			setup:     func(h *harness) { h.sinkErr = errors.New("device busy") },
			wantErr:   ErrOutput,
			srcClosed: true,
		},
		{
			name:       "resampler fails",
			setup:      func(h *harness) { h.resErr = errors.New("bad rate") },
			wantErr:    ErrAllocation,
			srcClosed:  true,
			sinkClosed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tt.setup(h)
			p := New(h.deps())

			err := p.Open("/music/a.wav", "default")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, StateError, p.State())
			assert.Nil(t, p.pipe)
			assert.Equal(t, tt.srcClosed, h.source.closed)
			assert.Equal(t, tt.sinkClosed, h.sink.closed)
		})
	}
}

func TestPlayer_NoUsableStreamIsSourceError(t *testing.T) {
	assert.True(t, errors.Is(ErrNoUsableStream, ErrSource))
}

func TestPlayer_SelectsFirstDecodableAudioStream(t *testing.T) {
	h := newHarness()
	h.source.info.Streams = []audio.StreamInfo{
		{Index: 0, Type: audio.MediaVideo, Codec: "theora"},
		audioStream(1, 48000),
		audioStream(2, 22050),
	}
	h.source.badStreams = map[int]bool{1: true}
	p := New(h.deps())

	require.NoError(t, p.Open("/music/a.ogg", "default"))
	assert.Equal(t, 2, h.source.opened)
	assert.Equal(t, 22050, h.wantRate)
	assert.Contains(t, p.StreamText(), "not an audio stream")
	assert.Contains(t, p.StreamText(), "failed to open decoder")
}

func TestDescribe(t *testing.T) {
	src := &fakeSource{info: audio.ContainerInfo{
		Path:       "/music/clip.ogg",
		FormatLong: "Ogg",
		Streams: []audio.StreamInfo{
			{Index: 0, Type: audio.MediaVideo, Codec: "theora"},
			audioStream(1, 44100),
		},
	}}

	containerText, streamText := Describe(src)
	assert.Contains(t, containerText, "File: clip.ogg")
	assert.Contains(t, streamText, "Stream #1 (audio)")
	assert.Contains(t, streamText, "not an audio stream")
	assert.NotContains(t, streamText, "failed to open decoder")
}

func TestPlayer_Tick(t *testing.T) {
	h := newHarness(pkt(0, 0), pkt(1, 0), pkt(0, time.Second), pkt(0, 2500*time.Millisecond))
	h.source.decodeErr = map[int]bool{2: true}
	h.resampler.tail = make([]byte, 8)
	p := New(h.deps())
	require.NoError(t, p.Open("/music/a.wav", "default"))

	p.Tick()
	assert.Len(t, h.sink.written, 1)

	p.Tick() // other stream
	assert.Len(t, h.sink.written, 1)

	p.Tick() // decode failure is transient
	assert.Equal(t, StatePlaying, p.State())
	assert.Len(t, h.sink.written, 1)
	assert.Equal(t, int64(1), p.Position())

	p.Tick()
	assert.Len(t, h.sink.written, 2)
	assert.Equal(t, int64(2), p.Position())

	p.Tick() // EOF
	assert.Equal(t, StateEnd, p.State())
	assert.Equal(t, 1, h.resampler.flushes)
	assert.Equal(t, 1, h.sink.flushed)
	assert.Len(t, h.sink.written, 3)

	p.Tick() // no-op once ended
	assert.Equal(t, StateEnd, p.State())
	assert.Equal(t, 1, h.sink.flushed)
}

func TestPlayer_TickOnlyWhenPlaying(t *testing.T) {
	h := newHarness(pkt(0, 0))
	p := New(h.deps())
	p.Tick()
	assert.Equal(t, StateUninitialized, p.State())

	require.NoError(t, p.Open("/music/a.wav", "default"))
	require.NoError(t, p.Pause())
	p.Tick()
	assert.Equal(t, 0, h.source.pos)
}

func TestPlayer_ReadErrorMovesToError(t *testing.T) {
	h := newHarness(pkt(0, 0))
	h.source.readErr = errors.New("disk gone")
	p := New(h.deps())
	require.NoError(t, p.Open("/music/a.wav", "default"))

	p.Tick()
	p.Tick()
	assert.Equal(t, StateError, p.State())
	assert.True(t, h.source.closed)
	assert.True(t, h.sink.closed)
	assert.Zero(t, p.Position())
}

func TestPlayer_WriteErrorIsNotEscalated(t *testing.T) {
	h := newHarness(pkt(0, 0), pkt(0, time.Second))
	h.sink.writeErr = errors.New("xrun")
	p := New(h.deps())
	require.NoError(t, p.Open("/music/a.wav", "default"))

	p.Tick()
	p.Tick()
	assert.Equal(t, StatePlaying, p.State())
}

func TestPlayer_PauseUnpause(t *testing.T) {
	h := newHarness(pkt(0, 0))
	p := New(h.deps())

	assert.True(t, errors.Is(p.Pause(), ErrInvalidState))
	assert.True(t, errors.Is(p.Unpause(), ErrInvalidState))

	require.NoError(t, p.Open("/music/a.wav", "default"))
	require.NoError(t, p.Unpause())
	assert.Equal(t, StatePlaying, p.State())

	require.NoError(t, p.Pause())
	assert.Equal(t, StatePaused, p.State())
	require.NoError(t, p.Pause())
	assert.Equal(t, StatePaused, p.State())

	require.NoError(t, p.Unpause())
	assert.Equal(t, StatePlaying, p.State())

	p.Tick()
	p.Tick()
	require.Equal(t, StateEnd, p.State())
	assert.True(t, errors.Is(p.Pause(), ErrInvalidState))
	assert.True(t, errors.Is(p.Unpause(), ErrInvalidState))
	assert.Equal(t, StateEnd, p.State())
}

func TestPlayer_SeekTo(t *testing.T) {
	t.Run("playing and ended", func(t *testing.T) {
		h := newHarness(pkt(0, 0))
		p := New(h.deps())

		assert.True(t, errors.Is(p.SeekTo(time.Second), ErrInvalidState))

		require.NoError(t, p.Open("/music/a.wav", "default"))
		require.NoError(t, p.SeekTo(2*time.Second))
		assert.Equal(t, StatePlaying, p.State())
		assert.Equal(t, int64(2), p.Position())
		assert.Equal(t, 1, h.resampler.resets)

		require.NoError(t, p.SeekTo(-5*time.Second))
		assert.Equal(t, []time.Duration{2 * time.Second, 0}, h.source.seeks)

		p.Tick()
		p.Tick()
		require.Equal(t, StateEnd, p.State())

		require.NoError(t, p.SeekTo(0))
		assert.Equal(t, StatePaused, p.State())
		require.NoError(t, p.Unpause())
		p.Tick()
		assert.Equal(t, StatePlaying, p.State())
	})

	t.Run("while paused", func(t *testing.T) {
		h := newHarness(pkt(0, 0), pkt(0, time.Second), pkt(0, 2*time.Second), pkt(0, 3*time.Second))
		p := New(h.deps())
		require.NoError(t, p.Open("/music/a.wav", "default"))

		p.Tick()
		require.NoError(t, p.Pause())
		require.NoError(t, p.SeekTo(2*time.Second))
		assert.Equal(t, StatePaused, p.State())
		assert.Equal(t, int64(2), p.Position())

		p.Tick()
		assert.Equal(t, int64(2), p.Position())
		assert.Equal(t, 2, h.source.pos)
		assert.Len(t, h.sink.written, 1)

		require.NoError(t, p.Unpause())
		p.Tick()
		assert.Equal(t, int64(2), p.Position())
		assert.Len(t, h.sink.written, 2)
		p.Tick()
		assert.Equal(t, int64(3), p.Position())
	})
}

func TestPlayer_ReopenClosesPrevious(t *testing.T) {
	first := newHarness()
	p := New(first.deps())
	require.NoError(t, p.Open("/music/a.wav", "default"))

	second := newHarness()
	p.deps = second.deps()
	require.NoError(t, p.Open("/music/b.wav", "default"))

	assert.True(t, first.source.closed)
	assert.True(t, first.sink.closed)
	assert.False(t, second.source.closed)
	assert.Equal(t, "/music/b.wav", p.Path())
}

func TestPlayer_CloseAndReset(t *testing.T) {
	h := newHarness()
	p := New(h.deps())

	p.CloseAndReset()
	assert.Equal(t, StateUninitialized, p.State())

	require.NoError(t, p.Open("/music/a.wav", "default"))
	require.NoError(t, p.Close())
	p.CloseAndReset()

	assert.Equal(t, StateUninitialized, p.State())
	assert.True(t, h.source.closed)
	assert.True(t, h.sink.closed)
	assert.Empty(t, p.ContainerText())
	assert.Zero(t, p.Duration())
	_, ok := p.Info()
	assert.False(t, ok)
}

func TestState_HasPipeline(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StateUninitialized, false},
		{StatePlaying, true},
		{StatePaused, true},
		{StateEnd, true},
		{StateError, false},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.HasPipeline())
		})
	}
}

// corruptFLAC writes a FLAC file whose third frame fails its CRC-16.
func corruptFLAC(t *testing.T, frames int) string {
	t.Helper()
	const block = 1152
	info := &meta.StreamInfo{
		BlockSizeMin:  block,
		BlockSizeMax:  block,
		SampleRate:    44100,
		NChannels:     1,
		BitsPerSample: 16,
		NSamples:      uint64(frames * block),
	}
	buf := new(bytes.Buffer)
	enc, err := flac.NewEncoder(buf, info)
	require.NoError(t, err)

	var third int
	for i := 0; i < frames; i++ {
		if i == 2 {
			third = buf.Len()
		}
		samples := make([]int32, block)
		for j := range samples {
			samples[j] = int32(j % 500)
		}
		require.NoError(t, enc.WriteFrame(&frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         block,
				SampleRate:        44100,
				Channels:          frame.ChannelsMono,
				BitsPerSample:     16,
			},
			Subframes: []*frame.Subframe{{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   samples,
				NSamples:  block,
			}},
		}))
	}
	require.NoError(t, enc.Close())

	data := buf.Bytes()
	for i := third + 100; i < third+140; i++ {
		data[i] ^= 0x55
	}
	path := filepath.Join(t.TempDir(), "corrupt.flac")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestPlayer_CorruptFLACFrameIsSkipped(t *testing.T) {
	h := newHarness()
	deps := h.deps()
	deps.OpenSource = func(path string) (Source, error) { return media.Open(path) }
	p := New(deps)
	require.NoError(t, p.Open(corruptFLAC(t, 5), "default"))

	for i := 0; i < 5; i++ {
		p.Tick()
		require.Equal(t, StatePlaying, p.State(), "tick %d", i)
	}
	assert.Len(t, h.sink.written, 4)

	p.Tick()
	assert.Equal(t, StateEnd, p.State())
}
