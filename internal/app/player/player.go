package player

import (
	"io"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/domain/audio"
	"github.com/osa030/lightmusic/internal/infra/media"
)

// pipeline is everything one opened track holds. It is built whole by
// Open and torn down whole by release.
type pipeline struct {
	source    Source
	stream    int
	resampler Resampler
	sink      Sink
	info      audio.ContainerInfo
	position  time.Duration // timestamp of the latest packet or seek target
}

// Player drives one track at a time. It holds no locks and starts no
// goroutines; a single caller must drive it.
type Player struct {
	deps  Deps
	state State
	pipe  *pipeline

	path          string
	containerText string
	streamText    string
}

// New creates a player in the Uninitialized state.
func New(deps Deps) *Player {
	return &Player{deps: deps, state: StateUninitialized}
}

// State returns the current state.
func (p *Player) State() State {
	return p.state
}

// Path returns the path of the last opened track.
func (p *Player) Path() string {
	return p.path
}

// Open opens path on the output device and starts playing.
// Any open track is closed first. On failure the player is left in Error
// with nothing acquired.
func (p *Player) Open(path, device string) error {
	if p.state != StateUninitialized {
		p.CloseAndReset()
	}
	p.path = path

	pipe, err := p.openPipeline(path, device)
	if err != nil {
		p.state = StateError
		zlog.Error().Err(err).Msgf("player: open failed: path=%s", path)
		return err
	}

	p.pipe = pipe
	p.state = StatePlaying
	st := pipe.info.Streams[pipe.stream]
	zlog.Info().Msgf("player: opened: path=%s stream=%d codec=%s in=%dHz out=%s",
		filepath.Base(path), pipe.stream, st.Codec, st.SampleRate, pipe.sink.Format())
	return nil
}

func (p *Player) openPipeline(path, device string) (*pipeline, error) {
	src, err := p.deps.OpenSource(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to open %s", path), ErrSource)
	}

	info := src.Info()
	stream, skipped := selectStream(src, info)
	p.containerText = media.DescribeContainer(info)
	p.streamText = media.DescribeStreams(info, skipped)
	zlog.Info().Msgf("player: container:\n%s", p.containerText)
	zlog.Info().Msgf("player: streams:\n%s", p.streamText)

	if stream < 0 {
		closeQuietly("source", src)
		return nil, errors.Wrapf(ErrNoUsableStream, "%s", path)
	}
	st := info.Streams[stream]

	sink, err := p.deps.OpenSink(device, audio.Canonical(st.SampleRate))
	if err != nil {
		closeQuietly("source", src)
		return nil, errors.Mark(errors.Wrapf(err, "failed to open output device %q", device), ErrOutput)
	}

	res, err := p.deps.NewResampler(st, sink.Format())
	if err != nil {
		closeQuietly("sink", sink)
		closeQuietly("source", src)
		return nil, errors.Mark(errors.Wrap(err, "failed to create resampler"), ErrAllocation)
	}

	return &pipeline{
		source:    src,
		stream:    stream,
		resampler: res,
		sink:      sink,
		info:      info,
	}, nil
}

// selectStream opens the decoder of the first audio stream that accepts it.
// It returns -1 when none does, with the reason each stream was skipped.
func selectStream(src Source, info audio.ContainerInfo) (int, map[int]string) {
	skipped := make(map[int]string)
	for i, st := range info.Streams {
		if st.Type != audio.MediaAudio {
			skipped[i] = media.SkipNotAudio
			continue
		}
		if err := src.OpenDecoder(i); err != nil {
			zlog.Debug().Err(err).Msgf("player: skipping stream %d", i)
			skipped[i] = media.SkipDecoderFailed
			continue
		}
		return i, skipped
	}
	return -1, skipped
}

// Describe renders the metadata dump Open would log for src, without
// opening an output.
func Describe(src Source) (containerText, streamText string) {
	info := src.Info()
	_, skipped := selectStream(src, info)
	return media.DescribeContainer(info), media.DescribeStreams(info, skipped)
}

// Tick moves one packet through the pipeline. It does nothing unless Playing.
func (p *Player) Tick() {
	if p.state != StatePlaying {
		return
	}
	pipe := p.pipe

	pkt, err := pipe.source.ReadPacket()
	if errors.Is(err, io.EOF) {
		p.finish()
		return
	}
	if err != nil {
		p.fail(errors.Mark(errors.Wrap(err, "failed to read packet"), ErrSource))
		return
	}
	if pkt.Stream != pipe.stream {
		return
	}
	pipe.position = pkt.Timestamp

	frame, err := pipe.source.Decode(pkt)
	if err != nil {
		err = errors.Mark(err, ErrTransientDecode)
		zlog.Warn().Err(err).Msgf("player: decode failed, skipping packet: ts=%s", pkt.Timestamp)
		return
	}
	if frame.Empty() {
		return
	}

	data, err := pipe.resampler.Convert(frame)
	if err != nil {
		err = errors.Mark(err, ErrTransientDecode)
		zlog.Warn().Err(err).Msgf("player: conversion failed, skipping frame: ts=%s", pkt.Timestamp)
		return
	}
	p.write(data)
}

// finish drains the resampler and the sink and moves to End.
func (p *Player) finish() {
	p.write(p.pipe.resampler.Flush())
	if err := p.pipe.sink.Flush(); err != nil {
		zlog.Error().Err(errors.Mark(err, ErrOutput)).Msg("player: failed to flush output")
	}
	p.state = StateEnd
	zlog.Debug().Msgf("player: end of track: path=%s", p.path)
}

// write sends data to the sink. Write failures drop the data.
func (p *Player) write(data []byte) {
	if len(data) == 0 {
		return
	}
	if err := p.pipe.sink.Write(data); err != nil {
		zlog.Error().Err(errors.Mark(err, ErrOutput)).Msgf("player: output write failed, dropped %d bytes", len(data))
	}
}

// fail releases the pipeline and moves to Error.
func (p *Player) fail(err error) {
	zlog.Error().Err(err).Msgf("player: playback failed: path=%s", p.path)
	p.release()
	p.state = StateError
}

// Pause pauses playback. Pausing while Paused does nothing.
func (p *Player) Pause() error {
	switch p.state {
	case StatePlaying:
		p.state = StatePaused
		return nil
	case StatePaused:
		return nil
	default:
		return p.invalid("pause")
	}
}

// Unpause resumes playback. Unpausing while Playing does nothing.
func (p *Player) Unpause() error {
	switch p.state {
	case StatePaused:
		p.state = StatePlaying
		return nil
	case StatePlaying:
		return nil
	default:
		return p.invalid("unpause")
	}
}

// SeekTo moves the read position to t. Seeking an ended track pauses it
// so it can be played again.
func (p *Player) SeekTo(t time.Duration) error {
	if !p.state.HasPipeline() {
		return p.invalid("seek")
	}
	if t < 0 {
		t = 0
	}
	if err := p.pipe.source.SeekTo(t); err != nil {
		err = errors.Mark(errors.Wrapf(err, "failed to seek to %s", t), ErrSource)
		zlog.Warn().Err(err).Msg("player: seek failed")
		return err
	}
	p.pipe.resampler.Reset()
	p.pipe.position = t
	if p.state == StateEnd {
		p.state = StatePaused
	}
	return nil
}

func (p *Player) invalid(op string) error {
	err := errors.Wrapf(ErrInvalidState, "%s in state %s", op, p.state)
	zlog.Warn().Msgf("player: %v", err)
	return err
}

// CloseAndReset releases everything and returns to Uninitialized.
// It is always legal and idempotent.
func (p *Player) CloseAndReset() {
	p.release()
	p.state = StateUninitialized
	p.path = ""
	p.containerText = ""
	p.streamText = ""
}

// Close is CloseAndReset for use with defer.
func (p *Player) Close() error {
	p.CloseAndReset()
	return nil
}

// release tears the pipeline down in reverse order of construction.
func (p *Player) release() {
	if p.pipe == nil {
		return
	}
	closeQuietly("sink", p.pipe.sink)
	closeQuietly("source", p.pipe.source)
	p.pipe = nil
}

// Position returns the playback position in whole seconds.
func (p *Player) Position() int64 {
	if p.pipe == nil {
		return 0
	}
	return int64(p.pipe.position.Seconds())
}

// Duration returns the container duration in whole seconds.
func (p *Player) Duration() int64 {
	if p.pipe == nil {
		return 0
	}
	return int64(p.pipe.info.Duration.Seconds())
}

// ContainerText returns the container part of the metadata dump.
func (p *Player) ContainerText() string {
	return p.containerText
}

// StreamText returns the stream part of the metadata dump.
func (p *Player) StreamText() string {
	return p.streamText
}

// Info returns the container information of the open track.
func (p *Player) Info() (audio.ContainerInfo, bool) {
	if p.pipe == nil {
		return audio.ContainerInfo{}, false
	}
	return p.pipe.info, true
}

func closeQuietly(what string, c io.Closer) {
	if err := c.Close(); err != nil {
		zlog.Warn().Err(err).Msgf("player: failed to close %s", what)
	}
}
