//go:build cgo

package output

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gordonklaus/portaudio"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

const paFramesPerBuffer = 1024

func init() {
	register(BackendPortAudio, backend{
		open:    openPortAudio,
		devices: portAudioDevices,
	})
}

var (
	paMu   sync.Mutex
	paRefs int
)

// paAcquire initializes PortAudio on first use. Every successful call
// must be paired with paRelease.
func paAcquire() error {
	paMu.Lock()
	defer paMu.Unlock()
	if paRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return errors.Wrap(err, "failed to initialize portaudio")
		}
	}
	paRefs++
	return nil
}

func paRelease() {
	paMu.Lock()
	defer paMu.Unlock()
	if paRefs == 0 {
		return
	}
	paRefs--
	if paRefs == 0 {
		if err := portaudio.Terminate(); err != nil {
			zlog.Warn().Err(err).Msg("output: failed to terminate portaudio")
		}
	}
}

func findPortAudioDevice(name string) (*portaudio.DeviceInfo, error) {
	if isDefaultDevice(name) {
		dev, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, errors.Wrap(ErrDeviceNotFound, err.Error())
		}
		return dev, nil
	}
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list devices")
	}
	for _, d := range devs {
		if d.Name == name && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, errors.Wrapf(ErrDeviceNotFound, "%q", name)
}

func portAudioDevices() ([]Device, error) {
	if err := paAcquire(); err != nil {
		return nil, err
	}
	defer paRelease()

	devs, err := portaudio.Devices()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list devices")
	}
	var def string
	if d, err := portaudio.DefaultOutputDevice(); err == nil {
		def = d.Name
	}
	var out []Device
	for _, d := range devs {
		if d.MaxOutputChannels <= 0 {
			continue
		}
		out = append(out, Device{
			Name:              d.Name,
			Default:           d.Name == def,
			MaxChannels:       d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		})
	}
	return out, nil
}

// portAudioSink writes through a blocking PortAudio stream.
type portAudioSink struct {
	stream  *portaudio.Stream
	format  audio.Format
	buf     []int16
	pending []int16
	closed  bool
}

func openPortAudio(device string, want audio.Format) (Sink, error) {
	if err := paAcquire(); err != nil {
		return nil, err
	}
	sink, err := newPortAudioSink(device, want)
	if err != nil {
		paRelease()
		return nil, err
	}
	return sink, nil
}

func newPortAudioSink(device string, want audio.Format) (*portAudioSink, error) {
	dev, err := findPortAudioDevice(device)
	if err != nil {
		return nil, err
	}

	buf := make([]int16, paFramesPerBuffer*want.Channels)
	params := portaudio.HighLatencyParameters(nil, dev)
	params.Output.Channels = want.Channels
	params.SampleRate = float64(want.SampleRate)
	params.FramesPerBuffer = paFramesPerBuffer
	if err := portaudio.IsFormatSupported(params, buf); err != nil {
		zlog.Info().Msgf("output: rate not supported, using device default: device=%q requested=%d default=%.0f",
			dev.Name, want.SampleRate, dev.DefaultSampleRate)
		params.SampleRate = dev.DefaultSampleRate
	}

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open stream on %q", dev.Name)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, errors.Wrap(err, "failed to start stream")
	}

	return &portAudioSink{
		stream: stream,
		format: audio.Canonical(int(params.SampleRate)),
		buf:    buf,
	}, nil
}

func (s *portAudioSink) Format() audio.Format {
	return s.format
}

func (s *portAudioSink) Write(data []byte) error {
	if s.closed {
		return ErrClosed
	}
	s.pending = appendS16(s.pending, data)
	for len(s.pending) >= len(s.buf) {
		copy(s.buf, s.pending)
		s.pending = s.pending[len(s.buf):]
		if err := s.writeBuffer(); err != nil {
			return err
		}
	}
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return nil
}

// Flush pads the pending samples with silence and writes them.
func (s *portAudioSink) Flush() error {
	if s.closed {
		return ErrClosed
	}
	if len(s.pending) == 0 {
		return nil
	}
	n := copy(s.buf, s.pending)
	clear(s.buf[n:])
	s.pending = nil
	return s.writeBuffer()
}

func (s *portAudioSink) writeBuffer() error {
	err := s.stream.Write()
	if err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
		return errors.Wrap(err, "failed to write to stream")
	}
	return nil
}

func (s *portAudioSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer paRelease()

	var errs error
	if err := s.stream.Stop(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to stop stream"))
	}
	if err := s.stream.Close(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to close stream"))
	}
	return errs
}
