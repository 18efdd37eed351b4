// Package output writes canonical PCM to an audio device.
package output

import (
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

// Errors
var (
	ErrUnknownBackend  = errors.New("unknown output backend")
	ErrUnavailable     = errors.New("output backend not available in this build")
	ErrDeviceNotFound  = errors.New("output device not found")
	ErrUnsupportedData = errors.New("output only accepts s16 stereo")
	ErrClosed          = errors.New("sink closed")
)

// Backend names.
const (
	BackendPortAudio = "portaudio"
	BackendSpeaker   = "speaker"
	BackendNull      = "null"
)

// DefaultDevice selects the backend's default output device.
const DefaultDevice = "default"

// Sink accepts interleaved S16LE stereo at Format().SampleRate.
// Write blocks while the device buffer is full.
type Sink interface {
	Format() audio.Format
	Write(data []byte) error
	Flush() error
	Close() error
}

// Device describes an output device offered by a backend.
type Device struct {
	Name              string
	Default           bool
	MaxChannels       int
	DefaultSampleRate float64
}

type backend struct {
	open    func(device string, want audio.Format) (Sink, error)
	devices func() ([]Device, error)
}

var (
	backendsMu sync.RWMutex
	backends   = map[string]backend{}
)

func register(name string, b backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = b
}

func lookup(name string) (backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, ok := backends[strings.ToLower(name)]
	if !ok {
		return backend{}, errors.Wrapf(ErrUnknownBackend, "%q", name)
	}
	return b, nil
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens device on the named backend. want is a request; the returned
// sink's Format reports what the device actually accepted.
func Open(backendName, device string, want audio.Format) (Sink, error) {
	if want.Channels != 2 || want.SampleFormat != audio.SampleFormatS16 {
		return nil, errors.Wrapf(ErrUnsupportedData, "requested %s", want)
	}
	b, err := lookup(backendName)
	if err != nil {
		return nil, err
	}
	sink, err := b.open(device, want)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s output", backendName)
	}
	got := sink.Format()
	if got.SampleRate != want.SampleRate {
		zlog.Info().Msgf("output: device rate differs: backend=%s requested=%d actual=%d", backendName, want.SampleRate, got.SampleRate)
	}
	zlog.Debug().Msgf("output: opened: backend=%s device=%q format=%s", backendName, device, got)
	return sink, nil
}

// Devices lists the output devices of the named backend.
func Devices(backendName string) ([]Device, error) {
	b, err := lookup(backendName)
	if err != nil {
		return nil, err
	}
	return b.devices()
}

func isDefaultDevice(name string) bool {
	return name == "" || strings.EqualFold(name, DefaultDevice)
}
