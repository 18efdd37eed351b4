package player

import (
	"time"

	"github.com/osa030/lightmusic/internal/domain/audio"
	"github.com/osa030/lightmusic/internal/infra/media"
	"github.com/osa030/lightmusic/internal/infra/output"
	"github.com/osa030/lightmusic/internal/infra/resample"
)

// Source is an opened media file.
// ReadPacket returns io.EOF at the end of the selected stream.
type Source interface {
	Info() audio.ContainerInfo
	OpenDecoder(stream int) error
	ReadPacket() (audio.Packet, error)
	Decode(pkt audio.Packet) (audio.Frame, error)
	SeekTo(t time.Duration) error
	Close() error
}

// Resampler converts frames to the sink format.
type Resampler interface {
	Convert(f audio.Frame) ([]byte, error)
	Flush() []byte
	Reset()
}

// Sink is an opened audio output.
type Sink interface {
	Format() audio.Format
	Write(data []byte) error
	Flush() error
	Close() error
}

// Deps creates the pipeline stages for each opened track.
type Deps struct {
	OpenSource   func(path string) (Source, error)
	OpenSink     func(device string, want audio.Format) (Sink, error)
	NewResampler func(stream audio.StreamInfo, out audio.Format) (Resampler, error)
}

// DefaultDeps wires the media, output and resample packages.
func DefaultDeps(backend string, quality int) Deps {
	return Deps{
		OpenSource: func(path string) (Source, error) {
			src, err := media.Open(path)
			if err != nil {
				return nil, err
			}
			return src, nil
		},
		OpenSink: func(device string, want audio.Format) (Sink, error) {
			sink, err := output.Open(backend, device, want)
			if err != nil {
				return nil, err
			}
			return sink, nil
		},
		NewResampler: func(stream audio.StreamInfo, out audio.Format) (Resampler, error) {
			c, err := resample.New(stream.SampleRate, out, quality)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}
