package media

import (
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

const wavPacketSamples = 1024

// wavSource reads RIFF/WAVE files through beep's decoder,
// which yields stereo float64 samples regardless of the stored layout.
type wavSource struct {
	container
	streamer beep.StreamSeekCloser
	format   beep.Format
	buf      [][2]float64
}

func openWAV(f *os.File) (backend, error) {
	streamer, format, err := wav.Decode(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode wav header")
	}

	codec, long := wavCodecName(format.Precision)
	duration := format.SampleRate.D(streamer.Len())
	rate := int(format.SampleRate)

	s := &wavSource{
		container: newContainer(f),
		streamer:  streamer,
		format:    format,
		buf:       make([][2]float64, wavPacketSamples),
	}
	s.info = audio.ContainerInfo{
		Format:     "wav",
		FormatLong: "WAV / WAVE (Waveform Audio)",
		Duration:   duration,
		BitRate:    rate * format.NumChannels * format.Precision * 8,
		Streams: []audio.StreamInfo{{
			Index:        0,
			Type:         audio.MediaAudio,
			Codec:        codec,
			CodecLong:    long,
			SampleRate:   rate,
			Channels:     format.NumChannels,
			SampleFormat: audio.SampleFormatF64,
			BitDepth:     format.Precision * 8,
			BitRate:      rate * format.NumChannels * format.Precision * 8,
			Duration:     duration,
		}},
	}
	return s, nil
}

func wavCodecName(precision int) (string, string) {
	switch precision {
	case 1:
		return "pcm_u8", "PCM unsigned 8-bit"
	case 2:
		return "pcm_s16le", "PCM signed 16-bit little-endian"
	case 3:
		return "pcm_s24le", "PCM signed 24-bit little-endian"
	default:
		return "pcm", "PCM"
	}
}

func (s *wavSource) OpenDecoder(stream int) error {
	return s.selectStream(stream)
}

func (s *wavSource) ReadPacket() (audio.Packet, error) {
	if err := s.checkOpen(); err != nil {
		return audio.Packet{}, err
	}

	start := s.streamer.Position()
	n, _ := s.streamer.Stream(s.buf)
	if n == 0 {
		if err := s.streamer.Err(); err != nil {
			return audio.Packet{}, errors.Wrap(err, "failed to read wav data")
		}
		return audio.Packet{}, io.EOF
	}

	return audio.Packet{
		Stream:    0,
		Data:      putStereoF64(s.buf[:n]),
		Timestamp: s.format.SampleRate.D(start),
	}, nil
}

// Decode tags the packet as stereo float64, the layout beep produced.
func (s *wavSource) Decode(pkt audio.Packet) (audio.Frame, error) {
	if err := s.checkPacket(pkt); err != nil {
		return audio.Frame{}, err
	}
	return audio.Frame{
		SampleFormat: audio.SampleFormatF64,
		SampleRate:   int(s.format.SampleRate),
		Channels:     2,
		BitDepth:     64,
		Samples:      len(pkt.Data) / 16,
		Data:         pkt.Data,
	}, nil
}

func (s *wavSource) SeekTo(t time.Duration) error {
	target := s.format.SampleRate.N(t)
	if target > s.streamer.Len() {
		target = s.streamer.Len()
	}
	if target < 0 {
		target = 0
	}
	if err := s.streamer.Seek(target); err != nil {
		return errors.Wrap(err, "failed to seek wav stream")
	}
	return nil
}

func (s *wavSource) Close() error {
	if err := s.streamer.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return errors.Wrap(err, "failed to close wav decoder")
	}
	return s.closeFile()
}
