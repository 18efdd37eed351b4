package media

import (
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hajimehoshi/go-mp3"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

// go-mp3 always produces interleaved S16LE stereo.
const (
	mp3BytesPerSample = 4
	mp3PacketBytes    = 1152 * mp3BytesPerSample // one MPEG-1 layer III frame
)

// mp3Source reads MP3 files. go-mp3 demultiplexes and decodes in one step,
// so packets already carry PCM and Decode only tags the layout.
type mp3Source struct {
	container
	decoder *mp3.Decoder
	pos     int64 // decoded bytes consumed so far
	buf     []byte
	atEnd   bool
}

func openMP3(f *os.File) (backend, error) {
	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create mp3 decoder")
	}

	rate := decoder.SampleRate()
	var duration time.Duration
	if l := decoder.Length(); l > 0 {
		duration = samplesToDuration(l/mp3BytesPerSample, rate)
	}

	s := &mp3Source{
		container: newContainer(f),
		decoder:   decoder,
		buf:       make([]byte, mp3PacketBytes),
	}
	s.info = audio.ContainerInfo{
		Format:     "mp3",
		FormatLong: "MP2/3 (MPEG audio layer 2/3)",
		Duration:   duration,
		Streams: []audio.StreamInfo{{
			Index:        0,
			Type:         audio.MediaAudio,
			Codec:        "mp3",
			CodecLong:    "MP3 (MPEG audio layer 3)",
			SampleRate:   rate,
			Channels:     2,
			SampleFormat: audio.SampleFormatS16,
			BitDepth:     16,
			Duration:     duration,
		}},
	}
	return s, nil
}

func (s *mp3Source) OpenDecoder(stream int) error {
	return s.selectStream(stream)
}

func (s *mp3Source) ReadPacket() (audio.Packet, error) {
	if err := s.checkOpen(); err != nil {
		return audio.Packet{}, err
	}
	if s.atEnd {
		return audio.Packet{}, io.EOF
	}

	n, err := io.ReadFull(s.decoder, s.buf)
	n -= n % mp3BytesPerSample
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return audio.Packet{}, io.EOF
		}
		return audio.Packet{}, errors.Wrap(err, "failed to read mp3 data")
	}

	data := make([]byte, n)
	copy(data, s.buf[:n])
	pkt := audio.Packet{
		Stream:    0,
		Data:      data,
		Timestamp: samplesToDuration(s.pos/mp3BytesPerSample, s.decoder.SampleRate()),
	}
	s.pos += int64(n)
	return pkt, nil
}

func (s *mp3Source) Decode(pkt audio.Packet) (audio.Frame, error) {
	if err := s.checkPacket(pkt); err != nil {
		return audio.Frame{}, err
	}
	return audio.Frame{
		SampleFormat: audio.SampleFormatS16,
		SampleRate:   s.decoder.SampleRate(),
		Channels:     2,
		BitDepth:     16,
		Samples:      len(pkt.Data) / mp3BytesPerSample,
		Data:         pkt.Data,
	}, nil
}

// SeekTo moves to the sample at t. go-mp3 cannot seek onto the end of the
// stream, so seeking there only marks the source as exhausted.
func (s *mp3Source) SeekTo(t time.Duration) error {
	offset := durationToSamples(t, s.decoder.SampleRate()) * mp3BytesPerSample
	if l := s.decoder.Length(); l > 0 && offset >= l {
		s.pos = l
		s.atEnd = true
		return nil
	}
	pos, err := s.decoder.Seek(offset, io.SeekStart)
	if err != nil {
		return errors.Wrap(err, "failed to seek mp3 stream")
	}
	s.pos = pos
	s.atEnd = false
	return nil
}

func (s *mp3Source) Close() error {
	return s.closeFile()
}
