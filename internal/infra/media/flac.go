package media

import (
	"bufio"
	"io"
	"os"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

var (
	errNotFLAC      = errors.New("flac: missing fLaC signature")
	errCorruptFrame = errors.New("flac: corrupt frame")
)

// flacSource reads native FLAC files frame by frame. Frames that fail to
// parse are returned as empty packets so Decode can report them, and the
// reader moves on to the next valid frame header.
type flacSource struct {
	container
	r         *offsetReader
	rate      int
	bitDepth  int
	blockSize int64 // fixed block size, used to turn frame numbers into samples
	total     int64
	dataStart int64
	samplePos int64
	index     []flacSeekPoint // built on the first seek
	atEnd     bool
}

// flacSeekPoint is the byte offset of the frame starting at sample.
type flacSeekPoint struct {
	sample int64
	offset int64
}

func openFLAC(f *os.File) (backend, error) {
	// Some taggers prepend an ID3v2 block to FLAC files.
	if err := skipID3v2(f); err != nil {
		return nil, errors.Wrap(err, "failed to skip id3v2 tag")
	}
	start, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.Wrap(err, "failed to locate flac stream")
	}
	r := newOffsetReader(f, start)

	si, err := readFLACMetadata(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse flac stream")
	}

	rate := int(si.SampleRate)
	bitDepth := int(si.BitsPerSample)
	format := audio.SampleFormatS32
	if bitDepth <= 16 {
		format = audio.SampleFormatS16
	}
	duration := samplesToDuration(int64(si.NSamples), rate)

	s := &flacSource{
		container: newContainer(f),
		r:         r,
		rate:      rate,
		bitDepth:  bitDepth,
		blockSize: int64(si.BlockSizeMax),
		total:     int64(si.NSamples),
		dataStart: r.pos,
	}
	s.info = audio.ContainerInfo{
		Format:     "flac",
		FormatLong: "raw FLAC",
		Duration:   duration,
		Streams: []audio.StreamInfo{{
			Index:        0,
			Type:         audio.MediaAudio,
			Codec:        "flac",
			CodecLong:    "FLAC (Free Lossless Audio Codec)",
			SampleRate:   rate,
			Channels:     int(si.NChannels),
			SampleFormat: format,
			BitDepth:     bitDepth,
			Duration:     duration,
		}},
	}
	return s, nil
}

// readFLACMetadata checks the signature, parses STREAMINFO and skips the
// remaining metadata blocks, leaving r on the first frame.
func readFLACMetadata(r io.Reader) (*meta.StreamInfo, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, errors.Wrap(err, "failed to read signature")
	}
	if string(magic) != "fLaC" {
		return nil, errNotFLAC
	}

	block, err := meta.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse STREAMINFO")
	}
	si, ok := block.Body.(*meta.StreamInfo)
	if !ok {
		return nil, errors.Newf("flac: first metadata block is %v, not STREAMINFO", block.Type)
	}
	for !block.IsLast {
		if block, err = meta.New(r); err != nil {
			return nil, errors.Wrap(err, "failed to read metadata block header")
		}
		if err := block.Skip(); err != nil {
			return nil, errors.Wrapf(err, "failed to skip %v block", block.Type)
		}
	}
	return si, nil
}

func (s *flacSource) OpenDecoder(stream int) error {
	return s.selectStream(stream)
}

// frameSample returns the first sample number of the frame with header hdr.
func (s *flacSource) frameSample(hdr frame.Header) int64 {
	if hdr.HasFixedBlockSize {
		return int64(hdr.Num) * s.blockSize
	}
	return int64(hdr.Num)
}

func (s *flacSource) ReadPacket() (audio.Packet, error) {
	if err := s.checkOpen(); err != nil {
		return audio.Packet{}, err
	}
	if s.atEnd {
		return audio.Packet{}, io.EOF
	}

	start := s.r.pos
	fr, err := frame.New(s.r)
	if errors.Is(err, io.EOF) {
		return audio.Packet{}, io.EOF
	}
	if err != nil {
		// Broken header. The samples it covered are unknown.
		zlog.Debug().Err(err).Msgf("media: flac: bad frame header: offset=%d", start)
		pkt := audio.Packet{Stream: 0, Timestamp: samplesToDuration(s.samplePos, s.rate)}
		return pkt, s.resync(start+1, s.samplePos)
	}

	sample := s.frameSample(fr.Header)
	s.samplePos = sample + int64(fr.BlockSize)
	pkt := audio.Packet{Stream: 0, Timestamp: samplesToDuration(sample, s.rate)}
	if err := fr.Parse(); err != nil {
		zlog.Debug().Err(err).Msgf("media: flac: bad frame: offset=%d sample=%d", start, sample)
		return pkt, s.resync(start+2, s.samplePos)
	}

	channels := make([][]int32, len(fr.Subframes))
	for i, sub := range fr.Subframes {
		channels[i] = sub.Samples
	}
	pkt.Data = putPlanarInt(channels, s.bitDepth)
	return pkt, nil
}

// resync moves the reader to the first valid frame header at or after off
// whose first sample is not before minSample. Running out of data leaves
// the source at its end; that is reported by the next ReadPacket.
func (s *flacSource) resync(off, minSample int64) error {
	for {
		if err := s.r.seek(off); err != nil {
			return errors.Wrap(err, "failed to resync flac stream")
		}
		cand, err := s.r.nextSync()
		if errors.Is(err, io.EOF) {
			s.atEnd = true
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to resync flac stream")
		}
		if err := s.r.seek(cand); err != nil {
			return errors.Wrap(err, "failed to resync flac stream")
		}
		if fr, err := frame.New(s.r); err == nil && s.frameSample(fr.Header) >= minSample {
			return s.r.seek(cand)
		}
		off = cand + 1
	}
}

// Decode reports the frames ReadPacket could not parse.
func (s *flacSource) Decode(pkt audio.Packet) (audio.Frame, error) {
	if err := s.checkPacket(pkt); err != nil {
		return audio.Frame{}, err
	}
	if len(pkt.Data) == 0 {
		return audio.Frame{}, errors.Wrapf(errCorruptFrame, "at %s", pkt.Timestamp)
	}
	st := s.info.Streams[0]
	frameSize := st.Channels * st.SampleFormat.BytesPerSample()
	if frameSize == 0 {
		return audio.Frame{}, errors.Newf("invalid flac layout: channels=%d depth=%d", st.Channels, st.BitDepth)
	}
	return audio.Frame{
		SampleFormat: st.SampleFormat,
		SampleRate:   s.rate,
		Channels:     st.Channels,
		BitDepth:     s.bitDepth,
		Samples:      len(pkt.Data) / frameSize,
		Data:         pkt.Data,
	}, nil
}

// SeekTo lands on the start of the frame containing t.
// Seeking at or past the last sample ends the stream.
func (s *flacSource) SeekTo(t time.Duration) error {
	if s.index == nil {
		if err := s.buildIndex(); err != nil {
			return err
		}
	}
	target := durationToSamples(t, s.rate)
	if target >= s.total {
		s.atEnd = true
		s.samplePos = s.total
		return nil
	}

	i := sort.Search(len(s.index), func(i int) bool { return s.index[i].sample > target }) - 1
	point := flacSeekPoint{sample: 0, offset: s.dataStart}
	if i >= 0 {
		point = s.index[i]
	}
	if err := s.r.seek(point.offset); err != nil {
		return errors.Wrap(err, "failed to seek flac stream")
	}
	s.samplePos = point.sample
	s.atEnd = false
	return nil
}

// buildIndex records the offset of every frame header. Only headers are
// parsed, so damaged frames do not stop the scan.
func (s *flacSource) buildIndex() error {
	s.index = make([]flacSeekPoint, 0, 64)
	off := s.dataStart
	end := int64(0)
	for {
		if err := s.r.seek(off); err != nil {
			return errors.Wrap(err, "failed to index flac stream")
		}
		cand, err := s.r.nextSync()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrap(err, "failed to index flac stream")
		}
		if err := s.r.seek(cand); err != nil {
			return errors.Wrap(err, "failed to index flac stream")
		}
		fr, err := frame.New(s.r)
		if err == nil {
			sample := s.frameSample(fr.Header)
			if sample >= end {
				s.index = append(s.index, flacSeekPoint{sample: sample, offset: cand})
				end = sample + int64(fr.BlockSize)
			}
		}
		off = cand + 1
	}
	if s.total == 0 {
		// STREAMINFO may leave the length unknown.
		s.total = end
	}
	zlog.Debug().Msgf("media: flac: indexed %d frames", len(s.index))
	return nil
}

func (s *flacSource) Close() error {
	return s.closeFile()
}

// offsetReader is a buffered reader that knows its absolute file offset.
type offsetReader struct {
	f   io.ReadSeeker
	br  *bufio.Reader
	pos int64
}

func newOffsetReader(f io.ReadSeeker, pos int64) *offsetReader {
	return &offsetReader{f: f, br: bufio.NewReader(f), pos: pos}
}

func (r *offsetReader) Read(p []byte) (int, error) {
	n, err := r.br.Read(p)
	r.pos += int64(n)
	return n, err
}

func (r *offsetReader) seek(off int64) error {
	if _, err := r.f.Seek(off, io.SeekStart); err != nil {
		return err
	}
	r.br.Reset(r.f)
	r.pos = off
	return nil
}

// nextSync returns the offset of the next frame sync code
// (0xFFF8 or 0xFFF9) at or after the current position.
func (r *offsetReader) nextSync() (int64, error) {
	var prev byte
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			return 0, err
		}
		r.pos++
		if prev == 0xFF && b&0xFE == 0xF8 {
			return r.pos - 2, nil
		}
		prev = b
	}
}
