package media

import (
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

// oggStream is one logical stream announced by a BOS page.
type oggStream struct {
	serial  uint32
	first   []byte
	preSkip int
}

// oggSource reads Ogg files that may multiplex several logical streams.
// Vorbis and Opus streams are decodable; other streams are listed only.
type oggSource struct {
	container
	demux     *oggDemuxer
	streams   []oggStream
	bySerial  map[uint32]int
	dataStart int64 // first page after the header pages of the selected stream
	codec     oggCodec
	samplePos int64
}

func openOgg(f *os.File) (backend, error) {
	s := &oggSource{
		container: newContainer(f),
		demux:     newOggDemuxer(f),
		bySerial:  make(map[uint32]int),
	}
	if err := s.readHeaders(); err != nil {
		return nil, err
	}
	return s, nil
}

// readHeaders collects the BOS pages at the head of the file and builds stream info.
func (s *oggSource) readHeaders() error {
	for {
		start := s.demux.offset
		hdr, body, err := s.demux.readPage()
		if err != nil {
			if errors.Is(err, io.EOF) && len(s.streams) > 0 {
				break
			}
			return errors.Wrap(err, "failed to read ogg page")
		}
		if hdr.Flags&oggFlagBOS == 0 {
			s.dataStart = start
			break
		}
		first := body
		if len(hdr.SegmentTable) > 0 {
			n := 0
			for _, lace := range hdr.SegmentTable {
				n += int(lace)
				if lace < 255 {
					break
				}
			}
			first = body[:n]
		}
		s.bySerial[hdr.SerialNumber] = len(s.streams)
		s.streams = append(s.streams, oggStream{serial: hdr.SerialNumber, first: first})
	}
	if len(s.streams) == 0 {
		return errors.Wrap(ErrUnsupportedFormat, "ogg: no logical streams")
	}

	granules, err := lastGranules(s.file)
	if err != nil {
		return errors.Wrap(err, "failed to scan ogg tail")
	}

	s.info = audio.ContainerInfo{
		Format:     "ogg",
		FormatLong: "Ogg",
		Streams:    make([]audio.StreamInfo, 0, len(s.streams)),
	}
	for i := range s.streams {
		st := s.describe(i, granules)
		if st.Duration > s.info.Duration {
			s.info.Duration = st.Duration
		}
		if st.Type == audio.MediaAudio {
			s.info.BitRate += st.BitRate
		}
		s.info.Streams = append(s.info.Streams, st)
	}
	return s.demux.reset(0, nil)
}

// describe builds the stream info of stream i from its identification packet.
func (s *oggSource) describe(i int, granules map[uint32]int64) audio.StreamInfo {
	entry := &s.streams[i]
	kind, codec, long := oggStreamKind(entry.first)
	st := audio.StreamInfo{
		Index:     i,
		Type:      kind,
		Codec:     codec,
		CodecLong: long,
	}

	switch codec {
	case "vorbis":
		channels, rate, bitRate, err := parseVorbisIdent(entry.first)
		if err != nil {
			zlog.Warn().Err(err).Msgf("media: ogg stream %d has a broken vorbis header", i)
			st.Type = audio.MediaUnknown
			return st
		}
		st.SampleRate = rate
		st.Channels = channels
		st.SampleFormat = audio.SampleFormatF32
		st.BitDepth = 32
		st.BitRate = bitRate
		if g, ok := granules[entry.serial]; ok {
			st.Duration = samplesToDuration(g, rate)
		}
	case "opus":
		channels, preSkip, err := parseOpusHead(entry.first)
		if err != nil {
			zlog.Warn().Err(err).Msgf("media: ogg stream %d has a broken opus header", i)
			st.Type = audio.MediaUnknown
			return st
		}
		entry.preSkip = preSkip
		st.SampleRate = opusSampleRate
		st.Channels = channels
		st.SampleFormat = audio.SampleFormatF32
		st.BitDepth = 32
		if g, ok := granules[entry.serial]; ok && g > int64(preSkip) {
			st.Duration = samplesToDuration(g-int64(preSkip), opusSampleRate)
		}
	}
	return st
}

// OpenDecoder creates the codec for the stream and consumes its header packets.
func (s *oggSource) OpenDecoder(stream int) error {
	if err := s.selectStream(stream); err != nil {
		return err
	}
	entry := s.streams[stream]
	codec, err := newOggCodec(entry.first)
	if err != nil {
		s.selected = -1
		return err
	}

	if err := s.demux.reset(0, nil); err != nil {
		s.selected = -1
		return err
	}
	seen := 0
	for seen < codec.HeaderPackets() {
		pkt, err := s.demux.next()
		if err != nil {
			s.selected = -1
			if errors.Is(err, io.EOF) {
				return errors.Wrapf(errHeadersIncomplete, "stream %d", stream)
			}
			return errors.Wrap(err, "failed to read ogg header packets")
		}
		if pkt.serial != entry.serial {
			continue
		}
		if seen > 0 {
			if err := codec.AddHeader(pkt.data); err != nil {
				s.selected = -1
				return err
			}
		}
		seen++
	}

	// Both codecs end their headers on a page boundary.
	s.dataStart = s.demux.offset
	s.demux.queue = nil
	s.codec = codec
	s.samplePos = 0
	return nil
}

// ReadPacket returns the next packet of any known stream.
// Packets of other streams carry their own stream index.
func (s *oggSource) ReadPacket() (audio.Packet, error) {
	if err := s.checkOpen(); err != nil {
		return audio.Packet{}, err
	}
	for {
		pkt, err := s.demux.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return audio.Packet{}, io.EOF
			}
			return audio.Packet{}, errors.Wrap(err, "failed to read ogg packet")
		}
		idx, ok := s.bySerial[pkt.serial]
		if !ok {
			// chained stream not seen in the headers
			continue
		}
		out := audio.Packet{Stream: idx, Data: pkt.data}
		if idx == s.selected {
			out.Timestamp = samplesToDuration(s.samplePos, s.codec.SampleRate())
		}
		return out, nil
	}
}

func (s *oggSource) Decode(pkt audio.Packet) (audio.Frame, error) {
	if err := s.checkPacket(pkt); err != nil {
		return audio.Frame{}, err
	}
	pcm, err := s.codec.Decode(pkt.Data)
	if err != nil {
		return audio.Frame{}, errors.Wrapf(err, "failed to decode %s packet", s.info.Streams[s.selected].Codec)
	}
	channels := s.codec.Channels()
	samples := 0
	if channels > 0 {
		samples = len(pcm) / channels
	}
	s.samplePos += int64(samples)
	return audio.Frame{
		SampleFormat: audio.SampleFormatF32,
		SampleRate:   s.codec.SampleRate(),
		Channels:     channels,
		BitDepth:     32,
		Samples:      samples,
		Data:         putF32(pcm),
	}, nil
}

// SeekTo lands on the start of the last page whose predecessor ends at or before t.
// Precision is one Ogg page of the selected stream.
func (s *oggSource) SeekTo(t time.Duration) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	serial := s.streams[s.selected].serial
	target := durationToSamples(t, s.codec.SampleRate())

	best, bestGranule, bestSamples := s.dataStart, int64(-1), int64(0)
	if target > 0 {
		if err := s.demux.reset(s.dataStart, nil); err != nil {
			return err
		}
		for {
			hdr, _, err := s.demux.skipPage()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return errors.Wrap(err, "failed to scan ogg pages")
			}
			if hdr.SerialNumber != serial || hdr.GranulePos == -1 {
				continue
			}
			samples := s.codec.GranuleToSamples(hdr.GranulePos)
			if samples > target {
				break
			}
			best, bestGranule, bestSamples = s.demux.offset, hdr.GranulePos, max(samples, 0)
		}
	}

	var granules map[uint32]int64
	if bestGranule >= 0 {
		granules = map[uint32]int64{serial: bestGranule}
	}
	if err := s.demux.reset(best, granules); err != nil {
		return err
	}
	s.codec.Reset(best == s.dataStart)
	s.samplePos = bestSamples
	return nil
}

func (s *oggSource) Close() error {
	return s.closeFile()
}
