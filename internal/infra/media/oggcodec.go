package media

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/jfreymuth/vorbis"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

var (
	errInvalidVorbisHeader = errors.New("vorbis: invalid identification header")
	errInvalidOpusHead     = errors.New("opus: invalid OpusHead")
	errUnsupportedOpus     = errors.New("opus: unsupported version")
	errHeadersIncomplete   = errors.New("ogg: codec headers incomplete")
)

const opusSampleRate = 48000

// oggCodec handles codec-specific setup and decoding for one logical Ogg stream.
type oggCodec interface {
	SampleRate() int
	Channels() int
	// HeaderPackets is the number of header packets including the first one.
	HeaderPackets() int
	// AddHeader receives header packets after the first one, in order.
	AddHeader(packet []byte) error
	// Decode returns interleaved samples.
	Decode(packet []byte) ([]float32, error)
	// GranuleToSamples converts a granule position to a sample count.
	GranuleToSamples(granule int64) int64
	// Reset drops decoder state after a seek. atStart is true when
	// playback restarts from the first audio packet.
	Reset(atStart bool)
}

// oggStreamKind inspects the first packet of a logical stream.
func oggStreamKind(first []byte) (audio.MediaType, string, string) {
	switch {
	case len(first) >= 8 && string(first[:8]) == "OpusHead":
		return audio.MediaAudio, "opus", "Opus (Opus Interactive Audio Codec)"
	case len(first) >= 7 && first[0] == 0x01 && string(first[1:7]) == "vorbis":
		return audio.MediaAudio, "vorbis", "Vorbis"
	case len(first) >= 7 && first[0] == 0x80 && string(first[1:7]) == "theora":
		return audio.MediaVideo, "theora", "Theora"
	case len(first) >= 8 && string(first[:8]) == "fishead\x00":
		return audio.MediaData, "skeleton", "Ogg Skeleton"
	default:
		return audio.MediaUnknown, "unknown", "unknown"
	}
}

// oggDecoders builds the codec of each decodable stream kind from its first packet.
var oggDecoders = map[string]func(first []byte) (oggCodec, error){
	"opus": newOpusCodec,
	"vorbis": func(first []byte) (oggCodec, error) {
		c, err := newVorbisCodec(first)
		if err != nil {
			return nil, err
		}
		return c, nil
	},
}

// newOggCodec builds a codec from the first packet of a stream.
func newOggCodec(first []byte) (oggCodec, error) {
	_, codec, _ := oggStreamKind(first)
	newCodec, ok := oggDecoders[codec]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedCodec, "ogg codec %s", codec)
	}
	return newCodec(first)
}

// parseVorbisIdent reads the fields the stream info needs from a
// Vorbis identification header.
func parseVorbisIdent(packet []byte) (channels, rate, nominalBitRate int, err error) {
	// [0]=0x01 [1:7]="vorbis" [7:11]=version [11]=channels [12:16]=rate
	// [16:20]=max bitrate [20:24]=nominal bitrate
	if len(packet) < 30 {
		return 0, 0, 0, errInvalidVorbisHeader
	}
	if binary.LittleEndian.Uint32(packet[7:11]) != 0 {
		return 0, 0, 0, errInvalidVorbisHeader
	}
	channels = int(packet[11])
	rate = int(binary.LittleEndian.Uint32(packet[12:16]))
	nominalBitRate = int(int32(binary.LittleEndian.Uint32(packet[20:24])))
	if nominalBitRate < 0 {
		nominalBitRate = 0
	}
	return channels, rate, nominalBitRate, nil
}

// parseOpusHead reads channel count and pre-skip from an OpusHead packet.
func parseOpusHead(packet []byte) (channels, preSkip int, err error) {
	if len(packet) < 19 {
		return 0, 0, errInvalidOpusHead
	}
	if packet[8] != 1 {
		return 0, 0, errUnsupportedOpus
	}
	return int(packet[9]), int(binary.LittleEndian.Uint16(packet[10:12])), nil
}

// vorbisCodec implements oggCodec for Vorbis streams.
type vorbisCodec struct {
	decoder  *vorbis.Decoder
	channels int
	rate     int
}

func newVorbisCodec(first []byte) (*vorbisCodec, error) {
	channels, rate, _, err := parseVorbisIdent(first)
	if err != nil {
		return nil, err
	}
	decoder := &vorbis.Decoder{}
	if err := decoder.ReadHeader(first); err != nil {
		return nil, errors.Wrap(err, "vorbis: failed to read identification header")
	}
	return &vorbisCodec{decoder: decoder, channels: channels, rate: rate}, nil
}

func (c *vorbisCodec) SampleRate() int    { return c.rate }
func (c *vorbisCodec) Channels() int      { return c.channels }
func (c *vorbisCodec) HeaderPackets() int { return 3 }

// AddHeader feeds the comment and setup headers.
func (c *vorbisCodec) AddHeader(packet []byte) error {
	if err := c.decoder.ReadHeader(packet); err != nil {
		return errors.Wrap(err, "vorbis: failed to read header")
	}
	return nil
}

func (c *vorbisCodec) Decode(packet []byte) ([]float32, error) {
	if !c.decoder.HeadersRead() {
		return nil, errHeadersIncomplete
	}
	return c.decoder.Decode(packet)
}

func (c *vorbisCodec) GranuleToSamples(granule int64) int64 {
	return granule
}

func (c *vorbisCodec) Reset(bool) {
	c.decoder.Clear()
}
