//go:build cgo

package media

import (
	"github.com/cockroachdb/errors"
	"github.com/jj11hh/opus"
)

// Largest Opus frame: 120 ms at 48 kHz.
const opusMaxFrameSamples = 5760

// opusCodec implements oggCodec for Opus streams. libopus always decodes at 48 kHz.
type opusCodec struct {
	decoder  *opus.Decoder
	channels int
	preSkip  int
	skip     int // samples still to drop at the start of the stream
	pcm      []float32
}

func newOpusCodec(first []byte) (oggCodec, error) {
	channels, preSkip, err := parseOpusHead(first)
	if err != nil {
		return nil, err
	}
	decoder, err := opus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, errors.Wrap(err, "opus: failed to create decoder")
	}
	return &opusCodec{
		decoder:  decoder,
		channels: channels,
		preSkip:  preSkip,
		skip:     preSkip,
		pcm:      make([]float32, opusMaxFrameSamples*channels),
	}, nil
}

func (c *opusCodec) SampleRate() int    { return opusSampleRate }
func (c *opusCodec) Channels() int      { return c.channels }
func (c *opusCodec) HeaderPackets() int { return 2 }

// AddHeader accepts the OpusTags packet, which carries nothing the decoder needs.
func (c *opusCodec) AddHeader([]byte) error {
	return nil
}

func (c *opusCodec) Decode(packet []byte) ([]float32, error) {
	n, err := c.decoder.DecodeFloat32(packet, c.pcm)
	if err != nil {
		return nil, err
	}
	if c.skip > 0 {
		drop := min(c.skip, n)
		c.skip -= drop
		out := make([]float32, (n-drop)*c.channels)
		copy(out, c.pcm[drop*c.channels:n*c.channels])
		return out, nil
	}
	out := make([]float32, n*c.channels)
	copy(out, c.pcm[:n*c.channels])
	return out, nil
}

func (c *opusCodec) GranuleToSamples(granule int64) int64 {
	return granule - int64(c.preSkip)
}

func (c *opusCodec) Reset(atStart bool) {
	c.skip = 0
	if atStart {
		c.skip = c.preSkip
	}
}
