// Package resample converts decoded frames to the output device format.
package resample

import (
	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

// Errors
var (
	ErrInvalidFormat    = errors.New("invalid conversion format")
	ErrUnsupportedFrame = errors.New("unsupported frame layout")
	ErrRateChanged      = errors.New("frame sample rate does not match stream")
)

const (
	DefaultQuality = 4
	MinQuality     = 1
	MaxQuality     = 64

	// Input samples kept back so beep's block reads never run dry.
	holdBack = 4096
	pullSize = 1024
)

// Converter turns frames of one stream into S16LE stereo at the device rate.
// It is not safe for concurrent use.
type Converter struct {
	srcRate int
	out     audio.Format
	quality int
	ratio   float64 // input samples per output sample

	queue     *queue
	resampler *beep.Resampler
	fed       int64
	produced  int64
	buf       [][2]float64
}

// New creates a converter from srcRate to out. out must be the canonical
// stereo S16 layout; rates may differ.
func New(srcRate int, out audio.Format, quality int) (*Converter, error) {
	if srcRate <= 0 || out.SampleRate <= 0 {
		return nil, errors.Wrapf(ErrInvalidFormat, "rates %d -> %d", srcRate, out.SampleRate)
	}
	if out.Channels != 2 || out.SampleFormat != audio.SampleFormatS16 {
		return nil, errors.Wrapf(ErrInvalidFormat, "output %s", out)
	}
	if quality < MinQuality || quality > MaxQuality {
		return nil, errors.Wrapf(ErrInvalidFormat, "quality %d out of range [%d, %d]", quality, MinQuality, MaxQuality)
	}

	c := &Converter{
		srcRate: srcRate,
		out:     out,
		quality: quality,
		ratio:   float64(srcRate) / float64(out.SampleRate),
		buf:     make([][2]float64, pullSize),
	}
	c.Reset()
	if c.resampler != nil {
		zlog.Debug().Msgf("resample: converting: from=%d to=%d quality=%d", srcRate, out.SampleRate, quality)
	}
	return c, nil
}

// Bypass reports whether rates match and samples are only repacked.
func (c *Converter) Bypass() bool {
	return c.srcRate == c.out.SampleRate
}

// Convert converts one frame. With rate conversion part of the input is
// held back until more frames arrive or Flush is called, so the output may
// be shorter than the input or empty.
func (c *Converter) Convert(f audio.Frame) ([]byte, error) {
	if f.SampleRate != 0 && f.SampleRate != c.srcRate {
		return nil, errors.Wrapf(ErrRateChanged, "got %d, want %d", f.SampleRate, c.srcRate)
	}
	samples, err := toStereo(f)
	if err != nil {
		return nil, err
	}
	if c.Bypass() {
		return toS16(samples), nil
	}

	c.queue.push(samples)
	c.fed += int64(len(samples))

	ready := int64(float64(c.fed-holdBack)/c.ratio) - c.produced
	if ready <= 0 {
		return nil, nil
	}
	return c.pull(ready), nil
}

// Flush drains the held-back input at end of stream.
// The converter is reset afterwards.
func (c *Converter) Flush() []byte {
	if c.Bypass() {
		return nil
	}
	c.queue.close()
	var out []byte
	for {
		n, ok := c.resampler.Stream(c.buf)
		if n > 0 {
			out = append(out, toS16(c.buf[:n])...)
			c.produced += int64(n)
		}
		if !ok || n == 0 {
			break
		}
	}
	c.Reset()
	return out
}

// Reset drops all buffered state, used after a seek.
func (c *Converter) Reset() {
	c.fed, c.produced = 0, 0
	if c.Bypass() {
		return
	}
	if c.queue != nil && (c.queue.buffered() > 0 || c.queue.underrun > 0) {
		zlog.Debug().Msgf("resample: reset: dropped=%d underruns=%d", c.queue.buffered(), c.queue.underrun)
	}
	c.queue = &queue{}
	c.resampler = beep.Resample(c.quality, beep.SampleRate(c.srcRate), beep.SampleRate(c.out.SampleRate), c.queue)
}

func (c *Converter) pull(want int64) []byte {
	out := make([]byte, 0, want*4)
	for want > 0 {
		chunk := c.buf
		if int64(len(chunk)) > want {
			chunk = chunk[:want]
		}
		n, _ := c.resampler.Stream(chunk)
		if n == 0 {
			break
		}
		out = append(out, toS16(chunk[:n])...)
		c.produced += int64(n)
		want -= int64(n)
	}
	return out
}
