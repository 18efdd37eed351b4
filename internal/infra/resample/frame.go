package resample

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

// toStereo converts an interleaved frame to beep's stereo float layout.
// Mono is duplicated, extra channels beyond the first two are dropped.
func toStereo(f audio.Frame) ([][2]float64, error) {
	bps := f.SampleFormat.BytesPerSample()
	if bps == 0 {
		return nil, errors.Wrapf(ErrUnsupportedFrame, "sample format %s", f.SampleFormat)
	}
	if f.Channels <= 0 {
		return nil, errors.Wrapf(ErrUnsupportedFrame, "channels %d", f.Channels)
	}
	stride := bps * f.Channels
	n := f.Samples
	if n <= 0 || n*stride > len(f.Data) {
		n = len(f.Data) / stride
	}

	read := sampleReader(f)
	out := make([][2]float64, n)
	for i := 0; i < n; i++ {
		base := f.Data[i*stride:]
		left := read(base)
		right := left
		if f.Channels > 1 {
			right = read(base[bps:])
		}
		out[i] = [2]float64{left, right}
	}
	return out, nil
}

func sampleReader(f audio.Frame) func(b []byte) float64 {
	switch f.SampleFormat {
	case audio.SampleFormatS16:
		return func(b []byte) float64 {
			return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
		}
	case audio.SampleFormatS32:
		depth := f.BitDepth
		if depth <= 0 || depth > 32 {
			depth = 32
		}
		scale := float64(int64(1) << (depth - 1))
		return func(b []byte) float64 {
			return float64(int32(binary.LittleEndian.Uint32(b))) / scale
		}
	case audio.SampleFormatF32:
		return func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
	default:
		return func(b []byte) float64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
	}
}

// toS16 packs stereo samples as interleaved signed 16-bit little-endian.
func toS16(samples [][2]float64) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*4:], uint16(quantize(s[0])))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(quantize(s[1])))
	}
	return out
}

func quantize(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(math.Round(v * 32767))
}
