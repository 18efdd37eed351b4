package media

import (
	"encoding/binary"
	"math"
)

// putStereoF64 serializes beep-style stereo samples as interleaved float64 LE.
func putStereoF64(samples [][2]float64) []byte {
	out := make([]byte, len(samples)*16)
	for i, s := range samples {
		binary.LittleEndian.PutUint64(out[i*16:], math.Float64bits(s[0]))
		binary.LittleEndian.PutUint64(out[i*16+8:], math.Float64bits(s[1]))
	}
	return out
}

// putF32 serializes interleaved float32 samples as LE bytes.
func putF32(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// putPlanarInt interleaves per-channel integer samples.
// Depths up to 16 bits are stored as s16, deeper ones as s32.
func putPlanarInt(channels [][]int32, bitDepth int) []byte {
	if len(channels) == 0 {
		return nil
	}
	n := len(channels[0])
	ch := len(channels)
	if bitDepth <= 16 {
		out := make([]byte, n*ch*2)
		for i := 0; i < n; i++ {
			for c := 0; c < ch; c++ {
				binary.LittleEndian.PutUint16(out[(i*ch+c)*2:], uint16(int16(channels[c][i])))
			}
		}
		return out
	}
	out := make([]byte, n*ch*4)
	for i := 0; i < n; i++ {
		for c := 0; c < ch; c++ {
			binary.LittleEndian.PutUint32(out[(i*ch+c)*4:], uint32(channels[c][i]))
		}
	}
	return out
}
