package output

import "encoding/binary"

// appendS16 appends little-endian S16 bytes to dst as int16 samples.
// A trailing odd byte is ignored.
func appendS16(dst []int16, data []byte) []int16 {
	for i := 0; i+1 < len(data); i += 2 {
		dst = append(dst, int16(binary.LittleEndian.Uint16(data[i:])))
	}
	return dst
}

// s16ToStereo converts interleaved S16LE stereo to float pairs.
func s16ToStereo(data []byte) [][2]float64 {
	out := make([][2]float64, len(data)/4)
	for i := range out {
		l := int16(binary.LittleEndian.Uint16(data[i*4:]))
		r := int16(binary.LittleEndian.Uint16(data[i*4+2:]))
		out[i] = [2]float64{float64(l) / 32768, float64(r) / 32768}
	}
	return out
}
