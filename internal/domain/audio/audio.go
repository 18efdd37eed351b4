// Package audio provides the value types shared by the decode, resample and output stages.
package audio

import (
	"fmt"
	"time"
)

// MediaType represents the kind of data carried by a container stream.
type MediaType int

const (
	MediaUnknown MediaType = iota // Stream could not be identified
	MediaAudio                    // Audio stream
	MediaVideo                    // Video stream (cover art, clips)
	MediaData                     // Any other payload (metadata, subtitles)
)

// String returns the string representation of the media type.
func (m MediaType) String() string {
	switch m {
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	case MediaData:
		return "data"
	default:
		return "unknown"
	}
}

// SampleFormat represents how one sample is stored in a frame buffer.
// All formats are interleaved little-endian.
type SampleFormat int

const (
	SampleFormatUnknown SampleFormat = iota
	SampleFormatS16                  // signed 16-bit integer
	SampleFormatS32                  // signed 32-bit integer, BitDepth tells the significant bits
	SampleFormatF32                  // 32-bit float in [-1, 1]
	SampleFormatF64                  // 64-bit float in [-1, 1]
)

// String returns the short name of the sample format.
func (f SampleFormat) String() string {
	switch f {
	case SampleFormatS16:
		return "s16"
	case SampleFormatS32:
		return "s32"
	case SampleFormatF32:
		return "flt"
	case SampleFormatF64:
		return "dbl"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the storage size of one sample of one channel.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatS16:
		return 2
	case SampleFormatS32, SampleFormatF32:
		return 4
	case SampleFormatF64:
		return 8
	default:
		return 0
	}
}

// Format describes a PCM layout negotiated with an output device.
type Format struct {
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat
}

// Canonical returns the fixed output layout (S16LE stereo) at the given rate.
func Canonical(sampleRate int) Format {
	return Format{
		SampleRate:   sampleRate,
		Channels:     2,
		SampleFormat: SampleFormatS16,
	}
}

// FrameSize returns the byte size of one sample across all channels.
func (f Format) FrameSize() int {
	return f.Channels * f.SampleFormat.BytesPerSample()
}

// String returns a compact description such as "44100 Hz, 2 ch, s16".
func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %s", f.SampleRate, f.Channels, f.SampleFormat)
}

// StreamInfo describes one stream of an opened container.
type StreamInfo struct {
	Index        int
	Type         MediaType
	Codec        string // short codec name, e.g. "mp3"
	CodecLong    string // descriptive codec name
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat
	BitDepth     int
	BitRate      int // bits per second, 0 if unknown
	Duration     time.Duration
}

// Tag is one metadata entry. Tags keep the order they were read in.
type Tag struct {
	Key   string
	Value string
}

// ContainerInfo describes an opened media file.
type ContainerInfo struct {
	Path       string
	Format     string // short container name, e.g. "ogg"
	FormatLong string
	Duration   time.Duration
	BitRate    int
	Tags       []Tag
	Streams    []StreamInfo
}

// Tag returns the value of the first tag with the given key.
func (c ContainerInfo) Tag(key string) string {
	for _, t := range c.Tags {
		if t.Key == key {
			return t.Value
		}
	}
	return ""
}

// Packet is one unit read from a container.
// Timestamp is the presentation time of the unit within its stream.
type Packet struct {
	Stream    int
	Data      []byte
	Timestamp time.Duration
}

// Frame is a block of decoded samples in the source's native layout.
type Frame struct {
	SampleFormat SampleFormat
	SampleRate   int
	Channels     int
	BitDepth     int
	Samples      int // samples per channel
	Data         []byte
}

// Empty reports whether the frame carries no samples.
func (f Frame) Empty() bool {
	return f.Samples == 0 || len(f.Data) == 0
}
