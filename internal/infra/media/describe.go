package media

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

// Reasons a stream was passed over when choosing the one to play.
const (
	SkipNotAudio      = "not an audio stream"
	SkipDecoderFailed = "failed to open decoder"
)

// DescribeContainer renders the container part of the metadata dump.
func DescribeContainer(info audio.ContainerInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", filepath.Base(info.Path))
	if len(info.Tags) > 0 {
		b.WriteString("Tags:\n")
		for _, t := range info.Tags {
			fmt.Fprintf(&b, "  %s: %s\n", t.Key, t.Value)
		}
	}
	fmt.Fprintf(&b, "Format: %s\n", info.FormatLong)
	fmt.Fprintf(&b, "Duration: %s\n", audio.FormatClock(int64(info.Duration.Seconds())))
	fmt.Fprintf(&b, "Bit rate: %s\n", bitRate(info.BitRate))
	fmt.Fprintf(&b, "Streams: %d", len(info.Streams))
	return b.String()
}

// DescribeStreams renders one block per stream. skipped maps a stream
// index to the reason it was not chosen.
func DescribeStreams(info audio.ContainerInfo, skipped map[int]string) string {
	blocks := make([]string, 0, len(info.Streams))
	for _, st := range info.Streams {
		var b strings.Builder
		fmt.Fprintf(&b, "Stream #%d (%s)\n", st.Index, st.Type)
		fmt.Fprintf(&b, "  Codec: %s (%s)\n", st.CodecLong, st.Codec)
		if st.Type == audio.MediaAudio {
			fmt.Fprintf(&b, "  Bit rate: %s\n", bitRate(st.BitRate))
			fmt.Fprintf(&b, "  Channels: %d\n", st.Channels)
			fmt.Fprintf(&b, "  Sample rate: %s\n", humanize.SIWithDigits(float64(st.SampleRate), 1, "Hz"))
			fmt.Fprintf(&b, "  Sample format: %s\n", st.SampleFormat)
		}
		if reason, ok := skipped[st.Index]; ok {
			fmt.Fprintf(&b, "  Skipped: %s\n", reason)
		}
		blocks = append(blocks, strings.TrimSuffix(b.String(), "\n"))
	}
	return strings.Join(blocks, "\n")
}

func bitRate(bps int) string {
	if bps <= 0 {
		return "N/A"
	}
	return humanize.SIWithDigits(float64(bps), 0, "b/s")
}
