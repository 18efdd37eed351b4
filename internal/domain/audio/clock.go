package audio

import "fmt"

// FormatClock formats a number of seconds as HH:MM:SS.
// Negative values are shown as zero.
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
