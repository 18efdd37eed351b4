//go:build !cgo

package output

import "github.com/osa030/lightmusic/internal/domain/audio"

// Device backends need cgo for the native sound libraries.
// Without it only the null backend works.
func init() {
	unavailable := backend{
		open: func(string, audio.Format) (Sink, error) {
			return nil, ErrUnavailable
		},
		devices: func() ([]Device, error) {
			return nil, ErrUnavailable
		},
	}
	register(BackendPortAudio, unavailable)
	register(BackendSpeaker, unavailable)
}
