package player

import "github.com/cockroachdb/errors"

// Errors. Failures returned by the player are marked with one of the
// category sentinels so errors.Is works through any wrapping.
var (
	ErrAllocation      = errors.New("pipeline allocation failed")
	ErrSource          = errors.New("media source failed")
	ErrOutput          = errors.New("audio output failed")
	ErrTransientDecode = errors.New("transient decode failure")
	ErrInvalidState    = errors.New("operation not valid in current state")

	ErrNoUsableStream = errors.Mark(errors.New("no usable audio stream"), ErrSource)
)
