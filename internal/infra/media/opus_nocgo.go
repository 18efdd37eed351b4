//go:build !cgo

package media

import "github.com/cockroachdb/errors"

// newOpusCodec fails without cgo because libopus is required.
func newOpusCodec([]byte) (oggCodec, error) {
	return nil, errors.Wrap(ErrUnsupportedCodec, "opus decoding requires cgo")
}
