// Package library builds track lists from configured sources.
package library

import (
	"context"

	"github.com/osa030/lightmusic/internal/domain/track"
)

// Provider is the interface for track providers.
// Different implementations find tracks in different places
// (e.g., explicit paths, a directory tree, a playlist file).
type Provider interface {
	// GetCandidates returns the tracks the provider knows about.
	// existingPaths: paths already collected (for duplicate avoidance)
	GetCandidates(ctx context.Context, existingPaths map[string]bool) ([]track.Track, error)

	// Name returns the provider type name (used in config).
	Name() string
}
