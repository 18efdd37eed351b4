// Package track provides the Track domain entity.
package track

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Track represents one playlist entry backed by a local media file.
// Only Path is required. Tag fields are filled when the file could be read.
type Track struct {
	ID       string        // UUID, stable identity inside a playlist
	Path     string        // Media file path, opaque to the playlist
	Title    string        // Track title
	Artists  []string      // Artist names
	Album    string        // Album name
	Duration time.Duration // Track duration (0 if unknown)
	Origin   Origin        // Where the entry came from
}

// Origin represents how a track entered the playlist.
type Origin string

const (
	OriginUser         Origin = "USER"      // Added interactively or via command-line arguments
	OriginDirectory    Origin = "DIRECTORY" // Found by a directory scan
	OriginPlaylistFile Origin = "M3U"       // Listed in a playlist file
	OriginWatch        Origin = "WATCH"     // Appeared in a watched directory
)

// New creates a track for the given path with a fresh identity.
func New(path string, origin Origin) Track {
	return Track{
		ID:     uuid.New().String(),
		Path:   path,
		Origin: origin,
	}
}

// Extension returns the lowercase file extension without the leading dot.
func (t *Track) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(t.Path)), ".")
}

// MainArtist returns the first artist or an empty string.
func (t *Track) MainArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// DisplayName returns "Artist - Title" when tags are known,
// otherwise the file name.
func (t *Track) DisplayName() string {
	if t.Title == "" {
		return filepath.Base(t.Path)
	}
	if artist := t.MainArtist(); artist != "" {
		return artist + " - " + t.Title
	}
	return t.Title
}
