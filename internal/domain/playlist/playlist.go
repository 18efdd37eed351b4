// Package playlist provides the Playlist domain entity.
package playlist

import (
	"math/rand/v2"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/osa030/lightmusic/internal/domain/track"
)

// ErrIndexOutOfRange is returned when an index does not name an entry.
var ErrIndexOutOfRange = errors.New("playlist index out of range")

// Playlist is an ordered list of tracks.
// Every structural mutation bumps a monotonically increasing version
// so observers can detect changes by comparing against their last-seen value.
type Playlist struct {
	tracks  []track.Track
	version uint64
}

// New creates a playlist holding the given tracks.
func New(tracks ...track.Track) *Playlist {
	p := &Playlist{}
	p.tracks = append(p.tracks, tracks...)
	return p
}

// Len returns the number of entries.
func (p *Playlist) Len() int {
	return len(p.tracks)
}

// At returns the entry at index i.
func (p *Playlist) At(i int) (track.Track, error) {
	if i < 0 || i >= len(p.tracks) {
		return track.Track{}, errors.Wrapf(ErrIndexOutOfRange, "index %d, length %d", i, len(p.tracks))
	}
	return p.tracks[i], nil
}

// Tracks returns a copy of all entries.
func (p *Playlist) Tracks() []track.Track {
	out := make([]track.Track, len(p.tracks))
	copy(out, p.tracks)
	return out
}

// Version returns the current structural version.
func (p *Playlist) Version() uint64 {
	return p.version
}

// Add appends tracks. Adding nothing is not a mutation.
func (p *Playlist) Add(tracks ...track.Track) {
	if len(tracks) == 0 {
		return
	}
	p.tracks = append(p.tracks, tracks...)
	p.version++
}

// RemoveAt removes and returns the entry at index i.
func (p *Playlist) RemoveAt(i int) (track.Track, error) {
	t, err := p.At(i)
	if err != nil {
		return track.Track{}, err
	}
	p.tracks = append(p.tracks[:i], p.tracks[i+1:]...)
	p.version++
	return t, nil
}

// Clear removes every entry.
func (p *Playlist) Clear() {
	if len(p.tracks) == 0 {
		return
	}
	p.tracks = nil
	p.version++
}

// Shuffle permutes the entries uniformly and always counts as a mutation.
func (p *Playlist) Shuffle(r *rand.Rand) {
	r.Shuffle(len(p.tracks), func(i, j int) {
		p.tracks[i], p.tracks[j] = p.tracks[j], p.tracks[i]
	})
	p.version++
}

// IndexOf returns the index of the entry with the given ID, or -1.
func (p *Playlist) IndexOf(id string) int {
	_, i, ok := lo.FindIndexOf(p.tracks, func(t track.Track) bool { return t.ID == id })
	if !ok {
		return -1
	}
	return i
}

// ContainsPath reports whether any entry points at path.
func (p *Playlist) ContainsPath(path string) bool {
	return lo.ContainsBy(p.tracks, func(t track.Track) bool { return t.Path == path })
}

// Paths returns all file paths in order.
func (p *Playlist) Paths() []string {
	return lo.Map(p.tracks, func(t track.Track, _ int) string { return t.Path })
}

// Watch returns a watcher that has seen the current version.
func (p *Playlist) Watch() *Watcher {
	return &Watcher{playlist: p, seen: p.version}
}

// Watcher tracks the last version one observer has seen.
type Watcher struct {
	playlist *Playlist
	seen     uint64
}

// Changed reports whether the playlist changed since the previous call
// on this watcher, and marks the current version as seen.
func (w *Watcher) Changed() bool {
	v := w.playlist.version
	if v == w.seen {
		return false
	}
	w.seen = v
	return true
}
