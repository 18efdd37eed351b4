package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrack_DisplayName(t *testing.T) {
	tests := []struct {
		name     string
		track    Track
		expected string
	}{
		{
			name:     "no tags falls back to file name",
			track:    Track{Path: "/music/album/01 - intro.flac"},
			expected: "01 - intro.flac",
		},
		{
			name:     "title without artist",
			track:    Track{Path: "/music/a.mp3", Title: "Intro"},
			expected: "Intro",
		},
		{
			name:     "title and artists",
			track:    Track{Path: "/music/a.mp3", Title: "Intro", Artists: []string{"Band", "Guest"}},
			expected: "Band - Intro",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.track.DisplayName())
		})
	}
}

func TestTrack_Extension(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"song.MP3", "mp3"},
		{"/a/b/song.flac", "flac"},
		{"noext", ""},
		{"archive.tar.ogg", "ogg"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			trk := Track{Path: tt.path}
			assert.Equal(t, tt.expected, trk.Extension())
		})
	}
}

func TestNew(t *testing.T) {
	a := New("/music/a.mp3", OriginUser)
	b := New("/music/a.mp3", OriginUser)

	assert.Equal(t, "/music/a.mp3", a.Path)
	assert.Equal(t, OriginUser, a.Origin)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID, "each entry gets its own identity")
}

func TestTrack_MainArtist(t *testing.T) {
	trk := Track{}
	assert.Empty(t, trk.MainArtist())

	trk.Artists = []string{"First", "Second"}
	assert.Equal(t, "First", trk.MainArtist())
}
