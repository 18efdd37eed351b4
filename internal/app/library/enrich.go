package library

import (
	"context"
	"strings"

	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/lightmusic/internal/domain/audio"
	"github.com/osa030/lightmusic/internal/domain/track"
	"github.com/osa030/lightmusic/internal/infra/media"
)

// InfoFunc reads container information without decoding.
type InfoFunc func(path string) (audio.ContainerInfo, error)

// Enricher fills track tags and durations from the files themselves.
type Enricher struct {
	readInfo InfoFunc
}

// NewEnricher creates an enricher. A nil readInfo uses media.ReadInfo.
func NewEnricher(readInfo InfoFunc) *Enricher {
	if readInfo == nil {
		readInfo = media.ReadInfo
	}
	return &Enricher{readInfo: readInfo}
}

// Enrich fills the fields the file knows and the track does not.
// It reports whether the file could be read at all.
func (e *Enricher) Enrich(t *track.Track) bool {
	info, err := e.readInfo(t.Path)
	if err != nil {
		zlog.Debug().Err(err).Msgf("library: reading info failed: path=%s", t.Path)
		return false
	}
	if t.Duration == 0 {
		t.Duration = info.Duration
	}
	if t.Title == "" {
		t.Title = info.Tag(media.TagTitle)
	}
	if len(t.Artists) == 0 {
		t.Artists = splitArtists(info.Tag(media.TagArtist))
	}
	if t.Album == "" {
		t.Album = info.Tag(media.TagAlbum)
	}
	return true
}

// EnrichAll enriches every track in place and returns how many could be read.
func (e *Enricher) EnrichAll(ctx context.Context, tracks []track.Track) int {
	enriched := 0
	for i := range tracks {
		if ctx.Err() != nil {
			break
		}
		if e.Enrich(&tracks[i]) {
			enriched++
		}
	}
	return enriched
}

// splitArtists splits "A; B" and "A/B" style multi-artist tags.
func splitArtists(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '/' || r == '\x00' })
	parts = lo.Map(parts, func(p string, _ int) string { return strings.TrimSpace(p) })
	return lo.Uniq(lo.Compact(parts))
}
