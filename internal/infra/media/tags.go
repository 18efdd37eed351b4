package media

import (
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

// Tag keys reported in ContainerInfo.Tags.
const (
	TagTitle       = "title"
	TagArtist      = "artist"
	TagAlbum       = "album"
	TagAlbumArtist = "album_artist"
	TagComposer    = "composer"
	TagGenre       = "genre"
	TagDate        = "date"
	TagTrack       = "track"
	TagDisc        = "disc"
	TagComment     = "comment"
)

// readTags reads ID3, MP4, FLAC and Vorbis comment metadata.
// Files without tags yield nil.
func readTags(r io.ReadSeeker) []audio.Tag {
	m, err := tag.ReadFrom(r)
	if err != nil {
		if !errors.Is(err, tag.ErrNoTagsFound) {
			zlog.Debug().Err(err).Msg("media: failed to read tags")
		}
		return nil
	}

	var tags []audio.Tag
	add := func(key, value string) {
		if value != "" {
			tags = append(tags, audio.Tag{Key: key, Value: value})
		}
	}
	add(TagTitle, m.Title())
	add(TagArtist, m.Artist())
	add(TagAlbum, m.Album())
	add(TagAlbumArtist, m.AlbumArtist())
	add(TagComposer, m.Composer())
	add(TagGenre, m.Genre())
	if year := m.Year(); year > 0 {
		add(TagDate, strconv.Itoa(year))
	}
	add(TagTrack, formatPosition(m.Track()))
	add(TagDisc, formatPosition(m.Disc()))
	add(TagComment, m.Comment())
	return tags
}

func formatPosition(n, total int) string {
	switch {
	case n <= 0:
		return ""
	case total > 0:
		return strconv.Itoa(n) + "/" + strconv.Itoa(total)
	default:
		return strconv.Itoa(n)
	}
}
