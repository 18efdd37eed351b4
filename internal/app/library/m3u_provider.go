package library

import (
	"bufio"
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/domain/track"
)

// M3UProviderConfig represents the settings of an M3U provider.
type M3UProviderConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// M3UProvider reads tracks from an M3U or M3U8 playlist file.
type M3UProvider struct {
	config *M3UProviderConfig
}

// NewM3UProvider creates a new M3UProvider.
func NewM3UProvider(settings map[string]any) (*M3UProvider, error) {
	var config M3UProviderConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	return &M3UProvider{config: &config}, nil
}

// Name returns the provider type name.
func (p *M3UProvider) Name() string {
	return "m3u"
}

// GetCandidates returns the playlist entries in file order.
func (p *M3UProvider) GetCandidates(ctx context.Context, existingPaths map[string]bool) ([]track.Track, error) {
	f, err := os.Open(p.config.Path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open playlist")
	}
	defer f.Close()

	entries, err := parseM3U(f, filepath.Dir(p.config.Path))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", p.config.Path)
	}

	tracks := make([]track.Track, 0, len(entries))
	for _, e := range entries {
		if existingPaths[e.Path] {
			continue
		}
		t := track.New(e.Path, track.OriginPlaylistFile)
		t.Duration = e.Duration
		if e.Title != "" {
			t.Title = e.Title
			if e.Artist != "" {
				t.Artists = []string{e.Artist}
			}
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// m3uEntry is one playlist line plus what its #EXTINF said about it.
type m3uEntry struct {
	Path     string
	Title    string
	Artist   string
	Duration time.Duration
}

// parseM3U reads plain and extended M3U. Relative paths are resolved
// against base. Remote URLs are skipped.
func parseM3U(r io.Reader, base string) ([]m3uEntry, error) {
	var (
		entries []m3uEntry
		pending m3uEntry
	)
	sc := bufio.NewScanner(r)
	first := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXTINF:"):
			pending = parseExtInf(strings.TrimPrefix(line, "#EXTINF:"))
			continue
		case strings.HasPrefix(line, "#"):
			continue
		}

		path, ok := m3uPath(line, base)
		if !ok {
			zlog.Warn().Msgf("library: skipping remote playlist entry: %s", line)
			pending = m3uEntry{}
			continue
		}
		pending.Path = path
		entries = append(entries, pending)
		pending = m3uEntry{}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// parseExtInf parses "<seconds>[ attrs],<artist> - <title>".
func parseExtInf(s string) m3uEntry {
	var e m3uEntry
	info, name, _ := strings.Cut(s, ",")
	if fields := strings.Fields(info); len(fields) > 0 {
		if secs, err := strconv.ParseFloat(fields[0], 64); err == nil && secs > 0 {
			e.Duration = time.Duration(secs * float64(time.Second))
		}
	}
	name = strings.TrimSpace(name)
	if artist, title, ok := strings.Cut(name, " - "); ok {
		e.Artist = strings.TrimSpace(artist)
		e.Title = strings.TrimSpace(title)
	} else {
		e.Title = name
	}
	return e
}

func m3uPath(line, base string) (string, bool) {
	if strings.Contains(line, "://") {
		u, err := url.Parse(line)
		if err != nil || u.Scheme != "file" {
			return "", false
		}
		line = u.Path
	}
	line = filepath.FromSlash(line)
	if !filepath.IsAbs(line) {
		line = filepath.Join(base, line)
	}
	return filepath.Clean(line), true
}
