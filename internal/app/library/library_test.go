package library

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lightmusic/internal/domain/audio"
	"github.com/osa030/lightmusic/internal/domain/track"
	"github.com/osa030/lightmusic/internal/infra/config"
)

type stubProvider struct {
	tracks []track.Track
	err    error
	seen   map[string]bool
}

func (p *stubProvider) GetCandidates(ctx context.Context, existingPaths map[string]bool) ([]track.Track, error) {
	p.seen = make(map[string]bool, len(existingPaths))
	for k, v := range existingPaths {
		p.seen[k] = v
	}
	return p.tracks, p.err
}

func (p *stubProvider) Name() string { return "stub" }

func touch(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var out []string
	for _, n := range names {
		path := filepath.Join(dir, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		out = append(out, path)
	}
	return out
}

func trackPaths(tracks []track.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.Path
	}
	return out
}

func TestProviderChain_GetCandidates(t *testing.T) {
	a := track.New("/m/a.mp3", track.OriginUser)
	b := track.New("/m/b.mp3", track.OriginUser)
	aAgain := track.New("/m/a.mp3", track.OriginDirectory)

	t.Run("concatenates and removes duplicate paths", func(t *testing.T) {
		first := &stubProvider{tracks: []track.Track{a}}
		second := &stubProvider{tracks: []track.Track{aAgain, b}}
		chain := NewProviderChain([]ProviderWithMetadata{
			{Provider: first, DisplayName: "first"},
			{Provider: &stubProvider{err: errors.New("offline")}, DisplayName: "broken"},
			{Provider: second, DisplayName: "second"},
		})

		got, err := chain.GetCandidates(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, a.ID, got[0].Track.ID)
		assert.Equal(t, "first", got[0].DisplayName)
		assert.Equal(t, b.ID, got[1].Track.ID)
		assert.Equal(t, "second", got[1].DisplayName)
		assert.True(t, second.seen["/m/a.mp3"])
	})

	t.Run("all failing", func(t *testing.T) {
		chain := NewProviderChain([]ProviderWithMetadata{
			{Provider: &stubProvider{err: errors.New("x")}},
			{Provider: &stubProvider{err: errors.New("y")}},
		})
		_, err := chain.GetCandidates(context.Background())
		assert.ErrorIs(t, err, ErrNoCandidates)
	})

	t.Run("empty is not an error", func(t *testing.T) {
		chain := NewProviderChain([]ProviderWithMetadata{{Provider: &stubProvider{}}})
		got, err := chain.GetCandidates(context.Background())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		chain := NewProviderChain([]ProviderWithMetadata{{Provider: &stubProvider{tracks: []track.Track{a}}}})
		_, err := chain.GetCandidates(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDirectoryProvider(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.flac", "a.mp3", "notes.txt", "sub/c.ogg", ".hidden/d.mp3", "sub/deeper/e.wav")

	tests := []struct {
		name     string
		settings map[string]any
		want     []string
	}{
		{
			name:     "recursive by default",
			settings: map[string]any{"path": dir},
			want:     []string{"a.mp3", "b.flac", "sub/c.ogg", "sub/deeper/e.wav"},
		},
		{
			name:     "top level only",
			settings: map[string]any{"path": dir, "recursive": false},
			want:     []string{"a.mp3", "b.flac"},
		},
		{
			name:     "extension subset",
			settings: map[string]any{"path": dir, "extensions": []any{".MP3", "ogg"}},
			want:     []string{"a.mp3", "sub/c.ogg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewDirectoryProvider(tt.settings)
			require.NoError(t, err)

			got, err := p.GetCandidates(context.Background(), nil)
			require.NoError(t, err)

			var rel []string
			for _, tr := range got {
				r, err := filepath.Rel(dir, tr.Path)
				require.NoError(t, err)
				rel = append(rel, filepath.ToSlash(r))
				assert.Equal(t, track.OriginDirectory, tr.Origin)
			}
			assert.Equal(t, tt.want, rel)
		})
	}

	t.Run("skips existing", func(t *testing.T) {
		p, err := NewDirectoryProvider(map[string]any{"path": dir, "recursive": "false"})
		require.NoError(t, err)
		got, err := p.GetCandidates(context.Background(), map[string]bool{filepath.Join(dir, "a.mp3"): true})
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "b.flac")}, trackPaths(got))
	})

	t.Run("missing path setting", func(t *testing.T) {
		_, err := NewDirectoryProvider(map[string]any{})
		assert.Error(t, err)
	})

	t.Run("missing directory", func(t *testing.T) {
		p, err := NewDirectoryProvider(map[string]any{"path": filepath.Join(dir, "nope")})
		require.NoError(t, err)
		_, err = p.GetCandidates(context.Background(), nil)
		assert.Error(t, err)
	})
}

func TestPathsProvider(t *testing.T) {
	dir := t.TempDir()
	files := touch(t, dir, "one.mp3", "album/two.flac", "album/three.wav")

	p, err := NewPathsProvider(map[string]any{
		"paths": []any{files[0], filepath.Join(dir, "album"), filepath.Join(dir, "missing.mp3")},
	})
	require.NoError(t, err)

	got, err := p.GetCandidates(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{files[0], files[2], files[1]}, trackPaths(got))
	assert.Equal(t, track.OriginUser, got[0].Origin)
	assert.Equal(t, track.OriginDirectory, got[1].Origin)

	t.Run("all missing", func(t *testing.T) {
		p := NewPathsProviderFromArgs([]string{filepath.Join(dir, "x.mp3")})
		_, err := p.GetCandidates(context.Background(), nil)
		assert.Error(t, err)
	})

	t.Run("empty settings", func(t *testing.T) {
		_, err := NewPathsProvider(map[string]any{"paths": []any{}})
		assert.Error(t, err)
	})
}

func TestParseM3U(t *testing.T) {
	base := filepath.FromSlash("/music/lists")
	input := "\ufeff#EXTM3U\n" +
		"#EXTINF:215,Artist Name - Song Title\n" +
		"../albums/song.mp3\n" +
		"\n" +
		"# a comment\n" +
		"/abs/other.flac\n" +
		"#EXTINF:-1,Radio\n" +
		"http://example.com/stream\n" +
		"file:///abs/third.ogg\n" +
		"#EXTINF:12.5 tvg-id=\"x\",Plain\n" +
		"plain.wav\n"

	got, err := parseM3U(strings.NewReader(input), base)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, filepath.FromSlash("/music/albums/song.mp3"), got[0].Path)
	assert.Equal(t, "Artist Name", got[0].Artist)
	assert.Equal(t, "Song Title", got[0].Title)
	assert.Equal(t, 215*time.Second, got[0].Duration)

	assert.Equal(t, filepath.FromSlash("/abs/other.flac"), got[1].Path)
	assert.Empty(t, got[1].Title)

	assert.Equal(t, filepath.FromSlash("/abs/third.ogg"), got[2].Path)
	assert.Empty(t, got[2].Title, "metadata of a skipped entry must not leak")

	assert.Equal(t, filepath.FromSlash("/music/lists/plain.wav"), got[3].Path)
	assert.Equal(t, "Plain", got[3].Title)
	assert.Equal(t, 12500*time.Millisecond, got[3].Duration)
}

func TestM3UProvider(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "mix.m3u8")
	require.NoError(t, os.WriteFile(list, []byte("#EXTM3U\n#EXTINF:60,Band - Tune\na.mp3\nb.mp3\n"), 0o644))

	p, err := NewM3UProvider(map[string]any{"path": list})
	require.NoError(t, err)

	got, err := p.GetCandidates(context.Background(), map[string]bool{filepath.Join(dir, "b.mp3"): true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, filepath.Join(dir, "a.mp3"), got[0].Path)
	assert.Equal(t, "Tune", got[0].Title)
	assert.Equal(t, []string{"Band"}, got[0].Artists)
	assert.Equal(t, time.Minute, got[0].Duration)
	assert.Equal(t, track.OriginPlaylistFile, got[0].Origin)

	t.Run("missing file", func(t *testing.T) {
		p, err := NewM3UProvider(map[string]any{"path": filepath.Join(dir, "none.m3u")})
		require.NoError(t, err)
		_, err = p.GetCandidates(context.Background(), nil)
		assert.Error(t, err)
	})
}

func TestNewProviderChainFromConfig(t *testing.T) {
	t.Run("arguments and providers", func(t *testing.T) {
		cfg := config.Default()
		cfg.Library.Providers = []config.ProviderConfig{
			{Type: "directory", DisplayName: "Music", Settings: map[string]any{"path": "/music"}},
			{Type: "m3u", Settings: map[string]any{"path": "/lists/a.m3u"}},
		}
		chain, err := NewProviderChainFromConfig(cfg, []string{"/tmp/x.mp3"})
		require.NoError(t, err)
		assert.Equal(t, 3, chain.Len())
		assert.Equal(t, "command line", chain.providers[0].DisplayName)
		assert.Equal(t, "Music", chain.providers[1].DisplayName)
		assert.Equal(t, "m3u", chain.providers[2].DisplayName)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := NewProviderChainFromConfig(config.Default(), nil)
		assert.ErrorIs(t, err, ErrNoProviders)
	})

	t.Run("unknown type", func(t *testing.T) {
		cfg := config.Default()
		cfg.Library.Providers = []config.ProviderConfig{{Type: "spotify", Settings: map[string]any{}}}
		_, err := NewProviderChainFromConfig(cfg, nil)
		assert.Error(t, err)
	})

	t.Run("bad settings", func(t *testing.T) {
		cfg := config.Default()
		cfg.Library.Providers = []config.ProviderConfig{{Type: "directory", Settings: map[string]any{}}}
		_, err := NewProviderChainFromConfig(cfg, nil)
		assert.Error(t, err)
	})
}

func TestEnricher(t *testing.T) {
	readInfo := func(path string) (audio.ContainerInfo, error) {
		if strings.HasSuffix(path, "bad.mp3") {
			return audio.ContainerInfo{}, errors.New("not audio")
		}
		return audio.ContainerInfo{
			Duration: 3 * time.Minute,
			Tags: []audio.Tag{
				{Key: "title", Value: "Tagged"},
				{Key: "artist", Value: "A; B/A"},
				{Key: "album", Value: "LP"},
			},
		}, nil
	}
	e := NewEnricher(readInfo)

	tagged := track.New("/m/tagged.mp3", track.OriginPlaylistFile)
	tagged.Title = "From M3U"
	tracks := []track.Track{
		track.New("/m/plain.mp3", track.OriginDirectory),
		tagged,
		track.New("/m/bad.mp3", track.OriginDirectory),
	}

	n := e.EnrichAll(context.Background(), tracks)
	assert.Equal(t, 2, n)

	assert.Equal(t, "Tagged", tracks[0].Title)
	assert.Equal(t, []string{"A", "B"}, tracks[0].Artists)
	assert.Equal(t, "LP", tracks[0].Album)
	assert.Equal(t, 3*time.Minute, tracks[0].Duration)

	assert.Equal(t, "From M3U", tracks[1].Title)

	assert.Empty(t, tracks[2].Title)
	assert.Zero(t, tracks[2].Duration)
}
