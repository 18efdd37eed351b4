package library

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/domain/track"
)

// PathsProviderConfig represents the settings of a paths provider.
type PathsProviderConfig struct {
	Paths []string `mapstructure:"paths" validate:"min=1"`
}

// PathsProvider returns an explicit list of files. A directory in the list
// is expanded to the supported files under it.
type PathsProvider struct {
	config *PathsProviderConfig
}

// NewPathsProvider creates a new PathsProvider.
func NewPathsProvider(settings map[string]any) (*PathsProvider, error) {
	var config PathsProviderConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	return &PathsProvider{config: &config}, nil
}

// NewPathsProviderFromArgs creates a PathsProvider for command-line arguments.
func NewPathsProviderFromArgs(paths []string) *PathsProvider {
	return &PathsProvider{config: &PathsProviderConfig{Paths: paths}}
}

// Name returns the provider type name.
func (p *PathsProvider) Name() string {
	return "paths"
}

// GetCandidates returns one track per listed file, keeping the given order.
// Files are not checked for support here; admission filters do that.
func (p *PathsProvider) GetCandidates(ctx context.Context, existingPaths map[string]bool) ([]track.Track, error) {
	var tracks []track.Track
	missing := 0
	for _, path := range p.config.Paths {
		fi, err := os.Stat(path)
		if err != nil {
			missing++
			zlog.Warn().Msgf("library: path not found: path=%s", path)
			continue
		}
		if fi.IsDir() {
			found, err := scanDirectory(ctx, path, true, nil)
			if err != nil {
				return nil, err
			}
			for _, f := range found {
				if !existingPaths[f] {
					tracks = append(tracks, track.New(f, track.OriginDirectory))
				}
			}
			continue
		}
		if !existingPaths[path] {
			tracks = append(tracks, track.New(path, track.OriginUser))
		}
	}
	if missing > 0 && missing == len(p.config.Paths) {
		return nil, errors.Newf("none of the %d paths exist", missing)
	}
	return tracks, nil
}
