package library

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/lightmusic/internal/domain/track"
	"github.com/osa030/lightmusic/internal/infra/media"
)

// DirectoryProviderConfig represents the settings of a directory provider.
type DirectoryProviderConfig struct {
	Path       string   `mapstructure:"path" validate:"required"`
	Recursive  *bool    `mapstructure:"recursive" default:"true"`
	Extensions []string `mapstructure:"extensions"`
}

// DirectoryProvider finds playable files under a directory.
type DirectoryProvider struct {
	config *DirectoryProviderConfig
}

// NewDirectoryProvider creates a new DirectoryProvider.
func NewDirectoryProvider(settings map[string]any) (*DirectoryProvider, error) {
	var config DirectoryProviderConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("library: directory provider config: %+v", config)
	return &DirectoryProvider{config: &config}, nil
}

// Name returns the provider type name.
func (p *DirectoryProvider) Name() string {
	return "directory"
}

// GetCandidates walks the directory in lexical order.
func (p *DirectoryProvider) GetCandidates(ctx context.Context, existingPaths map[string]bool) ([]track.Track, error) {
	paths, err := scanDirectory(ctx, p.config.Path, *p.config.Recursive, p.config.Extensions)
	if err != nil {
		return nil, err
	}
	paths = lo.Reject(paths, func(path string, _ int) bool { return existingPaths[path] })
	return lo.Map(paths, func(path string, _ int) track.Track {
		return track.New(path, track.OriginDirectory)
	}), nil
}

// scanDirectory returns the supported files under root. A non-empty
// extensions list narrows the accepted extensions further.
func scanDirectory(ctx context.Context, root string, recursive bool, extensions []string) ([]string, error) {
	allowed := lo.Map(extensions, func(e string, _ int) string {
		return strings.TrimPrefix(strings.ToLower(e), ".")
	})

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			zlog.Warn().Err(err).Msgf("library: skipping unreadable entry: path=%s", path)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !media.IsSupported(path) {
			return nil
		}
		if len(allowed) > 0 {
			ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
			if !lo.Contains(allowed, ext) {
				return nil
			}
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan %s", root)
	}
	return paths, nil
}
