package library

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/infra/config"
)

// ErrNoProviders is returned when neither arguments nor configured providers exist.
var ErrNoProviders = errors.New("no track providers configured")

// NewProviderChainFromConfig creates a provider chain from configuration.
// Command-line paths, when given, come first.
func NewProviderChainFromConfig(cfg *config.Config, args []string) (*ProviderChain, error) {
	var providers []ProviderWithMetadata

	if len(args) > 0 {
		providers = append(providers, ProviderWithMetadata{
			Provider:    NewPathsProviderFromArgs(args),
			DisplayName: "command line",
		})
	}

	for i, pcfg := range cfg.Library.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("library: creating provider: index=%d type=%s settings=%+v", i+1, pcfg.Type, pcfg.Settings)
		switch pcfg.Type {
		case "paths":
			provider, err = NewPathsProvider(pcfg.Settings)

		case "directory":
			provider, err = NewDirectoryProvider(pcfg.Settings)

		case "m3u":
			provider, err = NewM3UProvider(pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		name := pcfg.DisplayName
		if name == "" {
			name = pcfg.Type
		}
		providers = append(providers, ProviderWithMetadata{
			Provider:    provider,
			DisplayName: name,
		})

		zlog.Info().Msgf("library: registered provider: index=%d type=%s display_name=%s", i+1, pcfg.Type, name)
	}

	if len(providers) == 0 {
		return nil, ErrNoProviders
	}

	return NewProviderChain(providers), nil
}
