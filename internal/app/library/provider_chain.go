package library

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/domain/track"
)

// ErrNoCandidates is returned when every provider failed.
var ErrNoCandidates = errors.New("all providers failed to return candidates")

// CandidateWithSource represents a track candidate with its source provider info.
type CandidateWithSource struct {
	Track       track.Track
	DisplayName string
}

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// ProviderChain asks every provider in order and concatenates the results.
type ProviderChain struct {
	providers []ProviderWithMetadata
}

// NewProviderChain creates a new provider chain.
func NewProviderChain(providers []ProviderWithMetadata) *ProviderChain {
	return &ProviderChain{
		providers: providers,
	}
}

// Len returns the number of providers.
func (c *ProviderChain) Len() int {
	return len(c.providers)
}

// GetCandidates retrieves candidates from all providers.
// A path returned by an earlier provider is not returned again.
// A failing provider is skipped; the chain fails only when all of them do.
func (c *ProviderChain) GetCandidates(ctx context.Context) ([]CandidateWithSource, error) {
	var allCandidates []CandidateWithSource
	seen := make(map[string]bool)
	failed := 0

	for i, pm := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "provider chain interrupted")
		}
		zlog.Debug().Msgf("library: trying provider: index=%d total=%d name=%s provider_type=%s",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name())

		candidates, err := pm.Provider.GetCandidates(ctx, seen)
		if err != nil {
			failed++
			zlog.Warn().Msgf("library: provider failed, trying next: provider=%s error=%v", pm.DisplayName, err)
			continue
		}

		if len(candidates) == 0 {
			zlog.Debug().Msgf("library: provider returned no candidates: provider=%s", pm.DisplayName)
			continue
		}

		added := 0
		for _, t := range candidates {
			if seen[t.Path] {
				continue
			}
			allCandidates = append(allCandidates, CandidateWithSource{
				Track:       t,
				DisplayName: pm.DisplayName,
			})
			seen[t.Path] = true
			added++
		}

		zlog.Info().Msgf("library: provider returned candidates: provider=%s count=%d total_so_far=%d",
			pm.DisplayName, added, len(allCandidates))
	}

	if len(c.providers) > 0 && failed == len(c.providers) {
		return nil, ErrNoCandidates
	}

	return allCandidates, nil
}

// Name returns the chain name.
func (c *ProviderChain) Name() string {
	return "provider_chain"
}
