package filter

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/domain/track"
)

// MaxTracksConfig represents the configuration for MaxTracksFilter.
type MaxTracksConfig struct {
	MaxTracks       int     `mapstructure:"max_tracks" validate:"gte=0"`
	MaxTotalMinutes float64 `mapstructure:"max_total_minutes" validate:"gte=0"`
}

// MaxTracksFilter checks that the playlist still has room for another track.
type MaxTracksFilter struct {
	config           *MaxTracksConfig
	getCount         func() int
	getTotalDuration func() time.Duration
}

// NewMaxTracksFilter creates a new MaxTracksFilter.
func NewMaxTracksFilter(getCount func() int, getTotalDuration func() time.Duration) *MaxTracksFilter {
	return &MaxTracksFilter{
		getCount:         getCount,
		getTotalDuration: getTotalDuration,
	}
}

func (f *MaxTracksFilter) Name() string {
	return "max_tracks_filter"
}

func (f *MaxTracksFilter) Description() string {
	return "Checks that the playlist has not reached its track count or total duration limit"
}

func (f *MaxTracksFilter) ReturnCodes() []string {
	return []string{"playlist_full", "time_limit_exceeded"}
}

func (f *MaxTracksFilter) ValidateConfig(settings map[string]any) error {
	var config MaxTracksConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	f.config = &config
	zlog.Info().Msgf("filter: max tracks filter config: %+v", config)
	return nil
}

func (f *MaxTracksFilter) AppliesTo(origin track.Origin) bool {
	// Tracks the user asked for are always admitted
	return origin != track.OriginUser
}

func (f *MaxTracksFilter) Check(ctx context.Context, t track.Track) Result {
	if f.config == nil {
		return Accept()
	}

	if f.config.MaxTracks > 0 && f.getCount() >= f.config.MaxTracks {
		return Reject("playlist_full")
	}

	// A track of unknown length still fits while the total is below the limit
	if f.config.MaxTotalMinutes > 0 {
		limit := time.Duration(f.config.MaxTotalMinutes * float64(time.Minute))
		total := f.getTotalDuration()
		if total >= limit || total+t.Duration > limit {
			return Reject("time_limit_exceeded")
		}
	}

	return Accept()
}

func init() {
	Register("max_tracks_filter", func() Filter {
		return NewMaxTracksFilter(func() int { return 0 }, func() time.Duration { return 0 })
	})
}
