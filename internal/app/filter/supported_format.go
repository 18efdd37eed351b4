package filter

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"

	"github.com/osa030/lightmusic/internal/domain/track"
	"github.com/osa030/lightmusic/internal/infra/media"
)

// SupportedFormatConfig represents the configuration for SupportedFormatFilter.
type SupportedFormatConfig struct {
	Extensions []string `mapstructure:"extensions"`
}

// SupportedFormatFilter checks that a track's file type can be decoded.
type SupportedFormatFilter struct {
	extensions []string // without the dot, lower case
}

// NewSupportedFormatFilter creates a filter accepting every decodable extension.
func NewSupportedFormatFilter() *SupportedFormatFilter {
	return &SupportedFormatFilter{extensions: supportedExtensions()}
}

func supportedExtensions() []string {
	return lo.Map(media.SupportedExtensions(), func(e string, _ int) string {
		return strings.TrimPrefix(e, ".")
	})
}

func (f *SupportedFormatFilter) Name() string {
	return "supported_format_filter"
}

func (f *SupportedFormatFilter) Description() string {
	return "Rejects files whose type cannot be decoded, optionally narrowed to a list of extensions"
}

func (f *SupportedFormatFilter) ReturnCodes() []string {
	return []string{"unsupported_format"}
}

func (f *SupportedFormatFilter) ValidateConfig(settings map[string]any) error {
	var config SupportedFormatConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if len(config.Extensions) == 0 {
		f.extensions = supportedExtensions()
		return nil
	}

	supported := supportedExtensions()
	wanted := lo.Map(config.Extensions, func(e string, _ int) string {
		return strings.TrimPrefix(strings.ToLower(e), ".")
	})
	if unknown := lo.Without(wanted, supported...); len(unknown) > 0 {
		return errors.Newf("unsupported extensions: %s", strings.Join(unknown, ", "))
	}
	f.extensions = lo.Uniq(wanted)
	return nil
}

func (f *SupportedFormatFilter) AppliesTo(origin track.Origin) bool {
	// Format checks apply to all tracks regardless of source
	return true
}

func (f *SupportedFormatFilter) Check(ctx context.Context, t track.Track) Result {
	if !lo.Contains(f.extensions, t.Extension()) {
		return Reject("unsupported_format")
	}
	return Accept()
}

func init() {
	Register("supported_format_filter", func() Filter {
		return NewSupportedFormatFilter()
	})
}
