package source

import (
	"fmt"

	"github.com/pauljones0/deal-aggregator/internal/config"
)

// New selects the Source implementation for cfg.SourceMode.
func New(cfg *config.Config) (Source, error) {
	switch cfg.SourceMode {
	case config.SourceModeAPI:
		return NewAPIClient(cfg)
	case config.SourceModePublic:
		return NewPublicClient(cfg, LoadConfig(cfg.SelectorsConfigPath)), nil
	case config.SourceModeMock:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown SOURCE_MODE: %s (use 'api', 'public', or 'mock')", cfg.SourceMode)
	}
}
