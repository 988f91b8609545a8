package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the effective settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("Locus", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("places_base_url", config.PlacesAPI.BaseURL).
		Str("debounce", config.Search.Debounce).
		Int("history_limit", config.History.MaxEntries).
		Bool("connectivity_enabled", config.Connectivity.Enabled).
		Msg("Locus starting")
}
