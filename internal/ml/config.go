package ml

import (
	"time"

	"github.com/vexmx/avotex/internal/config"
)

// Settings selects and configures the transports of a Chain.
type Settings struct {
	Transports  []string
	PrimaryURL  string
	FallbackURL string
	Timeout     time.Duration
	Google      GoogleConfig
}

// SettingsFromConfig maps the application configuration onto Settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Transports:  cfg.ML.Transports,
		PrimaryURL:  cfg.ML.PrimaryURL,
		FallbackURL: cfg.ML.FallbackURL,
		Timeout:     cfg.Timeout(),
		Google:      GoogleConfigFromConfig(cfg),
	}
}

// GoogleConfigFromConfig extracts the Vertex AI settings.
func GoogleConfigFromConfig(cfg *config.Config) GoogleConfig {
	return GoogleConfig{
		ProjectID:       cfg.Google.ProjectID,
		Location:        cfg.Google.Location,
		CredentialsFile: cfg.Google.CredentialsFile,
		Model:           cfg.Google.Model,
	}
}
