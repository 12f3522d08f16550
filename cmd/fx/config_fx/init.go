package config_fx

import (
	"os"

	"go.uber.org/fx"

	"churchhub/internal/config"
)

var Module = fx.Provide(provideConfig)

// ENV_FILE overrides the .env path; a missing file falls back to the
// process environment.
func provideConfig() (*config.Config, error) {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	return config.Load(path)
}
