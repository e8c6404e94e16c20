package goSession

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// LoadConfigFromEnv overlays GOSESSION_* environment variables onto DefaultConfig.
// Unset variables keep their default. The result is validated.
func LoadConfigFromEnv() (Config, error) {
	return LoadConfigFromEnvWith(DefaultConfig())
}

// LoadConfigFromEnvWith overlays GOSESSION_* environment variables onto base.
func LoadConfigFromEnvWith(base Config) (Config, error) {
	cfg := cloneConfig(base)
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
