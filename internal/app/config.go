package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ServiceURL   string // graph service endpoint, e.g. http://localhost:8742
	PresetsPath  string // directory of .hcl preset files
	SettingsPath string // settings .hcl file
	ActivePreset string // preset to activate on startup; overrides settings

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ServiceURL == "" {
		return nil, errors.New("ServiceURL is a required configuration field and cannot be empty")
	}
	if cfg.PresetsPath == "" {
		return nil, errors.New("PresetsPath is a required configuration field and cannot be empty")
	}
	if cfg.SettingsPath == "" {
		return nil, errors.New("SettingsPath is a required configuration field and cannot be empty")
	}

	return &cfg, nil
}
