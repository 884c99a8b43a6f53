package config

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultConfigYAML string

// LoadDefault loads the default embedded configuration. These are the
// documented defaults the service fails toward before any file load succeeds:
// paywall enabled, three free articles, a thirty-day window, no bypasses.
func LoadDefault() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
