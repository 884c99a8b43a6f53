package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"paywall/pkg/errors"
)

// Loader loads configuration from file
type Loader struct {
	path       string
	envEnabled bool
}

// NewLoader creates a config loader
func NewLoader(path string) *Loader {
	return &Loader{
		path:       path,
		envEnabled: true, // Enable env vars by default
	}
}

// WithEnvVars enables or disables environment variable loading
func (l *Loader) WithEnvVars(enabled bool) *Loader {
	l.envEnabled = enabled
	return l
}

// Load loads the configuration. Fields absent from the file keep the
// embedded defaults, so a partial file never zeroes out gating behavior.
func (l *Loader) Load() (*Config, error) {
	cfg, err := LoadDefault()
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeConfig, "failed to load default config").WithCause(err)
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeConfig, "failed to read config file").WithCause(err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeConfig, "failed to parse config").WithCause(err)
	}

	// Override with environment variables if enabled
	if l.envEnabled {
		if err := LoadEnv(cfg); err != nil {
			return nil, errors.NewError(errors.ErrorTypeConfig, "failed to load env vars").WithCause(err)
		}
	}

	// Validate configuration
	if err := Validate(cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeConfig, "invalid configuration").WithCause(err)
	}

	return cfg, nil
}

// Path returns the config file path
func (l *Loader) Path() string {
	return l.path
}

// Validate validates the configuration
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Admin.Enabled && (cfg.Admin.Port <= 0 || cfg.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", cfg.Admin.Port)
	}

	if err := ValidatePaywall(&cfg.Paywall); err != nil {
		return err
	}

	switch cfg.Store.Type {
	case "memory":
	case "redis":
		if cfg.Store.Redis.Address == "" {
			return fmt.Errorf("redis store requires an address")
		}
	default:
		return fmt.Errorf("unknown store type: %s", cfg.Store.Type)
	}

	return nil
}

// ValidatePaywall validates the hot-reloadable gating section. Used both on
// full loads and on admin API updates.
func ValidatePaywall(p *Paywall) error {
	if p.FreeArticleLimit < 0 {
		return fmt.Errorf("freeArticleLimit must not be negative: %d", p.FreeArticleLimit)
	}
	if p.ResetPeriodDays <= 0 {
		return fmt.Errorf("resetPeriodDays must be positive: %d", p.ResetPeriodDays)
	}
	return nil
}
