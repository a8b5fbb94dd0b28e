package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"carelink/internal/config"
	"carelink/internal/registry"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	config.Common     `yaml:",inline"`
	registry.Settings `yaml:",inline"`

	// ReprobeInterval enables the background re-probe loop when set.
	ReprobeInterval        string `yaml:"reprobeInterval"`
	AuthRateLimitPerMinute int    `yaml:"authRateLimitPerMinute"`
}

// Load reads config from path (defaults to CONFIG_PATH or config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if err := config.Read(path, &cfg); err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	if v := os.Getenv("GATEWAY_SERVICES"); v != "" {
		services, err := registry.ParseServices(v)
		if err != nil {
			return cfg, err
		}
		cfg.Services = services
	}
	if v := os.Getenv("GATEWAY_REPROBE_INTERVAL"); v != "" {
		cfg.ReprobeInterval = v
	}
	if v := os.Getenv("GATEWAY_AUTH_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AuthRateLimitPerMinute = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// The gateway forwards credentials untouched, so no secret is required.
func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return err
	}
	for name, raw := range map[string]string{
		"requestTimeout":  cfg.RequestTimeout,
		"reprobeInterval": cfg.ReprobeInterval,
	} {
		if _, err := config.Duration(name, raw); err != nil {
			return err
		}
	}
	if cfg.AuthRateLimitPerMinute < 0 {
		return errors.New("config: authRateLimitPerMinute must be >= 0")
	}
	return nil
}

// AuthLimit returns the per-minute budget for /api/auth, defaulting to 20.
func (c FileConfig) AuthLimit() int {
	if c.AuthRateLimitPerMinute == 0 {
		return 20
	}
	return c.AuthRateLimitPerMinute
}
