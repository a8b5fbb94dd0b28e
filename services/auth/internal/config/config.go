package config

import (
	"errors"
	"os"
	"strconv"

	"carelink/internal/config"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	config.Common `yaml:",inline"`

	TokenTTL                 string `yaml:"tokenTTL"`
	LoginRateLimitPerMinute  int    `yaml:"loginRateLimitPerMinute"`
	SignupRateLimitPerMinute int    `yaml:"signupRateLimitPerMinute"`
}

// Load reads config from path (defaults to CONFIG_PATH or config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if err := config.Read(path, &cfg); err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	if v := os.Getenv("AUTH_TOKEN_TTL"); v != "" {
		cfg.TokenTTL = v
	}
	if v := os.Getenv("AUTH_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("AUTH_SIGNUP_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SignupRateLimitPerMinute = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if err := cfg.Validate(false); err != nil {
		return err
	}
	if _, err := config.Duration("tokenTTL", cfg.TokenTTL); err != nil {
		return err
	}
	if cfg.LoginRateLimitPerMinute < 0 || cfg.SignupRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	return nil
}

// LoginLimit returns the per-minute login budget, defaulting to 10.
func (c FileConfig) LoginLimit() int {
	if c.LoginRateLimitPerMinute == 0 {
		return 10
	}
	return c.LoginRateLimitPerMinute
}

// SignupLimit returns the per-minute registration budget, defaulting to 5.
func (c FileConfig) SignupLimit() int {
	if c.SignupRateLimitPerMinute == 0 {
		return 5
	}
	return c.SignupRateLimitPerMinute
}
