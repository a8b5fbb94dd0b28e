package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"carelink/internal/config"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	config.Common `yaml:",inline"`

	NurseServiceURL string `yaml:"nurseServiceURL"`
	// TriageThreshold is the share of a rule's checks that must match
	// before a condition is suggested. Zero means 0.5.
	TriageThreshold float64 `yaml:"triageThreshold"`
}

// Load reads config from path (defaults to CONFIG_PATH or config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if err := config.Read(path, &cfg); err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	if v := os.Getenv("NURSE_SERVICE_URL"); v != "" {
		cfg.NurseServiceURL = v
	}
	if v := os.Getenv("TRIAGE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TriageThreshold = f
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if err := cfg.Validate(true); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.NurseServiceURL) == "" {
		return errors.New("config: nurseServiceURL is required")
	}
	if cfg.TriageThreshold < 0 || cfg.TriageThreshold >= 1 {
		return errors.New("config: triageThreshold must be in [0, 1)")
	}
	return nil
}
