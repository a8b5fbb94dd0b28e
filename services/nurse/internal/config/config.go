package config

import (
	"errors"
	"os"
	"strings"

	"carelink/internal/config"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	config.Common `yaml:",inline"`

	PatientServiceURL string `yaml:"patientServiceURL"`
}

// Load reads config from path (defaults to CONFIG_PATH or config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if err := config.Read(path, &cfg); err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	if v := os.Getenv("PATIENT_SERVICE_URL"); v != "" {
		cfg.PatientServiceURL = v
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
	if strings.TrimSpace(cfg.PatientServiceURL) == "" {
		return errors.New("config: patientServiceURL is required")
	}
	return nil
}
