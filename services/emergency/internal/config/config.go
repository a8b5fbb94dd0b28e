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

	PatientServiceURL string `yaml:"patientServiceURL"`
	NurseServiceURL   string `yaml:"nurseServiceURL"`

	EventsStream string `yaml:"eventsStream"`
	EventsMaxLen int64  `yaml:"eventsMaxLen"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioRegion    string `yaml:"minioRegion"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
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
	if v := os.Getenv("NURSE_SERVICE_URL"); v != "" {
		cfg.NurseServiceURL = v
	}
	if v := os.Getenv("EVENTS_STREAM"); v != "" {
		cfg.EventsStream = v
	}
	if v := os.Getenv("EVENTS_MAXLEN"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.EventsMaxLen = n
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
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
	if cfg.EventsMaxLen < 0 {
		return errors.New("config: eventsMaxLen must be >= 0")
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "") {
		return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required with minioEndpoint")
	}
	return nil
}
