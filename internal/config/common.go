// Package config holds the settings every service shares and the YAML plus
// environment loading they all follow. Each service embeds Common inline in
// its own FileConfig.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"carelink/internal/servicetoken"
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "config.yaml"

// Path returns the config file location.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("CONFIG_PATH")); v != "" {
		return v
	}
	return DefaultPath
}

// Common is the block shared by all services.
type Common struct {
	Port                        string   `yaml:"port"`
	LogLevel                    string   `yaml:"logLevel"`
	LogFormat                   string   `yaml:"logFormat"`
	DatabaseURL                 string   `yaml:"databaseURL"`
	RedisAddr                   string   `yaml:"redisAddr"`
	RedisPassword               string   `yaml:"redisPassword"`
	JWTSecret                   string   `yaml:"jwtSecret"`
	JWTIssuer                   string   `yaml:"jwtIssuer"`
	JWTAudience                 string   `yaml:"jwtAudience"`
	JWTLeeway                   string   `yaml:"jwtLeeway"`
	InternalJWTKeyID            string   `yaml:"internalJwtKeyId"`
	InternalJWTPrivateKeyPath   string   `yaml:"internalJwtPrivateKeyPath"`
	InternalJWTPublicKeyPath    string   `yaml:"internalJwtPublicKeyPath"`
	InternalJWTVerifyPublicKeys string   `yaml:"internalJwtVerifyPublicKeys"`
	RequestTimeout              string   `yaml:"requestTimeout"`
	CORSOrigins                 []string `yaml:"corsOrigins"`
	TrustedProxies              []string `yaml:"trustedProxies"`
	Metrics                     bool     `yaml:"metrics"`
}

// Read parses the YAML file at path into dst.
func Read(path string, dst any) error {
	if path == "" {
		path = Path()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// ApplyEnv overrides the shared fields from the environment.
func (c *Common) ApplyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		c.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		c.JWTAudience = v
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		c.JWTLeeway = v
	}
	if v := os.Getenv("INTERNAL_JWT_KEY_ID"); v != "" {
		c.InternalJWTKeyID = v
	}
	if v := os.Getenv("INTERNAL_JWT_PRIVATE_KEY_PATH"); v != "" {
		c.InternalJWTPrivateKeyPath = v
	}
	if v := os.Getenv("INTERNAL_JWT_PUBLIC_KEY_PATH"); v != "" {
		c.InternalJWTPublicKeyPath = v
	}
	if v := os.Getenv("INTERNAL_JWT_VERIFY_PUBLIC_KEYS"); v != "" {
		c.InternalJWTVerifyPublicKeys = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		c.RequestTimeout = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = SplitList(v)
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		c.TrustedProxies = SplitList(v)
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		c.Metrics = v == "true" || v == "1"
	}
}

// Validate checks the shared fields. Services that verify user tokens need
// jwtSecret; services that talk to each other need the internal RSA keys.
func (c Common) Validate(needInternal bool) error {
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("config: port is required")
	}
	if len(strings.TrimSpace(c.JWTSecret)) < 16 {
		return errors.New("config: jwtSecret must be at least 16 characters (set JWT_SECRET)")
	}
	if needInternal {
		if strings.TrimSpace(c.InternalJWTPrivateKeyPath) == "" {
			return errors.New("config: internal service auth requires INTERNAL_JWT_PRIVATE_KEY_PATH")
		}
		keys, err := c.InternalVerifyKeys()
		if err != nil {
			return err
		}
		if strings.TrimSpace(c.InternalJWTPublicKeyPath) == "" && len(keys) == 0 {
			return errors.New("config: internal service auth requires INTERNAL_JWT_PUBLIC_KEY_PATH or INTERNAL_JWT_VERIFY_PUBLIC_KEYS")
		}
	}
	if _, err := Duration("requestTimeout", c.RequestTimeout); err != nil {
		return err
	}
	if _, err := Duration("jwtLeeway", c.JWTLeeway); err != nil {
		return err
	}
	return nil
}

// InternalVerifyKeys parses internalJwtVerifyPublicKeys ("kid=path,...").
func (c Common) InternalVerifyKeys() (map[string]string, error) {
	keys, err := servicetoken.ParseVerifyPublicKeys(c.InternalJWTVerifyPublicKeys)
	if err != nil {
		return nil, fmt.Errorf("config: internalJwtVerifyPublicKeys: %w", err)
	}
	return keys, nil
}

// Duration parses an optional duration string. Empty input yields 0.
func Duration(name, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s duration: must not be negative", name)
	}
	return d, nil
}

// MustDuration is Duration for values Validate already checked.
func MustDuration(raw string) time.Duration {
	d, _ := Duration("", raw)
	return d
}

// SplitList splits a comma separated env value.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
