package registry

import (
	"errors"
	"fmt"
	"strings"

	"carelink/internal/config"
)

// Settings is the YAML block describing the registry and probe budget.
type Settings struct {
	Services        map[string]string `yaml:"services"`
	ProbeAttempts   int               `yaml:"probeAttempts"`
	ProbeTimeout    string            `yaml:"probeTimeout"`
	ProbeDelay      string            `yaml:"probeDelay"`
	ProbeMultiplier float64           `yaml:"probeMultiplier"`
}

// ParseServices reads "name=url,name=url" as used by GATEWAY_SERVICES.
func ParseServices(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range config.SplitList(raw) {
		name, addr, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("registry: %q is not name=url", part)
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(addr)
	}
	return out, nil
}

// Validate checks the block without probing anything.
func (s Settings) Validate() error {
	if _, err := FromMap(s.Services); err != nil {
		return err
	}
	if s.ProbeAttempts < 0 {
		return errors.New("config: probeAttempts must be >= 0")
	}
	if s.ProbeMultiplier < 0 {
		return errors.New("config: probeMultiplier must be >= 0")
	}
	for name, raw := range map[string]string{"probeTimeout": s.ProbeTimeout, "probeDelay": s.ProbeDelay} {
		if _, err := config.Duration(name, raw); err != nil {
			return err
		}
	}
	return nil
}

// Options converts the block into prober options. Zero values keep the
// prober defaults.
func (s Settings) Options() Options {
	return Options{
		Attempts:   s.ProbeAttempts,
		Timeout:    config.MustDuration(s.ProbeTimeout),
		Delay:      config.MustDuration(s.ProbeDelay),
		Multiplier: s.ProbeMultiplier,
	}
}
