package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"carelink/internal/composer"
	"carelink/internal/httpapi"
	"carelink/internal/registry"
)

// manifest declares each service's namespaces up front so composition
// conflicts surface in CI rather than at gateway startup.
type manifest struct {
	Services map[string]manifestEntry `yaml:"services"`
}

type manifestEntry struct {
	Address    string   `yaml:"address"`
	Namespaces []string `yaml:"namespaces"`
}

func loadManifest(path string) (manifest, error) {
	var m manifest
	raw, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// healthy treats every declared service as if it had answered its probe.
func (m manifest) healthy() ([]registry.Healthy, error) {
	addrs := make(map[string]string, len(m.Services))
	for name, e := range m.Services {
		addrs[name] = e.Address
	}
	services, err := registry.FromMap(addrs)
	if err != nil {
		return nil, err
	}
	out := make([]registry.Healthy, 0, len(services))
	for _, svc := range services {
		out = append(out, registry.Healthy{
			Service:    svc,
			Descriptor: httpapi.ServiceDescriptor{Name: svc.Name, Namespaces: m.Services[svc.Name].Namespaces},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func composeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compose <manifest.yaml>",
		Short: "Check a namespace manifest for composition conflicts without contacting any service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(args[0])
			if err != nil {
				return err
			}
			healthy, err := m.healthy()
			if err != nil {
				return err
			}
			table, err := composer.Compose(healthy)
			if err != nil {
				return err
			}
			printRoutes(cmd.OutOrStdout(), table.Routes())
			return nil
		},
	}
}
