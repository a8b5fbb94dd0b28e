package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"carelink/internal/composer"
	"carelink/internal/config"
	"carelink/internal/registry"
)

func probeCmd() *cobra.Command {
	var (
		path     string
		services string
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe every registered service and print the routing table the gateway would build",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var settings registry.Settings
			if err := config.Read(path, &settings); err != nil {
				return err
			}
			if services != "" {
				m, err := registry.ParseServices(services)
				if err != nil {
					return err
				}
				settings.Services = m
			}
			if err := settings.Validate(); err != nil {
				return err
			}
			list, err := registry.FromMap(settings.Services)
			if err != nil {
				return err
			}

			report, probeErr := registry.NewProber(settings.Options()).ProbeAll(cmd.Context(), list)
			out := cmd.OutOrStdout()
			if probeErr != nil {
				printUnhealthy(out, report.Unhealthy)
				return probeErr
			}
			table, err := composer.Compose(report.Healthy)
			if err != nil {
				printUnhealthy(out, report.Unhealthy)
				return err
			}
			printRoutes(out, table.Routes())
			printUnhealthy(out, report.Unhealthy)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "config", "", "gateway config file (defaults to CONFIG_PATH or config.yaml)")
	cmd.Flags().StringVar(&services, "services", "", "override the registry as name=url,name=url")
	return cmd
}

func printRoutes(out io.Writer, routes []composer.Route) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAMESPACE\tSERVICE\tADDRESS")
	for _, r := range routes {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Namespace, r.Service, r.Address)
	}
	_ = w.Flush()
}

func printUnhealthy(out io.Writer, unhealthy []registry.Unhealthy) {
	if len(unhealthy) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UNHEALTHY\tATTEMPTS\tREASON")
	for _, u := range unhealthy {
		fmt.Fprintf(w, "%s\t%d\t%s\n", u.Name, u.Attempts, u.Reason)
	}
	_ = w.Flush()
}
