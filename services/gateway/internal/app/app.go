// Package app keeps the gateway's live routing table: it probes the
// registry, composes the healthy services and swaps the result in.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"carelink/internal/composer"
	"carelink/internal/metrics"
	"carelink/internal/registry"
)

// Prober is satisfied by *registry.Prober.
type Prober interface {
	ProbeAll(ctx context.Context, services []registry.Service) (registry.Report, error)
}

type Config struct {
	Services []registry.Service
	Prober   Prober
	Metrics  metrics.Recorder
	// Transport carries proxied requests; nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// App is the gateway core.
type App struct {
	services  []registry.Service
	prober    Prober
	metrics   metrics.Recorder
	transport http.RoundTripper
	current   atomic.Pointer[Snapshot]
}

func New(cfg Config) (*App, error) {
	if len(cfg.Services) == 0 {
		return nil, errors.New("gateway app: no services configured")
	}
	if cfg.Prober == nil {
		return nil, errors.New("gateway app: prober required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	return &App{
		services:  cfg.Services,
		prober:    cfg.Prober,
		metrics:   cfg.Metrics,
		transport: cfg.Transport,
	}, nil
}

// Start runs the first probe round. Its error is fatal to the process.
func (a *App) Start(ctx context.Context) (*Snapshot, error) {
	snap, err := a.build(ctx)
	if err != nil {
		return nil, err
	}
	a.current.Store(snap)
	a.metrics.SetHealthyServices(len(snap.Table.Services()))
	log.Info().
		Strs("services", snap.Table.Services()).
		Int("routes", len(snap.Table.Routes())).
		Int("unhealthy", len(snap.Unhealthy)).
		Msg("gateway composed")
	return snap, nil
}

// Refresh re-probes and swaps the table in on success. On failure the last
// good table stays in place.
func (a *App) Refresh(ctx context.Context) error {
	snap, err := a.build(ctx)
	if err != nil {
		log.Error().Err(err).Msg("re-probe failed; keeping previous routing table")
		return err
	}
	a.current.Store(snap)
	a.metrics.SetHealthyServices(len(snap.Table.Services()))
	log.Debug().Strs("services", snap.Table.Services()).Msg("routing table refreshed")
	return nil
}

// Run refreshes every interval until ctx ends.
func (a *App) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = a.Refresh(ctx)
		}
	}
}

// Current returns the live snapshot, or nil before Start succeeded.
func (a *App) Current() *Snapshot {
	return a.current.Load()
}

func (a *App) build(ctx context.Context) (*Snapshot, error) {
	report, err := a.prober.ProbeAll(ctx, a.services)
	if err != nil {
		return nil, err
	}
	table, err := composer.Compose(report.Healthy)
	if err != nil {
		return nil, err
	}
	return newSnapshot(table, report, a.transport)
}
