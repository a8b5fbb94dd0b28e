// Package registry holds the configured backend services and probes them
// for liveness before the gateway routes to them.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"carelink/internal/httpapi"
	"carelink/internal/metrics"
	"carelink/pkg/apperr"
)

const (
	DefaultAttempts   = 3
	DefaultTimeout    = time.Second
	DefaultDelay      = time.Second
	DefaultMultiplier = 1.0

	descriptorPath = "/_service"
)

// Service is one registry entry.
type Service struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// FromMap validates a name → base address mapping and returns it sorted by
// name.
func FromMap(m map[string]string) ([]Service, error) {
	if len(m) == 0 {
		return nil, errors.New("registry: no services configured")
	}
	out := make([]Service, 0, len(m))
	for name, addr := range m {
		name = strings.TrimSpace(name)
		addr = strings.TrimRight(strings.TrimSpace(addr), "/")
		if name == "" {
			return nil, errors.New("registry: service name must not be empty")
		}
		u, err := url.Parse(addr)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("registry: service %s has invalid address %q", name, addr)
		}
		out = append(out, Service{Name: name, Address: addr})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Healthy is a service that answered its capability probe.
type Healthy struct {
	Service
	Descriptor httpapi.ServiceDescriptor `json:"descriptor"`
	Attempts   int                       `json:"attempts"`
}

// Unhealthy is a service that exhausted its attempts.
type Unhealthy struct {
	Service
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason"`
}

// Report is the joined outcome of one probe round.
type Report struct {
	Healthy   []Healthy   `json:"healthy"`
	Unhealthy []Unhealthy `json:"unhealthy"`
	CheckedAt time.Time   `json:"checkedAt"`
}

type Options struct {
	Attempts int
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// Delay before retry n is Delay * Multiplier^(n-1).
	Delay      time.Duration
	Multiplier float64
	Metrics    metrics.Recorder
	// Sleep waits between attempts; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Prober checks services by fetching their self-description.
type Prober struct {
	client *resty.Client
	opts   Options
}

func NewProber(opts Options) *Prober {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	} else if opts.Delay == 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = DefaultMultiplier
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	return &Prober{client: client, opts: opts}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff returns the wait before retry n (n >= 1).
func (p *Prober) Backoff(n int) time.Duration {
	return time.Duration(float64(p.opts.Delay) * math.Pow(p.opts.Multiplier, float64(n-1)))
}

// Probe tries svc up to Attempts times. The error is DependencyUnavailable
// carrying the last failure.
func (p *Prober) Probe(ctx context.Context, svc Service) (httpapi.ServiceDescriptor, int, error) {
	var last error
	for attempt := 1; attempt <= p.opts.Attempts; attempt++ {
		d, err := p.attempt(ctx, svc)
		if err == nil {
			p.opts.Metrics.RecordProbeAttempt(svc.Name, "success")
			return d, attempt, nil
		}
		last = err
		p.opts.Metrics.RecordProbeAttempt(svc.Name, "failure")
		log.Warn().
			Err(err).
			Str("service", svc.Name).
			Str("address", svc.Address).
			Int("attempt", attempt).
			Int("attempts", p.opts.Attempts).
			Msg("service probe failed")
		if attempt == p.opts.Attempts {
			break
		}
		if err := p.opts.Sleep(ctx, p.Backoff(attempt)); err != nil {
			last = err
			return httpapi.ServiceDescriptor{}, attempt, p.unavailable(svc, last)
		}
	}
	return httpapi.ServiceDescriptor{}, p.opts.Attempts, p.unavailable(svc, last)
}

func (p *Prober) unavailable(svc Service, err error) error {
	return apperr.Wrap(apperr.DependencyUnavailable, "service did not answer its probe", err).With("service", svc.Name)
}

type descriptorEnvelope struct {
	Data *struct {
		Service *httpapi.ServiceDescriptor `json:"_service"`
	} `json:"data"`
}

func (p *Prober) attempt(ctx context.Context, svc Service) (httpapi.ServiceDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	resp, err := p.client.R().SetContext(ctx).Get(svc.Address + descriptorPath)
	if err != nil {
		return httpapi.ServiceDescriptor{}, fmt.Errorf("transport: %w", err)
	}
	if !resp.IsSuccess() {
		return httpapi.ServiceDescriptor{}, fmt.Errorf("status %d", resp.StatusCode())
	}
	if mt, _, err := mime.ParseMediaType(resp.Header().Get("Content-Type")); err != nil || mt != "application/json" {
		return httpapi.ServiceDescriptor{}, fmt.Errorf("unexpected content type %q", resp.Header().Get("Content-Type"))
	}
	var env descriptorEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return httpapi.ServiceDescriptor{}, fmt.Errorf("malformed body: %w", err)
	}
	if env.Data == nil || env.Data.Service == nil {
		return httpapi.ServiceDescriptor{}, errors.New("missing data._service")
	}
	d := *env.Data.Service
	if d.Name != svc.Name {
		return httpapi.ServiceDescriptor{}, fmt.Errorf("service reports name %q", d.Name)
	}
	if d.Namespaces == nil {
		return httpapi.ServiceDescriptor{}, errors.New("missing namespaces")
	}
	return d, nil
}

// ProbeAll probes every service concurrently and joins the results. With
// no healthy service the report is still returned alongside a
// NoServicesAvailable error.
func (p *Prober) ProbeAll(ctx context.Context, services []Service) (Report, error) {
	type result struct {
		desc     httpapi.ServiceDescriptor
		attempts int
		err      error
	}
	results := make([]result, len(services))
	var g errgroup.Group
	for i, svc := range services {
		g.Go(func() error {
			d, n, err := p.Probe(ctx, svc)
			results[i] = result{desc: d, attempts: n, err: err}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Healthy: []Healthy{}, Unhealthy: []Unhealthy{}, CheckedAt: p.opts.Now().UTC()}
	for i, svc := range services {
		r := results[i]
		if r.err != nil {
			report.Unhealthy = append(report.Unhealthy, Unhealthy{Service: svc, Attempts: r.attempts, Reason: reason(r.err)})
			continue
		}
		report.Healthy = append(report.Healthy, Healthy{Service: svc, Descriptor: r.desc, Attempts: r.attempts})
	}
	sort.Slice(report.Healthy, func(i, j int) bool { return report.Healthy[i].Name < report.Healthy[j].Name })
	sort.Slice(report.Unhealthy, func(i, j int) bool { return report.Unhealthy[i].Name < report.Unhealthy[j].Name })

	for _, u := range report.Unhealthy {
		log.Error().Str("service", u.Name).Int("attempts", u.Attempts).Str("reason", u.Reason).Msg("service unhealthy")
	}
	if len(report.Healthy) == 0 {
		names := make([]string, 0, len(report.Unhealthy))
		for _, u := range report.Unhealthy {
			names = append(names, u.Name)
		}
		return report, apperr.New(apperr.NoServicesAvailable, "no backend service is healthy").
			With("unhealthy", strings.Join(names, ","))
	}
	return report, nil
}

// reason is the cause without the wrapper message.
func reason(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}
