// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the services and the gateway report to.
type Recorder interface {
	RecordProbeAttempt(service, outcome string)
	SetHealthyServices(n int)
	RecordAlertTransition(event, to string)
	RecordHTTPRequest(service, method string, status int, elapsed time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordProbeAttempt(string, string)                    {}
func (Nop) SetHealthyServices(int)                               {}
func (Nop) RecordAlertTransition(string, string)                 {}
func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	probeAttempts    *prometheus.CounterVec
	healthyServices  prometheus.Gauge
	alertTransitions *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		probeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_probe_attempts_total",
			Help: "Gateway health probe attempts by service and outcome.",
		}, []string{"service", "outcome"}),
		healthyServices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carelink_healthy_services",
			Help: "Services in the current routing table.",
		}),
		alertTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_alert_transitions_total",
			Help: "Applied emergency alert transitions.",
		}, []string{"event", "to"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_http_requests_total",
			Help: "Served HTTP requests.",
		}, []string{"service", "method", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carelink_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
	}
	reg.MustRegister(
		c.probeAttempts,
		c.healthyServices,
		c.alertTransitions,
		c.httpRequests,
		c.httpLatency,
	)
	return c
}

func (c *Collector) RecordProbeAttempt(service, outcome string) {
	c.probeAttempts.WithLabelValues(service, outcome).Inc()
}

func (c *Collector) SetHealthyServices(n int) {
	c.healthyServices.Set(float64(n))
}

func (c *Collector) RecordAlertTransition(event, to string) {
	c.alertTransitions.WithLabelValues(event, to).Inc()
}

func (c *Collector) RecordHTTPRequest(service, method string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(service, method, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(service).Observe(elapsed.Seconds())
}

// Handler serves the scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
