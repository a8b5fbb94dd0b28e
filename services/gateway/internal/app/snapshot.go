package app

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"carelink/internal/composer"
	"carelink/internal/httpapi"
	"carelink/internal/registry"
	"carelink/internal/util"
	"carelink/pkg/apperr"
)

// Snapshot is one composed routing table with a proxy per backend.
type Snapshot struct {
	Table     *composer.Table
	Unhealthy []registry.Unhealthy
	CheckedAt time.Time
	proxies   map[string]*httputil.ReverseProxy
}

func newSnapshot(table *composer.Table, report registry.Report, transport http.RoundTripper) (*Snapshot, error) {
	s := &Snapshot{
		Table:     table,
		Unhealthy: report.Unhealthy,
		CheckedAt: report.CheckedAt,
		proxies:   make(map[string]*httputil.ReverseProxy),
	}
	for _, r := range table.Routes() {
		if _, ok := s.proxies[r.Service]; ok {
			continue
		}
		target, err := url.Parse(r.Address)
		if err != nil {
			return nil, apperr.Wrap(apperr.Composition, "service address is not a url", err).With("service", r.Service)
		}
		s.proxies[r.Service] = newProxy(r.Service, target, transport)
	}
	return s, nil
}

// Proxy returns the handler serving a namespace.
func (s *Snapshot) Proxy(namespace string) (http.Handler, composer.Route, bool) {
	r, ok := s.Table.Lookup(namespace)
	if !ok {
		return nil, composer.Route{}, false
	}
	return s.proxies[r.Service], r, true
}

func newProxy(service string, target *url.URL, transport http.RoundTripper) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			util.PropagateRequestID(pr.In.Context(), pr.Out.Header)
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			util.LoggerFromContext(r.Context()).Error().
				Err(err).
				Str("service", service).
				Str("path", r.URL.Path).
				Msg("upstream request failed")
			httpapi.WriteError(w, r, apperr.Wrap(apperr.DependencyUnavailable, "upstream service unavailable", err).With("service", service))
		},
	}
}
