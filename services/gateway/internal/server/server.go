package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"carelink/internal/composer"
	"carelink/internal/httpapi"
	"carelink/internal/ratelimit"
	"carelink/internal/registry"
	"carelink/internal/util"
	"carelink/pkg/apperr"
	"carelink/services/gateway/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// AuthLimit guards POST requests to the auth namespace; nil disables it.
	AuthLimit ratelimit.Limiter
	Trusted   *util.TrustedProxies
	Base      httpapi.BaseConfig
}

// Server routes /api/{namespace} to the backend that owns it.
type Server struct {
	app       *app.App
	authLimit ratelimit.Limiter
	trusted   *util.TrustedProxies
	router    *chi.Mux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:       cfg.App,
		authLimit: cfg.AuthLimit,
		trusted:   cfg.Trusted,
	}
	base := cfg.Base
	base.Health = s.handleHealth
	s.router = httpapi.NewRouter(base)
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Handle("/api/{namespace}", http.HandlerFunc(s.handleProxy))
	s.router.Handle("/api/{namespace}/*", http.HandlerFunc(s.handleProxy))
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	ns := chi.URLParam(r, "namespace")
	snap := s.app.Current()
	if snap == nil {
		httpapi.WriteError(w, r, apperr.New(apperr.NoServicesAvailable, "gateway has no routing table yet"))
		return
	}
	handler, _, ok := snap.Proxy(ns)
	if !ok {
		httpapi.WriteError(w, r, apperr.New(apperr.NotFound, "unknown namespace").With("namespace", ns))
		return
	}
	if ns == "auth" && r.Method == http.MethodPost && s.authLimit != nil {
		clientIP := func(r *http.Request) string { return util.ClientIP(r, s.trusted) }
		handler = ratelimit.Middleware(s.authLimit, "gateway_auth", time.Minute, clientIP)(handler)
	}
	handler.ServeHTTP(w, r)
}

type healthResponse struct {
	Status    string               `json:"status"`
	Routes    []composer.Route     `json:"routes"`
	Unhealthy []registry.Unhealthy `json:"unhealthy"`
	CheckedAt time.Time            `json:"checkedAt"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.app.Current()
	if snap == nil {
		httpapi.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "starting",
			Routes:    []composer.Route{},
			Unhealthy: []registry.Unhealthy{},
		})
		return
	}
	status := "ok"
	if len(snap.Unhealthy) > 0 {
		status = "degraded"
	}
	httpapi.WriteJSON(w, http.StatusOK, healthResponse{
		Status:    status,
		Routes:    snap.Table.Routes(),
		Unhealthy: snap.Unhealthy,
		CheckedAt: snap.CheckedAt,
	})
}
