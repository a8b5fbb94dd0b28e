package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"carelink/internal/util"
	"carelink/pkg/apperr"
)

// BaseConfig describes the middleware stack every service shares.
type BaseConfig struct {
	Service     string
	CORSOrigins []string
	Timeout     time.Duration
	Descriptor  ServiceDescriptor
	Observers   []util.RequestObserver
	Metrics     http.Handler
	// Health replaces the default /healthz body.
	Health http.HandlerFunc
}

// NewRouter returns a chi router with request ids, access logs, security
// headers, CORS, panic recovery and the request timeout installed, plus the
// /_service, /healthz and optional /metrics endpoints.
func NewRouter(cfg BaseConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(util.WithRequestID)
	r.Use(func(next http.Handler) http.Handler {
		return util.WithRequestLog(cfg.Service, next, cfg.Observers...)
	})
	r.Use(middleware.Recoverer)
	r.Use(util.WithSecurityHeaders)
	r.Use(util.WithCORS(cfg.CORSOrigins))
	r.Use(WithTimeout(cfg.Timeout))

	r.NotFound(NotFound)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusMethodNotAllowed, errorResponse{
			Error:     "method not allowed",
			Code:      apperr.Validation,
			RequestID: util.RequestIDFromRequest(r),
		})
	})
	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health)
	} else {
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": cfg.Service})
		})
	}
	if cfg.Descriptor.Name != "" {
		r.Get("/_service", DescriptorHandler(cfg.Descriptor))
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	return r
}
