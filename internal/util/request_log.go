package util

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RequestObserver receives one call per finished request.
type RequestObserver func(service, method string, status int, elapsed time.Duration)

// WithRequestLog emits a structured log for each HTTP request and reports it
// to the optional observers.
func WithRequestLog(service string, next http.Handler, observers ...RequestObserver) http.Handler {
	service = strings.TrimSpace(service)
	if service == "" {
		service = "unknown"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		log.Info().
			Str("service", service).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int64("duration_ms", elapsed.Milliseconds()).
			Str("request_id", RequestIDFromRequest(r)).
			Msg("http_request")
		for _, observe := range observers {
			observe(service, r.Method, status, elapsed)
		}
	})
}
