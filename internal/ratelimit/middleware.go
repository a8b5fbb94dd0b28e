package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"carelink/internal/util"
)

// Middleware rejects requests over quota with 429. key derives the bucket
// from the request, usually the client IP.
func Middleware(l Limiter, scope string, retryAfter time.Duration, key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := scope + "|" + key(r)
			if l.Allow(r.Context(), k) {
				next.ServeHTTP(w, r)
				return
			}
			util.LoggerFromContext(r.Context()).Warn().
				Str("event", "rate_limit").
				Str("outcome", "rejected").
				Str("scope", scope).
				Str("path", r.URL.Path).
				Msg("security_event")
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "too many requests",
				"code":  "RATE_LIMITED",
			})
		})
	}
}
