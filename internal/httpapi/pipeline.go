package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"carelink/pkg/apperr"
)

const DefaultRequestTimeout = 10 * time.Second

// WithTimeout bounds each request. Handlers see the deadline through the
// context; WriteError reports expiry as DEPENDENCY_UNAVAILABLE.
func WithTimeout(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		d = DefaultRequestTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ServiceDescriptor answers the gateway's capability probe.
type ServiceDescriptor struct {
	Name       string   `json:"name"`
	Namespaces []string `json:"namespaces"`
	Version    string   `json:"version,omitempty"`
}

// DescriptorHandler serves GET /_service.
func DescriptorHandler(d ServiceDescriptor) http.HandlerFunc {
	body := map[string]any{"data": map[string]any{"_service": d}}
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, body)
	}
}

// QueryBool reads a boolean query parameter. Absent or unparsable values
// are false.
func QueryBool(r *http.Request, name string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name))) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// QueryTime parses an RFC 3339 timestamp or a YYYY-MM-DD date. An absent
// parameter yields the zero time.
func QueryTime(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.New(apperr.Validation, name+" must be RFC 3339 or YYYY-MM-DD").With("field", name)
}

// QueryRange reads the from and to parameters as a half-open interval. A
// bare date in to covers that whole day.
func QueryRange(r *http.Request) (from, to time.Time, err error) {
	if from, err = QueryTime(r, "from"); err != nil {
		return from, to, err
	}
	if to, err = QueryTime(r, "to"); err != nil {
		return from, to, err
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); len(raw) == len(time.DateOnly) {
		to = to.AddDate(0, 0, 1)
	}
	return from, to, nil
}
