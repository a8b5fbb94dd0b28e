package util

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func serveWithHeaders(r *http.Request) http.Header {
	h := WithSecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec.Header()
}

func TestWithSecurityHeaders(t *testing.T) {
	got := serveWithHeaders(httptest.NewRequest(http.MethodGet, "/api/patients/p-1", nil))
	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	}
	for k, v := range want {
		require.Equal(t, v, got.Get(k), k)
	}
	require.Empty(t, got.Get("Strict-Transport-Security"))
}

func TestWithSecurityHeadersHSTS(t *testing.T) {
	forwarded := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	forwarded.Header.Set("X-Forwarded-Proto", " HTTPS ")
	require.Contains(t, serveWithHeaders(forwarded).Get("Strict-Transport-Security"), "max-age=")

	direct := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	direct.TLS = &tls.ConnectionState{}
	require.NotEmpty(t, serveWithHeaders(direct).Get("Strict-Transport-Security"))
}
