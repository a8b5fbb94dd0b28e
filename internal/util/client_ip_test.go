package util

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	lb, err := NewTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.10 "})
	require.NoError(t, err)

	tests := []struct {
		name    string
		remote  string
		xff     string
		realIP  string
		trusted *TrustedProxies
		want    string
	}{
		{"untrusted peer ignores headers", "198.51.100.10:1234", "203.0.113.5", "203.0.113.6", nil, "198.51.100.10"},
		{"ipv6 peer", "[2001:db8::1]:443", "", "", nil, "2001:db8::1"},
		{"unparseable peer returned as is", "pipe", "", "", lb, "pipe"},
		{"trusted peer without headers", "10.0.0.20:1234", "", "", lb, "10.0.0.20"},
		{"trusted load balancer", "10.0.0.20:1234", "203.0.113.5", "", lb, "203.0.113.5"},
		{"single trusted address", "192.168.1.10:80", "203.0.113.8", "", lb, "203.0.113.8"},
		{"mapped peer is unmapped before matching", "[::ffff:10.0.0.20]:1234", "203.0.113.9", "", lb, "203.0.113.9"},
		{"spoofed leftmost hop is skipped", "10.0.0.20:1234", "198.51.100.7, 203.0.113.5, 10.1.2.3", "", lb, "203.0.113.5"},
		{"x-real-ip when forwarded-for unusable", "10.0.0.20:1234", "garbage", "203.0.113.7", lb, "203.0.113.7"},
		{"fully trusted chain yields leftmost", "10.0.0.20:1234", "10.0.0.5, 10.0.0.10", "", lb, "10.0.0.5"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			require.Equal(t, tc.want, ClientIP(req, tc.trusted))
		})
	}
}

func TestNewTrustedProxies(t *testing.T) {
	tp, err := NewTrustedProxies([]string{"", "  "})
	require.NoError(t, err)
	require.Nil(t, tp)

	tp, err = NewTrustedProxies([]string{"10.1.2.3/8"})
	require.NoError(t, err)
	require.Len(t, tp.prefixes, 1)
	require.Equal(t, "10.0.0.0/8", tp.prefixes[0].String())

	_, err = NewTrustedProxies([]string{"ward-7"})
	require.Error(t, err)
	_, err = NewTrustedProxies([]string{"10.0.0.0/40"})
	require.Error(t, err)
}
