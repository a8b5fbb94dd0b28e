// Package bootstrap wires the dependencies every service opens at startup
// from the shared config block.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"carelink/internal/claims"
	"carelink/internal/config"
	"carelink/internal/metrics"
	"carelink/internal/servicetoken"
	"carelink/internal/util"
	"carelink/pkg/store"
)

// Redis connects and pings. An empty address returns a nil client.
func Redis(ctx context.Context, addr, password string) (*redis.Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Database opens Postgres and migrates models. An empty dsn returns nil,
// which makes repositories fall back to memory.
func Database(dsn string, models ...any) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		log.Warn().Msg("databaseURL not set; using in-memory repositories")
		return nil, nil
	}
	return store.OpenPostgres(dsn, models...)
}

// Revocations returns the shared revocation list backing logout, or nil
// when Redis is not configured.
func Revocations(client *redis.Client) claims.Revocations {
	if client == nil {
		return nil
	}
	return store.NewRedisTokenRevoker(client, "")
}

// ClaimsOptions maps the shared config to signer/verifier options.
func ClaimsOptions(c config.Common) claims.Options {
	return claims.Options{
		Secret:   c.JWTSecret,
		Issuer:   c.JWTIssuer,
		Audience: c.JWTAudience,
		Leeway:   config.MustDuration(c.JWTLeeway),
	}
}

// UserVerifier builds the verifier for end-user credentials.
func UserVerifier(c config.Common, revocations claims.Revocations) (*claims.Verifier, error) {
	return claims.NewVerifier(ClaimsOptions(c), revocations)
}

// ServiceSigner signs calls made by service to its peers.
func ServiceSigner(c config.Common, service string) (*servicetoken.Signer, error) {
	return servicetoken.NewSigner(servicetoken.SignerOptions{
		PrivateKeyPath: c.InternalJWTPrivateKeyPath,
		KeyID:          c.InternalJWTKeyID,
		Issuer:         service,
	})
}

// ServiceVerifier accepts calls addressed to service from the given peers.
func ServiceVerifier(c config.Common, service string, peers ...string) (*servicetoken.Verifier, error) {
	keys, err := c.InternalVerifyKeys()
	if err != nil {
		return nil, err
	}
	return servicetoken.NewVerifier(servicetoken.VerifierOptions{
		PublicKeyPath:      c.InternalJWTPublicKeyPath,
		VerifyPublicKeyMap: keys,
		DefaultKeyID:       c.InternalJWTKeyID,
		Audience:           service,
		AllowedIssuers:     peers,
		Leeway:             servicetoken.DefaultLeeway,
	})
}

// Metrics returns the recorder, the /metrics handler and the request
// observer for a service. Disabled metrics yield no-ops and a nil handler.
func Metrics(enabled bool) (metrics.Recorder, http.Handler, []util.RequestObserver) {
	if !enabled {
		return metrics.Nop{}, nil, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)
	return collector, metrics.Handler(reg), []util.RequestObserver{collector.RecordHTTPRequest}
}

// Serve runs handler on :port until SIGINT or SIGTERM, then drains.
func Serve(service, port string, handler http.Handler) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := ":" + strings.TrimPrefix(port, ":")
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("service", service).Str("addr", addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info().Str("service", service).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
