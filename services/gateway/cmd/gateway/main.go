package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"carelink/internal/bootstrap"
	"carelink/internal/config"
	"carelink/internal/httpapi"
	"carelink/internal/ratelimit"
	"carelink/internal/registry"
	"carelink/internal/util"
	"carelink/services/gateway/internal/app"
	gatewayconfig "carelink/services/gateway/internal/config"
	"carelink/services/gateway/internal/server"
)

const serviceName = "gateway"

func main() {
	cfg, err := gatewayconfig.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := registry.FromMap(cfg.Services)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid service registry")
	}
	recorder, metricsHandler, observers := bootstrap.Metrics(cfg.Metrics)
	opts := cfg.Options()
	opts.Metrics = recorder
	gateway, err := app.New(app.Config{
		Services: services,
		Prober:   registry.NewProber(opts),
		Metrics:  recorder,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init gateway")
	}
	if _, err := gateway.Start(ctx); err != nil {
		log.Error().Err(err).Msg("gateway composition failed")
		os.Exit(1)
	}
	go gateway.Run(ctx, config.MustDuration(cfg.ReprobeInterval))

	rdb, err := bootstrap.Redis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}
	authLimit, err := ratelimit.New(rdb, "carelink:gateway:ratelimit:auth", cfg.AuthLimit(), time.Minute)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init rate limiter")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid trustedProxies")
	}

	srv := server.New(server.Config{
		App:       gateway,
		AuthLimit: authLimit,
		Trusted:   trusted,
		Base: httpapi.BaseConfig{
			Service:     serviceName,
			CORSOrigins: cfg.CORSOrigins,
			Timeout:     config.MustDuration(cfg.RequestTimeout),
			Observers:   observers,
			Metrics:     metricsHandler,
		},
	})
	if err := bootstrap.Serve(serviceName, cfg.Port, srv.Router()); err != nil {
		log.Error().Err(err).Msg("server error")
	}
}
