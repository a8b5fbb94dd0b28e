package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"carelink/internal/bootstrap"
	"carelink/internal/config"
	"carelink/internal/httpapi"
	"carelink/internal/util"
	"carelink/services/emergency/internal/app"
	emergencyconfig "carelink/services/emergency/internal/config"
	"carelink/services/emergency/internal/server"
)

func main() {
	cfg, err := emergencyconfig.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	appCore, err := app.New(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init app")
	}
	defer appCore.Close()

	srv := server.New(server.Config{
		Engine:   appCore.Engine,
		Verifier: appCore.Verifier,
		Resolver: appCore.Profiles,
		Trusted:  appCore.Trusted,
		Base: httpapi.BaseConfig{
			Service:     app.ServiceName,
			CORSOrigins: cfg.CORSOrigins,
			Timeout:     config.MustDuration(cfg.RequestTimeout),
			Descriptor:  httpapi.ServiceDescriptor{Name: app.ServiceName, Namespaces: []string{"alerts"}, Version: "1"},
			Observers:   appCore.Observers,
			Metrics:     appCore.MetricsHandler,
		},
	})
	if err := bootstrap.Serve(app.ServiceName, cfg.Port, srv.Router()); err != nil {
		log.Error().Err(err).Msg("server error")
	}
}
