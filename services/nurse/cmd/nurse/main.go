package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"carelink/internal/bootstrap"
	"carelink/internal/config"
	"carelink/internal/httpapi"
	"carelink/internal/profileclient"
	"carelink/internal/util"
	"carelink/pkg/domain"
	"carelink/pkg/store"
	"carelink/services/nurse/internal/app"
	nurseconfig "carelink/services/nurse/internal/config"
	"carelink/services/nurse/internal/server"
)

const serviceName = "nurse"

func main() {
	cfg, err := nurseconfig.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := bootstrap.Database(cfg.DatabaseURL, &store.NurseModel{}, &store.TipModel{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	rdb, err := bootstrap.Redis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	verifier, err := bootstrap.UserVerifier(cfg.Common, bootstrap.Revocations(rdb))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init verifier")
	}
	services, err := bootstrap.ServiceVerifier(cfg.Common, serviceName, "patient", "emergency")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init service verifier")
	}
	signer, err := bootstrap.ServiceSigner(cfg.Common, serviceName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init service signer")
	}
	patients, err := profileclient.New(profileclient.Config{PatientURL: cfg.PatientServiceURL, Signer: signer})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init patient client")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid trustedProxies")
	}

	appCore, err := app.New(app.Config{
		Nurses:   store.NewRepository[domain.Nurse](db, store.NurseCodec, "userId", "licenseNumber"),
		Tips:     store.NewRepository[domain.MotivationalTip](db, store.TipCodec),
		Patients: patients,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init app")
	}

	_, metricsHandler, observers := bootstrap.Metrics(cfg.Metrics)
	srv := server.New(server.Config{
		App:      appCore,
		Verifier: verifier,
		Services: services,
		Trusted:  trusted,
		Base: httpapi.BaseConfig{
			Service:     serviceName,
			CORSOrigins: cfg.CORSOrigins,
			Timeout:     config.MustDuration(cfg.RequestTimeout),
			Descriptor:  httpapi.ServiceDescriptor{Name: serviceName, Namespaces: []string{"nurses", "tips"}, Version: "1"},
			Observers:   observers,
			Metrics:     metricsHandler,
		},
	})
	if err := bootstrap.Serve(serviceName, cfg.Port, srv.Router()); err != nil {
		log.Error().Err(err).Msg("server error")
	}
}
