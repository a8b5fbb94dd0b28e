package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"carelink/internal/bootstrap"
	"carelink/internal/claims"
	"carelink/internal/config"
	"carelink/internal/httpapi"
	"carelink/internal/ratelimit"
	"carelink/internal/util"
	"carelink/pkg/domain"
	"carelink/pkg/store"
	"carelink/services/auth/internal/app"
	authconfig "carelink/services/auth/internal/config"
	"carelink/services/auth/internal/security"
	"carelink/services/auth/internal/server"
)

const serviceName = "auth"

func main() {
	cfg, err := authconfig.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := bootstrap.Database(cfg.DatabaseURL, &store.UserModel{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	rdb, err := bootstrap.Redis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}

	var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
	if rdb != nil {
		defer rdb.Close()
		revoker = store.NewRedisTokenRevoker(rdb, "")
	} else {
		log.Warn().Msg("redisAddr not set; revocations and rate limits are local to this process")
	}

	opts := bootstrap.ClaimsOptions(cfg.Common)
	opts.TTL = config.MustDuration(cfg.TokenTTL)
	signer, err := claims.NewSigner(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init signer")
	}
	verifier, err := claims.NewVerifier(opts, revoker)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init verifier")
	}
	loginLimit, err := ratelimit.New(rdb, "carelink:ratelimit:login", cfg.LoginLimit(), time.Minute)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init login limiter")
	}
	signupLimit, err := ratelimit.New(rdb, "carelink:ratelimit:register", cfg.SignupLimit(), time.Minute)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init signup limiter")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid trustedProxies")
	}

	appCore, err := app.New(app.Config{
		Users:   store.NewRepository[domain.User](db, store.UserCodec, "email"),
		Signer:  signer,
		Revoker: revoker,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init app")
	}

	_, metricsHandler, observers := bootstrap.Metrics(cfg.Metrics)
	srv := server.New(server.Config{
		App:         appCore,
		Verifier:    verifier,
		LoginLimit:  loginLimit,
		SignupLimit: signupLimit,
		Alerter:     security.NewAuditAlerter(rdb, ""),
		Trusted:     trusted,
		Base: httpapi.BaseConfig{
			Service:     serviceName,
			CORSOrigins: cfg.CORSOrigins,
			Timeout:     config.MustDuration(cfg.RequestTimeout),
			Descriptor:  httpapi.ServiceDescriptor{Name: serviceName, Namespaces: []string{"auth", "users"}, Version: "1"},
			Observers:   observers,
			Metrics:     metricsHandler,
		},
	})
	if err := bootstrap.Serve(serviceName, cfg.Port, srv.Router()); err != nil {
		log.Error().Err(err).Msg("server error")
	}
}
