// Package app wires the emergency service: alert storage, the lifecycle
// engine and its collaborators.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"carelink/internal/bootstrap"
	"carelink/internal/claims"
	"carelink/internal/profileclient"
	"carelink/internal/util"
	"carelink/pkg/domain"
	"carelink/pkg/events"
	"carelink/pkg/storage"
	"carelink/pkg/store"
	"carelink/services/emergency/internal/config"
	"carelink/services/emergency/internal/lifecycle"
)

const ServiceName = "emergency"

// App holds the wired service.
type App struct {
	Engine   *lifecycle.Engine
	Verifier *claims.Verifier
	Profiles *profileclient.Client
	Trusted  *util.TrustedProxies

	MetricsHandler http.Handler
	Observers      []util.RequestObserver

	redis *redis.Client
}

// New connects storage, Redis, MinIO and the peer services.
func New(ctx context.Context, cfg config.FileConfig) (*App, error) {
	db, err := bootstrap.Database(cfg.DatabaseURL, &store.AlertModel{})
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	rdb, err := bootstrap.Redis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	verifier, err := bootstrap.UserVerifier(cfg.Common, bootstrap.Revocations(rdb))
	if err != nil {
		return nil, fmt.Errorf("init verifier: %w", err)
	}
	signer, err := bootstrap.ServiceSigner(cfg.Common, ServiceName)
	if err != nil {
		return nil, fmt.Errorf("init service signer: %w", err)
	}
	profiles, err := profileclient.New(profileclient.Config{
		PatientURL: cfg.PatientServiceURL,
		NurseURL:   cfg.NurseServiceURL,
		Signer:     signer,
	})
	if err != nil {
		return nil, err
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	var publisher events.Publisher = events.NopPublisher{}
	if rdb != nil {
		publisher, err = events.NewRedisStreamPublisher(rdb, events.RedisStreamConfig{
			Stream: cfg.EventsStream,
			MaxLen: cfg.EventsMaxLen,
		})
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn().Msg("redisAddr not set; alert events are not published and logout revocation is not enforced")
	}

	var archive storage.Archive = storage.NopArchive{}
	if cfg.MinioEndpoint != "" {
		archive, err = storage.NewMinioArchive(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init archive: %w", err)
		}
	} else {
		log.Warn().Msg("minioEndpoint not set; hard-deleted alerts are not archived")
	}

	recorder, metricsHandler, observers := bootstrap.Metrics(cfg.Metrics)
	engine, err := lifecycle.New(lifecycle.Config{
		Alerts:   store.NewRepository[domain.EmergencyAlert](db, store.AlertCodec),
		Patients: profiles,
		Events:   publisher,
		Archive:  archive,
		Metrics:  recorder,
	})
	if err != nil {
		return nil, err
	}
	return &App{
		Engine:         engine,
		Verifier:       verifier,
		Profiles:       profiles,
		Trusted:        trusted,
		MetricsHandler: metricsHandler,
		Observers:      observers,
		redis:          rdb,
	}, nil
}

// Close releases the Redis connection.
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
