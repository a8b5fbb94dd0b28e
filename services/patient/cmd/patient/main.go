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
	"carelink/services/patient/internal/app"
	patientconfig "carelink/services/patient/internal/config"
	"carelink/services/patient/internal/server"
	"carelink/services/patient/internal/triage"
)

const serviceName = "patient"

func main() {
	cfg, err := patientconfig.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := bootstrap.Database(cfg.DatabaseURL,
		&store.PatientModel{}, &store.VitalSignsModel{}, &store.ConditionModel{},
		&store.MedicationModel{}, &store.AppointmentModel{}, &store.ChecklistModel{},
	)
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
	services, err := bootstrap.ServiceVerifier(cfg.Common, serviceName, "emergency", "nurse")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init service verifier")
	}
	signer, err := bootstrap.ServiceSigner(cfg.Common, serviceName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init service signer")
	}
	nurses, err := profileclient.New(profileclient.Config{NurseURL: cfg.NurseServiceURL, Signer: signer})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init nurse client")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid trustedProxies")
	}

	appCore, err := app.New(app.Config{
		Patients:     store.NewRepository[domain.Patient](db, store.PatientCodec, "userId"),
		Vitals:       store.NewRepository[domain.VitalSigns](db, store.VitalSignsCodec),
		Conditions:   store.NewRepository[domain.MedicalCondition](db, store.ConditionCodec),
		Medications:  store.NewRepository[domain.Medication](db, store.MedicationCodec),
		Appointments: store.NewRepository[domain.Appointment](db, store.AppointmentCodec),
		Checklists:   store.NewRepository[domain.SymptomChecklist](db, store.ChecklistCodec),
		Nurses:       nurses,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init app")
	}
	classifier := triage.NewRuleClassifier()
	if cfg.TriageThreshold > 0 {
		classifier.Threshold = cfg.TriageThreshold
	}

	_, metricsHandler, observers := bootstrap.Metrics(cfg.Metrics)
	srv := server.New(server.Config{
		App:        appCore,
		Classifier: classifier,
		Verifier:   verifier,
		Services:   services,
		Trusted:    trusted,
		Base: httpapi.BaseConfig{
			Service:     serviceName,
			CORSOrigins: cfg.CORSOrigins,
			Timeout:     config.MustDuration(cfg.RequestTimeout),
			Descriptor:  httpapi.ServiceDescriptor{Name: serviceName, Namespaces: []string{"patients", "triage"}, Version: "1"},
			Observers:   observers,
			Metrics:     metricsHandler,
		},
	})
	if err := bootstrap.Serve(serviceName, cfg.Port, srv.Router()); err != nil {
		log.Error().Err(err).Msg("server error")
	}
}
