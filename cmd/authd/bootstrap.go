package main

import (
	"context"

	"go.uber.org/zap"

	config "github.com/Moiraines/health-score-api/internal/config/authd"
	"github.com/Moiraines/health-score-api/internal/domain/authevent"
	"github.com/Moiraines/health-score-api/internal/obs"
	"github.com/Moiraines/health-score-api/internal/obs/retry"
	kafkax "github.com/Moiraines/health-score-api/internal/repository/kafka"
	pg "github.com/Moiraines/health-score-api/internal/repository/postgres"
	"github.com/Moiraines/health-score-api/internal/security"
	"github.com/Moiraines/health-score-api/internal/services/auth"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(*cfg.Log.AsLoggerConfig(cfg.App))
}

func initOTel(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	ot, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		return nil, err
	}
	return ot.Shutdown, nil
}

func initDB(ctx context.Context, cfg *config.Config) (*pg.DB, error) {
	return pg.NewDB(ctx, cfg.DB)
}

func buildService(cfg *config.Config, logger *zap.Logger, db *pg.DB) (*auth.Service, func()) {
	users := pg.NewUserRepo(db)
	sessions := pg.NewSessionRepo(db)
	tokens := pg.NewRefreshTokenRepo(db)
	tx := pg.NewTransactor(db, logger)

	codec := security.NewCodec([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	fp := security.NewFingerprinter([]byte(cfg.Auth.FingerprintSecret))

	var (
		publisher   authevent.Publisher
		closeEvents = func() {}
	)
	if cfg.Events.Enable {
		producer := kafkax.NewProducer(cfg.Events.Brokers, cfg.Events.Topic).WithLogger(logger)
		publisher = kafkax.NewSecurityEvents(producer, retry.PublishPolicy(logger))
		closeEvents = func() { _ = producer.Close() }
	}

	svc := auth.NewService(users, sessions, tokens, tx, codec, fp, publisher, logger, auth.Config{
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	})
	return svc, closeEvents
}
