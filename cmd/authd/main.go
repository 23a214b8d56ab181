package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "github.com/Moiraines/health-score-api/internal/config/authd"
	"github.com/Moiraines/health-score-api/internal/obs"
	"github.com/Moiraines/health-score-api/internal/services/auth"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := flag.String("config", "config/authd.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting authd", zap.String("env", cfg.App.Env), zap.String("ver", cfg.App.Version))

	otelShutdown, err := initOTel(rootCtx, cfg)
	if err != nil {
		logger.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := initDB(rootCtx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	svc, closeEvents := buildService(cfg, logger, db)
	defer closeEvents()

	metricsSrv := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, db.Ping, logger)

	sweeper := auth.NewSweeper(logger, svc, cfg.Sweep.Tick)
	sweepErrCh := make(chan error, 1)
	go func() { sweepErrCh <- sweeper.Run(rootCtx) }()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal")
	case err := <-sweepErrCh:
		if err != nil && rootCtx.Err() == nil {
			logger.Error("sweeper stopped", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shCtx)

	time.Sleep(100 * time.Millisecond)
	logger.Info("bye")
}
