// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unclebandit/outreach-scheduler/internal/app"
	"github.com/unclebandit/outreach-scheduler/internal/config"
	"github.com/unclebandit/outreach-scheduler/internal/db"
	"github.com/unclebandit/outreach-scheduler/internal/logger"
	"github.com/unclebandit/outreach-scheduler/internal/metrics"
	"github.com/unclebandit/outreach-scheduler/internal/repository"
	"github.com/unclebandit/outreach-scheduler/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.InitDefault(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.WithErr(err).Error("worker stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	if cfg.Queue.Provider == "memory" {
		return errors.New("QUEUE_PROVIDER=memory dispatches inside the server; the worker needs redis or amqp")
	}

	sqlDB, err := db.Connect(ctx, cfg.Postgres.URL, cfg.Postgres.MaxOpenConn)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	rdb, err := app.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	outreach, err := app.NewOutreach(cfg)
	if err != nil {
		return err
	}

	jobs, closeJobs, err := app.NewJobQueue(cfg.Queue, cfg.AMQP.URL, rdb, nil)
	if err != nil {
		return err
	}
	defer closeJobs()

	dispatcher := service.NewDispatchWorker(
		&repository.EmailTaskRepository{DB: sqlDB},
		outreach,
		cfg.Schedule.MinSendDelay,
		cfg.Schedule.MaxSendDelay,
	)

	metricsSrv := &http.Server{Addr: cfg.HTTP.MetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithErr(err).Error("metrics server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	log.Info("worker running, waiting for batches...", "queue", cfg.Queue.Provider, "concurrency", cfg.Queue.Concurrency)
	return jobs.Consume(ctx, dispatcher.HandleJob)
}
