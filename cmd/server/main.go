// cmd/server/main.go
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
	"github.com/unclebandit/outreach-scheduler/internal/controller"
	"github.com/unclebandit/outreach-scheduler/internal/db"
	"github.com/unclebandit/outreach-scheduler/internal/handler"
	"github.com/unclebandit/outreach-scheduler/internal/logger"
	"github.com/unclebandit/outreach-scheduler/internal/middleware"
	"github.com/unclebandit/outreach-scheduler/internal/queue"
	"github.com/unclebandit/outreach-scheduler/internal/repository"
	"github.com/unclebandit/outreach-scheduler/internal/server"
	"github.com/unclebandit/outreach-scheduler/internal/service"
)

const shutdownTimeout = 30 * time.Second

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
		logger.WithErr(err).Error("server stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	if cfg.Postgres.AutoMigrate {
		if err := db.Migrate(cfg.Postgres.URL); err != nil {
			return err
		}
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

	taskRepo := &repository.EmailTaskRepository{DB: sqlDB}
	batchRepo := &repository.BatchRepository{DB: sqlDB}
	runRepo := &repository.RunRepository{Client: rdb, TTL: repository.DefaultRunTTL}

	resolver, err := app.NewResolver(cfg.Timezone, rdb)
	if err != nil {
		return err
	}
	outreach, err := app.NewOutreach(cfg)
	if err != nil {
		return err
	}
	archiver, err := app.NewArchiver(ctx, cfg.Archive)
	if err != nil {
		return err
	}

	// scheduling runs always execute in this process
	mem := queue.NewInMemoryQueue()
	defer mem.Close()

	jobs, closeJobs, err := app.NewJobQueue(cfg.Queue, cfg.AMQP.URL, rdb, mem)
	if err != nil {
		return err
	}
	defer closeJobs()

	scheduling := &service.SchedulingService{
		Resolver:  resolver,
		Sizer:     service.NewJitteredSizer(cfg.Schedule.BatchBase, cfg.Schedule.BatchJitter),
		Planner:   app.NewPlanner(cfg.Schedule),
		TaskRepo:  taskRepo,
		BatchRepo: batchRepo,
		RunRepo:   runRepo,
		Queue:     jobs,
		Now:       time.Now,
	}
	if err := queue.StartSchedulingRunSubscriber(ctx, mem, scheduling); err != nil {
		return err
	}

	if cfg.Queue.Provider == "memory" {
		dispatcher := service.NewDispatchWorker(taskRepo, outreach, cfg.Schedule.MinSendDelay, cfg.Schedule.MaxSendDelay)
		go func() {
			if err := mem.Consume(ctx, dispatcher.HandleJob); err != nil {
				logger.WithErr(err).Error("in-process dispatcher stopped")
			}
		}()
		log.Warn("batch jobs are held in memory and lost on restart")
	}

	outreachController := &controller.OutreachController{
		Runs:       runRepo,
		Publisher:  mem,
		Archive:    archiver,
		Legacy:     service.NewLegacyOutreachService(outreach, cfg.HTTP.LegacyResultsPath),
		MaxRows:    cfg.HTTP.MaxUploadRows,
		LegacyRows: cfg.HTTP.LegacyUploadRows,
	}

	router := server.NewRouter(server.Deps{
		Outreach: outreachController,
		Tracking: handler.NewTrackingHandler(taskRepo),
		APIKey:   cfg.HTTP.APIKey,
		Limiter:  middleware.NewRedisLimiter(rdb, cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow),
		Logger:   log,
		Health: func(ctx context.Context) error {
			if err := sqlDB.PingContext(ctx); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server running", "addr", cfg.HTTP.Addr, "queue", cfg.Queue.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
