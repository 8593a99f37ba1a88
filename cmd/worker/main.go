package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/talk2text/internal/config"
	"github.com/nikhilbhutani/talk2text/internal/queue"
	"github.com/nikhilbhutani/talk2text/internal/queue/workers"
	"github.com/nikhilbhutani/talk2text/internal/staging"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	area, err := staging.NewArea(cfg.Upload.Dir, cfg.Upload.MaxBytes)
	if err != nil {
		slog.Error("failed to open upload dir", "error", err)
		os.Exit(1)
	}

	redisOpt := queue.RedisOpt(cfg.Redis)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			queue.QueueMaintenance: 1,
		},
		Logger:   newAsynqLogger(logger),
		LogLevel: asynq.InfoLevel,
	})

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeStagingSweep, asynq.HandlerFunc(workers.NewSweepWorker(area).ProcessTask))

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: newAsynqLogger(logger)})
	task, err := queue.NewStagingSweepTask(cfg.Upload.StagingMaxAge)
	if err != nil {
		slog.Error("failed to build sweep task", "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.Register(cfg.Upload.SweepSchedule, task); err != nil {
		slog.Error("invalid sweep schedule", "schedule", cfg.Upload.SweepSchedule, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting worker", "tasks", registry.Types(), "dir", area.Dir())
		return srv.Start(registry.Mux())
	})
	g.Go(func() error {
		slog.Info("starting scheduler", "schedule", cfg.Upload.SweepSchedule, "max_age", cfg.Upload.StagingMaxAge.String())
		return scheduler.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}
