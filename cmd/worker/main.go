package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tana-fms/tana-fms/internal/app"
	"github.com/tana-fms/tana-fms/internal/costs"
	"github.com/tana-fms/tana-fms/internal/fiscalyear"
	"github.com/tana-fms/tana-fms/internal/observability"
	"github.com/tana-fms/tana-fms/internal/platform/cache"
	"github.com/tana-fms/tana-fms/internal/platform/db"
	"github.com/tana-fms/tana-fms/internal/requisitions"
	"github.com/tana-fms/tana-fms/internal/workorders"
	"github.com/tana-fms/tana-fms/internal/workshops"
	"github.com/tana-fms/tana-fms/jobs"
)

// planningLock mirrors the API process: targets are locked whenever the
// fiscal year state says so.
type planningLock struct {
	repo *fiscalyear.Repository
}

func (l planningLock) TargetsLocked(ctx context.Context) (bool, error) {
	state, err := l.repo.State(ctx)
	if err != nil {
		return false, err
	}
	return state.PlanningTargetsLocked, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	workOrderRepo := workorders.NewRepository(pool)
	fiscalRepo := fiscalyear.NewRepository(pool)
	workshopRepo := workshops.NewRepository(pool)
	workshopService := workshops.NewService(workshopRepo, planningLock{repo: fiscalRepo}, logger)
	costRepo := costs.NewRepository(pool)
	costService := costs.NewService(costRepo, workOrderRepo, workshopService, logger)
	costService.WithCache(costs.NewCache(redisClient, 10*time.Minute))
	requisitionRepo := requisitions.NewRepository(pool)

	warmupJob := jobs.NewRollupWarmupJob(costService, workshopService, logger, metrics)
	staleJob := jobs.NewStaleRequisitionScanJob(requisitionRepo, logger, metrics)

	warmupTask, err := jobs.NewRollupWarmupTask(time.Now().UTC())
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	staleTask, err := jobs.NewStaleRequisitionTask(48)
	if err != nil {
		logger.Error("build stale scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRollupWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskStaleRequisitionScan, Handler: staleJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 */6 * * *", Task: staleTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
