package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tana-fms/tana-fms/internal/app"
	"github.com/tana-fms/tana-fms/internal/costs"
	"github.com/tana-fms/tana-fms/internal/fiscalyear"
	"github.com/tana-fms/tana-fms/internal/inventory"
	"github.com/tana-fms/tana-fms/internal/observability"
	"github.com/tana-fms/tana-fms/internal/platform/cache"
	"github.com/tana-fms/tana-fms/internal/platform/db"
	"github.com/tana-fms/tana-fms/internal/rbac"
	"github.com/tana-fms/tana-fms/internal/requisitions"
	"github.com/tana-fms/tana-fms/internal/shared"
	"github.com/tana-fms/tana-fms/internal/workorders"
	"github.com/tana-fms/tana-fms/internal/workshops"
	"github.com/tana-fms/tana-fms/jobs"
)

// planningLock answers the workshop target lock from fiscal year state. It
// lives here to break the construction cycle between the workshop, cost and
// fiscal year services.
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
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	closureGuard := shared.NewClosureGuard(redisClient, cfg.ClosureGuardTTL)
	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	rbacMiddleware := rbac.Middleware{Logger: logger}
	metrics := observability.NewMetrics()

	workOrderRepo := workorders.NewRepository(pool)
	workOrderService := workorders.NewService(workOrderRepo, closureGuard, auditLogger, logger)
	workOrderService.WithMetrics(metrics)

	partsStore := inventory.NewStore(pool)

	requisitionRepo := requisitions.NewRepository(pool)
	requisitionService := requisitions.NewService(requisitionRepo, partsStore, workOrderService, closureGuard, approvalRecorder, logger)
	requisitionService.WithMetrics(metrics)

	fiscalRepo := fiscalyear.NewRepository(pool)

	workshopRepo := workshops.NewRepository(pool)
	workshopService := workshops.NewService(workshopRepo, planningLock{repo: fiscalRepo}, logger)

	costRepo := costs.NewRepository(pool)
	costService := costs.NewService(costRepo, workOrderRepo, workshopService, logger)
	costService.WithCache(costs.NewCache(redisClient, 10*time.Minute))

	fiscalService := fiscalyear.NewService(fiscalRepo, closureGuard, workOrderRepo, costService, partsStore, auditLogger, logger)
	fiscalService.WithMetrics(metrics)

	workOrderHandler := workorders.NewHandler(logger, workOrderService, rbacMiddleware)
	requisitionHandler := requisitions.NewHandler(logger, requisitionService, rbacMiddleware)
	costHandler := costs.NewHandler(logger, costService, rbacMiddleware)
	workshopHandler := workshops.NewHandler(logger, workshopService, rbacMiddleware)
	fiscalHandler := fiscalyear.NewHandler(logger, fiscalService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		RBACMiddleware:     rbacMiddleware,
		WorkOrderHandler:   workOrderHandler,
		RequisitionHandler: requisitionHandler,
		CostHandler:        costHandler,
		WorkshopHandler:    workshopHandler,
		FiscalYearHandler:  fiscalHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
