package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/tana-fms/tana-fms/internal/costs"
	"github.com/tana-fms/tana-fms/internal/ethcal"
	"github.com/tana-fms/tana-fms/internal/observability"
	"github.com/tana-fms/tana-fms/internal/workshops"
)

// RollupSource computes quarterly rollups for a workshop or the whole fleet.
// The cost service populates its cache on every computation, so calling it is
// enough to warm the cache.
type RollupSource interface {
	RollupByQuarter(ctx context.Context, workshopID *uuid.UUID, ethiopianYear int, window *costs.Window) ([]costs.QuarterRollup, error)
}

// WorkshopLister enumerates the workshops to warm.
type WorkshopLister interface {
	List(ctx context.Context) ([]workshops.Workshop, error)
}

// RollupWarmupJob pre-computes the current year's quarterly rollups so
// report reads do not hit the aggregate queries cold.
type RollupWarmupJob struct {
	Rollups   RollupSource
	Workshops WorkshopLister
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	clock     func() time.Time
}

// NewRollupWarmupJob wires dependencies for the warmup handler.
func NewRollupWarmupJob(rollups RollupSource, lister WorkshopLister, logger *slog.Logger, metrics *observability.Metrics) *RollupWarmupJob {
	return &RollupWarmupJob{
		Rollups:   rollups,
		Workshops: lister,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes rollup warmup tasks.
func (j *RollupWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("rollup warmup: handler not configured")
	}
	var payload RollupWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	err := j.run(ctx)
	j.record(err)
	return err
}

func (j *RollupWarmupJob) run(ctx context.Context) error {
	now := j.now()
	year := ethcal.YearOf(now)
	logger := j.logger().With(slog.Int("ethiopian_year", year))
	logger.Info("starting rollup warmup")

	shops, err := j.Workshops.List(ctx)
	if err != nil {
		logger.Error("list workshops", slog.Any("error", err))
		return err
	}

	warmed := 0
	if err := j.warmScope(ctx, nil, year); err != nil {
		logger.Error("warm fleet rollup", slog.Any("error", err))
		return err
	}
	warmed++
	for _, shop := range shops {
		id := shop.ID
		if err := j.warmScope(ctx, &id, year); err != nil {
			logger.Error("warm workshop rollup", slog.String("workshop_id", id.String()), slog.Any("error", err))
			return err
		}
		warmed++
	}

	logger.Info("completed rollup warmup", slog.Int("scopes", warmed), slog.Duration("duration", time.Since(now)))
	return nil
}

func (j *RollupWarmupJob) warmScope(ctx context.Context, workshopID *uuid.UUID, year int) error {
	scopeCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	_, err := j.Rollups.RollupByQuarter(scopeCtx, workshopID, year, nil)
	return err
}

func (j *RollupWarmupJob) record(err error) {
	if j.Metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	j.Metrics.JobsTotal.WithLabelValues(TaskRollupWarmup, result).Inc()
}

func (j *RollupWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRollupWarmup))
	}
	return slog.Default().With(slog.String("job", TaskRollupWarmup))
}

func (j *RollupWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
