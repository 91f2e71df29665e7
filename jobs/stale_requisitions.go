package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tana-fms/tana-fms/internal/observability"
	"github.com/tana-fms/tana-fms/internal/requisitions"
)

const defaultStaleAge = 48 * time.Hour

// StaleRequisitionSource lists requisitions parked in an approval stage.
type StaleRequisitionSource interface {
	ListStaleSince(ctx context.Context, status requisitions.Status, olderThan time.Time) ([]requisitions.Requisition, error)
}

// StaleRequisitionScanJob surfaces requisitions that have sat in a pending
// stage past the age threshold so the duty foreman can chase them.
type StaleRequisitionScanJob struct {
	Requisitions StaleRequisitionSource
	Logger       *slog.Logger
	Metrics      *observability.Metrics
	clock        func() time.Time
}

// NewStaleRequisitionScanJob wires dependencies for the scan handler.
func NewStaleRequisitionScanJob(source StaleRequisitionSource, logger *slog.Logger, metrics *observability.Metrics) *StaleRequisitionScanJob {
	return &StaleRequisitionScanJob{
		Requisitions: source,
		Logger:       logger,
		Metrics:      metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes stale requisition scan tasks.
func (j *StaleRequisitionScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("stale scan: handler not configured")
	}
	var payload StaleRequisitionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	maxAge := defaultStaleAge
	if payload.MaxAgeHours > 0 {
		maxAge = time.Duration(payload.MaxAgeHours) * time.Hour
	}

	err := j.run(ctx, maxAge)
	j.record(err)
	return err
}

func (j *StaleRequisitionScanJob) run(ctx context.Context, maxAge time.Duration) error {
	cutoff := j.now().Add(-maxAge)
	logger := j.logger()

	total := 0
	for _, status := range []requisitions.Status{requisitions.StatusPendingForeman, requisitions.StatusPendingStore} {
		stale, err := j.Requisitions.ListStaleSince(ctx, status, cutoff)
		if err != nil {
			logger.Error("list stale requisitions", slog.String("status", string(status)), slog.Any("error", err))
			return err
		}
		for _, req := range stale {
			logger.Warn("requisition stalled in approval",
				slog.String("requisition", req.Number),
				slog.String("status", string(req.Status)),
				slog.String("work_order_id", req.WorkOrderID.String()),
				slog.Duration("age", j.now().Sub(req.CreatedAt)))
		}
		total += len(stale)
	}

	logger.Info("completed stale requisition scan", slog.Int("stale", total), slog.Duration("max_age", maxAge))
	return nil
}

func (j *StaleRequisitionScanJob) record(err error) {
	if j.Metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	j.Metrics.JobsTotal.WithLabelValues(TaskStaleRequisitionScan, result).Inc()
}

func (j *StaleRequisitionScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStaleRequisitionScan))
	}
	return slog.Default().With(slog.String("job", TaskStaleRequisitionScan))
}

func (j *StaleRequisitionScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
