package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRollupWarmup pre-computes quarterly rollups into the cache.
	TaskRollupWarmup = "costs:rollup_warmup"
	// TaskStaleRequisitionScan flags requisitions stuck in an approval stage.
	TaskStaleRequisitionScan = "requisitions:stale_scan"
)

// RollupWarmupPayload carries scheduling metadata for the warmup run.
type RollupWarmupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewRollupWarmupTask constructs an Asynq task for the rollup warmup.
func NewRollupWarmupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(RollupWarmupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRollupWarmup, body, asynq.Queue(QueueDefault)), nil
}

// StaleRequisitionPayload configures the age threshold for the scan.
type StaleRequisitionPayload struct {
	MaxAgeHours int `json:"max_age_hours"`
}

// NewStaleRequisitionTask constructs an Asynq task for the stale scan.
func NewStaleRequisitionTask(maxAgeHours int) (*asynq.Task, error) {
	body, err := json.Marshal(StaleRequisitionPayload{MaxAgeHours: maxAgeHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStaleRequisitionScan, body, asynq.Queue(QueueDefault)), nil
}
