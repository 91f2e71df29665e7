package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tana-fms/tana-fms/internal/costs"
	"github.com/tana-fms/tana-fms/internal/requisitions"
	"github.com/tana-fms/tana-fms/internal/workshops"
)

type fakeRollups struct {
	calls []*uuid.UUID
	years []int
}

func (f *fakeRollups) RollupByQuarter(ctx context.Context, workshopID *uuid.UUID, year int, window *costs.Window) ([]costs.QuarterRollup, error) {
	f.calls = append(f.calls, workshopID)
	f.years = append(f.years, year)
	return []costs.QuarterRollup{{
		Quarter: 1,
		Cost:    decimal.NewFromInt(100),
	}}, nil
}

type fakeWorkshops struct {
	shops []workshops.Workshop
}

func (f *fakeWorkshops) List(ctx context.Context) ([]workshops.Workshop, error) {
	return f.shops, nil
}

func TestRollupWarmupVisitsFleetAndWorkshops(t *testing.T) {
	shopID := uuid.New()
	rollups := &fakeRollups{}
	job := NewRollupWarmupJob(rollups, &fakeWorkshops{shops: []workshops.Workshop{{ID: shopID, Name: "Mechanical"}}}, nil, nil)
	job.clock = func() time.Time {
		return time.Date(2025, time.January, 10, 8, 0, 0, 0, time.UTC)
	}

	task, err := NewRollupWarmupTask(job.clock())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	// Fleet scope plus one workshop scope, both for Ethiopian year 2017.
	require.Len(t, rollups.calls, 2)
	require.Nil(t, rollups.calls[0])
	require.Equal(t, shopID, *rollups.calls[1])
	require.Equal(t, []int{2017, 2017}, rollups.years)
}

type fakeStale struct {
	byStatus map[requisitions.Status][]requisitions.Requisition
	cutoffs  []time.Time
}

func (f *fakeStale) ListStaleSince(ctx context.Context, status requisitions.Status, olderThan time.Time) ([]requisitions.Requisition, error) {
	f.cutoffs = append(f.cutoffs, olderThan)
	return f.byStatus[status], nil
}

func TestStaleRequisitionScanChecksBothStages(t *testing.T) {
	source := &fakeStale{byStatus: map[requisitions.Status][]requisitions.Requisition{
		requisitions.StatusPendingForeman: {{Number: "REQ-2017-12", Status: requisitions.StatusPendingForeman}},
		requisitions.StatusPendingStore:   {{Number: "REQ-2017-13", Status: requisitions.StatusPendingStore}},
	}}
	job := NewStaleRequisitionScanJob(source, nil, nil)
	now := time.Date(2025, time.January, 10, 8, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	task, err := NewStaleRequisitionTask(12)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, source.cutoffs, 2)
	require.Equal(t, now.Add(-12*time.Hour), source.cutoffs[0])
}

func TestStaleRequisitionScanRejectsMalformedPayload(t *testing.T) {
	job := NewStaleRequisitionScanJob(&fakeStale{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskStaleRequisitionScan, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
