package workorders

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tana-fms/tana-fms/internal/requisitions"
	"github.com/tana-fms/tana-fms/internal/shared"
)

// memRepo is an in-memory RepositoryPort for service tests.
type memRepo struct {
	orders map[uuid.UUID]*WorkOrder
	events map[uuid.UUID][]TimeEvent
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[uuid.UUID]*WorkOrder{}, events: map[uuid.UUID][]TimeEvent{}}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, (*memTx)(m))
}

func (m *memRepo) Create(_ context.Context, wo WorkOrder) (WorkOrder, error) {
	cp := wo
	m.orders[wo.ID] = &cp
	return wo, nil
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (WorkOrder, error) {
	wo, ok := m.orders[id]
	if !ok {
		return WorkOrder{}, shared.ErrNotFound
	}
	return *wo, nil
}

func (m *memRepo) ListByStatus(_ context.Context, status Status, _ int) ([]WorkOrder, error) {
	var out []WorkOrder
	for _, wo := range m.orders {
		if wo.Status == status {
			out = append(out, *wo)
		}
	}
	return out, nil
}

func (m *memRepo) ListTimeEvents(_ context.Context, id uuid.UUID) ([]TimeEvent, error) {
	return append([]TimeEvent(nil), m.events[id]...), nil
}

type memTx memRepo

func (t *memTx) GetForUpdate(ctx context.Context, id uuid.UUID) (WorkOrder, error) {
	return (*memRepo)(t).Get(ctx, id)
}

func (t *memTx) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	wo, ok := t.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	wo.Status = status
	return nil
}

func (t *memTx) SetStarted(_ context.Context, id uuid.UUID, at time.Time) error {
	t.orders[id].StartedAt = &at
	return nil
}

func (t *memTx) SetCompleted(_ context.Context, id uuid.UUID, at *time.Time) error {
	t.orders[id].CompletedAt = at
	return nil
}

func (t *memTx) SetTimerPaused(_ context.Context, id uuid.UUID, paused bool, reason string) error {
	t.orders[id].TimerPaused = paused
	t.orders[id].PauseReason = reason
	return nil
}

func (t *memTx) SetActualHours(_ context.Context, id uuid.UUID, hours decimal.Decimal) error {
	t.orders[id].ActualHours = hours
	return nil
}

func (t *memTx) InsertTimeEvent(_ context.Context, ev TimeEvent) error {
	t.events[ev.WorkOrderID] = append(t.events[ev.WorkOrderID], ev)
	return nil
}

func (t *memTx) ListTimeEvents(ctx context.Context, id uuid.UUID) ([]TimeEvent, error) {
	return (*memRepo)(t).ListTimeEvents(ctx, id)
}

type openGuard struct{ err error }

func (g openGuard) CheckNotClosing(context.Context) error { return g.err }

func testService(t *testing.T, repo *memRepo) *Service {
	t.Helper()
	return NewService(repo, openGuard{}, nil, slog.Default())
}

func actor(role shared.Role) shared.Actor {
	return shared.Actor{ID: uuid.New(), Name: "tester", Role: role}
}

func seedOrder(repo *memRepo, status Status) *WorkOrder {
	wo := &WorkOrder{
		ID:          uuid.New(),
		Number:      "WO-2025-1",
		EquipmentID: uuid.New(),
		WorkshopID:  uuid.New(),
		Status:      status,
		WorkType:    "mechanical",
		Description: "gearbox overhaul",
		CreatedAt:   time.Now().UTC(),
	}
	repo.orders[wo.ID] = wo
	return wo
}

func TestCreateRequiresDescription(t *testing.T) {
	svc := testService(t, newMemRepo())
	_, err := svc.Create(context.Background(), CreateInput{
		EquipmentID: uuid.New(),
		WorkType:    "mechanical",
	}, actor(shared.RoleForeman))
	require.True(t, shared.IsValidation(err))
}

func TestCreateStartsPendingApproval(t *testing.T) {
	repo := newMemRepo()
	svc := testService(t, repo)
	wo, err := svc.Create(context.Background(), CreateInput{
		EquipmentID: uuid.New(),
		WorkshopID:  uuid.New(),
		WorkType:    "electrical",
		Description: "alternator replacement",
	}, actor(shared.RoleForeman))
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, wo.Status)
	require.Contains(t, wo.Number, "WO-")
	require.Equal(t, "medium", wo.Priority)
}

func TestTransitionIllegalEdge(t *testing.T) {
	repo := newMemRepo()
	svc := testService(t, repo)
	wo := seedOrder(repo, StatusPendingApproval)

	_, err := svc.Transition(context.Background(), wo.ID, StatusCompleted, actor(shared.RoleAdmin), "")
	var ite *shared.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	require.Equal(t, StatusPendingApproval, repo.orders[wo.ID].Status)
}

func TestTransitionRoleRestricted(t *testing.T) {
	repo := newMemRepo()
	svc := testService(t, repo)
	wo := seedOrder(repo, StatusPendingVerification)

	_, err := svc.Transition(context.Background(), wo.ID, StatusPendingSupervisor, actor(shared.RoleTeamMember), "")
	require.True(t, shared.IsUnauthorized(err))

	_, err = svc.Transition(context.Background(), wo.ID, StatusPendingSupervisor, actor(shared.RoleVerifier), "")
	require.NoError(t, err)
}

func TestRejectionRequiresNotes(t *testing.T) {
	repo := newMemRepo()
	svc := testService(t, repo)
	wo := seedOrder(repo, StatusPendingVerification)

	_, err := svc.Transition(context.Background(), wo.ID, StatusRejected, actor(shared.RoleVerifier), "  ")
	require.True(t, shared.IsValidation(err))

	got, err := svc.Transition(context.Background(), wo.ID, StatusRejected, actor(shared.RoleVerifier), "weld seam failed inspection")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, got.Status)
	require.Nil(t, got.CompletedAt)
	require.True(t, got.TimerPaused)
}

func TestTransitionBlockedDuringClosure(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, openGuard{err: shared.ErrClosureInProgress}, nil, slog.Default())
	wo := seedOrder(repo, StatusActive)

	_, err := svc.Transition(context.Background(), wo.ID, StatusInProgress, actor(shared.RoleForeman), "")
	require.ErrorIs(t, err, shared.ErrClosureInProgress)
}

func TestTransitionBlockedWhileArchiving(t *testing.T) {
	repo := newMemRepo()
	svc := testService(t, repo)
	wo := seedOrder(repo, StatusActive)
	wo.ArchiveState = ArchiveStateInProgress

	_, err := svc.Transition(context.Background(), wo.ID, StatusInProgress, actor(shared.RoleForeman), "")
	require.ErrorIs(t, err, shared.ErrClosureInProgress)
}

func TestStartRecordsStartEventOnce(t *testing.T) {
	repo := newMemRepo()
	svc := testService(t, repo)
	wo := seedOrder(repo, StatusActive)

	_, err := svc.Transition(context.Background(), wo.ID, StatusInProgress, actor(shared.RoleTeamMember), "")
	require.NoError(t, err)
	require.NotNil(t, repo.orders[wo.ID].StartedAt)
	require.Len(t, repo.events[wo.ID], 1)
	require.Equal(t, EventStart, repo.events[wo.ID][0].Event)
}

func TestAwaitingPartsRoundTrip(t *testing.T) {
	repo := newMemRepo()
	svc := testService(t, repo)
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	clock := base
	svc.WithNow(func() time.Time { return clock })

	wo := seedOrder(repo, StatusActive)
	team := actor(shared.RoleTeamMember)

	_, err := svc.Transition(context.Background(), wo.ID, StatusInProgress, team, "")
	require.NoError(t, err)

	clock = base.Add(30 * time.Minute)
	require.NoError(t, svc.RequisitionOpened(context.Background(), requisitions.RequisitionOpenedEvent{
		WorkOrderID: wo.ID, RequisitionID: uuid.New(),
	}))
	require.Equal(t, StatusAwaitingParts, repo.orders[wo.ID].Status)
	require.True(t, repo.orders[wo.ID].TimerPaused)
	require.Equal(t, PauseReasonAwaitingParts, repo.orders[wo.ID].PauseReason)

	// Duplicate callback is a no-op.
	require.NoError(t, svc.MarkAwaitingParts(context.Background(), wo.ID, uuid.New()))
	var pauses int
	for _, ev := range repo.events[wo.ID] {
		if ev.Event == EventPause {
			pauses++
		}
	}
	require.Equal(t, 1, pauses)

	clock = base.Add(50 * time.Minute)
	require.NoError(t, svc.LinesResolved(context.Background(), requisitions.LinesResolvedEvent{
		WorkOrderID: wo.ID, Outcome: requisitions.StatusApproved,
	}))
	require.Equal(t, StatusInProgress, repo.orders[wo.ID].Status)
	require.False(t, repo.orders[wo.ID].TimerPaused)

	clock = base.Add(80 * time.Minute)
	d, err := svc.ElapsedFor(context.Background(), wo.ID)
	require.NoError(t, err)
	require.Equal(t, 60*time.Minute, d)
}

func TestBackorderedMovesToWaitingPurchase(t *testing.T) {
	repo := newMemRepo()
	svc := testService(t, repo)
	wo := seedOrder(repo, StatusAwaitingParts)
	wo.TimerPaused = true
	wo.PauseReason = PauseReasonAwaitingParts

	require.NoError(t, svc.LinesResolved(context.Background(), requisitions.LinesResolvedEvent{
		WorkOrderID: wo.ID, Outcome: requisitions.StatusBackordered,
	}))
	require.Equal(t, StatusWaitingPurchase, repo.orders[wo.ID].Status)
	require.Equal(t, PauseReasonWaitingPurchase, repo.orders[wo.ID].PauseReason)
}

func TestCompleteFreezesActualHours(t *testing.T) {
	repo := newMemRepo()
	svc := testService(t, repo)
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	clock := base
	svc.WithNow(func() time.Time { return clock })

	wo := seedOrder(repo, StatusActive)
	team := actor(shared.RoleTeamMember)

	_, err := svc.Transition(context.Background(), wo.ID, StatusInProgress, team, "")
	require.NoError(t, err)

	clock = base.Add(2 * time.Hour)
	_, err = svc.Transition(context.Background(), wo.ID, StatusPendingVerification, team, "done")
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), wo.ID, StatusPendingSupervisor, actor(shared.RoleVerifier), "")
	require.NoError(t, err)

	clock = base.Add(3 * time.Hour)
	got, err := svc.Transition(context.Background(), wo.ID, StatusCompleted, actor(shared.RoleSupervisor), "")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	// Clock stops when the team marks work done, not at supervisor sign-off.
	require.True(t, got.ActualHours.Equal(decimal.NewFromInt(2)))

	_, err = svc.Transition(context.Background(), wo.ID, StatusInProgress, actor(shared.RoleAdmin), "")
	var ite *shared.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
}
