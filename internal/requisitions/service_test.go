package requisitions

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tana-fms/tana-fms/internal/shared"
)

// memRepo is an in-memory RepositoryPort for service tests. A mutex stands in
// for the row lock so concurrent approvals serialize like FOR UPDATE would.
type memRepo struct {
	mu   sync.Mutex
	reqs map[uuid.UUID]*Requisition
}

func newMemRepo() *memRepo {
	return &memRepo{reqs: map[uuid.UUID]*Requisition{}}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, (*memTx)(m))
}

func (m *memRepo) Create(_ context.Context, req Requisition) (Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := req
	m.reqs[req.ID] = &cp
	return req, nil
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.reqs[id]
	if !ok {
		return Requisition{}, shared.ErrNotFound
	}
	return *req, nil
}

func (m *memRepo) ListByWorkOrder(_ context.Context, workOrderID uuid.UUID) ([]Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Requisition
	for _, req := range m.reqs {
		if req.WorkOrderID == workOrderID {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (m *memRepo) ListByStatus(_ context.Context, status Status, _ int) ([]Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Requisition
	for _, req := range m.reqs {
		if req.Status == status {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (m *memRepo) ListStaleSince(_ context.Context, status Status, olderThan time.Time) ([]Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Requisition
	for _, req := range m.reqs {
		if req.Status == status && req.UpdatedAt.Before(olderThan) {
			out = append(out, *req)
		}
	}
	return out, nil
}

type memTx memRepo

func (t *memTx) GetForUpdate(_ context.Context, id uuid.UUID) (Requisition, error) {
	req, ok := t.reqs[id]
	if !ok {
		return Requisition{}, shared.ErrNotFound
	}
	cp := *req
	cp.Lines = append([]Line(nil), req.Lines...)
	return cp, nil
}

func (t *memTx) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	req, ok := t.reqs[id]
	if !ok {
		return shared.ErrNotFound
	}
	req.Status = status
	req.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) SetForemanApproval(_ context.Context, id uuid.UUID, by uuid.UUID, at time.Time) error {
	req := t.reqs[id]
	req.ForemanApprovedBy = &by
	req.ForemanApprovedAt = &at
	return nil
}

func (t *memTx) SetStoreResolution(_ context.Context, id uuid.UUID, by uuid.UUID, at time.Time) error {
	req := t.reqs[id]
	req.StoreResolvedBy = &by
	req.StoreResolvedAt = &at
	return nil
}

func (t *memTx) SetFulfilled(_ context.Context, id uuid.UUID, at time.Time) error {
	t.reqs[id].FulfilledAt = &at
	return nil
}

func (t *memTx) UpdateLine(_ context.Context, lineID uuid.UUID, status LineStatus, qtyApproved int) error {
	for _, req := range t.reqs {
		for i := range req.Lines {
			if req.Lines[i].ID == lineID {
				req.Lines[i].Status = status
				req.Lines[i].QtyApproved = qtyApproved
				return nil
			}
		}
	}
	return shared.ErrNotFound
}

// recordingNotifier captures lifecycle callbacks.
type recordingNotifier struct {
	mu       sync.Mutex
	opened   []RequisitionOpenedEvent
	resolved []LinesResolvedEvent
}

func (n *recordingNotifier) RequisitionOpened(_ context.Context, evt RequisitionOpenedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.opened = append(n.opened, evt)
	return nil
}

func (n *recordingNotifier) LinesResolved(_ context.Context, evt LinesResolvedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, evt)
	return nil
}

// fakeStock serves availability from a map and records issues.
type fakeStock struct {
	mu     sync.Mutex
	onHand map[uuid.UUID]int
	issued map[uuid.UUID]int
}

func (s *fakeStock) AvailableQty(_ context.Context, partID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onHand[partID], nil
}

func (s *fakeStock) RecordIssue(_ context.Context, partID uuid.UUID, _ uuid.UUID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.issued == nil {
		s.issued = map[uuid.UUID]int{}
	}
	s.onHand[partID] -= qty
	s.issued[partID] += qty
	return nil
}

// fakeApprovals keeps the approval trail in memory.
type fakeApprovals struct {
	mu   sync.Mutex
	logs []shared.ApprovalLog
}

func (a *fakeApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *fakeApprovals) List(_ context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []shared.ApprovalLog
	for _, l := range a.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

type openGuard struct{ err error }

func (g openGuard) CheckNotClosing(context.Context) error { return g.err }

func newTestService(repo *memRepo, stock StockPort, notifier WorkOrderNotifier) *Service {
	return NewService(repo, stock, notifier, openGuard{}, nil, slog.Default())
}

func actor(role shared.Role) shared.Actor {
	return shared.Actor{ID: uuid.New(), Name: "tester", Role: role}
}

func submitOne(t *testing.T, svc *Service, lines ...Line) Requisition {
	t.Helper()
	if len(lines) == 0 {
		lines = []Line{{Description: "hydraulic hose", QtyRequested: 2}}
	}
	req, err := svc.Submit(context.Background(), SubmitInput{
		WorkOrderID: uuid.New(),
		Lines:       lines,
	}, actor(shared.RoleTeamMember))
	require.NoError(t, err)
	return req
}

func TestSubmitNotifiesWorkOrder(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newTestService(newMemRepo(), nil, notifier)

	req := submitOne(t, svc)
	require.Equal(t, StatusPendingForeman, req.Status)
	require.Len(t, req.Lines, 1)
	require.Equal(t, LinePending, req.Lines[0].Status)
	require.Len(t, notifier.opened, 1)
	require.Equal(t, req.WorkOrderID, notifier.opened[0].WorkOrderID)
}

func TestSubmitRejectsEmptyLines(t *testing.T) {
	svc := newTestService(newMemRepo(), nil, &recordingNotifier{})
	_, err := svc.Submit(context.Background(), SubmitInput{WorkOrderID: uuid.New()}, actor(shared.RoleTeamMember))
	require.True(t, shared.IsValidation(err))
}

func TestForemanApproveMovesToStore(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil, &recordingNotifier{})
	req := submitOne(t, svc)

	got, err := svc.ApproveForeman(context.Background(), req.ID, actor(shared.RoleForeman))
	require.NoError(t, err)
	require.Equal(t, StatusPendingStore, got.Status)
	require.NotNil(t, got.ForemanApprovedAt)
}

func TestForemanApproveWrongRole(t *testing.T) {
	svc := newTestService(newMemRepo(), nil, &recordingNotifier{})
	req := submitOne(t, svc)

	_, err := svc.ApproveForeman(context.Background(), req.ID, actor(shared.RoleTeamMember))
	require.True(t, shared.IsUnauthorized(err))
}

func TestForemanRejectRequiresNotes(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newTestService(newMemRepo(), nil, notifier)
	req := submitOne(t, svc)

	_, err := svc.RejectForeman(context.Background(), req.ID, actor(shared.RoleForeman), "")
	require.True(t, shared.IsValidation(err))

	got, err := svc.RejectForeman(context.Background(), req.ID, actor(shared.RoleForeman), "duplicate request")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, got.Status)
	require.Len(t, notifier.resolved, 1)
	require.Equal(t, StatusRejected, notifier.resolved[0].Outcome)
}

func TestStoreReviewDerivesAggregate(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newTestService(newMemRepo(), nil, notifier)
	req := submitOne(t, svc,
		Line{Description: "oil filter", QtyRequested: 4},
		Line{Description: "fan belt", QtyRequested: 1},
	)
	_, err := svc.ApproveForeman(context.Background(), req.ID, actor(shared.RoleForeman))
	require.NoError(t, err)

	fresh, err := svc.Get(context.Background(), req.ID)
	require.NoError(t, err)

	got, err := svc.ApproveStore(context.Background(), req.ID, []LineDecision{
		{LineID: fresh.Lines[0].ID, Status: LineApproved, QtyApproved: 3},
		{LineID: fresh.Lines[1].ID, Status: LineRejected},
	}, "", actor(shared.RoleStoreManager))
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyApproved, got.Status)
	require.Equal(t, 3, got.Lines[0].QtyApproved)
	require.Equal(t, 0, got.Lines[1].QtyApproved)
	require.Len(t, notifier.resolved, 1)
	require.Equal(t, StatusPartiallyApproved, notifier.resolved[0].Outcome)
}

func TestStoreReviewCarriesRemarksIntoTrail(t *testing.T) {
	approvals := &fakeApprovals{}
	svc := NewService(newMemRepo(), nil, &recordingNotifier{}, openGuard{}, approvals, slog.Default())
	req := submitOne(t, svc)
	_, err := svc.ApproveForeman(context.Background(), req.ID, actor(shared.RoleForeman))
	require.NoError(t, err)

	fresh, err := svc.Get(context.Background(), req.ID)
	require.NoError(t, err)

	_, err = svc.ApproveStore(context.Background(), req.ID, []LineDecision{
		{LineID: fresh.Lines[0].ID, Status: LineApproved},
	}, "issued from the central store", actor(shared.RoleStoreManager))
	require.NoError(t, err)

	trail, err := svc.History(context.Background(), req.ID)
	require.NoError(t, err)
	require.NotEmpty(t, trail)
	last := trail[len(trail)-1]
	require.Equal(t, "store", last.Stage)
	require.Equal(t, "issued from the central store", last.Note)
}

func TestStoreReviewBackordersShortStock(t *testing.T) {
	notifier := &recordingNotifier{}
	partID := uuid.New()
	stock := &fakeStock{onHand: map[uuid.UUID]int{partID: 1}}
	svc := newTestService(newMemRepo(), stock, notifier)
	req := submitOne(t, svc, Line{PartID: &partID, PartName: "brake pad", QtyRequested: 4})
	_, err := svc.ApproveForeman(context.Background(), req.ID, actor(shared.RoleForeman))
	require.NoError(t, err)

	fresh, err := svc.Get(context.Background(), req.ID)
	require.NoError(t, err)

	got, err := svc.ApproveStore(context.Background(), req.ID, []LineDecision{
		{LineID: fresh.Lines[0].ID, Status: LineApproved},
	}, "", actor(shared.RoleStoreManager))
	require.NoError(t, err)
	require.Equal(t, StatusBackordered, got.Status)
	require.Equal(t, LineBackordered, got.Lines[0].Status)
	require.Len(t, notifier.resolved, 1)
	require.Equal(t, StatusBackordered, notifier.resolved[0].Outcome)
}

func TestStoreReviewIssuesStock(t *testing.T) {
	partID := uuid.New()
	stock := &fakeStock{onHand: map[uuid.UUID]int{partID: 10}}
	svc := newTestService(newMemRepo(), stock, &recordingNotifier{})
	req := submitOne(t, svc, Line{PartID: &partID, PartName: "air filter", QtyRequested: 3})
	_, err := svc.ApproveForeman(context.Background(), req.ID, actor(shared.RoleForeman))
	require.NoError(t, err)

	fresh, err := svc.Get(context.Background(), req.ID)
	require.NoError(t, err)

	got, err := svc.ApproveStore(context.Background(), req.ID, []LineDecision{
		{LineID: fresh.Lines[0].ID, Status: LineApproved},
	}, "", actor(shared.RoleStoreManager))
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.Equal(t, 3, stock.issued[partID])
	require.Equal(t, 7, stock.onHand[partID])
}

func TestStoreReviewEveryLineNeedsDecision(t *testing.T) {
	svc := newTestService(newMemRepo(), nil, &recordingNotifier{})
	req := submitOne(t, svc,
		Line{Description: "oil filter", QtyRequested: 1},
		Line{Description: "fan belt", QtyRequested: 1},
	)
	_, err := svc.ApproveForeman(context.Background(), req.ID, actor(shared.RoleForeman))
	require.NoError(t, err)

	fresh, err := svc.Get(context.Background(), req.ID)
	require.NoError(t, err)

	_, err = svc.ApproveStore(context.Background(), req.ID, []LineDecision{
		{LineID: fresh.Lines[0].ID, Status: LineApproved},
	}, "", actor(shared.RoleStoreManager))
	require.True(t, shared.IsValidation(err))
}

func TestDoubleApprovalIsAlreadyResolved(t *testing.T) {
	svc := newTestService(newMemRepo(), nil, &recordingNotifier{})
	req := submitOne(t, svc)
	foreman := actor(shared.RoleForeman)

	_, err := svc.ApproveForeman(context.Background(), req.ID, foreman)
	require.NoError(t, err)

	fresh, err := svc.Get(context.Background(), req.ID)
	require.NoError(t, err)

	_, err = svc.ApproveStore(context.Background(), req.ID, []LineDecision{
		{LineID: fresh.Lines[0].ID, Status: LineApproved},
	}, "", actor(shared.RoleStoreManager))
	require.NoError(t, err)

	// Second decision on a resolved requisition is a modeled outcome.
	_, err = svc.ApproveStore(context.Background(), req.ID, []LineDecision{
		{LineID: fresh.Lines[0].ID, Status: LineRejected},
	}, "", actor(shared.RoleStoreManager))
	var are *shared.AlreadyResolvedError
	require.ErrorAs(t, err, &are)
	require.Equal(t, string(StatusApproved), are.State)
}

func TestConcurrentStoreApprovalsOneWins(t *testing.T) {
	svc := newTestService(newMemRepo(), nil, &recordingNotifier{})
	req := submitOne(t, svc)
	_, err := svc.ApproveForeman(context.Background(), req.ID, actor(shared.RoleForeman))
	require.NoError(t, err)

	fresh, err := svc.Get(context.Background(), req.ID)
	require.NoError(t, err)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ApproveStore(context.Background(), req.ID, []LineDecision{
				{LineID: fresh.Lines[0].ID, Status: LineApproved},
			}, "", actor(shared.RoleStoreManager))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, already int
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		var are *shared.AlreadyResolvedError
		require.ErrorAs(t, err, &are)
		already++
	}
	require.Equal(t, 1, wins)
	require.Equal(t, attempts-1, already)
}

func TestMarkFulfilledReleasesOrder(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newTestService(newMemRepo(), nil, notifier)
	req := submitOne(t, svc)
	_, err := svc.ApproveForeman(context.Background(), req.ID, actor(shared.RoleForeman))
	require.NoError(t, err)

	fresh, err := svc.Get(context.Background(), req.ID)
	require.NoError(t, err)

	_, err = svc.ApproveStore(context.Background(), req.ID, []LineDecision{
		{LineID: fresh.Lines[0].ID, Status: LineBackordered},
	}, "", actor(shared.RoleStoreManager))
	require.NoError(t, err)

	got, err := svc.MarkFulfilled(context.Background(), req.ID, actor(shared.RoleStoreManager))
	require.NoError(t, err)
	require.Equal(t, StatusFulfilled, got.Status)
	require.NotNil(t, got.FulfilledAt)
	require.Equal(t, StatusFulfilled, notifier.resolved[len(notifier.resolved)-1].Outcome)

	_, err = svc.MarkFulfilled(context.Background(), req.ID, actor(shared.RoleStoreManager))
	var are *shared.AlreadyResolvedError
	require.ErrorAs(t, err, &are)
}

func TestMutationsBlockedDuringClosure(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, &recordingNotifier{}, openGuard{err: shared.ErrClosureInProgress}, nil, slog.Default())

	_, err := svc.Submit(context.Background(), SubmitInput{
		WorkOrderID: uuid.New(),
		Lines:       []Line{{Description: "hose", QtyRequested: 1}},
	}, actor(shared.RoleTeamMember))
	require.ErrorIs(t, err, shared.ErrClosureInProgress)
}
