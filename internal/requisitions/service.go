package requisitions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tana-fms/tana-fms/internal/observability"
	"github.com/tana-fms/tana-fms/internal/rbac"
	"github.com/tana-fms/tana-fms/internal/shared"
)

// TxRepository exposes transactional operations on a locked requisition.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (Requisition, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	SetForemanApproval(ctx context.Context, id uuid.UUID, by uuid.UUID, at time.Time) error
	SetStoreResolution(ctx context.Context, id uuid.UUID, by uuid.UUID, at time.Time) error
	SetFulfilled(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateLine(ctx context.Context, lineID uuid.UUID, status LineStatus, qtyApproved int) error
}

// RepositoryPort describes persistence used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Create(ctx context.Context, req Requisition) (Requisition, error)
	Get(ctx context.Context, id uuid.UUID) (Requisition, error)
	ListByWorkOrder(ctx context.Context, workOrderID uuid.UUID) ([]Requisition, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]Requisition, error)
	ListStaleSince(ctx context.Context, status Status, olderThan time.Time) ([]Requisition, error)
}

// StockPort answers availability questions against the parts store.
type StockPort interface {
	AvailableQty(ctx context.Context, partID uuid.UUID) (int, error)
	RecordIssue(ctx context.Context, partID uuid.UUID, workOrderID uuid.UUID, qty int) error
}

// ClosureGuardPort rejects mutations while a year closure is in flight.
type ClosureGuardPort interface {
	CheckNotClosing(ctx context.Context) error
}

// ApprovalsPort persists and reads the approval trail.
type ApprovalsPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// Service runs the two-stage requisition approval workflow.
type Service struct {
	repo      RepositoryPort
	stock     StockPort
	notifier  WorkOrderNotifier
	guard     ClosureGuardPort
	approvals ApprovalsPort
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the requisition engine. notifier may not be nil: the
// work order lifecycle depends on these callbacks.
func NewService(repo RepositoryPort, stock StockPort, notifier WorkOrderNotifier, guard ClosureGuardPort, approvals ApprovalsPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, stock: stock, notifier: notifier, guard: guard, approvals: approvals, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches the resolution counter.
func (s *Service) WithMetrics(m *observability.Metrics) {
	s.metrics = m
}

// SubmitInput captures a new parts request.
type SubmitInput struct {
	WorkOrderID uuid.UUID
	WorkshopID  uuid.UUID
	Remarks     string
	Lines       []Line
}

// Submit opens a requisition in pending_foreman and notifies the work order
// lifecycle so the blocked order pauses its timer.
func (s *Service) Submit(ctx context.Context, in SubmitInput, actor shared.Actor) (Requisition, error) {
	if err := rbac.Authorize(actor, rbac.ActionSubmitRequisition); err != nil {
		return Requisition{}, err
	}
	if err := s.guard.CheckNotClosing(ctx); err != nil {
		return Requisition{}, err
	}
	if in.WorkOrderID == uuid.Nil {
		return Requisition{}, shared.Validationf("work_order_id", "required")
	}
	if err := validateLines(in.Lines); err != nil {
		return Requisition{}, err
	}
	now := s.now().UTC()
	req := Requisition{
		ID:          uuid.New(),
		Number:      fmt.Sprintf("REQ-%d-%d", now.Year(), now.UnixNano()%1_000_000),
		WorkOrderID: in.WorkOrderID,
		WorkshopID:  in.WorkshopID,
		Status:      StatusPendingForeman,
		RequestedBy: actor.ID,
		Remarks:     in.Remarks,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for i := range in.Lines {
		l := in.Lines[i]
		l.ID = uuid.New()
		l.RequisitionID = req.ID
		l.LineNo = i + 1
		l.Status = LinePending
		l.QtyApproved = 0
		req.Lines = append(req.Lines, l)
	}
	created, err := s.repo.Create(ctx, req)
	if err != nil {
		return Requisition{}, err
	}
	if err := s.notifier.RequisitionOpened(ctx, RequisitionOpenedEvent{WorkOrderID: req.WorkOrderID, RequisitionID: req.ID}); err != nil {
		s.logger.Warn("notify work order of opened requisition",
			slog.String("requisition_id", req.ID.String()), slog.Any("error", err))
	}
	return created, nil
}

// Get loads a requisition with its lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Requisition, error) {
	return s.repo.Get(ctx, id)
}

// ListByWorkOrder returns all requisitions of a work order.
func (s *Service) ListByWorkOrder(ctx context.Context, workOrderID uuid.UUID) ([]Requisition, error) {
	return s.repo.ListByWorkOrder(ctx, workOrderID)
}

// History returns the recorded approval decisions of a requisition in the
// order they were taken.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return nil, nil
	}
	return s.approvals.List(ctx, "requisitions", id)
}

// ApproveForeman moves a pending_foreman requisition to the store stage.
func (s *Service) ApproveForeman(ctx context.Context, id uuid.UUID, actor shared.Actor) (Requisition, error) {
	if err := rbac.Authorize(actor, rbac.ActionApproveForemanStage); err != nil {
		return Requisition{}, err
	}
	if err := s.guard.CheckNotClosing(ctx); err != nil {
		return Requisition{}, err
	}
	var result Requisition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if resolved(req.Status) {
			return &shared.AlreadyResolvedError{Entity: "requisition", ID: id.String(), State: string(req.Status)}
		}
		if req.Status != StatusPendingForeman {
			return &shared.InvalidTransitionError{Entity: "requisition", ID: id.String(), From: string(req.Status), To: string(StatusPendingStore)}
		}
		now := s.now().UTC()
		if err := tx.SetForemanApproval(ctx, id, actor.ID, now); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, StatusPendingStore); err != nil {
			return err
		}
		req.Status = StatusPendingStore
		req.ForemanApprovedBy = &actor.ID
		req.ForemanApprovedAt = &now
		result = req
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordApproval(ctx, actor, id, "foreman", shared.ApprovalApprove, "")
	return result, nil
}

// RejectForeman terminates a pending_foreman requisition. Notes are required
// and the blocked work order is released.
func (s *Service) RejectForeman(ctx context.Context, id uuid.UUID, actor shared.Actor, notes string) (Requisition, error) {
	if err := rbac.Authorize(actor, rbac.ActionApproveForemanStage); err != nil {
		return Requisition{}, err
	}
	return s.reject(ctx, id, actor, notes, StatusPendingForeman, "foreman")
}

// LineDecision is the store manager's verdict on one line.
type LineDecision struct {
	LineID      uuid.UUID
	Status      LineStatus
	QtyApproved int
}

// ApproveStore applies per-line decisions at the store stage. Every line must
// receive a terminal decision in one call; the aggregate status is derived
// from the lines, never set directly. Approved lines are checked against
// on-hand stock and issued from it.
func (s *Service) ApproveStore(ctx context.Context, id uuid.UUID, decisions []LineDecision, remarks string, actor shared.Actor) (Requisition, error) {
	if err := rbac.Authorize(actor, rbac.ActionApproveStoreStage); err != nil {
		return Requisition{}, err
	}
	if err := s.guard.CheckNotClosing(ctx); err != nil {
		return Requisition{}, err
	}
	byLine := make(map[uuid.UUID]LineDecision, len(decisions))
	for _, d := range decisions {
		if d.Status == LinePending {
			return Requisition{}, shared.Validationf("decisions", "line %s: pending is not a decision", d.LineID)
		}
		byLine[d.LineID] = d
	}

	var result Requisition
	var outcome Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if resolved(req.Status) {
			return &shared.AlreadyResolvedError{Entity: "requisition", ID: id.String(), State: string(req.Status)}
		}
		if req.Status != StatusPendingStore {
			return &shared.InvalidTransitionError{Entity: "requisition", ID: id.String(), From: string(req.Status), To: string(StatusApproved)}
		}
		now := s.now().UTC()
		for i := range req.Lines {
			line := &req.Lines[i]
			d, ok := byLine[line.ID]
			if !ok {
				return shared.Validationf("decisions", "line %d has no decision", line.LineNo)
			}
			qty := d.QtyApproved
			if d.Status == LineApproved {
				if qty <= 0 {
					qty = line.QtyRequested
				}
				if qty > line.QtyRequested {
					return shared.Validationf("decisions", "line %d: approved quantity exceeds requested", line.LineNo)
				}
				if line.PartID != nil && s.stock != nil {
					available, err := s.stock.AvailableQty(ctx, *line.PartID)
					if err != nil {
						return err
					}
					if available < qty {
						d.Status = LineBackordered
						qty = 0
					}
				}
			} else {
				qty = 0
			}
			if err := tx.UpdateLine(ctx, line.ID, d.Status, qty); err != nil {
				return err
			}
			line.Status = d.Status
			line.QtyApproved = qty
		}

		status, ok := DeriveStatus(req.Lines)
		if !ok {
			return shared.Validationf("decisions", "lines still pending after store review")
		}
		if err := tx.SetStoreResolution(ctx, id, actor.ID, now); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		req.Status = status
		req.StoreResolvedBy = &actor.ID
		req.StoreResolvedAt = &now
		result = req
		outcome = status
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}

	// Issue approved quantities from stock after the decision committed.
	for _, line := range result.Lines {
		if line.Status == LineApproved && line.PartID != nil && s.stock != nil {
			if err := s.stock.RecordIssue(ctx, *line.PartID, result.WorkOrderID, line.QtyApproved); err != nil {
				s.logger.Warn("record parts issue",
					slog.String("requisition_id", id.String()), slog.Any("error", err))
			}
		}
	}
	note := remarks
	if note == "" {
		note = string(outcome)
	}
	s.recordApproval(ctx, actor, id, "store", shared.ApprovalApprove, note)
	s.notifyResolved(ctx, result.WorkOrderID, id, outcome)
	return result, nil
}

// RejectStore terminates a pending_store requisition with notes.
func (s *Service) RejectStore(ctx context.Context, id uuid.UUID, actor shared.Actor, notes string) (Requisition, error) {
	if err := rbac.Authorize(actor, rbac.ActionApproveStoreStage); err != nil {
		return Requisition{}, err
	}
	return s.reject(ctx, id, actor, notes, StatusPendingStore, "store")
}

func (s *Service) reject(ctx context.Context, id uuid.UUID, actor shared.Actor, notes string, expect Status, stage string) (Requisition, error) {
	if err := s.guard.CheckNotClosing(ctx); err != nil {
		return Requisition{}, err
	}
	if notes == "" {
		return Requisition{}, shared.Validationf("notes", "rejection requires notes")
	}
	var result Requisition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if resolved(req.Status) {
			return &shared.AlreadyResolvedError{Entity: "requisition", ID: id.String(), State: string(req.Status)}
		}
		if req.Status != expect {
			return &shared.InvalidTransitionError{Entity: "requisition", ID: id.String(), From: string(req.Status), To: string(StatusRejected)}
		}
		for i := range req.Lines {
			if req.Lines[i].Status == LinePending {
				if err := tx.UpdateLine(ctx, req.Lines[i].ID, LineRejected, 0); err != nil {
					return err
				}
				req.Lines[i].Status = LineRejected
			}
		}
		if err := tx.UpdateStatus(ctx, id, StatusRejected); err != nil {
			return err
		}
		req.Status = StatusRejected
		result = req
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordApproval(ctx, actor, id, stage, shared.ApprovalReject, notes)
	s.notifyResolved(ctx, result.WorkOrderID, id, StatusRejected)
	return result, nil
}

// MarkFulfilled records that backordered or approved parts were handed over,
// releasing a work order stuck in waiting_purchase.
func (s *Service) MarkFulfilled(ctx context.Context, id uuid.UUID, actor shared.Actor) (Requisition, error) {
	if err := rbac.Authorize(actor, rbac.ActionApproveStoreStage); err != nil {
		return Requisition{}, err
	}
	var result Requisition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch req.Status {
		case StatusApproved, StatusPartiallyApproved, StatusBackordered:
		case StatusFulfilled:
			return &shared.AlreadyResolvedError{Entity: "requisition", ID: id.String(), State: string(req.Status)}
		default:
			return &shared.InvalidTransitionError{Entity: "requisition", ID: id.String(), From: string(req.Status), To: string(StatusFulfilled)}
		}
		now := s.now().UTC()
		if err := tx.SetFulfilled(ctx, id, now); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, StatusFulfilled); err != nil {
			return err
		}
		req.Status = StatusFulfilled
		req.FulfilledAt = &now
		result = req
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	s.notifyResolved(ctx, result.WorkOrderID, id, StatusFulfilled)
	return result, nil
}

func (s *Service) notifyResolved(ctx context.Context, workOrderID, requisitionID uuid.UUID, outcome Status) {
	if s.metrics != nil {
		s.metrics.RequisitionsTotal.WithLabelValues(string(outcome)).Inc()
	}
	if s.notifier == nil {
		return
	}
	err := s.notifier.LinesResolved(ctx, LinesResolvedEvent{
		WorkOrderID:   workOrderID,
		RequisitionID: requisitionID,
		Outcome:       outcome,
	})
	if err != nil {
		s.logger.Warn("notify work order of requisition outcome",
			slog.String("requisition_id", requisitionID.String()),
			slog.String("outcome", string(outcome)),
			slog.Any("error", err))
	}
}

func (s *Service) recordApproval(ctx context.Context, actor shared.Actor, id uuid.UUID, stage string, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "requisitions",
		RefID:   id,
		Stage:   stage,
		ActorID: actor.ID,
		Action:  action,
		Note:    note,
	})
	if err != nil {
		s.logger.Warn("record approval", slog.Any("error", err))
	}
}
