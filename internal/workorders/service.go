package workorders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tana-fms/tana-fms/internal/observability"
	"github.com/tana-fms/tana-fms/internal/rbac"
	"github.com/tana-fms/tana-fms/internal/requisitions"
	"github.com/tana-fms/tana-fms/internal/shared"
)

// TxRepository exposes transactional operations on a locked work order row.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (WorkOrder, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	SetStarted(ctx context.Context, id uuid.UUID, at time.Time) error
	SetCompleted(ctx context.Context, id uuid.UUID, at *time.Time) error
	SetTimerPaused(ctx context.Context, id uuid.UUID, paused bool, reason string) error
	SetActualHours(ctx context.Context, id uuid.UUID, hours decimal.Decimal) error
	InsertTimeEvent(ctx context.Context, ev TimeEvent) error
	ListTimeEvents(ctx context.Context, workOrderID uuid.UUID) ([]TimeEvent, error)
}

// RepositoryPort describes persistence used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Create(ctx context.Context, wo WorkOrder) (WorkOrder, error)
	Get(ctx context.Context, id uuid.UUID) (WorkOrder, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]WorkOrder, error)
	ListTimeEvents(ctx context.Context, workOrderID uuid.UUID) ([]TimeEvent, error)
}

// ClosureGuardPort rejects mutations while a year closure is in flight.
type ClosureGuardPort interface {
	CheckNotClosing(ctx context.Context) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the work order status state machine.
type Service struct {
	repo    RepositoryPort
	guard   ClosureGuardPort
	audit   AuditPort
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the lifecycle manager.
func NewService(repo RepositoryPort, guard ClosureGuardPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, guard: guard, audit: audit, logger: logger, now: time.Now}
}

// WithMetrics attaches the transition counter.
func (s *Service) WithMetrics(m *observability.Metrics) {
	s.metrics = m
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInput captures a new work order request.
type CreateInput struct {
	EquipmentID          uuid.UUID
	WorkshopID           uuid.UUID
	GarageID             uuid.UUID
	Priority             string
	WorkType             string
	Description          string
	EstimatedHours       decimal.Decimal
	PlannedLaborCost     decimal.Decimal
	PlannedLubricantCost decimal.Decimal
	PlannedOutsourceCost decimal.Decimal
	ReceptionID          *uuid.UUID
	InspectionID         *uuid.UUID
}

// Create opens a new work order in pending_approval.
func (s *Service) Create(ctx context.Context, in CreateInput, actor shared.Actor) (WorkOrder, error) {
	if err := rbac.Authorize(actor, rbac.ActionCreateWorkOrder); err != nil {
		return WorkOrder{}, err
	}
	if strings.TrimSpace(in.Description) == "" {
		return WorkOrder{}, shared.Validationf("description", "required")
	}
	if in.EquipmentID == uuid.Nil {
		return WorkOrder{}, shared.Validationf("equipment_id", "required")
	}
	if in.WorkType == "" {
		return WorkOrder{}, shared.Validationf("work_type", "required")
	}
	now := s.now().UTC()
	wo := WorkOrder{
		ID:                   uuid.New(),
		Number:               generateNumber("WO", now),
		EquipmentID:          in.EquipmentID,
		WorkshopID:           in.WorkshopID,
		GarageID:             in.GarageID,
		Priority:             defaultString(in.Priority, "medium"),
		WorkType:             in.WorkType,
		Description:          in.Description,
		Status:               StatusPendingApproval,
		EstimatedHours:       in.EstimatedHours,
		PlannedLaborCost:     in.PlannedLaborCost,
		PlannedLubricantCost: in.PlannedLubricantCost,
		PlannedOutsourceCost: in.PlannedOutsourceCost,
		ReceptionID:          in.ReceptionID,
		InspectionID:         in.InspectionID,
		CreatedBy:            actor.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	created, err := s.repo.Create(ctx, wo)
	if err != nil {
		return WorkOrder{}, err
	}
	s.recordAudit(ctx, actor, "WO_CREATE", created.ID, map[string]any{"number": created.Number})
	return created, nil
}

// Get loads a work order.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (WorkOrder, error) {
	return s.repo.Get(ctx, id)
}

// Transition applies a status edge after validating it against the state
// machine and the actor's role. All side effects run atomically with the
// status write; an illegal edge leaves the row untouched.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, target Status, actor shared.Actor, notes string) (WorkOrder, error) {
	if _, err := ParseStatus(string(target)); err != nil {
		return WorkOrder{}, err
	}
	if err := s.guard.CheckNotClosing(ctx); err != nil {
		return WorkOrder{}, err
	}
	var result WorkOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if wo.ArchiveState == ArchiveStateInProgress {
			return shared.ErrClosureInProgress
		}
		if !CanTransition(wo.Status, target) {
			return &shared.InvalidTransitionError{Entity: "work order", ID: id.String(), From: string(wo.Status), To: string(target)}
		}
		if !roleMayTransition(actor.Role, wo.Status, target) {
			return &shared.UnauthorizedError{Role: actor.Role, Action: fmt.Sprintf("work_order.transition %s->%s", wo.Status, target)}
		}
		if notesRequired(wo.Status, target) && strings.TrimSpace(notes) == "" {
			return shared.Validationf("notes", "rejection requires notes")
		}
		if err := s.applyTransition(ctx, tx, &wo, target, notes); err != nil {
			return err
		}
		result = wo
		return nil
	})
	if err != nil {
		return WorkOrder{}, err
	}
	if s.metrics != nil {
		s.metrics.TransitionsTotal.WithLabelValues(string(result.Status)).Inc()
	}
	s.recordAudit(ctx, actor, "WO_TRANSITION", id, map[string]any{"to": string(target), "notes": notes})
	return result, nil
}

// applyTransition writes the status change and its side effects inside the
// caller's transaction.
func (s *Service) applyTransition(ctx context.Context, tx TxRepository, wo *WorkOrder, target Status, notes string) error {
	now := s.now().UTC()

	switch target {
	case StatusInProgress:
		if wo.StartedAt == nil {
			if err := tx.SetStarted(ctx, wo.ID, now); err != nil {
				return err
			}
			wo.StartedAt = &now
			if err := tx.InsertTimeEvent(ctx, TimeEvent{WorkOrderID: wo.ID, Event: EventStart, At: now}); err != nil {
				return err
			}
		} else if wo.TimerPaused {
			if err := s.resumeTimer(ctx, tx, wo, now); err != nil {
				return err
			}
		}
	case StatusAwaitingParts, StatusWaitingPurchase:
		reason := PauseReasonAwaitingParts
		if target == StatusWaitingPurchase {
			reason = PauseReasonWaitingPurchase
		}
		if err := s.pauseTimer(ctx, tx, wo, now, reason); err != nil {
			return err
		}
	case StatusPendingVerification:
		// The team marks work done; the clock stops here.
		if err := tx.SetCompleted(ctx, wo.ID, &now); err != nil {
			return err
		}
		wo.CompletedAt = &now
		if err := tx.InsertTimeEvent(ctx, TimeEvent{WorkOrderID: wo.ID, Event: EventComplete, At: now, Note: notes}); err != nil {
			return err
		}
	case StatusRejected:
		// Verification failed: clear completion and halt the clock until the
		// team picks the job back up. A modeled outcome, not an error.
		if err := tx.SetCompleted(ctx, wo.ID, nil); err != nil {
			return err
		}
		wo.CompletedAt = nil
		if err := s.pauseTimer(ctx, tx, wo, now, PauseReasonVerifierReject); err != nil {
			return err
		}
	case StatusCompleted:
		if wo.CompletedAt == nil {
			if err := tx.SetCompleted(ctx, wo.ID, &now); err != nil {
				return err
			}
			wo.CompletedAt = &now
		}
		events, err := tx.ListTimeEvents(ctx, wo.ID)
		if err != nil {
			return err
		}
		hours := decimal.NewFromFloat(Elapsed(wo.StartedAt, wo.CompletedAt, events, now).Hours()).Round(2)
		if err := tx.SetActualHours(ctx, wo.ID, hours); err != nil {
			return err
		}
		wo.ActualHours = hours
	}

	if err := tx.UpdateStatus(ctx, wo.ID, target); err != nil {
		return err
	}
	wo.Status = target
	wo.UpdatedAt = now
	return nil
}

func (s *Service) pauseTimer(ctx context.Context, tx TxRepository, wo *WorkOrder, at time.Time, reason string) error {
	if wo.TimerPaused {
		return nil
	}
	if err := tx.SetTimerPaused(ctx, wo.ID, true, reason); err != nil {
		return err
	}
	if err := tx.InsertTimeEvent(ctx, TimeEvent{WorkOrderID: wo.ID, Event: EventPause, At: at, Note: reason}); err != nil {
		return err
	}
	wo.TimerPaused = true
	wo.PauseReason = reason
	return nil
}

func (s *Service) resumeTimer(ctx context.Context, tx TxRepository, wo *WorkOrder, at time.Time) error {
	if !wo.TimerPaused {
		return nil
	}
	if err := tx.SetTimerPaused(ctx, wo.ID, false, ""); err != nil {
		return err
	}
	if err := tx.InsertTimeEvent(ctx, TimeEvent{WorkOrderID: wo.ID, Event: EventResume, At: at}); err != nil {
		return err
	}
	wo.TimerPaused = false
	wo.PauseReason = ""
	return nil
}

// MarkAwaitingParts pauses a work order because an open requisition blocks
// it. Idempotent: an already paused order is left as is.
func (s *Service) MarkAwaitingParts(ctx context.Context, workOrderID, requisitionID uuid.UUID) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetForUpdate(ctx, workOrderID)
		if err != nil {
			return err
		}
		switch wo.Status {
		case StatusAwaitingParts, StatusWaitingPurchase:
			return nil
		case StatusInProgress:
			if err := s.pauseTimer(ctx, tx, &wo, s.now().UTC(), PauseReasonAwaitingParts); err != nil {
				return err
			}
			return tx.UpdateStatus(ctx, wo.ID, StatusAwaitingParts)
		default:
			// Parts can be requested before work starts; nothing to pause.
			return nil
		}
	})
}

// ResumeFromParts resumes a work order blocked on parts. Idempotent: calling
// it on an order that is not blocked is a no-op, not an error.
func (s *Service) ResumeFromParts(ctx context.Context, workOrderID uuid.UUID) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetForUpdate(ctx, workOrderID)
		if err != nil {
			return err
		}
		if wo.Status != StatusAwaitingParts && wo.Status != StatusWaitingPurchase {
			return nil
		}
		if err := s.resumeTimer(ctx, tx, &wo, s.now().UTC()); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, wo.ID, StatusInProgress)
	})
}

// RequisitionOpened implements the requisition engine callback contract.
func (s *Service) RequisitionOpened(ctx context.Context, evt requisitions.RequisitionOpenedEvent) error {
	return s.MarkAwaitingParts(ctx, evt.WorkOrderID, evt.RequisitionID)
}

// LinesResolved reacts to a requisition reaching a terminal decision. A
// backordered outcome moves the order to waiting_purchase; any other terminal
// outcome (approved, partially approved, rejected, fulfilled) unblocks it.
func (s *Service) LinesResolved(ctx context.Context, evt requisitions.LinesResolvedEvent) error {
	if evt.Outcome == requisitions.StatusBackordered {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			wo, err := tx.GetForUpdate(ctx, evt.WorkOrderID)
			if err != nil {
				return err
			}
			if wo.Status != StatusAwaitingParts {
				return nil
			}
			if err := tx.SetTimerPaused(ctx, wo.ID, true, PauseReasonWaitingPurchase); err != nil {
				return err
			}
			return tx.UpdateStatus(ctx, wo.ID, StatusWaitingPurchase)
		})
	}
	return s.ResumeFromParts(ctx, evt.WorkOrderID)
}

// ElapsedFor derives the active working time of an order as of now.
func (s *Service) ElapsedFor(ctx context.Context, id uuid.UUID) (time.Duration, error) {
	wo, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	events, err := s.repo.ListTimeEvents(ctx, id)
	if err != nil {
		return 0, err
	}
	return Elapsed(wo.StartedAt, wo.CompletedAt, events, s.now()), nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ID, Action: action, Entity: "work_order", EntityID: id.String(), Meta: meta}); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.Any("error", err))
	}
}

func generateNumber(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%d-%d", prefix, now.Year(), now.UnixNano()%1_000_000)
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
