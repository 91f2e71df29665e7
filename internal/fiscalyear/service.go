package fiscalyear

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tana-fms/tana-fms/internal/costs"
	"github.com/tana-fms/tana-fms/internal/ethcal"
	"github.com/tana-fms/tana-fms/internal/inventory"
	"github.com/tana-fms/tana-fms/internal/observability"
	"github.com/tana-fms/tana-fms/internal/rbac"
	"github.com/tana-fms/tana-fms/internal/shared"
	"github.com/tana-fms/tana-fms/internal/workorders"
)

// RepositoryPort describes persistence used by Service.
type RepositoryPort interface {
	State(ctx context.Context) (YearState, error)
	SetTargetsLocked(ctx context.Context, locked bool) error
	YearClosed(ctx context.Context, ethiopianYear int) (bool, error)
	ListClosureLogs(ctx context.Context) ([]ClosureLog, error)
	ListArchived(ctx context.Context, ethiopianYear int) ([]ArchivedWorkOrder, error)
	CountNonCompleted(ctx context.Context) (int, error)
	// CloseYear runs the closure transaction: per-order mark, snapshot and
	// delete, target reset, unlock, year advance, and the log row. All or
	// nothing under the year-scoped advisory lock.
	CloseYear(ctx context.Context, plan ClosurePlan) (ClosureLog, error)
}

// GuardPort marks a closure in flight process-wide.
type GuardPort interface {
	Acquire(ctx context.Context, ethiopianYear int) (bool, error)
	Release(ctx context.Context) error
}

// WorkOrderSource reads live completed work orders for archival.
type WorkOrderSource interface {
	ListByStatus(ctx context.Context, status workorders.Status, limit int) ([]workorders.WorkOrder, error)
}

// CostSource summarizes realized cost for snapshots.
type CostSource interface {
	Summarize(ctx context.Context, workOrderID uuid.UUID) (costs.Summary, error)
}

// PartsSource reads the consumed-parts ledger for snapshots.
type PartsSource interface {
	ListConsumed(ctx context.Context, workOrderID uuid.UUID) ([]inventory.Issue, error)
	GetPart(ctx context.Context, id uuid.UUID) (inventory.Part, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the fiscal year lifecycle.
type Service struct {
	repo    RepositoryPort
	guard   GuardPort
	orders  WorkOrderSource
	costs   CostSource
	parts   PartsSource
	audit   AuditPort
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the closure orchestrator.
func NewService(repo RepositoryPort, guard GuardPort, orders WorkOrderSource, costSrc CostSource, parts PartsSource, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, guard: guard, orders: orders, costs: costSrc, parts: parts, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches the closure counter.
func (s *Service) WithMetrics(m *observability.Metrics) {
	s.metrics = m
}

// Info reports the current fiscal position: the stored year state combined
// with derived calendar figures.
type Info struct {
	State    YearState
	Calendar ethcal.YearInfo
}

// CurrentInfo returns the fiscal year info read on every dashboard request.
func (s *Service) CurrentInfo(ctx context.Context) (Info, error) {
	state, err := s.repo.State(ctx)
	if err != nil {
		return Info{}, err
	}
	return Info{State: state, Calendar: ethcal.Info(s.now())}, nil
}

// TargetsLocked implements the workshop planning lock port.
func (s *Service) TargetsLocked(ctx context.Context) (bool, error) {
	state, err := s.repo.State(ctx)
	if err != nil {
		return false, err
	}
	return state.PlanningTargetsLocked, nil
}

// SetTargetsLocked toggles the planning lock outside the closure flow.
// Admin only.
func (s *Service) SetTargetsLocked(ctx context.Context, locked bool, actor shared.Actor) error {
	if err := rbac.Authorize(actor, rbac.ActionToggleTargetLock); err != nil {
		return err
	}
	if err := s.repo.SetTargetsLocked(ctx, locked); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "FY_TARGET_LOCK", map[string]any{"locked": locked})
	return nil
}

// ClosureLogs lists past closure records, newest first.
func (s *Service) ClosureLogs(ctx context.Context) ([]ClosureLog, error) {
	return s.repo.ListClosureLogs(ctx)
}

// Archived lists the archive records of a closed year.
func (s *Service) Archived(ctx context.Context, ethiopianYear int) ([]ArchivedWorkOrder, error) {
	return s.repo.ListArchived(ctx, ethiopianYear)
}

// Close runs the year-end batch for the currently active Ethiopian year.
// Not idempotent: a second call for the same year fails with AlreadyClosed.
// The snapshot inputs are gathered up front while the guard blocks all
// work-order and requisition mutations, then committed in one transaction.
func (s *Service) Close(ctx context.Context, notes string, actor shared.Actor) (ClosureLog, error) {
	if err := rbac.Authorize(actor, rbac.ActionCloseFiscalYear); err != nil {
		return ClosureLog{}, err
	}
	state, err := s.repo.State(ctx)
	if err != nil {
		return ClosureLog{}, err
	}
	year := state.CurrentEthiopianYear

	closed, err := s.repo.YearClosed(ctx, year)
	if err != nil {
		return ClosureLog{}, err
	}
	if closed {
		return ClosureLog{}, &shared.AlreadyClosedError{Year: year}
	}

	acquired, err := s.guard.Acquire(ctx, year)
	if err != nil {
		return ClosureLog{}, err
	}
	if !acquired {
		return ClosureLog{}, shared.ErrClosureInProgress
	}
	defer func() {
		if err := s.guard.Release(ctx); err != nil {
			s.logger.Error("release closure guard", slog.Any("error", err))
		}
	}()

	completed, err := s.orders.ListByStatus(ctx, workorders.StatusCompleted, 0)
	if err != nil {
		return ClosureLog{}, err
	}
	snapshots := make([]ArchivedWorkOrder, len(completed))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, wo := range completed {
		g.Go(func() error {
			snap, err := s.snapshot(gctx, wo, year)
			if err != nil {
				return err
			}
			snapshots[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ClosureLog{}, err
	}
	rolledOver, err := s.repo.CountNonCompleted(ctx)
	if err != nil {
		return ClosureLog{}, err
	}

	log, err := s.repo.CloseYear(ctx, ClosurePlan{
		ClosedYear: year,
		NewYear:    year + 1,
		Snapshots:  snapshots,
		RolledOver: rolledOver,
		OperatorID: actor.ID,
		Notes:      notes,
	})
	if err != nil {
		return ClosureLog{}, err
	}

	if s.metrics != nil {
		s.metrics.ClosuresTotal.Inc()
	}
	s.recordAudit(ctx, actor, "FY_CLOSE", map[string]any{
		"closed_year":     log.ClosedYear,
		"new_year":        log.NewYear,
		"orders_archived": log.OrdersArchived,
	})
	s.logger.Info("fiscal year closed",
		slog.Int("closed_year", log.ClosedYear),
		slog.Int("new_year", log.NewYear),
		slog.Int("orders_archived", log.OrdersArchived),
		slog.Int("orders_rolled_over", log.OrdersRolledOver))
	return log, nil
}

func (s *Service) snapshot(ctx context.Context, wo workorders.WorkOrder, year int) (ArchivedWorkOrder, error) {
	snap := ArchivedWorkOrder{
		ID:            wo.ID,
		Number:        wo.Number,
		EquipmentID:   wo.EquipmentID,
		WorkshopID:    wo.WorkshopID,
		GarageID:      wo.GarageID,
		WorkType:      wo.WorkType,
		Description:   wo.Description,
		Priority:      wo.Priority,
		ActualHours:   wo.ActualHours,
		StartedAt:     wo.StartedAt,
		CompletedAt:   wo.CompletedAt,
		EthiopianYear: year,
		ArchivedAt:    s.now().UTC(),
	}
	if s.costs != nil {
		sum, err := s.costs.Summarize(ctx, wo.ID)
		if err != nil {
			return ArchivedWorkOrder{}, err
		}
		snap.TotalPlanned = sum.TotalPlanned
		snap.TotalActual = sum.TotalActual
		snap.Variance = sum.Variance
		snap.ActualLabor = sum.ActualLabor
		snap.ActualLubricant = sum.ActualLubricant
		snap.ActualOutsource = sum.ActualOutsource
	}
	if s.parts != nil {
		issues, err := s.parts.ListConsumed(ctx, wo.ID)
		if err != nil {
			return ArchivedWorkOrder{}, err
		}
		for _, is := range issues {
			cp := ConsumedPart{
				Qty:      is.Qty,
				UnitCost: is.UnitCost.String(),
				IssuedAt: is.IssuedAt,
			}
			if part, err := s.parts.GetPart(ctx, is.PartID); err == nil {
				cp.PartNumber = part.PartNumber
				cp.PartName = part.Name
			}
			snap.Parts = append(snap.Parts, cp)
		}
	}
	return snap, nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ID, Action: action, Entity: "fiscal_year", EntityID: "current", Meta: meta}); err != nil {
		s.logger.Warn("record audit", slog.Any("error", err))
	}
}
