package workorders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tana-fms/tana-fms/internal/platform/db"
	"github.com/tana-fms/tana-fms/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const workOrderColumns = `id, number, equipment_id, workshop_id, garage_id, priority, work_type, description,
status, timer_paused, pause_reason, estimated_hours, planned_labor_cost, planned_lubricant_cost,
planned_outsource_cost, actual_hours, reception_id, inspection_id, archive_state, created_by,
started_at, completed_at, created_at, updated_at`

func scanWorkOrder(row pgx.Row) (WorkOrder, error) {
	var wo WorkOrder
	var status string
	err := row.Scan(&wo.ID, &wo.Number, &wo.EquipmentID, &wo.WorkshopID, &wo.GarageID, &wo.Priority,
		&wo.WorkType, &wo.Description, &status, &wo.TimerPaused, &wo.PauseReason, &wo.EstimatedHours,
		&wo.PlannedLaborCost, &wo.PlannedLubricantCost, &wo.PlannedOutsourceCost, &wo.ActualHours,
		&wo.ReceptionID, &wo.InspectionID, &wo.ArchiveState, &wo.CreatedBy,
		&wo.StartedAt, &wo.CompletedAt, &wo.CreatedAt, &wo.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkOrder{}, shared.ErrNotFound
		}
		return WorkOrder{}, err
	}
	wo.Status, err = ParseStatus(status)
	if err != nil {
		return WorkOrder{}, err
	}
	return wo, nil
}

// Create inserts a new work order.
func (r *Repository) Create(ctx context.Context, wo WorkOrder) (WorkOrder, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO work_orders (id, number, equipment_id, workshop_id, garage_id,
priority, work_type, description, status, timer_paused, pause_reason, estimated_hours,
planned_labor_cost, planned_lubricant_cost, planned_outsource_cost, actual_hours,
reception_id, inspection_id, archive_state, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		wo.ID, wo.Number, wo.EquipmentID, wo.WorkshopID, wo.GarageID, wo.Priority, wo.WorkType,
		wo.Description, string(wo.Status), wo.TimerPaused, wo.PauseReason, wo.EstimatedHours,
		wo.PlannedLaborCost, wo.PlannedLubricantCost, wo.PlannedOutsourceCost, wo.ActualHours,
		wo.ReceptionID, wo.InspectionID, wo.ArchiveState, wo.CreatedBy, wo.CreatedAt, wo.UpdatedAt)
	if err != nil {
		return WorkOrder{}, err
	}
	return wo, nil
}

// Get loads a work order by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (WorkOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE id=$1`, id)
	return scanWorkOrder(row)
}

// ListByStatus returns work orders in the given status. A non-positive limit
// means no cap; the closure batch reads every completed order.
func (r *Repository) ListByStatus(ctx context.Context, status Status, limit int) ([]WorkOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE status=$1 ORDER BY created_at DESC LIMIT NULLIF($2, 0)`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, wo)
	}
	return orders, rows.Err()
}

// ListTimeEvents returns the time-tracking stream, oldest first.
func (r *Repository) ListTimeEvents(ctx context.Context, workOrderID uuid.UUID) ([]TimeEvent, error) {
	return listTimeEvents(ctx, r.pool, workOrderID)
}

// PlannedBaseline reads the planned estimate columns for cost summaries.
func (r *Repository) PlannedBaseline(ctx context.Context, id uuid.UUID) (labor, lubricant, outsource decimal.Decimal, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT planned_labor_cost, planned_lubricant_cost, planned_outsource_cost FROM work_orders WHERE id=$1`, id).
		Scan(&labor, &lubricant, &outsource)
	if errors.Is(err, pgx.ErrNoRows) {
		err = shared.ErrNotFound
	}
	return labor, lubricant, outsource, err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listTimeEvents(ctx context.Context, q queryer, workOrderID uuid.UUID) ([]TimeEvent, error) {
	rows, err := q.Query(ctx, `SELECT id, work_order_id, event, at, note FROM work_order_time_events
WHERE work_order_id=$1 ORDER BY at ASC, id ASC`, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []TimeEvent
	for rows.Next() {
		var ev TimeEvent
		var kind string
		if err := rows.Scan(&ev.ID, &ev.WorkOrderID, &kind, &ev.At, &ev.Note); err != nil {
			return nil, err
		}
		ev.Event = EventKind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Transactional operations.

func (t *txRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (WorkOrder, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE id=$1 FOR UPDATE`, id)
	return scanWorkOrder(row)
}

func (t *txRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE work_orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) SetStarted(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE work_orders SET started_at=$2, updated_at=NOW() WHERE id=$1`, id, at)
	return err
}

func (t *txRepo) SetCompleted(ctx context.Context, id uuid.UUID, at *time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE work_orders SET completed_at=$2, updated_at=NOW() WHERE id=$1`, id, at)
	return err
}

func (t *txRepo) SetTimerPaused(ctx context.Context, id uuid.UUID, paused bool, reason string) error {
	_, err := t.tx.Exec(ctx, `UPDATE work_orders SET timer_paused=$2, pause_reason=$3, updated_at=NOW() WHERE id=$1`, id, paused, reason)
	return err
}

func (t *txRepo) SetActualHours(ctx context.Context, id uuid.UUID, hours decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE work_orders SET actual_hours=$2, updated_at=NOW() WHERE id=$1`, id, hours)
	return err
}

func (t *txRepo) InsertTimeEvent(ctx context.Context, ev TimeEvent) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO work_order_time_events (work_order_id, event, at, note)
VALUES ($1, $2, $3, $4)`, ev.WorkOrderID, string(ev.Event), ev.At, ev.Note)
	return err
}

func (t *txRepo) ListTimeEvents(ctx context.Context, workOrderID uuid.UUID) ([]TimeEvent, error) {
	return listTimeEvents(ctx, t.tx, workOrderID)
}
