package fiscalyear

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tana-fms/tana-fms/internal/shared"
	"github.com/tana-fms/tana-fms/internal/workshops"
)

// Repository provides PostgreSQL backed persistence for fiscal year state,
// closure logs and the archive store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// State reads the fiscal singleton row.
func (r *Repository) State(ctx context.Context) (YearState, error) {
	var st YearState
	err := r.pool.QueryRow(ctx, `SELECT current_ethiopian_year, planning_targets_locked, updated_at
FROM fiscal_year_state WHERE id = TRUE`).Scan(&st.CurrentEthiopianYear, &st.PlanningTargetsLocked, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return YearState{}, shared.ErrNotFound
	}
	return st, err
}

// SetTargetsLocked toggles the planning lock flag.
func (r *Repository) SetTargetsLocked(ctx context.Context, locked bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE fiscal_year_state SET planning_targets_locked=$1, updated_at=NOW() WHERE id = TRUE`, locked)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// YearClosed reports whether a closure log row exists for the year.
func (r *Repository) YearClosed(ctx context.Context, ethiopianYear int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM year_closure_logs WHERE closed_year=$1)`, ethiopianYear).Scan(&exists)
	return exists, err
}

// CountNonCompleted counts live work orders that will roll over untouched.
func (r *Repository) CountNonCompleted(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM work_orders WHERE status <> 'completed'`).Scan(&count)
	return count, err
}

// ListClosureLogs returns closure records, newest first.
func (r *Repository) ListClosureLogs(ctx context.Context) ([]ClosureLog, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, closed_year, new_year, orders_archived, orders_rolled_over,
workshops_reset, operator_id, notes, closed_at FROM year_closure_logs ORDER BY closed_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ClosureLog
	for rows.Next() {
		var l ClosureLog
		if err := rows.Scan(&l.ID, &l.ClosedYear, &l.NewYear, &l.OrdersArchived, &l.OrdersRolledOver,
			&l.WorkshopsReset, &l.OperatorID, &l.Notes, &l.ClosedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// CloseYear executes the whole closure batch in one repeatable-read
// transaction under a year-scoped advisory lock. Per-order archival is
// mark, snapshot, delete: the ON CONFLICT guard makes a retried batch skip
// orders whose archive row already committed, so a crashed run can be rerun
// without double-archiving.
func (r *Repository) CloseYear(ctx context.Context, plan ClosurePlan) (ClosureLog, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return ClosureLog{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, shared.ClosureAdvisoryLockID(plan.ClosedYear)); err != nil {
		return ClosureLog{}, err
	}

	// Fast-fail inside the lock in case a concurrent closure won the race.
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM year_closure_logs WHERE closed_year=$1)`, plan.ClosedYear).Scan(&exists); err != nil {
		return ClosureLog{}, err
	}
	if exists {
		return ClosureLog{}, &shared.AlreadyClosedError{Year: plan.ClosedYear}
	}

	var archived int
	for _, snap := range plan.Snapshots {
		inserted, err := r.archiveOne(ctx, tx, snap)
		if err != nil {
			return ClosureLog{}, err
		}
		if inserted {
			archived++
		}
	}

	reset, err := workshops.ResetAllTargets(ctx, tx)
	if err != nil {
		return ClosureLog{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE fiscal_year_state
SET current_ethiopian_year=$1, planning_targets_locked=FALSE, updated_at=NOW() WHERE id = TRUE`, plan.NewYear); err != nil {
		return ClosureLog{}, err
	}

	log := ClosureLog{
		ClosedYear:       plan.ClosedYear,
		NewYear:          plan.NewYear,
		OrdersArchived:   archived,
		OrdersRolledOver: plan.RolledOver,
		WorkshopsReset:   reset,
		OperatorID:       plan.OperatorID,
		Notes:            plan.Notes,
	}
	err = tx.QueryRow(ctx, `INSERT INTO year_closure_logs (closed_year, new_year, orders_archived,
orders_rolled_over, workshops_reset, operator_id, notes, closed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING id, closed_at`,
		log.ClosedYear, log.NewYear, log.OrdersArchived, log.OrdersRolledOver,
		log.WorkshopsReset, log.OperatorID, log.Notes).Scan(&log.ID, &log.ClosedAt)
	if err != nil {
		return ClosureLog{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ClosureLog{}, err
	}
	return log, nil
}

// archiveCleanupTables hold the per-order operational rows removed once the
// snapshot commits. Requisitions must go before the work order itself or its
// foreign key blocks the delete; requisition lines cascade from requisitions.
var archiveCleanupTables = []string{
	"cost_entries",
	"work_order_time_events",
	"part_issues",
	"requisitions",
}

// archiveOne snapshots one completed order and removes its live rows. The
// returned flag reports whether the archive row was actually inserted; a
// rerun after a crash finds the row already there and skips it.
func (r *Repository) archiveOne(ctx context.Context, tx pgx.Tx, snap ArchivedWorkOrder) (bool, error) {
	if _, err := tx.Exec(ctx, `UPDATE work_orders SET archive_state=$2 WHERE id=$1`,
		snap.ID, "in_progress"); err != nil {
		return false, err
	}
	parts, err := json.Marshal(snap.Parts)
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, `INSERT INTO archived_work_orders (id, number, equipment_id, workshop_id,
garage_id, work_type, description, priority, actual_hours, started_at, completed_at,
ethiopian_year, total_planned, total_actual, variance, actual_labor, actual_lubricant,
actual_outsource, parts_consumed, archived_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
ON CONFLICT (id) DO NOTHING`,
		snap.ID, snap.Number, snap.EquipmentID, snap.WorkshopID, snap.GarageID,
		snap.WorkType, snap.Description, snap.Priority, snap.ActualHours,
		snap.StartedAt, snap.CompletedAt, snap.EthiopianYear,
		snap.TotalPlanned, snap.TotalActual, snap.Variance,
		snap.ActualLabor, snap.ActualLubricant, snap.ActualOutsource,
		parts, snap.ArchivedAt)
	if err != nil {
		return false, err
	}
	for _, table := range archiveCleanupTables {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE work_order_id=$1`, snap.ID); err != nil {
			return false, err
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM work_orders WHERE id=$1`, snap.ID); err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListArchived returns archive rows of a closed year.
func (r *Repository) ListArchived(ctx context.Context, ethiopianYear int) ([]ArchivedWorkOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, number, equipment_id, workshop_id, garage_id, work_type,
description, priority, actual_hours, started_at, completed_at, ethiopian_year, total_planned,
total_actual, variance, actual_labor, actual_lubricant, actual_outsource, parts_consumed, archived_at
FROM archived_work_orders WHERE ethiopian_year=$1 ORDER BY completed_at ASC`, ethiopianYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var archived []ArchivedWorkOrder
	for rows.Next() {
		var a ArchivedWorkOrder
		var parts []byte
		if err := rows.Scan(&a.ID, &a.Number, &a.EquipmentID, &a.WorkshopID, &a.GarageID, &a.WorkType,
			&a.Description, &a.Priority, &a.ActualHours, &a.StartedAt, &a.CompletedAt, &a.EthiopianYear,
			&a.TotalPlanned, &a.TotalActual, &a.Variance, &a.ActualLabor, &a.ActualLubricant,
			&a.ActualOutsource, &parts, &a.ArchivedAt); err != nil {
			return nil, err
		}
		if len(parts) > 0 {
			if err := json.Unmarshal(parts, &a.Parts); err != nil {
				return nil, err
			}
		}
		archived = append(archived, a)
	}
	return archived, rows.Err()
}
