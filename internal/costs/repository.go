package costs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository provides PostgreSQL backed persistence for cost entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one cost entry.
func (r *Repository) Insert(ctx context.Context, e Entry) (Entry, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO cost_entries (id, work_order_id, category, description,
hours, rate, quantity, unit_cost, vendor, invoice_no, total, posted_by, posted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.WorkOrderID, string(e.Category), e.Description, e.Hours, e.Rate,
		e.Quantity, e.UnitCost, e.Vendor, e.InvoiceNo, e.Total, e.PostedBy, e.PostedAt)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// ListByWorkOrder returns entries of a work order, oldest first.
func (r *Repository) ListByWorkOrder(ctx context.Context, workOrderID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, work_order_id, category, description, hours, rate,
quantity, unit_cost, vendor, invoice_no, total, posted_by, posted_at
FROM cost_entries WHERE work_order_id=$1 ORDER BY posted_at ASC`, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var category string
		if err := rows.Scan(&e.ID, &e.WorkOrderID, &category, &e.Description, &e.Hours, &e.Rate,
			&e.Quantity, &e.UnitCost, &e.Vendor, &e.InvoiceNo, &e.Total, &e.PostedBy, &e.PostedAt); err != nil {
			return nil, err
		}
		if e.Category, err = ParseCategory(category); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumActualInWindow totals entries posted against work orders completed
// inside [start, end).
func (r *Repository) SumActualInWindow(ctx context.Context, workshopID *uuid.UUID, start, end time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(ce.total), 0)
FROM cost_entries ce
JOIN work_orders wo ON wo.id = ce.work_order_id
WHERE wo.status = 'completed'
  AND wo.completed_at >= $1 AND wo.completed_at < $2
  AND ($3::uuid IS NULL OR wo.workshop_id = $3)`, start, end, workshopID).Scan(&total)
	return total, err
}

// CountCompletedInWindow counts work orders completed inside [start, end).
func (r *Repository) CountCompletedInWindow(ctx context.Context, workshopID *uuid.UUID, start, end time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*)
FROM work_orders wo
WHERE wo.status = 'completed'
  AND wo.completed_at >= $1 AND wo.completed_at < $2
  AND ($3::uuid IS NULL OR wo.workshop_id = $3)`, start, end, workshopID).Scan(&count)
	return count, err
}

// DeleteByWorkOrder removes the entries of an archived work order. The
// closure batch calls this after snapshotting the summary.
func (r *Repository) DeleteByWorkOrder(ctx context.Context, workOrderID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cost_entries WHERE work_order_id=$1`, workOrderID)
	return err
}
