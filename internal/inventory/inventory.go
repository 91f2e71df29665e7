// Package inventory tracks spare part stock levels and the issue ledger
// feeding requisition fulfilment and year-end consumption snapshots.
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tana-fms/tana-fms/internal/shared"
)

// Part is a catalog entry.
type Part struct {
	ID         uuid.UUID
	PartNumber string
	Name       string
	Unit       string
	UnitCost   decimal.Decimal
	OnHand     int
	CreatedAt  time.Time
}

// Issue is one ledger row: a quantity handed from the store to a work order.
type Issue struct {
	ID          int64
	PartID      uuid.UUID
	WorkOrderID uuid.UUID
	Qty         int
	UnitCost    decimal.Decimal
	IssuedAt    time.Time
}

// Store provides PostgreSQL backed stock persistence.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetPart loads a catalog entry.
func (s *Store) GetPart(ctx context.Context, id uuid.UUID) (Part, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, part_number, name, unit, unit_cost, on_hand, created_at
FROM parts WHERE id=$1`, id)
	var p Part
	err := row.Scan(&p.ID, &p.PartNumber, &p.Name, &p.Unit, &p.UnitCost, &p.OnHand, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Part{}, shared.ErrNotFound
	}
	return p, err
}

// AvailableQty answers the on-hand quantity of a part. Unknown parts report
// zero so a stale catalog reference backorders instead of failing the review.
func (s *Store) AvailableQty(ctx context.Context, partID uuid.UUID) (int, error) {
	var onHand int
	err := s.pool.QueryRow(ctx, `SELECT on_hand FROM parts WHERE id=$1`, partID).Scan(&onHand)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return onHand, err
}

// RecordIssue decrements stock and appends a ledger row in one transaction.
// The guard clause keeps on_hand from going negative if two issues race.
func (s *Store) RecordIssue(ctx context.Context, partID uuid.UUID, workOrderID uuid.UUID, qty int) error {
	if qty <= 0 {
		return shared.Validationf("qty", "must be positive")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var unitCost decimal.Decimal
	err = tx.QueryRow(ctx, `UPDATE parts SET on_hand = on_hand - $2
WHERE id=$1 AND on_hand >= $2 RETURNING unit_cost`, partID, qty).Scan(&unitCost)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.Validationf("qty", "insufficient stock for part %s", partID)
	}
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO part_issues (part_id, work_order_id, qty, unit_cost, issued_at)
VALUES ($1, $2, $3, $4, NOW())`, partID, workOrderID, qty, unitCost)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Receive restocks a part.
func (s *Store) Receive(ctx context.Context, partID uuid.UUID, qty int) error {
	if qty <= 0 {
		return shared.Validationf("qty", "must be positive")
	}
	tag, err := s.pool.Exec(ctx, `UPDATE parts SET on_hand = on_hand + $2 WHERE id=$1`, partID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListConsumed returns the issue ledger of a work order, oldest first. The
// closure batch snapshots this into the archive record.
func (s *Store) ListConsumed(ctx context.Context, workOrderID uuid.UUID) ([]Issue, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, part_id, work_order_id, qty, unit_cost, issued_at
FROM part_issues WHERE work_order_id=$1 ORDER BY issued_at ASC, id ASC`, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var issues []Issue
	for rows.Next() {
		var is Issue
		if err := rows.Scan(&is.ID, &is.PartID, &is.WorkOrderID, &is.Qty, &is.UnitCost, &is.IssuedAt); err != nil {
			return nil, err
		}
		issues = append(issues, is)
	}
	return issues, rows.Err()
}
