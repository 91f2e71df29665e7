package requisitions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

const requisitionColumns = `id, number, work_order_id, workshop_id, status, requested_by, remarks,
foreman_approved_by, foreman_approved_at, store_resolved_by, store_resolved_at, fulfilled_at,
created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequisition(row rowScanner) (Requisition, error) {
	var req Requisition
	var status string
	err := row.Scan(&req.ID, &req.Number, &req.WorkOrderID, &req.WorkshopID, &status, &req.RequestedBy,
		&req.Remarks, &req.ForemanApprovedBy, &req.ForemanApprovedAt, &req.StoreResolvedBy,
		&req.StoreResolvedAt, &req.FulfilledAt, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Requisition{}, shared.ErrNotFound
		}
		return Requisition{}, err
	}
	req.Status, err = ParseStatus(status)
	if err != nil {
		return Requisition{}, err
	}
	return req, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q queryer, requisitionID uuid.UUID) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, requisition_id, line_no, part_id, part_number, part_name,
description, unit, qty_requested, qty_approved, status
FROM requisition_lines WHERE requisition_id=$1 ORDER BY line_no ASC`, requisitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		var status string
		if err := rows.Scan(&l.ID, &l.RequisitionID, &l.LineNo, &l.PartID, &l.PartNumber, &l.PartName,
			&l.Description, &l.Unit, &l.QtyRequested, &l.QtyApproved, &status); err != nil {
			return nil, err
		}
		if l.Status, err = ParseLineStatus(status); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Create inserts a requisition with its lines atomically.
func (r *Repository) Create(ctx context.Context, req Requisition) (Requisition, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Requisition{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `INSERT INTO requisitions (id, number, work_order_id, workshop_id, status,
requested_by, remarks, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.ID, req.Number, req.WorkOrderID, req.WorkshopID, string(req.Status),
		req.RequestedBy, req.Remarks, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Requisition{}, &shared.DuplicateError{Entity: "requisition", Key: req.Number}
		}
		return Requisition{}, err
	}
	for _, l := range req.Lines {
		_, err = tx.Exec(ctx, `INSERT INTO requisition_lines (id, requisition_id, line_no, part_id,
part_number, part_name, description, unit, qty_requested, qty_approved, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			l.ID, l.RequisitionID, l.LineNo, l.PartID, l.PartNumber, l.PartName,
			l.Description, l.Unit, l.QtyRequested, l.QtyApproved, string(l.Status))
		if err != nil {
			return Requisition{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Requisition{}, err
	}
	return req, nil
}

// Get loads a requisition with its lines.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Requisition, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requisitionColumns+` FROM requisitions WHERE id=$1`, id)
	req, err := scanRequisition(row)
	if err != nil {
		return Requisition{}, err
	}
	if req.Lines, err = loadLines(ctx, r.pool, id); err != nil {
		return Requisition{}, err
	}
	return req, nil
}

// ListByWorkOrder returns requisitions of a work order, newest first.
func (r *Repository) ListByWorkOrder(ctx context.Context, workOrderID uuid.UUID) ([]Requisition, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requisitionColumns+` FROM requisitions
WHERE work_order_id=$1 ORDER BY created_at DESC`, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(ctx, rows)
}

// ListByStatus returns requisitions in the given status.
func (r *Repository) ListByStatus(ctx context.Context, status Status, limit int) ([]Requisition, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+requisitionColumns+` FROM requisitions
WHERE status=$1 ORDER BY created_at DESC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(ctx, rows)
}

// ListStaleSince returns requisitions stuck in a stage since before olderThan.
func (r *Repository) ListStaleSince(ctx context.Context, status Status, olderThan time.Time) ([]Requisition, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requisitionColumns+` FROM requisitions
WHERE status=$1 AND updated_at < $2 ORDER BY updated_at ASC`, string(status), olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(ctx, rows)
}

func (r *Repository) collect(ctx context.Context, rows pgx.Rows) ([]Requisition, error) {
	var reqs []Requisition
	for rows.Next() {
		req, err := scanRequisition(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range reqs {
		lines, err := loadLines(ctx, r.pool, reqs[i].ID)
		if err != nil {
			return nil, err
		}
		reqs[i].Lines = lines
	}
	return reqs, nil
}

// Transactional operations.

func (t *txRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (Requisition, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+requisitionColumns+` FROM requisitions WHERE id=$1 FOR UPDATE`, id)
	req, err := scanRequisition(row)
	if err != nil {
		return Requisition{}, err
	}
	if req.Lines, err = loadLines(ctx, t.tx, id); err != nil {
		return Requisition{}, err
	}
	return req, nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE requisitions SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) SetForemanApproval(ctx context.Context, id uuid.UUID, by uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE requisitions SET foreman_approved_by=$2, foreman_approved_at=$3, updated_at=NOW() WHERE id=$1`, id, by, at)
	return err
}

func (t *txRepo) SetStoreResolution(ctx context.Context, id uuid.UUID, by uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE requisitions SET store_resolved_by=$2, store_resolved_at=$3, updated_at=NOW() WHERE id=$1`, id, by, at)
	return err
}

func (t *txRepo) SetFulfilled(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE requisitions SET fulfilled_at=$2, updated_at=NOW() WHERE id=$1`, id, at)
	return err
}

func (t *txRepo) UpdateLine(ctx context.Context, lineID uuid.UUID, status LineStatus, qtyApproved int) error {
	tag, err := t.tx.Exec(ctx, `UPDATE requisition_lines SET status=$2, qty_approved=$3 WHERE id=$1`, lineID, string(status), qtyApproved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
