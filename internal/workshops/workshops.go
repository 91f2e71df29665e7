// Package workshops manages workshop records and their planning targets.
// Target edits are gated by the process-wide planning lock owned by the
// fiscal year service.
package workshops

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tana-fms/tana-fms/internal/rbac"
	"github.com/tana-fms/tana-fms/internal/shared"
)

// Targets holds the six planning-target fields of a workshop. Values are
// planned work order counts.
type Targets struct {
	Monthly int
	Q1      int
	Q2      int
	Q3      int
	Q4      int
	Annual  int
}

// ForQuarter returns the planned count of the given quarter (1-4).
func (t Targets) ForQuarter(q int) int {
	switch q {
	case 1:
		return t.Q1
	case 2:
		return t.Q2
	case 3:
		return t.Q3
	case 4:
		return t.Q4
	default:
		return 0
	}
}

// Workshop is a maintenance unit inside a garage.
type Workshop struct {
	ID        uuid.UUID
	GarageID  uuid.UUID
	Name      string
	ForemanID *uuid.UUID
	Targets   Targets
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockPort answers whether planning targets are currently locked.
type LockPort interface {
	TargetsLocked(ctx context.Context) (bool, error)
}

// RepositoryPort describes persistence used by Service.
type RepositoryPort interface {
	Get(ctx context.Context, id uuid.UUID) (Workshop, error)
	List(ctx context.Context) ([]Workshop, error)
	UpdateTargets(ctx context.Context, id uuid.UUID, t Targets) error
}

// Service manages workshops and their targets.
type Service struct {
	repo   RepositoryPort
	lock   LockPort
	logger *slog.Logger
}

// NewService constructs the workshop manager.
func NewService(repo RepositoryPort, lock LockPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, lock: lock, logger: logger}
}

// Get loads a workshop.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Workshop, error) {
	return s.repo.Get(ctx, id)
}

// List returns all workshops.
func (s *Service) List(ctx context.Context) ([]Workshop, error) {
	return s.repo.List(ctx)
}

// UpdateTargets overwrites the six planning targets of a workshop. Rejected
// while the process-wide planning lock is held.
func (s *Service) UpdateTargets(ctx context.Context, id uuid.UUID, targets Targets, actor shared.Actor) (Workshop, error) {
	if err := rbac.Authorize(actor, rbac.ActionEditTargets); err != nil {
		return Workshop{}, err
	}
	for _, v := range []int{targets.Monthly, targets.Q1, targets.Q2, targets.Q3, targets.Q4, targets.Annual} {
		if v < 0 {
			return Workshop{}, shared.Validationf("targets", "must not be negative")
		}
	}
	locked, err := s.lock.TargetsLocked(ctx)
	if err != nil {
		return Workshop{}, err
	}
	if locked {
		return Workshop{}, shared.ErrTargetsLocked
	}
	if err := s.repo.UpdateTargets(ctx, id, targets); err != nil {
		return Workshop{}, err
	}
	return s.repo.Get(ctx, id)
}

// PlannedCountForQuarter implements the rollup targets port. A nil workshop
// sums the quarter target across the fleet.
func (s *Service) PlannedCountForQuarter(ctx context.Context, workshopID *uuid.UUID, quarter int) (int, error) {
	if workshopID != nil {
		ws, err := s.repo.Get(ctx, *workshopID)
		if err != nil {
			return 0, err
		}
		return ws.Targets.ForQuarter(quarter), nil
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	var total int
	for _, ws := range all {
		total += ws.Targets.ForQuarter(quarter)
	}
	return total, nil
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const workshopColumns = `id, garage_id, name, foreman_id, target_monthly, target_q1, target_q2,
target_q3, target_q4, target_annual, created_at, updated_at`

func scanWorkshop(row pgx.Row) (Workshop, error) {
	var ws Workshop
	err := row.Scan(&ws.ID, &ws.GarageID, &ws.Name, &ws.ForemanID,
		&ws.Targets.Monthly, &ws.Targets.Q1, &ws.Targets.Q2, &ws.Targets.Q3,
		&ws.Targets.Q4, &ws.Targets.Annual, &ws.CreatedAt, &ws.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Workshop{}, shared.ErrNotFound
	}
	return ws, err
}

// Get loads a workshop by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Workshop, error) {
	return scanWorkshop(r.pool.QueryRow(ctx, `SELECT `+workshopColumns+` FROM workshops WHERE id=$1`, id))
}

// List returns all workshops ordered by name.
func (r *Repository) List(ctx context.Context) ([]Workshop, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+workshopColumns+` FROM workshops ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var workshops []Workshop
	for rows.Next() {
		ws, err := scanWorkshop(rows)
		if err != nil {
			return nil, err
		}
		workshops = append(workshops, ws)
	}
	return workshops, rows.Err()
}

// UpdateTargets writes the six target fields.
func (r *Repository) UpdateTargets(ctx context.Context, id uuid.UUID, t Targets) error {
	tag, err := r.pool.Exec(ctx, `UPDATE workshops SET target_monthly=$2, target_q1=$3, target_q2=$4,
target_q3=$5, target_q4=$6, target_annual=$7, updated_at=NOW() WHERE id=$1`,
		id, t.Monthly, t.Q1, t.Q2, t.Q3, t.Q4, t.Annual)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ResetAllTargets zeroes every workshop's targets inside the caller's
// transaction. The year closure batch runs it so the new year starts with a
// blank plan; it returns the number of workshops reset.
func ResetAllTargets(ctx context.Context, tx pgx.Tx) (int, error) {
	tag, err := tx.Exec(ctx, `UPDATE workshops SET target_monthly=0, target_q1=0, target_q2=0,
target_q3=0, target_q4=0, target_annual=0, updated_at=NOW()`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
