package workshops

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/tana-fms/tana-fms/internal/shared"
)

type memWorkshops map[uuid.UUID]*Workshop

func (m memWorkshops) Get(_ context.Context, id uuid.UUID) (Workshop, error) {
	ws, ok := m[id]
	if !ok {
		return Workshop{}, shared.ErrNotFound
	}
	return *ws, nil
}

func (m memWorkshops) List(context.Context) ([]Workshop, error) {
	var out []Workshop
	for _, ws := range m {
		out = append(out, *ws)
	}
	return out, nil
}

func (m memWorkshops) UpdateTargets(_ context.Context, id uuid.UUID, t Targets) error {
	ws, ok := m[id]
	if !ok {
		return shared.ErrNotFound
	}
	ws.Targets = t
	return nil
}

type fixedLock bool

func (l fixedLock) TargetsLocked(context.Context) (bool, error) { return bool(l), nil }

func TestUpdateTargetsRejectedWhileLocked(t *testing.T) {
	repo := memWorkshops{}
	id := uuid.New()
	repo[id] = &Workshop{ID: id, Name: "Engine Shop"}
	svc := NewService(repo, fixedLock(true), slog.Default())

	_, err := svc.UpdateTargets(context.Background(), id, Targets{Q1: 5}, shared.Actor{ID: uuid.New(), Role: shared.RoleSupervisor})
	require.ErrorIs(t, err, shared.ErrTargetsLocked)
	require.Zero(t, repo[id].Targets.Q1)
}

func TestUpdateTargetsWhenUnlocked(t *testing.T) {
	repo := memWorkshops{}
	id := uuid.New()
	repo[id] = &Workshop{ID: id, Name: "Engine Shop"}
	svc := NewService(repo, fixedLock(false), slog.Default())

	ws, err := svc.UpdateTargets(context.Background(), id, Targets{Monthly: 2, Q1: 5, Q2: 4, Q3: 4, Q4: 3, Annual: 16},
		shared.Actor{ID: uuid.New(), Role: shared.RoleForeman})
	require.NoError(t, err)
	require.Equal(t, 5, ws.Targets.Q1)
	require.Equal(t, 16, ws.Targets.Annual)
}

func TestUpdateTargetsRequiresRole(t *testing.T) {
	repo := memWorkshops{}
	id := uuid.New()
	repo[id] = &Workshop{ID: id}
	svc := NewService(repo, fixedLock(false), slog.Default())

	_, err := svc.UpdateTargets(context.Background(), id, Targets{}, shared.Actor{ID: uuid.New(), Role: shared.RoleTeamMember})
	require.True(t, shared.IsUnauthorized(err))
}

func TestUpdateTargetsRejectsNegative(t *testing.T) {
	repo := memWorkshops{}
	id := uuid.New()
	repo[id] = &Workshop{ID: id}
	svc := NewService(repo, fixedLock(false), slog.Default())

	_, err := svc.UpdateTargets(context.Background(), id, Targets{Q2: -1}, shared.Actor{ID: uuid.New(), Role: shared.RoleForeman})
	require.True(t, shared.IsValidation(err))
}

func TestPlannedCountForQuarterFleetWide(t *testing.T) {
	repo := memWorkshops{}
	a, b := uuid.New(), uuid.New()
	repo[a] = &Workshop{ID: a, Targets: Targets{Q1: 3}}
	repo[b] = &Workshop{ID: b, Targets: Targets{Q1: 4}}
	svc := NewService(repo, fixedLock(false), slog.Default())

	total, err := svc.PlannedCountForQuarter(context.Background(), nil, 1)
	require.NoError(t, err)
	require.Equal(t, 7, total)

	one, err := svc.PlannedCountForQuarter(context.Background(), &a, 1)
	require.NoError(t, err)
	require.Equal(t, 3, one)
}

// targetResetTx stubs the closure transaction for the target reset.
type targetResetTx struct {
	sql string
	tag pgconn.CommandTag
}

func (t *targetResetTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.sql = sql
	return t.tag, nil
}

func (t *targetResetTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *targetResetTx) Commit(context.Context) error          { return nil }
func (t *targetResetTx) Rollback(context.Context) error        { return nil }
func (t *targetResetTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *targetResetTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *targetResetTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *targetResetTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *targetResetTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *targetResetTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *targetResetTx) Conn() *pgx.Conn                                         { return nil }

func TestResetAllTargetsZeroesEveryTargetColumn(t *testing.T) {
	tx := &targetResetTx{tag: pgconn.NewCommandTag("UPDATE 3")}

	reset, err := ResetAllTargets(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, 3, reset)

	for _, column := range []string{"target_monthly", "target_q1", "target_q2", "target_q3", "target_q4", "target_annual"} {
		require.Contains(t, tx.sql, column+"=0")
	}
}
