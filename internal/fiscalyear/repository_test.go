package fiscalyear

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// recordingTx captures the statements archival runs so their order and
// coverage can be checked without a live database.
type recordingTx struct {
	execs     []string
	insertTag pgconn.CommandTag
}

func (t *recordingTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	if strings.HasPrefix(sql, "INSERT INTO archived_work_orders") {
		return t.insertTag, nil
	}
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func (t *recordingTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *recordingTx) Commit(context.Context) error          { return nil }
func (t *recordingTx) Rollback(context.Context) error        { return nil }
func (t *recordingTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *recordingTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *recordingTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *recordingTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *recordingTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *recordingTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *recordingTx) Conn() *pgx.Conn                                         { return nil }

func (t *recordingTx) indexOf(fragment string) int {
	for i, sql := range t.execs {
		if strings.Contains(sql, fragment) {
			return i
		}
	}
	return -1
}

func TestArchiveOneRemovesDependentRowsBeforeTheOrder(t *testing.T) {
	tx := &recordingTx{insertTag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := &Repository{}

	inserted, err := repo.archiveOne(context.Background(), tx, ArchivedWorkOrder{ID: uuid.New()})
	require.NoError(t, err)
	require.True(t, inserted)

	orderDelete := tx.indexOf("DELETE FROM work_orders WHERE id")
	require.GreaterOrEqual(t, orderDelete, 0)

	// requisitions reference work_orders, so they have to go first.
	for _, table := range []string{"cost_entries", "work_order_time_events", "part_issues", "requisitions"} {
		idx := tx.indexOf("DELETE FROM " + table + " ")
		require.GreaterOrEqual(t, idx, 0, table)
		require.Less(t, idx, orderDelete, table)
	}
}

func TestArchiveOneReportsSkippedDuplicate(t *testing.T) {
	tx := &recordingTx{insertTag: pgconn.NewCommandTag("INSERT 0 0")}
	repo := &Repository{}

	inserted, err := repo.archiveOne(context.Background(), tx, ArchivedWorkOrder{ID: uuid.New()})
	require.NoError(t, err)
	require.False(t, inserted, "a rerun must not recount an already archived order")
}
