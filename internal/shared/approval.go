package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApprovalAction enumerates the decisions an approval stage can record.
type ApprovalAction string

const (
	// ApprovalSubmit records the initial submission.
	ApprovalSubmit ApprovalAction = "SUBMIT"
	// ApprovalApprove records a stage passing.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject records a stage rejection.
	ApprovalReject ApprovalAction = "REJECT"
)

// ApprovalLog is one decision in the approval trail of a requisition or any
// other multi-stage document.
type ApprovalLog struct {
	ID      int64
	Module  string
	RefID   uuid.UUID
	Stage   string
	ActorID uuid.UUID
	Action  ApprovalAction
	Note    string
	At      time.Time
}

// ApprovalRecorder persists the approval trail.
type ApprovalRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewApprovalRecorder constructs the recorder.
func NewApprovalRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ApprovalRecorder {
	return &ApprovalRecorder{pool: pool, logger: logger}
}

func (log ApprovalLog) validate() error {
	switch {
	case log.Module == "":
		return errors.New("approval log requires a module")
	case log.RefID == uuid.Nil:
		return errors.New("approval log requires a ref id")
	case log.ActorID == uuid.Nil:
		return errors.New("approval log requires an actor")
	case log.Action == "":
		return errors.New("approval log requires an action")
	}
	return nil
}

// Record appends one decision. The zero At means now.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO approvals (module, ref_id, stage, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.Module, log.RefID, log.Stage, log.ActorID, string(log.Action), log.Note, log.At)
	if err != nil {
		r.logger.Error("record approval",
			slog.String("module", log.Module),
			slog.String("ref_id", log.RefID.String()),
			slog.Any("error", err))
		return fmt.Errorf("approval %s %s: %w", log.Module, log.Action, err)
	}
	return nil
}

// List returns the decisions recorded for one document, oldest first.
func (r *ApprovalRecorder) List(ctx context.Context, module string, ref uuid.UUID) ([]ApprovalLog, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, module, ref_id, stage, actor_id, action, note, at
FROM approvals WHERE module=$1 AND ref_id=$2 ORDER BY at ASC, id ASC`, module, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []ApprovalLog
	for rows.Next() {
		var l ApprovalLog
		var action string
		if err := rows.Scan(&l.ID, &l.Module, &l.RefID, &l.Stage, &l.ActorID, &action, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
