package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApprovalAction enumerates approval decisions.
type ApprovalAction string

const (
	// ApprovalApprove marks an approve decision.
	ApprovalApprove ApprovalAction = "approve"
	// ApprovalReject marks a reject decision.
	ApprovalReject ApprovalAction = "reject"
	// ApprovalReset returns the order to pending.
	ApprovalReset ApprovalAction = "pending"
)

// IsValid reports whether the action is known.
func (a ApprovalAction) IsValid() bool {
	switch a {
	case ApprovalApprove, ApprovalReject, ApprovalReset:
		return true
	default:
		return false
	}
}

// ApprovalLog represents a single approval record.
type ApprovalLog struct {
	ID      int64          `json:"id"`
	OrderID int64          `json:"order_id"`
	Actor   string         `json:"actor"`
	Action  ApprovalAction `json:"action"`
	Remark  string         `json:"remark"`
	At      time.Time      `json:"at"`
}

// ApprovalRecorder persists approval history.
type ApprovalRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ApprovalRecorder {
	return &ApprovalRecorder{pool: pool, logger: logger}
}

// Record writes approval entry to database.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	if log.OrderID == 0 {
		return errors.New("approval order id required")
	}
	if log.Actor == "" {
		return errors.New("approval actor required")
	}
	if !log.Action.IsValid() {
		return errors.New("approval action required")
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO approvals (order_id, actor, action, remark, at)
VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`, log.OrderID, log.Actor, string(log.Action), log.Remark, at)
	if err != nil {
		r.logger.Error("record approval", slog.Any("error", err), slog.Int64("order_id", log.OrderID))
		return err
	}
	return nil
}

// List returns approvals for an order, oldest first.
func (r *ApprovalRecorder) List(ctx context.Context, orderID int64) ([]ApprovalLog, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, actor, action, remark, at
FROM approvals WHERE order_id=$1 ORDER BY at ASC, id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ApprovalLog
	for rows.Next() {
		var l ApprovalLog
		var action string
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Actor, &action, &l.Remark, &l.At); err != nil {
			return nil, err
		}
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}
