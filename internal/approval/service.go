package approval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dynaclean/dynaflow/internal/orders"
	"github.com/dynaclean/dynaflow/internal/shared"
)

// OrderPort is the part of the order service the gate drives.
type OrderPort interface {
	Get(ctx context.Context, id int64) (orders.Order, error)
	Decide(ctx context.Context, id int64, action shared.ApprovalAction, remark string, cmd orders.Command) (orders.Outcome, error)
}

// HistoryPort persists approval decisions.
type HistoryPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, orderID int64) ([]shared.ApprovalLog, error)
}

// Decision is an approver's verdict on an order.
type Decision struct {
	Action shared.ApprovalAction `json:"action" validate:"required"`
	Remark string                `json:"remark" validate:"max=1000"`
}

// Result is the outcome of an applied decision.
type Result struct {
	orders.Outcome
	Decision *shared.ApprovalLog `json:"decision,omitempty"`
}

// ErrNotApprover indicates the caller's role may not decide approvals.
var ErrNotApprover = shared.Forbiddenf("role may not decide approvals")

// Gate restricts approval decisions to approver roles and keeps their history.
type Gate struct {
	orders  OrderPort
	history HistoryPort
	roles   []string
	logger  *slog.Logger
	clock   func() time.Time
}

// NewGate builds Gate. roles lists the approver roles.
func NewGate(orders OrderPort, history HistoryPort, roles []string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		orders:  orders,
		history: history,
		roles:   roles,
		logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Decide applies d to the order on behalf of id.
func (g *Gate) Decide(ctx context.Context, id shared.Identity, orderID int64, d Decision, idempotencyKey string) (Result, error) {
	if id.IsZero() {
		return Result{}, shared.ErrUnauthorized
	}
	if !id.HasRole(g.roles...) {
		return Result{}, ErrNotApprover
	}
	action := shared.ApprovalAction(strings.ToLower(strings.TrimSpace(string(d.Action))))
	if !action.IsValid() {
		return Result{}, shared.Validationf("unknown approval action %q", d.Action)
	}
	remark := strings.TrimSpace(d.Remark)
	out, err := g.orders.Decide(ctx, orderID, action, remark, orders.Command{Actor: id, IdempotencyKey: idempotencyKey})
	if err != nil {
		return Result{}, err
	}
	res := Result{Outcome: out}
	if out.Result != orders.ResultSucceeded {
		return res, nil
	}
	entry := shared.ApprovalLog{
		OrderID: orderID,
		Actor:   id.Username,
		Action:  action,
		Remark:  remark,
		At:      g.clock(),
	}
	if err := g.history.Record(ctx, entry); err != nil {
		g.logger.Error("record approval",
			slog.Int64("order_id", orderID),
			slog.String("action", string(action)),
			slog.Any("error", err))
		return res, nil
	}
	res.Decision = &entry
	return res, nil
}

// History lists the decisions taken on an order, oldest first.
func (g *Gate) History(ctx context.Context, orderID int64) ([]shared.ApprovalLog, error) {
	if _, err := g.orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	logs, err := g.history.List(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	return logs, nil
}
