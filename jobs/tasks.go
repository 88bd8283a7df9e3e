package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/dynaclean/dynaflow/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockSummaryRebuild recomputes stock summaries from the movement ledger.
	TaskStockSummaryRebuild = "stock:summary_rebuild"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskDeliveryOTPNotify delivers a delivery code to the customer.
	TaskDeliveryOTPNotify = "notification:delivery_otp"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// StockRebuildPayload is empty; the rebuild always covers every item.
type StockRebuildPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewStockRebuildTask builds a summary rebuild task.
func NewStockRebuildTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(StockRebuildPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockSummaryRebuild, data), nil
}

// IdempotencyCleanupPayload overrides the configured retention when set.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention,omitempty"`
}

// NewIdempotencyCleanupTask builds a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// DeliveryOTPPayload carries a code to the notification sink.
type DeliveryOTPPayload struct {
	OrderID   int64  `json:"order_id"`
	Recipient string `json:"recipient"`
	Code      string `json:"code"`
}

// NewDeliveryOTPTask builds a notification task. Codes expire quickly, so the
// task is not retried for long.
func NewDeliveryOTPTask(payload DeliveryOTPPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeliveryOTPNotify, data, asynq.MaxRetry(2), asynq.Timeout(30*time.Second)), nil
}

// NewTaskByName builds a maintenance task with its default payload.
func NewTaskByName(name string) (*asynq.Task, error) {
	switch name {
	case TaskStockSummaryRebuild:
		return NewStockRebuildTask("manual")
	case TaskIdempotencyCleanup:
		return NewIdempotencyCleanupTask(0)
	default:
		return nil, fmt.Errorf("jobs: unsupported job %q", name)
	}
}
