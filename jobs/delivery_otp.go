package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
)

// DeliveryOTPJob hands delivery codes to the customer. Until an SMS gateway is
// wired the log is the sink, and the code itself is never written in full.
type DeliveryOTPJob struct {
	Logger *slog.Logger
}

// NewDeliveryOTPJob initialises the notification handler.
func NewDeliveryOTPJob(logger *slog.Logger) *DeliveryOTPJob {
	return &DeliveryOTPJob{Logger: logger}
}

// Handle delivers one code.
func (j *DeliveryOTPJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload DeliveryOTPPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("delivery otp: decode: %v: %w", err, asynq.SkipRetry)
	}
	if payload.OrderID <= 0 || payload.Recipient == "" || payload.Code == "" {
		return fmt.Errorf("delivery otp: incomplete payload: %w", asynq.SkipRetry)
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("delivery otp sent",
		slog.String("job", TaskDeliveryOTPNotify),
		slog.Int64("order_id", payload.OrderID),
		slog.String("recipient", mask(payload.Recipient, 3)),
		slog.String("code", mask(payload.Code, 0)),
	)
	return nil
}

// mask hides all but the last keep characters of s.
func mask(s string, keep int) string {
	if keep >= len(s) {
		keep = 0
	}
	return strings.Repeat("*", len(s)-keep) + s[len(s)-keep:]
}
