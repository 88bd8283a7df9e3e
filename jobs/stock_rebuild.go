package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/dynaclean/dynaflow/internal/jobs"
	"github.com/dynaclean/dynaflow/internal/shared"
)

// Rebuilder recomputes stock summaries and reports how many rows drifted.
type Rebuilder interface {
	Rebuild(ctx context.Context) (int, error)
}

var rebuildLockKey = shared.JobLockKey(TaskStockSummaryRebuild)

// StockRebuildJob runs the summary rebuild on one worker at a time.
type StockRebuildJob struct {
	Rebuilder Rebuilder
	Locker    *redislock.Client
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	LockTTL   time.Duration
}

// NewStockRebuildJob initialises the rebuild handler.
func NewStockRebuildJob(rebuilder Rebuilder, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockRebuildJob {
	return &StockRebuildJob{Rebuilder: rebuilder, Locker: locker, Logger: logger, Metrics: metrics, LockTTL: 5 * time.Minute}
}

// Handle executes the rebuild.
func (j *StockRebuildJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Rebuilder == nil {
		return errors.New("stock rebuild: handler not configured")
	}
	var payload StockRebuildPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	logger := j.logger().With(slog.String("reason", payload.Reason))

	if j.Locker != nil {
		lock, err := j.Locker.Obtain(ctx, rebuildLockKey, j.lockTTL(), nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.Info("rebuild already running elsewhere, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logger.Warn("release rebuild lock", slog.Any("error", err))
			}
		}()
	}

	tracker := j.metrics().Track(TaskStockSummaryRebuild)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	drift, err := j.Rebuilder.Rebuild(ctx)
	if err != nil {
		logger.Error("rebuild failed", slog.Any("error", err))
		return err
	}
	j.metrics().AddItems(TaskStockSummaryRebuild, int64(drift))
	logger.Info("stock summaries rebuilt",
		slog.Int("drifted", drift),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *StockRebuildJob) lockTTL() time.Duration {
	if j.LockTTL > 0 {
		return j.LockTTL
	}
	return 5 * time.Minute
}

func (j *StockRebuildJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockSummaryRebuild))
	}
	return slog.Default().With(slog.String("job", TaskStockSummaryRebuild))
}

func (j *StockRebuildJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
