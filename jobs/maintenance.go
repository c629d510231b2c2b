package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ganacsi/ganacsi/internal/jobs"
)

const (
	// TaskPurgeResetTokens removes expired password reset tokens.
	TaskPurgeResetTokens = "auth:purge_reset_tokens"
	// TaskIdempotencyCleanup removes stale idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"

	// DefaultIdempotencyRetention keeps create keys long enough for client retries.
	DefaultIdempotencyRetention = 7 * 24 * time.Hour
)

// ResetTokenPurger deletes expired reset tokens.
type ResetTokenPurger interface {
	PurgeExpiredResetTokens(ctx context.Context) (int64, error)
}

// IdempotencyCleaner deletes idempotency keys older than a cutoff.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupPayload configures an idempotency cleanup run.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewPurgeResetTokensTask constructs the reset token purge task.
func NewPurgeResetTokensTask() *asynq.Task {
	return asynq.NewTask(TaskPurgeResetTokens, nil, asynq.Queue(QueueDefault))
}

// NewIdempotencyCleanupTask constructs the idempotency cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// MaintenanceJob runs the periodic cleanup tasks.
type MaintenanceJob struct {
	Tokens  ResetTokenPurger
	Keys    IdempotencyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// HandlePurgeResetTokens processes TaskPurgeResetTokens.
func (j *MaintenanceJob) HandlePurgeResetTokens(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Tokens == nil {
		return errors.New("purge reset tokens: handler not configured")
	}
	tracker := j.Metrics.Track(TaskPurgeResetTokens)
	defer func() {
		err = tracker.End(err)
	}()

	n, err := j.Tokens.PurgeExpiredResetTokens(ctx)
	if err != nil {
		j.logger().Error("purge reset tokens", slog.Any("error", err))
		return err
	}
	j.Metrics.AddRows(TaskPurgeResetTokens, n)
	j.logger().Info("purged reset tokens", slog.Int64("rows", n))
	return nil
}

// HandleIdempotencyCleanup processes TaskIdempotencyCleanup.
func (j *MaintenanceJob) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload CleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := DefaultIdempotencyRetention
	if payload.RetentionHours > 0 {
		retention = time.Duration(payload.RetentionHours) * time.Hour
	}

	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() {
		err = tracker.End(err)
	}()

	n, err := j.Keys.Cleanup(ctx, retention)
	if err != nil {
		j.logger().Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	j.Metrics.AddRows(TaskIdempotencyCleanup, n)
	j.logger().Info("cleaned idempotency keys", slog.Int64("rows", n), slog.Duration("retention", retention))
	return nil
}

func (j *MaintenanceJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
