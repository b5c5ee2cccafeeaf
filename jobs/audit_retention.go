package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/audit"
	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

const (
	// TaskAuditRetention is the task type that purges expired audit entries.
	TaskAuditRetention = "audit:retention"
)

// AuditRetentionPayload overrides the configured retention when Days > 0.
type AuditRetentionPayload struct {
	Days int `json:"days,omitempty"`
}

// NewAuditRetentionTask constructs an Asynq task for the retention purge.
func NewAuditRetentionTask(payload AuditRetentionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, data), nil
}

// AuditRetentionJob removes audit entries older than the retention window.
type AuditRetentionJob struct {
	Audit         *audit.Service
	RetentionDays int
	Logger        *slog.Logger
	Metrics       *jobmetrics.Metrics
}

// NewAuditRetentionJob wires dependencies for the retention handler.
func NewAuditRetentionJob(auditSvc *audit.Service, retentionDays int, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRetentionJob {
	return &AuditRetentionJob{
		Audit:         auditSvc,
		RetentionDays: retentionDays,
		Logger:        logger,
		Metrics:       metrics,
	}
}

// Handle processes audit retention tasks.
func (j *AuditRetentionJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("audit retention: handler not configured")
	}
	var payload AuditRetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	days := payload.Days
	if days <= 0 {
		days = j.RetentionDays
	}
	if days <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskAuditRetention)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("retention_days", days))
	logger.Info("starting audit retention purge")

	if j.Audit == nil {
		resultErr = errors.New("audit retention: service not configured")
		return resultErr
	}
	purged, err := j.Audit.Purge(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		resultErr = err
		logger.Error("purge audit entries", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed audit retention purge", slog.Int64("purged", purged))
	return resultErr
}

func (j *AuditRetentionJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditRetention))
	}
	return slog.Default().With(slog.String("job", TaskAuditRetention))
}

func (j *AuditRetentionJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
