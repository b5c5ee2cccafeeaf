package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
)

const (
	// TaskRBACWarmup is the task type that precomputes effective permissions.
	TaskRBACWarmup = "rbac:warmup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RBACWarmupPayload narrows the warmup to a single organization when OrgID > 0.
type RBACWarmupPayload struct {
	OrgID int64 `json:"org_id,omitempty"`
}

// NewRBACWarmupTask constructs an Asynq task for permission cache warmup.
func NewRBACWarmupTask(payload RBACWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRBACWarmup, data), nil
}

// RBACWarmupJob walks the role catalog and evaluates each role once so the
// effective-permission cache is hot before users hit authorization checks.
type RBACWarmupJob struct {
	RBAC    *rbac.Service
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewRBACWarmupJob wires dependencies for the warmup handler.
func NewRBACWarmupJob(rbacSvc *rbac.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *RBACWarmupJob {
	return &RBACWarmupJob{
		RBAC:    rbacSvc,
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes rbac warmup tasks.
func (j *RBACWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("rbac warmup: handler not configured")
	}
	var payload RBACWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskRBACWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("org_id", payload.OrgID))
	logger.Info("starting rbac warmup")

	start := j.now()
	roleIDs, err := j.fetchRoleIDs(ctx, payload.OrgID)
	if err != nil {
		resultErr = err
		logger.Error("load warmup roles", slog.Any("error", err))
		return resultErr
	}
	if len(roleIDs) == 0 {
		logger.Info("no roles discovered for warmup")
		return resultErr
	}

	warmed := 0
	for _, roleID := range roleIDs {
		if err := j.warmRole(ctx, roleID); err != nil {
			resultErr = err
			logger.Error("warm role", slog.Int64("role_id", roleID), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}

	logger.Info("completed rbac warmup", slog.Int("roles", warmed), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *RBACWarmupJob) warmRole(ctx context.Context, roleID int64) error {
	if j.RBAC == nil {
		return nil
	}
	// Bound each evaluation so one pathological hierarchy cannot stall the run.
	roleCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := j.RBAC.EffectivePermissionsWithSource(roleCtx, roleID)
	return err
}

func (j *RBACWarmupJob) fetchRoleIDs(ctx context.Context, orgID int64) ([]int64, error) {
	if j.Pool == nil {
		return nil, errors.New("rbac warmup: pool not configured")
	}
	query := `SELECT id FROM roles ORDER BY id`
	args := []any{}
	if orgID > 0 {
		query = `SELECT id FROM roles WHERE org_id = $1 OR org_id = 0 ORDER BY id`
		args = append(args, orgID)
	}
	rows, err := j.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *RBACWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRBACWarmup))
	}
	return slog.Default().With(slog.String("job", TaskRBACWarmup))
}

func (j *RBACWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RBACWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
