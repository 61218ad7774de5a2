package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/dev-raymund/getwobble/internal/rbac"
)

const defaultWarmupLimit = 200

// PermissionWarmupJob resolves permission sets for recently active users so
// the first authorization check after a cache invalidation stays cheap.
type PermissionWarmupJob struct {
	service *rbac.Service
	pool    *pgxpool.Pool
	logger  *slog.Logger
}

// NewPermissionWarmupJob constructs the job.
func NewPermissionWarmupJob(service *rbac.Service, pool *pgxpool.Pool, logger *slog.Logger) *PermissionWarmupJob {
	return &PermissionWarmupJob{service: service, pool: pool, logger: logger}
}

// Handle processes TaskPermissionWarmup tasks.
func (j *PermissionWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload PermissionWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = defaultWarmupLimit
	}

	rows, err := j.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM sessions WHERE expires_at > NOW() ORDER BY user_id LIMIT $1`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()
	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range userIDs {
		g.Go(func() error {
			_, err := j.service.EffectivePermissions(gctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if j.logger != nil {
		j.logger.Info("permission cache warmed", slog.Int("users", len(userIDs)))
	}
	return nil
}
