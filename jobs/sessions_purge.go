package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionsPurgeJob deletes expired session rows left behind by logins that
// never signed out.
type SessionsPurgeJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSessionsPurgeJob constructs the job.
func NewSessionsPurgeJob(pool *pgxpool.Pool, logger *slog.Logger) *SessionsPurgeJob {
	return &SessionsPurgeJob{pool: pool, logger: logger}
}

// Handle processes TaskSessionsPurge tasks.
func (j *SessionsPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	tag, err := j.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return err
	}
	if j.logger != nil {
		j.logger.Info("purged expired sessions", slog.Int64("rows", tag.RowsAffected()))
	}
	return nil
}
