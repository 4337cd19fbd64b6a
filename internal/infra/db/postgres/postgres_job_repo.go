package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"prompt-job-runner/internal/domain"
	"prompt-job-runner/internal/domain/model"
	"prompt-job-runner/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `id, owner_id, name, enabled,
  schedule_type, schedule_time, schedule_day_of_week, schedule_cron,
  channel_type, channel_config, model, use_tool, tool_mode,
  published_version_id, next_run_at, locked_at, fail_count, created_at, updated_at`

// claimQuery selects the single due, unlocked (or stale-locked) job with the
// earliest next_run_at and stamps locked_at in the same atomic statement.
// SKIP LOCKED keeps concurrent claimants from blocking on each other's
// candidate row. locked_at is truncated to milliseconds so the token survives
// a driver round trip intact.
const claimQuery = `WITH candidate AS (
  SELECT id
  FROM jobs
  WHERE enabled = true
    AND next_run_at <= now()
    AND (locked_at IS NULL OR locked_at < now() - make_interval(secs => $1))
  ORDER BY next_run_at
  LIMIT 1
  FOR UPDATE SKIP LOCKED
)
UPDATE jobs
SET locked_at = date_trunc('milliseconds', now())
FROM candidate
WHERE jobs.id = candidate.id
RETURNING jobs.id, jobs.owner_id, jobs.name, jobs.enabled,
  jobs.schedule_type, jobs.schedule_time, jobs.schedule_day_of_week, jobs.schedule_cron,
  jobs.channel_type, jobs.channel_config, jobs.model, jobs.use_tool, jobs.tool_mode,
  jobs.published_version_id, jobs.next_run_at, jobs.locked_at, jobs.fail_count,
  jobs.created_at, jobs.updated_at;`

func (r *jobRepo) ClaimNextDue(ctx context.Context, staleAfter time.Duration) (*model.Job, time.Time, error) {
	row := r.pool.QueryRow(ctx, claimQuery, staleAfter.Seconds())
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, time.Time{}, domain.ErrNotFound
		}
		return nil, time.Time{}, err
	}
	if job.LockedAt == nil {
		return nil, time.Time{}, domain.ErrReadDatabaseRow
	}
	return job, *job.LockedAt, nil
}

func (r *jobRepo) CompleteSuccess(ctx context.Context, tx repository.Tx, jobID string, lockToken time.Time, nextRunAt time.Time) (bool, error) {
	const q = `
UPDATE jobs
SET locked_at = NULL, fail_count = 0, next_run_at = $3, updated_at = now()
WHERE id = $1 AND locked_at = $2;`

	tag, err := execSQL(ctx, r.pool, tx, q, jobID, lockToken, nextRunAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *jobRepo) CompleteFailure(ctx context.Context, tx repository.Tx, jobID string, lockToken time.Time, nextRunAt time.Time, countFailure bool, disableThreshold int) (bool, bool, error) {
	if !countFailure {
		const q = `
UPDATE jobs
SET locked_at = NULL, next_run_at = $3, updated_at = now()
WHERE id = $1 AND locked_at = $2;`
		tag, err := execSQL(ctx, r.pool, tx, q, jobID, lockToken, nextRunAt)
		if err != nil {
			return false, false, err
		}
		return tag.RowsAffected() == 1, false, nil
	}

	const q = `
UPDATE jobs
SET locked_at = NULL,
    fail_count = fail_count + 1,
    enabled = CASE WHEN fail_count + 1 >= $4 THEN false ELSE enabled END,
    next_run_at = $3,
    updated_at = now()
WHERE id = $1 AND locked_at = $2
RETURNING enabled;`

	row, err := pickRow(ctx, r.pool, tx, q, jobID, lockToken, nextRunAt, disableThreshold)
	if err != nil {
		return false, false, err
	}
	var enabled bool
	if err := row.Scan(&enabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, false, nil // lock token no longer matched
		}
		return false, false, err
	}
	return true, !enabled, nil
}

func (r *jobRepo) ReleaseLock(ctx context.Context, jobID string, lockToken time.Time, nextRunAt time.Time) (bool, error) {
	const q = `
UPDATE jobs
SET locked_at = NULL, next_run_at = $3, updated_at = now()
WHERE id = $1 AND locked_at = $2;`

	tag, err := r.pool.Exec(ctx, q, jobID, lockToken, nextRunAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		job       model.Job
		dayOfWeek *int32
		cronExpr  *string
		lockedAt  *time.Time
		versionID *string
	)
	err := row.Scan(
		&job.ID, &job.OwnerID, &job.Name, &job.Enabled,
		&job.ScheduleType, &job.ScheduleTime, &dayOfWeek, &cronExpr,
		&job.ChannelType, &job.ChannelConfig, &job.Model, &job.UseTool, &job.ToolMode,
		&versionID, &job.NextRunAt, &lockedAt, &job.FailCount,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.ScheduleDayOfWeek = -1
	if dayOfWeek != nil {
		job.ScheduleDayOfWeek = int(*dayOfWeek)
	}
	if cronExpr != nil {
		job.ScheduleCron = *cronExpr
	}
	if versionID != nil {
		job.PublishedVersionID = *versionID
	}
	job.LockedAt = lockedAt
	return &job, nil
}
