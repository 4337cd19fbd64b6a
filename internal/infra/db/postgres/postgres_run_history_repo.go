package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"

	"prompt-job-runner/internal/domain"
	"prompt-job-runner/internal/domain/model"
	"prompt-job-runner/internal/domain/ports/repository"
)

const uniqueViolation = "23505"

var _ repository.RunHistoryRepository = (*runHistoryRepo)(nil)

type runHistoryRepo struct {
	pool *pgxpool.Pool
}

func NewRunHistoryRepo(pool *pgxpool.Pool) *runHistoryRepo {
	return &runHistoryRepo{pool: pool}
}

func (r *runHistoryRepo) CreateRunning(ctx context.Context, tx repository.Tx, run *model.RunHistory) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.Status = model.RunStatusRunning
	run.RunAt = time.Now()

	const q = `
INSERT INTO run_histories
  (id, job_id, prompt_version_id, scheduled_for, status, runner_id, is_preview, run_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8);`

	_, err := execSQL(ctx, r.pool, tx, q,
		run.ID, run.JobID, run.PromptVersionID, run.ScheduledFor,
		string(run.Status), run.RunnerID, run.IsPreview, run.RunAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateRun
		}
		return err
	}
	return nil
}

func (r *runHistoryRepo) SaveOutput(ctx context.Context, tx repository.Tx, runID, outputText, outputPreview string) error {
	const q = `
UPDATE run_histories
SET output_text = $2, output_preview = $3
WHERE id = $1;`
	_, err := execSQL(ctx, r.pool, tx, q, runID, outputText, outputPreview)
	return err
}

func (r *runHistoryRepo) SaveGeneration(ctx context.Context, tx repository.Tx, runID string, rec model.GenerationRecord) error {
	const q = `
UPDATE run_histories
SET model = NULLIF($2, ''), used_tool = $3,
    usage = $4::jsonb, tool_calls = $5::jsonb, citations = $6::jsonb
WHERE id = $1;`
	_, err := execSQL(ctx, r.pool, tx, q, runID,
		rec.Model, rec.UsedTool, rawOrNil(rec.Usage), rawOrNil(rec.ToolCalls), rawOrNil(rec.Citations))
	return err
}

func (r *runHistoryRepo) MarkDelivered(ctx context.Context, tx repository.Tx, runID string, at time.Time, attempts int) error {
	const q = `
UPDATE run_histories
SET delivered_at = $2, delivery_attempts = $3, delivery_last_error = NULL
WHERE id = $1;`
	_, err := execSQL(ctx, r.pool, tx, q, runID, at, attempts)
	return err
}

func (r *runHistoryRepo) Finalize(ctx context.Context, tx repository.Tx, runID string, status model.RunStatus, errorMessage string) error {
	const q = `
UPDATE run_histories
SET status = $2, error_message = NULLIF($3, '')
WHERE id = $1 AND status = 'running';`
	_, err := execSQL(ctx, r.pool, tx, q, runID, string(status), domain.Truncate(errorMessage, model.ErrorMessageMax))
	return err
}

func (r *runHistoryRepo) RecordDeliveryAttempt(ctx context.Context, tx repository.Tx, att *model.DeliveryAttempt) error {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	att.CreatedAt = time.Now()

	const q = `
INSERT INTO delivery_attempts (id, run_history_id, attempt, status, status_code, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7);`
	_, err := execSQL(ctx, r.pool, tx, q,
		att.ID, att.RunHistoryID, att.Attempt, att.Status, att.StatusCode,
		domain.Truncate(att.ErrorMessage, model.ErrorMessageMax), att.CreatedAt)
	return err
}

func rawOrNil(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
