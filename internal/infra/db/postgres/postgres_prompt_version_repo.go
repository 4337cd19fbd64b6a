package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"prompt-job-runner/internal/domain"
	"prompt-job-runner/internal/domain/model"
	"prompt-job-runner/internal/domain/ports/repository"
)

var _ repository.PromptVersionRepository = (*promptVersionRepo)(nil)

type promptVersionRepo struct {
	pool *pgxpool.Pool
}

func NewPromptVersionRepo(pool *pgxpool.Pool) *promptVersionRepo {
	return &promptVersionRepo{pool: pool}
}

func (r *promptVersionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PromptVersion, error) {
	const q = `
SELECT id, job_id, template, variables, post_prompt_enabled, post_prompt, published_at
FROM prompt_versions
WHERE id = $1;`

	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	var (
		pv       model.PromptVersion
		varsJSON []byte
		post     *string
	)
	err = row.Scan(&pv.ID, &pv.JobID, &pv.Template, &varsJSON, &pv.PostPromptEnabled, &post, &pv.PublishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if post != nil {
		pv.PostPrompt = *post
	}
	if len(varsJSON) > 0 {
		if err := json.Unmarshal(varsJSON, &pv.Variables); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if pv.Variables == nil {
		pv.Variables = map[string]string{}
	}
	return &pv, nil
}
