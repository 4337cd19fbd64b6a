//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"prompt-job-runner/internal/domain"
	"prompt-job-runner/internal/domain/model"
	"prompt-job-runner/internal/domain/ports/repository"
)

func seedVersion(t *testing.T, jobID string, vars map[string]string) string {
	t.Helper()
	id := uuid.NewString()
	b, _ := json.Marshal(vars)
	_, err := testPool.Exec(context.Background(), `
		INSERT INTO prompt_versions (id, job_id, template, variables, post_prompt_enabled, post_prompt)
		VALUES ($1, $2, 'Summarize {{topic}}.', $3, true, 'Rewrite: {{output}}')`,
		id, jobID, string(b))
	if err != nil {
		t.Fatalf("seed version: %v", err)
	}
	return id
}

func TestRunHistoryRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewRunHistoryRepo(testPool)

	newRun := func(jobID, versionID string, scheduledFor *time.Time) *model.RunHistory {
		return &model.RunHistory{
			JobID:           jobID,
			PromptVersionID: versionID,
			ScheduledFor:    scheduledFor,
			RunnerID:        "runner-1",
		}
	}

	t.Run("duplicate occurrence is rejected by the unique index", func(t *testing.T) {
		cleanup(t)
		jobID := seedJob(t, time.Now(), true)
		versionID := seedVersion(t, jobID, nil)
		at := time.Now().Truncate(time.Second)

		if err := repo.CreateRunning(ctx, repository.NoTx, newRun(jobID, versionID, &at)); err != nil {
			t.Fatalf("first create: %v", err)
		}
		err := repo.CreateRunning(ctx, repository.NoTx, newRun(jobID, versionID, &at))
		if !errors.Is(err, domain.ErrDuplicateRun) {
			t.Fatalf("want ErrDuplicateRun, got %v", err)
		}
	})

	t.Run("manual runs have no occurrence and may repeat", func(t *testing.T) {
		cleanup(t)
		jobID := seedJob(t, time.Now(), true)
		versionID := seedVersion(t, jobID, nil)

		if err := repo.CreateRunning(ctx, repository.NoTx, newRun(jobID, versionID, nil)); err != nil {
			t.Fatalf("first manual run: %v", err)
		}
		if err := repo.CreateRunning(ctx, repository.NoTx, newRun(jobID, versionID, nil)); err != nil {
			t.Fatalf("second manual run: %v", err)
		}
	})

	t.Run("finalize is one-shot", func(t *testing.T) {
		cleanup(t)
		jobID := seedJob(t, time.Now(), true)
		versionID := seedVersion(t, jobID, nil)
		at := time.Now().Truncate(time.Second)
		run := newRun(jobID, versionID, &at)
		if err := repo.CreateRunning(ctx, repository.NoTx, run); err != nil {
			t.Fatal(err)
		}

		if err := repo.Finalize(ctx, repository.NoTx, run.ID, model.RunStatusFail, "first error"); err != nil {
			t.Fatalf("finalize: %v", err)
		}
		// A second finalize must not overwrite the terminal state.
		if err := repo.Finalize(ctx, repository.NoTx, run.ID, model.RunStatusSuccess, ""); err != nil {
			t.Fatalf("second finalize: %v", err)
		}

		var status, errMsg string
		err := testPool.QueryRow(ctx,
			`SELECT status, error_message FROM run_histories WHERE id = $1`, run.ID).Scan(&status, &errMsg)
		if err != nil {
			t.Fatal(err)
		}
		if status != "fail" || errMsg != "first error" {
			t.Fatalf("status=%q error=%q", status, errMsg)
		}
	})

	t.Run("finalize truncates long error messages", func(t *testing.T) {
		cleanup(t)
		jobID := seedJob(t, time.Now(), true)
		versionID := seedVersion(t, jobID, nil)
		run := newRun(jobID, versionID, nil)
		if err := repo.CreateRunning(ctx, repository.NoTx, run); err != nil {
			t.Fatal(err)
		}

		long := make([]byte, 2000)
		for i := range long {
			long[i] = 'e'
		}
		if err := repo.Finalize(ctx, repository.NoTx, run.ID, model.RunStatusFail, string(long)); err != nil {
			t.Fatal(err)
		}
		var errMsg string
		if err := testPool.QueryRow(ctx,
			`SELECT error_message FROM run_histories WHERE id = $1`, run.ID).Scan(&errMsg); err != nil {
			t.Fatal(err)
		}
		if len(errMsg) != model.ErrorMessageMax {
			t.Fatalf("error message is %d bytes, want %d", len(errMsg), model.ErrorMessageMax)
		}
	})

	t.Run("output, generation metadata and delivery round-trip", func(t *testing.T) {
		cleanup(t)
		jobID := seedJob(t, time.Now(), true)
		versionID := seedVersion(t, jobID, nil)
		run := newRun(jobID, versionID, nil)
		if err := repo.CreateRunning(ctx, repository.NoTx, run); err != nil {
			t.Fatal(err)
		}

		if err := repo.SaveOutput(ctx, repository.NoTx, run.ID, "full text", "preview"); err != nil {
			t.Fatal(err)
		}
		rec := model.GenerationRecord{
			Model:     "gpt-5-mini",
			UsedTool:  true,
			Usage:     json.RawMessage(`{"prompt_tokens":10}`),
			Citations: json.RawMessage(`[{"url":"https://a.example"}]`),
		}
		if err := repo.SaveGeneration(ctx, repository.NoTx, run.ID, rec); err != nil {
			t.Fatal(err)
		}
		deliveredAt := time.Now().Truncate(time.Second)
		if err := repo.MarkDelivered(ctx, repository.NoTx, run.ID, deliveredAt, 2); err != nil {
			t.Fatal(err)
		}

		var (
			outputText string
			mdl        string
			usedTool   bool
			attempts   int
		)
		err := testPool.QueryRow(ctx, `
			SELECT output_text, model, used_tool, delivery_attempts
			FROM run_histories WHERE id = $1`, run.ID).
			Scan(&outputText, &mdl, &usedTool, &attempts)
		if err != nil {
			t.Fatal(err)
		}
		if outputText != "full text" || mdl != "gpt-5-mini" || !usedTool || attempts != 2 {
			t.Fatalf("text=%q model=%q usedTool=%v attempts=%d", outputText, mdl, usedTool, attempts)
		}
	})

	t.Run("delivery receipts append", func(t *testing.T) {
		cleanup(t)
		jobID := seedJob(t, time.Now(), true)
		versionID := seedVersion(t, jobID, nil)
		run := newRun(jobID, versionID, nil)
		if err := repo.CreateRunning(ctx, repository.NoTx, run); err != nil {
			t.Fatal(err)
		}

		code := 503
		for attempt := 1; attempt <= 2; attempt++ {
			att := &model.DeliveryAttempt{
				RunHistoryID: run.ID,
				Attempt:      attempt,
				Status:       "fail",
				StatusCode:   &code,
				ErrorMessage: "unavailable",
			}
			if err := repo.RecordDeliveryAttempt(ctx, repository.NoTx, att); err != nil {
				t.Fatalf("receipt %d: %v", attempt, err)
			}
		}
		var n int
		if err := testPool.QueryRow(ctx,
			`SELECT count(*) FROM delivery_attempts WHERE run_history_id = $1`, run.ID).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Fatalf("got %d receipts, want 2", n)
		}
	})
}

func TestPromptVersionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPromptVersionRepo(testPool)

	t.Run("finds a version with variables", func(t *testing.T) {
		cleanup(t)
		jobID := seedJob(t, time.Now(), true)
		id := seedVersion(t, jobID, map[string]string{"topic": "tech"})

		got, err := repo.FindByID(ctx, repository.NoTx, id)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.Variables["topic"] != "tech" {
			t.Fatalf("variables = %v", got.Variables)
		}
		if !got.PostPromptEnabled || got.PostPrompt == "" {
			t.Fatalf("post prompt = %v %q", got.PostPromptEnabled, got.PostPrompt)
		}
	})

	t.Run("missing version is ErrNotFound", func(t *testing.T) {
		cleanup(t)
		_, err := repo.FindByID(ctx, repository.NoTx, uuid.NewString())
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})
}
