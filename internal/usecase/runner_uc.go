// Package usecase holds the application services. RunnerUseCase is the
// execution orchestrator: it drains due jobs one at a time through the
// claim, generate, deliver, finalize pipeline.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"prompt-job-runner/internal/config"
	"prompt-job-runner/internal/domain"
	"prompt-job-runner/internal/domain/model"
	"prompt-job-runner/internal/domain/ports/adapter"
	"prompt-job-runner/internal/domain/ports/repository"
	"prompt-job-runner/internal/infra/logging"
	"prompt-job-runner/internal/infra/metrics"
	"prompt-job-runner/internal/prompt"
	"prompt-job-runner/internal/retry"
	"prompt-job-runner/internal/schedule"
)

// invalidScheduleBackoff is how far a job with a malformed schedule gets
// pushed so it keeps surfacing as a run error instead of hot-looping.
const invalidScheduleBackoff = 10 * time.Minute

const (
	outcomeSuccess      = "success"
	outcomeFail         = "fail"
	outcomeDisabled     = "disabled"
	outcomeDuplicate    = "duplicate"
	outcomeQuotaBlocked = "quota_blocked"
)

// RunParams bounds one runner cycle. Zero values fall back to the worker
// config.
type RunParams struct {
	RunnerID   string
	MaxJobs    int
	TimeBudget time.Duration
}

// Counters summarizes one cycle. Disabled runs are counted under Fail too.
type Counters struct {
	Processed    int `json:"processed"`
	Success      int `json:"success"`
	Fail         int `json:"fail"`
	Disabled     int `json:"disabled"`
	Duplicates   int `json:"duplicates"`
	QuotaBlocked int `json:"quotaBlocked"`
}

// RunnerUseCase drains due jobs through one runner cycle.
type RunnerUseCase interface {
	RunDueJobs(ctx context.Context, params RunParams) (Counters, error)
}

var _ RunnerUseCase = (*runnerUC)(nil)

type runnerUC struct {
	jobs       repository.JobRepository
	versions   repository.PromptVersionRepository
	runs       repository.RunHistoryRepository
	tm         repository.TransactionManager
	quota      adapter.QuotaGuard
	gen        adapter.GenerationService
	transports adapter.TransportResolver

	cfg          config.WorkerConfig
	defaultModel string
	log          *zerolog.Logger

	now func() time.Time
}

func NewRunnerUseCase(
	jobs repository.JobRepository,
	versions repository.PromptVersionRepository,
	runs repository.RunHistoryRepository,
	tm repository.TransactionManager,
	quota adapter.QuotaGuard,
	gen adapter.GenerationService,
	transports adapter.TransportResolver,
	cfg config.WorkerConfig,
	defaultModel string,
	log *zerolog.Logger,
) *runnerUC {
	return &runnerUC{
		jobs:         jobs,
		versions:     versions,
		runs:         runs,
		tm:           tm,
		quota:        quota,
		gen:          gen,
		transports:   transports,
		cfg:          cfg,
		defaultModel: defaultModel,
		log:          log,
		now:          time.Now,
	}
}

// RunDueJobs claims and executes due jobs until none remain, the job cap is
// reached, or the time budget runs out. Per-job failures are absorbed into
// the counters; only claim-channel breakage aborts the cycle.
func (u *runnerUC) RunDueJobs(ctx context.Context, params RunParams) (Counters, error) {
	if params.RunnerID == "" {
		params.RunnerID = uuid.NewString()
	}
	if params.MaxJobs <= 0 {
		params.MaxJobs = u.cfg.MaxJobsPerRun
	}
	if params.TimeBudget <= 0 {
		params.TimeBudget = u.cfg.TimeBudget
	}

	ctx = logging.WithRunnerID(ctx, params.RunnerID)
	log := logging.With(ctx, u.log)

	started := u.now()
	deadline := started.Add(params.TimeBudget)
	defer func() { metrics.ObserveRunnerCycle(time.Since(started).Seconds()) }()

	var c Counters
	for c.Processed < params.MaxJobs {
		if !u.now().Before(deadline) {
			log.Warn().Dur("budget", params.TimeBudget).Msg("time budget exhausted; leaving remaining jobs for the next cycle")
			break
		}
		if err := ctx.Err(); err != nil {
			return c, err
		}

		job, lockToken, err := u.jobs.ClaimNextDue(ctx, u.cfg.LockStale)
		if errors.Is(err, domain.ErrNotFound) {
			break
		}
		if err != nil {
			return c, fmt.Errorf("claim next due job: %w", err)
		}

		c.Processed++
		outcome := u.runClaimed(ctx, job, lockToken, params.RunnerID)
		metrics.IncRun(outcome)
		switch outcome {
		case outcomeSuccess:
			c.Success++
		case outcomeDisabled:
			c.Fail++
			c.Disabled++
		case outcomeDuplicate:
			c.Duplicates++
		case outcomeQuotaBlocked:
			c.QuotaBlocked++
		default:
			c.Fail++
		}
	}

	log.Info().
		Int("processed", c.Processed).
		Int("success", c.Success).
		Int("fail", c.Fail).
		Int("disabled", c.Disabled).
		Int("duplicates", c.Duplicates).
		Int("quota_blocked", c.QuotaBlocked).
		Msg("runner cycle finished")
	return c, nil
}

// runClaimed executes one claimed job end to end and always commits a
// terminal job state (or a lock release) before returning.
func (u *runnerUC) runClaimed(ctx context.Context, job *model.Job, lockToken time.Time, runnerID string) string {
	ctx = logging.WithJobID(ctx, job.ID)
	log := logging.With(ctx, u.log)

	scheduledFor := job.NextRunAt

	version, err := u.versions.FindByID(ctx, repository.NoTx, job.PublishedVersionID)
	if err != nil {
		log.Error().Err(err).Str("version_id", job.PublishedVersionID).Msg("prompt version unavailable")
		return u.commitFailure(ctx, job, lockToken, "", fmt.Errorf("load prompt version: %w", err), true)
	}

	run := &model.RunHistory{
		ID:              uuid.NewString(),
		JobID:           job.ID,
		PromptVersionID: version.ID,
		ScheduledFor:    &scheduledFor,
		Status:          model.RunStatusRunning,
		RunnerID:        runnerID,
		Model:           u.resolveModel(job),
		RunAt:           u.now(),
	}
	if err := u.runs.CreateRunning(ctx, repository.NoTx, run); err != nil {
		if errors.Is(err, domain.ErrDuplicateRun) {
			// Another runner already owns this occurrence; step aside
			// without touching fail_count.
			log.Info().Time("scheduled_for", scheduledFor).Msg("occurrence already claimed elsewhere")
			if _, relErr := u.jobs.ReleaseLock(ctx, job.ID, lockToken, u.nextRunOrFallback(job, log)); relErr != nil {
				log.Error().Err(relErr).Msg("release lock after duplicate")
			}
			return outcomeDuplicate
		}
		log.Error().Err(err).Msg("create run row")
		return u.commitFailure(ctx, job, lockToken, "", fmt.Errorf("create run: %w", err), true)
	}

	ctx = logging.WithRunID(ctx, run.ID)
	log = logging.With(ctx, u.log)

	if err := u.quota.CheckDailyRunBudget(ctx, job.OwnerID); err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			log.Warn().Str("owner_id", job.OwnerID).Msg("daily run quota exceeded")
			metrics.IncQuotaBlocked()
			u.commitFailure(ctx, job, lockToken, run.ID, err, false)
			return outcomeQuotaBlocked
		}
		return u.commitFailure(ctx, job, lockToken, run.ID, fmt.Errorf("quota check: %w", err), true)
	}

	out, err := u.generate(ctx, job, version, scheduledFor)
	if err != nil {
		log.Error().Err(err).Msg("generation failed")
		return u.commitFailure(ctx, job, lockToken, run.ID, err, true)
	}

	preview := domain.Truncate(out.text, model.OutputPreviewMax)
	if err := u.runs.SaveOutput(ctx, repository.NoTx, run.ID, out.text, preview); err != nil {
		log.Error().Err(err).Msg("save output")
		return u.commitFailure(ctx, job, lockToken, run.ID, fmt.Errorf("save output: %w", err), true)
	}
	if err := u.runs.SaveGeneration(ctx, repository.NoTx, run.ID, out.rec); err != nil {
		log.Error().Err(err).Msg("save generation metadata")
		return u.commitFailure(ctx, job, lockToken, run.ID, fmt.Errorf("save generation: %w", err), true)
	}

	if err := u.deliver(ctx, job, run, out, scheduledFor); err != nil {
		log.Error().Err(err).Msg("delivery failed")
		return u.commitFailure(ctx, job, lockToken, run.ID, err, true)
	}

	return u.commitSuccess(ctx, job, lockToken, run.ID, log)
}

func (u *runnerUC) resolveModel(job *model.Job) string {
	if job.Model != "" {
		return job.Model
	}
	return u.defaultModel
}

type generationOutcome struct {
	text        string
	primary     *adapter.GenerateResult
	rec         model.GenerationRecord
	postApplied bool
	postWarning string
}

// generate runs the primary pass, then the post-processing pass when the
// version carries one. The post pass never uses the search tool; it reshapes
// the primary output.
func (u *runnerUC) generate(ctx context.Context, job *model.Job, version *model.PromptVersion, scheduledFor time.Time) (*generationOutcome, error) {
	log := logging.With(ctx, u.log)

	// GenerationRetries is the total attempt cap, not the extra-retry count.
	policy := retry.Policy{
		MaxAttempts: u.cfg.GenerationRetries,
		BaseBackoff: u.cfg.RetryBackoffBase,
		MaxBackoff:  u.cfg.RetryBackoffMax,
	}
	retryable := func(err error) bool { return retry.RetryableStatus(domain.StatusCode(err)) }

	opts := adapter.GenerateOptions{
		Model:    u.resolveModel(job),
		UseTool:  job.UseTool,
		ToolMode: job.ToolMode,
	}
	compiled := prompt.Compile(version.Template, version.Variables, scheduledFor)

	start := time.Now()
	primary, err := retry.DoValue(ctx, policy, retryable, func(ctx context.Context) (*adapter.GenerateResult, error) {
		return u.gen.Generate(ctx, compiled, opts)
	})
	metrics.ObserveGeneration("primary", time.Since(start).Seconds(), err == nil)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	out := &generationOutcome{text: primary.Text, primary: primary}
	modelUsed := primary.Model
	if modelUsed == "" {
		modelUsed = opts.Model
	}

	usage := any(primary.Usage)
	toolCalls := any(primary.ToolCalls)

	pc := prompt.NormalizePostConfig(version.PostPromptEnabled, version.PostPrompt)
	if pc.Warning != "" {
		out.postWarning = pc.Warning
		log.Warn().Msg(pc.Warning)
	}
	if pc.Enabled {
		vars := prompt.BuildPostVariables(version.Variables, primary.Text, primary.Citations, primary.UsedTool, modelUsed)
		postPrompt := prompt.Compile(pc.Template, vars, scheduledFor)
		postOpts := adapter.GenerateOptions{Model: opts.Model, UseTool: false}

		start = time.Now()
		post, err := retry.DoValue(ctx, policy, retryable, func(ctx context.Context) (*adapter.GenerateResult, error) {
			return u.gen.Generate(ctx, postPrompt, postOpts)
		})
		metrics.ObserveGeneration("post", time.Since(start).Seconds(), err == nil)
		if err != nil {
			return nil, fmt.Errorf("post-processing pass: %w", err)
		}

		out.text = post.Text
		out.postApplied = true
		usage = map[string]adapter.Usage{"primary": primary.Usage, "post": post.Usage}
		toolCalls = map[string][]adapter.ToolCall{"primary": primary.ToolCalls, "post": post.ToolCalls}
	}

	out.rec = model.GenerationRecord{
		Model:     modelUsed,
		UsedTool:  primary.UsedTool,
		Usage:     mustRaw(usage),
		ToolCalls: mustRaw(toolCalls),
		Citations: mustRaw(primary.Citations),
	}
	return out, nil
}

// deliver resolves the job's transport and sends with per-attempt receipts.
// In-app jobs have no transport; the run row itself is the delivery.
func (u *runnerUC) deliver(ctx context.Context, job *model.Job, run *model.RunHistory, out *generationOutcome, scheduledFor time.Time) error {
	log := logging.With(ctx, u.log)

	transport, err := u.transports.Resolve(job)
	if errors.Is(err, domain.ErrNoRunnableChannel) {
		if err := u.runs.MarkDelivered(ctx, repository.NoTx, run.ID, u.now(), 0); err != nil {
			return fmt.Errorf("mark delivered: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve channel: %w", err)
	}

	msg := adapter.DeliveryMessage{
		Title:     prompt.RunTitle(job.Name, scheduledFor),
		Body:      out.text,
		Citations: out.primary.Citations,
		UsedTool:  out.primary.UsedTool,
		Meta: map[string]any{
			"jobId":             job.ID,
			"promptVersionId":   run.PromptVersionID,
			"scheduledFor":      scheduledFor.UTC().Format(time.RFC3339),
			"model":             out.rec.Model,
			"usage":             json.RawMessage(out.rec.Usage),
			"postPromptApplied": out.postApplied,
		},
	}
	if out.postWarning != "" {
		msg.Meta["postPromptWarning"] = out.postWarning
	}

	maxAttempts := u.cfg.DeliveryRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	policy := retry.Policy{
		MaxAttempts: maxAttempts,
		BaseBackoff: u.cfg.RetryBackoffBase,
		MaxBackoff:  u.cfg.RetryBackoffMax,
	}.Normalize()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendErr := transport.Send(ctx, msg)

		receipt := &model.DeliveryAttempt{
			ID:           uuid.NewString(),
			RunHistoryID: run.ID,
			Attempt:      attempt,
			Status:       "success",
			CreatedAt:    u.now(),
		}
		if sendErr != nil {
			receipt.Status = "fail"
			receipt.ErrorMessage = domain.Truncate(sendErr.Error(), model.ErrorMessageMax)
			if code := domain.StatusCode(sendErr); code != 0 {
				receipt.StatusCode = &code
			}
		}
		if recErr := u.runs.RecordDeliveryAttempt(ctx, repository.NoTx, receipt); recErr != nil {
			log.Error().Err(recErr).Int("attempt", attempt).Msg("record delivery receipt")
		}
		metrics.IncDeliveryAttempt(string(transport.Kind()), receipt.Status)

		if sendErr == nil {
			if err := u.runs.MarkDelivered(ctx, repository.NoTx, run.ID, u.now(), attempt); err != nil {
				return fmt.Errorf("mark delivered: %w", err)
			}
			return nil
		}

		lastErr = sendErr
		if attempt == maxAttempts || !retry.RetryableStatus(domain.StatusCode(sendErr)) {
			break
		}
		if err := sleepCtx(ctx, policy.Backoff(attempt)); err != nil {
			return fmt.Errorf("deliver: %w", err)
		}
	}
	return fmt.Errorf("deliver: %w", lastErr)
}

// commitSuccess finalizes the run and the job atomically under the lock
// token.
func (u *runnerUC) commitSuccess(ctx context.Context, job *model.Job, lockToken time.Time, runID string, log *zerolog.Logger) string {
	nextRunAt, schedErr := schedule.NextRunAt(schedule.FromJob(job), u.now())
	if schedErr != nil {
		// The run itself produced and delivered output, but the job can no
		// longer compute its next occurrence; record that as the run error.
		log.Error().Err(schedErr).Msg("schedule advance failed")
		return u.finalize(ctx, job, lockToken, runID, u.now().Add(invalidScheduleBackoff), fmt.Errorf("advance schedule: %w", schedErr), true)
	}

	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.runs.Finalize(ctx, tx, runID, model.RunStatusSuccess, ""); err != nil {
			return err
		}
		updated, err := u.jobs.CompleteSuccess(ctx, tx, job.ID, lockToken, nextRunAt)
		if err != nil {
			return err
		}
		if !updated {
			return fmt.Errorf("lock token no longer held for job %s", job.ID)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("finalize success")
		return outcomeFail
	}
	log.Info().Time("next_run_at", nextRunAt).Msg("run succeeded")
	return outcomeSuccess
}

// commitFailure finalizes a failed run (when a run row exists) and commits
// the failure onto the job, honoring the auto-disable threshold.
func (u *runnerUC) commitFailure(ctx context.Context, job *model.Job, lockToken time.Time, runID string, runErr error, countFailure bool) string {
	log := logging.With(ctx, u.log)
	return u.finalize(ctx, job, lockToken, runID, u.nextRunOrFallback(job, log), runErr, countFailure)
}

func (u *runnerUC) finalize(ctx context.Context, job *model.Job, lockToken time.Time, runID string, nextRunAt time.Time, runErr error, countFailure bool) string {
	log := logging.With(ctx, u.log)

	var disabled bool
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if runID != "" {
			if err := u.runs.Finalize(ctx, tx, runID, model.RunStatusFail, runErr.Error()); err != nil {
				return err
			}
		}
		updated, d, err := u.jobs.CompleteFailure(ctx, tx, job.ID, lockToken, nextRunAt, countFailure, u.cfg.FailDisableAfter)
		if err != nil {
			return err
		}
		if !updated {
			return fmt.Errorf("lock token no longer held for job %s", job.ID)
		}
		disabled = d
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("finalize failure")
		return outcomeFail
	}
	if disabled {
		log.Warn().Int("threshold", u.cfg.FailDisableAfter).Msg("job auto-disabled after consecutive failures")
		return outcomeDisabled
	}
	return outcomeFail
}

// nextRunOrFallback computes the job's next occurrence, falling back to a
// short push when the schedule is malformed.
func (u *runnerUC) nextRunOrFallback(job *model.Job, log *zerolog.Logger) time.Time {
	next, err := schedule.NextRunAt(schedule.FromJob(job), u.now())
	if err != nil {
		log.Warn().Err(err).Msg("invalid schedule; pushing next run")
		return u.now().Add(invalidScheduleBackoff)
	}
	return next
}

func mustRaw(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
