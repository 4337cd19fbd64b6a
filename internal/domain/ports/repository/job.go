package repository

import (
	"context"
	"time"

	"prompt-job-runner/internal/domain/model"
)

// JobRepository persists jobs and implements the claim/commit protocol.
//
// ClaimNextDue atomically selects the due, unlocked (or stale-locked) job with
// the earliest next_run_at, stamps locked_at, and returns the job together
// with the stamped instant. That instant is the lock token: every later
// state-changing write is conditioned on locked_at still matching it, so a
// runner that lost its lock observes a no-op instead of double-applying
// effects. Returns domain.ErrNotFound when no job qualifies.
type JobRepository interface {
	ClaimNextDue(ctx context.Context, staleAfter time.Duration) (*model.Job, time.Time, error)

	// CompleteSuccess clears the lock, resets fail_count and advances
	// next_run_at. Returns false when the lock token no longer matched.
	CompleteSuccess(ctx context.Context, tx Tx, jobID string, lockToken time.Time, nextRunAt time.Time) (bool, error)

	// CompleteFailure clears the lock and advances next_run_at. When
	// countFailure is true it increments fail_count and disables the job once
	// the count reaches disableThreshold; quota-blocked runs pass false and
	// leave fail_count untouched. Returns (updated, disabled).
	CompleteFailure(ctx context.Context, tx Tx, jobID string, lockToken time.Time, nextRunAt time.Time, countFailure bool, disableThreshold int) (bool, bool, error)

	// ReleaseLock clears the lock and advances next_run_at without touching
	// fail_count. Used on the duplicate-run path.
	ReleaseLock(ctx context.Context, jobID string, lockToken time.Time, nextRunAt time.Time) (bool, error)

	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
}

// PromptVersionRepository reads the immutable snapshots jobs execute.
type PromptVersionRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.PromptVersion, error)
}
