package repository

import (
	"context"
	"time"

	"prompt-job-runner/internal/domain/model"
)

// RunHistoryRepository persists run rows and their delivery receipts.
type RunHistoryRepository interface {
	// CreateRunning inserts a run in "running" state. For scheduled runs the
	// (job_id, scheduled_for) unique constraint may fire; that is surfaced as
	// domain.ErrDuplicateRun and means another runner already owns this
	// occurrence.
	CreateRunning(ctx context.Context, tx Tx, run *model.RunHistory) error

	SaveOutput(ctx context.Context, tx Tx, runID, outputText, outputPreview string) error

	SaveGeneration(ctx context.Context, tx Tx, runID string, rec model.GenerationRecord) error

	MarkDelivered(ctx context.Context, tx Tx, runID string, at time.Time, attempts int) error

	// Finalize sets the terminal status and error message exactly once.
	Finalize(ctx context.Context, tx Tx, runID string, status model.RunStatus, errorMessage string) error

	// RecordDeliveryAttempt appends one receipt row; receipts are never
	// updated.
	RecordDeliveryAttempt(ctx context.Context, tx Tx, att *model.DeliveryAttempt) error
}
