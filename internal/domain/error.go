package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound              = errors.New("entity not found")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrInvalidExecContext    = errors.New("invalid execution context")
	ErrReadDatabaseRow       = errors.New("failed to read database row")
	ErrDuplicateRun          = errors.New("run already recorded for this occurrence")
	ErrQuotaExceeded         = errors.New("daily run budget exceeded")
	ErrEmptyOutput           = errors.New("generation returned empty output")
	ErrToolRequiredButUnused = errors.New("tool use was requested but produced no citations")
	ErrNoRunnableChannel     = errors.New("channel has no external transport")
)

// UpstreamError is a failure of the text-generation service or its transport.
// StatusCode drives the retry decision; 408 stands in for timeouts.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.StatusCode, e.Message)
}

// DeliveryError is a failed transport send. StatusCode 0 means the failure
// happened before any HTTP status was available (bad config, network error).
type DeliveryError struct {
	StatusCode int
	Message    string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery error %d: %s", e.StatusCode, e.Message)
}

// InvalidScheduleError marks a malformed schedule descriptor. The runner still
// advances the job with a fallback delay so it is retried rather than stuck.
type InvalidScheduleError struct {
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return "invalid schedule: " + e.Reason
}

// StatusCode extracts the HTTP status carried by an UpstreamError or
// DeliveryError anywhere in err's chain. Returns 0 when there is none.
func StatusCode(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.StatusCode
	}
	return 0
}

// Truncate caps a string for storage in preview and error columns.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
