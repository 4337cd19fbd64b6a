package model

import (
	"encoding/json"
	"time"
)

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFail    RunStatus = "fail"
)

const (
	OutputPreviewMax = 1000
	ErrorMessageMax  = 500
)

// RunHistory is one execution attempt. For scheduled runs the pair
// (JobID, ScheduledFor) is unique; that constraint is the idempotency boundary
// between overlapping runner processes. Rows are created in "running" state
// and finalized exactly once.
type RunHistory struct {
	ID              string
	JobID           string
	PromptVersionID string
	ScheduledFor    *time.Time // nil for manual runs
	Status          RunStatus

	OutputText    string
	OutputPreview string
	ErrorMessage  string

	RunnerID  string
	IsPreview bool

	DeliveredAt       *time.Time
	DeliveryAttempts  int
	DeliveryLastError string

	Model     string
	UsedTool  bool
	Usage     json.RawMessage
	ToolCalls json.RawMessage
	Citations json.RawMessage

	RunAt time.Time
}

// GenerationRecord carries the generation metadata persisted onto a run.
// For two-stage runs Usage and ToolCalls hold a {"primary":…,"post":…} object.
type GenerationRecord struct {
	Model     string
	UsedTool  bool
	Usage     json.RawMessage
	ToolCalls json.RawMessage
	Citations json.RawMessage
}

// DeliveryAttempt is an append-only receipt for one transport send, success or
// failure. Never updated after insert.
type DeliveryAttempt struct {
	ID           string
	RunHistoryID string
	Attempt      int
	Status       string // "success" | "fail"
	StatusCode   *int
	ErrorMessage string
	CreatedAt    time.Time
}
