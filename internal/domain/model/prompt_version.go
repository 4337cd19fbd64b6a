package model

import "time"

// PromptVersion is the immutable snapshot a job executes. Publishing copies
// the editable template into a new version so concurrent edits never touch an
// in-flight run.
type PromptVersion struct {
	ID        string
	JobID     string
	Template  string
	Variables map[string]string

	PostPromptEnabled bool
	PostPrompt        string

	PublishedAt time.Time
}
