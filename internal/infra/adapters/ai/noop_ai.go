package ai

import (
	"context"

	"prompt-job-runner/internal/domain/ports/adapter"
)

var _ adapter.GenerationService = (*NoopAdapter)(nil)

// NoopAdapter echoes a canned reply; used in dev mode and tests.
type NoopAdapter struct{}

func (NoopAdapter) Generate(ctx context.Context, prompt string, opts adapter.GenerateOptions) (*adapter.GenerateResult, error) {
	res := &adapter.GenerateResult{
		Text:  "noop: " + prompt,
		Model: "noop",
	}
	if opts.UseTool {
		res.UsedTool = true
		res.ToolCalls = []adapter.ToolCall{{Type: "web_search", Query: "noop"}}
		res.Citations = []adapter.Citation{{URL: "https://example.com", Title: "noop"}}
	}
	return res, nil
}
