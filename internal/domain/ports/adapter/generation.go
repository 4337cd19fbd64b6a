package adapter

import "context"

// Citation is one source reference produced by a tool-augmented generation.
type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Usage as reported by the provider for a single call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ToolCall records one tool invocation the provider made while generating.
type ToolCall struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
	Query  string `json:"query,omitempty"`
}

type GenerateOptions struct {
	Model    string
	UseTool  bool
	ToolMode string
}

type GenerateResult struct {
	Text      string
	Model     string
	UsedTool  bool
	Citations []Citation
	Usage     Usage
	ToolCalls []ToolCall
}

// GenerationService is the port for the external text-generation service.
//
// Implementations fail with domain.ErrEmptyOutput when the service returns
// blank text, domain.ErrToolRequiredButUnused when opts.UseTool was set but no
// citations were produced (a hard failure, never silently degraded), and
// *domain.UpstreamError for transport and service failures.
type GenerationService interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error)
}
