package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"prompt-job-runner/internal/domain"
	"prompt-job-runner/internal/domain/ports/adapter"
)

var _ adapter.GenerationService = (*GeminiAdapter)(nil)

// GeminiAdapter implements the generation port with the official SDK.
// Tool-augmented calls use Google Search grounding; grounding chunks become
// the citations.
type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	timeout      time.Duration
	toolTimeout  time.Duration
}

func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, timeout, toolTimeout time.Duration) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if toolTimeout <= 0 {
		toolTimeout = 120 * time.Second
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel, timeout: timeout, toolTimeout: toolTimeout}, nil
}

func (g *GeminiAdapter) Generate(ctx context.Context, prompt string, opts adapter.GenerateOptions) (*adapter.GenerateResult, error) {
	model := opts.Model
	if strings.TrimSpace(model) == "" {
		model = g.defaultModel
	}

	timeout := g.timeout
	cfg := &genai.GenerateContentConfig{}
	if opts.UseTool {
		timeout = g.toolTimeout
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code != 0 {
			return nil, &domain.UpstreamError{StatusCode: apiErr.Code, Message: domain.Truncate(apiErr.Message, 500)}
		}
		return nil, &domain.UpstreamError{StatusCode: transportStatus(err), Message: err.Error()}
	}

	result := &adapter.GenerateResult{
		Model: model,
		Text:  strings.TrimSpace(resp.Text()),
	}

	if resp.UsageMetadata != nil {
		result.Usage = adapter.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].GroundingMetadata != nil {
		gm := resp.Candidates[0].GroundingMetadata
		for _, q := range gm.WebSearchQueries {
			result.ToolCalls = append(result.ToolCalls, adapter.ToolCall{Type: "web_search", Query: q})
		}
		for _, chunk := range gm.GroundingChunks {
			if chunk.Web != nil && chunk.Web.URI != "" {
				result.Citations = append(result.Citations, adapter.Citation{URL: chunk.Web.URI, Title: chunk.Web.Title})
			}
		}
	}
	result.UsedTool = len(result.ToolCalls) > 0

	if result.Text == "" {
		return nil, domain.ErrEmptyOutput
	}
	if opts.UseTool && len(result.Citations) == 0 {
		return nil, domain.ErrToolRequiredButUnused
	}
	return result, nil
}
