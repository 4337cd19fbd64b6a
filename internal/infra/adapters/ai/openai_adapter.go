package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"prompt-job-runner/internal/domain"
	"prompt-job-runner/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.GenerationService = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements the generation port against the Responses API.
type OpenAIAdapter struct {
	apiKey       string
	base         string // e.g. https://api.openai.com/v1
	defaultModel string
	timeout      time.Duration
	toolTimeout  time.Duration
	client       *http.Client
}

func NewOpenAIAdapter(apiKey, base, defaultModel string, timeout, toolTimeout time.Duration) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if defaultModel == "" {
		defaultModel = "gpt-5-mini"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if toolTimeout <= 0 {
		toolTimeout = 120 * time.Second
	}
	return &OpenAIAdapter{
		apiKey:       apiKey,
		base:         strings.TrimRight(base, "/"),
		defaultModel: defaultModel,
		timeout:      timeout,
		toolTimeout:  toolTimeout,
		client:       &http.Client{},
	}, nil
}

type responsesTool struct {
	Type              string `json:"type"`
	SearchContextSize string `json:"search_context_size,omitempty"`
}

type responsesRequest struct {
	Model string          `json:"model"`
	Input string          `json:"input"`
	Tools []responsesTool `json:"tools,omitempty"`
}

type responsesBody struct {
	Model  string `json:"model"`
	Output []struct {
		Type    string `json:"type"` // "message" | "web_search_call"
		ID      string `json:"id"`
		Status  string `json:"status"`
		Action  struct {
			Query string `json:"query"`
		} `json:"action"`
		Content []struct {
			Type        string `json:"type"` // "output_text"
			Text        string `json:"text"`
			Annotations []struct {
				Type  string `json:"type"` // "url_citation"
				URL   string `json:"url"`
				Title string `json:"title"`
			} `json:"annotations"`
		} `json:"content"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func (o *OpenAIAdapter) Generate(ctx context.Context, prompt string, opts adapter.GenerateOptions) (*adapter.GenerateResult, error) {
	model := opts.Model
	if strings.TrimSpace(model) == "" {
		model = o.defaultModel
	}

	timeout := o.timeout
	reqBody := responsesRequest{Model: model, Input: prompt}
	if opts.UseTool {
		timeout = o.toolTimeout
		tool := responsesTool{Type: "web_search_preview"}
		if m := strings.TrimSpace(opts.ToolMode); m != "" && m != "default" {
			tool.SearchContextSize = m
		}
		reqBody.Tools = []responsesTool{tool}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/responses", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{StatusCode: transportStatus(err), Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return nil, &domain.UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    domain.Truncate(string(body), 500),
		}
	}

	var parsed responsesBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &domain.UpstreamError{StatusCode: resp.StatusCode, Message: "malformed response body"}
	}

	result := &adapter.GenerateResult{Model: parsed.Model}
	if result.Model == "" {
		result.Model = model
	}

	var text strings.Builder
	for _, out := range parsed.Output {
		switch out.Type {
		case "web_search_call":
			result.ToolCalls = append(result.ToolCalls, adapter.ToolCall{
				ID:     out.ID,
				Type:   "web_search",
				Status: out.Status,
				Query:  out.Action.Query,
			})
		case "message":
			for _, c := range out.Content {
				if c.Type != "output_text" {
					continue
				}
				text.WriteString(c.Text)
				for _, a := range c.Annotations {
					if a.Type == "url_citation" && a.URL != "" {
						result.Citations = append(result.Citations, adapter.Citation{URL: a.URL, Title: a.Title})
					}
				}
			}
		}
	}

	result.Text = strings.TrimSpace(text.String())
	result.UsedTool = len(result.ToolCalls) > 0
	result.Usage = adapter.Usage{
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}

	if result.Text == "" {
		return nil, domain.ErrEmptyOutput
	}
	// Sourcing was mandatory; an answer without citations must not ship.
	if opts.UseTool && len(result.Citations) == 0 {
		return nil, domain.ErrToolRequiredButUnused
	}
	return result, nil
}

// transportStatus maps request-level failures onto retryable status codes:
// 408 for deadline expiry, 503 for everything else (connection refused, DNS).
func transportStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return 408
	}
	return 503
}
