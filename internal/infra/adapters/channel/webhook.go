package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"prompt-job-runner/internal/domain"
	"prompt-job-runner/internal/domain/model"
	"prompt-job-runner/internal/domain/ports/adapter"
	"prompt-job-runner/internal/textchunk"
)

var discordWebhookPattern = regexp.MustCompile(`^https://(ptb\.|canary\.)?(discord|discordapp)\.com/api/webhooks/`)

var _ adapter.Transport = (*WebhookTransport)(nil)

// WebhookTransport delivers to an arbitrary HTTP endpoint. Without a custom
// payload it sends a JSON envelope describing the run; with one it sends the
// payload verbatim, except that Discord-shaped webhooks get their "content"
// field chunked to the platform limit.
type WebhookTransport struct {
	url       string
	method    string
	headers   map[string]string
	payload   string
	client    *http.Client
	maxChunks int

	discordShaped bool
}

func NewWebhookTransport(url, method string, headers map[string]string, payload string, client *http.Client, maxChunks int) *WebhookTransport {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodPost
	}
	return &WebhookTransport{
		url:           url,
		method:        method,
		headers:       headers,
		payload:       payload,
		client:        client,
		maxChunks:     maxChunks,
		discordShaped: discordWebhookPattern.MatchString(url),
	}
}

func (w *WebhookTransport) Kind() model.ChannelType { return model.ChannelWebhook }

func (w *WebhookTransport) Send(ctx context.Context, msg adapter.DeliveryMessage) error {
	if strings.TrimSpace(w.payload) == "" {
		body, err := json.Marshal(map[string]any{
			"title":     msg.Title,
			"body":      msg.Body,
			"content":   composeText(msg),
			"usedTool":  msg.UsedTool,
			"citations": msg.Citations,
			"meta":      msg.Meta,
		})
		if err != nil {
			return &domain.DeliveryError{StatusCode: 0, Message: err.Error()}
		}
		return w.request(ctx, body)
	}

	if !json.Valid([]byte(w.payload)) {
		// Misconfigured payloads never self-heal; fail without retry.
		return &domain.DeliveryError{StatusCode: 0, Message: "custom payload is not valid JSON"}
	}

	if w.discordShaped {
		var obj map[string]any
		if err := json.Unmarshal([]byte(w.payload), &obj); err == nil {
			if content, ok := obj["content"].(string); ok && len(content) > discordMaxLen {
				for _, chunk := range textchunk.FenceAwareCapped(content, discordMaxLen, w.maxChunks) {
					obj["content"] = chunk
					body, err := json.Marshal(obj)
					if err != nil {
						return &domain.DeliveryError{StatusCode: 0, Message: err.Error()}
					}
					if err := w.request(ctx, body); err != nil {
						return err
					}
				}
				return nil
			}
		}
	}

	return w.request(ctx, []byte(w.payload))
}

func (w *WebhookTransport) request(ctx context.Context, body []byte) error {
	var reader io.Reader
	if w.method != http.MethodGet {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, w.method, w.url, reader)
	if err != nil {
		return &domain.DeliveryError{StatusCode: 0, Message: err.Error()}
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return &domain.DeliveryError{StatusCode: 503, Message: fmt.Sprintf("webhook request: %v", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &domain.DeliveryError{StatusCode: resp.StatusCode, Message: domain.Truncate(string(raw), 500)}
	}
	return nil
}
