package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"prompt-job-runner/internal/domain"
	"prompt-job-runner/internal/domain/model"
	"prompt-job-runner/internal/domain/ports/adapter"
	"prompt-job-runner/internal/textchunk"
)

// Discord rejects messages over 2000 characters; 1900 leaves headroom for
// the fence bookkeeping the chunker adds at boundaries.
const discordMaxLen = 1900

const (
	rateLimitMinWait = 500 * time.Millisecond
	rateLimitMaxWait = 15 * time.Second
	rateLimitTries   = 3
)

var _ adapter.Transport = (*DiscordTransport)(nil)

// DiscordTransport posts chunked messages to a Discord webhook URL.
type DiscordTransport struct {
	webhookURL string
	client     *http.Client
	maxChunks  int
}

func NewDiscordTransport(webhookURL string, client *http.Client, maxChunks int) *DiscordTransport {
	return &DiscordTransport{webhookURL: webhookURL, client: client, maxChunks: maxChunks}
}

func (d *DiscordTransport) Kind() model.ChannelType { return model.ChannelDiscord }

func (d *DiscordTransport) Send(ctx context.Context, msg adapter.DeliveryMessage) error {
	chunks := textchunk.FenceAwareCapped(composeText(msg), discordMaxLen, d.maxChunks)
	for _, chunk := range chunks {
		if err := d.postChunk(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// postChunk sends one chunk, honoring Discord's rate limiting. A 429 is
// retried in place after the advertised wait so a multi-chunk message does
// not lose its tail to a single rate-limit window.
func (d *DiscordTransport) postChunk(ctx context.Context, content string) error {
	for try := 0; ; try++ {
		status, body, retryAfter, err := d.post(ctx, content)
		if err != nil {
			return &domain.DeliveryError{StatusCode: 503, Message: err.Error()}
		}
		if status < 300 {
			return nil
		}
		if status == http.StatusTooManyRequests && try < rateLimitTries-1 {
			if err := sleepCtx(ctx, clampWait(retryAfter)); err != nil {
				return &domain.DeliveryError{StatusCode: status, Message: err.Error()}
			}
			continue
		}
		return &domain.DeliveryError{StatusCode: status, Message: domain.Truncate(body, 500)}
	}
}

func (d *DiscordTransport) post(ctx context.Context, content string) (status int, body string, retryAfter time.Duration, err error) {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return 0, "", 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", 0, fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(raw), parseRetryAfter(resp, raw), nil
}

// parseRetryAfter prefers the retry_after field of Discord's JSON error body
// (seconds, fractional) and falls back to the Retry-After header.
func parseRetryAfter(resp *http.Response, body []byte) time.Duration {
	var rl struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &rl); err == nil && rl.RetryAfter > 0 {
		return time.Duration(rl.RetryAfter * float64(time.Second))
	}
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.ParseFloat(h, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}

func clampWait(d time.Duration) time.Duration {
	if d < rateLimitMinWait {
		return rateLimitMinWait
	}
	if d > rateLimitMaxWait {
		return rateLimitMaxWait
	}
	return d
}
