// Package channel implements the delivery transports. The channel descriptor
// is a closed union over {discord, telegram, webhook, in_app}; each transport
// owns its chunking budget and wire encoding.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"prompt-job-runner/internal/domain"
	"prompt-job-runner/internal/domain/model"
	"prompt-job-runner/internal/domain/ports/adapter"
	"prompt-job-runner/internal/infra/security"
	"prompt-job-runner/internal/prompt"
)

var _ adapter.TransportResolver = (*Resolver)(nil)

// Resolver decrypts a job's stored channel config and builds its transport.
type Resolver struct {
	enc       *security.EncryptionService
	client    *http.Client
	maxChunks int
}

func NewResolver(enc *security.EncryptionService, maxChunks int) *Resolver {
	if maxChunks <= 0 {
		maxChunks = 10
	}
	return &Resolver{
		enc:       enc,
		client:    &http.Client{Timeout: 30 * time.Second},
		maxChunks: maxChunks,
	}
}

func (r *Resolver) Resolve(job *model.Job) (adapter.Transport, error) {
	switch job.ChannelType {
	case model.ChannelDiscord:
		var cfg struct {
			WebhookURLEnc string `json:"webhookUrlEnc"`
		}
		if err := json.Unmarshal(job.ChannelConfig, &cfg); err != nil {
			return nil, fmt.Errorf("discord channel config: %w", err)
		}
		url, err := r.enc.Decrypt(cfg.WebhookURLEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt webhook url: %w", err)
		}
		return NewDiscordTransport(url, r.client, r.maxChunks), nil

	case model.ChannelTelegram:
		var cfg struct {
			BotTokenEnc string `json:"botTokenEnc"`
			ChatIDEnc   string `json:"chatIdEnc"`
		}
		if err := json.Unmarshal(job.ChannelConfig, &cfg); err != nil {
			return nil, fmt.Errorf("telegram channel config: %w", err)
		}
		token, err := r.enc.Decrypt(cfg.BotTokenEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt bot token: %w", err)
		}
		chatID, err := r.enc.Decrypt(cfg.ChatIDEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt chat id: %w", err)
		}
		return NewTelegramTransport(token, chatID, r.client), nil

	case model.ChannelWebhook:
		var cfg struct {
			ConfigEnc string `json:"configEnc"`
		}
		if err := json.Unmarshal(job.ChannelConfig, &cfg); err != nil {
			return nil, fmt.Errorf("webhook channel config: %w", err)
		}
		raw, err := r.enc.Decrypt(cfg.ConfigEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt webhook config: %w", err)
		}
		var wc struct {
			URL     string `json:"url"`
			Method  string `json:"method"`
			Headers string `json:"headers"`
			Payload string `json:"payload"`
		}
		if err := json.Unmarshal([]byte(raw), &wc); err != nil {
			return nil, fmt.Errorf("webhook channel config: %w", err)
		}
		headers := map[string]string{}
		if wc.Headers != "" {
			if err := json.Unmarshal([]byte(wc.Headers), &headers); err != nil {
				return nil, fmt.Errorf("webhook headers: %w", err)
			}
		}
		return NewWebhookTransport(wc.URL, wc.Method, headers, wc.Payload, r.client, r.maxChunks), nil

	case model.ChannelInApp:
		return nil, domain.ErrNoRunnableChannel

	default:
		return nil, fmt.Errorf("%w: channel type %q", domain.ErrInvalidArgument, job.ChannelType)
	}
}

// composeText builds the full message: title, body, and a trailing Sources
// block when a tool-augmented run produced citations.
func composeText(msg adapter.DeliveryMessage) string {
	text := msg.Title + "\n\n" + msg.Body
	if msg.UsedTool {
		if sources := prompt.FormatSources(msg.Citations); sources != "" {
			text += "\n\n" + sources
		}
	}
	return text
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
