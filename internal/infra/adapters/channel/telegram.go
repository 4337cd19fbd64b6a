package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"prompt-job-runner/internal/domain"
	"prompt-job-runner/internal/domain/model"
	"prompt-job-runner/internal/domain/ports/adapter"
	"prompt-job-runner/internal/textchunk"
)

// Telegram caps message text at 4096 characters.
const telegramMaxLen = 4000

var _ adapter.Transport = (*TelegramTransport)(nil)

// TelegramTransport sends plain-text chunks through the Bot API sendMessage
// method. The chat id stays a string end to end so channel usernames and
// numeric ids both work.
type TelegramTransport struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

func NewTelegramTransport(token, chatID string, client *http.Client) *TelegramTransport {
	return &TelegramTransport{
		apiBase: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		client:  client,
	}
}

func (t *TelegramTransport) Kind() model.ChannelType { return model.ChannelTelegram }

func (t *TelegramTransport) Send(ctx context.Context, msg adapter.DeliveryMessage) error {
	for _, chunk := range textchunk.Plain(composeText(msg), telegramMaxLen) {
		if err := t.sendChunk(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *TelegramTransport) sendChunk(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return &domain.DeliveryError{StatusCode: 0, Message: err.Error()}
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &domain.DeliveryError{StatusCode: 0, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &domain.DeliveryError{StatusCode: 503, Message: fmt.Sprintf("telegram sendMessage: %v", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &domain.DeliveryError{StatusCode: resp.StatusCode, Message: domain.Truncate(string(raw), 500)}
	}
	return nil
}
