// Package notify delivers best-effort attendance notifications. Delivery is
// fire-and-forget: a failed send is logged and never retried.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const sendTimeout = 5 * time.Second

// Sender dispatches one message to a notification target.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Telegram posts messages through the Bot API.
type Telegram struct {
	token string
	http  *http.Client

	// BaseURL is the API host; overridden in tests.
	BaseURL string
}

func NewTelegram(token string) *Telegram {
	return &Telegram{
		token:   token,
		http:    &http.Client{Timeout: sendTimeout},
		BaseURL: "https://api.telegram.org",
	}
}

func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram sendMessage: status %d", resp.StatusCode)
	}
	return nil
}

// Noop is used when no bot token is configured.
type Noop struct{}

func (Noop) Send(context.Context, int64, string) error { return nil }
