// Package notify delivers operator notifications over a Telegram
// channel. Delivery is best-effort: failures are logged and never
// propagated to the caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const telegramAPI = "https://api.telegram.org"

// Notifier is the one-way text sink the watcher reports through.
type Notifier interface {
	Send(ctx context.Context, text string)
}

type Telegram struct {
	hc     *http.Client
	base   string
	token  string
	chatID string
	logger *zap.Logger
}

func NewTelegram(token, chatID string, logger *zap.Logger) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{
		hc:     &http.Client{Timeout: 10 * time.Second},
		base:   telegramAPI,
		token:  token,
		chatID: chatID,
		logger: logger,
	}
}

// Send posts an HTML-formatted message to the configured chat.
func (t *Telegram) Send(ctx context.Context, text string) {
	payload, err := json.Marshal(map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		t.logger.Error("encode telegram payload", zap.Error(err))
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.base, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.logger.Error("build telegram request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.hc.Do(req)
	if err != nil {
		t.logger.Warn("telegram send failed", zap.Error(err))
		return
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		t.logger.Warn("telegram rejected message",
			zap.Int("status", res.StatusCode),
			zap.ByteString("body", body))
		return
	}
	t.logger.Debug("notification sent")
}

// Nop discards all notifications; used when no channel is configured
// and in tests.
type Nop struct{}

func (Nop) Send(context.Context, string) {}

// WithCounter wraps a notifier so count fires on every send.
func WithCounter(next Notifier, count func()) Notifier {
	return counted{next: next, count: count}
}

type counted struct {
	next  Notifier
	count func()
}

func (c counted) Send(ctx context.Context, text string) {
	c.count()
	c.next.Send(ctx, text)
}
