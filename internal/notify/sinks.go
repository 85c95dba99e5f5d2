package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSink posts events to a Telegram chat through the Bot API.
type TelegramSink struct {
	Token  string
	ChatID string
	// BaseURL overrides the Bot API endpoint, mainly for tests.
	BaseURL string
	Client  *http.Client
	// Prefix is prepended to every message, e.g. the site title.
	Prefix string
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Send(ctx context.Context, e Event) error {
	base := s.BaseURL
	if base == "" {
		base = telegramAPI
	}

	text := e.Text()
	if s.Prefix != "" {
		text = s.Prefix + ": " + text
	}

	payload := struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}{
		ChatID: s.ChatID,
		Text:   text,
	}

	return postJSON(ctx, s.client(), fmt.Sprintf("%s/bot%s/sendMessage", base, s.Token), payload)
}

func (s *TelegramSink) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

// WebhookSink posts each event as a JSON document to a URL.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Send(ctx context.Context, e Event) error {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	return postJSON(ctx, client, s.URL, e)
}

func postJSON(ctx context.Context, client *http.Client, url string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", stripURL(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", stripURL(err))
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

// stripURL drops the request URL from err, since it may carry the bot token.
func stripURL(err error) error {
	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
