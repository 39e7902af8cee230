package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"instabot-trader/internal/config"
	"instabot-trader/internal/security"
)

func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "InstabotTrader/1.0")

	return client.Do(req)
}

// WebhookChannel sends notifications via HTTP webhook.
type WebhookChannel struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookChannel creates a new WebhookChannel.
func NewWebhookChannel(cfg config.WebhookConfig, client *http.Client) *WebhookChannel {
	return &WebhookChannel{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client:  client,
	}
}

// Name returns the name of the channel.
func (w *WebhookChannel) Name() string {
	return config.ChannelWebhook
}

// IsEnabled returns whether the channel is enabled.
func (w *WebhookChannel) IsEnabled() bool {
	return w.enabled
}

// Send sends a notification via webhook.
func (w *WebhookChannel) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"message":   n.Message,
		"title":     n.Options.Title,
		"color":     n.Options.Color,
		"text":      n.Options.Text,
		"footer":    n.Options.Footer,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}

	resp, err := postJSON(ctx, w.client, w.url, payload)
	if err != nil {
		return security.RedactError(fmt.Errorf("sending webhook: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// TelegramChannel sends notifications via a Telegram bot.
type TelegramChannel struct {
	baseURL  string
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// NewTelegramChannel creates a new TelegramChannel.
func NewTelegramChannel(cfg config.TelegramConfig, client *http.Client) *TelegramChannel {
	return &TelegramChannel{
		baseURL:  "https://api.telegram.org",
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client:   client,
	}
}

// Name returns the name of the channel.
func (t *TelegramChannel) Name() string {
	return config.ChannelTelegram
}

// IsEnabled returns whether the channel is enabled.
func (t *TelegramChannel) IsEnabled() bool {
	return t.enabled
}

// Send sends a notification via Telegram. A title, when given, is shown
// in bold above the message.
func (t *TelegramChannel) Send(ctx context.Context, n Notification) error {
	if !t.enabled {
		return nil
	}

	text := escapeHTML(n.Message)
	if n.Options.Title != "" {
		text = fmt.Sprintf("<b>%s</b>\n\n%s", escapeHTML(n.Options.Title), text)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}

	resp, err := postJSON(ctx, t.client, url, payload)
	if err != nil {
		return security.RedactError(fmt.Errorf("sending telegram message: %w", err), t.botToken)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// escapeHTML escapes HTML special characters for Telegram.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// SlackChannel posts notifications to a Slack incoming webhook.
type SlackChannel struct {
	webhook string
	enabled bool
	client  *http.Client
}

type slackAttachment struct {
	Fallback string `json:"fallback"`
	Color    string `json:"color,omitempty"`
	Title    string `json:"title"`
	Text     string `json:"text,omitempty"`
	Footer   string `json:"footer,omitempty"`
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

// NewSlackChannel creates a new SlackChannel.
func NewSlackChannel(cfg config.SlackConfig, client *http.Client) *SlackChannel {
	return &SlackChannel{
		webhook: cfg.Webhook,
		enabled: cfg.Enabled && cfg.Webhook != "",
		client:  client,
	}
}

// Name returns the name of the channel.
func (s *SlackChannel) Name() string {
	return config.ChannelSlack
}

// IsEnabled returns whether the channel is enabled.
func (s *SlackChannel) IsEnabled() bool {
	return s.enabled
}

// Send posts the message. A titled notification carries its options as
// an attachment.
func (s *SlackChannel) Send(ctx context.Context, n Notification) error {
	if !s.enabled {
		return nil
	}

	msg := slackMessage{Text: n.Message}
	if n.Options.Title != "" {
		msg.Attachments = []slackAttachment{{
			Fallback: n.Options.Title,
			Color:    n.Options.Color,
			Title:    n.Options.Title,
			Text:     n.Options.Text,
			Footer:   n.Options.Footer,
		}}
	}

	resp, err := postJSON(ctx, s.client, s.webhook, msg)
	if err != nil {
		return security.RedactError(fmt.Errorf("sending slack message: %w", err), s.webhook)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
