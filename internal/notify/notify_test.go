package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instabot-trader/internal/config"
	"instabot-trader/internal/exchange"
	"instabot-trader/internal/models"
)

var _ exchange.Notifier = (*Router)(nil)

type recordingChannel struct {
	name     string
	disabled bool
	err      error

	mu   sync.Mutex
	sent []Notification
}

func (c *recordingChannel) Name() string    { return c.name }
func (c *recordingChannel) IsEnabled() bool { return !c.disabled }

func (c *recordingChannel) Send(ctx context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return c.err
}

func (c *recordingChannel) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, n := range c.sent {
		out = append(out, n.Message)
	}
	return out
}

func TestRouterSend(t *testing.T) {
	slack := &recordingChannel{name: "slack"}
	telegram := &recordingChannel{name: "telegram"}
	webhook := &recordingChannel{name: "webhook", disabled: true}

	r := NewRouter([]string{"slack", "webhook"}, zerolog.Nop())
	r.AddChannel(slack)
	r.AddChannel(telegram)
	r.AddChannel(webhook)
	ctx := context.Background()

	require.NoError(t, r.Send(ctx, "to the defaults", models.NotifyOptions{}, WhoDefault))
	require.NoError(t, r.Send(ctx, "also the defaults", models.NotifyOptions{}, ""))
	require.NoError(t, r.Send(ctx, "just telegram", models.NotifyOptions{}, "telegram"))
	require.NoError(t, r.Send(ctx, "nobody", models.NotifyOptions{}, "sms"))

	assert.Equal(t, []string{"to the defaults", "also the defaults"}, slack.messages())
	assert.Equal(t, []string{"just telegram"}, telegram.messages())
	assert.Empty(t, webhook.messages())
}

func TestRouterReportsChannelErrors(t *testing.T) {
	broken := &recordingChannel{name: "slack", err: errors.New("boom")}
	working := &recordingChannel{name: "terminal"}

	r := NewRouter([]string{"slack", "terminal"}, zerolog.Nop())
	r.AddChannel(broken)
	r.AddChannel(working)

	err := r.Send(context.Background(), "hello", models.NotifyOptions{}, WhoDefault)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack: boom")
	assert.Equal(t, []string{"hello"}, working.messages(), "one failing channel does not stop the rest")
}

func TestNewFromConfig(t *testing.T) {
	r := NewFromConfig(config.NotificationConfig{
		Default:  []string{"terminal"},
		Terminal: config.TerminalConfig{Enabled: true},
		Slack:    config.SlackConfig{Enabled: true, Webhook: "http://localhost/x"},
		Telegram: config.TelegramConfig{Enabled: false, BotToken: "t", ChatID: "c"},
	}, zerolog.Nop())

	assert.ElementsMatch(t, []string{"terminal", "slack"}, r.Channels())
}

func capture(t *testing.T, status int) (*httptest.Server, func() (string, map[string]interface{})) {
	t.Helper()

	var (
		mu   sync.Mutex
		path string
		body map[string]interface{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		body = map[string]interface{}{}
		_ = json.Unmarshal(raw, &body)
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return srv, func() (string, map[string]interface{}) {
		mu.Lock()
		defer mu.Unlock()
		return path, body
	}
}

func TestSlackChannel(t *testing.T) {
	srv, got := capture(t, http.StatusOK)
	ch := NewSlackChannel(config.SlackConfig{Enabled: true, Webhook: srv.URL}, srv.Client())
	ctx := context.Background()

	require.NoError(t, ch.Send(ctx, Notification{Message: "plain"}))
	_, body := got()
	assert.Equal(t, map[string]interface{}{"text": "plain"}, body)

	opts := models.NotifyOptions{Title: "Filled", Color: "good", Text: ":moneybag:", Footer: "bot"}
	require.NoError(t, ch.Send(ctx, Notification{Message: "with title", Options: opts}))
	_, body = got()

	want := map[string]interface{}{
		"text": "with title",
		"attachments": []interface{}{map[string]interface{}{
			"fallback": "Filled",
			"color":    "good",
			"title":    "Filled",
			"text":     ":moneybag:",
			"footer":   "bot",
		}},
	}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("slack payload mismatch (-want +got):\n%s", diff)
	}
}

func TestSlackChannelDisabledWithoutWebhook(t *testing.T) {
	ch := NewSlackChannel(config.SlackConfig{Enabled: true}, http.DefaultClient)
	assert.False(t, ch.IsEnabled())
	assert.NoError(t, ch.Send(context.Background(), Notification{Message: "x"}))
}

func TestTelegramChannel(t *testing.T) {
	srv, got := capture(t, http.StatusOK)
	ch := NewTelegramChannel(config.TelegramConfig{Enabled: true, BotToken: "TOKEN", ChatID: "42"}, srv.Client())
	ch.baseURL = srv.URL

	err := ch.Send(context.Background(), Notification{
		Message: "BTC < 6000 & falling",
		Options: models.NotifyOptions{Title: "Alert"},
	})
	require.NoError(t, err)

	path, body := got()
	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "HTML", body["parse_mode"])
	assert.Equal(t, "<b>Alert</b>\n\nBTC &lt; 6000 &amp; falling", body["text"])
}

func TestWebhookChannel(t *testing.T) {
	srv, got := capture(t, http.StatusAccepted)
	ch := NewWebhookChannel(config.WebhookConfig{Enabled: true, URL: srv.URL}, srv.Client())

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, ch.Send(context.Background(), Notification{Message: "hi", Timestamp: ts}))

	_, body := got()
	assert.Equal(t, "hi", body["message"])
	assert.Equal(t, "2024-03-01T12:00:00Z", body["timestamp"])
}

func TestWebhookChannelRejectedStatus(t *testing.T) {
	srv, _ := capture(t, http.StatusInternalServerError)
	ch := NewWebhookChannel(config.WebhookConfig{Enabled: true, URL: srv.URL}, srv.Client())

	err := ch.Send(context.Background(), Notification{Message: "hi"})
	assert.ErrorContains(t, err, "status 500")
}

func TestTerminalChannel(t *testing.T) {
	var buf bytes.Buffer
	ch := NewTerminalChannel(&buf, false)

	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, ch.Send(context.Background(), Notification{
		Message:   "bitfinex: Balances - 1 btc & 100 usd.",
		Options:   models.NotifyOptions{Title: "Balance", Footer: "instabot"},
		Timestamp: ts,
	}))

	line := strings.TrimSpace(buf.String())
	assert.Equal(t, "[09:30:00] 🔔 Balance | bitfinex: Balances - 1 btc & 100 usd. (instabot)", line)
}
