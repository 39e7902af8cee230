// Package notify delivers bot messages to notification channels.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"instabot-trader/internal/config"
	"instabot-trader/internal/models"
)

// WhoDefault routes a notification to the configured default channels.
const WhoDefault = "default"

// Channel is one place notifications can be delivered to.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Message   string
	Options   models.NotifyOptions
	Timestamp time.Time
}

// Router sends notifications to channels by name.
type Router struct {
	mu       sync.RWMutex
	channels map[string]Channel
	defaults []string
	now      func() time.Time
	logger   zerolog.Logger
}

// NewRouter creates a router with no channels.
func NewRouter(defaults []string, logger zerolog.Logger) *Router {
	return &Router{
		channels: make(map[string]Channel),
		defaults: append([]string(nil), defaults...),
		now:      time.Now,
		logger:   logger,
	}
}

// NewFromConfig creates a router with every enabled channel in cfg.
func NewFromConfig(cfg config.NotificationConfig, logger zerolog.Logger) *Router {
	r := NewRouter(cfg.Default, logger)
	client := &http.Client{Timeout: 10 * time.Second}

	if cfg.Terminal.Enabled {
		r.AddChannel(NewTerminalChannel(nil, cfg.Terminal.Color))
	}
	if cfg.Telegram.Enabled {
		r.AddChannel(NewTelegramChannel(cfg.Telegram, client))
	}
	if cfg.Slack.Enabled {
		r.AddChannel(NewSlackChannel(cfg.Slack, client))
	}
	if cfg.Webhook.Enabled {
		r.AddChannel(NewWebhookChannel(cfg.Webhook, client))
	}
	return r
}

// AddChannel adds a channel, replacing any channel with the same name.
func (r *Router) AddChannel(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.Name()] = ch
	r.logger.Info().Str("channel", ch.Name()).Bool("enabled", ch.IsEnabled()).Msg("Added notification channel")
}

// Channels lists the channel names.
func (r *Router) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}

// Send delivers msg to who: a channel name, or default for the default
// channels. Channels that are missing or disabled are skipped.
func (r *Router) Send(ctx context.Context, msg string, opts models.NotifyOptions, who string) error {
	targets := []string{who}
	if who == "" || who == WhoDefault {
		targets = r.defaults
	}

	n := Notification{Message: msg, Options: opts, Timestamp: r.now()}

	r.mu.RLock()
	channels := make([]Channel, 0, len(targets))
	for _, name := range targets {
		ch, ok := r.channels[name]
		if !ok {
			r.logger.Warn().Str("channel", name).Msg("No notification channel with that name")
			continue
		}
		channels = append(channels, ch)
	}
	r.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
