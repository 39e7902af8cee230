package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"instabot-trader/internal/config"
)

// TerminalChannel prints notifications to the console.
type TerminalChannel struct {
	mu           sync.Mutex
	out          io.Writer
	colorEnabled bool
}

// NewTerminalChannel creates a TerminalChannel writing to out, or stdout
// when out is nil.
func NewTerminalChannel(out io.Writer, colorEnabled bool) *TerminalChannel {
	if out == nil {
		out = os.Stdout
	}
	return &TerminalChannel{out: out, colorEnabled: colorEnabled}
}

// Name returns the name of the channel.
func (t *TerminalChannel) Name() string {
	return config.ChannelTerminal
}

// IsEnabled returns whether the channel is enabled.
func (t *TerminalChannel) IsEnabled() bool {
	return true
}

// Send prints one line per notification.
func (t *TerminalChannel) Send(ctx context.Context, n Notification) error {
	line := FormatNotification(n, t.colorEnabled)

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.out, line)
	return err
}

// paint maps the attachment colours used by chat channels onto the terminal.
func paint(name string) *color.Color {
	switch strings.ToLower(name) {
	case "good", "green":
		return color.New(color.FgGreen)
	case "warning", "yellow":
		return color.New(color.FgYellow)
	case "danger", "red":
		return color.New(color.FgRed)
	}
	return color.New(color.FgCyan)
}

// FormatNotification formats a notification for terminal display.
func FormatNotification(n Notification, colorEnabled bool) string {
	var sb strings.Builder

	header := color.New(color.Bold)
	body := paint(n.Options.Color)
	if colorEnabled {
		header.EnableColor()
		body.EnableColor()
	} else {
		header.DisableColor()
		body.DisableColor()
	}

	sb.WriteString(fmt.Sprintf("[%s] 🔔 ", n.Timestamp.Format("15:04:05")))
	if n.Options.Title != "" {
		sb.WriteString(header.Sprint(n.Options.Title))
		sb.WriteString(" | ")
	}
	sb.WriteString(body.Sprint(n.Message))

	if n.Options.Footer != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", n.Options.Footer))
	}
	return sb.String()
}
