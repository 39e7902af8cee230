// Package config provides configuration management for the trading bot.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "instabot-trader/internal/errors"
)

// Notification channel names.
const (
	ChannelTerminal = "terminal"
	ChannelTelegram = "telegram"
	ChannelSlack    = "slack"
	ChannelWebhook  = "webhook"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig       `mapstructure:"server"`
	Polling       PollingConfig      `mapstructure:"polling"`
	Exchange      ExchangeConfig     `mapstructure:"exchange"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Journal       JournalConfig      `mapstructure:"journal"`
	Macros        []MacroConfig      `mapstructure:"macros"`
	Credentials   []CredentialConfig `mapstructure:"-"` // Loaded separately
}

// ServerConfig holds the webhook server configuration.
type ServerConfig struct {
	Addr                string `mapstructure:"addr"`
	Path                string `mapstructure:"path"`
	LogLevel            string `mapstructure:"log_level"`
	LogFile             string `mapstructure:"log_file"`
	MaxConcurrentBlocks int    `mapstructure:"max_concurrent_blocks"`
	// AllowedOrigins enables CORS for browser clients when not empty.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// PollingConfig holds the poll delays of algorithmic orders.
type PollingConfig struct {
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
	Step     time.Duration `mapstructure:"step"`
}

// ExchangeConfig holds the pacing of exchange calls.
type ExchangeConfig struct {
	MinSpacing        time.Duration `mapstructure:"min_spacing"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`
	CloseDelay        time.Duration `mapstructure:"close_delay"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Default        []string       `mapstructure:"default"`
	AlertOnStartup bool           `mapstructure:"alert_on_startup"`
	Terminal       TerminalConfig `mapstructure:"terminal"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
	Slack          SlackConfig    `mapstructure:"slack"`
	Webhook        WebhookConfig  `mapstructure:"webhook"`
}

// TerminalConfig holds console notification configuration.
type TerminalConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Color   bool `mapstructure:"color"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// SlackConfig holds Slack incoming webhook configuration.
type SlackConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Webhook string `mapstructure:"webhook"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// JournalConfig holds the order journal configuration.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MacroConfig is a named list of actions.
type MacroConfig struct {
	Name    string `mapstructure:"name"`
	Actions string `mapstructure:"actions"`
}

// CredentialConfig holds the credentials of one exchange account.
type CredentialConfig struct {
	Name       string                  `mapstructure:"name"`
	Driver     string                  `mapstructure:"driver"`
	Key        string                  `mapstructure:"key"`
	Secret     string                  `mapstructure:"secret"`
	Passphrase string                  `mapstructure:"passphrase"`
	Endpoint   string                  `mapstructure:"endpoint"`
	Paper      map[string]float64      `mapstructure:"paper"`
	Tickers    map[string]TickerConfig `mapstructure:"tickers"`
}

// TickerConfig seeds a paper order book.
type TickerConfig struct {
	Bid  float64 `mapstructure:"bid"`
	Ask  float64 `mapstructure:"ask"`
	Last float64 `mapstructure:"last"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/instabot-trader"
	}
	return filepath.Join(home, ".config", "instabot-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	// Load main config
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Load credentials
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		cfg.Journal.Path = filepath.Join(configDir, "journal.db")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every scalar key, which also lets INSTABOT_*
// environment variables override them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.path", "/trade")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_file", "")
	v.SetDefault("server.max_concurrent_blocks", 0)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("polling.min_delay", "1s")
	v.SetDefault("polling.max_delay", "10s")
	v.SetDefault("polling.step", "1s")

	v.SetDefault("exchange.min_spacing", "300ms")
	v.SetDefault("exchange.rate_limit_cooldown", "10s")
	v.SetDefault("exchange.close_delay", "500ms")

	v.SetDefault("notifications.default", []string{ChannelTerminal})
	v.SetDefault("notifications.alert_on_startup", false)
	v.SetDefault("notifications.terminal.enabled", true)
	v.SetDefault("notifications.terminal.color", true)
	v.SetDefault("notifications.telegram.enabled", false)
	v.SetDefault("notifications.telegram.bot_token", "")
	v.SetDefault("notifications.telegram.chat_id", "")
	v.SetDefault("notifications.slack.enabled", false)
	v.SetDefault("notifications.slack.webhook", "")
	v.SetDefault("notifications.webhook.enabled", false)
	v.SetDefault("notifications.webhook.url", "")

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "")
}

func loadConfigFile(configDir, name string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("INSTABOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, create template
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *[]CredentialConfig) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.UnmarshalKey("credentials", creds)
}

// applyEnvOverrides fills API keys from INSTABOT_<EXCHANGE>_KEY,
// _SECRET and _PASSPHRASE so they can stay out of credentials.toml.
func applyEnvOverrides(cfg *Config) {
	for i := range cfg.Credentials {
		c := &cfg.Credentials[i]
		prefix := "INSTABOT_" + strings.ToUpper(c.Name) + "_"

		if v := os.Getenv(prefix + "KEY"); v != "" {
			c.Key = v
		}
		if v := os.Getenv(prefix + "SECRET"); v != "" {
			c.Secret = v
		}
		if v := os.Getenv(prefix + "PASSPHRASE"); v != "" {
			c.Passphrase = v
		}
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), apperrors.ErrConfigInvalid)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.Path, "/") {
		return invalid("server.path must start with /, got %q", c.Server.Path)
	}
	if c.Server.MaxConcurrentBlocks < 0 {
		return invalid("server.max_concurrent_blocks must be non-negative")
	}

	// Validate polling delays
	if c.Polling.MinDelay <= 0 {
		return invalid("polling.min_delay must be positive")
	}
	if c.Polling.MaxDelay < c.Polling.MinDelay {
		return invalid("polling.max_delay must not be below polling.min_delay")
	}
	if c.Polling.Step < 0 {
		return invalid("polling.step must be non-negative")
	}

	if c.Exchange.MinSpacing < 0 || c.Exchange.RateLimitCooldown < 0 || c.Exchange.CloseDelay < 0 {
		return invalid("exchange delays must be non-negative")
	}

	// Validate notification channels
	for _, name := range c.Notifications.Default {
		switch name {
		case ChannelTerminal, ChannelTelegram, ChannelSlack, ChannelWebhook:
		default:
			return invalid("unknown default notification channel %q", name)
		}
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return invalid("journal.path is required when the journal is enabled")
	}

	for i, m := range c.Macros {
		if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Actions) == "" {
			return invalid("macro %d needs a name and actions", i+1)
		}
	}

	seen := make(map[string]bool, len(c.Credentials))
	for _, cred := range c.Credentials {
		name := strings.ToLower(strings.TrimSpace(cred.Name))
		if name == "" {
			return invalid("credentials need an exchange name")
		}
		if seen[name] {
			return invalid("credentials for %s are listed twice", name)
		}
		seen[name] = true
	}

	return nil
}

// CredentialsFor returns the credentials of the named exchange.
func (c *Config) CredentialsFor(name string) (CredentialConfig, bool) {
	for _, cred := range c.Credentials {
		if strings.EqualFold(cred.Name, name) {
			return cred, true
		}
	}
	return CredentialConfig{}, false
}
