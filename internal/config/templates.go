package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Instabot Trader Configuration

[server]
# Address the webhook server listens on
addr = ":8080"
# Path that accepts POSTed messages
path = "/trade"
# Log level: debug, info, warn, error
log_level = "info"
# Rotating log file, empty to log to the console only
log_file = ""
# Command blocks run at the same time, 0 for no limit
max_concurrent_blocks = 0
# Origins allowed to POST from a browser, empty disables CORS
allowed_origins = []

[polling]
# Algorithmic orders poll the exchange starting at min_delay, slowing by
# step while nothing changes, never slower than max_delay
min_delay = "1s"
max_delay = "10s"
step = "1s"

[exchange]
# Minimum gap between two calls to the same exchange account
min_spacing = "300ms"
# Pause after the exchange reports a rate limit
rate_limit_cooldown = "10s"
# How long an idle exchange stays open for the next message
close_delay = "500ms"

[notifications]
# Channels used when a notification does not name one
default = ["terminal"]
# Send a message when the server starts
alert_on_startup = false

[notifications.terminal]
enabled = true
color = true

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = ""

[notifications.slack]
enabled = false
webhook = ""

[notifications.webhook]
enabled = false
url = ""

[journal]
# Record every placed order in a SQLite database
enabled = true
path = ""

# Macros are commands made of other commands.
# [[macros]]
# name = "closeLong"
# actions = "cancelOrders(all); marketOrder(sell, 100%)"
`

const credentialsTemplate = `# Instabot Trader Credentials
# WARNING: Keep this file secure! Do not commit to version control.
#
# One entry per exchange account. The paper driver simulates an exchange
# in memory, seeded with the balances and tickers below.

[[credentials]]
name = "bitfinex"
driver = "paper"
key = ""
secret = ""

[credentials.paper]
btc = 1.0
usd = 10000.0

[credentials.tickers.BTCUSD]
bid = 6000.0
ask = 6010.0
last = 6005.0
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, created template at %s", path)
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return fmt.Errorf("credentials file not found, created template at %s", path)
}
