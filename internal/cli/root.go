package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"instabot-trader/internal/config"
	"instabot-trader/internal/security"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// annotationNoConfig marks commands that run without loading the config.
const annotationNoConfig = "noConfig"

// App holds the application dependencies.
type App struct {
	ConfigDir string
	Config    *config.Config
	Logger    zerolog.Logger
	debug     bool
}

// NewRootCmd creates the root command for the CLI. The configuration is
// loaded before any command that needs it runs.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "instabot",
		Short: "Instabot Trader - message driven crypto trading bot",
		Long: `Instabot Trader turns short text messages into orders on crypto exchanges.

A message holds one or more command blocks:

  bitfinex(BTCUSD) { limitOrder(side=buy, amount=1, offset=10); notify(msg=Bought) }

Run 'instabot serve' to accept messages over HTTP, 'instabot run' to execute
one from the terminal or 'instabot parse' to see how a message is read.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app.debug, _ = cmd.Flags().GetBool("debug")
			if app.debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			if cmd.Annotations[annotationNoConfig] == "true" {
				return nil
			}
			app.ConfigDir, _ = cmd.Flags().GetString("config")
			return app.loadConfig()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/instabot-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable coloured output")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newParseCmd())
	rootCmd.AddCommand(newExchangesCmd())
	rootCmd.AddCommand(newExamplesCmd())
	addJournalCommands(rootCmd, app)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{annotationNoConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Instabot Trader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the bot configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration directory path",
		Annotations: map[string]string{annotationNoConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				_ = output.JSON(map[string]string{"path": dir})
			} else {
				output.Println(dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Printf("  Path:            %s\n", cfg.Server.Path)
	output.Printf("  Log Level:       %s\n", cfg.Server.LogLevel)
	output.Printf("  Max Blocks:      %d\n", cfg.Server.MaxConcurrentBlocks)
	output.Println()

	output.Bold("Polling")
	output.Printf("  Min Delay:       %s\n", cfg.Polling.MinDelay)
	output.Printf("  Max Delay:       %s\n", cfg.Polling.MaxDelay)
	output.Printf("  Step:            %s\n", cfg.Polling.Step)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Default:         %v\n", cfg.Notifications.Default)
	output.Printf("  Terminal:        %v\n", cfg.Notifications.Terminal.Enabled)
	output.Printf("  Telegram:        %v\n", cfg.Notifications.Telegram.Enabled)
	output.Printf("  Slack:           %v\n", cfg.Notifications.Slack.Enabled)
	output.Printf("  Webhook:         %v\n", cfg.Notifications.Webhook.Enabled)
	output.Println()

	output.Bold("Journal")
	output.Printf("  Enabled:         %v\n", cfg.Journal.Enabled)
	output.Printf("  Path:            %s\n", cfg.Journal.Path)
	output.Println()

	output.Bold("Exchanges")
	for _, c := range cfg.Credentials {
		driver := c.Driver
		if driver == "" {
			driver = "paper"
		}
		output.Printf("  %-16s %s\n", c.Name+":", driver)
	}
	for _, m := range cfg.Macros {
		output.Printf("  macro %-10s %s\n", m.Name, TruncateString(m.Actions, 50))
	}
}

// redacted returns a copy of cfg with secrets masked.
func redacted(cfg *config.Config) config.Config {
	out := *cfg
	out.Credentials = make([]config.CredentialConfig, len(cfg.Credentials))
	for i, c := range cfg.Credentials {
		c.Key = security.MaskCredential(c.Key)
		c.Secret = security.MaskCredential(c.Secret)
		c.Passphrase = security.MaskCredential(c.Passphrase)
		out.Credentials[i] = c
	}
	out.Notifications.Telegram.BotToken = security.MaskCredential(out.Notifications.Telegram.BotToken)
	out.Notifications.Slack.Webhook = security.Redact(out.Notifications.Slack.Webhook)
	out.Notifications.Webhook.URL = security.Redact(out.Notifications.Webhook.URL)
	return out
}
