package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"instabot-trader/internal/broker"
	"instabot-trader/internal/config"
	"instabot-trader/internal/exchange"
	"instabot-trader/internal/logging"
	"instabot-trader/internal/manager"
	"instabot-trader/internal/models"
	"instabot-trader/internal/notify"
	"instabot-trader/internal/resilience"
	"instabot-trader/internal/store"
	"instabot-trader/internal/stream"
)

// loadConfig reads the configuration and rebuilds the logger from it.
func (a *App) loadConfig() error {
	cfg, err := config.Load(a.ConfigDir)
	if err != nil {
		return err
	}
	a.Config = cfg
	a.Logger = newLogger(cfg.Server, a.debug)
	return nil
}

func newLogger(cfg config.ServerConfig, debug bool) zerolog.Logger {
	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.LogLevel
	if debug {
		logCfg.Level = "debug"
	}
	if cfg.LogFile != "" {
		logCfg.File = true
		logCfg.FilePath = cfg.LogFile
	}
	return logging.NewLoggerWithConfig(logCfg)
}

// runtime is everything needed to execute messages.
type runtime struct {
	manager  *manager.Manager
	notifier *notify.Router
	journal  *store.SQLiteStore
	events   *stream.Hub
	health   *resilience.HealthMonitor
	logger   zerolog.Logger
}

// newRuntime wires the exchange manager from the loaded configuration.
func (a *App) newRuntime() (*runtime, error) {
	cfg := a.Config
	rt := &runtime{
		notifier: notify.NewFromConfig(cfg.Notifications, a.Logger),
		health:   resilience.NewHealthMonitor(nil),
		logger:   a.Logger,
	}

	exOpts := exchange.Options{
		Macros:   macros(cfg.Macros),
		Notifier: rt.notifier,
		Backoff: resilience.Backoff{
			Min:  cfg.Polling.MinDelay,
			Max:  cfg.Polling.MaxDelay,
			Step: cfg.Polling.Step,
		},
	}

	var next stream.Journal
	if cfg.Journal.Enabled {
		journal, err := store.NewSQLiteStore(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		rt.journal = journal
		next = journal
		rt.health.RegisterComponent("journal", resilience.DatabaseHealthCheck(journal.Ping))
		a.Logger.Debug().Str("path", cfg.Journal.Path).Msg("Order journal opened")
	}
	rt.events = stream.NewHub(next, stream.DefaultHubConfig(), a.Logger)
	exOpts.Journal = rt.events

	throttle := broker.DefaultThrottleConfig()
	throttle.MinSpacing = cfg.Exchange.MinSpacing
	throttle.RateLimitCooldown = cfg.Exchange.RateLimitCooldown

	rt.manager = manager.New(manager.Options{
		Credentials: credentials(cfg.Credentials),
		Exchange:    exOpts,
		Throttle:    throttle,
		CloseDelay:  cfg.Exchange.CloseDelay,
		MaxBlocks:   cfg.Server.MaxConcurrentBlocks,
		Health:      rt.health,
		Logger:      a.Logger,
	})
	return rt, nil
}

// Close waits for idle exchanges to close, then closes the journal.
func (r *runtime) Close() error {
	err := r.manager.Close()
	r.events.Close()
	if r.journal != nil {
		err = errors.Join(err, r.journal.Close())
	}
	return err
}

// alert sends msg to the default notification channels.
func (r *runtime) alert(ctx context.Context, msg string) {
	if err := r.notifier.Send(ctx, msg, models.NotifyOptions{}, notify.WhoDefault); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to send alert")
	}
}

func credentials(cfgs []config.CredentialConfig) []broker.Credentials {
	out := make([]broker.Credentials, 0, len(cfgs))
	for _, c := range cfgs {
		creds := broker.Credentials{
			Exchange:   c.Name,
			Driver:     c.Driver,
			Key:        c.Key,
			Secret:     c.Secret,
			Passphrase: c.Passphrase,
			Endpoint:   c.Endpoint,
			Paper:      c.Paper,
		}
		if len(c.Tickers) > 0 {
			creds.PaperTickers = make(map[string]models.Ticker, len(c.Tickers))
			for symbol, t := range c.Tickers {
				creds.PaperTickers[symbol] = models.Ticker{Bid: t.Bid, Ask: t.Ask, LastPrice: t.Last}
			}
		}
		out = append(out, creds)
	}
	return out
}

func macros(cfgs []config.MacroConfig) []exchange.Macro {
	out := make([]exchange.Macro, 0, len(cfgs))
	for _, m := range cfgs {
		out = append(out, exchange.Macro{Name: m.Name, Actions: m.Actions})
	}
	return out
}
