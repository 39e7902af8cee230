// Package manager turns incoming messages into work: it opens exchanges on
// demand, shares them between concurrent messages and runs each command
// block of a message on its own goroutine.
package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"instabot-trader/internal/broker"
	apperrors "instabot-trader/internal/errors"
	"instabot-trader/internal/exchange"
	"instabot-trader/internal/ids"
	"instabot-trader/internal/logging"
	"instabot-trader/internal/models"
	"instabot-trader/internal/notify"
	"instabot-trader/internal/parser"
	"instabot-trader/internal/resilience"
)

// DefaultCloseDelay is how long an idle exchange stays open after the
// last block using it finishes.
const DefaultCloseDelay = 500 * time.Millisecond

// OpenFunc builds the raw adapter for a set of credentials.
type OpenFunc func(creds broker.Credentials, opts broker.PaperOptions) (broker.Adapter, error)

// Options configures a Manager.
type Options struct {
	Credentials []broker.Credentials
	// Exchange is passed to every exchange opened. Its Clock and Logger
	// default to the manager's.
	Exchange exchange.Options
	Throttle broker.ThrottleConfig
	// Open defaults to broker.Open.
	Open OpenFunc
	// CloseDelay defaults to DefaultCloseDelay.
	CloseDelay time.Duration
	// MaxBlocks bounds the blocks of one message running at once; zero
	// means unbounded.
	MaxBlocks int
	Clock     resilience.Clock
	Health    *resilience.HealthMonitor
	Logger    zerolog.Logger
}

type instance struct {
	key     string
	ex      *exchange.Exchange
	adapter *broker.Throttled
	refs    int
}

// Manager owns the open exchanges. Exchanges are keyed by name and
// credentials and reference counted across messages.
type Manager struct {
	opts   Options
	logger zerolog.Logger

	mu     sync.Mutex
	opened map[string]*instance
	// paper adapters outlive their exchange so simulated balances and
	// orders persist between messages.
	paper map[string]broker.Adapter

	pending      sync.WaitGroup
	closeCtx     context.Context
	cancelCloses context.CancelFunc
}

// New creates a manager with nothing opened.
func New(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = resilience.RealClock{}
	}
	if opts.Open == nil {
		opts.Open = broker.Open
	}
	if opts.CloseDelay <= 0 {
		opts.CloseDelay = DefaultCloseDelay
	}
	if opts.Exchange.Clock == nil {
		opts.Exchange.Clock = opts.Clock
	}
	if opts.Throttle.Clock == nil {
		opts.Throttle.Clock = opts.Clock
	}
	opts.Exchange.Logger = opts.Logger
	opts.Throttle.Logger = opts.Logger

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:         opts,
		logger:       opts.Logger.With().Str("component", "manager").Logger(),
		opened:       make(map[string]*instance),
		paper:        make(map[string]broker.Adapter),
		closeCtx:     ctx,
		cancelCloses: cancel,
	}
}

// CredentialsFor finds the credentials for an exchange name, ignoring case.
func (m *Manager) CredentialsFor(name string) (broker.Credentials, bool) {
	for _, c := range m.opts.Credentials {
		if strings.EqualFold(c.Exchange, name) {
			return c, true
		}
	}
	return broker.Credentials{}, false
}

// Opened reports how many exchanges are open.
func (m *Manager) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.opened)
}

// Acquire opens the exchange called name with creds, or shares the one
// already open for the same account. Every Acquire needs a Release.
func (m *Manager) Acquire(name string, creds broker.Credentials) (*exchange.Exchange, error) {
	name = strings.ToLower(name)
	profile, ok := exchange.LookupProfile(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, apperrors.ErrUnsupportedExchange)
	}
	creds.Exchange = name
	key := creds.Identity()

	m.mu.Lock()
	defer m.mu.Unlock()

	if inst, ok := m.opened[key]; ok {
		inst.refs++
		return inst.ex, nil
	}

	raw, err := m.adapterFor(key, creds, profile)
	if err != nil {
		return nil, err
	}

	adapter := broker.NewThrottled(name, raw, m.opts.Throttle)
	ex, err := exchange.New(name, adapter, m.opts.Exchange)
	if err != nil {
		return nil, err
	}

	if m.opts.Health != nil {
		m.opts.Health.RegisterComponent("exchange:"+name, resilience.CircuitHealthCheck(adapter.Circuit()))
	}

	m.opened[key] = &instance{key: key, ex: ex, adapter: adapter, refs: 1}
	m.logger.Info().Str("exchange", name).Str("driver", driverName(creds)).Msg("Opened exchange")
	return ex, nil
}

// adapterFor must be called with mu held.
func (m *Manager) adapterFor(key string, creds broker.Credentials, profile exchange.Profile) (broker.Adapter, error) {
	if a, ok := m.paper[key]; ok {
		return a, nil
	}

	a, err := m.opts.Open(creds, broker.PaperOptions{Split: profile.Split, Clock: m.opts.Clock})
	if err != nil {
		return nil, err
	}
	if driverName(creds) == broker.DriverPaper {
		m.paper[key] = a
	}
	return a, nil
}

func driverName(creds broker.Credentials) string {
	if creds.Driver == "" {
		return broker.DriverPaper
	}
	return strings.ToLower(creds.Driver)
}

// Release drops one reference to ex, closing it when none are left.
func (m *Manager) Release(ex *exchange.Exchange) error {
	m.mu.Lock()
	var done *instance
	for key, inst := range m.opened {
		if inst.ex != ex {
			continue
		}
		inst.refs--
		if inst.refs <= 0 {
			delete(m.opened, key)
			done = inst
		}
		break
	}
	m.mu.Unlock()

	if done == nil {
		return nil
	}
	m.logger.Info().Str("exchange", ex.Name()).Msg("Closed exchange")
	return done.adapter.Close()
}

// releaseLater releases ex after the close delay, so back to back messages
// reuse the same exchange.
func (m *Manager) releaseLater(ex *exchange.Exchange) {
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		_ = m.opts.Clock.Sleep(m.closeCtx, m.opts.CloseDelay)
		if err := m.Release(ex); err != nil {
			m.logger.Warn().Err(err).Str("exchange", ex.Name()).Msg("Failed to close exchange")
		}
	}()
}

// Close skips any pending close delays and closes every open exchange.
func (m *Manager) Close() error {
	m.cancelCloses()
	m.pending.Wait()

	m.mu.Lock()
	remaining := make([]*instance, 0, len(m.opened))
	for key, inst := range m.opened {
		remaining = append(remaining, inst)
		delete(m.opened, key)
	}
	m.mu.Unlock()

	var errs []error
	for _, inst := range remaining {
		if err := inst.adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", inst.ex.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ExecuteMessage runs every command block in msg. Blocks run concurrently,
// the actions within a block in order. Blocks for exchanges that are not
// configured or not supported are logged and skipped. It returns once all
// blocks have finished, with their failures joined.
func (m *Manager) ExecuteMessage(ctx context.Context, msg string) error {
	m.logger.Info().Str("message", strings.TrimSpace(msg)).Msg("Message received")

	var g errgroup.Group
	if m.opts.MaxBlocks > 0 {
		g.SetLimit(m.opts.MaxBlocks)
	}

	var (
		errMu sync.Mutex
		errs  []error
	)
	fail := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		errs = append(errs, err)
	}

	for _, block := range parser.CommandBlocks(msg) {
		creds, ok := m.CredentialsFor(block.Exchange)
		if !ok {
			m.logger.Error().Str("exchange", block.Exchange).Msg("No credentials for exchange")
			fail(fmt.Errorf("%s: %w", block.Exchange, apperrors.ErrMissingCredentials))
			continue
		}

		ex, err := m.Acquire(block.Exchange, creds)
		if err != nil {
			m.logger.Error().Err(err).Str("exchange", block.Exchange).Msg("Exchange is not supported")
			fail(err)
			continue
		}

		block := block
		g.Go(func() error {
			defer m.releaseLater(ex)
			if err := m.runBlock(ctx, ex, block); err != nil {
				fail(err)
			}
			return nil
		})
	}

	m.handleAlert(ctx, msg)

	_ = g.Wait()
	return errors.Join(errs...)
}

func (m *Manager) runBlock(ctx context.Context, ex *exchange.Exchange, block parser.Block) error {
	sessionID := ids.New()
	logger := logging.WithSession(logging.WithExchange(m.logger, ex.Name()), sessionID, block.Symbol)
	logger.Info().
		Str("commands", parser.Summary(block.Actions)).
		Msg("Running command block")

	return ex.ExecuteActions(ctx, block.Symbol, sessionID, parser.ParseActions(block.Actions))
}

// handleAlert forwards the text of a {!} message to the default channels.
func (m *Manager) handleAlert(ctx context.Context, msg string) {
	text, ok := parser.AlertText(msg)
	if !ok || m.opts.Exchange.Notifier == nil {
		return
	}
	if err := m.opts.Exchange.Notifier.Send(ctx, text, models.NotifyOptions{}, notify.WhoDefault); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to send alert")
	}
}
