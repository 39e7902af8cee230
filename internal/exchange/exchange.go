// Package exchange runs parsed commands against one exchange account: it
// owns the command table, the session and algo registries and the order
// sizing rules of the exchange's profile.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"instabot-trader/internal/broker"
	"instabot-trader/internal/cache"
	apperrors "instabot-trader/internal/errors"
	"instabot-trader/internal/logging"
	"instabot-trader/internal/models"
	"instabot-trader/internal/parser"
	"instabot-trader/internal/resilience"
	"instabot-trader/internal/session"
)

const (
	cmdWait               = "wait"
	cmdLimitOrder         = "limitOrder"
	cmdMarketOrder        = "marketOrder"
	cmdStopMarketOrder    = "stopMarketOrder"
	cmdCancelOrders       = "cancelOrders"
	cmdBalance            = "balance"
	cmdNotify             = "notify"
	cmdMacro              = "macro"
	cmdScaledOrder        = "scaledOrder"
	cmdTwapOrder          = "twapOrder"
	cmdSteppedMarketOrder = "steppedMarketOrder"
	cmdIcebergOrder       = "icebergOrder"
	cmdPingPongOrder      = "pingPongOrder"
)

// tickerTTL bounds how long a session reuses one ticker snapshot.
const tickerTTL = 30 * time.Second

// Notifier delivers a message to notification channels. who names a
// channel, or "default" for the configured defaults.
type Notifier interface {
	Send(ctx context.Context, msg string, opts models.NotifyOptions, who string) error
}

// Journal records every order placed.
type Journal interface {
	Append(ctx context.Context, rec models.OrderRecord) error
}

// Macro is a user defined command made of other actions.
type Macro struct {
	Name    string
	Actions string
}

// Options configures an Exchange.
type Options struct {
	Macros   []Macro
	Notifier Notifier
	Journal  Journal
	Clock    resilience.Clock
	Backoff  resilience.Backoff
	// Rand drives the jitter of scaled and iceberg orders.
	Rand   *rand.Rand
	Logger zerolog.Logger
}

// Call is the context one command runs in.
type Call struct {
	Symbol  string
	Session string
	Args    parser.Args
}

// Result is what a command resolves with. Order commands fill Orders,
// reporting commands fill Message.
type Result struct {
	Orders  []models.OrderResult
	Message string
}

type handler func(ctx context.Context, c Call) (Result, error)

type commandKind int

const (
	kindBuiltin commandKind = iota
	kindMacro
)

type command struct {
	name    string
	kind    commandKind
	run     handler
	actions string
}

// Exchange executes commands for one exchange account.
type Exchange struct {
	profile  Profile
	adapter  broker.Adapter
	commands map[string]command

	sessions *session.Registry
	algos    *session.AlgoRegistry
	tickers  *cache.Cache[models.Ticker]

	notifier Notifier
	journal  Journal
	clock    resilience.Clock
	backoff  resilience.Backoff
	logger   zerolog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds the exchange called name on top of adapter.
func New(name string, adapter broker.Adapter, opts Options) (*Exchange, error) {
	profile, ok := LookupProfile(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, apperrors.ErrUnsupportedExchange)
	}
	if adapter == nil {
		return nil, fmt.Errorf("%s: no adapter", name)
	}
	if opts.Clock == nil {
		opts.Clock = resilience.RealClock{}
	}
	if opts.Backoff == (resilience.Backoff{}) {
		opts.Backoff = resilience.DefaultBackoff()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(opts.Clock.Now().UnixNano()))
	}

	e := &Exchange{
		profile:  profile,
		adapter:  adapter,
		sessions: session.NewRegistry(),
		algos:    session.NewAlgoRegistry(),
		tickers:  cache.New[models.Ticker](opts.Clock.Now),
		notifier: opts.Notifier,
		journal:  opts.Journal,
		clock:    opts.Clock,
		backoff:  opts.Backoff,
		logger:   logging.WithExchange(opts.Logger, profile.Name),
		rng:      opts.Rand,
	}
	e.commands = e.buildCommands(opts.Macros)
	return e, nil
}

func (e *Exchange) buildCommands(macros []Macro) map[string]command {
	builtins := map[string]handler{
		cmdWait:               e.wait,
		cmdScaledOrder:        e.scaledOrder,
		cmdTwapOrder:          e.twapOrder,
		cmdSteppedMarketOrder: e.twapOrder,
		cmdIcebergOrder:       e.icebergOrder,
		cmdPingPongOrder:      e.pingPongOrder,
		cmdStopMarketOrder:    e.stopMarketOrder,
		cmdMacro:              e.macro,
		cmdNotify:             e.notify,
		cmdBalance:            e.balance,
	}
	extras := map[string]handler{
		cmdLimitOrder:   e.limitOrder,
		cmdMarketOrder:  e.marketOrder,
		cmdCancelOrders: e.cancelOrders,
	}
	for _, name := range e.profile.Commands {
		if run, ok := extras[name]; ok {
			builtins[name] = run
		}
	}

	table := make(map[string]command, len(builtins)+len(macros))
	for name, run := range builtins {
		table[strings.ToLower(name)] = command{name: name, kind: kindBuiltin, run: run}
	}

	for _, m := range macros {
		key := strings.ToLower(strings.TrimSpace(m.Name))
		if key == "" {
			continue
		}
		if existing, ok := table[key]; ok {
			if existing.kind == kindBuiltin {
				e.logger.Warn().Str("macro", m.Name).Msg("Macro shadows a command, ignoring it")
			}
			continue
		}
		table[key] = command{name: m.Name, kind: kindMacro, actions: m.Actions}
	}
	return table
}

// Name is the exchange's profile name.
func (e *Exchange) Name() string {
	return e.profile.Name
}

// Profile returns the sizing profile in use.
func (e *Exchange) Profile() Profile {
	return e.profile
}

// Adapter returns the adapter commands are sent to.
func (e *Exchange) Adapter() broker.Adapter {
	return e.adapter
}

// Algos exposes the running algorithmic orders.
func (e *Exchange) Algos() *session.AlgoRegistry {
	return e.algos
}

// Sessions exposes the orders placed so far, by session.
func (e *Exchange) Sessions() *session.Registry {
	return e.sessions
}

// Commands lists the enabled command and macro names.
func (e *Exchange) Commands() []string {
	names := make([]string, 0, len(e.commands))
	for _, c := range e.commands {
		names = append(names, c.name)
	}
	sort.Strings(names)
	return names
}

// ExecuteCommand runs the command called name. Names are matched ignoring
// case; a macro runs as macro(func=name).
func (e *Exchange) ExecuteCommand(ctx context.Context, symbol, name string, args parser.Args, sessionID string) (Result, error) {
	cmd, ok := e.commands[strings.ToLower(name)]
	if !ok {
		e.logger.Error().Str("command", name).Msg("Unknown command")
		return Result{}, fmt.Errorf("%s: %w", name, apperrors.ErrUnknownCommand)
	}

	c := Call{Symbol: symbol, Session: sessionID, Args: args}
	if cmd.kind == kindMacro {
		c.Args = parser.Named("func", cmd.name)
		return e.macro(ctx, c)
	}
	return cmd.run(ctx, c)
}

// ExecuteActions runs actions in order. A failed action is logged and the
// next one still runs; the failures are returned joined.
func (e *Exchange) ExecuteActions(ctx context.Context, symbol, sessionID string, actions []parser.Action) error {
	logger := logging.WithSession(e.logger, sessionID, symbol)

	var errs []error
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if _, err := e.ExecuteCommand(ctx, symbol, action.Name, action.Args, sessionID); err != nil {
			cmdLogger := logging.WithCommand(logger, action.Name)
			cmdLogger.Error().Err(err).Msg("Command failed")
			errs = append(errs, apperrors.NewCommandError(e.profile.Name, symbol, action.Name, err))
		}
	}
	return errors.Join(errs...)
}

// random runs fn with exclusive use of the exchange's random source.
func (e *Exchange) random(fn func(r *rand.Rand)) {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	fn(e.rng)
}

func (e *Exchange) commandLogger(c Call, name string) zerolog.Logger {
	return logging.WithCommand(logging.WithSession(e.logger, c.Session, c.Symbol), name)
}

// record adds a placed order to the session and the journal.
func (e *Exchange) record(ctx context.Context, c Call, tag string, order *models.Order) {
	if order == nil {
		return
	}
	e.sessions.Add(c.Session, tag, order)
	e.journalOrder(ctx, c, tag, order)
}

// journalOrder appends a placed order to the journal, if there is one.
func (e *Exchange) journalOrder(ctx context.Context, c Call, tag string, order *models.Order) {
	if e.journal == nil || order == nil {
		return
	}
	rec := models.OrderRecord{
		Exchange: e.profile.Name,
		Symbol:   c.Symbol,
		Session:  c.Session,
		Tag:      tag,
		OrderID:  order.ID,
		Kind:     order.Kind,
		Side:     order.Side,
		Amount:   order.Amount,
		Price:    order.Price,
		PlacedAt: e.clock.Now(),
	}
	if err := e.journal.Append(ctx, rec); err != nil {
		e.logger.Warn().Err(err).Str("order_id", order.ID).Msg("Failed to journal order")
	}
}
