package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	apperrors "instabot-trader/internal/errors"
	"instabot-trader/internal/logging"
	"instabot-trader/internal/models"
	"instabot-trader/internal/resilience"
	"instabot-trader/pkg/utils"
)

// ThrottleConfig configures a Throttled adapter.
type ThrottleConfig struct {
	// MinSpacing is the minimum gap between two calls to the exchange.
	MinSpacing time.Duration
	// RateLimitCooldown is added to the gate when the exchange says slow down.
	RateLimitCooldown time.Duration
	Retry             utils.RetryConfig
	Circuit           resilience.CircuitBreakerConfig
	Clock             resilience.Clock
	Logger            zerolog.Logger
}

// DefaultThrottleConfig returns the pacing used for live exchanges.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		MinSpacing:        300 * time.Millisecond,
		RateLimitCooldown: 10 * time.Second,
		Retry:             utils.DefaultRetryConfig(),
		Circuit:           resilience.DefaultCircuitBreakerConfig(),
		Clock:             resilience.RealClock{},
		Logger:            zerolog.Nop(),
	}
}

// Throttled wraps an Adapter with call pacing and a circuit breaker. Reads
// are retried on transient errors; order placement is never retried so a
// timeout cannot double an order.
type Throttled struct {
	name    string
	inner   Adapter
	gate    *resilience.RateGate
	circuit *resilience.CircuitBreaker
	cfg     ThrottleConfig
	logger  zerolog.Logger
}

// NewThrottled wraps inner for the exchange called name.
func NewThrottled(name string, inner Adapter, cfg ThrottleConfig) *Throttled {
	if cfg.Clock == nil {
		cfg.Clock = resilience.RealClock{}
	}
	if cfg.Retry.Sleeper == nil {
		cfg.Retry.Sleeper = cfg.Clock
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = IsTransient
	}
	return &Throttled{
		name:    name,
		inner:   inner,
		gate:    resilience.NewRateGate(cfg.MinSpacing, cfg.Clock),
		circuit: resilience.NewCircuitBreaker(name, cfg.Circuit, cfg.Clock),
		cfg:     cfg,
		logger:  logging.WithExchange(cfg.Logger, name),
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, apperrors.ErrConnectionFailed) || errors.Is(err, apperrors.ErrRateLimited)
}

// Circuit exposes the breaker for health reporting.
func (t *Throttled) Circuit() *resilience.CircuitBreaker {
	return t.circuit
}

// Unwrap returns the wrapped adapter.
func (t *Throttled) Unwrap() Adapter {
	return t.inner
}

func (t *Throttled) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := t.gate.Wait(ctx); err != nil {
		return err
	}

	start := t.cfg.Clock.Now()
	err := t.circuit.Execute(ctx, fn)
	logging.LogAPICall(t.logger, name, t.cfg.Clock.Now().Sub(start), err)

	if errors.Is(err, apperrors.ErrRateLimited) {
		t.gate.Cooldown(t.cfg.RateLimitCooldown)
	}
	if err != nil {
		return apperrors.NewAdapterError(t.name, name, err)
	}
	return nil
}

func (t *Throttled) read(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return utils.Retry(ctx, t.cfg.Retry, func() error {
		return t.call(ctx, name, fn)
	})
}

func (t *Throttled) Ticker(ctx context.Context, symbol string) (models.Ticker, error) {
	var out models.Ticker
	err := t.read(ctx, "ticker", func(ctx context.Context) error {
		var err error
		out, err = t.inner.Ticker(ctx, symbol)
		return err
	})
	return out, err
}

func (t *Throttled) WalletBalances(ctx context.Context) ([]models.Balance, error) {
	var out []models.Balance
	err := t.read(ctx, "walletBalances", func(ctx context.Context) error {
		var err error
		out, err = t.inner.WalletBalances(ctx)
		return err
	})
	return out, err
}

func (t *Throttled) LimitOrder(ctx context.Context, symbol string, amount, price float64, side models.Side, isEverything bool) (*models.Order, error) {
	var out *models.Order
	err := t.call(ctx, "limitOrder", func(ctx context.Context) error {
		var err error
		out, err = t.inner.LimitOrder(ctx, symbol, amount, price, side, isEverything)
		return err
	})
	return out, err
}

func (t *Throttled) MarketOrder(ctx context.Context, symbol string, amount float64, side models.Side, isEverything bool) (*models.Order, error) {
	var out *models.Order
	err := t.call(ctx, "marketOrder", func(ctx context.Context) error {
		var err error
		out, err = t.inner.MarketOrder(ctx, symbol, amount, side, isEverything)
		return err
	})
	return out, err
}

func (t *Throttled) StopOrder(ctx context.Context, symbol string, amount, price float64, side models.Side, trigger models.Trigger) (*models.Order, error) {
	var out *models.Order
	err := t.call(ctx, "stopOrder", func(ctx context.Context) error {
		var err error
		out, err = t.inner.StopOrder(ctx, symbol, amount, price, side, trigger)
		return err
	})
	return out, err
}

func (t *Throttled) ActiveOrders(ctx context.Context, symbol, which string) ([]*models.Order, error) {
	var out []*models.Order
	err := t.read(ctx, "activeOrders", func(ctx context.Context) error {
		var err error
		out, err = t.inner.ActiveOrders(ctx, symbol, which)
		return err
	})
	return out, err
}

func (t *Throttled) CancelOrders(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	return t.read(ctx, "cancelOrders", func(ctx context.Context) error {
		return t.inner.CancelOrders(ctx, orders)
	})
}

func (t *Throttled) Order(ctx context.Context, order *models.Order) (models.OrderStatus, error) {
	var out models.OrderStatus
	err := t.read(ctx, "order", func(ctx context.Context) error {
		var err error
		out, err = t.inner.Order(ctx, order)
		return err
	})
	return out, err
}

// Positions forwards to the wrapped adapter when it can read positions.
func (t *Throttled) Positions(ctx context.Context) ([]models.Position, error) {
	pr, ok := t.inner.(PositionReader)
	if !ok {
		return nil, apperrors.NewAdapterError(t.name, "positions", apperrors.ErrNotImplemented)
	}
	var out []models.Position
	err := t.read(ctx, "positions", func(ctx context.Context) error {
		var err error
		out, err = pr.Positions(ctx)
		return err
	})
	return out, err
}

// Account forwards to the wrapped adapter when it can read the account.
func (t *Throttled) Account(ctx context.Context) (models.Account, error) {
	ar, ok := t.inner.(AccountReader)
	if !ok {
		return models.Account{}, apperrors.NewAdapterError(t.name, "account", apperrors.ErrNotImplemented)
	}
	var out models.Account
	err := t.read(ctx, "account", func(ctx context.Context) error {
		var err error
		out, err = ar.Account(ctx)
		return err
	})
	return out, err
}

// Close closes the wrapped adapter if it holds resources.
func (t *Throttled) Close() error {
	if c, ok := t.inner.(Closer); ok {
		return c.Close()
	}
	return nil
}
