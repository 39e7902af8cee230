// Package broker defines the exchange adapter boundary and the adapters
// that ship with the bot.
package broker

import (
	"context"
	"fmt"
	"strings"

	apperrors "instabot-trader/internal/errors"
	"instabot-trader/internal/models"
)

// Adapter is the capability set every exchange driver implements. Calls
// fail with an error once the driver's own retry policy gives up.
type Adapter interface {
	Ticker(ctx context.Context, symbol string) (models.Ticker, error)
	WalletBalances(ctx context.Context) ([]models.Balance, error)
	LimitOrder(ctx context.Context, symbol string, amount, price float64, side models.Side, isEverything bool) (*models.Order, error)
	MarketOrder(ctx context.Context, symbol string, amount float64, side models.Side, isEverything bool) (*models.Order, error)
	StopOrder(ctx context.Context, symbol string, amount, price float64, side models.Side, trigger models.Trigger) (*models.Order, error)
	// ActiveOrders lists open orders; which is buy, sell or all.
	ActiveOrders(ctx context.Context, symbol, which string) ([]*models.Order, error)
	CancelOrders(ctx context.Context, orders []*models.Order) error
	Order(ctx context.Context, order *models.Order) (models.OrderStatus, error)
}

// PositionReader is implemented by derivatives drivers.
type PositionReader interface {
	Positions(ctx context.Context) ([]models.Position, error)
}

// AccountReader is implemented by derivatives drivers.
type AccountReader interface {
	Account(ctx context.Context) (models.Account, error)
}

// Closer is implemented by drivers holding connections.
type Closer interface {
	Close() error
}

// Credentials select and authenticate a driver for one exchange.
type Credentials struct {
	Exchange   string
	Driver     string
	Key        string
	Secret     string
	Passphrase string
	Endpoint   string

	// Paper seeds the paper driver's wallet, currency to amount.
	Paper map[string]float64
	// PaperTickers seeds the paper driver's books, symbol to ticker.
	PaperTickers map[string]models.Ticker
}

// Identity is what makes two sets of credentials the same account.
func (c Credentials) Identity() string {
	return strings.Join([]string{
		strings.ToLower(c.Exchange), c.Driver, c.Key, c.Secret, c.Passphrase, c.Endpoint,
	}, "\x00")
}

// DriverPaper is the in-memory simulated exchange.
const DriverPaper = "paper"

// Open builds the adapter named by creds.Driver. An empty driver means paper.
func Open(creds Credentials, opts PaperOptions) (Adapter, error) {
	switch strings.ToLower(creds.Driver) {
	case "", DriverPaper:
		if opts.Balances == nil {
			opts.Balances = creds.Paper
		}
		if opts.Tickers == nil {
			opts.Tickers = creds.PaperTickers
		}
		return NewPaper(creds.Exchange, opts), nil
	default:
		return nil, fmt.Errorf("driver %q for %s: %w", creds.Driver, creds.Exchange, apperrors.ErrUnsupportedExchange)
	}
}
