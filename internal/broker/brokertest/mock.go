// Package brokertest provides a scriptable in-memory Adapter for tests.
package brokertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"instabot-trader/internal/broker"
	"instabot-trader/internal/models"
)

var (
	_ broker.Adapter        = (*Mock)(nil)
	_ broker.PositionReader = (*Mock)(nil)
	_ broker.AccountReader  = (*Mock)(nil)
)

// Call records one adapter invocation.
type Call struct {
	Name    string
	Symbol  string
	Side    models.Side
	Amount  float64
	Price   float64
	Which   string
	Trigger models.Trigger
	Orders  []string
}

// Mock is an Adapter whose answers are set by the test. Order statuses are
// served from per-order scripts; the last entry of a script repeats.
type Mock struct {
	mu sync.Mutex

	TickerValue models.Ticker
	Wallet      []models.Balance
	Open        []*models.Order
	PositionSet []models.Position
	AccountInfo models.Account

	// Errors makes the named call fail, e.g. Errors["limitOrder"].
	Errors map[string]error

	// DefaultStatus answers Order for orders without a script. Nil means
	// open and unfilled.
	DefaultStatus func(order *models.Order) models.OrderStatus

	// OnCall runs after a call is recorded, outside the lock.
	OnCall func(c Call)

	statuses map[string][]models.OrderStatus
	calls    []Call
	counter  int
}

// New returns an empty mock.
func New() *Mock {
	return &Mock{
		Errors:   make(map[string]error),
		statuses: make(map[string][]models.OrderStatus),
	}
}

// Script queues the statuses Order returns for id, one per poll.
func (m *Mock) Script(id string, statuses ...models.OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = append(m.statuses[id], statuses...)
}

// Fail makes the named call return err from now on. A nil err clears it.
func (m *Mock) Fail(call string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.Errors, call)
		return
	}
	m.Errors[call] = err
}

// Calls returns every recorded call.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsTo returns the recorded calls with the given name.
func (m *Mock) CallsTo(name string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func (m *Mock) record(c Call) error {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	err := m.Errors[c.Name]
	hook := m.OnCall
	m.mu.Unlock()

	if hook != nil {
		hook(c)
	}
	return err
}

func (m *Mock) place(kind models.OrderKind, symbol string, amount, price float64, side models.Side) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return &models.Order{
		ID:     fmt.Sprintf("%s-%d", kind, m.counter),
		Symbol: strings.ToUpper(symbol),
		Kind:   kind,
		Side:   side,
		Amount: amount,
		Price:  price,
	}
}

func (m *Mock) Ticker(ctx context.Context, symbol string) (models.Ticker, error) {
	if err := m.record(Call{Name: "ticker", Symbol: symbol}); err != nil {
		return models.Ticker{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TickerValue, nil
}

func (m *Mock) WalletBalances(ctx context.Context) ([]models.Balance, error) {
	if err := m.record(Call{Name: "walletBalances"}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Balance(nil), m.Wallet...), nil
}

func (m *Mock) LimitOrder(ctx context.Context, symbol string, amount, price float64, side models.Side, isEverything bool) (*models.Order, error) {
	if err := m.record(Call{Name: "limitOrder", Symbol: symbol, Side: side, Amount: amount, Price: price}); err != nil {
		return nil, err
	}
	return m.place(models.OrderKindLimit, symbol, amount, price, side), nil
}

func (m *Mock) MarketOrder(ctx context.Context, symbol string, amount float64, side models.Side, isEverything bool) (*models.Order, error) {
	if err := m.record(Call{Name: "marketOrder", Symbol: symbol, Side: side, Amount: amount}); err != nil {
		return nil, err
	}
	return m.place(models.OrderKindMarket, symbol, amount, 0, side), nil
}

func (m *Mock) StopOrder(ctx context.Context, symbol string, amount, price float64, side models.Side, trigger models.Trigger) (*models.Order, error) {
	if err := m.record(Call{Name: "stopOrder", Symbol: symbol, Side: side, Amount: amount, Price: price, Trigger: trigger}); err != nil {
		return nil, err
	}
	return m.place(models.OrderKindStop, symbol, amount, price, side), nil
}

func (m *Mock) ActiveOrders(ctx context.Context, symbol, which string) ([]*models.Order, error) {
	if err := m.record(Call{Name: "activeOrders", Symbol: symbol, Which: which}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Order
	for _, o := range m.Open {
		if which == "all" || string(o.Side) == which {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Mock) CancelOrders(ctx context.Context, orders []*models.Order) error {
	c := Call{Name: "cancelOrders"}
	for _, o := range orders {
		if o != nil {
			c.Orders = append(c.Orders, o.ID)
		}
	}
	return m.record(c)
}

func (m *Mock) Order(ctx context.Context, order *models.Order) (models.OrderStatus, error) {
	if order == nil {
		return models.OrderStatus{}, fmt.Errorf("nil order")
	}
	if err := m.record(Call{Name: "order", Orders: []string{order.ID}}); err != nil {
		return models.OrderStatus{}, err
	}

	m.mu.Lock()
	script := m.statuses[order.ID]
	if len(script) > 0 {
		status := script[0]
		if len(script) > 1 {
			m.statuses[order.ID] = script[1:]
		}
		m.mu.Unlock()
		status.ID = order.ID
		return status, nil
	}
	def := m.DefaultStatus
	m.mu.Unlock()

	if def != nil {
		return def(order), nil
	}
	return models.OrderStatus{ID: order.ID, Side: order.Side, Amount: order.Amount, Remaining: order.Amount, IsOpen: true}, nil
}

func (m *Mock) Positions(ctx context.Context) ([]models.Position, error) {
	if err := m.record(Call{Name: "positions"}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Position(nil), m.PositionSet...), nil
}

func (m *Mock) Account(ctx context.Context) (models.Account, error) {
	if err := m.record(Call{Name: "account"}); err != nil {
		return models.Account{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.AccountInfo, nil
}

// Filled is a completed order status.
func Filled(amount float64) models.OrderStatus {
	return models.OrderStatus{Amount: amount, Executed: amount, IsFilled: true}
}

// Working is an open order status with executed already traded.
func Working(amount, executed float64) models.OrderStatus {
	return models.OrderStatus{Amount: amount, Executed: executed, Remaining: amount - executed, IsOpen: true}
}

// Cancelled is an order that was closed without filling.
func Cancelled(amount, executed float64) models.OrderStatus {
	return models.OrderStatus{Amount: amount, Executed: executed, Remaining: amount - executed}
}
