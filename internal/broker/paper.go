package broker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	apperrors "instabot-trader/internal/errors"
	"instabot-trader/internal/models"
	"instabot-trader/internal/resilience"
	"instabot-trader/internal/sizing"
)

// PaperOptions configures the paper exchange.
type PaperOptions struct {
	// Balances seeds the wallet, currency to amount.
	Balances map[string]float64
	// Tickers seeds the order books, symbol to ticker.
	Tickers map[string]models.Ticker
	// Split maps symbols onto wallet currencies. Defaults to compact symbols.
	Split sizing.Splitter
	// MarginCurrency backs the account summary. Defaults to btc.
	MarginCurrency string
	Clock          resilience.Clock
}

type paperOrder struct {
	order    models.Order
	trigger  models.Trigger
	executed float64
	status   string // OPEN, COMPLETE, CANCELLED
	locked   float64
	seq      int
}

// Paper simulates an exchange in memory. Limit orders fill when the book
// crosses them, stops trigger when the book reaches them.
type Paper struct {
	name  string
	split sizing.Splitter
	clock resilience.Clock

	mu        sync.RWMutex
	balances  map[string]*models.Balance
	tickers   map[string]models.Ticker
	orders    map[string]*paperOrder
	positions map[string]float64
	margin    string

	orderCounter int
}

// NewPaper creates a new paper exchange named name.
func NewPaper(name string, opts PaperOptions) *Paper {
	if opts.Split == nil {
		opts.Split = sizing.SplitSymbol
	}
	if opts.Clock == nil {
		opts.Clock = resilience.RealClock{}
	}
	if opts.MarginCurrency == "" {
		opts.MarginCurrency = "btc"
	}

	p := &Paper{
		name:      name,
		split:     opts.Split,
		clock:     opts.Clock,
		balances:  make(map[string]*models.Balance),
		tickers:   make(map[string]models.Ticker),
		orders:    make(map[string]*paperOrder),
		positions: make(map[string]float64),
		margin:    strings.ToLower(opts.MarginCurrency),
	}
	for currency, amount := range opts.Balances {
		p.balance(currency).Amount = amount
		p.balance(currency).Available = amount
	}
	for symbol, t := range opts.Tickers {
		p.tickers[strings.ToUpper(symbol)] = t
	}
	return p
}

// balance must be called with mu held.
func (p *Paper) balance(currency string) *models.Balance {
	currency = strings.ToLower(currency)
	b, ok := p.balances[currency]
	if !ok {
		b = &models.Balance{Type: sizing.BalanceType, Currency: currency}
		p.balances[currency] = b
	}
	return b
}

// SetTicker moves the book for symbol and fills anything it crosses.
func (p *Paper) SetTicker(symbol string, t models.Ticker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	symbol = strings.ToUpper(symbol)
	p.tickers[symbol] = t
	p.match(symbol, t)
}

// match must be called with mu held.
func (p *Paper) match(symbol string, t models.Ticker) {
	for _, o := range p.sortedOrders() {
		if o.status != "OPEN" || o.order.Symbol != symbol {
			continue
		}

		switch o.order.Kind {
		case models.OrderKindLimit:
			if o.order.Side == models.SideBuy && t.Ask > 0 && t.Ask <= o.order.Price {
				p.fill(o, o.order.Price)
			}
			if o.order.Side == models.SideSell && t.Bid >= o.order.Price {
				p.fill(o, o.order.Price)
			}
		case models.OrderKindStop:
			price := stopReference(o.trigger, o.order.Side, t)
			if o.order.Side == models.SideBuy && price >= o.order.Price {
				p.fill(o, t.Ask)
			}
			if o.order.Side == models.SideSell && price > 0 && price <= o.order.Price {
				p.fill(o, t.Bid)
			}
		}
	}
}

func stopReference(trigger models.Trigger, side models.Side, t models.Ticker) float64 {
	if trigger == models.TriggerLast && t.LastPrice > 0 {
		return t.LastPrice
	}
	if side == models.SideBuy {
		return t.Ask
	}
	return t.Bid
}

// fill settles an order at price. Must be called with mu held.
func (p *Paper) fill(o *paperOrder, price float64) {
	pair := p.split(o.order.Symbol)
	asset, currency := p.balance(pair.Asset), p.balance(pair.Currency)
	amount := o.order.Amount - o.executed
	cost := amount * price

	if o.order.Side == models.SideBuy {
		asset.Amount += amount
		asset.Available += amount
		currency.Amount -= cost
		currency.Available += o.locked - cost
		p.positions[o.order.Symbol] += amount
	} else {
		asset.Amount -= amount
		asset.Available += o.locked - amount
		currency.Amount += cost
		currency.Available += cost
		p.positions[o.order.Symbol] -= amount
	}

	o.locked = 0
	o.executed = o.order.Amount
	o.status = "COMPLETE"
}

// sortedOrders must be called with mu held.
func (p *Paper) sortedOrders() []*paperOrder {
	list := make([]*paperOrder, 0, len(p.orders))
	for _, o := range p.orders {
		list = append(list, o)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	return list
}

// Ticker returns the simulated book for symbol.
func (p *Paper) Ticker(ctx context.Context, symbol string) (models.Ticker, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	t, ok := p.tickers[strings.ToUpper(symbol)]
	if !ok {
		return models.Ticker{}, fmt.Errorf("no price for %s on %s", symbol, p.name)
	}
	return t, nil
}

// WalletBalances returns the simulated wallet.
func (p *Paper) WalletBalances(ctx context.Context) ([]models.Balance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	wallet := make([]models.Balance, 0, len(p.balances))
	for _, b := range p.balances {
		wallet = append(wallet, *b)
	}
	sort.Slice(wallet, func(i, j int) bool { return wallet[i].Currency < wallet[j].Currency })
	return wallet, nil
}

func (p *Paper) newOrder(symbol string, kind models.OrderKind, side models.Side, amount, price float64) (*paperOrder, error) {
	if amount <= 0 {
		return nil, apperrors.ErrZeroOrderSize
	}
	if _, ok := models.ParseSide(string(side)); !ok {
		return nil, apperrors.ErrInvalidSide
	}

	p.orderCounter++
	return &paperOrder{
		order: models.Order{
			ID:       fmt.Sprintf("PAPER_%d", p.orderCounter),
			Symbol:   strings.ToUpper(symbol),
			Kind:     kind,
			Side:     side,
			Amount:   amount,
			Price:    price,
			PlacedAt: p.clock.Now(),
		},
		status: "OPEN",
		seq:    p.orderCounter,
	}, nil
}

// lock reserves the funds an order needs. Must be called with mu held.
func (p *Paper) lock(o *paperOrder, price float64) error {
	pair := p.split(o.order.Symbol)
	if o.order.Side == models.SideBuy {
		b := p.balance(pair.Currency)
		need := o.order.Amount * price
		if b.Available+1e-9 < need {
			return fmt.Errorf("insufficient %s: need %.8f, have %.8f", pair.Currency, need, b.Available)
		}
		b.Available -= need
		o.locked = need
		return nil
	}

	b := p.balance(pair.Asset)
	if b.Available+1e-9 < o.order.Amount {
		return fmt.Errorf("insufficient %s: need %.8f, have %.8f", pair.Asset, o.order.Amount, b.Available)
	}
	b.Available -= o.order.Amount
	o.locked = o.order.Amount
	return nil
}

// LimitOrder places a limit order, filling at once if it crosses the book.
func (p *Paper) LimitOrder(ctx context.Context, symbol string, amount, price float64, side models.Side, isEverything bool) (*models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, err := p.newOrder(symbol, models.OrderKindLimit, side, amount, price)
	if err != nil {
		return nil, err
	}
	if err := p.lock(o, price); err != nil {
		return nil, err
	}

	p.orders[o.order.ID] = o
	if t, ok := p.tickers[o.order.Symbol]; ok {
		p.match(o.order.Symbol, t)
	}
	order := o.order
	return &order, nil
}

// MarketOrder fills immediately at the touch.
func (p *Paper) MarketOrder(ctx context.Context, symbol string, amount float64, side models.Side, isEverything bool) (*models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tickers[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("no price for %s on %s", symbol, p.name)
	}
	price := t.Ask
	if side == models.SideSell {
		price = t.Bid
	}

	o, err := p.newOrder(symbol, models.OrderKindMarket, side, amount, price)
	if err != nil {
		return nil, err
	}
	if err := p.lock(o, price); err != nil {
		return nil, err
	}

	p.orders[o.order.ID] = o
	p.fill(o, price)
	order := o.order
	return &order, nil
}

// StopOrder rests until the trigger price is reached, then fills at the touch.
func (p *Paper) StopOrder(ctx context.Context, symbol string, amount, price float64, side models.Side, trigger models.Trigger) (*models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, err := p.newOrder(symbol, models.OrderKindStop, side, amount, price)
	if err != nil {
		return nil, err
	}
	o.trigger = trigger
	p.orders[o.order.ID] = o
	order := o.order
	return &order, nil
}

// ActiveOrders lists open orders on symbol, optionally by side.
func (p *Paper) ActiveOrders(ctx context.Context, symbol, which string) ([]*models.Order, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	symbol = strings.ToUpper(symbol)
	var active []*models.Order
	for _, o := range p.sortedOrders() {
		if o.status != "OPEN" || o.order.Symbol != symbol {
			continue
		}
		if which != "all" && string(o.order.Side) != which {
			continue
		}
		order := o.order
		active = append(active, &order)
	}
	return active, nil
}

// CancelOrders cancels every open order given. Filled, cancelled or unknown
// orders are skipped.
func (p *Paper) CancelOrders(ctx context.Context, orders []*models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ref := range orders {
		if ref == nil {
			continue
		}
		o, ok := p.orders[ref.ID]
		if !ok || o.status != "OPEN" {
			continue
		}

		pair := p.split(o.order.Symbol)
		if o.order.Side == models.SideBuy {
			p.balance(pair.Currency).Available += o.locked
		} else {
			p.balance(pair.Asset).Available += o.locked
		}
		o.locked = 0
		o.status = "CANCELLED"
	}
	return nil
}

// Order reports the state of an order.
func (p *Paper) Order(ctx context.Context, order *models.Order) (models.OrderStatus, error) {
	if order == nil {
		return models.OrderStatus{}, apperrors.ErrOrderNotFound
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	o, ok := p.orders[order.ID]
	if !ok {
		return models.OrderStatus{}, fmt.Errorf("%s: %w", order.ID, apperrors.ErrOrderNotFound)
	}
	return models.OrderStatus{
		ID:        o.order.ID,
		Side:      o.order.Side,
		Amount:    o.order.Amount,
		Remaining: o.order.Amount - o.executed,
		Executed:  o.executed,
		IsFilled:  o.status == "COMPLETE",
		IsOpen:    o.status == "OPEN",
	}, nil
}

// Positions reports the net filled size per symbol.
func (p *Paper) Positions(ctx context.Context) ([]models.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	positions := make([]models.Position, 0, len(p.positions))
	for symbol, size := range p.positions {
		if size == 0 {
			continue
		}
		positions = append(positions, models.Position{Instrument: symbol, Size: size})
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Instrument < positions[j].Instrument })
	return positions, nil
}

// Account summarises the margin currency balance.
func (p *Paper) Account(ctx context.Context) (models.Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	b, ok := p.balances[p.margin]
	if !ok {
		return models.Account{}, nil
	}
	return models.Account{
		Equity:         b.Amount,
		AvailableFunds: b.Available,
		Balance:        b.Amount,
	}, nil
}
