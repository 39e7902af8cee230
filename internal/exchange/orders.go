package exchange

import (
	"context"
	"time"

	apperrors "instabot-trader/internal/errors"
	"instabot-trader/internal/logging"
	"instabot-trader/internal/models"
	"instabot-trader/internal/parser"
	"instabot-trader/internal/session"
)

func single(r models.OrderResult) Result {
	return Result{Orders: []models.OrderResult{r}}
}

// notPlaced is the result of an order that resolved to nothing to do.
func notPlaced(side models.Side) Result {
	return single(models.OrderResult{Side: side})
}

func orderID(o *models.Order) string {
	if o == nil {
		return ""
	}
	return o.ID
}

func (e *Exchange) defaultTag() string {
	return e.clock.Now().UTC().Format(time.RFC3339Nano)
}

// limitOrder(side, offset, amount, tag, position)
func (e *Exchange) limitOrder(ctx context.Context, c Call) (Result, error) {
	p := c.Args.Assign(parser.Schema{
		{Name: "side", Default: "buy"},
		{Name: "offset", Default: "0"},
		{Name: "amount", Default: "0"},
		{Name: "tag", Default: e.defaultTag()},
		{Name: "position", Default: ""},
	})
	logger := e.commandLogger(c, cmdLimitOrder)
	logger.Info().Interface("params", p).Msg("Limit order")

	side, ok := models.ParseSide(p.Get("side"))
	if !ok {
		return Result{}, apperrors.ErrInvalidSide
	}

	side, qty, err := e.PositionToAmount(ctx, c.Symbol, p.Get("position"), side, p.Get("amount"))
	if err != nil {
		return Result{}, err
	}
	if qty.IsZero() {
		logger.Info().Msg("Limit order not placed, as order size is zero")
		return notPlaced(side), nil
	}

	price, err := e.OffsetToAbsolutePrice(ctx, c.Symbol, c.Session, side, p.Get("offset"))
	if err != nil {
		return Result{}, err
	}
	size, err := e.OrderSizeFromAmount(ctx, c.Symbol, side, price, parser.FormatQuantity(qty))
	if err != nil {
		return Result{}, err
	}
	if size.OrderSize == 0 {
		return Result{}, apperrors.ErrZeroOrderSize
	}

	order, err := e.adapter.LimitOrder(ctx, c.Symbol, size.OrderSize, price, side, size.IsAllAvailable)
	if err != nil {
		return Result{}, err
	}
	e.record(ctx, c, p.Get("tag"), order)
	logging.LogOrder(logger, orderID(order), string(models.OrderKindLimit), string(side), size.OrderSize, price)

	return single(models.OrderResult{
		Order:  order,
		Side:   side,
		Price:  price,
		Amount: size.OrderSize,
		Units:  models.UnitsAbsolute,
	}), nil
}

// marketOrder(side, amount, position)
func (e *Exchange) marketOrder(ctx context.Context, c Call) (Result, error) {
	p := c.Args.Assign(parser.Schema{
		{Name: "side", Default: "buy"},
		{Name: "amount", Default: "0"},
		{Name: "position", Default: ""},
	})
	logger := e.commandLogger(c, cmdMarketOrder)
	logger.Info().Interface("params", p).Msg("Market order")

	side, ok := models.ParseSide(p.Get("side"))
	if !ok {
		return Result{}, apperrors.ErrInvalidSide
	}

	side, qty, err := e.PositionToAmount(ctx, c.Symbol, p.Get("position"), side, p.Get("amount"))
	if err != nil {
		return Result{}, err
	}
	if qty.IsZero() {
		logger.Info().Msg("Market order not placed, as order size is zero")
		return notPlaced(side), nil
	}

	price, err := e.OffsetToAbsolutePrice(ctx, c.Symbol, c.Session, side, "0")
	if err != nil {
		return Result{}, err
	}
	size, err := e.OrderSizeFromAmount(ctx, c.Symbol, side, price, parser.FormatQuantity(qty))
	if err != nil {
		return Result{}, err
	}
	if size.OrderSize == 0 {
		return Result{}, apperrors.ErrZeroOrderSize
	}

	order, err := e.adapter.MarketOrder(ctx, c.Symbol, size.OrderSize, side, size.IsAllAvailable)
	if err != nil {
		return Result{}, err
	}
	e.journalOrder(ctx, c, "", order)
	logging.LogOrder(logger, orderID(order), string(models.OrderKindMarket), string(side), size.OrderSize, price)

	return single(models.OrderResult{
		Order:  order,
		Side:   side,
		Price:  price,
		Amount: size.OrderSize,
		Units:  models.UnitsAbsolute,
	}), nil
}

// stopMarketOrder(side, offset, amount, tag, position, trigger)
func (e *Exchange) stopMarketOrder(ctx context.Context, c Call) (Result, error) {
	p := c.Args.Assign(parser.Schema{
		{Name: "side", Default: "buy"},
		{Name: "offset", Default: "0"},
		{Name: "amount", Default: "0"},
		{Name: "tag", Default: e.defaultTag()},
		{Name: "position", Default: ""},
		{Name: "trigger", Default: string(models.TriggerMark)},
	})
	logger := e.commandLogger(c, cmdStopMarketOrder)
	logger.Info().Interface("params", p).Msg("Stop market order")

	trigger := models.Trigger(p.Get("trigger"))
	switch trigger {
	case models.TriggerMark, models.TriggerIndex, models.TriggerLast:
	default:
		logger.Error().Str("trigger", string(trigger)).Msg("Stop trigger not supported, using mark price")
		trigger = models.TriggerMark
	}

	side, ok := models.ParseSide(p.Get("side"))
	if !ok {
		return Result{}, apperrors.ErrInvalidSide
	}

	side, qty, err := e.PositionToAmount(ctx, c.Symbol, p.Get("position"), side, p.Get("amount"))
	if err != nil {
		return Result{}, err
	}
	if qty.IsZero() {
		return Result{}, apperrors.ErrZeroOrderSize
	}

	// Stops sit on the far side of the book: a sell stop below the bid.
	price, err := e.OffsetToAbsolutePrice(ctx, c.Symbol, c.Session, side.Opposite(), p.Get("offset"))
	if err != nil {
		return Result{}, err
	}
	size, err := e.OrderSizeFromAmount(ctx, c.Symbol, side, price, parser.FormatQuantity(qty))
	if err != nil {
		return Result{}, err
	}
	if size.OrderSize == 0 {
		return Result{}, apperrors.ErrZeroOrderSize
	}

	order, err := e.adapter.StopOrder(ctx, c.Symbol, size.OrderSize, price, side, trigger)
	if err != nil {
		return Result{}, err
	}
	e.record(ctx, c, p.Get("tag"), order)
	logging.LogOrder(logger, orderID(order), string(models.OrderKindStop), string(side), size.OrderSize, price)

	return single(models.OrderResult{
		Order:  order,
		Side:   side,
		Price:  price,
		Amount: size.OrderSize,
		Units:  models.UnitsAbsolute,
	}), nil
}

// cancelOrders(which, tag) cancels matching orders and stops matching
// algorithmic orders.
func (e *Exchange) cancelOrders(ctx context.Context, c Call) (Result, error) {
	p := c.Args.Assign(parser.Schema{
		{Name: "which", Default: string(session.WhichSession)},
		{Name: "tag", Default: ""},
	})
	logger := e.commandLogger(c, cmdCancelOrders)
	logger.Info().Interface("params", p).Msg("Cancel orders")

	which := session.ParseWhich(p.Get("which"))
	if n := e.algos.Cancel(which, p.Get("tag"), c.Session); n > 0 {
		logger.Info().Int("algos", n).Msg("Algorithmic orders cancelled")
	}

	var orders []*models.Order
	switch which {
	case session.WhichBuy, session.WhichSell, session.WhichAll:
		active, err := e.adapter.ActiveOrders(ctx, c.Symbol, string(which))
		if err != nil {
			return Result{}, err
		}
		orders = active
	case session.WhichTagged:
		orders = e.sessions.FindTagged(c.Session, p.Get("tag"))
	default:
		orders = e.sessions.Find(c.Session)
	}

	if err := e.adapter.CancelOrders(ctx, orders); err != nil {
		return Result{}, err
	}
	logger.Info().Int("orders", len(orders)).Msg("Orders cancelled")
	return Result{}, nil
}
