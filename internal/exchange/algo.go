package exchange

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	apperrors "instabot-trader/internal/errors"
	"instabot-trader/internal/logging"
	"instabot-trader/internal/models"
	"instabot-trader/internal/parser"
	"instabot-trader/internal/scaling"
	"instabot-trader/internal/sizing"
	"instabot-trader/pkg/utils"
)

func clampInt(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func scaledSchema(tag string) parser.Schema {
	return parser.Schema{
		{Name: "from", Default: "0"},
		{Name: "to", Default: "50"},
		{Name: "orderCount", Default: "10"},
		{Name: "amount", Default: "0"},
		{Name: "side", Default: "buy"},
		{Name: "easing", Default: string(scaling.Linear)},
		{Name: "varyAmount", Default: "0"},
		{Name: "varyPrice", Default: "0"},
		{Name: "tag", Default: tag},
		{Name: "position", Default: ""},
	}
}

// scaledOrder(from, to, orderCount, amount, side, easing, varyAmount, varyPrice, tag, position)
func (e *Exchange) scaledOrder(ctx context.Context, c Call) (Result, error) {
	p := c.Args.Assign(scaledSchema(""))
	orders, err := e.placeScaled(ctx, c, p)
	return Result{Orders: orders}, err
}

// placeScaled places a series of limit orders across a price range. Every
// requested slot has a result; a slot that failed to place has no order.
func (e *Exchange) placeScaled(ctx context.Context, c Call, p parser.Params) ([]models.OrderResult, error) {
	logger := e.commandLogger(c, cmdScaledOrder)
	logger.Info().Interface("params", p).Msg("Scaled order")

	count := clampInt(p.Int("orderCount"), 2, 100)
	varyAmount := parser.ParsePercentage(p.Get("varyAmount"))
	varyPrice := parser.ParsePercentage(p.Get("varyPrice"))
	easing := scaling.Easing(p.Get("easing"))

	side, ok := models.ParseSide(p.Get("side"))
	if !ok {
		return nil, apperrors.ErrInvalidSide
	}
	side, qty, err := e.PositionToAmount(ctx, c.Symbol, p.Get("position"), side, p.Get("amount"))
	if err != nil {
		return nil, err
	}
	if qty.IsZero() {
		logger.Info().Msg("Scaled order not placed, as order size is zero")
		return []models.OrderResult{}, nil
	}

	from, err := e.OffsetToAbsolutePrice(ctx, c.Symbol, c.Session, side, p.Get("from"))
	if err != nil {
		return nil, err
	}
	to, err := e.OffsetToAbsolutePrice(ctx, c.Symbol, c.Session, side, p.Get("to"))
	if err != nil {
		return nil, err
	}
	// Buys run down from the highest price, sells up from the lowest.
	if (side == models.SideBuy && from < to) || (side == models.SideSell && from > to) {
		from, to = to, from
	}

	total, err := e.scaledOrderSize(ctx, c.Symbol, sizing.ScaledRequest{
		Side:       side,
		Amount:     qty,
		OrderCount: count,
		From:       from,
		To:         to,
		Easing:     easing,
	})
	if err != nil {
		return nil, err
	}
	if total == 0 {
		logger.Info().Msg("Scaled order would place orders below the minimum order size, ignoring")
		return []models.OrderResult{}, nil
	}

	var amounts, prices []float64
	e.random(func(r *rand.Rand) {
		amounts = scaling.ScaledAmounts(count, total, varyAmount, e.profile.Precision, r)
		prices = scaling.ScaledPrices(count, from, to, varyPrice, easing, r)
	})
	logger.Info().
		Str("side", string(side)).
		Float64("from", from).
		Float64("to", to).
		Float64("total", total).
		Int("orders", count).
		Msg("Scaled order sized against available funds")

	results := make([]models.OrderResult, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		args := parser.Named(
			"side", string(side),
			"offset", formatPrice(prices[i]),
			"amount", formatAmount(amounts[i], qty.Units),
			"tag", p.Get("tag"),
		)
		res, err := e.ExecuteCommand(ctx, c.Symbol, cmdLimitOrder, args, c.Session)
		if err != nil || len(res.Orders) == 0 {
			logger.Error().Err(err).Int("slot", i).Msg("Limit order in scaled series failed, placing the rest")
			results = append(results, models.OrderResult{Side: side, Price: prices[i], Amount: amounts[i], Units: qty.Units})
			continue
		}
		results = append(results, res.Orders[0])
	}
	return results, nil
}

// twapOrder(side, amount, orderCount, duration, position, tag) splits an
// amount into market orders spread evenly over duration.
func (e *Exchange) twapOrder(ctx context.Context, c Call) (Result, error) {
	p := c.Args.Assign(parser.Schema{
		{Name: "side", Default: "buy"},
		{Name: "amount", Default: "0"},
		{Name: "orderCount", Default: "10"},
		{Name: "duration", Default: "60s"},
		{Name: "position", Default: ""},
		{Name: "tag", Default: "twap"},
	})
	logger := e.commandLogger(c, cmdTwapOrder)
	logger.Info().Interface("params", p).Msg("TWAP order")

	count := clampInt(p.Int("orderCount"), 1, 50)
	gapSeconds := utils.RoundUp(float64(parser.TimeToSeconds(p.Get("duration"), 60))/float64(count), 0)
	gap := time.Duration(gapSeconds * float64(time.Second))

	side, ok := models.ParseSide(p.Get("side"))
	if !ok {
		return Result{}, apperrors.ErrInvalidSide
	}
	side, qty, err := e.PositionToAmount(ctx, c.Symbol, p.Get("position"), side, p.Get("amount"))
	if err != nil {
		return Result{}, err
	}
	if qty.IsZero() {
		logger.Info().Msg("TWAP order not placed, as order size is zero")
		return Result{}, nil
	}

	slice := formatAmount(utils.RoundDown(qty.Value/float64(count), 6), qty.Units)

	algo := e.algos.Start(side, c.Session, p.Get("tag"))
	defer e.algos.End(algo)
	logger = logging.WithAlgo(logger, algo.ID)

	var out Result
	for i := 0; i < count; i++ {
		if algo.Cancelled() {
			return out, fmt.Errorf("twap order %s: %w", algo.ID, apperrors.ErrAlgoCancelled)
		}

		res, err := e.ExecuteCommand(ctx, c.Symbol, cmdMarketOrder, parser.Named("side", string(side), "amount", slice), c.Session)
		if err != nil {
			logger.Error().Err(err).Int("slice", i).Msg("Market order in TWAP series failed, placing the rest")
		} else {
			out.Orders = append(out.Orders, res.Orders...)
		}

		if i < count-1 {
			if err := e.clock.Sleep(ctx, gap); err != nil {
				return out, err
			}
		}
	}
	logger.Info().Int("orders", len(out.Orders)).Msg("TWAP order complete")
	return out, nil
}

// icebergOrder(side, totalAmount, averageAmount, variance, limitPrice, timeLimit, tag)
// keeps one small limit order working near the touch until totalAmount
// has traded.
func (e *Exchange) icebergOrder(ctx context.Context, c Call) (Result, error) {
	p := c.Args.Assign(parser.Schema{
		{Name: "side", Default: "buy"},
		{Name: "totalAmount", Default: "0"},
		{Name: "averageAmount", Default: "0"},
		{Name: "variance", Default: "0.1%"},
		{Name: "limitPrice", Default: ""},
		{Name: "timeLimit", Default: "1d"},
		{Name: "tag", Default: "iceberg"},
	})
	logger := e.commandLogger(c, cmdIcebergOrder)
	logger.Info().Interface("params", p).Msg("Iceberg order")

	side, ok := models.ParseSide(strings.ToLower(p.Get("side")))
	if !ok {
		return Result{}, apperrors.ErrInvalidSide
	}
	total := p.Float("totalAmount")
	average := p.Float("averageAmount")
	limit := p.Float("limitPrice")
	timeLimit := time.Duration(parser.TimeToSeconds(p.Get("timeLimit"), 0)) * time.Second

	vq := parser.ParseQuantity(p.Get("variance"))
	variance := vq.Value
	if vq.Units == models.UnitsPercent {
		variance /= 100
	}

	if limit == 0 || total == 0 || average == 0 {
		logger.Info().Msg("Iceberg order needs a limit price, total and average amount, ignoring")
		return Result{}, nil
	}

	isBuy := side == models.SideBuy
	expiry := e.clock.Now().Add(timeLimit)

	algo := e.algos.Start(side, c.Session, p.Get("tag"))
	defer e.algos.End(algo)
	logger = logging.WithAlgo(logger, algo.ID)

	var (
		out       Result
		active    *models.Order
		left      = total
		stopPrice float64
		suspended bool
		delay     = e.backoff.Start()
	)

	cancelActive := func(ctx context.Context) error {
		if active == nil {
			return nil
		}
		return e.adapter.CancelOrders(ctx, []*models.Order{active})
	}

	for left > e.profile.MinOrderSize {
		if algo.Cancelled() || (timeLimit > 0 && e.clock.Now().After(expiry)) {
			logger.Info().Msg("Iceberg order cancelled or past its time limit, stopping")
			return out, cancelActive(ctx)
		}

		book, err := e.adapter.Ticker(ctx, c.Symbol)
		if err != nil {
			return out, err
		}
		current := book.Ask
		if isBuy {
			current = book.Bid
		}
		favourable := current > limit
		if isBuy {
			favourable = current < limit
		}

		if active == nil {
			if favourable {
				var amount float64
				e.random(func(r *rand.Rand) { amount = average * scaling.RandomRange(r, 0.9, 1.1) })
				amount = math.Min(amount, left)

				offset := current * variance
				orderPrice := current + offset
				stopPrice = current - offset
				if isBuy {
					orderPrice, stopPrice = current-offset, current+offset
				}
				logger.Info().
					Float64("left", left).
					Float64("amount", amount).
					Float64("stop", stopPrice).
					Msg("Placing iceberg slice")

				args := parser.Named(
					"side", string(side),
					"amount", formatAmount(amount, models.UnitsAbsolute),
					"offset", formatPrice(orderPrice),
					"tag", p.Get("tag"),
				)
				res, err := e.ExecuteCommand(ctx, c.Symbol, cmdLimitOrder, args, c.Session)
				if err != nil {
					return out, err
				}
				if len(res.Orders) == 0 || !res.Orders[0].Placed() {
					return out, fmt.Errorf("iceberg order %s: slice of %s not placed", algo.ID, parser.FormatNumber(amount))
				}
				active = res.Orders[0].Order
				out.Orders = append(out.Orders, res.Orders[0])
				delay = delay.Reset()
				suspended = false
			} else {
				if !suspended {
					logger.Info().
						Float64("price", current).
						Float64("limit", limit).
						Msg("Iceberg order suspended while price is the wrong side of the limit")
				}
				suspended = true
			}
		} else {
			status, err := e.adapter.Order(ctx, active)
			if err != nil {
				return out, err
			}

			switch {
			case status.IsFilled:
				logger.Info().Str("order_id", active.ID).Msg("Iceberg slice filled")
				left -= status.Executed
				active = nil
				delay = delay.Reset()
			case !status.IsOpen:
				logger.Info().Str("order_id", active.ID).Msg("Iceberg slice cancelled elsewhere, aborting")
				return out, nil
			default:
				slipped := current < stopPrice
				if isBuy {
					slipped = current > stopPrice
				}
				if slipped {
					logger.Info().Str("order_id", active.ID).Msg("Price slipped too far, replacing iceberg slice")
					if err := cancelActive(ctx); err != nil {
						return out, err
					}
					left -= status.Executed
					active = nil
					delay = delay.Reset()
				}
			}
		}

		if err := e.clock.Sleep(ctx, delay.Duration()); err != nil {
			if cerr := cancelActive(context.WithoutCancel(ctx)); cerr != nil {
				logger.Error().Err(cerr).Msg("Failed to cancel iceberg slice on shutdown")
			}
			return out, err
		}
		delay = delay.Idle()
	}

	logger.Info().Msg("Iceberg order complete")
	return out, nil
}

// sortBook orders resting orders by how soon the market reaches them:
// buys from the highest price, sells from the lowest.
func sortBook(orders []models.OrderResult) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Side == models.SideBuy {
			return orders[i].Price > orders[j].Price
		}
		return orders[i].Price < orders[j].Price
	})
}

// pingPongOrder(scaledOrder args..., pongDistance, endless) places a scaled
// order, then answers every fill with an order pongDistance away on the
// other side. Endless orders keep flipping until cancelled.
func (e *Exchange) pingPongOrder(ctx context.Context, c Call) (Result, error) {
	schema := append(scaledSchema("pingpong"),
		parser.Param{Name: "pongDistance", Default: "20"},
		parser.Param{Name: "endless", Default: "false"},
	)
	p := c.Args.Assign(schema)
	logger := e.commandLogger(c, cmdPingPongOrder)
	logger.Info().Interface("params", p).Msg("Ping pong order")

	distance := p.Float("pongDistance")
	endless := p.Bool("endless")
	tag := p.Get("tag")

	placed, err := e.placeScaled(ctx, c, p)
	if err != nil {
		return Result{}, err
	}

	out := Result{Orders: placed}
	var pings, pongs []models.OrderResult
	for _, o := range placed {
		if o.Placed() {
			pings = append(pings, o)
		}
	}
	if len(pings) == 0 {
		return out, nil
	}
	sortBook(pings)
	logger.Info().Int("pings", len(pings)).Msg("Ping pong orders placed, waiting for fills")

	algo := e.algos.Start(pings[0].Side, c.Session, tag)
	defer e.algos.End(algo)
	logger = logging.WithAlgo(logger, algo.ID)

	// flip checks the head of a queue; a fill is answered on the other side.
	flip := func(queue []models.OrderResult) (rest []models.OrderResult, answer *models.OrderResult, changed bool, err error) {
		sortBook(queue)
		status, err := e.adapter.Order(ctx, queue[0].Order)
		if err != nil {
			return queue, nil, false, err
		}
		switch {
		case status.IsFilled:
			logger.Info().Str("order_id", queue[0].Order.ID).Msg("Ping pong order filled")
			res, err := e.placeOpposite(ctx, c, tag, distance, queue[0])
			if err != nil {
				return queue, nil, false, err
			}
			return queue[1:], res, true, nil
		case !status.IsOpen:
			logger.Info().Str("order_id", queue[0].Order.ID).Msg("Ping pong order cancelled elsewhere, discarding")
			return queue[1:], nil, true, nil
		}
		return queue, nil, false, nil
	}

	delay := e.backoff.Start()
	for (endless && len(pongs) > 0) || len(pings) > 0 {
		if algo.Cancelled() {
			logger.Info().Msg("Ping pong order cancelled, stopping")
			if err := e.adapter.CancelOrders(ctx, handles(pings)); err != nil {
				return out, err
			}
			if err := e.adapter.CancelOrders(ctx, handles(pongs)); err != nil {
				return out, err
			}
			pings, pongs = nil, nil
			delay = delay.Reset()
		}

		if len(pings) > 0 {
			rest, answer, changed, err := flip(pings)
			if err != nil {
				return out, err
			}
			pings = rest
			if answer != nil {
				pongs = append(pongs, *answer)
				out.Orders = append(out.Orders, *answer)
			}
			if changed {
				delay = delay.Reset()
			}
		}

		if endless && len(pongs) > 0 {
			rest, answer, changed, err := flip(pongs)
			if err != nil {
				return out, err
			}
			pongs = rest
			if answer != nil {
				pings = append(pings, *answer)
				out.Orders = append(out.Orders, *answer)
			}
			if changed {
				delay = delay.Reset()
			}
		}

		if err := e.clock.Sleep(ctx, delay.Duration()); err != nil {
			resting := append(handles(pings), handles(pongs)...)
			if cerr := e.adapter.CancelOrders(context.WithoutCancel(ctx), resting); cerr != nil {
				logger.Error().Err(cerr).Msg("Failed to cancel ping pong orders on shutdown")
			}
			return out, err
		}
		delay = delay.Idle()
	}

	logger.Info().Msg("Ping pong order complete")
	return out, nil
}

// placeOpposite answers a filled order with one pongDistance away on the
// other side of the book. A nil result means nothing was placed.
func (e *Exchange) placeOpposite(ctx context.Context, c Call, tag string, distance float64, filled models.OrderResult) (*models.OrderResult, error) {
	price := filled.Price - distance
	if filled.Side == models.SideBuy {
		price = filled.Price + distance
	}

	args := parser.Named(
		"side", string(filled.Side.Opposite()),
		"offset", formatPrice(price),
		"amount", formatAmount(filled.Amount, filled.Units),
		"tag", tag,
	)
	res, err := e.ExecuteCommand(ctx, c.Symbol, cmdLimitOrder, args, c.Session)
	if err != nil {
		return nil, err
	}
	if len(res.Orders) == 0 || !res.Orders[0].Placed() {
		return nil, nil
	}
	return &res.Orders[0], nil
}

func handles(results []models.OrderResult) []*models.Order {
	orders := make([]*models.Order, 0, len(results))
	for _, r := range results {
		if r.Order != nil {
			orders = append(orders, r.Order)
		}
	}
	return orders
}
