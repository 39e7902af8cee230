package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instabot-trader/internal/broker/brokertest"
	apperrors "instabot-trader/internal/errors"
	"instabot-trader/internal/models"
	"instabot-trader/internal/parser"
	"instabot-trader/internal/session"
)

func amountsOf(calls []brokertest.Call) []float64 {
	out := make([]float64, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Amount)
	}
	return out
}

func pricesOf(calls []brokertest.Call) []float64 {
	out := make([]float64, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Price)
	}
	return out
}

func TestScaledOrder(t *testing.T) {
	f := newFixture(t, "bitfinex")

	res, err := f.run("scaledOrder", "from=@1000, to=@1100, orderCount=5, amount=1, side=buy")
	require.NoError(t, err)
	require.Len(t, res.Orders, 5)
	for _, o := range res.Orders {
		assert.True(t, o.Placed())
	}

	calls := f.mock.CallsTo("limitOrder")
	assert.Equal(t, []float64{1100, 1075, 1050, 1025, 1000}, pricesOf(calls), "buys run down from the top")
	for _, amount := range amountsOf(calls) {
		assert.InDelta(t, 0.2, amount, 1e-9)
	}
	assert.Len(t, f.ex.Sessions().Find("session-1"), 5)
}

func TestScaledOrderSellsRunUp(t *testing.T) {
	f := newFixture(t, "bitfinex")

	_, err := f.run("scaledOrder", "from=@1100, to=@1000, orderCount=3, amount=0.3, side=sell")
	require.NoError(t, err)
	assert.Equal(t, []float64{1000, 1050, 1100}, pricesOf(f.mock.CallsTo("limitOrder")))
}

func TestScaledOrderKeepsFailedSlots(t *testing.T) {
	f := newFixture(t, "bitfinex")
	f.mock.Fail("limitOrder", apperrors.ErrConnectionFailed)

	res, err := f.run("scaledOrder", "from=@1000, to=@1100, orderCount=4, amount=1")
	require.NoError(t, err)
	require.Len(t, res.Orders, 4)
	for _, o := range res.Orders {
		assert.False(t, o.Placed())
	}
	assert.Len(t, f.mock.CallsTo("limitOrder"), 4)
}

func TestScaledOrderZeroAmount(t *testing.T) {
	f := newFixture(t, "bitfinex")

	res, err := f.run("scaledOrder", "from=@1000, to=@1100, amount=0")
	require.NoError(t, err)
	assert.Empty(t, res.Orders)
	assert.Empty(t, f.mock.CallsTo("limitOrder"))
}

func TestScaledOrderClampsCount(t *testing.T) {
	f := newFixture(t, "bitfinex")

	_, err := f.run("scaledOrder", "from=@1000, to=@1100, orderCount=1, amount=0.5")
	require.NoError(t, err)
	assert.Len(t, f.mock.CallsTo("limitOrder"), 2)
}

func TestTwapOrder(t *testing.T) {
	f := newFixture(t, "bitfinex")

	res, err := f.run("twapOrder", "buy, 1, 4, 60s")
	require.NoError(t, err)
	assert.Len(t, res.Orders, 4)

	calls := f.mock.CallsTo("marketOrder")
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, amountsOf(calls))
	assert.Equal(t, []time.Duration{15 * time.Second, 15 * time.Second, 15 * time.Second}, f.clock.Sleeps())
	assert.Empty(t, f.ex.Algos().Active())
}

func TestSteppedMarketOrderIsTwap(t *testing.T) {
	f := newFixture(t, "bitfinex")

	_, err := f.run("steppedMarketOrder", "side=sell, amount=0.5, orderCount=2, duration=7s")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.25}, amountsOf(f.mock.CallsTo("marketOrder")))
	assert.Equal(t, []time.Duration{4 * time.Second}, f.clock.Sleeps())
}

func TestTwapOrderCancelled(t *testing.T) {
	f := newFixture(t, "bitfinex")
	f.mock.OnCall = func(c brokertest.Call) {
		if c.Name == "marketOrder" {
			f.ex.Algos().Cancel(session.WhichAll, "", "")
		}
	}

	res, err := f.run("twapOrder", "buy, 1, 4, 60s")
	assert.ErrorIs(t, err, apperrors.ErrAlgoCancelled)
	assert.Len(t, res.Orders, 1)
	assert.Len(t, f.mock.CallsTo("marketOrder"), 1)
	assert.Empty(t, f.ex.Algos().Active())
}

func TestTwapOrderStopsOnShutdown(t *testing.T) {
	f := newFixture(t, "bitfinex")
	ctx, cancel := context.WithCancel(context.Background())
	f.mock.OnCall = func(c brokertest.Call) {
		if c.Name == "marketOrder" {
			cancel()
		}
	}

	_, err := f.ex.ExecuteCommand(ctx, "BTCUSD", "twapOrder", parser.ParseArguments("buy, 1, 4, 60s"), "s")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, f.mock.CallsTo("marketOrder"), 1)
}

func TestIcebergOrderFills(t *testing.T) {
	f := newFixture(t, "bitfinex")
	f.mock.TickerValue = models.Ticker{Bid: 6000, Ask: 6010, LastPrice: 6005}
	f.mock.DefaultStatus = func(o *models.Order) models.OrderStatus {
		return brokertest.Filled(o.Amount)
	}

	res, err := f.run("icebergOrder", "side=buy, totalAmount=1, averageAmount=0.5, variance=1%, limitPrice=7000")
	require.NoError(t, err)

	calls := f.mock.CallsTo("limitOrder")
	require.NotEmpty(t, calls)
	assert.Len(t, res.Orders, len(calls))

	sum := 0.0
	for _, c := range calls {
		assert.Equal(t, 5940.0, c.Price)
		assert.LessOrEqual(t, c.Amount, 0.55)
		sum += c.Amount
	}
	assert.InDelta(t, 1.0, sum, 0.0011)
	assert.Len(t, f.ex.Sessions().FindTagged("session-1", "iceberg"), len(calls))
	assert.Empty(t, f.ex.Algos().Active())
}

func TestIcebergOrderWaitsForPrice(t *testing.T) {
	f := newFixture(t, "bitfinex")
	f.mock.TickerValue = models.Ticker{Bid: 6000, Ask: 6010, LastPrice: 6005}

	_, err := f.run("icebergOrder", "side=buy, totalAmount=1, averageAmount=0.5, limitPrice=5000, timeLimit=10s")
	require.NoError(t, err)

	assert.Empty(t, f.mock.CallsTo("limitOrder"))
	assert.Len(t, f.mock.CallsTo("ticker"), 5)
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second, 5 * time.Second,
	}, f.clock.Sleeps())
}

func TestIcebergOrderReplacesSlippedSlice(t *testing.T) {
	f := newFixture(t, "bitfinex")
	f.mock.TickerValue = models.Ticker{Bid: 6000, Ask: 6010, LastPrice: 6005}

	placed := 0
	f.mock.OnCall = func(c brokertest.Call) {
		if c.Name != "limitOrder" {
			return
		}
		placed++
		switch placed {
		case 1:
			f.mock.TickerValue = models.Ticker{Bid: 6100, Ask: 6110, LastPrice: 6105}
		case 2:
			f.ex.Algos().Cancel(session.WhichTagged, "iceberg", "session-1")
		}
	}

	_, err := f.run("icebergOrder", "side=buy, totalAmount=1, averageAmount=0.5, variance=1%, limitPrice=7000")
	require.NoError(t, err)

	cancels := f.mock.CallsTo("cancelOrders")
	require.Len(t, cancels, 2)
	assert.Equal(t, []string{"limit-1"}, cancels[0].Orders)
	assert.Equal(t, []string{"limit-2"}, cancels[1].Orders)
	assert.Equal(t, []float64{5940, 6039}, pricesOf(f.mock.CallsTo("limitOrder")))
}

func TestIcebergOrderAbortsWhenCancelledElsewhere(t *testing.T) {
	f := newFixture(t, "bitfinex")
	f.mock.TickerValue = models.Ticker{Bid: 6000, Ask: 6010, LastPrice: 6005}
	f.mock.Script("limit-1", brokertest.Cancelled(0.5, 0))

	_, err := f.run("icebergOrder", "side=buy, totalAmount=1, averageAmount=0.5, limitPrice=7000")
	require.NoError(t, err)
	assert.Len(t, f.mock.CallsTo("limitOrder"), 1)
	assert.Empty(t, f.mock.CallsTo("cancelOrders"))
}

func TestIcebergOrderIgnoresMissingLimit(t *testing.T) {
	f := newFixture(t, "bitfinex")

	res, err := f.run("icebergOrder", "side=buy, totalAmount=1, averageAmount=0.5")
	require.NoError(t, err)
	assert.Empty(t, res.Orders)
	assert.Empty(t, f.mock.Calls())
}

func TestPingPongOrder(t *testing.T) {
	f := newFixture(t, "bitfinex")
	f.mock.Script("limit-1", brokertest.Filled(0.1))
	f.mock.Script("limit-2", brokertest.Working(0.1, 0), brokertest.Filled(0.1))

	res, err := f.run("pingPongOrder", "from=@1000, to=@990, orderCount=2, amount=0.2, side=buy, pongDistance=20")
	require.NoError(t, err)
	assert.Len(t, res.Orders, 4)

	calls := f.mock.CallsTo("limitOrder")
	require.Len(t, calls, 4)
	assert.Equal(t, []float64{1000, 990, 1020, 1010}, pricesOf(calls))
	assert.Equal(t, models.SideSell, calls[2].Side)
	assert.Equal(t, models.SideSell, calls[3].Side)
	assert.InDelta(t, 0.1, calls[3].Amount, 1e-9)

	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 1 * time.Second}, f.clock.Sleeps())
	assert.Empty(t, f.ex.Algos().Active())
}

func TestPingPongOrderEndlessUntilCancelled(t *testing.T) {
	f := newFixture(t, "bitfinex")
	f.mock.Script("limit-1", brokertest.Filled(0.1))

	polls := 0
	f.mock.OnCall = func(c brokertest.Call) {
		if c.Name != "order" {
			return
		}
		polls++
		if polls == 3 {
			f.ex.Algos().Cancel(session.WhichBuy, "", "")
		}
	}

	_, err := f.run("pingPongOrder", "from=@1000, to=@990, orderCount=2, amount=0.2, side=buy, pongDistance=20, endless=true")
	require.NoError(t, err)

	cancels := f.mock.CallsTo("cancelOrders")
	require.Len(t, cancels, 2)
	assert.Equal(t, []string{"limit-2"}, cancels[0].Orders)
	assert.Equal(t, []string{"limit-3"}, cancels[1].Orders)
	assert.Empty(t, f.ex.Algos().Active())
}

func TestPingPongOrderCancelsRestingOrdersOnShutdown(t *testing.T) {
	f := newFixture(t, "bitfinex")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.mock.OnCall = func(c brokertest.Call) {
		if c.Name == "order" {
			cancel()
		}
	}

	args := parser.ParseArguments("from=@1000, to=@990, orderCount=2, amount=0.2, side=buy, pongDistance=20")
	_, err := f.ex.ExecuteCommand(ctx, "BTCUSD", "pingPongOrder", args, "s")
	assert.True(t, errors.Is(err, context.Canceled))

	cancels := f.mock.CallsTo("cancelOrders")
	require.Len(t, cancels, 1)
	assert.Equal(t, []string{"limit-1", "limit-2"}, cancels[0].Orders)
	assert.Empty(t, f.ex.Algos().Active())
}
