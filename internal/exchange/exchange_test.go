package exchange

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instabot-trader/internal/broker/brokertest"
	apperrors "instabot-trader/internal/errors"
	"instabot-trader/internal/models"
	"instabot-trader/internal/parser"
	"instabot-trader/internal/resilience"
	"instabot-trader/internal/session"
)

type sentMessage struct {
	Msg  string
	Opts models.NotifyOptions
	Who  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *recordingNotifier) Send(ctx context.Context, msg string, opts models.NotifyOptions, who string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{Msg: msg, Opts: opts, Who: who})
	return nil
}

type recordingJournal struct {
	records []models.OrderRecord
}

func (j *recordingJournal) Append(ctx context.Context, rec models.OrderRecord) error {
	j.records = append(j.records, rec)
	return nil
}

type fixture struct {
	ex       *Exchange
	mock     *brokertest.Mock
	clock    *resilience.ManualClock
	notifier *recordingNotifier
	journal  *recordingJournal
}

func newFixture(t *testing.T, name string, macros ...Macro) *fixture {
	t.Helper()

	f := &fixture{
		mock:     brokertest.New(),
		clock:    resilience.NewManualClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		notifier: &recordingNotifier{},
		journal:  &recordingJournal{},
	}
	f.mock.TickerValue = models.Ticker{Bid: 6540, Ask: 6560, LastPrice: 6545}
	f.mock.Wallet = []models.Balance{
		{Type: "exchange", Currency: "btc", Amount: 1.5, Available: 1.5},
		{Type: "exchange", Currency: "usd", Amount: 12000, Available: 12000},
	}

	ex, err := New(name, f.mock, Options{
		Macros:   macros,
		Notifier: f.notifier,
		Journal:  f.journal,
		Clock:    f.clock,
		Rand:     rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)
	f.ex = ex
	return f
}

func (f *fixture) run(name, args string) (Result, error) {
	return f.ex.ExecuteCommand(context.Background(), "BTCUSD", name, parser.ParseArguments(args), "session-1")
}

func TestNewRejectsUnknownExchange(t *testing.T) {
	_, err := New("kraken", brokertest.New(), Options{})
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedExchange)
}

func TestOffsetToAbsolutePrice(t *testing.T) {
	tests := []struct {
		name   string
		side   models.Side
		offset string
		want   float64
	}{
		{name: "below bid", side: models.SideBuy, offset: "150", want: 6440},
		{name: "above ask", side: models.SideSell, offset: "150", want: 6760},
		{name: "percent below bid", side: models.SideBuy, offset: "10%", want: 5931},
		{name: "zero offset sells at ask", side: models.SideSell, offset: "0", want: 6610},
		{name: "absolute", side: models.SideBuy, offset: "@1234.56", want: 1234.56},
		{name: "absolute whole", side: models.SideBuy, offset: "@6250", want: 6250},
		{name: "absolute padded", side: models.SideBuy, offset: "  @6250  ", want: 6250},
		{name: "absolute rounds down", side: models.SideBuy, offset: "@62.12345678", want: 62.1234},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "bitfinex")
			f.mock.TickerValue = models.Ticker{Bid: 6590, Ask: 6610, LastPrice: 6595}

			got, err := f.ex.OffsetToAbsolutePrice(context.Background(), "BTCUSD", "s", tt.side, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTickerIsCachedPerSession(t *testing.T) {
	f := newFixture(t, "bitfinex")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.ex.Ticker(ctx, "BTCUSD", "a")
		require.NoError(t, err)
	}
	_, err := f.ex.Ticker(ctx, "BTCUSD", "b")
	require.NoError(t, err)
	assert.Len(t, f.mock.CallsTo("ticker"), 2)

	f.clock.Advance(31 * time.Second)
	_, err = f.ex.Ticker(ctx, "BTCUSD", "a")
	require.NoError(t, err)
	assert.Len(t, f.mock.CallsTo("ticker"), 3)
}

func TestPositionToAmountSpot(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		amount   string
		wantSide models.Side
		wantQty  models.Quantity
	}{
		{name: "no target", target: "", amount: "1", wantSide: models.SideBuy, wantQty: models.Quantity{Value: 1}},
		{name: "no target keeps units", target: "", amount: "25%", wantSide: models.SideBuy, wantQty: models.Quantity{Value: 25, Units: "%"}},
		{name: "bigger target buys", target: "5", amount: "1", wantSide: models.SideBuy, wantQty: models.Quantity{Value: 4}},
		{name: "smaller target sells", target: "0", amount: "1", wantSide: models.SideSell, wantQty: models.Quantity{Value: 1}},
		{name: "same target is buy nothing", target: "1", amount: "1", wantSide: models.SideBuy, wantQty: models.Quantity{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "bitfinex")
			f.mock.Wallet = []models.Balance{{Type: "exchange", Currency: "btc", Amount: 1, Available: 1}}

			side, qty, err := f.ex.PositionToAmount(context.Background(), "BTCUSD", tt.target, models.SideBuy, tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSide, side)
			assert.Equal(t, tt.wantQty, qty)
		})
	}
}

func TestPositionToAmountContracts(t *testing.T) {
	f := newFixture(t, "deribit")
	f.mock.PositionSet = []models.Position{
		{Instrument: "ETH-PERPETUAL", Size: 50},
		{Instrument: "BTC-PERPETUAL", Size: 30},
	}
	ctx := context.Background()

	side, qty, err := f.ex.PositionToAmount(ctx, "btc-perpetual", "10", models.SideBuy, "1")
	require.NoError(t, err)
	assert.Equal(t, models.SideSell, side)
	assert.Equal(t, models.Quantity{Value: 20}, qty)

	side, qty, err = f.ex.PositionToAmount(ctx, "BTC-PERPETUAL", "", models.SideSell, "5%")
	require.NoError(t, err)
	assert.Equal(t, models.SideSell, side)
	assert.Equal(t, models.Quantity{Value: 5}, qty, "contract amounts drop their units")
}

func TestOrderSizeFromAmountContracts(t *testing.T) {
	f := newFixture(t, "deribit")
	ctx := context.Background()

	_, err := f.ex.OrderSizeFromAmount(ctx, "BTC-PERPETUAL", models.SideBuy, 6000, "5%")
	assert.ErrorIs(t, err, apperrors.ErrUnitsNotSupported)

	size, err := f.ex.OrderSizeFromAmount(ctx, "BTC-PERPETUAL", models.SideBuy, 6000, "3.7")
	require.NoError(t, err)
	assert.Equal(t, models.SizeResult{OrderSize: 3}, size)
	assert.Empty(t, f.mock.CallsTo("walletBalances"))
}

func TestLimitOrderZeroSizeNeverCallsAdapter(t *testing.T) {
	f := newFixture(t, "bitfinex")

	res, err := f.run("limitOrder", "buy, 100, 0")
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	assert.False(t, res.Orders[0].Placed())
	assert.Empty(t, f.mock.Calls())
}

func TestLimitOrderRejectsBadSide(t *testing.T) {
	f := newFixture(t, "bitfinex")

	_, err := f.run("limitOrder", "side=wrong")
	assert.ErrorIs(t, err, apperrors.ErrInvalidSide)
	assert.Empty(t, f.mock.Calls())
}

func TestLimitOrderPlacesWithFunds(t *testing.T) {
	f := newFixture(t, "bitfinex")

	res, err := f.run("limitOrder", "side=buy, offset=100, amount=1, tag=first")
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)

	got := res.Orders[0]
	assert.True(t, got.Placed())
	assert.Equal(t, 6440.0, got.Price)
	assert.Equal(t, 1.0, got.Amount)
	assert.Equal(t, models.SideBuy, got.Side)

	want := []brokertest.Call{{Name: "limitOrder", Symbol: "BTCUSD", Side: models.SideBuy, Amount: 1, Price: 6440}}
	if diff := cmp.Diff(want, f.mock.CallsTo("limitOrder")); diff != "" {
		t.Errorf("limitOrder calls mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []*models.Order{got.Order}, f.ex.Sessions().FindTagged("session-1", "first"))
	require.Len(t, f.journal.records, 1)
	assert.Equal(t, "first", f.journal.records[0].Tag)
	assert.Equal(t, "bitfinex", f.journal.records[0].Exchange)
}

func TestLimitOrderWithoutFunds(t *testing.T) {
	f := newFixture(t, "bitfinex")
	f.mock.Wallet = nil

	_, err := f.run("limitOrder", "buy, 100, 1")
	assert.ErrorIs(t, err, apperrors.ErrZeroOrderSize)
	assert.Empty(t, f.mock.CallsTo("limitOrder"))
}

func TestMarketOrderIsNotAddedToSession(t *testing.T) {
	f := newFixture(t, "bitfinex")

	res, err := f.run("marketOrder", "sell, 0.5")
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	assert.Equal(t, 6560.0, res.Orders[0].Price)

	calls := f.mock.CallsTo("marketOrder")
	require.Len(t, calls, 1)
	assert.Equal(t, 0.5, calls[0].Amount)
	assert.Equal(t, 0, f.ex.Sessions().Len())
	assert.Len(t, f.journal.records, 1)
}

func TestStopMarketOrderPricesFromTheOtherSide(t *testing.T) {
	f := newFixture(t, "bitfinex")

	_, err := f.run("stopMarketOrder", "side=sell, offset=100, amount=0.5, trigger=bogus")
	require.NoError(t, err)

	calls := f.mock.CallsTo("stopOrder")
	require.Len(t, calls, 1)
	assert.Equal(t, 6440.0, calls[0].Price, "sell stops sit below the bid")
	assert.Equal(t, models.TriggerMark, calls[0].Trigger)
	assert.Equal(t, 1, f.ex.Sessions().Len())

	_, err = f.run("stopMarketOrder", "sell, 100, 0")
	assert.ErrorIs(t, err, apperrors.ErrZeroOrderSize)
}

func TestCancelOrders(t *testing.T) {
	ctx := context.Background()

	t.Run("tagged", func(t *testing.T) {
		f := newFixture(t, "bitfinex")
		_, err := f.run("limitOrder", "buy, @6000, 0.1, a")
		require.NoError(t, err)
		_, err = f.run("limitOrder", "buy, @5900, 0.1, b")
		require.NoError(t, err)

		_, err = f.run("cancelOrders", "tagged, a")
		require.NoError(t, err)
		calls := f.mock.CallsTo("cancelOrders")
		require.Len(t, calls, 1)
		assert.Equal(t, []string{"limit-1"}, calls[0].Orders)
	})

	t.Run("session", func(t *testing.T) {
		f := newFixture(t, "bitfinex")
		_, err := f.run("limitOrder", "buy, @6000, 0.1, a")
		require.NoError(t, err)
		_, err = f.ex.ExecuteCommand(ctx, "BTCUSD", "limitOrder", parser.ParseArguments("buy, @5900, 0.1"), "other")
		require.NoError(t, err)

		_, err = f.run("cancelOrders", "")
		require.NoError(t, err)
		calls := f.mock.CallsTo("cancelOrders")
		require.Len(t, calls, 1)
		assert.Equal(t, []string{"limit-1"}, calls[0].Orders)
	})

	t.Run("all also stops algos", func(t *testing.T) {
		f := newFixture(t, "bitfinex")
		f.mock.Open = []*models.Order{{ID: "x", Side: models.SideBuy}, {ID: "y", Side: models.SideSell}}
		algo := f.ex.Algos().Start(models.SideBuy, "elsewhere", "twap")

		_, err := f.run("cancelOrders", "which=all")
		require.NoError(t, err)
		assert.True(t, algo.Cancelled())

		active := f.mock.CallsTo("activeOrders")
		require.Len(t, active, 1)
		assert.Equal(t, "all", active[0].Which)
		assert.Equal(t, []string{"x", "y"}, f.mock.CallsTo("cancelOrders")[0].Orders)
	})

	t.Run("sell side only", func(t *testing.T) {
		f := newFixture(t, "bitfinex")
		f.mock.Open = []*models.Order{{ID: "x", Side: models.SideBuy}, {ID: "y", Side: models.SideSell}}
		buyAlgo := f.ex.Algos().Start(models.SideBuy, "session-1", "")

		_, err := f.run("cancelOrders", "sell")
		require.NoError(t, err)
		assert.False(t, buyAlgo.Cancelled())
		assert.Equal(t, []string{"y"}, f.mock.CallsTo("cancelOrders")[0].Orders)
	})
}

func TestExecuteCommandLookup(t *testing.T) {
	f := newFixture(t, "bitfinex")

	_, err := f.run("explode", "")
	assert.ErrorIs(t, err, apperrors.ErrUnknownCommand)

	_, err = f.run("LIMITORDER", "buy, @100, 0.1")
	require.NoError(t, err)
	assert.Len(t, f.mock.CallsTo("limitOrder"), 1)
}

func TestCoinbaseSplitsDashedSymbols(t *testing.T) {
	f := newFixture(t, "coinbase")
	f.mock.Wallet = []models.Balance{
		{Type: "exchange", Currency: "eth", Amount: 3, Available: 3},
		{Type: "exchange", Currency: "usd", Amount: 100, Available: 100},
	}

	_, err := f.ex.ExecuteCommand(context.Background(), "ETH-USD", "limitOrder", parser.ParseArguments("sell, @2000, 5"), "s")
	require.NoError(t, err)

	calls := f.mock.CallsTo("limitOrder")
	require.Len(t, calls, 1)
	assert.Equal(t, 3.0, calls[0].Amount, "capped at the eth available")
}

func TestMacros(t *testing.T) {
	macros := []Macro{
		{Name: "double", Actions: "limitOrder(buy, @100, 0.1); limitOrder(buy, @99, 0.1)"},
		{Name: "broken", Actions: "limitOrder(side=bogus) limitOrder(buy, @98, 0.1)"},
		{Name: "wait", Actions: "limitOrder(buy, @1, 1)"},
		{Name: "loop", Actions: "loop()"},
	}

	t.Run("runs every action", func(t *testing.T) {
		f := newFixture(t, "bitfinex", macros...)
		res, err := f.run("Double", "")
		require.NoError(t, err)
		assert.Len(t, res.Orders, 2)
		assert.Len(t, f.mock.CallsTo("limitOrder"), 2)
	})

	t.Run("first failure aborts", func(t *testing.T) {
		f := newFixture(t, "bitfinex", macros...)
		_, err := f.run("broken", "")
		assert.ErrorIs(t, err, apperrors.ErrInvalidSide)
		assert.Empty(t, f.mock.CallsTo("limitOrder"))
	})

	t.Run("cannot shadow a command", func(t *testing.T) {
		f := newFixture(t, "bitfinex", macros...)
		_, err := f.run("wait", "3s")
		require.NoError(t, err)
		assert.Empty(t, f.mock.CallsTo("limitOrder"))
		assert.Equal(t, []time.Duration{3 * time.Second}, f.clock.Sleeps())
	})

	t.Run("missing macro", func(t *testing.T) {
		f := newFixture(t, "bitfinex", macros...)
		_, err := f.run("macro", "func=nothing")
		assert.ErrorIs(t, err, apperrors.ErrMacroNotFound)
	})

	t.Run("recursion is bounded", func(t *testing.T) {
		f := newFixture(t, "bitfinex", macros...)
		_, err := f.run("loop", "")
		assert.Error(t, err)
	})

	t.Run("listed with the commands", func(t *testing.T) {
		f := newFixture(t, "bitfinex", macros...)
		assert.Contains(t, f.ex.Commands(), "double")
		assert.Contains(t, f.ex.Commands(), "limitOrder")
	})
}

func TestExecuteActionsContinuesPastFailures(t *testing.T) {
	f := newFixture(t, "bitfinex")

	err := f.ex.ExecuteActions(context.Background(), "BTCUSD", "s", parser.ParseActions("limitOrder(side=bogus); nope(); limitOrder(buy, @100, 0.1)"))
	require.Error(t, err)

	var cmdErr *apperrors.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "limitOrder", cmdErr.Command)
	assert.ErrorIs(t, err, apperrors.ErrUnknownCommand)
	assert.Len(t, f.mock.CallsTo("limitOrder"), 1)
}

func TestWait(t *testing.T) {
	f := newFixture(t, "bitfinex")

	for _, arg := range []string{"5m", "", "nonsense"} {
		_, err := f.run("wait", arg)
		require.NoError(t, err)
	}
	assert.Equal(t, []time.Duration{5 * time.Minute, 10 * time.Second, 10 * time.Second}, f.clock.Sleeps())
}

func TestNotify(t *testing.T) {
	f := newFixture(t, "bitfinex")

	_, err := f.run("notify", `msg="Filled, finally", who=Slack`)
	require.NoError(t, err)
	_, err = f.run("notify", "")
	require.NoError(t, err)

	want := []sentMessage{
		{
			Msg:  "Filled, finally",
			Opts: models.NotifyOptions{Color: "good", Text: ":moneybag:", Footer: "from instabot trader - not financial advice."},
			Who:  "slack",
		},
		{
			Msg:  "Message from Instabot Trader",
			Opts: models.NotifyOptions{Color: "good", Text: ":moneybag:", Footer: "from instabot trader - not financial advice."},
			Who:  "default",
		},
	}
	if diff := cmp.Diff(want, f.notifier.sent); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestBalance(t *testing.T) {
	t.Run("spot", func(t *testing.T) {
		f := newFixture(t, "bitfinex")
		f.mock.TickerValue = models.Ticker{Bid: 5990, Ask: 6010, LastPrice: 6000}

		res, err := f.run("balance", "")
		require.NoError(t, err)
		want := "bitfinex: Balances - 1.5 btc & 12000 usd. Total Value - 3.5 btc (21000 usd)."
		assert.Equal(t, want, res.Message)
		require.Len(t, f.notifier.sent, 1)
		assert.Equal(t, want, f.notifier.sent[0].Msg)
	})

	t.Run("contracts", func(t *testing.T) {
		f := newFixture(t, "deribit")
		f.mock.AccountInfo = models.Account{Equity: 1.23456, AvailableFunds: 1, Balance: 1.2, PNL: 0.03456}

		res, err := f.ex.ExecuteCommand(context.Background(), "BTC-PERPETUAL", "balance", nil, "s")
		require.NoError(t, err)
		assert.Equal(t, "Deribit: Equity: 1.2345 btc, available: 1 btc, balance: 1.2 btc, pnl: 0.0345 btc.", res.Message)
	})
}

func TestDeribitOrdersWholeContracts(t *testing.T) {
	f := newFixture(t, "deribit")

	_, err := f.ex.ExecuteCommand(context.Background(), "BTC-PERPETUAL", "limitOrder", parser.ParseArguments("buy, @6000, 2.9"), "s")
	require.NoError(t, err)

	calls := f.mock.CallsTo("limitOrder")
	require.Len(t, calls, 1)
	assert.Equal(t, 2.0, calls[0].Amount, "whole contracts only")
}

func TestCancelWhichDefaultsToSession(t *testing.T) {
	assert.Equal(t, session.WhichSession, session.ParseWhich("whatever"))
}
