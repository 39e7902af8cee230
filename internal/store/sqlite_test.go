package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instabot-trader/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	records := []models.OrderRecord{
		{Exchange: "bitfinex", Symbol: "BTCUSD", Session: "s1", Tag: "grid", OrderID: "1", Kind: models.OrderKindLimit, Side: models.SideBuy, Amount: 0.2, Price: 6000, PlacedAt: base},
		{Exchange: "bitfinex", Symbol: "BTCUSD", Session: "s1", Tag: "grid", OrderID: "2", Kind: models.OrderKindLimit, Side: models.SideBuy, Amount: 0.3, Price: 5900, PlacedAt: base.Add(time.Minute)},
		{Exchange: "bitfinex", Symbol: "ETHUSD", Session: "s2", OrderID: "3", Kind: models.OrderKindMarket, Side: models.SideSell, Amount: 2, PlacedAt: base.Add(2 * time.Minute)},
		{Exchange: "deribit", Symbol: "BTC-PERPETUAL", Session: "s3", OrderID: "4", Kind: models.OrderKindStop, Side: models.SideSell, Amount: 10, Price: 5500, PlacedAt: base.Add(3 * time.Minute)},
	}
	for _, r := range records {
		require.NoError(t, s.Append(ctx, r))
	}
}

func orderIDs(records []models.OrderRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.OrderID
	}
	return ids
}

func TestAppendAndReadBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := models.OrderRecord{
		Exchange: "bitfinex", Symbol: "BTCUSD", Session: "s1", Tag: "t",
		OrderID: "limit-1", Kind: models.OrderKindLimit, Side: models.SideBuy,
		Amount: 0.25, Price: 6123.45, PlacedAt: base,
	}
	require.NoError(t, s.Append(ctx, rec))

	got, err := s.Orders(ctx, OrderFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.True(t, rec.PlacedAt.Equal(got[0].PlacedAt))
	got[0].PlacedAt = rec.PlacedAt
	assert.Equal(t, rec, got[0])
}

func TestOrdersFilters(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter OrderFilter
		want   []string
	}{
		{name: "all newest first", filter: OrderFilter{}, want: []string{"4", "3", "2", "1"}},
		{name: "exchange", filter: OrderFilter{Exchange: "Bitfinex"}, want: []string{"3", "2", "1"}},
		{name: "symbol", filter: OrderFilter{Symbol: "ETHUSD"}, want: []string{"3"}},
		{name: "session", filter: OrderFilter{Session: "s1"}, want: []string{"2", "1"}},
		{name: "tag", filter: OrderFilter{Tag: "grid"}, want: []string{"2", "1"}},
		{name: "side", filter: OrderFilter{Side: models.SideSell}, want: []string{"4", "3"}},
		{name: "since", filter: OrderFilter{Since: base.Add(2 * time.Minute)}, want: []string{"4", "3"}},
		{name: "until", filter: OrderFilter{Until: base.Add(time.Minute)}, want: []string{"2", "1"}},
		{name: "limit", filter: OrderFilter{Limit: 2}, want: []string{"4", "3"}},
		{name: "no match", filter: OrderFilter{Exchange: "coinbase"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Orders(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, orderIDs(got))
		})
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	stats, err := s.Stats(context.Background(), OrderFilter{})
	require.NoError(t, err)
	require.Len(t, stats, 3)

	assert.Equal(t, "bitfinex", stats[0].Exchange)
	assert.Equal(t, models.SideBuy, stats[0].Side)
	assert.Equal(t, 2, stats[0].Orders)
	assert.InDelta(t, 0.5, stats[0].TotalAmount, 1e-9)
	assert.True(t, base.Equal(stats[0].FirstAt), "first at %v", stats[0].FirstAt)
	assert.True(t, base.Add(time.Minute).Equal(stats[0].LastAt), "last at %v", stats[0].LastAt)

	assert.Equal(t, "deribit", stats[2].Exchange)
	assert.Equal(t, 1, stats[2].Orders)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestReopenKeepsOrders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, models.OrderRecord{Exchange: "bitfinex", Symbol: "BTCUSD", Session: "s", OrderID: "x", Kind: models.OrderKindMarket, Side: models.SideBuy, Amount: 1, PlacedAt: base}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Orders(ctx, OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, orderIDs(got))
}
