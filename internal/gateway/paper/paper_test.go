package paper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/types"
)

type stubMarket struct {
	last float64
}

func (m *stubMarket) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error) {
	return nil, nil
}

func (m *stubMarket) GetTicker(ctx context.Context, symbol string) (exchange.Ticker, error) {
	return exchange.Ticker{Symbol: symbol, Last: m.last}, nil
}

func (m *stubMarket) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	return 0, nil
}

func longBracket() exchange.BracketOrder {
	return exchange.BracketOrder{
		Symbol:     "BTCUSDT",
		Direction:  types.DirectionLong,
		Qty:        1,
		EntryPrice: 100,
		TakeProfit: 110,
		StopLoss:   95,
		Leverage:   3,
	}
}

func TestEntryFillsImmediately(t *testing.T) {
	market := &stubMarket{last: 100}
	g := New(Config{Equity: 1000, FeeRate: 0.001}, market)
	ctx := context.Background()

	ids, err := g.PlaceBracketOrder(ctx, longBracket())
	require.NoError(t, err)
	require.NotEmpty(t, ids.Entry)

	state, err := g.GetOrder(ctx, "BTCUSDT", ids.Entry)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatusFilled, state.Status)
	assert.Equal(t, 100.0, state.AvgFillPrice)

	qty, err := g.PositionQty(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1.0, qty)
}

func TestBracketStaysOpenBetweenTriggers(t *testing.T) {
	market := &stubMarket{last: 104}
	g := New(Config{Equity: 1000}, market)
	ctx := context.Background()

	ids, err := g.PlaceBracketOrder(ctx, longBracket())
	require.NoError(t, err)

	state, err := g.GetOrder(ctx, "BTCUSDT", ids.TP)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatusOpen, state.Status)
}

func TestTakeProfitFillCancelsStop(t *testing.T) {
	market := &stubMarket{last: 111}
	g := New(Config{Equity: 1000, FeeRate: 0.001}, market)
	ctx := context.Background()

	ids, err := g.PlaceBracketOrder(ctx, longBracket())
	require.NoError(t, err)

	tp, err := g.GetOrder(ctx, "BTCUSDT", ids.TP)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatusFilled, tp.Status)
	assert.Equal(t, 110.0, tp.AvgFillPrice)

	sl, err := g.GetOrder(ctx, "BTCUSDT", ids.SL)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatusCanceled, sl.Status)

	// +10 gross, minus fees on both legs: (100+110)*1*0.001 = 0.21.
	acct, err := g.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1009.79, acct.EquityUSDT, 1e-9)

	qty, err := g.PositionQty(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Zero(t, qty)
}

func TestStopLossForShort(t *testing.T) {
	market := &stubMarket{last: 106}
	g := New(Config{Equity: 1000, FeeRate: 0}, market)
	ctx := context.Background()

	order := longBracket()
	order.Direction = types.DirectionShort
	order.TakeProfit = 90
	order.StopLoss = 105
	ids, err := g.PlaceBracketOrder(ctx, order)
	require.NoError(t, err)

	sl, err := g.GetOrder(ctx, "BTCUSDT", ids.SL)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatusFilled, sl.Status)
	assert.Equal(t, 105.0, sl.AvgFillPrice)

	acct, err := g.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 995.0, acct.EquityUSDT, 1e-9)
}

func TestCancelClosesBracket(t *testing.T) {
	market := &stubMarket{last: 100}
	g := New(Config{Equity: 1000}, market)
	ctx := context.Background()

	ids, err := g.PlaceBracketOrder(ctx, longBracket())
	require.NoError(t, err)
	require.NoError(t, g.CancelOrder(ctx, "BTCUSDT", ids.TP))

	state, err := g.GetOrder(ctx, "BTCUSDT", ids.SL)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatusCanceled, state.Status)

	qty, err := g.PositionQty(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Zero(t, qty)
}
