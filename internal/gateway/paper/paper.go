// Package paper is the simulated venue. Market data is delegated to a real
// source; account, orders and fills are simulated in memory. Entries fill
// instantly at the decision price; TP/SL fill when the live ticker touches
// their trigger, at the trigger price, with a taker-fee estimate on both
// legs.
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/logger"
	"tradeloop/internal/types"
)

// Config for the simulated account.
type Config struct {
	Equity      float64
	FeeRate     float64
	Constraints types.ExchangeConstraints
}

func (c Config) withDefaults() Config {
	if c.Equity <= 0 {
		c.Equity = 10000
	}
	if c.FeeRate <= 0 {
		c.FeeRate = 0.0006
	}
	if c.Constraints == (types.ExchangeConstraints{}) {
		c.Constraints = types.ExchangeConstraints{
			MinQty:      0.001,
			QtyStep:     0.001,
			MinNotional: 5,
			MaxLeverage: 125,
		}
	}
	return c
}

type bracket struct {
	order    exchange.BracketOrder
	entryID  string
	tpID     string
	slID     string
	open     bool
	exitSide string // "tp" or "sl" once resolved
	exitAt   float64
}

// Gateway simulates execution over real market data.
type Gateway struct {
	cfg  Config
	data exchange.MarketData

	mu       sync.Mutex
	equity   float64
	brackets map[string]*bracket // keyed by every order id of the bracket
}

func New(cfg Config, data exchange.MarketData) *Gateway {
	final := cfg.withDefaults()
	return &Gateway{
		cfg:      final,
		data:     data,
		equity:   final.Equity,
		brackets: make(map[string]*bracket),
	}
}

func (g *Gateway) Name() string { return "paper" }

func (g *Gateway) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error) {
	return g.data.GetKlines(ctx, symbol, interval, limit)
}

func (g *Gateway) GetTicker(ctx context.Context, symbol string) (exchange.Ticker, error) {
	return g.data.GetTicker(ctx, symbol)
}

func (g *Gateway) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	return g.data.GetFundingRate(ctx, symbol)
}

func (g *Gateway) GetConstraints(ctx context.Context, symbol string) (types.ExchangeConstraints, error) {
	return g.cfg.Constraints, nil
}

func (g *Gateway) GetAccount(ctx context.Context) (types.AccountState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return types.AccountState{EquityUSDT: g.equity, FreeUSDT: g.equity}, nil
}

func (g *Gateway) PlaceBracketOrder(ctx context.Context, order exchange.BracketOrder) (exchange.OrderIDs, error) {
	if order.Qty <= 0 || order.EntryPrice <= 0 {
		return exchange.OrderIDs{}, fmt.Errorf("invalid paper order qty=%v entry=%v", order.Qty, order.EntryPrice)
	}
	b := &bracket{
		order:   order,
		entryID: uuid.NewString(),
		tpID:    uuid.NewString(),
		slID:    uuid.NewString(),
		open:    true,
	}
	g.mu.Lock()
	g.brackets[b.entryID] = b
	g.brackets[b.tpID] = b
	g.brackets[b.slID] = b
	g.mu.Unlock()

	logger.Infof("paper entry filled: symbol=%s dir=%s qty=%v price=%v",
		order.Symbol, order.Direction, order.Qty, order.EntryPrice)
	return exchange.OrderIDs{Entry: b.entryID, TP: b.tpID, SL: b.slID}, nil
}

func (g *Gateway) PositionQty(ctx context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := map[*bracket]bool{}
	var qty float64
	for _, b := range g.brackets {
		if seen[b] || !b.open || b.order.Symbol != symbol {
			continue
		}
		seen[b] = true
		qty += b.order.Qty * b.order.Direction.Sign()
	}
	return qty, nil
}

// GetOrder resolves the simulated state of one leg. Looking up a TP or SL leg
// checks the current ticker against the trigger and settles the bracket on a
// touch.
func (g *Gateway) GetOrder(ctx context.Context, symbol, orderID string) (exchange.OrderState, error) {
	g.mu.Lock()
	b, ok := g.brackets[orderID]
	g.mu.Unlock()
	if !ok {
		return exchange.OrderState{}, fmt.Errorf("unknown paper order %s", orderID)
	}

	if orderID == b.entryID {
		return exchange.OrderState{Status: exchange.OrderStatusFilled, AvgFillPrice: b.order.EntryPrice}, nil
	}

	g.mu.Lock()
	if !b.open {
		state := g.legStateLocked(b, orderID)
		g.mu.Unlock()
		return state, nil
	}
	g.mu.Unlock()

	ticker, err := g.data.GetTicker(ctx, symbol)
	if err != nil {
		return exchange.OrderState{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if b.open {
		g.settleLocked(b, ticker.Last)
	}
	return g.legStateLocked(b, orderID), nil
}

func (g *Gateway) legStateLocked(b *bracket, orderID string) exchange.OrderState {
	if b.open {
		return exchange.OrderState{Status: exchange.OrderStatusOpen}
	}
	if b.exitSide == "canceled" {
		return exchange.OrderState{Status: exchange.OrderStatusCanceled}
	}
	filledID := b.tpID
	if b.exitSide == "sl" {
		filledID = b.slID
	}
	if orderID == filledID {
		return exchange.OrderState{Status: exchange.OrderStatusFilled, AvgFillPrice: b.exitAt}
	}
	return exchange.OrderState{Status: exchange.OrderStatusCanceled}
}

// settleLocked checks the trigger prices against the last trade and closes
// the bracket when one is touched. When a single tick crosses both triggers
// the stop wins: the conservative assumption.
func (g *Gateway) settleLocked(b *bracket, last float64) {
	if last <= 0 {
		return
	}
	o := b.order
	var hitTP, hitSL bool
	if o.Direction == types.DirectionLong {
		hitTP = o.TakeProfit > 0 && last >= o.TakeProfit
		hitSL = o.StopLoss > 0 && last <= o.StopLoss
	} else {
		hitTP = o.TakeProfit > 0 && last <= o.TakeProfit
		hitSL = o.StopLoss > 0 && last >= o.StopLoss
	}
	switch {
	case hitSL:
		b.exitSide, b.exitAt = "sl", o.StopLoss
	case hitTP:
		b.exitSide, b.exitAt = "tp", o.TakeProfit
	default:
		return
	}
	b.open = false

	fees := (o.EntryPrice + b.exitAt) * o.Qty * g.cfg.FeeRate
	pnl := (b.exitAt-o.EntryPrice)*o.Direction.Sign()*o.Qty - fees
	g.equity += pnl
	logger.Infof("paper %s filled: symbol=%s exit=%v pnl=%.4f equity=%.2f",
		b.exitSide, o.Symbol, b.exitAt, pnl, g.equity)
}

// CancelOrder cancels one leg; canceling either close leg while the bracket
// is open cancels the whole bracket (manual close path).
func (g *Gateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.brackets[orderID]
	if !ok {
		return fmt.Errorf("unknown paper order %s", orderID)
	}
	if b.open {
		b.open = false
		b.exitSide = "canceled"
	}
	return nil
}

// FeeFor estimates the taker fee of one fill leg.
func (g *Gateway) FeeFor(price, qty float64) float64 {
	return price * qty * g.cfg.FeeRate
}

var _ exchange.Exchange = (*Gateway)(nil)
