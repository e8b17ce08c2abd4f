// Package exchange defines the narrow capability surface the runtime
// consumes from a trading venue. The core never retries or reconnects here;
// any failure is reported upward as an execution failure for that cycle.
package exchange

import (
	"context"

	"tradeloop/internal/types"
)

// Kline is a single OHLCV bar. Times are unix milliseconds as delivered by
// the venue.
type Kline struct {
	OpenTime  int64
	CloseTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Ticker is the latest traded price for a symbol.
type Ticker struct {
	Symbol string
	Last   float64
}

// Direction of an order relative to the book.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// BracketOrder is a market entry plus TP/SL close orders, placed together.
type BracketOrder struct {
	Symbol        string
	Direction     types.Direction
	Qty           float64
	EntryPrice    float64
	TakeProfit    float64
	StopLoss      float64
	Leverage      int
	ClientOrderID string
}

// OrderIDs are the venue identifiers of a placed bracket.
type OrderIDs struct {
	Entry string
	TP    string
	SL    string
}

// OrderStatus as reported by the venue, already folded onto the three cases
// the loop distinguishes.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusCanceled OrderStatus = "canceled"
)

// OrderState is a point-in-time order lookup result.
type OrderState struct {
	Status       OrderStatus
	AvgFillPrice float64
}

// MarketData is the read-only slice of the venue used by the snapshot
// builder and the monitor step.
type MarketData interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
	GetFundingRate(ctx context.Context, symbol string) (float64, error)
}

// Exchange is the full execution capability.
type Exchange interface {
	MarketData

	Name() string
	GetConstraints(ctx context.Context, symbol string) (types.ExchangeConstraints, error)
	GetAccount(ctx context.Context) (types.AccountState, error)
	PlaceBracketOrder(ctx context.Context, order BracketOrder) (OrderIDs, error)
	PositionQty(ctx context.Context, symbol string) (float64, error)
	GetOrder(ctx context.Context, symbol, orderID string) (OrderState, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}
