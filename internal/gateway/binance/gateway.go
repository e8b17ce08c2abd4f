// Package binance implements the exchange surface against Binance USD-M
// futures via the go-binance SDK.
package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/logger"
	"tradeloop/internal/types"
)

const maxKlineLimit = 1500

// Config for the REST client. Market data works without credentials; account
// and order endpoints require them.
type Config struct {
	APIKey      string
	APISecret   string
	RESTBase    string
	HTTPTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}

// Gateway talks to Binance futures. Constraints are cached per symbol: the
// exchange-info document is large and changes rarely.
type Gateway struct {
	cfg    Config
	client *futures.Client

	mu          sync.Mutex
	constraints map[string]types.ExchangeConstraints
}

func New(cfg Config) *Gateway {
	final := cfg.withDefaults()
	client := futures.NewClient(final.APIKey, final.APISecret)
	if base := strings.TrimSpace(final.RESTBase); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Gateway{
		cfg:         final,
		client:      client,
		constraints: make(map[string]types.ExchangeConstraints),
	}
}

func (g *Gateway) Name() string { return "binance" }

func (g *Gateway) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	kls, err := g.client.NewKlinesService().
		Symbol(symbol).
		Interval(strings.ToLower(strings.TrimSpace(interval))).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s klines failed: %w", symbol, interval, err)
	}
	out := make([]exchange.Kline, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, exchange.Kline{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
		})
	}
	return out, nil
}

func (g *Gateway) GetTicker(ctx context.Context, symbol string) (exchange.Ticker, error) {
	prices, err := g.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return exchange.Ticker{}, err
	}
	if len(prices) == 0 || prices[0] == nil {
		return exchange.Ticker{}, fmt.Errorf("no price for %s", symbol)
	}
	return exchange.Ticker{Symbol: symbol, Last: parseFloat(prices[0].Price)}, nil
}

func (g *Gateway) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	rows, err := g.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || rows[0] == nil {
		return 0, fmt.Errorf("no premium index for %s", symbol)
	}
	return parseFloat(rows[0].LastFundingRate), nil
}

func (g *Gateway) GetConstraints(ctx context.Context, symbol string) (types.ExchangeConstraints, error) {
	g.mu.Lock()
	if cons, ok := g.constraints[symbol]; ok {
		g.mu.Unlock()
		return cons, nil
	}
	g.mu.Unlock()

	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return types.ExchangeConstraints{}, fmt.Errorf("fetching exchange info failed: %w", err)
	}
	var cons types.ExchangeConstraints
	found := false
	for i := range info.Symbols {
		s := &info.Symbols[i]
		if s.Symbol != symbol {
			continue
		}
		found = true
		if f := s.LotSizeFilter(); f != nil {
			cons.MinQty = parseFloat(f.MinQuantity)
			cons.QtyStep = parseFloat(f.StepSize)
		}
		if f := s.MinNotionalFilter(); f != nil {
			cons.MinNotional = parseFloat(f.Notional)
		}
		break
	}
	if !found {
		return types.ExchangeConstraints{}, fmt.Errorf("symbol %s not listed", symbol)
	}

	cons.MaxLeverage = g.maxLeverage(ctx, symbol)

	g.mu.Lock()
	g.constraints[symbol] = cons
	g.mu.Unlock()
	return cons, nil
}

// maxLeverage reads the first leverage bracket. The endpoint needs
// credentials; without them the constraint stays 0 and the engine's own
// max_leverage config is the only cap.
func (g *Gateway) maxLeverage(ctx context.Context, symbol string) int {
	if g.cfg.APIKey == "" {
		return 0
	}
	brackets, err := g.client.NewGetLeverageBracketService().Symbol(symbol).Do(ctx)
	if err != nil {
		logger.Warnf("fetching %s leverage brackets failed: %v", symbol, err)
		return 0
	}
	for _, b := range brackets {
		if b == nil || b.Symbol != symbol {
			continue
		}
		if len(b.Brackets) > 0 {
			return b.Brackets[0].InitialLeverage
		}
	}
	return 0
}

func (g *Gateway) GetAccount(ctx context.Context) (types.AccountState, error) {
	acct, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return types.AccountState{}, fmt.Errorf("fetching account failed: %w", err)
	}
	return types.AccountState{
		EquityUSDT: parseFloat(acct.TotalMarginBalance),
		FreeUSDT:   parseFloat(acct.AvailableBalance),
	}, nil
}

func (g *Gateway) PlaceBracketOrder(ctx context.Context, order exchange.BracketOrder) (exchange.OrderIDs, error) {
	if err := g.prepareSymbol(ctx, order.Symbol, order.Leverage); err != nil {
		return exchange.OrderIDs{}, err
	}

	entrySide, closeSide := futures.SideTypeBuy, futures.SideTypeSell
	if order.Direction == types.DirectionShort {
		entrySide, closeSide = futures.SideTypeSell, futures.SideTypeBuy
	}
	qty := formatFloat(order.Qty)

	entry, err := g.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(entrySide).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		NewClientOrderID(order.ClientOrderID).
		Do(ctx)
	if err != nil {
		return exchange.OrderIDs{}, fmt.Errorf("placing %s entry failed: %w", order.Symbol, err)
	}
	ids := exchange.OrderIDs{Entry: strconv.FormatInt(entry.OrderID, 10)}

	tp, err := g.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(closeSide).
		Type(futures.OrderTypeTakeProfitMarket).
		StopPrice(formatFloat(order.TakeProfit)).
		ClosePosition(true).
		WorkingType(futures.WorkingTypeMarkPrice).
		Do(ctx)
	if err != nil {
		return ids, fmt.Errorf("placing %s take-profit failed: %w", order.Symbol, err)
	}
	ids.TP = strconv.FormatInt(tp.OrderID, 10)

	sl, err := g.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(closeSide).
		Type(futures.OrderTypeStopMarket).
		StopPrice(formatFloat(order.StopLoss)).
		ClosePosition(true).
		WorkingType(futures.WorkingTypeMarkPrice).
		Do(ctx)
	if err != nil {
		return ids, fmt.Errorf("placing %s stop-loss failed: %w", order.Symbol, err)
	}
	ids.SL = strconv.FormatInt(sl.OrderID, 10)
	return ids, nil
}

// prepareSymbol sets isolated margin and the plan leverage before entry.
func (g *Gateway) prepareSymbol(ctx context.Context, symbol string, leverage int) error {
	err := g.client.NewChangeMarginTypeService().
		Symbol(symbol).
		MarginType(futures.MarginTypeIsolated).
		Do(ctx)
	if err != nil && !isNoChangeError(err) {
		return fmt.Errorf("setting %s isolated margin failed: %w", symbol, err)
	}
	if leverage > 0 {
		if _, err := g.client.NewChangeLeverageService().
			Symbol(symbol).
			Leverage(leverage).
			Do(ctx); err != nil {
			return fmt.Errorf("setting %s leverage %d failed: %w", symbol, leverage, err)
		}
	}
	return nil
}

// isNoChangeError matches Binance -4046 "No need to change margin type".
func isNoChangeError(err error) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr) && apiErr.Code == -4046
}

func (g *Gateway) PositionQty(ctx context.Context, symbol string) (float64, error) {
	positions, err := g.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range positions {
		if p == nil || p.Symbol != symbol {
			continue
		}
		return parseFloat(p.PositionAmt), nil
	}
	return 0, nil
}

func (g *Gateway) GetOrder(ctx context.Context, symbol, orderID string) (exchange.OrderState, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return exchange.OrderState{}, fmt.Errorf("invalid order id %q: %w", orderID, err)
	}
	order, err := g.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return exchange.OrderState{}, err
	}
	return exchange.OrderState{
		Status:       mapStatus(order.Status),
		AvgFillPrice: parseFloat(order.AvgPrice),
	}, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", orderID, err)
	}
	_, err = g.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	return err
}

func mapStatus(status futures.OrderStatusType) exchange.OrderStatus {
	switch status {
	case futures.OrderStatusTypeFilled:
		return exchange.OrderStatusFilled
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired, futures.OrderStatusTypeRejected:
		return exchange.OrderStatusCanceled
	default:
		return exchange.OrderStatusOpen
	}
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}

// formatFloat renders without scientific notation or float residue; Binance
// rejects quantities like 1.0000000000000002.
func formatFloat(v float64) string {
	return decimal.NewFromFloat(v).String()
}

var _ exchange.Exchange = (*Gateway)(nil)
