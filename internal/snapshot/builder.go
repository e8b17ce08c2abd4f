package snapshot

import (
	"context"
	"fmt"
	"time"

	"tradeloop/internal/feature"
	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/logger"

	"github.com/google/uuid"
	talib "github.com/markcheno/go-talib"
)

// BuilderConfig mirrors the observation tunables from configuration.
type BuilderConfig struct {
	ExchangeName string
	LTF          string
	HTFList      []string
	ATRPeriod    int
	MAFast       int
	MASlow       int
}

func (c BuilderConfig) withDefaults() BuilderConfig {
	if c.LTF == "" {
		c.LTF = "5m"
	}
	if len(c.HTFList) == 0 {
		c.HTFList = []string{"15m", "1h", "4h"}
	}
	if c.ATRPeriod <= 0 {
		c.ATRPeriod = 14
	}
	if c.MAFast <= 0 {
		c.MAFast = 20
	}
	if c.MASlow <= 0 {
		c.MASlow = 50
	}
	return c
}

// Builder derives snapshots from venue market data. The indicator math runs
// on closed bars only; the forming bar is dropped before any computation.
type Builder struct {
	cfg    BuilderConfig
	source exchange.MarketData
	mapper *feature.Mapper
}

func NewBuilder(cfg BuilderConfig, source exchange.MarketData, mapper *feature.Mapper) *Builder {
	return &Builder{cfg: cfg.withDefaults(), source: source, mapper: mapper}
}

// Build fetches klines and funding for symbol and freezes them into a new
// snapshot, including the mapped feature vector.
func (b *Builder) Build(ctx context.Context, symbol string) (*Snapshot, error) {
	limit := b.cfg.MASlow + b.cfg.ATRPeriod + 10
	if limit < 100 {
		limit = 100
	}
	ltfKlines, err := b.source.GetKlines(ctx, symbol, b.cfg.LTF, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching %s klines failed: %w", b.cfg.LTF, err)
	}
	ltfKlines = dropFormingBar(ltfKlines, time.Now().UnixMilli())
	if len(ltfKlines) <= b.cfg.MASlow {
		return nil, fmt.Errorf("not enough %s history for %s: got %d bars", b.cfg.LTF, symbol, len(ltfKlines))
	}

	last := ltfKlines[len(ltfKlines)-1]
	block := b.priceBlock(ltfKlines)
	now := time.Now().Unix()
	snapTime := last.CloseTime / 1000

	htf := make(map[string]HTF, len(b.cfg.HTFList))
	for _, tf := range b.cfg.HTFList {
		bars, err := b.source.GetKlines(ctx, symbol, tf, limit)
		if err != nil {
			// HTF context is advisory; a gap is tolerable, a missing LTF is not.
			logger.Warnf("htf %s klines failed for %s: %v", tf, symbol, err)
			continue
		}
		bars = dropFormingBar(bars, time.Now().UnixMilli())
		if len(bars) <= b.cfg.MASlow {
			continue
		}
		hb := b.priceBlock(bars)
		htf[tf] = HTF{Trend: trendOf(hb), ATRPct: hb.ATRPct, MAFast: hb.MAFast, MASlow: hb.MASlow}
	}

	funding, err := b.source.GetFundingRate(ctx, symbol)
	if err != nil {
		logger.Warnf("funding rate fetch failed for %s: %v", symbol, err)
		funding = 0
	}

	snap := &Snapshot{
		SchemaVersion: SchemaVersion,
		ID:            uuid.NewString(),
		Symbol:        symbol,
		Time:          snapTime,
		ObservedAt:    now,
		LTF: LTF{
			TF:    b.cfg.LTF,
			Time:  snapTime,
			Price: block,
			Trend: trendOf(block),
		},
		HTF: htf,
		Context: Context{
			Exchange:    b.cfg.ExchangeName,
			Session:     sessionOf(snapTime),
			FundingRate: funding,
		},
	}

	vec, err := b.mapper.Map(snap.JSON())
	if err != nil {
		return nil, fmt.Errorf("feature mapping failed: %w", err)
	}
	snap.Features = vec.Features
	snap.FeatureVersion = vec.Version
	snap.FeatureHash = vec.Hash
	return snap, nil
}

func (b *Builder) priceBlock(bars []exchange.Kline) PriceBlock {
	n := len(bars)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, k := range bars {
		highs[i] = k.High
		lows[i] = k.Low
		closes[i] = k.Close
	}
	atr := talib.Atr(highs, lows, closes, b.cfg.ATRPeriod)
	maFast := talib.Sma(closes, b.cfg.MAFast)
	maSlow := talib.Sma(closes, b.cfg.MASlow)

	last := bars[n-1]
	block := PriceBlock{
		Open:   last.Open,
		High:   last.High,
		Low:    last.Low,
		Close:  last.Close,
		Volume: last.Volume,
		MAFast: maFast[n-1],
		MASlow: maSlow[n-1],
	}
	if last.Close > 0 {
		block.ATRPct = atr[n-1] / last.Close
		block.RangePct = (last.High - last.Low) / last.Close
	}
	return block
}

// trendOf classifies by MA cross with a small dead band so a hair above the
// slow MA does not flip the trend every bar.
func trendOf(p PriceBlock) string {
	if p.MAFast == 0 || p.MASlow == 0 {
		return "unknown"
	}
	spread := (p.MAFast - p.MASlow) / p.MASlow
	switch {
	case spread > 0.0005:
		return "up"
	case spread < -0.0005:
		return "down"
	default:
		return "flat"
	}
}

// sessionOf buckets a UTC timestamp into the rough trading session.
func sessionOf(tsUTC int64) string {
	h := time.Unix(tsUTC, 0).UTC().Hour()
	switch {
	case h < 8:
		return "asia"
	case h < 16:
		return "london"
	default:
		return "ny"
	}
}

// dropFormingBar removes the last kline when its close time is still in the
// future, so indicators never see a partially formed bar.
func dropFormingBar(bars []exchange.Kline, nowMillis int64) []exchange.Kline {
	if n := len(bars); n > 0 && bars[n-1].CloseTime > nowMillis {
		return bars[:n-1]
	}
	return bars
}
