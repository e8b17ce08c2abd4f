// Package app wires the runtime together and drives the decision loop: every
// cycle it observes, decides, sizes, executes and records, then monitors the
// open positions until their brackets resolve.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradeloop/internal/config"
	"tradeloop/internal/feature"
	"tradeloop/internal/gateway/binance"
	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/gateway/notifier"
	"tradeloop/internal/gateway/paper"
	"tradeloop/internal/logger"
	"tradeloop/internal/policy"
	"tradeloop/internal/risk"
	"tradeloop/internal/snapshot"
	"tradeloop/internal/store"
	"tradeloop/internal/trade"
)

// App is the assembled runtime.
type App struct {
	cfg     *config.Config
	ex      exchange.Exchange
	builder *snapshot.Builder
	policy  policy.Policy
	scorer  *policy.Scorer
	engine  *risk.Engine
	guard   *risk.Tracker
	store   *store.Store
	notify  notifier.Notifier

	mu   sync.Mutex
	open map[string]*trade.Aggregate // keyed by trade id

	startedAt time.Time
}

// Build assembles the runtime from configuration. In paper mode the Binance
// client serves market data only and the paper gateway simulates execution;
// in live mode the Binance client is the venue.
func Build(cfg *config.Config) (*App, error) {
	mapper, err := feature.NewMapper(cfg.Feature.SpecPath)
	if err != nil {
		return nil, fmt.Errorf("loading feature spec failed: %w", err)
	}

	scorer := policy.NewScorer(cfg.Policy.ModelPath, mapper.Hash())
	pol, err := policy.New(policy.Config{
		Name:      cfg.Policy.Name,
		RR:        cfg.Policy.RR,
		ATRK:      cfg.Policy.ATRK,
		ModelPath: cfg.Policy.ModelPath,
	}, scorer)
	if err != nil {
		return nil, err
	}

	st, err := store.New(cfg.Data.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store failed: %w", err)
	}

	guard, err := risk.NewTracker(risk.GuardrailConfig{
		MaxDailyLossUSDT:     cfg.Guardrail.MaxDailyLossUSDT,
		MaxDailyLossPct:      cfg.Guardrail.MaxDailyLossPct,
		MaxConsecutiveLosses: cfg.Guardrail.MaxConsecutiveLosses,
		CooldownSec:          cfg.Guardrail.CooldownSec,
		MaxTradesPerDay:      cfg.Guardrail.MaxTradesPerDay,
	}, st, time.Now())
	if err != nil {
		return nil, err
	}

	engine := risk.NewEngine(risk.EngineConfig{
		RiskPerTradePct:   cfg.Risk.RiskPerTradePct,
		RiskPerTradeUSDT:  cfg.Risk.RiskPerTradeUSDT,
		DefaultLeverage:   cfg.Risk.DefaultLeverage,
		MaxLeverage:       cfg.Risk.MaxLeverage,
		MarginUtilization: cfg.Risk.MarginUtilization,
		MaxNotionalUSDT:   cfg.Risk.MaxNotionalUSDT,
		MinConfidence:     cfg.Risk.MinConfidence,
		MinNotionalPolicy: cfg.Risk.MinNotionalPolicy,
		OverrideRiskMult:  cfg.Risk.OverrideRiskMult,
		OverrideRiskCap:   cfg.Risk.OverrideRiskCap,
	}, guard)

	market := binance.New(binance.Config{
		APIKey:      cfg.Exchange.APIKey,
		APISecret:   cfg.Exchange.APISecret,
		RESTBase:    cfg.Exchange.RESTBase,
		HTTPTimeout: time.Duration(cfg.Exchange.HTTPTimeout) * time.Second,
	})
	var ex exchange.Exchange = market
	if cfg.Mode() == config.ModePaper {
		ex = paper.New(paper.Config{
			Equity:  cfg.Trading.PaperEquity,
			FeeRate: cfg.Trading.FeeRate,
		}, market)
	}

	return New(cfg, ex, mapper, pol, scorer, engine, guard, st, &notifier.LogNotifier{}), nil
}

// New wires an App from pre-built parts.
func New(cfg *config.Config, ex exchange.Exchange, mapper *feature.Mapper, pol policy.Policy,
	scorer *policy.Scorer, engine *risk.Engine, guard *risk.Tracker, st *store.Store,
	notify notifier.Notifier) *App {
	builder := snapshot.NewBuilder(snapshot.BuilderConfig{
		ExchangeName: ex.Name(),
		LTF:          cfg.Trading.LTF,
		HTFList:      cfg.Trading.HTFList,
	}, ex, mapper)
	return &App{
		cfg:     cfg,
		ex:      ex,
		builder: builder,
		policy:  pol,
		scorer:  scorer,
		engine:  engine,
		guard:   guard,
		store:   st,
		notify:  notify,
		open:    make(map[string]*trade.Aggregate),
	}
}

// Recover reloads open trades so monitoring resumes after a restart.
func (a *App) Recover(ctx context.Context) error {
	trades, err := a.store.LoadOpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("loading open trades failed: %w", err)
	}
	a.mu.Lock()
	for _, agg := range trades {
		a.open[agg.ID] = agg
	}
	a.mu.Unlock()
	if len(trades) > 0 {
		logger.Infof("recovered %d open trades", len(trades))
	}
	return nil
}

// Run blocks until ctx is canceled, running one cycle per tick.
func (a *App) Run(ctx context.Context) error {
	a.startedAt = time.Now()
	if err := a.Recover(ctx); err != nil {
		return err
	}
	if err := a.scorer.Watch(ctx); err != nil {
		logger.Warnf("scorer hot-reload unavailable: %v", err)
	}
	if a.cfg.Server.Enabled {
		go a.serveStatus(ctx)
	}

	mode := a.cfg.Mode()
	logger.Infof("loop started: mode=%s symbols=%v cycle=%ds placement=%v",
		mode, a.cfg.Trading.Symbols, a.cfg.Trading.CycleSec, a.placementAllowed())

	interval := time.Duration(a.cfg.Trading.CycleSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("loop stopped: %v", ctx.Err())
			return nil
		case <-ticker.C:
			a.RunCycle(ctx)
		}
	}
}

// placementAllowed implements the kill switch: paper always places on the
// simulated venue; live requires the explicit confirm flag.
func (a *App) placementAllowed() bool {
	if a.cfg.Mode() == config.ModePaper {
		return true
	}
	return a.cfg.LivePlacementAllowed()
}

func (a *App) openCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.open)
}

func (a *App) openForSymbol(symbol string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, agg := range a.open {
		if agg.Symbol == symbol {
			return true
		}
	}
	return false
}

func (a *App) openTrades() []*trade.Aggregate {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*trade.Aggregate, 0, len(a.open))
	for _, agg := range a.open {
		out = append(out, agg)
	}
	return out
}

func (a *App) trackOpen(agg *trade.Aggregate) {
	a.mu.Lock()
	a.open[agg.ID] = agg
	a.mu.Unlock()
}

func (a *App) untrack(tradeID string) {
	a.mu.Lock()
	delete(a.open, tradeID)
	a.mu.Unlock()
}
