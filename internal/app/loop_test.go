package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeloop/internal/config"
	"tradeloop/internal/feature"
	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/gateway/notifier"
	"tradeloop/internal/policy"
	"tradeloop/internal/risk"
	"tradeloop/internal/store"
	"tradeloop/internal/types"
)

const testFeatureSpec = `version: v1
features:
  - key: atr_pct
    path: $.ltf.price.atr_pct
    type: float
  - key: funding_rate
    path: $.context.funding_rate
    type: float
  - key: htf_1h_up
    path: $.htf.1h.trend
    type: one_hot
    equals: up
output:
  feature_count: 3
`

// fakeExchange serves deterministic market data with a rising trend and
// records order placements.
type fakeExchange struct {
	mu sync.Mutex

	placed    []exchange.BracketOrder
	tpFilled  bool
	tpPrice   float64
	canceled  []string
	nextOrder int
}

func (f *fakeExchange) Name() string { return "fake" }

func (f *fakeExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error) {
	now := time.Now().UnixMilli()
	n := 120
	out := make([]exchange.Kline, 0, n)
	for i := 0; i < n; i++ {
		c := 50 + float64(i)*0.5
		out = append(out, exchange.Kline{
			OpenTime:  now - int64(n-i)*60_000,
			CloseTime: now - int64(n-i-1)*60_000 - 1,
			Open:      c - 0.25,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    10,
		})
	}
	return out, nil
}

func (f *fakeExchange) GetTicker(ctx context.Context, symbol string) (exchange.Ticker, error) {
	return exchange.Ticker{Symbol: symbol, Last: 109.5}, nil
}

func (f *fakeExchange) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	return 0.0001, nil
}

func (f *fakeExchange) GetConstraints(ctx context.Context, symbol string) (types.ExchangeConstraints, error) {
	return types.ExchangeConstraints{MinQty: 0.001, QtyStep: 0.001, MinNotional: 5, MaxLeverage: 50}, nil
}

func (f *fakeExchange) GetAccount(ctx context.Context) (types.AccountState, error) {
	return types.AccountState{EquityUSDT: 10000, FreeUSDT: 10000}, nil
}

func (f *fakeExchange) PlaceBracketOrder(ctx context.Context, order exchange.BracketOrder) (exchange.OrderIDs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, order)
	f.nextOrder += 3
	return exchange.OrderIDs{
		Entry: fmt.Sprintf("entry-%d", f.nextOrder),
		TP:    fmt.Sprintf("tp-%d", f.nextOrder),
		SL:    fmt.Sprintf("sl-%d", f.nextOrder),
	}, nil
}

func (f *fakeExchange) PositionQty(ctx context.Context, symbol string) (float64, error) {
	return 0, nil
}

func (f *fakeExchange) GetOrder(ctx context.Context, symbol, orderID string) (exchange.OrderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case len(orderID) > 5 && orderID[:5] == "entry":
		return exchange.OrderState{Status: exchange.OrderStatusFilled, AvgFillPrice: 109.5}, nil
	case len(orderID) > 2 && orderID[:2] == "tp" && f.tpFilled:
		return exchange.OrderState{Status: exchange.OrderStatusFilled, AvgFillPrice: f.tpPrice}, nil
	default:
		return exchange.OrderState{Status: exchange.OrderStatusOpen}, nil
	}
}

func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, orderID)
	return nil
}

func (f *fakeExchange) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

// recordingNotifier captures alerted events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Alert(severity notifier.Severity, event, detail string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) has(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	specPath := filepath.Join(dir, "feature_spec.yaml")
	require.NoError(t, os.WriteFile(specPath, []byte(testFeatureSpec), 0o644))
	return &config.Config{
		Trading: config.TradingConfig{
			Mode:    "paper",
			Symbols: []string{"BTCUSDT"},
			LTF:     "5m",
			HTFList: []string{"1h"},
			FeeRate: 0.0006,
			MaxOpen: 2,
		},
		Risk: config.RiskConfig{
			RiskPerTradeUSDT:  10,
			DefaultLeverage:   3,
			MaxLeverage:       10,
			MarginUtilization: 0.30,
			MinConfidence:     0.5,
			MinNotionalPolicy: "skip",
		},
		Guardrail: config.GuardrailConfig{MaxConsecutiveLosses: 5},
		Policy:    config.PolicyConfig{Name: "rule", RR: 2.0, ATRK: 1.0},
		Feature:   config.FeatureConfig{SpecPath: specPath},
		Data:      config.DataConfig{DBPath: filepath.Join(dir, "tradeloop.db")},
	}
}

func buildTestApp(t *testing.T, cfg *config.Config, ex exchange.Exchange) (*App, *store.Store) {
	t.Helper()
	mapper, err := feature.NewMapper(cfg.Feature.SpecPath)
	require.NoError(t, err)
	scorer := policy.NewScorer("", mapper.Hash())
	pol, err := policy.New(policy.Config{Name: cfg.Policy.Name, RR: cfg.Policy.RR, ATRK: cfg.Policy.ATRK}, scorer)
	require.NoError(t, err)
	st, err := store.New(cfg.Data.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	guard, err := risk.NewTracker(risk.GuardrailConfig{
		MaxConsecutiveLosses: cfg.Guardrail.MaxConsecutiveLosses,
	}, st, time.Now())
	require.NoError(t, err)
	engine := risk.NewEngine(risk.EngineConfig{
		RiskPerTradeUSDT:  cfg.Risk.RiskPerTradeUSDT,
		DefaultLeverage:   cfg.Risk.DefaultLeverage,
		MaxLeverage:       cfg.Risk.MaxLeverage,
		MarginUtilization: cfg.Risk.MarginUtilization,
		MinConfidence:     cfg.Risk.MinConfidence,
		MinNotionalPolicy: cfg.Risk.MinNotionalPolicy,
	}, guard)
	return New(cfg, ex, mapper, pol, scorer, engine, guard, st, &notifier.LogNotifier{}), st
}

func TestRunCycleOpensTrade(t *testing.T) {
	ex := &fakeExchange{}
	cfg := testConfig(t, t.TempDir())
	app, st := buildTestApp(t, cfg, ex)
	ctx := context.Background()

	app.RunCycle(ctx)

	require.Equal(t, 1, ex.placedCount())
	order := ex.placed[0]
	assert.Equal(t, "BTCUSDT", order.Symbol)
	assert.Equal(t, types.DirectionLong, order.Direction)
	assert.Greater(t, order.Qty, 0.0)

	trades, err := st.LoadOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 109.5, trades[0].Execution.EntryFillPrice)
	assert.Equal(t, 1, app.openCount())
	assert.Equal(t, 1, app.guard.State().TradesToday)
}

func TestRunCycleSkipsSymbolAlreadyOpen(t *testing.T) {
	ex := &fakeExchange{}
	cfg := testConfig(t, t.TempDir())
	app, _ := buildTestApp(t, cfg, ex)
	ctx := context.Background()

	app.RunCycle(ctx)
	app.RunCycle(ctx)

	assert.Equal(t, 1, ex.placedCount())
	assert.Equal(t, 1, app.openCount())
}

func TestRunCycleKillSwitch(t *testing.T) {
	ex := &fakeExchange{}
	cfg := testConfig(t, t.TempDir())
	cfg.Trading.Mode = "live"
	cfg.Trading.LiveConfirm = false
	app, _ := buildTestApp(t, cfg, ex)

	app.RunCycle(context.Background())

	assert.Zero(t, ex.placedCount())
	assert.Zero(t, app.openCount())
}

func TestRunCycleClosesTradeOnTakeProfit(t *testing.T) {
	ex := &fakeExchange{}
	cfg := testConfig(t, t.TempDir())
	app, st := buildTestApp(t, cfg, ex)
	ctx := context.Background()

	app.RunCycle(ctx)
	require.Equal(t, 1, app.openCount())

	ex.mu.Lock()
	ex.tpFilled = true
	ex.tpPrice = ex.placed[0].TakeProfit
	ex.mu.Unlock()

	app.RunCycle(ctx)

	assert.Zero(t, app.openCount())
	assert.NotEmpty(t, ex.canceled, "surviving stop leg should be canceled")

	stats, err := st.ClosedStats(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Count)
	assert.Greater(t, stats.PnLUSDT, 0.0)
	assert.Zero(t, app.guard.State().ConsecutiveLosses)
}

func TestDecisionJournalConflictAlerts(t *testing.T) {
	ex := &fakeExchange{}
	cfg := testConfig(t, t.TempDir())
	app, _ := buildTestApp(t, cfg, ex)
	rec := &recordingNotifier{}
	app.notify = rec
	ctx := context.Background()

	journal := store.DecisionCycle{
		DecisionID: "d-1",
		SnapshotID: "snap-1",
		Symbol:     "BTCUSDT",
		CycleTime:  1000,
		PolicyName: "rule",
	}
	require.NoError(t, app.recordCycle(ctx, journal))

	// Re-recording the identical journal row is a silent no-op.
	require.NoError(t, app.recordCycle(ctx, journal))
	assert.False(t, rec.has(notifier.EventDatasetConflict))

	// The same key with a different payload must be surfaced, not swallowed.
	journal.BlockedReason = "guardrail"
	require.NoError(t, app.recordCycle(ctx, journal))
	assert.True(t, rec.has(notifier.EventDatasetConflict))
}

func TestExecuteKeepsTrackingWhenPersistFails(t *testing.T) {
	ex := &fakeExchange{}
	cfg := testConfig(t, t.TempDir())
	app, st := buildTestApp(t, cfg, ex)
	rec := &recordingNotifier{}
	app.notify = rec
	ctx := context.Background()

	// The venue accepts the bracket, then persistence goes away.
	require.NoError(t, st.Close())

	decision := types.TradeDecision{
		SnapshotID: "snap-1",
		Symbol:     "BTCUSDT",
		Direction:  types.DirectionLong,
		EntryPrice: 109.5,
		StopPrice:  107,
		TakeProfit: 114,
		RiskUnit:   2.5,
		Confidence: 1.0,
	}
	plan := types.RiskPlan{
		Outcome:    types.PlanAccepted,
		Quantity:   4,
		Notional:   438,
		Leverage:   3,
		MarginMode: "isolated",
		RiskUSDT:   10,
	}

	agg, err := app.execute(ctx, decision, plan)
	require.NoError(t, err)
	require.NotNil(t, agg)

	// The live position stays tracked so the monitor keeps working it.
	assert.Equal(t, 1, ex.placedCount())
	assert.True(t, app.openForSymbol("BTCUSDT"))
	assert.True(t, rec.has(notifier.EventExecutionFailed))
}

func TestRecoverResumesOpenTrades(t *testing.T) {
	ex := &fakeExchange{}
	cfg := testConfig(t, t.TempDir())
	app, st := buildTestApp(t, cfg, ex)
	ctx := context.Background()

	app.RunCycle(ctx)
	require.Equal(t, 1, app.openCount())

	restarted, _ := buildTestAppWithStore(t, cfg, ex, st)
	require.NoError(t, restarted.Recover(ctx))
	assert.Equal(t, 1, restarted.openCount())
}

func buildTestAppWithStore(t *testing.T, cfg *config.Config, ex exchange.Exchange, st *store.Store) (*App, *store.Store) {
	t.Helper()
	mapper, err := feature.NewMapper(cfg.Feature.SpecPath)
	require.NoError(t, err)
	scorer := policy.NewScorer("", mapper.Hash())
	pol, err := policy.New(policy.Config{Name: cfg.Policy.Name, RR: cfg.Policy.RR, ATRK: cfg.Policy.ATRK}, scorer)
	require.NoError(t, err)
	guard, err := risk.NewTracker(risk.GuardrailConfig{}, st, time.Now())
	require.NoError(t, err)
	engine := risk.NewEngine(risk.EngineConfig{RiskPerTradeUSDT: 10, DefaultLeverage: 3, MaxLeverage: 10, MarginUtilization: 0.3}, guard)
	return New(cfg, ex, mapper, pol, scorer, engine, guard, st, &notifier.LogNotifier{}), st
}
