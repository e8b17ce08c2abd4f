package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/gateway/notifier"
	"tradeloop/internal/logger"
	"tradeloop/internal/store"
	"tradeloop/internal/trade"
	"tradeloop/internal/types"
)

// Blocked reasons the loop adds on top of the sizing reasons.
const (
	blockedMaxOpen       = "max_open_positions"
	blockedSymbolOpen    = "symbol_already_open"
	blockedKillSwitch    = "live_confirm_missing"
	blockedExecution     = "execution_failed"
	blockedPolicyFailure = "policy_failed"
)

const monitorConcurrency = 4

// RunCycle executes one full pass: monitor open trades, then evaluate every
// configured symbol. Failures are contained per symbol; one bad symbol never
// stalls the loop.
func (a *App) RunCycle(ctx context.Context) {
	a.monitorOpenTrades(ctx)
	for _, symbol := range a.cfg.Trading.Symbols {
		if err := a.cycleSymbol(ctx, symbol); err != nil {
			logger.Errorf("cycle failed for %s: %v", symbol, err)
		}
	}
}

func (a *App) cycleSymbol(ctx context.Context, symbol string) error {
	now := time.Now()

	snap, err := a.builder.Build(ctx, symbol)
	if err != nil {
		return fmt.Errorf("snapshot failed: %w", err)
	}
	if err := a.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("saving snapshot failed: %w", err)
	}
	if err := a.store.AppendMarketRow(ctx, store.MarketRow{
		SnapshotID:     snap.ID,
		Symbol:         snap.Symbol,
		SnapshotTime:   snap.Time,
		FeatureVersion: snap.FeatureVersion,
		FeatureHash:    snap.FeatureHash,
		Features:       snap.Features,
	}); err != nil {
		if !errors.Is(err, store.ErrDatasetConflict) {
			return fmt.Errorf("market row append failed: %w", err)
		}
		a.reportDatasetConflict("market_row", snap.ID)
	}

	journal := store.DecisionCycle{
		DecisionID: decisionID(a.ex.Name(), symbol, snap.ID),
		SnapshotID: snap.ID,
		Symbol:     symbol,
		CycleTime:  now.Unix(),
		PolicyName: a.policy.Name(),
	}

	decision, err := a.policy.Decide(snap)
	if err != nil {
		logger.Warnf("policy failed for %s: %v", symbol, err)
		journal.Outcome = string(types.PlanSkipped)
		journal.BlockedReason = blockedPolicyFailure
		return a.recordCycle(ctx, journal)
	}
	journal.Decision = decision

	if reason := a.positionGate(symbol); reason != "" {
		journal.Outcome = string(types.PlanSkipped)
		journal.BlockedReason = reason
		return a.recordCycle(ctx, journal)
	}

	account, err := a.ex.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("fetching account failed: %w", err)
	}
	constraints, err := a.ex.GetConstraints(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetching constraints failed: %w", err)
	}

	plan := a.engine.Size(now, decision, account, constraints)
	journal.Plan = plan
	journal.Outcome = string(plan.Outcome)
	journal.BlockedReason = plan.Reason
	if !plan.Accepted() {
		if plan.Reason == types.ReasonGuardrail {
			a.notify.Alert(notifier.SeverityWarn, notifier.EventGuardrailBlocked, symbol)
		}
		return a.recordCycle(ctx, journal)
	}

	if !a.placementAllowed() {
		logger.Warnf("order suppressed by kill switch: symbol=%s qty=%v", symbol, plan.Quantity)
		journal.Outcome = string(types.PlanSkipped)
		journal.BlockedReason = blockedKillSwitch
		return a.recordCycle(ctx, journal)
	}

	agg, err := a.execute(ctx, decision, plan)
	if err != nil {
		a.notify.Alert(notifier.SeverityCritical, notifier.EventExecutionFailed,
			fmt.Sprintf("%s: %v", symbol, err))
		journal.Outcome = string(types.PlanSkipped)
		journal.BlockedReason = blockedExecution
		return a.recordCycle(ctx, journal)
	}
	journal.TradeID = agg.ID
	return a.recordCycle(ctx, journal)
}

// decisionID is the journal's natural key: deterministic per (venue, symbol,
// snapshot), so re-recording the same cycle is idempotent.
func decisionID(exchangeName, symbol, snapshotID string) string {
	sum := sha1.Sum([]byte(exchangeName + "|" + symbol + "|" + snapshotID))
	return hex.EncodeToString(sum[:])
}

// positionGate enforces the concurrent-position limits before sizing.
func (a *App) positionGate(symbol string) string {
	if limit := a.cfg.Trading.MaxOpen; limit > 0 && a.openCount() >= limit {
		return blockedMaxOpen
	}
	if a.openForSymbol(symbol) {
		return blockedSymbolOpen
	}
	return ""
}

// execute places the bracket and opens the aggregate. The entry fill is taken
// from the venue's order state; if that lookup fails the decision price
// stands in until the monitor corrects it.
func (a *App) execute(ctx context.Context, decision types.TradeDecision, plan types.RiskPlan) (*trade.Aggregate, error) {
	now := time.Now().Unix()
	agg, err := trade.Open(decision, plan, now)
	if err != nil {
		return nil, err
	}

	ids, err := a.ex.PlaceBracketOrder(ctx, exchange.BracketOrder{
		Symbol:        decision.Symbol,
		Direction:     decision.Direction,
		Qty:           plan.Quantity,
		EntryPrice:    decision.EntryPrice,
		TakeProfit:    decision.TakeProfit,
		StopLoss:      decision.StopPrice,
		Leverage:      plan.Leverage,
		ClientOrderID: "tl-" + agg.ID[:8],
	})
	if err != nil {
		return nil, fmt.Errorf("placing bracket failed: %w", err)
	}
	agg.Execution.Exchange = a.ex.Name()
	agg.Execution.EntryOrderID = ids.Entry
	agg.Execution.TPOrderID = ids.TP
	agg.Execution.SLOrderID = ids.SL
	agg.Execution.ClientOrderID = "tl-" + agg.ID[:8]

	entryPrice := decision.EntryPrice
	if state, err := a.ex.GetOrder(ctx, decision.Symbol, ids.Entry); err == nil && state.AvgFillPrice > 0 {
		entryPrice = state.AvgFillPrice
	}
	if err := agg.AttachEntry(types.Fill{
		Price: entryPrice,
		Time:  now,
		Fee:   entryPrice * plan.Quantity * a.cfg.Trading.FeeRate,
	}); err != nil {
		return nil, err
	}

	if err := a.guard.RecordOpen(time.Now()); err != nil {
		logger.Errorf("recording trade open failed: %v", err)
	}
	a.trackOpen(agg)
	if err := a.store.SaveTrade(ctx, agg); err != nil {
		// The bracket is already live on the venue; keep the aggregate
		// tracked so the monitor retries persistence instead of orphaning
		// the position.
		logger.Errorf("persisting trade %s failed: %v", agg.ID, err)
		a.notify.Alert(notifier.SeverityCritical, notifier.EventExecutionFailed,
			fmt.Sprintf("%s: trade %s opened but not persisted: %v", decision.Symbol, agg.ID, err))
	}

	logger.Infof("trade opened: id=%s symbol=%s dir=%s qty=%v entry=%v sl=%v tp=%v lev=%d",
		agg.ID, decision.Symbol, decision.Direction, plan.Quantity,
		entryPrice, decision.StopPrice, decision.TakeProfit, plan.Leverage)
	a.notify.Alert(notifier.SeverityInfo, notifier.EventTradeOpened,
		fmt.Sprintf("%s %s qty=%v", decision.Symbol, decision.Direction, plan.Quantity))
	return agg, nil
}

func (a *App) recordCycle(ctx context.Context, journal store.DecisionCycle) error {
	if err := a.store.AppendDecisionCycle(ctx, journal); err != nil {
		if !errors.Is(err, store.ErrDatasetConflict) {
			return fmt.Errorf("decision journal append failed: %w", err)
		}
		a.reportDatasetConflict("decision_cycle", journal.DecisionID)
	}
	return nil
}

// reportDatasetConflict surfaces a same-key, different-payload dataset write.
// The stored row stays untouched; a conflict means two runs disagreed about
// the same natural key and needs reconciliation.
func (a *App) reportDatasetConflict(sink, key string) {
	logger.Errorf("dataset conflict: sink=%s key=%s", sink, key)
	a.notify.Alert(notifier.SeverityCritical, notifier.EventDatasetConflict,
		fmt.Sprintf("%s key=%s", sink, key))
}

// monitorOpenTrades polls the bracket legs of every open trade, sampling the
// mark price for excursion tracking and settling trades whose TP or SL
// filled.
func (a *App) monitorOpenTrades(ctx context.Context) {
	trades := a.openTrades()
	if len(trades) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(monitorConcurrency)
	for _, agg := range trades {
		agg := agg
		g.Go(func() error {
			if err := a.monitorTrade(gctx, agg); err != nil {
				logger.Errorf("monitoring trade %s failed: %v", agg.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (a *App) monitorTrade(ctx context.Context, agg *trade.Aggregate) error {
	ticker, err := a.ex.GetTicker(ctx, agg.Symbol)
	if err == nil {
		agg.ObservePrice(ticker.Last, time.Now().Unix())
	}

	exitType, fill, settled, err := a.checkBracket(ctx, agg)
	if err != nil {
		return err
	}
	if !settled {
		// Persist the sample trail so excursions survive a restart.
		return a.store.SaveTrade(ctx, agg)
	}
	return a.closeTrade(ctx, agg, fill, exitType)
}

// checkBracket looks up the TP leg first, then the SL leg.
func (a *App) checkBracket(ctx context.Context, agg *trade.Aggregate) (string, types.Fill, bool, error) {
	legs := []struct {
		kind    string
		orderID string
	}{
		{"tp", agg.Execution.TPOrderID},
		{"sl", agg.Execution.SLOrderID},
	}
	for _, leg := range legs {
		if leg.orderID == "" {
			continue
		}
		state, err := a.ex.GetOrder(ctx, agg.Symbol, leg.orderID)
		if err != nil {
			return "", types.Fill{}, false, fmt.Errorf("querying %s leg failed: %w", leg.kind, err)
		}
		if state.Status != exchange.OrderStatusFilled {
			continue
		}
		fill := types.Fill{
			Price: state.AvgFillPrice,
			Time:  time.Now().Unix(),
			Fee:   state.AvgFillPrice * agg.Execution.Qty * a.cfg.Trading.FeeRate,
		}
		return leg.kind, fill, true, nil
	}
	return "", types.Fill{}, false, nil
}

// closeTrade settles the aggregate: cancel the surviving leg, resolve the
// reward, update guardrails and emit the per-trade dataset rows.
func (a *App) closeTrade(ctx context.Context, agg *trade.Aggregate, fill types.Fill, exitType string) error {
	sibling := agg.Execution.SLOrderID
	if exitType == "sl" {
		sibling = agg.Execution.TPOrderID
	}
	if sibling != "" {
		if err := a.ex.CancelOrder(ctx, agg.Symbol, sibling); err != nil {
			logger.Warnf("canceling surviving leg failed for %s: %v", agg.ID, err)
		}
	}

	if err := agg.AttachExit(fill, exitType); err != nil {
		return err
	}

	reward, err := trade.Resolve(agg)
	if err != nil {
		a.notify.Alert(notifier.SeverityCritical, notifier.EventUnresolvable,
			fmt.Sprintf("%s: %v", agg.ID, err))
		a.untrack(agg.ID)
		return a.store.SaveTrade(ctx, agg)
	}
	if err := agg.AttachReward(reward); err != nil {
		return err
	}

	if err := a.guard.RecordClose(time.Now(), reward.PnLUSDT); err != nil {
		logger.Errorf("recording trade close failed: %v", err)
	}
	if err := a.store.SaveTrade(ctx, agg); err != nil {
		return err
	}
	a.untrack(agg.ID)

	a.emitTradeDatasets(ctx, agg, reward)

	logger.Infof("trade closed: id=%s symbol=%s exit=%s pnl_usdt=%.4f pnl_r=%.4f held=%ds",
		agg.ID, agg.Symbol, exitType, reward.PnLUSDT, reward.PnLR, reward.HoldingSeconds)
	a.notify.Alert(notifier.SeverityInfo, notifier.EventTradeClosed,
		fmt.Sprintf("%s %s pnl=%.2f", agg.Symbol, exitType, reward.PnLUSDT))
	return nil
}

// emitTradeDatasets writes the RL transition and scorer sample for a closed
// trade. Dataset emission is best-effort: a failed append is logged, the
// close itself already committed.
func (a *App) emitTradeDatasets(ctx context.Context, agg *trade.Aggregate, reward types.RewardState) {
	var features []float64
	var version, hash string
	if snap, err := a.store.LoadSnapshot(ctx, agg.SnapshotID); err == nil {
		features = snap.Features
		version = snap.FeatureVersion
		hash = snap.FeatureHash
	} else {
		logger.Warnf("loading entry snapshot %s failed: %v", agg.SnapshotID, err)
	}

	exitSnapshotID := a.buildExitSnapshot(ctx, agg.Symbol)

	if err := a.store.AppendRLTransition(ctx, store.RLTransition{
		TradeID:        agg.ID,
		SnapshotID:     agg.SnapshotID,
		ExitSnapshotID: exitSnapshotID,
		Symbol:         agg.Symbol,
		Features:       features,
		FeatureVersion: version,
		FeatureHash:    hash,
		Direction:      agg.Decision.Direction,
		Plan:           agg.Plan,
		Reward:         reward,
	}); err != nil {
		if errors.Is(err, store.ErrDatasetConflict) {
			a.reportDatasetConflict("rl_transition", agg.ID)
		} else {
			logger.Errorf("rl transition append failed for %s: %v", agg.ID, err)
		}
	}

	label := 0
	if reward.PnLR > 0 {
		label = 1
	}
	if err := a.store.AppendScorerSample(ctx, store.ScorerSample{
		TradeID:        agg.ID,
		SnapshotID:     agg.SnapshotID,
		Symbol:         agg.Symbol,
		Features:       features,
		FeatureVersion: version,
		FeatureHash:    hash,
		Label:          label,
		PnLR:           reward.PnLR,
	}); err != nil {
		if errors.Is(err, store.ErrDatasetConflict) {
			a.reportDatasetConflict("scorer_sample", agg.ID)
		} else {
			logger.Errorf("scorer sample append failed for %s: %v", agg.ID, err)
		}
	}
}

// buildExitSnapshot captures the market at close time for next-state
// learning. Best-effort: an empty id means the observation was unavailable.
func (a *App) buildExitSnapshot(ctx context.Context, symbol string) string {
	snap, err := a.builder.Build(ctx, symbol)
	if err != nil {
		logger.Warnf("exit snapshot failed for %s: %v", symbol, err)
		return ""
	}
	if err := a.store.SaveSnapshot(ctx, snap); err != nil {
		logger.Warnf("saving exit snapshot failed for %s: %v", symbol, err)
		return ""
	}
	return snap.ID
}
