// Package risk turns a trade decision into an executable, capital-bounded
// plan. Sizing is pure arithmetic over the decision, account state and venue
// constraints; the guardrail tracker is the only stateful participant. A
// rejected decision is a skipped plan with a reason, never an error.
package risk

import (
	"math"
	"time"

	"tradeloop/internal/logger"
	"tradeloop/internal/types"
)

// Min-notional policies.
const (
	MinNotionalSkip     = "skip"
	MinNotionalOverride = "override_with_cap"
)

// EngineConfig parameterizes sizing. Exactly one of RiskPerTradeUSDT (fixed)
// and RiskPerTradePct (percent of equity) drives the risk budget; the fixed
// amount wins when both are set.
type EngineConfig struct {
	RiskPerTradePct   float64
	RiskPerTradeUSDT  float64
	DefaultLeverage   int
	MaxLeverage       int
	MarginUtilization float64
	MaxNotionalUSDT   float64
	MinConfidence     float64
	MinNotionalPolicy string
	OverrideRiskMult  float64
	OverrideRiskCap   float64
}

// Engine sizes decisions. The guardrail tracker may be nil (sizing-only use,
// e.g. backtests); every limit then passes.
type Engine struct {
	cfg   EngineConfig
	guard *Tracker
}

func NewEngine(cfg EngineConfig, guard *Tracker) *Engine {
	if cfg.DefaultLeverage <= 0 {
		cfg.DefaultLeverage = 1
	}
	if cfg.MaxLeverage < cfg.DefaultLeverage {
		cfg.MaxLeverage = cfg.DefaultLeverage
	}
	if cfg.MinNotionalPolicy == "" {
		cfg.MinNotionalPolicy = MinNotionalSkip
	}
	return &Engine{cfg: cfg, guard: guard}
}

func skipped(reason string) types.RiskPlan {
	return types.RiskPlan{Outcome: types.PlanSkipped, Reason: reason}
}

// Size runs the full gate sequence and returns the plan. Gate order is fixed:
// guardrail, confidence, account sanity, stop distance, quantity floor,
// notional cap, margin, min-notional. The first failing gate names the skip
// reason; later gates never run.
func (e *Engine) Size(now time.Time, decision types.TradeDecision, account types.AccountState, cons types.ExchangeConstraints) types.RiskPlan {
	if e.guard != nil {
		if gate := e.guard.Check(now, account.EquityUSDT); !gate.Allowed {
			logger.Infof("sizing blocked by guardrail: symbol=%s reason=%s", decision.Symbol, gate.Reason)
			return skipped(types.ReasonGuardrail)
		}
	}

	if decision.Confidence < e.cfg.MinConfidence {
		return skipped(types.ReasonLowConfidence)
	}

	if account.EquityUSDT <= 0 || account.FreeUSDT <= 0 {
		return skipped(types.ReasonInvalidAccount)
	}

	budget := e.cfg.RiskPerTradeUSDT
	if budget <= 0 {
		budget = account.EquityUSDT * e.cfg.RiskPerTradePct / 100
	}
	if budget <= 0 {
		return skipped(types.ReasonInvalidAccount)
	}

	entry := decision.EntryPrice
	stopDist := math.Abs(entry - decision.StopPrice)
	if entry <= 0 || stopDist <= 0 {
		return skipped(types.ReasonInvalidStop)
	}

	qty := floorToStep(budget/stopDist, cons.QtyStep)
	if qty <= 0 || (cons.MinQty > 0 && qty < cons.MinQty) {
		return skipped(types.ReasonBelowMinQty)
	}

	if e.cfg.MaxNotionalUSDT > 0 {
		capQty := floorToStep(e.cfg.MaxNotionalUSDT/entry, cons.QtyStep)
		if capQty < qty {
			qty = capQty
		}
		if qty <= 0 || (cons.MinQty > 0 && qty < cons.MinQty) {
			return skipped(types.ReasonBelowMinQty)
		}
	}

	lev, qty, ok := e.fitMargin(qty, entry, account.FreeUSDT, cons)
	if !ok {
		return skipped(types.ReasonMarginExceeded)
	}

	notional := qty * entry
	outcome := types.PlanAccepted
	reason := ""

	if cons.MinNotional > 0 && notional < cons.MinNotional {
		switch e.cfg.MinNotionalPolicy {
		case MinNotionalOverride:
			bumped := ceilToStep(cons.MinNotional/entry, cons.QtyStep)
			if cons.MinQty > 0 && bumped < cons.MinQty {
				bumped = ceilToStep(cons.MinQty, cons.QtyStep)
			}
			risk := bumped * stopDist
			if e.cfg.OverrideRiskMult > 0 && risk > budget*e.cfg.OverrideRiskMult {
				return skipped(types.ReasonOverrideRiskCap)
			}
			if e.cfg.OverrideRiskCap > 0 && risk > e.cfg.OverrideRiskCap {
				return skipped(types.ReasonOverrideRiskCap)
			}
			lev, bumped, ok = e.fitMargin(bumped, entry, account.FreeUSDT, cons)
			if !ok || bumped*entry < cons.MinNotional {
				return skipped(types.ReasonMarginExceeded)
			}
			qty = bumped
			notional = qty * entry
			outcome = types.PlanOverridden
			reason = types.ReasonMinNotionalBump
			logger.Infof("min-notional override: symbol=%s qty=%.8f risk=%.4f budget=%.4f",
				decision.Symbol, qty, risk, budget)
		default:
			return skipped(types.ReasonBelowMinNotional)
		}
	}

	riskUSDT := qty * stopDist
	return types.RiskPlan{
		Outcome:    outcome,
		Reason:     reason,
		Quantity:   qty,
		Notional:   notional,
		Leverage:   lev,
		MarginMode: "isolated",
		RiskUSDT:   riskUSDT,
		RiskPct:    riskUSDT / account.EquityUSDT * 100,
	}
}

// fitMargin finds a leverage (and, failing that, a reduced quantity) so that
// the required margin stays within margin_utilization of free balance.
// Leverage escalates before quantity shrinks: the risk budget is honored as
// long as the venue's leverage ladder allows it.
func (e *Engine) fitMargin(qty, entry, free float64, cons types.ExchangeConstraints) (int, float64, bool) {
	maxLev := e.cfg.MaxLeverage
	if cons.MaxLeverage > 0 && cons.MaxLeverage < maxLev {
		maxLev = cons.MaxLeverage
	}
	if maxLev < 1 {
		maxLev = 1
	}
	lev := e.cfg.DefaultLeverage
	if lev > maxLev {
		lev = maxLev
	}

	limit := e.cfg.MarginUtilization * free
	if limit <= 0 {
		return lev, qty, false
	}

	notional := qty * entry
	if notional/float64(lev) > limit {
		needed := int(math.Ceil(notional / limit))
		if needed > maxLev {
			needed = maxLev
		}
		if needed > lev {
			lev = needed
		}
	}
	if notional/float64(lev) > limit {
		qty = floorToStep(limit*float64(lev)/entry, cons.QtyStep)
		if qty <= 0 || (cons.MinQty > 0 && qty < cons.MinQty) {
			return lev, qty, false
		}
		notional = qty * entry
		if notional/float64(lev) > limit {
			return lev, qty, false
		}
	}
	return lev, qty, true
}
