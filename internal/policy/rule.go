package policy

import (
	"fmt"

	"tradeloop/internal/snapshot"
	"tradeloop/internal/types"
)

// minStopFraction is the stop-distance floor relative to entry, applied when
// ATR is unavailable or degenerate.
const minStopFraction = 0.001

// RulePolicy derives the full trade shape (direction, entry, SL, TP) from
// deterministic conditions over the snapshot. Confidence is fixed at 1.
type RulePolicy struct {
	rr   float64
	atrK float64
}

func NewRulePolicy(rr, atrK float64) *RulePolicy {
	if rr <= 0 {
		rr = 2.0
	}
	if atrK <= 0 {
		atrK = 1.0
	}
	return &RulePolicy{rr: rr, atrK: atrK}
}

func (p *RulePolicy) Name() string { return "rule_v1" }

func (p *RulePolicy) Decide(snap *snapshot.Snapshot) (types.TradeDecision, error) {
	entry := snap.LTF.Price.Close
	if entry <= 0 {
		return types.TradeDecision{}, fmt.Errorf("snapshot %s has no close price", snap.ID)
	}

	stopDist := snap.LTF.Price.ATRPct * p.atrK * entry
	if floor := minStopFraction * entry; stopDist < floor {
		stopDist = floor
	}

	// Direction follows the 1h higher-timeframe trend; anything that is not
	// clearly up is traded short, matching the rule set the scorer was
	// trained against.
	direction := types.DirectionShort
	if htf, ok := snap.HTF["1h"]; ok && htf.Trend == "up" {
		direction = types.DirectionLong
	}

	var sl, tp float64
	if direction == types.DirectionLong {
		sl = entry - stopDist
		tp = entry + p.rr*stopDist
	} else {
		sl = entry + stopDist
		tp = entry - p.rr*stopDist
	}

	return types.TradeDecision{
		SnapshotID: snap.ID,
		Symbol:     snap.Symbol,
		Direction:  direction,
		EntryPrice: entry,
		StopPrice:  sl,
		TakeProfit: tp,
		RiskReward: p.rr,
		RiskUnit:   stopDist,
		Confidence: 1.0,
		PolicyName: p.Name(),
		DecidedAt:  snap.Time,
	}, nil
}
