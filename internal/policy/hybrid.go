package policy

import (
	"tradeloop/internal/snapshot"
	"tradeloop/internal/types"
)

// HybridPolicy keeps the rule policy's trade shape and swaps in the scorer's
// probability as confidence. It never decides "no trade" by itself: gating
// low-confidence decisions is the risk engine's job.
type HybridPolicy struct {
	rule   *RulePolicy
	scorer *Scorer
}

func NewHybridPolicy(rule *RulePolicy, scorer *Scorer) *HybridPolicy {
	return &HybridPolicy{rule: rule, scorer: scorer}
}

func (p *HybridPolicy) Name() string { return "hybrid_v1" }

func (p *HybridPolicy) Decide(snap *snapshot.Snapshot) (types.TradeDecision, error) {
	decision, err := p.rule.Decide(snap)
	if err != nil {
		return types.TradeDecision{}, err
	}
	decision.PolicyName = p.Name()
	if p.scorer != nil {
		decision.Confidence = p.scorer.Score(snap.Features)
	}
	return decision, nil
}
