// Package policy converts a snapshot into a trade decision. Two policies
// exist: the deterministic rule policy, and the hybrid policy that keeps the
// rule-generated trade shape and replaces the confidence with an externally
// trained scorer's output. Policies are pure: same snapshot + same loaded
// model state means the same decision.
package policy

import (
	"fmt"

	"tradeloop/internal/snapshot"
	"tradeloop/internal/types"
)

// Policy is the single decision contract.
type Policy interface {
	Name() string
	Decide(snap *snapshot.Snapshot) (types.TradeDecision, error)
}

// Config selects and parameterizes the policy variant.
type Config struct {
	Name      string
	RR        float64
	ATRK      float64
	ModelPath string
}

// New builds the configured policy. The hybrid variant degrades to
// rule-equivalent behavior when no model artifact is available.
func New(cfg Config, scorer *Scorer) (Policy, error) {
	rule := NewRulePolicy(cfg.RR, cfg.ATRK)
	switch cfg.Name {
	case "rule":
		return rule, nil
	case "hybrid":
		return NewHybridPolicy(rule, scorer), nil
	default:
		return nil, fmt.Errorf("unknown policy %q", cfg.Name)
	}
}
