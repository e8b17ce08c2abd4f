package config

import "fmt"

// KeyError is a fatal configuration error naming the offending key.
type KeyError struct {
	Key    string
	Reason string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("config key %q invalid: %s", e.Key, e.Reason)
}

func keyErr(key, reason string) error { return &KeyError{Key: key, Reason: reason} }

func validate(c *Config) error {
	if c.Risk.RiskPerTradePct < 0 {
		return keyErr("risk.risk_per_trade_pct", "must not be negative")
	}
	if c.Risk.RiskPerTradeUSDT < 0 {
		return keyErr("risk.risk_per_trade_usdt", "must not be negative")
	}
	if c.Risk.RiskPerTradePct == 0 && c.Risk.RiskPerTradeUSDT == 0 {
		return keyErr("risk.risk_per_trade_pct", "either pct or usdt budget is required")
	}
	if c.Risk.MarginUtilization <= 0 || c.Risk.MarginUtilization > 1 {
		return keyErr("risk.margin_utilization", "must be in (0, 1]")
	}
	if c.Risk.MaxLeverage < 1 {
		return keyErr("risk.max_leverage", "must be >= 1")
	}
	if c.Risk.DefaultLeverage < 1 || c.Risk.DefaultLeverage > c.Risk.MaxLeverage {
		return keyErr("risk.default_leverage", "must be in [1, max_leverage]")
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
		return keyErr("risk.min_confidence", "must be in [0, 1]")
	}
	switch c.Risk.MinNotionalPolicy {
	case "skip", "override_with_cap":
	default:
		return keyErr("risk.min_notional_policy", "must be skip or override_with_cap")
	}
	if c.Risk.OverrideRiskMult < 1 {
		return keyErr("risk.override_risk_multiplier", "must be >= 1")
	}
	if c.Guardrail.MaxDailyLossUSDT < 0 {
		return keyErr("guardrail.max_daily_loss_usdt", "must not be negative")
	}
	if c.Guardrail.MaxDailyLossPct < 0 {
		return keyErr("guardrail.max_daily_loss_pct", "must not be negative")
	}
	if c.Guardrail.CooldownSec < 0 {
		return keyErr("guardrail.cooldown_sec", "must not be negative")
	}
	if c.Guardrail.MaxTradesPerDay < 0 {
		return keyErr("guardrail.max_trades_per_day", "must not be negative")
	}
	if c.Trading.CycleSec < 5 {
		return keyErr("trading.cycle_sec", "must be >= 5")
	}
	if len(c.Trading.Symbols) == 0 {
		return keyErr("trading.symbols", "at least one symbol is required")
	}
	switch c.Policy.Name {
	case "rule", "hybrid":
	default:
		return keyErr("policy.name", "must be rule or hybrid")
	}
	if c.Policy.RR <= 0 {
		return keyErr("policy.rr", "must be > 0")
	}
	if c.Feature.SpecPath == "" {
		return keyErr("feature.spec_path", "is required")
	}
	if c.Data.DBPath == "" {
		return keyErr("data.db_path", "is required")
	}
	return nil
}
