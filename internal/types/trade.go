package types

// Direction of a proposed or open position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionNone  Direction = "NONE"
)

// Sign returns +1 for LONG, -1 for SHORT and 0 otherwise.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionLong:
		return 1
	case DirectionShort:
		return -1
	}
	return 0
}

// TradeDecision is the policy output for one snapshot. RiskUnit is always
// abs(EntryPrice - StopPrice); it is stored explicitly because every
// downstream consumer (sizing, reward, datasets) divides by it.
type TradeDecision struct {
	SnapshotID string    `json:"snapshot_id"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	StopPrice  float64   `json:"sl_price"`
	TakeProfit float64   `json:"tp_price"`
	RiskReward float64   `json:"rr"`
	RiskUnit   float64   `json:"risk_unit"`
	Confidence float64   `json:"confidence"`
	PolicyName string    `json:"policy_name"`
	DecidedAt  int64     `json:"decision_time_utc"`
}

// PlanOutcome is the terminal state of a sizing pass.
type PlanOutcome string

const (
	PlanAccepted   PlanOutcome = "accepted"
	PlanSkipped    PlanOutcome = "skipped"
	PlanOverridden PlanOutcome = "overridden"
)

// Skip / override reasons. These are steady-state outcomes, not errors.
const (
	ReasonGuardrail        = "guardrail"
	ReasonLowConfidence    = "low_confidence"
	ReasonInvalidStop      = "invalid_stop"
	ReasonInvalidAccount   = "account_invalid"
	ReasonBelowMinQty      = "below_min_qty"
	ReasonMarginExceeded   = "margin_exceeded"
	ReasonBelowMinNotional = "below_min_notional"
	ReasonOverrideRiskCap  = "override_risk_cap"
	ReasonMinNotionalBump  = "min_notional"
)

// RiskPlan is the executable, capital-bounded form of a decision.
type RiskPlan struct {
	Outcome    PlanOutcome `json:"outcome"`
	Reason     string      `json:"reason,omitempty"`
	Quantity   float64     `json:"qty"`
	Notional   float64     `json:"notional_usdt"`
	Leverage   int         `json:"leverage"`
	MarginMode string      `json:"margin_mode"`
	RiskUSDT   float64     `json:"risk_usdt"`
	RiskPct    float64     `json:"risk_pct"`
}

// Accepted reports whether an order may be placed from this plan.
func (p RiskPlan) Accepted() bool {
	return p.Outcome == PlanAccepted || p.Outcome == PlanOverridden
}

// AccountState is the slice of account data sizing needs.
type AccountState struct {
	EquityUSDT float64 `json:"equity_usdt"`
	FreeUSDT   float64 `json:"free_usdt"`
}

// ExchangeConstraints are the per-symbol filters the venue enforces.
type ExchangeConstraints struct {
	MinQty      float64 `json:"min_qty"`
	QtyStep     float64 `json:"qty_step"`
	MinNotional float64 `json:"min_notional_usdt"`
	MaxLeverage int     `json:"max_leverage"`
}

// Fill is a single execution report (entry or exit).
type Fill struct {
	Price float64 `json:"price"`
	Time  int64   `json:"time_utc"`
	Fee   float64 `json:"fee"`
}

// Execution status values.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// ExecutionState tracks the fills and venue metadata of one trade.
type ExecutionState struct {
	Status         string  `json:"status"`
	EntryTime      int64   `json:"entry_time_utc,omitempty"`
	EntryFillPrice float64 `json:"entry_fill_price,omitempty"`
	ExitTime       int64   `json:"exit_time_utc,omitempty"`
	ExitFillPrice  float64 `json:"exit_fill_price,omitempty"`
	ExitType       string  `json:"exit_type,omitempty"`
	FeesTotal      float64 `json:"fees_total"`
	FundingPaid    float64 `json:"funding_paid"`

	Exchange      string  `json:"exchange,omitempty"`
	MarginMode    string  `json:"margin_mode,omitempty"`
	Leverage      int     `json:"leverage,omitempty"`
	Qty           float64 `json:"qty,omitempty"`
	Notional      float64 `json:"notional,omitempty"`
	EntryOrderID  string  `json:"entry_order_id,omitempty"`
	TPOrderID     string  `json:"tp_order_id,omitempty"`
	SLOrderID     string  `json:"sl_order_id,omitempty"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
}

// HasEntry reports whether an entry fill has been attached.
func (e ExecutionState) HasEntry() bool {
	return e.EntryTime > 0 && e.EntryFillPrice > 0
}

// RewardState is the realized outcome of a closed trade. Computed once at
// close; a later recomputation is a correction, never a new fact.
type RewardState struct {
	PnLRaw         float64 `json:"pnl_raw"`
	PnLR           float64 `json:"pnl_r"`
	PnLUSDT        float64 `json:"pnl_usdt"`
	MFE            float64 `json:"mfe"`
	MAE            float64 `json:"mae"`
	HoldingSeconds int64   `json:"holding_seconds"`
	RiskUSDT       float64 `json:"risk_usdt"`
	Qty            float64 `json:"qty"`
	FeesUSDT       float64 `json:"fees_usdt"`
	RewardVersion  string  `json:"reward_version"`
}
