// Package trade owns the trade aggregate: one decision, its sizing plan, the
// execution facts reported by the venue and the realized reward. The
// aggregate is the unit of persistence and the unit of dataset emission.
package trade

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"tradeloop/internal/types"
)

var (
	// ErrTradeClosed is returned when execution facts arrive for a trade
	// that has already closed. Closed trades are immutable except for
	// reward correction.
	ErrTradeClosed = errors.New("trade already closed")

	// ErrNoEntry is returned when an exit fill arrives before any entry
	// fill. An exit without an entry is a lifecycle bug, never a valid
	// venue report.
	ErrNoEntry = errors.New("exit fill without entry fill")

	// ErrTradeOpen is returned when a reward is attached to a trade that
	// has not closed yet.
	ErrTradeOpen = errors.New("trade still open")
)

// ExcursionSample is one observed mark price while the trade was open, kept
// for MFE/MAE resolution.
type ExcursionSample struct {
	Price float64 `json:"price"`
	Time  int64   `json:"time_utc"`
}

// Aggregate is the full lifecycle record of one trade.
type Aggregate struct {
	ID         string               `json:"trade_id"`
	SnapshotID string               `json:"snapshot_id"`
	Symbol     string               `json:"symbol"`
	Decision   types.TradeDecision  `json:"decision"`
	Plan       types.RiskPlan       `json:"plan"`
	Execution  types.ExecutionState `json:"execution"`
	Reward     *types.RewardState   `json:"reward,omitempty"`
	Samples    []ExcursionSample    `json:"samples,omitempty"`
	OpenedAt   int64                `json:"opened_at_utc"`
	ClosedAt   int64                `json:"closed_at_utc,omitempty"`
}

// Open creates a new OPEN aggregate from an accepted plan. The caller fills
// in venue metadata and the entry fill afterwards.
func Open(decision types.TradeDecision, plan types.RiskPlan, openedAt int64) (*Aggregate, error) {
	if !plan.Accepted() {
		return nil, fmt.Errorf("cannot open trade from %s plan", plan.Outcome)
	}
	return &Aggregate{
		ID:         uuid.NewString(),
		SnapshotID: decision.SnapshotID,
		Symbol:     decision.Symbol,
		Decision:   decision,
		Plan:       plan,
		Execution: types.ExecutionState{
			Status:     types.StatusOpen,
			MarginMode: plan.MarginMode,
			Leverage:   plan.Leverage,
			Qty:        plan.Quantity,
			Notional:   plan.Notional,
		},
		OpenedAt: openedAt,
	}, nil
}

// Closed reports whether the trade has reached its terminal state.
func (a *Aggregate) Closed() bool {
	return a.Execution.Status == types.StatusClosed
}

// AttachEntry records (or corrects) the entry fill. Corrections are allowed
// only while the trade is open: a late, more accurate average fill price from
// the venue replaces the provisional one.
func (a *Aggregate) AttachEntry(fill types.Fill) error {
	if a.Closed() {
		return ErrTradeClosed
	}
	if fill.Price <= 0 || fill.Time <= 0 {
		return fmt.Errorf("invalid entry fill price=%v time=%v", fill.Price, fill.Time)
	}
	a.Execution.EntryFillPrice = fill.Price
	a.Execution.EntryTime = fill.Time
	a.Execution.FeesTotal += fill.Fee
	return nil
}

// AttachExit records the exit fill and moves the trade to CLOSED. exitType
// names the trigger ("tp", "sl", "manual", "liquidation").
func (a *Aggregate) AttachExit(fill types.Fill, exitType string) error {
	if a.Closed() {
		return ErrTradeClosed
	}
	if !a.Execution.HasEntry() {
		return ErrNoEntry
	}
	if fill.Price <= 0 || fill.Time <= 0 {
		return fmt.Errorf("invalid exit fill price=%v time=%v", fill.Price, fill.Time)
	}
	a.Execution.ExitFillPrice = fill.Price
	a.Execution.ExitTime = fill.Time
	a.Execution.ExitType = exitType
	a.Execution.FeesTotal += fill.Fee
	a.Execution.Status = types.StatusClosed
	a.ClosedAt = fill.Time
	return nil
}

// AttachReward stores the resolved reward. Only closed trades carry rewards;
// re-attaching overwrites, which is how corrections are expressed.
func (a *Aggregate) AttachReward(reward types.RewardState) error {
	if !a.Closed() {
		return ErrTradeOpen
	}
	a.Reward = &reward
	return nil
}

// ObservePrice records a mark price seen while the trade is open. Samples
// after close are dropped silently: the monitor may race the close by one
// tick.
func (a *Aggregate) ObservePrice(price float64, at int64) {
	if a.Closed() || price <= 0 {
		return
	}
	a.Samples = append(a.Samples, ExcursionSample{Price: price, Time: at})
}
