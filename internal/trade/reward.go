package trade

import (
	"errors"
	"fmt"

	"tradeloop/internal/types"
)

// RewardVersion tags every resolved reward; bump it whenever a formula
// changes so downstream training can partition by semantics.
const RewardVersion = "reward_v1"

// ErrUnresolvable is returned when a closed trade is missing the facts the
// reward formulas need.
var ErrUnresolvable = errors.New("trade reward unresolvable")

// Resolve computes the reward of a closed trade:
//
//	pnl_raw = (exit - entry) * dir_sign * qty - fees
//	pnl_r   = pnl_raw / risk_usdt
//
// MFE and MAE are the best and worst observed excursions in R units; MFE is
// clamped to >= 0 and MAE to <= 0 for both directions.
func Resolve(a *Aggregate) (types.RewardState, error) {
	if !a.Closed() {
		return types.RewardState{}, fmt.Errorf("%w: trade %s still open", ErrUnresolvable, a.ID)
	}
	exec := a.Execution
	if !exec.HasEntry() || exec.ExitFillPrice <= 0 || exec.ExitTime <= 0 {
		return types.RewardState{}, fmt.Errorf("%w: trade %s missing fills", ErrUnresolvable, a.ID)
	}
	sign := a.Decision.Direction.Sign()
	if sign == 0 {
		return types.RewardState{}, fmt.Errorf("%w: trade %s has no direction", ErrUnresolvable, a.ID)
	}
	riskUSDT := a.Plan.RiskUSDT
	if riskUSDT <= 0 {
		return types.RewardState{}, fmt.Errorf("%w: trade %s has no risk denominator", ErrUnresolvable, a.ID)
	}

	fees := exec.FeesTotal + exec.FundingPaid
	pnlRaw := (exec.ExitFillPrice-exec.EntryFillPrice)*sign*exec.Qty - fees
	mfe, mae := excursions(a)

	return types.RewardState{
		PnLRaw:         pnlRaw,
		PnLR:           pnlRaw / riskUSDT,
		PnLUSDT:        pnlRaw,
		MFE:            mfe,
		MAE:            mae,
		HoldingSeconds: exec.ExitTime - exec.EntryTime,
		RiskUSDT:       riskUSDT,
		Qty:            exec.Qty,
		FeesUSDT:       fees,
		RewardVersion:  RewardVersion,
	}, nil
}

// excursions scans the observed samples plus the exit fill. Excursion of one
// price is (price - entry) * dir_sign / risk_unit: positive when the trade
// was in profit at that mark regardless of direction.
func excursions(a *Aggregate) (mfe, mae float64) {
	riskUnit := a.Decision.RiskUnit
	if riskUnit <= 0 {
		return 0, 0
	}
	entry := a.Execution.EntryFillPrice
	sign := a.Decision.Direction.Sign()

	at := func(price float64) float64 {
		return (price - entry) * sign / riskUnit
	}
	for _, s := range a.Samples {
		r := at(s.Price)
		if r > mfe {
			mfe = r
		}
		if r < mae {
			mae = r
		}
	}
	if r := at(a.Execution.ExitFillPrice); r > mfe {
		mfe = r
	} else if r < mae {
		mae = r
	}
	return mfe, mae
}
