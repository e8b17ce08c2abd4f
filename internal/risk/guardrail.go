package risk

import (
	"fmt"
	"sync"
	"time"

	"tradeloop/internal/logger"
)

// GuardrailConfig are the account-preservation limits. A zero value disables
// the corresponding limit.
type GuardrailConfig struct {
	MaxDailyLossUSDT     float64
	MaxDailyLossPct      float64
	MaxConsecutiveLosses int
	CooldownSec          int
	MaxTradesPerDay      int
}

// DayState is the durable guardrail ledger for one UTC day. Counters reset at
// the UTC midnight rollover; nothing carries across days.
type DayState struct {
	Date              string  `json:"date"`
	RealizedPnLUSDT   float64 `json:"realized_pnl_usdt"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	TradesToday       int     `json:"trades_today"`
	LastCloseUnix     int64   `json:"last_close_unix"`
}

// StateStore persists guardrail day state so limits survive restarts.
type StateStore interface {
	LoadGuardrailDay(date string) (DayState, bool, error)
	SaveGuardrailDay(state DayState) error
}

// GateDecision is the outcome of one guardrail check.
type GateDecision struct {
	Allowed bool
	Reason  string
}

// Deny reasons reported by Check.
const (
	DenyDailyLossUSDT     = "max_daily_loss_usdt"
	DenyDailyLossPct      = "max_daily_loss_pct"
	DenyConsecutiveLosses = "max_consecutive_losses"
	DenyCooldown          = "cooldown"
	DenyTradesPerDay      = "max_trades_per_day"
)

// Tracker enforces the daily guardrails. All methods are safe for concurrent
// use; every mutation is persisted before it takes effect on later checks.
type Tracker struct {
	cfg   GuardrailConfig
	store StateStore

	mu    sync.Mutex
	state DayState
}

// NewTracker loads today's state from the store, so a restart mid-day resumes
// with the counters already accumulated.
func NewTracker(cfg GuardrailConfig, store StateStore, now time.Time) (*Tracker, error) {
	t := &Tracker{cfg: cfg, store: store}
	date := utcDay(now)
	if store != nil {
		state, ok, err := store.LoadGuardrailDay(date)
		if err != nil {
			return nil, fmt.Errorf("loading guardrail state for %s failed: %w", date, err)
		}
		if ok {
			t.state = state
			logger.Infof("guardrail state restored: date=%s pnl=%.2f losses=%d trades=%d",
				state.Date, state.RealizedPnLUSDT, state.ConsecutiveLosses, state.TradesToday)
			return t, nil
		}
	}
	t.state = DayState{Date: date}
	return t, nil
}

// Check evaluates every limit against the current day state. equity is the
// current account equity, used for the percentage loss limit.
func (t *Tracker) Check(now time.Time, equity float64) GateDecision {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(now)

	if t.cfg.MaxDailyLossUSDT > 0 && t.state.RealizedPnLUSDT <= -t.cfg.MaxDailyLossUSDT {
		return GateDecision{Reason: DenyDailyLossUSDT}
	}
	if t.cfg.MaxDailyLossPct > 0 && equity > 0 {
		lossPct := -t.state.RealizedPnLUSDT / equity * 100
		if lossPct >= t.cfg.MaxDailyLossPct {
			return GateDecision{Reason: DenyDailyLossPct}
		}
	}
	if t.cfg.MaxConsecutiveLosses > 0 && t.state.ConsecutiveLosses >= t.cfg.MaxConsecutiveLosses {
		return GateDecision{Reason: DenyConsecutiveLosses}
	}
	if t.cfg.CooldownSec > 0 && t.state.LastCloseUnix > 0 {
		elapsed := now.Unix() - t.state.LastCloseUnix
		if elapsed < int64(t.cfg.CooldownSec) {
			return GateDecision{Reason: DenyCooldown}
		}
	}
	if t.cfg.MaxTradesPerDay > 0 && t.state.TradesToday >= t.cfg.MaxTradesPerDay {
		return GateDecision{Reason: DenyTradesPerDay}
	}
	return GateDecision{Allowed: true}
}

// RecordOpen counts a newly opened trade against the daily trade limit.
func (t *Tracker) RecordOpen(now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(now)
	t.state.TradesToday++
	return t.persistLocked()
}

// RecordClose folds a realized PnL into the day ledger. Every close starts
// the cooldown; a losing close extends the consecutive-loss streak, a winning
// or flat close resets it.
func (t *Tracker) RecordClose(now time.Time, pnlUSDT float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(now)
	t.state.RealizedPnLUSDT += pnlUSDT
	t.state.LastCloseUnix = now.Unix()
	if pnlUSDT < 0 {
		t.state.ConsecutiveLosses++
	} else {
		t.state.ConsecutiveLosses = 0
	}
	return t.persistLocked()
}

// State returns a copy of the current day ledger.
func (t *Tracker) State() DayState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) rolloverLocked(now time.Time) {
	date := utcDay(now)
	if date == t.state.Date {
		return
	}
	logger.Infof("guardrail day rollover: %s -> %s", t.state.Date, date)
	t.state = DayState{Date: date}
	if err := t.persistLocked(); err != nil {
		logger.Errorf("persisting guardrail rollover failed: %v", err)
	}
}

func (t *Tracker) persistLocked() error {
	if t.store == nil {
		return nil
	}
	return t.store.SaveGuardrailDay(t.state)
}

func utcDay(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}
