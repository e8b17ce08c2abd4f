// Package notifier fans operational events out to an alert channel. The loop
// reports every notable event here; the notifier decides which severity is
// worth waking someone up for.
package notifier

import "tradeloop/internal/logger"

// Severity of an event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Well-known event names.
const (
	EventTradeOpened      = "trade_opened"
	EventTradeClosed      = "trade_closed"
	EventGuardrailBlocked = "guardrail_blocked"
	EventExecutionFailed  = "execution_failed"
	EventUnresolvable     = "unresolvable_trade"
	EventDatasetConflict  = "dataset_conflict"
)

// Notifier delivers one event. Implementations must not block the loop.
type Notifier interface {
	Alert(severity Severity, event, detail string)
}

// LogNotifier writes events to the structured log, mapping severity onto log
// level. It is the default sink; a chat webhook can replace it without
// touching the loop.
type LogNotifier struct {
	// MinSeverity drops events below it. Empty means everything.
	MinSeverity Severity
}

func (n *LogNotifier) Alert(severity Severity, event, detail string) {
	if n.MinSeverity == SeverityWarn && severity == SeverityInfo {
		return
	}
	if n.MinSeverity == SeverityCritical && severity != SeverityCritical {
		return
	}
	switch severity {
	case SeverityCritical:
		logger.Errorf("ALERT %s: %s", event, detail)
	case SeverityWarn:
		logger.Warnf("alert %s: %s", event, detail)
	default:
		logger.Infof("event %s: %s", event, detail)
	}
}

var _ Notifier = (*LogNotifier)(nil)
