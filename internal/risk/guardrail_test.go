package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStateStore struct {
	days  map[string]DayState
	saves int
}

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{days: map[string]DayState{}}
}

func (m *memoryStateStore) LoadGuardrailDay(date string) (DayState, bool, error) {
	state, ok := m.days[date]
	return state, ok, nil
}

func (m *memoryStateStore) SaveGuardrailDay(state DayState) error {
	m.days[state.Date] = state
	m.saves++
	return nil
}

func TestTrackerConsecutiveLosses(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	guard, err := NewTracker(GuardrailConfig{MaxConsecutiveLosses: 3}, nil, now)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		gate := guard.Check(now, 1000)
		require.True(t, gate.Allowed, "check %d should pass", i)
		require.NoError(t, guard.RecordClose(now, -10))
	}

	gate := guard.Check(now, 1000)
	assert.False(t, gate.Allowed)
	assert.Equal(t, DenyConsecutiveLosses, gate.Reason)
}

func TestTrackerWinResetsStreak(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	guard, err := NewTracker(GuardrailConfig{MaxConsecutiveLosses: 2}, nil, now)
	require.NoError(t, err)

	require.NoError(t, guard.RecordClose(now, -10))
	require.NoError(t, guard.RecordClose(now, 25))
	require.NoError(t, guard.RecordClose(now, -10))

	gate := guard.Check(now, 1000)
	assert.True(t, gate.Allowed)
	assert.Equal(t, 1, guard.State().ConsecutiveLosses)
}

func TestTrackerDailyLossUSDT(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	guard, err := NewTracker(GuardrailConfig{MaxDailyLossUSDT: 50}, nil, now)
	require.NoError(t, err)

	require.NoError(t, guard.RecordClose(now, -30))
	assert.True(t, guard.Check(now, 1000).Allowed)

	require.NoError(t, guard.RecordClose(now, -20))
	gate := guard.Check(now, 1000)
	assert.False(t, gate.Allowed)
	assert.Equal(t, DenyDailyLossUSDT, gate.Reason)
}

func TestTrackerDailyLossPct(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	guard, err := NewTracker(GuardrailConfig{MaxDailyLossPct: 2.0}, nil, now)
	require.NoError(t, err)

	require.NoError(t, guard.RecordClose(now, -25))

	// 25 USDT down on 1000 equity is 2.5%, past the 2% limit.
	gate := guard.Check(now, 1000)
	assert.False(t, gate.Allowed)
	assert.Equal(t, DenyDailyLossPct, gate.Reason)

	// The same loss against a larger account stays under the limit.
	assert.True(t, guard.Check(now, 5000).Allowed)
}

func TestTrackerCooldown(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	guard, err := NewTracker(GuardrailConfig{CooldownSec: 300}, nil, now)
	require.NoError(t, err)

	require.NoError(t, guard.RecordClose(now, -10))

	gate := guard.Check(now.Add(2*time.Minute), 1000)
	assert.False(t, gate.Allowed)
	assert.Equal(t, DenyCooldown, gate.Reason)

	assert.True(t, guard.Check(now.Add(6*time.Minute), 1000).Allowed)
}

func TestTrackerCooldownAfterWinningClose(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	guard, err := NewTracker(GuardrailConfig{CooldownSec: 300}, nil, now)
	require.NoError(t, err)

	require.NoError(t, guard.RecordClose(now, 10))

	gate := guard.Check(now.Add(10*time.Second), 1000)
	assert.False(t, gate.Allowed)
	assert.Equal(t, DenyCooldown, gate.Reason)

	assert.True(t, guard.Check(now.Add(6*time.Minute), 1000).Allowed)
}

func TestTrackerMaxTradesPerDay(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	guard, err := NewTracker(GuardrailConfig{MaxTradesPerDay: 2}, nil, now)
	require.NoError(t, err)

	require.NoError(t, guard.RecordOpen(now))
	assert.True(t, guard.Check(now, 1000).Allowed)

	require.NoError(t, guard.RecordOpen(now))
	gate := guard.Check(now, 1000)
	assert.False(t, gate.Allowed)
	assert.Equal(t, DenyTradesPerDay, gate.Reason)
}

func TestTrackerUTCDayRollover(t *testing.T) {
	evening := time.Date(2026, 3, 10, 23, 50, 0, 0, time.UTC)
	guard, err := NewTracker(GuardrailConfig{MaxConsecutiveLosses: 1, MaxTradesPerDay: 1}, nil, evening)
	require.NoError(t, err)

	require.NoError(t, guard.RecordOpen(evening))
	require.NoError(t, guard.RecordClose(evening, -10))
	require.False(t, guard.Check(evening, 1000).Allowed)

	nextDay := time.Date(2026, 3, 11, 0, 5, 0, 0, time.UTC)
	gate := guard.Check(nextDay, 1000)
	assert.True(t, gate.Allowed)

	state := guard.State()
	assert.Equal(t, "2026-03-11", state.Date)
	assert.Zero(t, state.TradesToday)
	assert.Zero(t, state.ConsecutiveLosses)
	assert.Zero(t, state.RealizedPnLUSDT)
}

func TestTrackerPersistsAndRestores(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newMemoryStateStore()

	guard, err := NewTracker(GuardrailConfig{MaxDailyLossUSDT: 50}, store, now)
	require.NoError(t, err)
	require.NoError(t, guard.RecordOpen(now))
	require.NoError(t, guard.RecordClose(now, -60))
	assert.Positive(t, store.saves)

	// A restart mid-day resumes with the accumulated counters.
	restored, err := NewTracker(GuardrailConfig{MaxDailyLossUSDT: 50}, store, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, guard.State(), restored.State())

	gate := restored.Check(now.Add(time.Minute), 1000)
	assert.False(t, gate.Allowed)
	assert.Equal(t, DenyDailyLossUSDT, gate.Reason)
}
