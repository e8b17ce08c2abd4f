package policy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeloop/internal/snapshot"
	"tradeloop/internal/types"
)

func testSnapshot(trend1h string) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		SchemaVersion: snapshot.SchemaVersion,
		ID:            "snap-1",
		Symbol:        "BTCUSDT",
		Time:          1760000000,
		LTF: snapshot.LTF{
			TF: "5m",
			Price: snapshot.PriceBlock{
				Close:  100,
				ATRPct: 0.02,
			},
		},
		HTF: map[string]snapshot.HTF{
			"1h": {Trend: trend1h},
		},
		Features: []float64{0.02, 1},
	}
}

func TestRulePolicyLong(t *testing.T) {
	p := NewRulePolicy(2.0, 1.0)
	d, err := p.Decide(testSnapshot("up"))
	require.NoError(t, err)

	assert.Equal(t, types.DirectionLong, d.Direction)
	assert.Equal(t, 100.0, d.EntryPrice)
	// stop distance = atr_pct * atr_k * entry = 2
	assert.InDelta(t, 98.0, d.StopPrice, 1e-9)
	assert.InDelta(t, 104.0, d.TakeProfit, 1e-9)
	assert.InDelta(t, 2.0, d.RiskUnit, 1e-9)
	assert.Equal(t, 1.0, d.Confidence)
	assert.Equal(t, "rule_v1", d.PolicyName)
	assert.Equal(t, "snap-1", d.SnapshotID)
}

func TestRulePolicyShortOnDowntrend(t *testing.T) {
	p := NewRulePolicy(2.0, 1.0)
	d, err := p.Decide(testSnapshot("down"))
	require.NoError(t, err)

	assert.Equal(t, types.DirectionShort, d.Direction)
	assert.InDelta(t, 102.0, d.StopPrice, 1e-9)
	assert.InDelta(t, 96.0, d.TakeProfit, 1e-9)
}

func TestRulePolicyStopFloor(t *testing.T) {
	snap := testSnapshot("up")
	snap.LTF.Price.ATRPct = 0 // degenerate volatility
	p := NewRulePolicy(2.0, 1.0)

	d, err := p.Decide(snap)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, d.RiskUnit, 1e-9, "stop distance floors at 0.1%% of entry")
}

func TestRulePolicyRejectsNoPrice(t *testing.T) {
	snap := testSnapshot("up")
	snap.LTF.Price.Close = 0
	p := NewRulePolicy(2.0, 1.0)

	_, err := p.Decide(snap)
	assert.Error(t, err)
}

func TestHybridUsesScorerConfidence(t *testing.T) {
	scorer := &Scorer{}
	scorer.model = &artifact{Weights: []float64{1, 1}, Bias: 0}
	p := NewHybridPolicy(NewRulePolicy(2.0, 1.0), scorer)

	d, err := p.Decide(testSnapshot("up"))
	require.NoError(t, err)

	want := 1.0 / (1.0 + math.Exp(-(0.02 + 1)))
	assert.InDelta(t, want, d.Confidence, 1e-9)
	assert.Equal(t, "hybrid_v1", d.PolicyName)
	// the trade shape still comes from the rule policy
	assert.Equal(t, types.DirectionLong, d.Direction)
	assert.InDelta(t, 98.0, d.StopPrice, 1e-9)
}

func TestHybridWithoutModelBehavesLikeRule(t *testing.T) {
	scorer := NewScorer("", "")
	p := NewHybridPolicy(NewRulePolicy(2.0, 1.0), scorer)

	d, err := p.Decide(testSnapshot("up"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.Confidence)
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	_, err := New(Config{Name: "martingale"}, nil)
	assert.Error(t, err)
}
