package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/clause"

	"tradeloop/internal/types"
)

// MarketRow is one entry of the market dataset: the frozen feature vector of
// a snapshot, emitted every cycle whether or not a trade followed.
type MarketRow struct {
	SnapshotID     string    `json:"snapshot_id"`
	Symbol         string    `json:"symbol"`
	SnapshotTime   int64     `json:"snapshot_time_utc"`
	FeatureVersion string    `json:"feature_version"`
	FeatureHash    string    `json:"feature_hash"`
	Features       []float64 `json:"features"`
}

// RLTransition is one entry of the RL dataset: state, action and realized
// reward of a completed trade.
type RLTransition struct {
	TradeID        string            `json:"trade_id"`
	SnapshotID     string            `json:"snapshot_id"`
	ExitSnapshotID string            `json:"exit_snapshot_id,omitempty"`
	Symbol         string            `json:"symbol"`
	Features       []float64         `json:"features"`
	FeatureVersion string            `json:"feature_version"`
	FeatureHash    string            `json:"feature_hash"`
	Direction      types.Direction   `json:"direction"`
	Plan           types.RiskPlan    `json:"plan"`
	Reward         types.RewardState `json:"reward"`
}

// ScorerSample is one entry of the scorer dataset: the feature vector of an
// executed trade with its binary outcome label (1 when pnl_r > 0).
type ScorerSample struct {
	TradeID        string    `json:"trade_id"`
	SnapshotID     string    `json:"snapshot_id"`
	Symbol         string    `json:"symbol"`
	Features       []float64 `json:"features"`
	FeatureVersion string    `json:"feature_version"`
	FeatureHash    string    `json:"feature_hash"`
	Label          int       `json:"label"`
	PnLR           float64   `json:"pnl_r"`
}

// DecisionCycle is one entry of the decision journal: what the policy wanted
// and what actually happened, including why nothing happened.
type DecisionCycle struct {
	DecisionID    string              `json:"decision_id"`
	SnapshotID    string              `json:"snapshot_id"`
	Symbol        string              `json:"symbol"`
	CycleTime     int64               `json:"cycle_time_utc"`
	PolicyName    string              `json:"policy_name"`
	Decision      types.TradeDecision `json:"decision"`
	Plan          types.RiskPlan      `json:"plan"`
	Outcome       string              `json:"outcome"`
	BlockedReason string              `json:"blocked_reason,omitempty"`
	TradeID       string              `json:"trade_id,omitempty"`
}

// AppendMarketRow appends keyed by snapshot_id.
func (s *Store) AppendMarketRow(ctx context.Context, row MarketRow) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return err
	}
	model := &marketRowModel{
		SnapshotID:     row.SnapshotID,
		Symbol:         row.Symbol,
		TimeUnix:       row.SnapshotTime,
		FeatureVersion: row.FeatureVersion,
		FeatureHash:    row.FeatureHash,
		Payload:        payload,
		CreatedAtUnix:  time.Now().Unix(),
	}
	return s.appendIdempotent(ctx, model, &marketRowModel{}, "snapshot_id", row.SnapshotID, payload)
}

// AppendRLTransition appends keyed by trade_id.
func (s *Store) AppendRLTransition(ctx context.Context, row RLTransition) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return err
	}
	model := &rlTransitionModel{
		TradeID:       row.TradeID,
		SnapshotID:    row.SnapshotID,
		Symbol:        row.Symbol,
		Payload:       payload,
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.appendIdempotent(ctx, model, &rlTransitionModel{}, "trade_id", row.TradeID, payload)
}

// AppendScorerSample appends keyed by trade_id.
func (s *Store) AppendScorerSample(ctx context.Context, row ScorerSample) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return err
	}
	model := &scorerSampleModel{
		TradeID:       row.TradeID,
		SnapshotID:    row.SnapshotID,
		Symbol:        row.Symbol,
		Label:         row.Label,
		Payload:       payload,
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.appendIdempotent(ctx, model, &scorerSampleModel{}, "trade_id", row.TradeID, payload)
}

// AppendDecisionCycle appends keyed by decision_id.
func (s *Store) AppendDecisionCycle(ctx context.Context, row DecisionCycle) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return err
	}
	model := &decisionCycleModel{
		DecisionID:    row.DecisionID,
		SnapshotID:    row.SnapshotID,
		Symbol:        row.Symbol,
		Outcome:       row.Outcome,
		BlockedReason: row.BlockedReason,
		Payload:       payload,
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.appendIdempotent(ctx, model, &decisionCycleModel{}, "decision_id", row.DecisionID, payload)
}

// appendIdempotent inserts with ON CONFLICT DO NOTHING, then arbitrates the
// no-insert case: a byte-identical stored payload makes the append a no-op,
// anything else is ErrDatasetConflict.
func (s *Store) appendIdempotent(ctx context.Context, model, probe any, keyCol, key string, payload []byte) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: keyCol}}, DoNothing: true}).
		Create(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var existing struct {
		Payload datatypes.JSON
	}
	if err := s.db.WithContext(ctx).
		Model(probe).
		Select("payload").
		Where(fmt.Sprintf("%s = ?", keyCol), key).
		Take(&existing).Error; err != nil {
		return err
	}
	if bytes.Equal(existing.Payload, payload) {
		return nil
	}
	return fmt.Errorf("%w: %s=%s", ErrDatasetConflict, keyCol, key)
}
