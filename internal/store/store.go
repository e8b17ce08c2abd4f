// Package store persists trades, guardrail state, snapshots and the three
// training datasets in one SQLite file. Dataset tables are append-only and
// idempotent on their natural key; trades and guardrail days are upserted.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradeloop/internal/risk"
	"tradeloop/internal/snapshot"
	"tradeloop/internal/trade"
	"tradeloop/internal/types"
)

// ErrDatasetConflict is returned when a dataset row with an existing natural
// key carries a different payload than the stored one. A byte-identical
// re-append is a silent no-op.
var ErrDatasetConflict = errors.New("dataset row conflicts with stored payload")

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *gorm.DB
}

// New opens (or creates) the database at path and migrates the schema.
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: db path is empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&tradeModel{},
		&guardrailDayModel{},
		&snapshotModel{},
		&marketRowModel{},
		&rlTransitionModel{},
		&scorerSampleModel{},
		&decisionCycleModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep contention low, the status server only reads.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveTrade upserts the aggregate keyed by trade_id.
func (s *Store) SaveTrade(ctx context.Context, agg *trade.Aggregate) error {
	model, err := tradeToModel(agg)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Where("trade_id = ?", agg.ID).
		Assign(model).
		FirstOrCreate(&tradeModel{}).Error
}

// LoadOpenTrades returns every aggregate still in OPEN status; used on
// startup to resume monitoring positions that survived a restart.
func (s *Store) LoadOpenTrades(ctx context.Context) ([]*trade.Aggregate, error) {
	var rows []tradeModel
	if err := s.db.WithContext(ctx).
		Where("status = ?", types.StatusOpen).
		Order("opened_at asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*trade.Aggregate, 0, len(rows))
	for i := range rows {
		agg, err := tradeFromModel(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}

// LoadAllTrades returns every stored aggregate, open and closed, with the
// full decision/plan/execution/reward payload. Offline dataset rebuilds walk
// this.
func (s *Store) LoadAllTrades(ctx context.Context) ([]*trade.Aggregate, error) {
	var rows []tradeModel
	if err := s.db.WithContext(ctx).
		Order("opened_at asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*trade.Aggregate, 0, len(rows))
	for i := range rows {
		agg, err := tradeFromModel(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}

// LoadTrade fetches one aggregate by trade_id.
func (s *Store) LoadTrade(ctx context.Context, tradeID string) (*trade.Aggregate, error) {
	var row tradeModel
	if err := s.db.WithContext(ctx).Where("trade_id = ?", tradeID).Take(&row).Error; err != nil {
		return nil, err
	}
	return tradeFromModel(&row)
}

// CountOpenTrades returns the number of OPEN trades, optionally filtered to
// one symbol (empty symbol counts all).
func (s *Store) CountOpenTrades(ctx context.Context, symbol string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&tradeModel{}).Where("status = ?", types.StatusOpen)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// ClosedTradeStats sums realized PnL and counts closed trades; the status
// server reports it.
type ClosedTradeStats struct {
	Count   int64   `json:"count"`
	PnLUSDT float64 `json:"pnl_usdt"`
}

// ClosedStats aggregates closed trades since the given unix time (0 = all).
func (s *Store) ClosedStats(ctx context.Context, sinceUnix int64) (ClosedTradeStats, error) {
	var rows []tradeModel
	q := s.db.WithContext(ctx).Where("status = ?", types.StatusClosed)
	if sinceUnix > 0 {
		q = q.Where("closed_at >= ?", sinceUnix)
	}
	if err := q.Find(&rows).Error; err != nil {
		return ClosedTradeStats{}, err
	}
	stats := ClosedTradeStats{Count: int64(len(rows))}
	for i := range rows {
		if len(rows[i].RewardJSON) == 0 {
			continue
		}
		var reward types.RewardState
		if err := json.Unmarshal(rows[i].RewardJSON, &reward); err == nil {
			stats.PnLUSDT += reward.PnLUSDT
		}
	}
	return stats, nil
}

// LoadGuardrailDay implements risk.StateStore.
func (s *Store) LoadGuardrailDay(date string) (risk.DayState, bool, error) {
	var row guardrailDayModel
	err := s.db.Where("date = ?", date).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return risk.DayState{}, false, nil
	}
	if err != nil {
		return risk.DayState{}, false, err
	}
	return risk.DayState{
		Date:              row.Date,
		RealizedPnLUSDT:   row.RealizedPnLUSDT,
		ConsecutiveLosses: row.ConsecutiveLosses,
		TradesToday:       row.TradesToday,
		LastCloseUnix:     row.LastCloseUnix,
	}, true, nil
}

// SaveGuardrailDay implements risk.StateStore.
func (s *Store) SaveGuardrailDay(state risk.DayState) error {
	model := guardrailDayModel{
		Date:              state.Date,
		RealizedPnLUSDT:   state.RealizedPnLUSDT,
		ConsecutiveLosses: state.ConsecutiveLosses,
		TradesToday:       state.TradesToday,
		LastCloseUnix:     state.LastCloseUnix,
		UpdatedAtUnix:     time.Now().Unix(),
	}
	return s.db.
		Where("date = ?", state.Date).
		Assign(model).
		FirstOrCreate(&guardrailDayModel{}).Error
}

// SaveSnapshot stores the full snapshot payload. Snapshots are immutable:
// re-saving an existing snapshot_id is a no-op.
func (s *Store) SaveSnapshot(ctx context.Context, snap *snapshot.Snapshot) error {
	model := snapshotModel{
		SnapshotID:    snap.ID,
		Symbol:        snap.Symbol,
		SchemaVersion: snap.SchemaVersion,
		TimeUnix:      snap.Time,
		Payload:       snap.JSON(),
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).
		Where("snapshot_id = ?", snap.ID).
		FirstOrCreate(&model).Error
}

// LoadSnapshot rehydrates a stored snapshot document by id.
func (s *Store) LoadSnapshot(ctx context.Context, snapshotID string) (*snapshot.Snapshot, error) {
	var row snapshotModel
	if err := s.db.WithContext(ctx).Where("snapshot_id = ?", snapshotID).Take(&row).Error; err != nil {
		return nil, err
	}
	return snapshot.FromJSON(row.Payload)
}

var _ risk.StateStore = (*Store)(nil)

func tradeToModel(agg *trade.Aggregate) (*tradeModel, error) {
	decision, err := json.Marshal(agg.Decision)
	if err != nil {
		return nil, err
	}
	plan, err := json.Marshal(agg.Plan)
	if err != nil {
		return nil, err
	}
	execution, err := json.Marshal(agg.Execution)
	if err != nil {
		return nil, err
	}
	samples, err := json.Marshal(agg.Samples)
	if err != nil {
		return nil, err
	}
	model := &tradeModel{
		TradeID:       agg.ID,
		SnapshotID:    agg.SnapshotID,
		Symbol:        agg.Symbol,
		Status:        agg.Execution.Status,
		PolicyName:    agg.Decision.PolicyName,
		DecisionJSON:  decision,
		PlanJSON:      plan,
		ExecutionJSON: execution,
		SamplesJSON:   samples,
		OpenedAtUnix:  agg.OpenedAt,
		ClosedAtUnix:  agg.ClosedAt,
		UpdatedAtUnix: time.Now().Unix(),
	}
	if agg.Reward != nil {
		reward, err := json.Marshal(agg.Reward)
		if err != nil {
			return nil, err
		}
		model.RewardJSON = reward
	}
	return model, nil
}

func tradeFromModel(model *tradeModel) (*trade.Aggregate, error) {
	agg := &trade.Aggregate{
		ID:         model.TradeID,
		SnapshotID: model.SnapshotID,
		Symbol:     model.Symbol,
		OpenedAt:   model.OpenedAtUnix,
		ClosedAt:   model.ClosedAtUnix,
	}
	if err := json.Unmarshal(model.DecisionJSON, &agg.Decision); err != nil {
		return nil, fmt.Errorf("trade %s: decoding decision failed: %w", model.TradeID, err)
	}
	if err := json.Unmarshal(model.PlanJSON, &agg.Plan); err != nil {
		return nil, fmt.Errorf("trade %s: decoding plan failed: %w", model.TradeID, err)
	}
	if err := json.Unmarshal(model.ExecutionJSON, &agg.Execution); err != nil {
		return nil, fmt.Errorf("trade %s: decoding execution failed: %w", model.TradeID, err)
	}
	if len(model.SamplesJSON) > 0 {
		if err := json.Unmarshal(model.SamplesJSON, &agg.Samples); err != nil {
			return nil, fmt.Errorf("trade %s: decoding samples failed: %w", model.TradeID, err)
		}
	}
	if len(model.RewardJSON) > 0 {
		var reward types.RewardState
		if err := json.Unmarshal(model.RewardJSON, &reward); err != nil {
			return nil, fmt.Errorf("trade %s: decoding reward failed: %w", model.TradeID, err)
		}
		agg.Reward = &reward
	}
	return agg, nil
}
