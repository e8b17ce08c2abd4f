package store

import "gorm.io/datatypes"

type tradeModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	TradeID       string         `gorm:"column:trade_id;uniqueIndex"`
	SnapshotID    string         `gorm:"column:snapshot_id;index"`
	Symbol        string         `gorm:"column:symbol;index"`
	Status        string         `gorm:"column:status;index"`
	PolicyName    string         `gorm:"column:policy_name"`
	DecisionJSON  datatypes.JSON `gorm:"column:decision_json;type:TEXT"`
	PlanJSON      datatypes.JSON `gorm:"column:plan_json;type:TEXT"`
	ExecutionJSON datatypes.JSON `gorm:"column:execution_json;type:TEXT"`
	RewardJSON    datatypes.JSON `gorm:"column:reward_json;type:TEXT"`
	SamplesJSON   datatypes.JSON `gorm:"column:samples_json;type:TEXT"`
	OpenedAtUnix  int64          `gorm:"column:opened_at"`
	ClosedAtUnix  int64          `gorm:"column:closed_at"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (tradeModel) TableName() string { return "trades" }

type guardrailDayModel struct {
	ID                int64   `gorm:"column:id;primaryKey"`
	Date              string  `gorm:"column:date;uniqueIndex"`
	RealizedPnLUSDT   float64 `gorm:"column:realized_pnl_usdt"`
	ConsecutiveLosses int     `gorm:"column:consecutive_losses"`
	TradesToday       int     `gorm:"column:trades_today"`
	LastCloseUnix     int64   `gorm:"column:last_close_unix"`
	UpdatedAtUnix     int64   `gorm:"column:updated_at"`
}

func (guardrailDayModel) TableName() string { return "guardrail_days" }

type snapshotModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	SnapshotID    string         `gorm:"column:snapshot_id;uniqueIndex"`
	Symbol        string         `gorm:"column:symbol;index"`
	SchemaVersion string         `gorm:"column:schema_version"`
	TimeUnix      int64          `gorm:"column:snapshot_time;index"`
	Payload       datatypes.JSON `gorm:"column:payload;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (snapshotModel) TableName() string { return "snapshots" }

type marketRowModel struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	SnapshotID     string         `gorm:"column:snapshot_id;uniqueIndex"`
	Symbol         string         `gorm:"column:symbol;index"`
	TimeUnix       int64          `gorm:"column:snapshot_time;index"`
	FeatureVersion string         `gorm:"column:feature_version"`
	FeatureHash    string         `gorm:"column:feature_hash"`
	Payload        datatypes.JSON `gorm:"column:payload;type:TEXT"`
	CreatedAtUnix  int64          `gorm:"column:created_at"`
}

func (marketRowModel) TableName() string { return "market_rows" }

type rlTransitionModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	TradeID       string         `gorm:"column:trade_id;uniqueIndex"`
	SnapshotID    string         `gorm:"column:snapshot_id;index"`
	Symbol        string         `gorm:"column:symbol;index"`
	Payload       datatypes.JSON `gorm:"column:payload;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (rlTransitionModel) TableName() string { return "rl_transitions" }

type scorerSampleModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	TradeID       string         `gorm:"column:trade_id;uniqueIndex"`
	SnapshotID    string         `gorm:"column:snapshot_id;index"`
	Symbol        string         `gorm:"column:symbol;index"`
	Label         int            `gorm:"column:label"`
	Payload       datatypes.JSON `gorm:"column:payload;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (scorerSampleModel) TableName() string { return "scorer_samples" }

type decisionCycleModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	DecisionID    string         `gorm:"column:decision_id;uniqueIndex"`
	SnapshotID    string         `gorm:"column:snapshot_id;index"`
	Symbol        string         `gorm:"column:symbol;index"`
	Outcome       string         `gorm:"column:outcome;index"`
	BlockedReason string         `gorm:"column:blocked_reason"`
	Payload       datatypes.JSON `gorm:"column:payload;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (decisionCycleModel) TableName() string { return "decision_cycles" }
