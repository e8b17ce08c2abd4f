package config

// Mode is the canonical runtime mode after legacy normalization.
// Only two values are operationally meaningful.
type Mode string

const (
	// ModePaper collects data and simulates fills; never places orders.
	ModePaper Mode = "paper"
	// ModeLive places real orders, but only when Trading.LiveConfirm is set.
	ModeLive Mode = "live"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Guardrail GuardrailConfig `mapstructure:"guardrail"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Feature   FeatureConfig   `mapstructure:"feature"`
	Data      DataConfig      `mapstructure:"data"`
	Server    ServerConfig    `mapstructure:"server"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

type ExchangeConfig struct {
	Name        string `mapstructure:"name"`
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	RESTBase    string `mapstructure:"rest_base_url"`
	HTTPTimeout int    `mapstructure:"http_timeout_sec"`
}

type TradingConfig struct {
	Mode        string   `mapstructure:"mode"`
	LiveConfirm bool     `mapstructure:"live_confirm"`
	Symbols     []string `mapstructure:"symbols"`
	CycleSec    int      `mapstructure:"cycle_sec"`
	LTF         string   `mapstructure:"ltf"`
	HTFList     []string `mapstructure:"htf_list"`
	FeeRate     float64  `mapstructure:"fee_rate"`
	MaxOpen     int      `mapstructure:"max_open_positions"`
	PaperEquity float64  `mapstructure:"paper_equity_usdt"`
}

type RiskConfig struct {
	RiskPerTradePct   float64 `mapstructure:"risk_per_trade_pct"`
	RiskPerTradeUSDT  float64 `mapstructure:"risk_per_trade_usdt"`
	DefaultLeverage   int     `mapstructure:"default_leverage"`
	MaxLeverage       int     `mapstructure:"max_leverage"`
	MarginUtilization float64 `mapstructure:"margin_utilization"`
	MaxNotionalUSDT   float64 `mapstructure:"max_notional_usdt"`
	MinConfidence     float64 `mapstructure:"min_confidence"`
	MinNotionalPolicy string  `mapstructure:"min_notional_policy"`
	OverrideRiskMult  float64 `mapstructure:"override_risk_multiplier"`
	OverrideRiskCap   float64 `mapstructure:"override_risk_cap_usdt"`
}

type GuardrailConfig struct {
	MaxDailyLossUSDT     float64 `mapstructure:"max_daily_loss_usdt"`
	MaxDailyLossPct      float64 `mapstructure:"max_daily_loss_pct"`
	MaxConsecutiveLosses int     `mapstructure:"max_consecutive_losses"`
	CooldownSec          int     `mapstructure:"cooldown_sec"`
	MaxTradesPerDay      int     `mapstructure:"max_trades_per_day"`
}

type PolicyConfig struct {
	Name      string  `mapstructure:"name"`
	RR        float64 `mapstructure:"rr"`
	ATRK      float64 `mapstructure:"atr_k"`
	ModelPath string  `mapstructure:"model_path"`
}

type FeatureConfig struct {
	SpecPath string `mapstructure:"spec_path"`
}

type DataConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}
