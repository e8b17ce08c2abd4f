package config

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Exchange.Name == "" {
		c.Exchange.Name = "binance"
	}
	if c.Exchange.HTTPTimeout <= 0 {
		c.Exchange.HTTPTimeout = 10
	}
	if c.Trading.Mode == "" {
		c.Trading.Mode = string(ModePaper)
	}
	if len(c.Trading.Symbols) == 0 {
		c.Trading.Symbols = []string{"BTCUSDT"}
	}
	if c.Trading.CycleSec <= 0 {
		c.Trading.CycleSec = 60
	}
	if c.Trading.LTF == "" {
		c.Trading.LTF = "5m"
	}
	if len(c.Trading.HTFList) == 0 {
		c.Trading.HTFList = []string{"15m", "1h", "4h"}
	}
	if c.Trading.FeeRate == 0 {
		c.Trading.FeeRate = 0.0006
	}
	if c.Trading.MaxOpen <= 0 {
		c.Trading.MaxOpen = 1
	}
	if c.Trading.PaperEquity <= 0 {
		c.Trading.PaperEquity = 1000
	}
	if c.Risk.RiskPerTradePct == 0 && c.Risk.RiskPerTradeUSDT == 0 {
		c.Risk.RiskPerTradePct = 0.25
	}
	if c.Risk.DefaultLeverage <= 0 {
		c.Risk.DefaultLeverage = 3
	}
	if c.Risk.MaxLeverage <= 0 {
		c.Risk.MaxLeverage = 10
	}
	if c.Risk.MarginUtilization == 0 {
		c.Risk.MarginUtilization = 0.30
	}
	if c.Risk.MinConfidence == 0 {
		c.Risk.MinConfidence = 0.55
	}
	if c.Risk.MinNotionalPolicy == "" {
		c.Risk.MinNotionalPolicy = "skip"
	}
	if c.Risk.OverrideRiskMult == 0 {
		c.Risk.OverrideRiskMult = 2.0
	}
	if c.Guardrail.MaxConsecutiveLosses == 0 {
		c.Guardrail.MaxConsecutiveLosses = 3
	}
	if c.Policy.Name == "" {
		c.Policy.Name = "hybrid"
	}
	if c.Policy.RR == 0 {
		c.Policy.RR = 2.0
	}
	if c.Policy.ATRK == 0 {
		c.Policy.ATRK = 1.0
	}
	if c.Feature.SpecPath == "" {
		c.Feature.SpecPath = "configs/feature_spec_v1.yaml"
	}
	if c.Data.DBPath == "" {
		c.Data.DBPath = "data/tradeloop.db"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8391"
	}
}
