package config

import (
	"strings"

	"tradeloop/internal/logger"
)

// NormalizeMode folds legacy mode vocabulary onto the two canonical modes.
// Older deployments used demo/data/collect/observe/dry for data-only runs and
// prod/real for live ones; all of those map, none are rejected. The legacy
// names never leave this package.
func NormalizeMode(raw string) Mode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "paper", "demo", "data", "collect", "observe", "dry", "sim":
		return ModePaper
	case "live", "prod", "real":
		return ModeLive
	default:
		logger.Warnf("unknown trading mode %q, falling back to paper", raw)
		return ModePaper
	}
}
