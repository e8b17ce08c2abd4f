package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads the YAML config at path, applies environment overrides
// (TRADELOOP_ prefix, dots replaced by underscores), fills defaults and
// validates. Any validation failure is a *KeyError naming the offending key;
// startup must not proceed past it.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TRADELOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	cfg.Trading.Mode = string(NormalizeMode(cfg.Trading.Mode))
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Mode returns the canonical runtime mode.
func (c *Config) Mode() Mode { return Mode(c.Trading.Mode) }

// LivePlacementAllowed is the standing kill switch: live order placement
// requires both the live mode and the explicit confirmation flag. Live
// without the flag suppresses placement entirely.
func (c *Config) LivePlacementAllowed() bool {
	return c.Mode() == ModeLive && c.Trading.LiveConfirm
}
