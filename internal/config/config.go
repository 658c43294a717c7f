// Package config loads, merges, and validates the bot configuration:
// YAML on disk, environment expansion, and a deep merge of the latest
// persisted settings snapshot over the file tree.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/calebmo/candlebot/internal/executor"
	"github.com/calebmo/candlebot/internal/notify"
	"github.com/calebmo/candlebot/internal/ranking"
	"github.com/calebmo/candlebot/internal/risk"
	"github.com/calebmo/candlebot/internal/strategy"
	"github.com/calebmo/candlebot/internal/timeframe"
	"github.com/calebmo/candlebot/internal/universe"
)

// RuntimeConfig is the top-level loop configuration.
type RuntimeConfig struct {
	Timezone         string  `yaml:"timezone"`
	Timeframe        string  `yaml:"timeframe"`
	WarmupBars       int     `yaml:"warmup_bars"`
	LoopSleepSeconds float64 `yaml:"loop_sleep_seconds"`
}

// BrokerConfig selects and parameterises the broker adapter.
type BrokerConfig struct {
	Provider string `yaml:"provider"` // paper | mt5
	Paper    struct {
		Seed          int64   `yaml:"seed"`
		InitialEquity float64 `yaml:"initial_equity"`
		SpreadPoints  float64 `yaml:"spread_points"`
	} `yaml:"paper"`
}

// PersistenceConfig locates the SQLite store.
type PersistenceConfig struct {
	DBPath string `yaml:"db_path"`
}

// LoggingConfig controls the rotated file log.
type LoggingConfig struct {
	Dir string `yaml:"dir"` // empty: stdout only
}

// UIConfig controls the status HTTP server.
type UIConfig struct {
	Enabled    bool    `yaml:"enabled"`
	ListenAddr string  `yaml:"listen_addr"`
	RefreshHz  float64 `yaml:"refresh_hz"`
}

// Config is the full bot configuration tree.
type Config struct {
	Runtime       RuntimeConfig     `yaml:"runtime"`
	Broker        BrokerConfig      `yaml:"broker"`
	Universe      universe.Config   `yaml:"universe"`
	Ranking       ranking.Config    `yaml:"ranking"`
	Strategy      strategy.Config   `yaml:"strategy"`
	Risk          risk.Config       `yaml:"risk"`
	Execution     executor.Config   `yaml:"execution"`
	Notifications notify.Config     `yaml:"notifications"`
	Persistence   PersistenceConfig `yaml:"persistence"`
	Logging       LoggingConfig     `yaml:"logging"`
	UI            UIConfig          `yaml:"ui"`
}

// Default returns the baseline configuration; file values decode over it.
func Default() *Config {
	cfg := &Config{}
	cfg.Runtime = RuntimeConfig{
		Timezone:         "UTC",
		Timeframe:        "H1",
		WarmupBars:       400,
		LoopSleepSeconds: 2,
	}
	cfg.Broker.Provider = "paper"
	cfg.Broker.Paper.InitialEquity = 10000
	cfg.Broker.Paper.SpreadPoints = 10
	cfg.Universe.DiscoveryIntervalMinutes = 60
	cfg.Ranking.TopN = 5
	cfg.Ranking.MinBarsRequired = 300
	cfg.Ranking.Weights.Volatility = 0.3
	cfg.Ranking.Weights.Trend = 0.3
	cfg.Ranking.Weights.Momentum = 0.3
	cfg.Ranking.Weights.Cost = 0.1
	cfg.Ranking.Correlation.Enabled = true
	cfg.Ranking.Correlation.WindowBars = 100
	cfg.Ranking.Correlation.MaxAbsCorr = 0.85
	cfg.Strategy.Mode = "rule_based"
	cfg.Strategy.ManualActive = "two_pole_momentum"
	cfg.Strategy.RuleBased.ADXTrending = 25
	cfg.Strategy.RuleBased.ADXRanging = 18
	cfg.Risk.RiskPerTrade = 0.005
	cfg.Risk.MaxDailyLossPct = 0.03
	cfg.Risk.MaxDrawdownPct = 0.10
	cfg.Risk.MaxOpenPositionsTotal = 5
	cfg.Risk.MaxOpenPositionsPerSymbol = 1
	cfg.Risk.SLTPMode = "rr"
	cfg.Risk.RR.StopPoints = 100
	cfg.Risk.RR.TakePoints = 200
	cfg.Risk.ATR.Period = 14
	cfg.Risk.ATR.SLMult = 2
	cfg.Risk.ATR.TPMult = 3
	cfg.Risk.Cooloff.Enabled = true
	cfg.Risk.Cooloff.Losses = 3
	cfg.Risk.Cooloff.Minutes = 120
	cfg.Execution.TradingEnabled = true
	cfg.Execution.CloseOnExitSignal = true
	cfg.Execution.SlippagePoints = 10
	cfg.Execution.MagicNumber = 775511
	cfg.Execution.Retries.MaxAttempts = 3
	cfg.Execution.Retries.BackoffSeconds = []float64{1, 2, 5}
	cfg.Notifications.ThrottleSeconds = 300
	cfg.Notifications.DailySummaryTime = "21:00"
	cfg.Persistence.DBPath = "data/candlebot.db"
	cfg.UI.Enabled = true
	cfg.UI.ListenAddr = "127.0.0.1:8787"
	cfg.UI.RefreshHz = 2
	return cfg
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	return LoadWithOverride(path, "")
}

// LoadWithOverride reads the YAML file, deep-merges overrideJSON (the
// latest persisted settings snapshot) over it, and decodes strictly
// into the typed config.
func LoadWithOverride(path, overrideJSON string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := []byte(os.ExpandEnv(string(data)))

	merged := expanded
	if overrideJSON != "" {
		var base map[string]any
		if err := yaml.Unmarshal(expanded, &base); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		var override map[string]any
		if err := json.Unmarshal([]byte(overrideJSON), &override); err != nil {
			return nil, fmt.Errorf("parse settings snapshot: %w", err)
		}
		if base == nil {
			base = map[string]any{}
		}
		mergedTree := DeepMerge(base, override)
		merged, err = yaml.Marshal(mergedTree)
		if err != nil {
			return nil, fmt.Errorf("re-encode merged config: %w", err)
		}
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(merged))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// MergeJSON deep-merges a JSON override document over cfg and returns
// the validated result. cfg is not modified.
func MergeJSON(cfg *Config, overrideJSON string) (*Config, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode current config: %w", err)
	}
	var base map[string]any
	if err := yaml.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("decode current config: %w", err)
	}
	var override map[string]any
	if err := json.Unmarshal([]byte(overrideJSON), &override); err != nil {
		return nil, fmt.Errorf("parse override: %w", err)
	}
	merged, err := yaml.Marshal(DeepMerge(base, override))
	if err != nil {
		return nil, fmt.Errorf("re-encode merged config: %w", err)
	}
	out := Default()
	dec := yaml.NewDecoder(bytes.NewReader(merged))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return out, nil
}

// DeepMerge merges override into base: maps recurse, any other value
// in override replaces the base leaf.
func DeepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, ov := range override {
		bm, baseIsMap := out[k].(map[string]any)
		om, overrideIsMap := ov.(map[string]any)
		if baseIsMap && overrideIsMap {
			out[k] = DeepMerge(bm, om)
			continue
		}
		out[k] = ov
	}
	return out
}

var summaryTimeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if _, err := timeframe.Parse(c.Runtime.Timeframe); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Runtime.Timezone); err != nil {
		return fmt.Errorf("runtime.timezone: %w", err)
	}
	if c.Runtime.WarmupBars < 50 {
		return fmt.Errorf("runtime.warmup_bars must be >= 50, got %d", c.Runtime.WarmupBars)
	}
	if c.Runtime.LoopSleepSeconds <= 0 {
		return fmt.Errorf("runtime.loop_sleep_seconds must be positive")
	}
	if c.Broker.Provider != "paper" && c.Broker.Provider != "mt5" {
		return fmt.Errorf("broker.provider must be paper or mt5, got %q", c.Broker.Provider)
	}
	if c.Ranking.TopN < 1 {
		return fmt.Errorf("ranking.top_n must be >= 1")
	}
	if c.Ranking.MinBarsRequired > c.Runtime.WarmupBars {
		return fmt.Errorf("ranking.min_bars_required %d exceeds runtime.warmup_bars %d",
			c.Ranking.MinBarsRequired, c.Runtime.WarmupBars)
	}
	w := c.Ranking.Weights
	if w.Volatility < 0 || w.Trend < 0 || w.Momentum < 0 || w.Cost < 0 {
		return fmt.Errorf("ranking.weights must be non-negative")
	}
	if cc := c.Ranking.Correlation; cc.Enabled {
		if cc.MaxAbsCorr < 0 || cc.MaxAbsCorr > 1 {
			return fmt.Errorf("ranking.correlation.max_abs_corr must be in [0,1]")
		}
		if cc.WindowBars < 2 {
			return fmt.Errorf("ranking.correlation.window_bars must be >= 2")
		}
	}
	if c.Strategy.Mode != "manual" && c.Strategy.Mode != "rule_based" {
		return fmt.Errorf("strategy.mode must be manual or rule_based, got %q", c.Strategy.Mode)
	}
	if c.Strategy.RuleBased.ADXRanging > c.Strategy.RuleBased.ADXTrending {
		return fmt.Errorf("strategy.rule_based.adx_ranging must not exceed adx_trending")
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade >= 1 {
		return fmt.Errorf("risk.risk_per_trade must be in (0,1)")
	}
	if c.Risk.SLTPMode != "rr" && c.Risk.SLTPMode != "atr" {
		return fmt.Errorf("risk.sltp_mode must be rr or atr, got %q", c.Risk.SLTPMode)
	}
	if c.Risk.SLTPMode == "rr" && c.Risk.RR.StopPoints <= 0 {
		return fmt.Errorf("risk.rr.stop_points must be positive")
	}
	if c.Execution.MagicNumber == 0 {
		return fmt.Errorf("execution.magic_number must be non-zero")
	}
	if c.Execution.Retries.MaxAttempts < 1 {
		return fmt.Errorf("execution.retries.max_attempts must be >= 1")
	}
	if t := c.Notifications.DailySummaryTime; t != "" && !summaryTimeRe.MatchString(t) {
		return fmt.Errorf("notifications.daily_summary_time must be HH:MM, got %q", t)
	}
	if c.Persistence.DBPath == "" {
		return fmt.Errorf("persistence.db_path is required")
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Runtime.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// JSON renders the config as a JSON document for settings snapshots.
func (c *Config) JSON() (string, error) {
	// Round-trip through the YAML tree so snapshot keys match the file
	// schema (yaml tags, not Go field names).
	raw, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return "", err
	}
	b, err := json.Marshal(tree)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
