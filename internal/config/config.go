// Package config defines all configuration for the prediction-market
// trading core. Config is loaded from a YAML file (default:
// configs/config.yaml) with sensitive/overridable fields settable via
// CORE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun       bool               `mapstructure:"dry_run"`
	Bankroll     BankrollConfig     `mapstructure:"bankroll"`
	MarketMaking MarketMakingConfig `mapstructure:"market_making"`
	PairCost     PairCostConfig     `mapstructure:"pair_cost"`
	SpreadArb    SpreadArbConfig    `mapstructure:"spread_arbitrage"`
	Sentiment    SentimentConfig    `mapstructure:"sentiment"`
	Kelly        KellyConfig        `mapstructure:"kelly"`
	Risk         RiskConfig         `mapstructure:"risk"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Calibration  CalibrationConfig  `mapstructure:"calibration"`
	Resolution   ResolutionConfig   `mapstructure:"resolution"`
	Store        StoreConfig        `mapstructure:"store"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	API          APIConfig          `mapstructure:"api"`
}

// BankrollConfig is the capital base every percentage-of-bankroll limit in
// RiskConfig and KellyConfig is computed against.
type BankrollConfig struct {
	TotalUSD float64 `mapstructure:"total_usd"`
}

// MarketMakingConfig tunes the spread/inventory quoting rule (spec.md
// §4.4.1).
//
//   - MinSpread: floor under the measured bid/ask spread used as the base.
//   - VolatilityWidenThreshold / VolatilityWidenMultiplier: widen the base
//     spread when state.VolatilityScore exceeds the threshold (spec default
//     0.7 / x1.5).
//   - NewsWidenMultiplier: widen the spread further while a news flag is
//     active (spec default x2).
//   - InventoryAdjustment: coefficient applied to |imbalance| and added to
//     the spread.
//   - MaxInventoryImbalance: suppress the side that would push inventory
//     beyond this (spec default 0.3).
//   - OrderSizeUSD: target notional size per quote pair.
//   - RefreshInterval: signal lifetime for reissued quote pairs (spec.md
//     §4.4.1: 30 minutes).
//   - StaleBookTimeout: loaded and stored only; no generator or engine code
//     reads it, so a stale book does not suppress quoting.
//
// Flow toxicity detection (ported from the teacher's flow tracker, layered
// on top of the spec's own widening rules):
//   - FlowWindow: rolling time window for tracking fills (e.g., 60s).
//   - FlowToxicityThreshold: toxicity score above this triggers spread widening (e.g., 0.6).
//   - FlowCooldownPeriod: stay wide for this duration after toxicity detected (e.g., 120s).
//   - FlowMaxSpreadMultiplier: maximum spread widening factor (e.g., 3.0x).
type MarketMakingConfig struct {
	MinSpread                 float64       `mapstructure:"min_spread"`
	VolatilityWidenThreshold  float64       `mapstructure:"volatility_widen_threshold"`
	VolatilityWidenMultiplier float64       `mapstructure:"volatility_widen_multiplier"`
	NewsWidenMultiplier       float64       `mapstructure:"news_widen_multiplier"`
	InventoryAdjustment       float64       `mapstructure:"inventory_adjustment"`
	MaxInventoryImbalance     float64       `mapstructure:"max_inventory_imbalance"`
	OrderSizeUSD              float64       `mapstructure:"order_size_usd"`
	RefreshInterval           time.Duration `mapstructure:"refresh_interval"`
	StaleBookTimeout          time.Duration `mapstructure:"stale_book_timeout"`

	FlowWindow              time.Duration `mapstructure:"flow_window"`
	FlowToxicityThreshold   float64       `mapstructure:"flow_toxicity_threshold"`
	FlowCooldownPeriod      time.Duration `mapstructure:"flow_cooldown_period"`
	FlowMaxSpreadMultiplier float64       `mapstructure:"flow_max_spread_multiplier"`
}

// PairCostConfig tunes the pair-cost arbitrage generator (spec.md §4.4.2).
type PairCostConfig struct {
	MinSafetyMargin  float64 `mapstructure:"min_safety_margin"`  // minimum 1-pair_cost to act on
	MaxImbalanceRatio float64 `mapstructure:"max_imbalance_ratio"` // cap on yes/no qty skew before suppressing
}

// SpreadArbConfig tunes the correlation-graph-driven logical arbitrage
// generator (spec.md §4.4.3).
type SpreadArbConfig struct {
	MinRho          float64 `mapstructure:"min_rho"`          // minimum Suggests correlation to act on
	MinSpreadMargin float64 `mapstructure:"min_spread_margin"` // required excess over CorrelationEdge.MinSpread
}

// SentimentConfig tunes the sentiment-driven generator (spec.md §4.4.4).
// News ingestion itself is out of scope; this generator consumes externally
// computed sentiment scores via its contract interface.
type SentimentConfig struct {
	MinScore        float64       `mapstructure:"min_score"`        // |sentiment| floor to act on
	DecayHalfLife   time.Duration `mapstructure:"decay_half_life"`  // sentiment signal decay
	MaxSignalAgeSec int           `mapstructure:"max_signal_age_sec"`
}

// KellyConfig tunes the position sizer (spec.md §4.2).
type KellyConfig struct {
	SafetyFactor float64 `mapstructure:"safety_factor"` // fractional Kelly multiplier, e.g. 0.5
	MinFraction  float64 `mapstructure:"min_fraction"`
	MaxFraction  float64 `mapstructure:"max_fraction"`
	HighVolThreshold   float64 `mapstructure:"high_vol_threshold"`
	MediumVolThreshold float64 `mapstructure:"medium_vol_threshold"`
}

// RiskConfig sets hard limits enforced by the pre-trade gate and post-trade
// monitor (spec.md §4.3).
//
//   - MaxPositionSize: max USD exposure in any single position.
//   - MaxTotalExposure: max USD exposure across the whole portfolio.
//   - MaxPositions: cap on concurrently open positions.
//   - MaxThemeExposure / MaxThemePercentage: per-theme exposure caps.
//   - DailyLossLimit: max combined realized+unrealized loss per UTC day.
//   - StopLossPercentage: per-position stop distance as fraction of entry.
//   - MaxDrawdownPercentage: circuit-breaker trip threshold.
//   - Var95Limit: empirical VaR95 ceiling.
//   - MaxViolationsPerDay: violation count before hard trip.
//   - CircuitBreakerCooldown: time the breaker stays Tripped before retrying Idle.
type RiskConfig struct {
	MaxPositionSize        float64                `mapstructure:"max_position_size"`
	MaxTotalExposure       float64                `mapstructure:"max_total_exposure"`
	MaxPositions           int                    `mapstructure:"max_positions"`
	MaxThemeExposure       float64                `mapstructure:"max_theme_exposure"`
	MaxThemePercentage     float64                `mapstructure:"max_theme_percentage"`
	DailyLossLimit         float64                `mapstructure:"daily_loss_limit"`
	StopLossPercentage     float64                `mapstructure:"stop_loss_percentage"`
	MaxDrawdownPercentage  float64                `mapstructure:"max_drawdown_percentage"`
	Var95Limit             float64                `mapstructure:"var_95_limit"`
	MaxViolationsPerDay    int                    `mapstructure:"max_violations_per_day"`
	CircuitBreakerCooldown time.Duration          `mapstructure:"circuit_breaker_cooldown"`
	Themes                 map[string]ThemeConfig `mapstructure:"themes"`
}

// ThemeConfig is one entry of RiskConfig.Themes, keyed by theme name.
type ThemeConfig struct {
	MaxExposure   float64 `mapstructure:"max_exposure"`
	MaxPositions  int     `mapstructure:"max_positions"`
	MaxPercentage float64 `mapstructure:"max_percentage"`
}

// PipelineConfig tunes the signal pipeline's filter/rank stages (spec.md
// §4.5).
type PipelineConfig struct {
	MinEdge           float64 `mapstructure:"min_edge"`
	MinExpectedValue  float64 `mapstructure:"min_expected_value"`
	MinConfidence     float64 `mapstructure:"min_confidence"`
	MaxSignalsPerTick int     `mapstructure:"max_signals_per_tick"`
	IngressQueueSize  int     `mapstructure:"ingress_queue_size"`

	// MinLiquidityScore and MaxPositionLiquidityRatio ground the liquidity
	// validator (original_source/signal-generation/src/validators.rs's
	// LiquidityValidator): a signal needs both a sufficiently liquid book
	// and a sized position that isn't too large relative to that liquidity.
	MinLiquidityScore         float64 `mapstructure:"min_liquidity_score"`
	MaxPositionLiquidityRatio float64 `mapstructure:"max_position_liquidity_ratio"`
}

// CalibrationConfig tunes the calibration and drift-detection engine
// (spec.md §4.7, §4.8).
type CalibrationConfig struct {
	BucketCount              int           `mapstructure:"bucket_count"`
	DriftWindow              time.Duration `mapstructure:"drift_window"`
	PerformanceDriftMedium   float64       `mapstructure:"performance_drift_medium"`
	PerformanceDriftHigh     float64       `mapstructure:"performance_drift_high"`
	PerformanceDriftCritical float64       `mapstructure:"performance_drift_critical"`
	PredictionDriftMedium    float64       `mapstructure:"prediction_drift_medium"`   // Brier delta
	PredictionDriftHigh      float64       `mapstructure:"prediction_drift_high"`
	PredictionDriftCritical  float64       `mapstructure:"prediction_drift_critical"`
	VolumeDriftThreshold     float64       `mapstructure:"volume_drift_threshold"` // trade-count drop fraction
	MinPredictionsForDrift   int           `mapstructure:"min_predictions_for_drift"`
}

// StoreConfig sets where signal/execution/attribution/calibration/drift
// records are persisted. Concrete persistence engines are out of scope
// (spec.md §1 Non-goals); this only names the reference in-memory store's
// retention window.
type StoreConfig struct {
	RetentionWindow time.Duration `mapstructure:"retention_window"`
}

// ResolutionConfig bounds the retry backoff for Prediction-store updates
// triggered by a MarketResolved event (spec.md §4.9: "resolution-update
// failures on Predictions are retried with bounded backoff").
type ResolutionConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig controls the poll-only observability HTTP server (portfolio
// summary, per-strategy metrics, drift alerts). No push/WebSocket surface —
// dashboards are out of scope (spec.md §1 Non-goals).
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if os.Getenv("CORE_DRY_RUN") == "true" || os.Getenv("CORE_DRY_RUN") == "1" {
		cfg.DryRun = true
	}
	if v := os.Getenv("CORE_BANKROLL_TOTAL_USD"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Bankroll.TotalUSD = f
		}
	}

	return &cfg, nil
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	return f, err
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Bankroll.TotalUSD <= 0 {
		return fmt.Errorf("bankroll.total_usd must be > 0")
	}
	if c.MarketMaking.OrderSizeUSD <= 0 {
		return fmt.Errorf("market_making.order_size_usd must be > 0")
	}
	if c.MarketMaking.MaxInventoryImbalance <= 0 || c.MarketMaking.MaxInventoryImbalance > 1 {
		return fmt.Errorf("market_making.max_inventory_imbalance must be in (0,1]")
	}
	if c.Kelly.SafetyFactor <= 0 || c.Kelly.SafetyFactor > 1 {
		return fmt.Errorf("kelly.safety_factor must be in (0,1]")
	}
	if c.Kelly.MaxFraction <= 0 || c.Kelly.MaxFraction > 1 {
		return fmt.Errorf("kelly.max_fraction must be in (0,1]")
	}
	if c.Kelly.MinFraction < 0 || c.Kelly.MinFraction > c.Kelly.MaxFraction {
		return fmt.Errorf("kelly.min_fraction must be in [0, max_fraction]")
	}
	if c.Risk.MaxPositionSize <= 0 {
		return fmt.Errorf("risk.max_position_size must be > 0")
	}
	if c.Risk.MaxTotalExposure <= 0 {
		return fmt.Errorf("risk.max_total_exposure must be > 0")
	}
	if c.Risk.MaxPositions <= 0 {
		return fmt.Errorf("risk.max_positions must be > 0")
	}
	if c.Risk.CircuitBreakerCooldown <= 0 {
		return fmt.Errorf("risk.circuit_breaker_cooldown must be > 0")
	}
	if c.Pipeline.IngressQueueSize <= 0 {
		return fmt.Errorf("pipeline.ingress_queue_size must be > 0")
	}
	if c.Calibration.BucketCount <= 0 {
		return fmt.Errorf("calibration.bucket_count must be > 0")
	}
	return nil
}
