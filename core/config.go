package core

import (
	"fmt"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// MLMode selects how the quality scorer participates in filtering
type MLMode string

const (
	MLModeOff    MLMode = "off"
	MLModeShadow MLMode = "shadow"
	MLModeFilter MLMode = "filter"
)

// FailureMode selects what a plugin failure means for the pipeline
type FailureMode string

const (
	FailurePass   FailureMode = "pass"
	FailureReject FailureMode = "reject"
)

// Config is the single configuration structure the trading core consumes.
// Loading it from files or flags happens outside the core; Validate runs at
// startup and a failure is fatal.
type Config struct {
	Exchange  ExchangeConfig
	Risk      RiskConfig
	Filters   FilterConfig
	Intervals IntervalConfig
	Breakers  BreakerConfig
	Plugins   PluginConfig
	Maker     MakerConfig
	Hedge     HedgeConfig
}

// ExchangeConfig identifies the venue, pair and account parameters
type ExchangeConfig struct {
	Name        string
	APIKey      string
	APISecret   string
	APIPassword string

	Pair            string
	Timeframe       string
	HigherTimeframe string

	Leverage     int
	MarginMode   MarginMode
	PositionMode PositionMode

	MakerFee float64
	TakerFee float64

	Testnet bool
}

// StrategyRiskOverride replaces base stop parameters for one strategy.
// Zero values keep the base setting.
type StrategyRiskOverride struct {
	StopLossPct   float64
	ATRMultiplier float64
}

// DynamicTPConfig parametrises the profit-gated mean-reversion exit
type DynamicTPConfig struct {
	Enabled       bool
	MinProfitUSDT float64
	FeeMultiplier float64
	FallbackPct   float64
	PriceWindow   int
}

// RiskConfig groups position sizing and exit parameters
type RiskConfig struct {
	StopLossPct     float64
	TakeProfitPct   float64
	TrailingStopPct float64
	ATRMultiplier   float64

	PositionSizePct  float64
	MinOrderUSDT     float64
	MaxOrderUSDT     float64
	UseKelly         bool
	KellyFractionCap float64

	VolatilityHighThreshold float64
	VolatilityFactor        float64

	DynamicTP DynamicTPConfig

	// CloseOnStop flattens an open position with a reduce-only market
	// order during an orderly shutdown
	CloseOnStop bool

	StrategyOverrides map[string]StrategyRiskOverride
}

// FilterConfig groups signal-filter thresholds
type FilterConfig struct {
	LongMinStrength   float64
	LongMinAgreement  float64
	ShortMinStrength  float64
	ShortMinAgreement float64
	MinConfidence     float64

	// AdaptiveThresholds raises the long thresholds when the rolling
	// win rate degrades
	AdaptiveThresholds bool

	MaxSpreadPct          float64
	MinDepthUSDT          float64
	DepthMultiplier       float64
	StabilityWindow       time.Duration
	StabilityThresholdPct float64
	ATRSpikeMultiplier    float64

	MaxTickerStaleness time.Duration
}

// IntervalConfig groups the periodic work cadence
type IntervalConfig struct {
	IdleCheck     time.Duration
	PositionCheck time.Duration

	OrderHealth         time.Duration
	StaleOrderThreshold time.Duration
	MaxOrderAge         time.Duration
}

// BreakerConfig groups circuit-breaker and error-backoff thresholds
type BreakerConfig struct {
	MaxDailyLossPct      float64
	MaxConsecutiveLosses int
	RapidDrawdownPct     float64
	RapidDrawdownWindow  time.Duration

	ErrorMinBackoff time.Duration
	ErrorMaxBackoff time.Duration
	ErrorResetAfter time.Duration

	MaxConsecutiveErrors int
	ErrorBackoff         time.Duration
}

// AdviceBounds are the hard limits applied to advisor adjustments
type AdviceBounds struct {
	StopLossPctMin        float64
	StopLossPctMax        float64
	TakeProfitPctMin      float64
	TakeProfitPctMax      float64
	PositionMultiplierMin float64
	PositionMultiplierMax float64
	AdjustTTL             time.Duration
}

// PluginConfig groups the optional ML scorer and LLM advisor settings
type PluginConfig struct {
	MLMode             MLMode
	MLQualityThreshold float64
	MLIdleUnload       time.Duration
	MLFailureMode      FailureMode

	LLMEnabled         bool
	LLMCacheTTL        time.Duration
	LLMMaxDailyCalls   int
	LLMMaxDailyCostUSD float64
	LLMCostPerCallUSD  float64
	LLMTimeout         time.Duration
	LLMFailureMode     FailureMode
	LLMBounds          AdviceBounds
}

// MakerConfig groups smart maker-order placement settings
type MakerConfig struct {
	Enabled      bool
	OffsetPct    float64
	Timeout      time.Duration
	AutoFallback bool
}

// HedgeConfig groups the band-limited dynamic hedging parameters.
// A zero MES resolves to 9x the taker fee at engine start.
type HedgeConfig struct {
	Enabled bool

	MES   float64
	Alpha float64

	BasePositionRatio            float64
	MinRebalanceProfitMultiplier float64
	MinProfitUSDT                float64

	ExitEta        float64
	ExitMESRatio   float64
	RiskCapitalCap float64
}

// DefaultConfig returns a configuration with every tunable at its baseline
func DefaultConfig() Config {
	return Config{
		Exchange: ExchangeConfig{
			Name:         "binance",
			Timeframe:    "5m",
			Leverage:     5,
			MarginMode:   MarginModeCross,
			PositionMode: PositionModeOneWay,
			MakerFee:     0.0002,
			TakerFee:     0.0006,
		},
		Risk: RiskConfig{
			StopLossPct:      0.02,
			TakeProfitPct:    0.03,
			TrailingStopPct:  0.015,
			ATRMultiplier:    2.5,
			PositionSizePct:  0.1,
			MinOrderUSDT:     10,
			MaxOrderUSDT:     5000,
			UseKelly:         true,
			KellyFractionCap: 0.6,

			VolatilityHighThreshold: 0.02,
			VolatilityFactor:        0.7,

			DynamicTP: DynamicTPConfig{
				Enabled:       true,
				MinProfitUSDT: 0.08,
				FeeMultiplier: 1.5,
				FallbackPct:   0.004,
				PriceWindow:   5,
			},

			CloseOnStop: true,
		},
		Filters: FilterConfig{
			LongMinStrength:   0.80,
			LongMinAgreement:  0.75,
			ShortMinStrength:  0.70,
			ShortMinAgreement: 0.65,
			MinConfidence:     0.55,

			AdaptiveThresholds: true,

			MaxSpreadPct:          0.001,
			MinDepthUSDT:          10000,
			DepthMultiplier:       5,
			StabilityWindow:       30 * time.Second,
			StabilityThresholdPct: 0.005,
			ATRSpikeMultiplier:    2.0,

			MaxTickerStaleness: 5 * time.Second,
		},
		Intervals: IntervalConfig{
			IdleCheck:           5 * time.Second,
			PositionCheck:       2 * time.Second,
			OrderHealth:         30 * time.Second,
			StaleOrderThreshold: 2 * time.Minute,
			MaxOrderAge:         10 * time.Minute,
		},
		Breakers: BreakerConfig{
			MaxDailyLossPct:      0.05,
			MaxConsecutiveLosses: 5,
			RapidDrawdownPct:     0.03,
			RapidDrawdownWindow:  10 * time.Minute,

			ErrorMinBackoff: time.Second,
			ErrorMaxBackoff: time.Minute,
			ErrorResetAfter: 5 * time.Minute,

			MaxConsecutiveErrors: 10,
			ErrorBackoff:         5 * time.Second,
		},
		Plugins: PluginConfig{
			MLMode:             MLModeOff,
			MLQualityThreshold: 0.5,
			MLIdleUnload:       30 * time.Minute,
			MLFailureMode:      FailurePass,

			LLMCacheTTL:        5 * time.Minute,
			LLMMaxDailyCalls:   200,
			LLMMaxDailyCostUSD: 5,
			LLMCostPerCallUSD:  0.01,
			LLMTimeout:         15 * time.Second,
			LLMFailureMode:     FailurePass,
			LLMBounds: AdviceBounds{
				StopLossPctMin:        0.005,
				StopLossPctMax:        0.05,
				TakeProfitPctMin:      0.01,
				TakeProfitPctMax:      0.10,
				PositionMultiplierMin: 0.3,
				PositionMultiplierMax: 2.0,
				AdjustTTL:             30 * time.Minute,
			},
		},
		Maker: MakerConfig{
			OffsetPct:    0.0001,
			Timeout:      10 * time.Second,
			AutoFallback: true,
		},
		Hedge: HedgeConfig{
			Alpha:                        0.5,
			BasePositionRatio:            0.95,
			MinRebalanceProfitMultiplier: 1.5,
			MinProfitUSDT:                0.08,
			ExitEta:                      0.2,
			ExitMESRatio:                 0.5,
		},
	}
}

// Validate checks the configuration for values the core cannot run with
func (c Config) Validate() error {
	if c.Exchange.Pair == "" {
		return fmt.Errorf("exchange: pair is required")
	}

	if c.Exchange.Timeframe == "" {
		return fmt.Errorf("exchange: timeframe is required")
	}

	if c.Exchange.Leverage < 1 {
		return fmt.Errorf("exchange: leverage must be >= 1, got %d", c.Exchange.Leverage)
	}

	if c.Exchange.MakerFee < 0 || c.Exchange.TakerFee < 0 {
		return fmt.Errorf("exchange: fees must not be negative")
	}

	if c.Risk.StopLossPct <= 0 {
		return fmt.Errorf("risk: stop_loss_pct must be positive, got %f", c.Risk.StopLossPct)
	}

	if c.Risk.PositionSizePct <= 0 || c.Risk.PositionSizePct > 1 {
		return fmt.Errorf("risk: position_size_pct must be in (0,1], got %f", c.Risk.PositionSizePct)
	}

	if c.Risk.MinOrderUSDT > c.Risk.MaxOrderUSDT {
		return fmt.Errorf("risk: min_order_usdt %f above max_order_usdt %f",
			c.Risk.MinOrderUSDT, c.Risk.MaxOrderUSDT)
	}

	if c.Risk.KellyFractionCap <= 0 || c.Risk.KellyFractionCap > 1 {
		return fmt.Errorf("risk: kelly_fraction_cap must be in (0,1], got %f", c.Risk.KellyFractionCap)
	}

	for _, bounds := range []struct {
		name               string
		strength, agreement float64
	}{
		{"long", c.Filters.LongMinStrength, c.Filters.LongMinAgreement},
		{"short", c.Filters.ShortMinStrength, c.Filters.ShortMinAgreement},
	} {
		if bounds.strength < 0 || bounds.strength > 1 || bounds.agreement < 0 || bounds.agreement > 1 {
			return fmt.Errorf("filters: %s thresholds must be in [0,1]", bounds.name)
		}
	}

	if c.Intervals.IdleCheck <= 0 || c.Intervals.PositionCheck <= 0 {
		return fmt.Errorf("intervals: check intervals must be positive")
	}

	if c.Breakers.MaxDailyLossPct <= 0 || c.Breakers.MaxDailyLossPct >= 1 {
		return fmt.Errorf("breakers: max_daily_loss_pct must be in (0,1), got %f",
			c.Breakers.MaxDailyLossPct)
	}

	if c.Breakers.ErrorMinBackoff > c.Breakers.ErrorMaxBackoff {
		return fmt.Errorf("breakers: error_min_backoff above error_max_backoff")
	}

	switch c.Plugins.MLMode {
	case MLModeOff, MLModeShadow, MLModeFilter:
	default:
		return fmt.Errorf("plugins: unknown ml_mode %q", c.Plugins.MLMode)
	}

	for _, mode := range []FailureMode{c.Plugins.MLFailureMode, c.Plugins.LLMFailureMode} {
		if mode != FailurePass && mode != FailureReject {
			return fmt.Errorf("plugins: unknown failure mode %q", mode)
		}
	}

	if c.Maker.Enabled && c.Maker.Timeout <= 0 {
		return fmt.Errorf("maker: timeout must be positive when maker mode is enabled")
	}

	if c.Hedge.Enabled {
		if c.Hedge.Alpha < 0 || c.Hedge.Alpha > 1 {
			return fmt.Errorf("hedge: alpha must be in [0,1], got %f", c.Hedge.Alpha)
		}
		if c.Hedge.BasePositionRatio <= 0 || c.Hedge.BasePositionRatio > 1 {
			return fmt.Errorf("hedge: base_position_ratio must be in (0,1], got %f",
				c.Hedge.BasePositionRatio)
		}
		if c.Exchange.PositionMode != PositionModeHedge {
			return fmt.Errorf("hedge: requires position_mode %q", PositionModeHedge)
		}
	}

	return nil
}

// EffectiveMES resolves the hedging rebalance step, defaulting to nine
// times the taker fee when unset
func (c Config) EffectiveMES() float64 {
	if c.Hedge.MES > 0 {
		return c.Hedge.MES
	}
	return 9 * c.Exchange.TakerFee
}

// Duration parses a human-friendly duration string like "15s" or "2h45m"
func Duration(s string) (time.Duration, error) {
	return str2duration.ParseDuration(s)
}
