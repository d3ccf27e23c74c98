// Package registry holds the immutable strategy catalog. Each strategy
// family carries a strongly-typed parameter struct and three presets
// (conservative, balanced, aggressive); everything is validated once at
// construction and read-only afterwards.
package registry

import (
	"fmt"
	"sort"

	"trade-autopilot/internal/domain"
)

// Strategy family IDs.
const (
	StrategyTrendFollow      = "trend_follow"
	StrategyBreakout         = "breakout"
	StrategyMeanRevert       = "meanrevert_bollinger"
	StrategyMomentumCatalyst = "momentum_catalyst"
)

// TrendParams parameterizes the trend_follow family.
type TrendParams struct {
	EMAFast         int     `json:"ema_fast"`
	EMASlow         int     `json:"ema_slow"`
	MinEMASpreadPct float64 `json:"min_ema_spread_pct"`
	MaxExtensionPct float64 `json:"max_extension_pct"`
	ATRPeriod       int     `json:"atr_period"`
	ATRStopMult     float64 `json:"atr_stop_mult"`
	RewardMult      float64 `json:"reward_mult"`
	VolumeBonusMult float64 `json:"volume_bonus_mult"`
	Horizon         string  `json:"horizon"`
}

// BreakoutParams parameterizes the breakout family.
type BreakoutParams struct {
	LookbackBars  int     `json:"lookback_bars"`
	BufferPct     float64 `json:"buffer_pct"`
	VolumeMult    float64 `json:"volume_mult"`
	ATRPeriod     int     `json:"atr_period"`
	ATRStopMult   float64 `json:"atr_stop_mult"`
	RewardMult    float64 `json:"reward_mult"`
	MaxVolatility float64 `json:"max_volatility_pct"`
	Horizon       string  `json:"horizon"`
}

// BollingerParams parameterizes the meanrevert_bollinger family.
type BollingerParams struct {
	Period            int     `json:"period"`
	StdDevMult        float64 `json:"stddev_mult"`
	MaxTrendSpreadPct float64 `json:"max_trend_spread_pct"`
	RSIPeriod         int     `json:"rsi_period"`
	RSIFloor          float64 `json:"rsi_floor"`
	RSICeil           float64 `json:"rsi_ceil"`
	ATRPeriod         int     `json:"atr_period"`
	ATRStopMult       float64 `json:"atr_stop_mult"`
	RewardMult        float64 `json:"reward_mult"`
	Horizon           string  `json:"horizon"`
}

// MomentumParams parameterizes the momentum_catalyst family.
type MomentumParams struct {
	ROCBars         int     `json:"roc_bars"`
	MinROCPct       float64 `json:"min_roc_pct"`
	VolumeMult      float64 `json:"volume_mult"`
	MaxExtensionPct float64 `json:"max_extension_pct"`
	ATRPeriod       int     `json:"atr_period"`
	ATRStopMult     float64 `json:"atr_stop_mult"`
	RewardMult      float64 `json:"reward_mult"`
	Horizon         string  `json:"horizon"`
}

// Registry is the immutable strategy catalog.
type Registry struct {
	specs map[string]domain.StrategySpec
}

// New builds and validates the catalog.
func New() (*Registry, error) {
	r := &Registry{specs: make(map[string]domain.StrategySpec)}
	for _, spec := range []domain.StrategySpec{
		trendFollowSpec(),
		breakoutSpec(),
		meanRevertSpec(),
		momentumCatalystSpec(),
	} {
		if err := validateSpec(spec); err != nil {
			return nil, fmt.Errorf("strategy %s: %w", spec.ID, err)
		}
		r.specs[spec.ID] = spec
	}
	return r, nil
}

// MustNew builds the catalog and panics on a definition error. The catalog
// is static, so a failure here is a programming bug caught at startup.
func MustNew() *Registry {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the spec for a strategy ID.
func (r *Registry) Get(strategyID string) (domain.StrategySpec, bool) {
	s, ok := r.specs[strategyID]
	return s, ok
}

// List returns all specs ordered by ID.
func (r *Registry) List() []domain.StrategySpec {
	out := make([]domain.StrategySpec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Preset resolves strategy and preset in one step.
func (r *Registry) Preset(strategyID, presetID string) (domain.StrategySpec, domain.StrategyPreset, error) {
	spec, ok := r.Get(strategyID)
	if !ok {
		return domain.StrategySpec{}, domain.StrategyPreset{}, fmt.Errorf("unknown strategy %q", strategyID)
	}
	preset, ok := spec.Preset(presetID)
	if !ok {
		return domain.StrategySpec{}, domain.StrategyPreset{}, fmt.Errorf("strategy %q has no preset %q", strategyID, presetID)
	}
	return spec, preset, nil
}

func validateSpec(spec domain.StrategySpec) error {
	if spec.ID == "" || spec.Name == "" {
		return fmt.Errorf("missing id or name")
	}
	for _, presetID := range []string{domain.PresetConservative, domain.PresetBalanced, domain.PresetAggressive} {
		p, ok := spec.Presets[presetID]
		if !ok {
			return fmt.Errorf("missing preset %s", presetID)
		}
		if p.MinConfidence < domain.ConfidenceFloor || p.MinConfidence > domain.ConfidenceCeil {
			return fmt.Errorf("preset %s: min_confidence %d out of band", presetID, p.MinConfidence)
		}
		if err := validateParams(p.Params); err != nil {
			return fmt.Errorf("preset %s: %w", presetID, err)
		}
	}
	return nil
}

func validateParams(params any) error {
	switch p := params.(type) {
	case TrendParams:
		if p.EMAFast <= 0 || p.EMASlow <= p.EMAFast {
			return fmt.Errorf("ema windows must satisfy 0 < fast < slow")
		}
		if p.MinEMASpreadPct <= 0 || p.ATRPeriod <= 0 || p.ATRStopMult <= 0 || p.RewardMult <= 0 {
			return fmt.Errorf("trend thresholds must be positive")
		}
	case BreakoutParams:
		if p.LookbackBars <= 0 || p.BufferPct < 0 || p.VolumeMult <= 0 {
			return fmt.Errorf("breakout thresholds out of range")
		}
		if p.ATRPeriod <= 0 || p.ATRStopMult <= 0 || p.RewardMult <= 0 {
			return fmt.Errorf("breakout risk params must be positive")
		}
	case BollingerParams:
		if p.Period <= 0 || p.StdDevMult <= 0 || p.RSIPeriod <= 0 {
			return fmt.Errorf("bollinger windows must be positive")
		}
		if p.RSIFloor <= 0 || p.RSICeil >= 100 || p.RSIFloor >= p.RSICeil {
			return fmt.Errorf("rsi band invalid")
		}
		if p.ATRPeriod <= 0 || p.ATRStopMult <= 0 || p.RewardMult <= 0 {
			return fmt.Errorf("bollinger risk params must be positive")
		}
	case MomentumParams:
		if p.ROCBars <= 0 || p.MinROCPct <= 0 || p.VolumeMult <= 0 {
			return fmt.Errorf("momentum thresholds must be positive")
		}
		if p.ATRPeriod <= 0 || p.ATRStopMult <= 0 || p.RewardMult <= 0 {
			return fmt.Errorf("momentum risk params must be positive")
		}
	default:
		return fmt.Errorf("unknown param type %T", params)
	}
	return nil
}

func trendFollowSpec() domain.StrategySpec {
	return domain.StrategySpec{
		ID:          StrategyTrendFollow,
		Name:        "Trend Following",
		Family:      StrategyTrendFollow,
		Description: "Fast/slow EMA alignment with price and VWAP confirmation.",
		Presets: map[string]domain.StrategyPreset{
			domain.PresetConservative: {
				ID:            domain.PresetConservative,
				MinConfidence: 70,
				Params: TrendParams{
					EMAFast: 20, EMASlow: 50, MinEMASpreadPct: 0.6,
					MaxExtensionPct: 4.0,
					ATRPeriod:       14, ATRStopMult: 2.5, RewardMult: 2.0,
					VolumeBonusMult: 1.5, Horizon: "weeks",
				},
				Rules: trendRules,
			},
			domain.PresetBalanced: {
				ID:            domain.PresetBalanced,
				MinConfidence: 60,
				Params: TrendParams{
					EMAFast: 20, EMASlow: 50, MinEMASpreadPct: 0.4,
					MaxExtensionPct: 6.0,
					ATRPeriod:       14, ATRStopMult: 2.0, RewardMult: 2.0,
					VolumeBonusMult: 1.3, Horizon: "weeks",
				},
				Rules: trendRules,
			},
			domain.PresetAggressive: {
				ID:            domain.PresetAggressive,
				MinConfidence: 50,
				Params: TrendParams{
					EMAFast: 10, EMASlow: 30, MinEMASpreadPct: 0.25,
					MaxExtensionPct: 8.0,
					ATRPeriod:       14, ATRStopMult: 1.5, RewardMult: 2.5,
					VolumeBonusMult: 1.2, Horizon: "days",
				},
				Rules: trendRules,
			},
		},
	}
}

var trendRules = []string{
	"Fast EMA above slow EMA by at least the minimum spread (trending regime)",
	"Latest close on the trend side of the fast EMA and VWAP",
	"Stop at entry minus ATR multiple, target at reward multiple of risk",
}

func breakoutSpec() domain.StrategySpec {
	return domain.StrategySpec{
		ID:          StrategyBreakout,
		Name:        "Range Breakout",
		Family:      StrategyBreakout,
		Description: "Close beyond the rolling high/low by a buffer, on expanded volume.",
		Presets: map[string]domain.StrategyPreset{
			domain.PresetConservative: {
				ID:            domain.PresetConservative,
				MinConfidence: 70,
				Params: BreakoutParams{
					LookbackBars: 20, BufferPct: 0.5, VolumeMult: 2.0,
					ATRPeriod: 14, ATRStopMult: 2.0, RewardMult: 2.0,
					MaxVolatility: 6.0, Horizon: "days",
				},
				Rules: breakoutRules,
			},
			domain.PresetBalanced: {
				ID:            domain.PresetBalanced,
				MinConfidence: 60,
				Params: BreakoutParams{
					LookbackBars: 20, BufferPct: 0.3, VolumeMult: 1.5,
					ATRPeriod: 14, ATRStopMult: 1.8, RewardMult: 2.0,
					MaxVolatility: 8.0, Horizon: "days",
				},
				Rules: breakoutRules,
			},
			domain.PresetAggressive: {
				ID:            domain.PresetAggressive,
				MinConfidence: 50,
				Params: BreakoutParams{
					LookbackBars: 10, BufferPct: 0.15, VolumeMult: 1.2,
					ATRPeriod: 14, ATRStopMult: 1.5, RewardMult: 2.5,
					MaxVolatility: 10.0, Horizon: "days",
				},
				Rules: breakoutRules,
			},
		},
	}
}

var breakoutRules = []string{
	"Close beyond the N-bar high/low by the buffer percentage",
	"Volume at least the configured multiple of its trailing average",
	"Stop clamped outside the breakout level, target at reward multiple",
}

func meanRevertSpec() domain.StrategySpec {
	return domain.StrategySpec{
		ID:          StrategyMeanRevert,
		Name:        "Bollinger Mean Reversion",
		Family:      StrategyMeanRevert,
		Description: "Fade closes at Bollinger extremes when no strong trend is running.",
		Presets: map[string]domain.StrategyPreset{
			domain.PresetConservative: {
				ID:            domain.PresetConservative,
				MinConfidence: 70,
				Params: BollingerParams{
					Period: 20, StdDevMult: 2.5, MaxTrendSpreadPct: 1.0,
					RSIPeriod: 14, RSIFloor: 25, RSICeil: 75,
					ATRPeriod: 14, ATRStopMult: 1.5, RewardMult: 1.5,
					Horizon: "days",
				},
				Rules: meanRevertRules,
			},
			domain.PresetBalanced: {
				ID:            domain.PresetBalanced,
				MinConfidence: 60,
				Params: BollingerParams{
					Period: 20, StdDevMult: 2.0, MaxTrendSpreadPct: 1.5,
					RSIPeriod: 14, RSIFloor: 30, RSICeil: 70,
					ATRPeriod: 14, ATRStopMult: 1.5, RewardMult: 1.5,
					Horizon: "days",
				},
				Rules: meanRevertRules,
			},
			domain.PresetAggressive: {
				ID:            domain.PresetAggressive,
				MinConfidence: 50,
				Params: BollingerParams{
					Period: 20, StdDevMult: 1.8, MaxTrendSpreadPct: 2.0,
					RSIPeriod: 14, RSIFloor: 35, RSICeil: 65,
					ATRPeriod: 14, ATRStopMult: 1.2, RewardMult: 2.0,
					Horizon: "days",
				},
				Rules: meanRevertRules,
			},
		},
	}
}

var meanRevertRules = []string{
	"Close at or beyond a Bollinger band extreme",
	"RSI confirms the extreme; strong trends disqualify the fade",
	"Stop beyond the band, target back toward the mean",
}

func momentumCatalystSpec() domain.StrategySpec {
	return domain.StrategySpec{
		ID:          StrategyMomentumCatalyst,
		Name:        "Catalyst Momentum",
		Family:      StrategyMomentumCatalyst,
		Description: "Rate-of-change thrust gated on a volume catalyst.",
		Presets: map[string]domain.StrategyPreset{
			domain.PresetConservative: {
				ID:            domain.PresetConservative,
				MinConfidence: 70,
				Params: MomentumParams{
					ROCBars: 5, MinROCPct: 3.0, VolumeMult: 2.5,
					MaxExtensionPct: 8.0,
					ATRPeriod:       14, ATRStopMult: 2.0, RewardMult: 2.0,
					Horizon: "days",
				},
				Rules: momentumRules,
			},
			domain.PresetBalanced: {
				ID:            domain.PresetBalanced,
				MinConfidence: 60,
				Params: MomentumParams{
					ROCBars: 5, MinROCPct: 2.0, VolumeMult: 2.0,
					MaxExtensionPct: 10.0,
					ATRPeriod:       14, ATRStopMult: 1.8, RewardMult: 2.0,
					Horizon: "days",
				},
				Rules: momentumRules,
			},
			domain.PresetAggressive: {
				ID:            domain.PresetAggressive,
				MinConfidence: 50,
				Params: MomentumParams{
					ROCBars: 3, MinROCPct: 1.5, VolumeMult: 1.5,
					MaxExtensionPct: 12.0,
					ATRPeriod:       14, ATRStopMult: 1.5, RewardMult: 2.5,
					Horizon: "intraday",
				},
				Rules: momentumRules,
			},
		},
	}
}

var momentumRules = []string{
	"Rate of change over the lookback exceeds the thrust threshold",
	"Volume catalyst: current volume at least the multiple of trailing average",
	"VWAP side agreement; overextended moves disqualify",
}
