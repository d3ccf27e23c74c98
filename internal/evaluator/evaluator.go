// Package evaluator turns a candle series into a Signal for one
// strategy/preset pair. Evaluation is deterministic: indicators are
// computed from the series alone, disqualifiers run first, then entry
// triggers, then confirmations, and the bounded score is clamped into the
// confidence band before the preset minimum is applied.
package evaluator

import (
	"fmt"
	"time"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/registry"
)

// Reasons shared across families.
const (
	ReasonInsufficientHistory = "insufficient history"
	ReasonIndicatorMissing    = "indicator unavailable"
)

// Evaluator evaluates strategies from the registry catalog.
type Evaluator struct {
	registry *registry.Registry
}

// New creates an Evaluator over the given catalog.
func New(reg *registry.Registry) *Evaluator {
	return &Evaluator{registry: reg}
}

// Evaluate produces a Signal for symbol under strategyID/presetID.
// An unknown strategy or preset is a configuration error and returns a
// non-nil error; every data problem degrades to a NO_TRADE signal instead.
func (e *Evaluator) Evaluate(symbol, strategyID, presetID string, candles []domain.Candle, now time.Time) (domain.Signal, error) {
	spec, preset, err := e.registry.Preset(strategyID, presetID)
	if err != nil {
		return domain.Signal{}, err
	}

	series := domain.CleanCandles(candles)
	if len(series) < domain.MinCandles {
		return domain.NoTrade(symbol, spec.ID, preset.ID, ReasonInsufficientHistory, now), nil
	}

	var sig domain.Signal
	switch params := preset.Params.(type) {
	case registry.TrendParams:
		sig = evalTrend(symbol, spec.ID, preset.ID, params, series, now)
	case registry.BreakoutParams:
		sig = evalBreakout(symbol, spec.ID, preset.ID, params, series, now)
	case registry.BollingerParams:
		sig = evalMeanRevert(symbol, spec.ID, preset.ID, params, series, now)
	case registry.MomentumParams:
		sig = evalMomentum(symbol, spec.ID, preset.ID, params, series, now)
	default:
		return domain.Signal{}, fmt.Errorf("strategy %q: unsupported param type %T", spec.ID, preset.Params)
	}

	if !sig.Actionable() {
		return sig, nil
	}

	sig.Confidence = domain.ClampConfidence(sig.Confidence)
	if sig.Confidence < preset.MinConfidence {
		reason := fmt.Sprintf("confidence %d below preset minimum %d", sig.Confidence, preset.MinConfidence)
		return domain.NoTrade(symbol, spec.ID, preset.ID, reason, now), nil
	}
	if len(sig.Why) > domain.MaxWhyReasons {
		sig.Why = sig.Why[:domain.MaxWhyReasons]
	}
	return sig, nil
}

// plan builds the trade plan for a long or short entry. stopLevel, when
// non-zero, is the structure level the stop must not sit inside of; for a
// BUY the stop is clamped down to it, for a SELL clamped up.
func plan(action domain.Action, entry, atr, stopMult, rewardMult float64, stopLevel float64, horizon string) *domain.TradePlan {
	var stop float64
	if action == domain.ActionBuy {
		stop = entry - atr*stopMult
		if stopLevel > 0 && stop > stopLevel {
			stop = stopLevel
		}
	} else {
		stop = entry + atr*stopMult
		if stopLevel > 0 && stop < stopLevel {
			stop = stopLevel
		}
	}

	risk := entry - stop
	if risk < 0 {
		risk = -risk
	}
	var target float64
	if action == domain.ActionBuy {
		target = entry + risk*rewardMult
	} else {
		target = entry - risk*rewardMult
	}

	return &domain.TradePlan{
		Entry:   entry,
		Stop:    stop,
		Target:  target,
		Horizon: horizon,
	}
}

func riskReason(action domain.Action, stopMult, rewardMult float64) string {
	side := "below"
	if action == domain.ActionSell {
		side = "above"
	}
	return fmt.Sprintf("stop %.1fxATR %s entry, target %.1fR", stopMult, side, rewardMult)
}
