package evaluator

import (
	"fmt"
	"time"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/indicator"
	"trade-autopilot/internal/registry"
)

// evalBreakout implements the breakout family: close beyond the rolling
// high/low by a buffer percentage, confirmed by volume expansion.
func evalBreakout(symbol, strategyID, presetID string, p registry.BreakoutParams, series []domain.Candle, now time.Time) domain.Signal {
	last := series[len(series)-1].Close

	hi, okHi := indicator.RollingHigh(series, p.LookbackBars)
	lo, okLo := indicator.RollingLow(series, p.LookbackBars)
	atr, okATR := indicator.ATR(series, p.ATRPeriod)
	avgVol, okVol := indicator.AvgVolume(series, 20)
	if !okHi || !okLo || !okATR || !okVol {
		return domain.NoTrade(symbol, strategyID, presetID, ReasonIndicatorMissing, now)
	}

	// Disqualifier: volatility above the preset ceiling makes breakout
	// stops untenable.
	if volPct := atr / last * 100; volPct > p.MaxVolatility {
		return domain.NoTrade(symbol, strategyID, presetID,
			fmt.Sprintf("volatility %.1f%% above preset ceiling %.1f%%", volPct, p.MaxVolatility), now)
	}

	upLevel := hi * (1 + p.BufferPct/100)
	downLevel := lo * (1 - p.BufferPct/100)

	var action domain.Action
	var level float64
	var breakoutPct float64
	switch {
	case last > upLevel:
		action = domain.ActionBuy
		level = hi
		breakoutPct = (last - hi) / hi * 100
	case last < downLevel:
		action = domain.ActionSell
		level = lo
		breakoutPct = (lo - last) / lo * 100
	default:
		return domain.NoTrade(symbol, strategyID, presetID,
			fmt.Sprintf("no breakout beyond %d-bar range", p.LookbackBars), now)
	}

	// Confirmation: volume expansion.
	volRatio := 0.0
	if avgVol > 0 {
		volRatio = series[len(series)-1].Volume / avgVol
	}
	if volRatio < p.VolumeMult {
		return domain.NoTrade(symbol, strategyID, presetID,
			fmt.Sprintf("volume expansion missing (%.1fx < %.1fx average)", volRatio, p.VolumeMult), now)
	}

	score := 50
	bufferMult := breakoutPct / maxFloat(p.BufferPct, 0.05)
	if bufferMult > 3 {
		bufferMult = 3
	}
	score += int(bufferMult * 8)
	volScore := (volRatio - p.VolumeMult) * 5
	if volScore > 15 {
		volScore = 15
	}
	if volScore > 0 {
		score += int(volScore)
	}
	if vwap, ok := indicator.VWAP(series); ok {
		if (action == domain.ActionBuy && last > vwap) || (action == domain.ActionSell && last < vwap) {
			score += 5
		}
	}

	dir := "above"
	edge := "high"
	if action == domain.ActionSell {
		dir = "below"
		edge = "low"
	}
	why := []string{
		fmt.Sprintf("close %.1f%% %s the %d-bar %s", breakoutPct, dir, p.LookbackBars, edge),
		fmt.Sprintf("volume %.1fx trailing average", volRatio),
		riskReason(action, p.ATRStopMult, p.RewardMult),
	}

	return domain.Signal{
		Symbol:       symbol,
		Instrument:   domain.InstrumentStock,
		Action:       action,
		Confidence:   score,
		StrategyID:   strategyID,
		PresetID:     presetID,
		Why:          why,
		Invalidation: fmt.Sprintf("close back %s the %d-bar %s", oppositeSide(dir), p.LookbackBars, edge),
		TradePlan:    plan(action, last, atr, p.ATRStopMult, p.RewardMult, level, p.Horizon),
		GeneratedAt:  now,
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
