package evaluator

import (
	"fmt"
	"time"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/indicator"
	"trade-autopilot/internal/registry"
)

// evalMomentum implements the momentum_catalyst family: a rate-of-change
// thrust that only counts when a volume catalyst accompanies it.
func evalMomentum(symbol, strategyID, presetID string, p registry.MomentumParams, series []domain.Candle, now time.Time) domain.Signal {
	closes := domain.Closes(series)
	last := closes[len(closes)-1]

	if len(closes) < p.ROCBars+1 {
		return domain.NoTrade(symbol, strategyID, presetID, ReasonIndicatorMissing, now)
	}
	ref := closes[len(closes)-1-p.ROCBars]
	if ref == 0 {
		return domain.NoTrade(symbol, strategyID, presetID, ReasonIndicatorMissing, now)
	}
	rocPct := (last - ref) / ref * 100

	atr, okATR := indicator.ATR(series, p.ATRPeriod)
	avgVol, okVol := indicator.AvgVolume(series, 20)
	sma, okSMA := indicator.SMA(closes, 20)
	vwap, okVWAP := indicator.VWAP(series)
	if !okATR || !okVol || !okSMA || !okVWAP {
		return domain.NoTrade(symbol, strategyID, presetID, ReasonIndicatorMissing, now)
	}

	absROC := rocPct
	if absROC < 0 {
		absROC = -absROC
	}
	if absROC < p.MinROCPct {
		return domain.NoTrade(symbol, strategyID, presetID,
			fmt.Sprintf("no momentum thrust (%.1f%% over %d bars)", rocPct, p.ROCBars), now)
	}

	action := domain.ActionBuy
	if rocPct < 0 {
		action = domain.ActionSell
	}

	// Disqualifier: thrust so far from the 20-bar mean that entry chases.
	extPct := (last - sma) / sma * 100
	if action == domain.ActionSell {
		extPct = -extPct
	}
	if extPct > p.MaxExtensionPct {
		return domain.NoTrade(symbol, strategyID, presetID,
			fmt.Sprintf("overextended %.1f%% beyond 20-bar mean", extPct), now)
	}

	// Catalyst gate: a thrust without volume is noise.
	volRatio := 0.0
	if avgVol > 0 {
		volRatio = series[len(series)-1].Volume / avgVol
	}
	if volRatio < p.VolumeMult {
		return domain.NoTrade(symbol, strategyID, presetID,
			fmt.Sprintf("catalyst volume missing (%.1fx < %.1fx average)", volRatio, p.VolumeMult), now)
	}

	// Confirmation: VWAP side agreement.
	if action == domain.ActionBuy && last <= vwap {
		return domain.NoTrade(symbol, strategyID, presetID, "close below VWAP", now)
	}
	if action == domain.ActionSell && last >= vwap {
		return domain.NoTrade(symbol, strategyID, presetID, "close above VWAP", now)
	}

	score := 50
	thrustMult := absROC / p.MinROCPct
	if thrustMult > 3 {
		thrustMult = 3
	}
	score += int(thrustMult * 8)
	volScore := (volRatio - p.VolumeMult) * 5
	if volScore > 15 {
		volScore = 15
	}
	if volScore > 0 {
		score += int(volScore)
	}
	score += 5 // VWAP agreement

	dir := "up"
	side := "above"
	if action == domain.ActionSell {
		dir = "down"
		side = "below"
	}
	why := []string{
		fmt.Sprintf("%.1f%% thrust %s over %d bars", absROC, dir, p.ROCBars),
		fmt.Sprintf("volume catalyst %.1fx trailing average, close %s VWAP", volRatio, side),
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
		Invalidation: fmt.Sprintf("close back %s VWAP", oppositeSide(side)),
		TradePlan:    plan(action, last, atr, p.ATRStopMult, p.RewardMult, 0, p.Horizon),
		GeneratedAt:  now,
	}
}
