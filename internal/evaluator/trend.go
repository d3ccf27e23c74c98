package evaluator

import (
	"fmt"
	"time"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/indicator"
	"trade-autopilot/internal/registry"
)

// evalTrend implements the trend_follow family: fast/slow EMA alignment
// with price and VWAP confirmation.
func evalTrend(symbol, strategyID, presetID string, p registry.TrendParams, series []domain.Candle, now time.Time) domain.Signal {
	closes := domain.Closes(series)
	last := closes[len(closes)-1]

	fast, okFast := indicator.EMA(closes, p.EMAFast)
	slow, okSlow := indicator.EMA(closes, p.EMASlow)
	atr, okATR := indicator.ATR(series, p.ATRPeriod)
	vwap, okVWAP := indicator.VWAP(series)
	if !okFast || !okSlow || !okATR || !okVWAP {
		return domain.NoTrade(symbol, strategyID, presetID, ReasonIndicatorMissing, now)
	}

	spreadPct := (fast - slow) / slow * 100
	absSpread := spreadPct
	if absSpread < 0 {
		absSpread = -absSpread
	}
	if absSpread < p.MinEMASpreadPct {
		return domain.NoTrade(symbol, strategyID, presetID, "regime not trending", now)
	}

	action := domain.ActionBuy
	if spreadPct < 0 {
		action = domain.ActionSell
	}

	// Disqualifier: price stretched too far from the fast EMA invites a
	// snap-back against the entry.
	extPct := (last - fast) / fast * 100
	if action == domain.ActionSell {
		extPct = -extPct
	}
	if extPct > p.MaxExtensionPct {
		return domain.NoTrade(symbol, strategyID, presetID,
			fmt.Sprintf("overextended %.1f%% beyond fast EMA", extPct), now)
	}

	// Entry trigger: close on the trend side of the fast EMA.
	if action == domain.ActionBuy && last <= fast {
		return domain.NoTrade(symbol, strategyID, presetID, "close not above fast EMA", now)
	}
	if action == domain.ActionSell && last >= fast {
		return domain.NoTrade(symbol, strategyID, presetID, "close not below fast EMA", now)
	}

	// Confirmation: VWAP side agreement.
	if action == domain.ActionBuy && last <= vwap {
		return domain.NoTrade(symbol, strategyID, presetID, "close below VWAP", now)
	}
	if action == domain.ActionSell && last >= vwap {
		return domain.NoTrade(symbol, strategyID, presetID, "close above VWAP", now)
	}

	score := 50
	spreadMult := absSpread / p.MinEMASpreadPct
	if spreadMult > 3 {
		spreadMult = 3
	}
	score += int(spreadMult * 10)
	score += 10 // VWAP agreement

	volBonus := false
	if avgVol, ok := indicator.AvgVolume(series, 20); ok && avgVol > 0 {
		if series[len(series)-1].Volume >= avgVol*p.VolumeBonusMult {
			score += 10
			volBonus = true
		}
	}

	side := "above"
	if action == domain.ActionSell {
		side = "below"
	}
	why := []string{
		fmt.Sprintf("EMA%d %s EMA%d by %.1f%% with close %s EMA%d",
			p.EMAFast, side, p.EMASlow, absSpread, side, p.EMAFast),
		fmt.Sprintf("close %s VWAP", side),
		riskReason(action, p.ATRStopMult, p.RewardMult),
	}
	if volBonus {
		why[1] = fmt.Sprintf("close %s VWAP with volume expansion", side)
	}

	return domain.Signal{
		Symbol:       symbol,
		Instrument:   domain.InstrumentStock,
		Action:       action,
		Confidence:   score,
		StrategyID:   strategyID,
		PresetID:     presetID,
		Why:          why,
		Invalidation: fmt.Sprintf("close back %s EMA%d", oppositeSide(side), p.EMAFast),
		TradePlan:    plan(action, last, atr, p.ATRStopMult, p.RewardMult, 0, p.Horizon),
		GeneratedAt:  now,
	}
}

func oppositeSide(side string) string {
	if side == "above" {
		return "below"
	}
	return "above"
}
