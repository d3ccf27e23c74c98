package evaluator

import (
	"fmt"
	"time"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/indicator"
	"trade-autopilot/internal/registry"
)

// evalMeanRevert implements the meanrevert_bollinger family: fade closes
// at a Bollinger extreme when no strong trend is running, with RSI
// confirming the extreme.
func evalMeanRevert(symbol, strategyID, presetID string, p registry.BollingerParams, series []domain.Candle, now time.Time) domain.Signal {
	closes := domain.Closes(series)
	last := closes[len(closes)-1]

	mid, upper, lower, okBands := indicator.Bollinger(closes, p.Period, p.StdDevMult)
	rsi, okRSI := indicator.RSI(closes, p.RSIPeriod)
	atr, okATR := indicator.ATR(series, p.ATRPeriod)
	fast, okFast := indicator.EMA(closes, 20)
	slow, okSlow := indicator.EMA(closes, 50)
	if !okBands || !okRSI || !okATR || !okFast || !okSlow {
		return domain.NoTrade(symbol, strategyID, presetID, ReasonIndicatorMissing, now)
	}

	// Disqualifier: fading a strong trend is how mean reversion loses.
	spreadPct := (fast - slow) / slow * 100
	if spreadPct < 0 {
		spreadPct = -spreadPct
	}
	if spreadPct > p.MaxTrendSpreadPct {
		return domain.NoTrade(symbol, strategyID, presetID,
			fmt.Sprintf("strong trend against reversion (EMA spread %.1f%%)", spreadPct), now)
	}

	var action domain.Action
	var level float64
	switch {
	case last <= lower:
		action = domain.ActionBuy
		level = lower
	case last >= upper:
		action = domain.ActionSell
		level = upper
	default:
		return domain.NoTrade(symbol, strategyID, presetID, "no Bollinger band extreme", now)
	}

	// Confirmation: RSI agrees with the extreme.
	if action == domain.ActionBuy && rsi > p.RSIFloor {
		return domain.NoTrade(symbol, strategyID, presetID,
			fmt.Sprintf("RSI %.0f above oversold floor %.0f", rsi, p.RSIFloor), now)
	}
	if action == domain.ActionSell && rsi < p.RSICeil {
		return domain.NoTrade(symbol, strategyID, presetID,
			fmt.Sprintf("RSI %.0f below overbought ceiling %.0f", rsi, p.RSICeil), now)
	}

	score := 50

	// Band penetration depth, as a fraction of the band half-width.
	halfWidth := upper - mid
	if halfWidth > 0 {
		var depth float64
		if action == domain.ActionBuy {
			depth = (lower - last) / halfWidth
		} else {
			depth = (last - upper) / halfWidth
		}
		if depth < 0 {
			depth = 0
		}
		if depth > 1 {
			depth = 1
		}
		score += int(depth * 20)
	}

	// RSI distance beyond its threshold.
	var rsiDepth float64
	if action == domain.ActionBuy {
		rsiDepth = p.RSIFloor - rsi
	} else {
		rsiDepth = rsi - p.RSICeil
	}
	if rsiDepth > 15 {
		rsiDepth = 15
	}
	if rsiDepth > 0 {
		score += int(rsiDepth)
	}
	score += 5 // quiet-regime filter already passed

	edge := "lower"
	rsiWord := "oversold"
	if action == domain.ActionSell {
		edge = "upper"
		rsiWord = "overbought"
	}
	why := []string{
		fmt.Sprintf("close at the %s Bollinger band (%.1f sigma)", edge, p.StdDevMult),
		fmt.Sprintf("RSI %.0f %s", rsi, rsiWord),
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
		Invalidation: fmt.Sprintf("close beyond the %s band with RSI worsening", edge),
		TradePlan:    plan(action, last, atr, p.ATRStopMult, p.RewardMult, level, p.Horizon),
		GeneratedAt:  now,
	}
}
