package domain

import "time"

// Instrument identifies the tradeable instrument class.
type Instrument string

const (
	InstrumentStock  Instrument = "STOCK"
	InstrumentOption Instrument = "OPTION"
)

// Action is the direction a signal recommends.
type Action string

const (
	ActionBuy     Action = "BUY"
	ActionSell    Action = "SELL"
	ActionNoTrade Action = "NO_TRADE"
)

// Opposite returns the closing action for an open position.
func (a Action) Opposite() Action {
	switch a {
	case ActionBuy:
		return ActionSell
	case ActionSell:
		return ActionBuy
	default:
		return ActionNoTrade
	}
}

// Confidence bounds. Scores are clamped into [ConfidenceFloor, ConfidenceCeil]
// before comparison against preset minimums.
const (
	ConfidenceFloor = 5
	ConfidenceCeil  = 95
)

// MaxWhyReasons caps Signal.Why, prioritized trigger > confirmation > risk.
const MaxWhyReasons = 3

// TradePlan holds the price levels a signal proposes.
type TradePlan struct {
	Entry   float64 `json:"entry"`
	Stop    float64 `json:"stop"`
	Target  float64 `json:"target"`
	Horizon string  `json:"horizon"`
}

// Risk is the absolute distance between entry and stop (one R).
func (p TradePlan) Risk() float64 {
	r := p.Entry - p.Stop
	if r < 0 {
		return -r
	}
	return r
}

// Signal is a strategy's recommendation for a symbol at a point in time.
// Produced fresh on every evaluation and never mutated afterwards.
type Signal struct {
	Symbol       string     `json:"symbol"`
	Instrument   Instrument `json:"instrument"`
	Action       Action     `json:"action"`
	Confidence   int        `json:"confidence"`
	StrategyID   string     `json:"strategy_id"`
	PresetID     string     `json:"preset_id"`
	Why          []string   `json:"why"`
	Invalidation string     `json:"invalidation,omitempty"`
	TradePlan    *TradePlan `json:"trade_plan,omitempty"`
	GeneratedAt  time.Time  `json:"generated_at"`
}

// Actionable reports whether the signal proposes an entry.
func (s Signal) Actionable() bool {
	return s.Action == ActionBuy || s.Action == ActionSell
}

// NoTrade builds a NO_TRADE signal with the stated reason.
func NoTrade(symbol, strategyID, presetID, reason string, at time.Time) Signal {
	return Signal{
		Symbol:      symbol,
		Instrument:  InstrumentStock,
		Action:      ActionNoTrade,
		Confidence:  0,
		StrategyID:  strategyID,
		PresetID:    presetID,
		Why:         []string{reason},
		GeneratedAt: at,
	}
}

// ClampConfidence maps a raw score to the [ConfidenceFloor, ConfidenceCeil] band.
func ClampConfidence(score int) int {
	if score < ConfidenceFloor {
		return ConfidenceFloor
	}
	if score > ConfidenceCeil {
		return ConfidenceCeil
	}
	return score
}

// SignalEvent is the append-only audit row written for every evaluator
// emission, actionable or not.
type SignalEvent struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	StrategyID string    `json:"strategy_id"`
	PresetID   string    `json:"preset_id"`
	Action     Action    `json:"action"`
	Confidence int       `json:"confidence"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}
