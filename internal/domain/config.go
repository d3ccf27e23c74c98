package domain

import (
	"fmt"
	"time"
)

// Mode is the automation operating mode.
type Mode string

const (
	ModeOff         Mode = "OFF"
	ModePaper       Mode = "PAPER"
	ModeLive        Mode = "LIVE"
	ModeLiveConfirm Mode = "LIVE_CONFIRM"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeOff, ModePaper, ModeLive, ModeLiveConfirm:
		return true
	}
	return false
}

// IsLive reports whether the mode can place real orders.
func (m Mode) IsLive() bool {
	return m == ModeLive || m == ModeLiveConfirm
}

// NotionalCapPolicy controls what happens when a sized entry exceeds
// MaxNotionalPerTradeUSD.
type NotionalCapPolicy string

const (
	NotionalReject   NotionalCapPolicy = "reject"
	NotionalTruncate NotionalCapPolicy = "truncate"
)

// StrategySetting is the per-strategy activation entry in the config.
type StrategySetting struct {
	Enabled               bool   `json:"enabled"`
	PresetID              string `json:"preset_id"`
	MinConfidenceOverride *int   `json:"min_confidence_override,omitempty"`
}

// TimeWindow is a daily wall-clock window, "HH:MM" inclusive start,
// exclusive end, in the configured market timezone.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// AutomationConfig is the single versioned document steering the pipeline.
// Readers always see a complete snapshot; writers go through ConfigPatch.
type AutomationConfig struct {
	Version int64 `json:"version"`
	Mode    Mode  `json:"mode"`

	SymbolUniverse []string                   `json:"symbol_universe"`
	Strategies     map[string]StrategySetting `json:"strategies"`

	GlobalMinConfidence int `json:"global_min_confidence"`

	PositionNotionalUSD    float64           `json:"position_notional_usd"`
	MaxNotionalPerTradeUSD float64           `json:"max_notional_per_trade_usd"`
	NotionalCapPolicy      NotionalCapPolicy `json:"notional_cap_policy"`

	MaxOpenPositionsPerSymbol int `json:"max_open_positions_per_symbol"`
	MaxOpenPositionsTotal     int `json:"max_open_positions_total"`
	MaxTradesPerDay           int `json:"max_trades_per_day"`
	MaxNewPositionsPerTick    int `json:"max_new_positions_per_tick"`

	SignalDedupMinutes      int `json:"signal_dedup_minutes"`
	DedupMinConfidenceDelta int `json:"dedup_min_confidence_delta"`

	RequireMarketHours bool         `json:"require_market_hours"`
	NoTradeWindows     []TimeWindow `json:"no_trade_windows,omitempty"`

	RequireLiveAllowlist bool       `json:"require_live_allowlist"`
	LiveAllowlistSymbols []string   `json:"live_allowlist_symbols,omitempty"`
	LiveArmedUntil       *time.Time `json:"live_armed_until,omitempty"`

	HaltNewEntries bool       `json:"halt_new_entries"`
	HaltReason     string     `json:"halt_reason,omitempty"`
	HaltedAt       *time.Time `json:"halted_at,omitempty"`

	ManageOpenTradesEnabled bool    `json:"manage_open_trades_enabled"`
	EnableTrailingStop      bool    `json:"enable_trailing_stop"`
	TrailAfterR             float64 `json:"trail_after_r"`
	TrailLockInR            float64 `json:"trail_lock_in_r"`
	TimeStopDays            int     `json:"time_stop_days"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultAutomationConfig returns a safe starting config: automation off,
// paper-grade caps, trailing management enabled.
func DefaultAutomationConfig() AutomationConfig {
	return AutomationConfig{
		Version:                   1,
		Mode:                      ModeOff,
		Strategies:                map[string]StrategySetting{},
		GlobalMinConfidence:       55,
		PositionNotionalUSD:       1000,
		MaxNotionalPerTradeUSD:    2500,
		NotionalCapPolicy:         NotionalReject,
		MaxOpenPositionsPerSymbol: 1,
		MaxOpenPositionsTotal:     5,
		MaxTradesPerDay:           10,
		MaxNewPositionsPerTick:    3,
		SignalDedupMinutes:        240,
		DedupMinConfidenceDelta:   10,
		RequireMarketHours:        true,
		RequireLiveAllowlist:      true,
		ManageOpenTradesEnabled:   true,
		EnableTrailingStop:        true,
		TrailAfterR:               1.0,
		TrailLockInR:              0.5,
		TimeStopDays:              5,
		UpdatedAt:                 time.Now().UTC(),
	}
}

// Validate checks internal consistency. Called on every load and after
// every patch application.
func (c *AutomationConfig) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	if c.GlobalMinConfidence < 0 || c.GlobalMinConfidence > 100 {
		return fmt.Errorf("global_min_confidence %d out of range", c.GlobalMinConfidence)
	}
	if c.PositionNotionalUSD <= 0 {
		return fmt.Errorf("position_notional_usd must be positive")
	}
	if c.MaxNotionalPerTradeUSD <= 0 {
		return fmt.Errorf("max_notional_per_trade_usd must be positive")
	}
	switch c.NotionalCapPolicy {
	case NotionalReject, NotionalTruncate:
	default:
		return fmt.Errorf("invalid notional_cap_policy %q", c.NotionalCapPolicy)
	}
	if c.MaxOpenPositionsPerSymbol < 1 || c.MaxOpenPositionsTotal < 1 {
		return fmt.Errorf("position caps must be >= 1")
	}
	if c.MaxTradesPerDay < 0 || c.MaxNewPositionsPerTick < 1 {
		return fmt.Errorf("trade rate caps out of range")
	}
	if c.SignalDedupMinutes < 0 || c.DedupMinConfidenceDelta < 0 {
		return fmt.Errorf("dedup settings must be non-negative")
	}
	if c.TrailAfterR < 0 || c.TrailLockInR < 0 || c.TimeStopDays < 0 {
		return fmt.Errorf("lifecycle settings must be non-negative")
	}
	for _, w := range c.NoTradeWindows {
		if _, err := ParseClock(w.Start); err != nil {
			return fmt.Errorf("no_trade_window start: %w", err)
		}
		if _, err := ParseClock(w.End); err != nil {
			return fmt.Errorf("no_trade_window end: %w", err)
		}
	}
	for id, s := range c.Strategies {
		if id == "" {
			return fmt.Errorf("empty strategy id in strategies map")
		}
		if s.Enabled && s.PresetID == "" {
			return fmt.Errorf("strategy %s enabled without preset", id)
		}
		if s.MinConfidenceOverride != nil {
			if v := *s.MinConfidenceOverride; v < 0 || v > 100 {
				return fmt.Errorf("strategy %s min_confidence_override %d out of range", id, v)
			}
		}
	}
	return nil
}

// LiveArmed reports whether live execution is currently armed.
func (c *AutomationConfig) LiveArmed(now time.Time) bool {
	return c.LiveArmedUntil != nil && now.Before(*c.LiveArmedUntil)
}

// SymbolAllowedLive checks the live allowlist when it is required.
func (c *AutomationConfig) SymbolAllowedLive(symbol string) bool {
	if !c.RequireLiveAllowlist {
		return true
	}
	for _, s := range c.LiveAllowlistSymbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// MinConfidenceFor resolves the effective confidence floor for a strategy.
func (c *AutomationConfig) MinConfidenceFor(strategyID string) int {
	if s, ok := c.Strategies[strategyID]; ok && s.MinConfidenceOverride != nil {
		return *s.MinConfidenceOverride
	}
	return c.GlobalMinConfidence
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return h*60 + m, nil
}

// ConfigPatch is a partial update to AutomationConfig. Nil fields are left
// unchanged. Apply validates the result and bumps Version.
type ConfigPatch struct {
	Mode *Mode `json:"mode,omitempty"`

	SymbolUniverse *[]string                   `json:"symbol_universe,omitempty"`
	Strategies     *map[string]StrategySetting `json:"strategies,omitempty"`

	GlobalMinConfidence *int `json:"global_min_confidence,omitempty"`

	PositionNotionalUSD    *float64           `json:"position_notional_usd,omitempty"`
	MaxNotionalPerTradeUSD *float64           `json:"max_notional_per_trade_usd,omitempty"`
	NotionalCapPolicy      *NotionalCapPolicy `json:"notional_cap_policy,omitempty"`

	MaxOpenPositionsPerSymbol *int `json:"max_open_positions_per_symbol,omitempty"`
	MaxOpenPositionsTotal     *int `json:"max_open_positions_total,omitempty"`
	MaxTradesPerDay           *int `json:"max_trades_per_day,omitempty"`
	MaxNewPositionsPerTick    *int `json:"max_new_positions_per_tick,omitempty"`

	SignalDedupMinutes      *int `json:"signal_dedup_minutes,omitempty"`
	DedupMinConfidenceDelta *int `json:"dedup_min_confidence_delta,omitempty"`

	RequireMarketHours *bool         `json:"require_market_hours,omitempty"`
	NoTradeWindows     *[]TimeWindow `json:"no_trade_windows,omitempty"`

	RequireLiveAllowlist *bool       `json:"require_live_allowlist,omitempty"`
	LiveAllowlistSymbols *[]string   `json:"live_allowlist_symbols,omitempty"`
	LiveArmedUntil       **time.Time `json:"-"`
	ArmLiveMinutes       *int        `json:"arm_live_minutes,omitempty"`

	HaltNewEntries *bool   `json:"halt_new_entries,omitempty"`
	HaltReason     *string `json:"halt_reason,omitempty"`

	ManageOpenTradesEnabled *bool    `json:"manage_open_trades_enabled,omitempty"`
	EnableTrailingStop      *bool    `json:"enable_trailing_stop,omitempty"`
	TrailAfterR             *float64 `json:"trail_after_r,omitempty"`
	TrailLockInR            *float64 `json:"trail_lock_in_r,omitempty"`
	TimeStopDays            *int     `json:"time_stop_days,omitempty"`
}

// Apply merges the patch into a copy of cfg, enforces transition rules,
// validates and bumps the version. The receiver config is not modified.
func (p *ConfigPatch) Apply(cfg AutomationConfig, now time.Time) (AutomationConfig, error) {
	out := cfg

	if p.Mode != nil {
		out.Mode = *p.Mode
	}
	if p.SymbolUniverse != nil {
		out.SymbolUniverse = append([]string(nil), (*p.SymbolUniverse)...)
	}
	if p.Strategies != nil {
		// Preset changes are locked while live execution is possible.
		if cfg.Mode.IsLive() && (p.Mode == nil || p.Mode.IsLive()) {
			for id, ns := range *p.Strategies {
				if os, ok := cfg.Strategies[id]; ok && os.Enabled && os.PresetID != ns.PresetID {
					return cfg, fmt.Errorf("%w: preset for %s locked while mode is %s",
						ErrInvalidPatch, id, cfg.Mode)
				}
			}
		}
		m := make(map[string]StrategySetting, len(*p.Strategies))
		for id, s := range *p.Strategies {
			m[id] = s
		}
		out.Strategies = m
	}
	if p.GlobalMinConfidence != nil {
		out.GlobalMinConfidence = *p.GlobalMinConfidence
	}
	if p.PositionNotionalUSD != nil {
		out.PositionNotionalUSD = *p.PositionNotionalUSD
	}
	if p.MaxNotionalPerTradeUSD != nil {
		out.MaxNotionalPerTradeUSD = *p.MaxNotionalPerTradeUSD
	}
	if p.NotionalCapPolicy != nil {
		out.NotionalCapPolicy = *p.NotionalCapPolicy
	}
	if p.MaxOpenPositionsPerSymbol != nil {
		out.MaxOpenPositionsPerSymbol = *p.MaxOpenPositionsPerSymbol
	}
	if p.MaxOpenPositionsTotal != nil {
		out.MaxOpenPositionsTotal = *p.MaxOpenPositionsTotal
	}
	if p.MaxTradesPerDay != nil {
		out.MaxTradesPerDay = *p.MaxTradesPerDay
	}
	if p.MaxNewPositionsPerTick != nil {
		out.MaxNewPositionsPerTick = *p.MaxNewPositionsPerTick
	}
	if p.SignalDedupMinutes != nil {
		out.SignalDedupMinutes = *p.SignalDedupMinutes
	}
	if p.DedupMinConfidenceDelta != nil {
		out.DedupMinConfidenceDelta = *p.DedupMinConfidenceDelta
	}
	if p.RequireMarketHours != nil {
		out.RequireMarketHours = *p.RequireMarketHours
	}
	if p.NoTradeWindows != nil {
		out.NoTradeWindows = append([]TimeWindow(nil), (*p.NoTradeWindows)...)
	}
	if p.RequireLiveAllowlist != nil {
		out.RequireLiveAllowlist = *p.RequireLiveAllowlist
	}
	if p.LiveAllowlistSymbols != nil {
		out.LiveAllowlistSymbols = append([]string(nil), (*p.LiveAllowlistSymbols)...)
	}
	if p.ArmLiveMinutes != nil {
		if *p.ArmLiveMinutes <= 0 {
			out.LiveArmedUntil = nil
		} else {
			until := now.Add(time.Duration(*p.ArmLiveMinutes) * time.Minute)
			out.LiveArmedUntil = &until
		}
	}
	if p.HaltNewEntries != nil {
		out.HaltNewEntries = *p.HaltNewEntries
		if out.HaltNewEntries {
			t := now
			out.HaltedAt = &t
			if p.HaltReason != nil {
				out.HaltReason = *p.HaltReason
			}
		} else {
			out.HaltedAt = nil
			out.HaltReason = ""
		}
	} else if p.HaltReason != nil {
		out.HaltReason = *p.HaltReason
	}
	if p.ManageOpenTradesEnabled != nil {
		out.ManageOpenTradesEnabled = *p.ManageOpenTradesEnabled
	}
	if p.EnableTrailingStop != nil {
		out.EnableTrailingStop = *p.EnableTrailingStop
	}
	if p.TrailAfterR != nil {
		out.TrailAfterR = *p.TrailAfterR
	}
	if p.TrailLockInR != nil {
		out.TrailLockInR = *p.TrailLockInR
	}
	if p.TimeStopDays != nil {
		out.TimeStopDays = *p.TimeStopDays
	}

	if err := out.Validate(); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	out.Version = cfg.Version + 1
	out.UpdatedAt = now
	return out, nil
}
