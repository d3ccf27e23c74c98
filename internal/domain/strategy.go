package domain

// PresetID names one of the three risk postures every strategy ships with.
const (
	PresetConservative = "conservative"
	PresetBalanced     = "balanced"
	PresetAggressive   = "aggressive"
)

// StrategyPreset is one named parameterization of a strategy. Params is a
// family-specific struct owned by the registry; the evaluator type-asserts
// it to the family's param type.
type StrategyPreset struct {
	ID            string   `json:"id"`
	MinConfidence int      `json:"min_confidence"`
	Params        any      `json:"params"`
	Rules         []string `json:"rules"`
}

// StrategySpec is an immutable catalog entry: one strategy family with its
// three presets.
type StrategySpec struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Family      string                    `json:"family"`
	Description string                    `json:"description"`
	Presets     map[string]StrategyPreset `json:"presets"`
}

// Preset returns the named preset, or false when the strategy does not
// carry it.
func (s StrategySpec) Preset(id string) (StrategyPreset, bool) {
	p, ok := s.Presets[id]
	return p, ok
}
