package registry

import (
	"testing"

	"trade-autopilot/internal/domain"
)

func TestNewCatalogValidates(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	specs := r.List()
	if len(specs) != 4 {
		t.Fatalf("catalog has %d strategies; want 4", len(specs))
	}

	for _, spec := range specs {
		for _, presetID := range []string{domain.PresetConservative, domain.PresetBalanced, domain.PresetAggressive} {
			p, ok := spec.Preset(presetID)
			if !ok {
				t.Fatalf("%s missing preset %s", spec.ID, presetID)
			}
			if p.MinConfidence < domain.ConfidenceFloor || p.MinConfidence > domain.ConfidenceCeil {
				t.Fatalf("%s/%s min_confidence %d out of band", spec.ID, presetID, p.MinConfidence)
			}
			if len(p.Rules) == 0 {
				t.Fatalf("%s/%s has no rule descriptions", spec.ID, presetID)
			}
		}
	}
}

func TestPresetLookup(t *testing.T) {
	r := MustNew()

	spec, preset, err := r.Preset(StrategyTrendFollow, domain.PresetBalanced)
	if err != nil {
		t.Fatalf("Preset failed: %v", err)
	}
	if spec.ID != StrategyTrendFollow || preset.ID != domain.PresetBalanced {
		t.Fatalf("wrong lookup: %s / %s", spec.ID, preset.ID)
	}
	params, ok := preset.Params.(TrendParams)
	if !ok {
		t.Fatalf("trend preset params have type %T", preset.Params)
	}
	if params.EMAFast != 20 || params.EMASlow != 50 {
		t.Fatalf("unexpected balanced trend windows: %+v", params)
	}

	if _, _, err := r.Preset("nope", domain.PresetBalanced); err == nil {
		t.Fatal("unknown strategy should error")
	}
	if _, _, err := r.Preset(StrategyBreakout, "extreme"); err == nil {
		t.Fatal("unknown preset should error")
	}
}

func TestConservativeTighterThanAggressive(t *testing.T) {
	r := MustNew()
	for _, id := range []string{StrategyTrendFollow, StrategyBreakout, StrategyMeanRevert, StrategyMomentumCatalyst} {
		spec, _ := r.Get(id)
		cons, _ := spec.Preset(domain.PresetConservative)
		aggr, _ := spec.Preset(domain.PresetAggressive)
		if cons.MinConfidence <= aggr.MinConfidence {
			t.Fatalf("%s: conservative floor %d should exceed aggressive %d",
				id, cons.MinConfidence, aggr.MinConfidence)
		}
	}
}
