package governance

import (
	"testing"

	"go.uber.org/zap"

	"github.com/flowforge-ai/autopilot/internal/config"
)

func stageGate(stage string) *config.Gate {
	return config.NewGateWithLookup(func(string) string { return stage }, zap.NewNop())
}

func TestDecide_Matrix(t *testing.T) {
	cases := []struct {
		stage  string
		impact ImpactLevel
		want   Disposition
	}{
		{"pre", ImpactA, DispositionSimulate},
		{"pre", ImpactB, DispositionSimulate},
		{"pre", ImpactC, DispositionHold},
		{"post", ImpactA, DispositionExecute},
		{"post", ImpactB, DispositionExecute},
		{"post", ImpactC, DispositionHold},
	}

	for _, tc := range cases {
		if got := Decide(stageGate(tc.stage), tc.impact); got != tc.want {
			t.Errorf("stage=%s impact=%s: got %s, want %s", tc.stage, tc.impact, got, tc.want)
		}
	}
}

func TestDecide_ImpactCHoldsUnderAnyStage(t *testing.T) {
	for _, stage := range []string{"pre", "post", "", "nonsense"} {
		if got := Decide(stageGate(stage), ImpactC); got != DispositionHold {
			t.Errorf("stage %q: impact C got %s, must always hold", stage, got)
		}
	}
}

func TestImpactLevel_RiskMapping(t *testing.T) {
	cases := map[ImpactLevel]config.RiskLevel{
		ImpactA: config.RiskLow,
		ImpactB: config.RiskMedium,
		ImpactC: config.RiskHigh,
	}
	for impact, want := range cases {
		if got := impact.Risk(); got != want {
			t.Errorf("%s: got %s, want %s", impact, got, want)
		}
	}
}
