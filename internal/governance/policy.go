package governance

import "github.com/flowforge-ai/autopilot/internal/config"

// Disposition is what a caller must do with a proposed action before (or
// instead of) executing it. The policy lives caller-side so the queue itself
// stays a generic primitive.
type Disposition int

const (
	// DispositionHold: enqueue and wait for explicit human approval.
	// Impact C always holds, regardless of launch stage.
	DispositionHold Disposition = iota + 1

	// DispositionExecute: the caller may execute immediately and enqueue
	// only for audit (fire-and-forget record). Only A/B post-launch.
	DispositionExecute

	// DispositionSimulate: dry-run. Compute and log the effect, apply
	// nothing externally. Everything pre-launch that is not impact C.
	DispositionSimulate
)

// String returns the lowercase disposition name.
func (d Disposition) String() string {
	switch d {
	case DispositionHold:
		return "hold"
	case DispositionExecute:
		return "execute"
	case DispositionSimulate:
		return "simulate"
	default:
		return "unspecified"
	}
}

// Decide maps (launch stage, impact level) to the required disposition.
//
// The gate's CanExecute is deliberately NOT consulted for impact C: there is
// no configuration under which a C action bypasses human approval.
func Decide(gate *config.Gate, impact ImpactLevel) Disposition {
	if impact == ImpactC {
		return DispositionHold
	}
	if gate.CanExecute(impact.Risk()) {
		return DispositionExecute
	}
	return DispositionSimulate
}
