// Package config resolves the platform-wide launch stage and the permission
// flags derived from it. The stage is re-read from the environment on every
// evaluation so operators can flip it without a process restart.
package config

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

// Stage is the platform launch stage.
type Stage string

const (
	StagePre  Stage = "pre"
	StagePost Stage = "post"
)

// RiskLevel classifies how dangerous an autonomous action is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// StageEnvVar is the environment variable the gate reads.
const StageEnvVar = "AUTOPILOT_LAUNCH_STAGE"

// Gate derives execution permissions from the launch stage.
// All methods are read-only and safe for concurrent use.
type Gate struct {
	lookup func(string) string
	logger *zap.Logger

	warnOnce sync.Map // map[string]struct{}, one warning per bad value
}

// NewGate builds a Gate reading the real process environment.
func NewGate(logger *zap.Logger) *Gate {
	return NewGateWithLookup(os.Getenv, logger)
}

// NewGateWithLookup builds a Gate with an injected environment lookup.
// Tests use this to construct isolated gates.
func NewGateWithLookup(lookup func(string) string, logger *zap.Logger) *Gate {
	return &Gate{lookup: lookup, logger: logger}
}

// Stage reads and normalizes the launch stage. Unrecognized values fail soft
// to pre with a warning; the gate never fails hard.
func (g *Gate) Stage() Stage {
	raw := g.lookup(StageEnvVar)
	switch raw {
	case "", string(StagePre):
		return StagePre
	case string(StagePost):
		return StagePost
	default:
		if _, seen := g.warnOnce.LoadOrStore(raw, struct{}{}); !seen {
			g.logger.Warn("unrecognized launch stage, falling back to pre",
				zap.String("value", raw),
			)
		}
		return StagePre
	}
}

// CanExecute is the platform-wide dry-run/live switch.
// Pre-launch nothing executes; post-launch everything but high risk does.
func (g *Gate) CanExecute(risk RiskLevel) bool {
	if g.Stage() != StagePost {
		return false
	}
	return risk != RiskHigh
}

// Flags holds the permission flags derived from the launch stage.
type Flags struct {
	Stage               Stage `json:"stage"`
	GrowthExecute       bool  `json:"growth_execute"`
	ContentPosting      bool  `json:"content_posting"`
	GitCommits          bool  `json:"git_commits"`
	HighRiskAutoApprove bool  `json:"high_risk_auto_approve"`
}

// Flags computes the current permission flags.
// HighRiskAutoApprove is always false regardless of stage.
func (g *Gate) Flags() Flags {
	post := g.Stage() == StagePost
	return Flags{
		Stage:               g.Stage(),
		GrowthExecute:       post,
		ContentPosting:      post,
		GitCommits:          post,
		HighRiskAutoApprove: false,
	}
}
