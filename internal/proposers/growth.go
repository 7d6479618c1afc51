package proposers

import (
	"context"
	"encoding/json"
	"math/rand"

	"github.com/flowforge-ai/autopilot/internal/governance"
)

// GrowthMutation proposes workflow mutations from the growth engine.
// The scoring here is a sample placeholder; the real engine plugs in behind
// the same Proposer interface.
type GrowthMutation struct {
	TenantID string
}

func (g *GrowthMutation) Name() string { return "growth_mutation" }

func (g *GrowthMutation) Propose(_ context.Context) ([]*Proposal, error) {
	score := rand.Float64()
	if score < 0.5 {
		return nil, nil
	}

	payload, _ := json.Marshal(map[string]any{
		"mutation": "adjust_onboarding_flow",
		"score":    score,
	})
	return []*Proposal{{
		ActionType:  governance.TypeGrowthMutation,
		Payload:     payload,
		Reason:      "mutation candidate scored above activation threshold",
		ImpactLevel: governance.ImpactB,
		TenantID:    g.TenantID,
		OwnerID:     g.Name(),
		TokensUsed:  1200, // scoring pass over the workflow graph
	}}, nil
}

// ContentDistribution proposes publishing generated content. Publishing is
// externally visible, so it carries impact B and respects the launch gate.
type ContentDistribution struct {
	TenantID string
}

func (c *ContentDistribution) Name() string { return "content_distribution" }

func (c *ContentDistribution) Propose(_ context.Context) ([]*Proposal, error) {
	payload, _ := json.Marshal(map[string]any{
		"channel": "blog",
		"drafts":  1,
	})
	return []*Proposal{{
		ActionType:  governance.TypeContentDistribution,
		Payload:     payload,
		Reason:      "scheduled content distribution cycle",
		ImpactLevel: governance.ImpactB,
		TenantID:    c.TenantID,
		OwnerID:     c.Name(),
		TokensUsed:  4000, // one generated draft
	}}, nil
}
