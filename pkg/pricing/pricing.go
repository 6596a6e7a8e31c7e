package pricing

import (
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/event"
)

const tokensPerMillion = 1_000_000

// Model maps model ids to tiers and prices token tallies.
//
// The tier table is copied at construction and never mutated afterwards,
// so a Model is safe for concurrent use.
type Model struct {
	tiers    map[string]Tier
	fallback Tier
}

// New creates a pricing model from a tier table and a fallback tier.
//
// The table is defensively copied; callers may freely reuse or mutate
// their map afterwards.
func New(tiers map[string]Tier, fallback Tier) *Model {
	copied := make(map[string]Tier, len(tiers))
	for id, tier := range tiers {
		copied[id] = tier
	}

	return &Model{
		tiers:    copied,
		fallback: fallback,
	}
}

// Lookup returns the tier for a model id: exact match, else the fallback.
// An unknown model is never an error.
func (m *Model) Lookup(model string) Tier {
	if tier, ok := m.tiers[model]; ok {
		return tier
	}
	return m.fallback
}

// Cost computes the cost breakdown of a token tally under the model's
// tier. Pure and deterministic for identical inputs.
//
// Cache categories contribute zero when the tier defines no rate for
// them or the tally has no such tokens.
func (m *Model) Cost(tally event.TokenTally, model string) CostBreakdown {
	return breakdown(tally, m.Lookup(model))
}

// CostWithoutCaching computes the counterfactual cost had every cache
// token been billed at the tier's standard input rate. Caching savings =
// CostWithoutCaching(t, m).Total - Cost(t, m).Total.
func (m *Model) CostWithoutCaching(tally event.TokenTally, model string) CostBreakdown {
	tier := m.Lookup(model)
	flat := Tier{
		Input:      tier.Input,
		Output:     tier.Output,
		CacheWrite: tier.Input,
		CacheRead:  tier.Input,
	}
	return breakdown(tally, flat)
}

// breakdown applies one tier to one tally.
func breakdown(tally event.TokenTally, tier Tier) CostBreakdown {
	out := CostBreakdown{
		Input:  float64(tally.Input) / tokensPerMillion * tier.Input,
		Output: float64(tally.Output) / tokensPerMillion * tier.Output,
	}

	if tier.CacheWrite > 0 && tally.CacheWrite > 0 {
		out.CacheWrite = float64(tally.CacheWrite) / tokensPerMillion * tier.CacheWrite
	}
	if tier.CacheRead > 0 && tally.CacheRead > 0 {
		out.CacheRead = float64(tally.CacheRead) / tokensPerMillion * tier.CacheRead
	}

	out.Total = out.Input + out.Output + out.CacheWrite + out.CacheRead
	return out
}
