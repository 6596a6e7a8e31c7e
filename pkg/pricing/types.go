// Package pricing converts token tallies into monetary cost estimates.
//
// Each model id maps to a Tier (USD per million tokens across four token
// categories); unknown models fall back to one fixed default tier. Cost
// computation is a pure function of (tally, tier) and is the basis for
// every higher-level aggregate, including the "cost without caching"
// counterfactual used to quantify caching savings.
//
// Example usage:
//
//	m := pricing.New(pricing.DefaultTiers(), pricing.DefaultTier())
//	cost := m.Cost(tally, "anthropic/claude-sonnet-4-5")
//	fmt.Printf("$%.4f\n", cost.Total)
package pricing

// Tier is the per-million-token rate card for one model.
//
// CacheWrite and CacheRead may be zero, meaning the model has no caching
// economics modeled; those categories then contribute nothing.
type Tier struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheWrite float64 `json:"cacheWrite,omitempty"`
	CacheRead  float64 `json:"cacheRead,omitempty"`
}

// CostBreakdown is the monetary result of pricing one token tally.
//
// Invariant: Total == Input + Output + CacheWrite + CacheRead.
type CostBreakdown struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheWrite float64 `json:"cacheWrite"`
	CacheRead  float64 `json:"cacheRead"`
	Total      float64 `json:"total"`
}

// DefaultTier returns the fallback rate card applied to unknown models.
// It matches current Sonnet pricing, a reasonable middle of the fleet.
func DefaultTier() Tier {
	return Tier{Input: 3.00, Output: 15.00, CacheWrite: 3.75, CacheRead: 0.30}
}

// DefaultTiers returns the built-in static rate table.
//
// Keys are provider-qualified model ids. Anthropic tiers model prompt
// caching (25% premium on cache writes, 90% discount on cache reads);
// the OpenAI tiers predate caching and price only input/output.
func DefaultTiers() map[string]Tier {
	sonnet := Tier{Input: 3.00, Output: 15.00, CacheWrite: 3.75, CacheRead: 0.30}

	return map[string]Tier{
		"anthropic/claude-sonnet-4-5":          sonnet,
		"anthropic/claude-sonnet-4":            sonnet,
		"anthropic/claude-opus-4":              {Input: 15.00, Output: 75.00, CacheWrite: 18.75, CacheRead: 1.50},
		"anthropic/claude-3-5-sonnet-20241022": sonnet,
		"anthropic/claude-3-5-sonnet":          sonnet,
		"openai/gpt-4":                         {Input: 30.00, Output: 60.00},
		"openai/gpt-4-turbo":                   {Input: 10.00, Output: 30.00},
		"openai/gpt-3.5-turbo":                 {Input: 0.50, Output: 1.50},
	}
}
