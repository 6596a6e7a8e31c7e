// Package analyzer orchestrates one full usage analysis pass.
//
// A pass walks the configured session roots, normalizes every log line,
// prices each session's token tally, folds the results into per-session
// aggregates, and merges them into the durable accumulation store. The
// returned Analysis is the lifetime view: totals, per-model totals, the
// session list, caching economics, and a metadata block. Each pass
// recomputes from disk; no state is shared between passes.
package analyzer

import (
	"time"

	"github.com/bokonon23/clawdbot-cost-monitor/pkg/store"
)

// Meta describes one analysis pass and the tracking state behind it.
type Meta struct {
	// FilesFound is how many session log files the walk discovered.
	FilesFound int `json:"filesFound"`

	// MessagesFound is how many usage-bearing records were normalized.
	MessagesFound int `json:"messagesFound"`

	// SessionsWithData is how many sessions produced an aggregate this
	// pass.
	SessionsWithData int `json:"sessionsWithData"`

	// TrackingSince is when the accumulation store first initialized.
	TrackingSince time.Time `json:"trackingSince"`

	// LastUpdate is when the store last merged.
	LastUpdate time.Time `json:"lastUpdate"`

	// TotalSessionsSeen counts every session ever merged.
	TotalSessionsSeen int `json:"totalSessionsSeen"`

	// ActiveSessionCount counts sessions still present on disk.
	ActiveSessionCount int `json:"activeSessionCount"`
}

// Analysis is the full usage analysis payload.
//
// Error is set only for the top-level "no session files found anywhere"
// case; every lesser failure degrades to zero contribution instead.
type Analysis struct {
	Error string `json:"error,omitempty"`

	TotalInputTokens      int64 `json:"totalInputTokens"`
	TotalOutputTokens     int64 `json:"totalOutputTokens"`
	TotalCacheWriteTokens int64 `json:"totalCacheWriteTokens"`
	TotalCacheReadTokens  int64 `json:"totalCacheReadTokens"`

	// TotalCost is the lifetime cost over every session ever seen.
	TotalCost float64 `json:"totalCost"`

	// CostWithoutCaching is the counterfactual lifetime cost with every
	// cache token billed at the standard input rate.
	CostWithoutCaching float64 `json:"costWithoutCaching"`

	// CacheSavings is CostWithoutCaching minus TotalCost.
	CacheSavings float64 `json:"cacheSavings"`

	ByModel  map[string]*store.ModelTotals `json:"byModel"`
	Sessions []store.SessionAggregate      `json:"sessions"`
	Metadata Meta                          `json:"metadata"`
}
