// Package store durably accumulates per-session usage aggregates.
//
// Source logs rotate and sessions disappear from disk, but spend already
// observed must keep counting. The store merges every analysis pass into a
// persistent set of "sessions seen", so lifetime totals survive process
// restarts and log rotation. State is two whole-file JSON documents under
// the storage directory; deleting them resets tracking.
//
// Concurrency: the store serializes merges internally but assumes a single
// aggregation process owns the files; concurrent writers are not supported.
//
// Example usage:
//
//	st := store.New(cfg.Storage.Dir, logger.Default())
//	acc, err := st.Merge(currentSessions)
//	fmt.Printf("lifetime cost: $%.2f\n", acc.TotalCost)
package store

import (
	"time"

	"github.com/bokonon23/clawdbot-cost-monitor/pkg/event"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/pricing"
)

// SessionAggregate is the accumulation unit for one session log stream.
//
// Lifecycle: created on first observation of its key; replaced whenever
// the freshly computed cost differs from the stored cost (a documented
// change-detection heuristic, not a field-by-field diff); never deleted
// except by Reset.
type SessionAggregate struct {
	// Key is the log-file-derived session identifier.
	Key string `json:"key"`

	// Model is the provider-qualified model id of the session.
	Model string `json:"model"`

	// Tokens holds the session's accumulated token counts.
	Tokens event.TokenTally `json:"tokens"`

	// Cost is the session's total cost in USD.
	Cost float64 `json:"cost"`

	// CostBreakdown splits Cost by token category.
	CostBreakdown pricing.CostBreakdown `json:"costBreakdown"`

	// FirstSeen is when this session key was first merged.
	FirstSeen time.Time `json:"firstSeen"`

	// LastSeen is refreshed on every merge that observes the key.
	LastSeen time.Time `json:"lastSeen"`
}

// ModelTotals aggregates lifetime usage for one model.
type ModelTotals struct {
	InputTokens      int64   `json:"inputTokens"`
	OutputTokens     int64   `json:"outputTokens"`
	CacheWriteTokens int64   `json:"cacheWriteTokens"`
	CacheReadTokens  int64   `json:"cacheReadTokens"`
	Cost             float64 `json:"cost"`
	Sessions         int     `json:"sessions"`
}

// Metadata describes the tracking state itself.
type Metadata struct {
	// TrackingStarted is when the store first initialized.
	TrackingStarted time.Time `json:"trackingStarted"`

	// LastUpdate is when the store last merged.
	LastUpdate time.Time `json:"lastUpdate"`

	// TotalSessionsSeen counts every session key ever merged.
	TotalSessionsSeen int `json:"totalSessionsSeen"`

	// ActiveSessionCount counts the sessions present in the most
	// recent merge input (still on disk, as opposed to rotated away).
	ActiveSessionCount int `json:"activeSessionCount"`
}

// Accumulated is the lifetime view over every session ever merged.
type Accumulated struct {
	TotalInputTokens      int64                   `json:"totalInputTokens"`
	TotalOutputTokens     int64                   `json:"totalOutputTokens"`
	TotalCacheWriteTokens int64                   `json:"totalCacheWriteTokens"`
	TotalCacheReadTokens  int64                   `json:"totalCacheReadTokens"`
	TotalCost             float64                 `json:"totalCost"`
	ByModel               map[string]*ModelTotals `json:"byModel"`
	Sessions              []SessionAggregate      `json:"sessions"`
	Metadata              Metadata                `json:"metadata"`
}

// Store accumulates session aggregates across process restarts.
type Store interface {
	// Merge folds the sessions of one analysis pass into the durable
	// set and returns lifetime totals over every session ever seen.
	//
	// First observation of a key stores the candidate verbatim with
	// FirstSeen = LastSeen = now. A later observation replaces the
	// stored aggregate only when the candidate's cost differs;
	// LastSeen is refreshed either way.
	//
	// A persistence failure is logged and the computed result is still
	// returned; the next successful merge will catch the store up,
	// because logs are append-only.
	Merge(current []SessionAggregate) (*Accumulated, error)

	// Metadata returns the current tracking metadata.
	Metadata() Metadata

	// Reset deletes all accumulated state.
	Reset() error
}
