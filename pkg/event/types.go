// Package event normalizes raw usage log records into UsageEvents.
//
// The monitored logs span several historical schema generations: generic
// message records with a nested usage object (in two field-name spellings),
// cron "finished" action records, and model_change control records that
// update the model context for the rest of their stream. Each line is one
// JSON value; lines that fail to parse or match no known shape are skipped
// silently so one bad record never aborts a file.
//
// Example usage:
//
//	s := event.NewStream(event.SourceAgentMessage, "main/abc")
//	for scanner.Scan() {
//	    if ev, ok := s.Normalize(scanner.Bytes()); ok {
//	        handle(ev)
//	    }
//	}
package event

import (
	"time"
)

// SourceKind identifies the kind of log stream an event came from.
type SourceKind string

const (
	// SourceSessionMessage is a message in an interactive session log.
	SourceSessionMessage SourceKind = "session-message"

	// SourceCronRun is one scheduled job run record.
	SourceCronRun SourceKind = "cron-run"

	// SourceAgentMessage is a message in an autonomous agent's session log.
	SourceAgentMessage SourceKind = "agent-message"
)

// Status is the outcome of a usage event.
type Status string

const (
	// StatusOK marks a successful event.
	StatusOK Status = "ok"

	// StatusError marks a failed event; ErrorText carries the reason.
	StatusError Status = "error"
)

// TokenTally holds the four token categories of one observation.
//
// Invariant: all counts are >= 0.
type TokenTally struct {
	Input      int64 `json:"inputTokens"`
	Output     int64 `json:"outputTokens"`
	CacheWrite int64 `json:"cacheWriteTokens"`
	CacheRead  int64 `json:"cacheReadTokens"`
}

// Total returns the sum of all four token categories.
func (t TokenTally) Total() int64 {
	return t.Input + t.Output + t.CacheWrite + t.CacheRead
}

// Valid reports whether every count is non-negative.
func (t TokenTally) Valid() bool {
	return t.Input >= 0 && t.Output >= 0 && t.CacheWrite >= 0 && t.CacheRead >= 0
}

// ReconcileTotal attributes tokens unaccounted for by the four categories
// to cache reads. Some older session schemas track only a grand total next
// to partial category counts; the missing share is almost always cache
// reads because the agent leans heavily on prompt caching.
func (t TokenTally) ReconcileTotal(total int64) TokenTally {
	if total <= t.Total() {
		return t
	}

	out := t
	out.CacheRead = total - (t.Input + t.Output + t.CacheWrite)
	return out
}

// UsageEvent is one normalized observation of model usage.
//
// Invariant: token counts are never negative. A record with no usage field
// never becomes a UsageEvent.
type UsageEvent struct {
	// Timestamp is when the usage occurred.
	Timestamp time.Time

	// Model is the model identifier, provider-qualified when the
	// provider is known (e.g. "anthropic/claude-sonnet-4-5").
	Model string

	// Tokens holds the token counts of this observation.
	Tokens TokenTally

	// SourceKind identifies the stream type this event came from.
	SourceKind SourceKind

	// SourceID is the session or job identifier of the stream.
	SourceID string

	// Status is ok or error.
	Status Status

	// ErrorText is present iff Status is StatusError.
	ErrorText string

	// EmbeddedCost, when non-nil, is a pre-computed cost carried by the
	// record itself. It is authoritative and must be used verbatim
	// instead of recomputing from the pricing table.
	EmbeddedCost *float64
}

// NormalizeModel maps a bare model id to provider/model form when a
// provider is known separately. Already-qualified ids pass through, and
// an empty model becomes "unknown".
func NormalizeModel(model, provider string) string {
	if model == "" {
		return "unknown"
	}
	if containsSlash(model) {
		return model
	}
	if provider != "" {
		return provider + "/" + model
	}
	return model
}

func containsSlash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return true
		}
	}
	return false
}
