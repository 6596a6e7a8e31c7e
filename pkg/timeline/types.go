// Package timeline builds time-bucketed activity series from cron run logs.
//
// A timeline covers a lookback window split into fixed-width buckets. Each
// successful run adds its token volume to its model's series at the bucket
// its timestamp falls into; each failed run increments the error series,
// classified into overlapping cooldown/timeout/auth categories by its error
// text. Series share one bucket axis so they chart directly.
//
// Example usage:
//
//	eng := timeline.New(runsDir, aliasPath, logger.Default())
//	result := eng.Build(timeline.Window24H, timeline.DefaultBucketMinutes)
//	for _, series := range result.Models {
//	    fmt.Printf("%s: %d tokens\n", series.Display, series.TotalTokens)
//	}
package timeline

import (
	"time"
)

// Supported window keys. Unknown keys fall back to Window24H.
const (
	Window4H  = "4h"
	Window24H = "24h"
	Window7D  = "7d"
)

// DefaultBucketMinutes is the bucket width used when the caller passes a
// non-positive width.
const DefaultBucketMinutes = 5

// topModelSeries caps how many model series a result carries; models
// beyond the cap are discarded, not merged.
const topModelSeries = 5

// windowSpan maps a window key to its lookback duration.
func windowSpan(key string) time.Duration {
	switch key {
	case Window4H:
		return 4 * time.Hour
	case Window7D:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ModelSeries is one model's token volume per bucket.
type ModelSeries struct {
	// Model is the raw provider-qualified model id (the aggregation key).
	Model string `json:"model"`

	// Alias is the configured human alias, empty when none is known.
	Alias string `json:"alias,omitempty"`

	// Display is the label for rendering: "alias (model)" when an alias
	// exists, else the raw model id.
	Display string `json:"display"`

	// Points holds token volume per bucket, aligned to Result.Labels.
	Points []int64 `json:"points"`

	// TotalTokens is the sum of Points, used for ranking.
	TotalTokens int64 `json:"totalTokens"`
}

// ErrorSeries holds failed-run counts per bucket. The category series are
// non-exclusive; All counts every failed run regardless of category.
type ErrorSeries struct {
	All      []int `json:"all"`
	Cooldown []int `json:"cooldown"`
	Timeout  []int `json:"timeout"`
	Auth     []int `json:"auth"`
}

// Meta describes the window a result was built over.
type Meta struct {
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	TotalRuns     int       `json:"totalRuns"`
	ErrorRuns     int       `json:"errorRuns"`
	BucketMinutes int       `json:"bucketMinutes"`
}

// Result is one built timeline.
type Result struct {
	// Labels holds each bucket's start instant, in order.
	Labels []time.Time `json:"labels"`

	// Models holds the top model series, ranked by total volume descending.
	Models []ModelSeries `json:"models"`

	// Errors holds the failed-run series.
	Errors ErrorSeries `json:"errors"`

	// Meta describes the window.
	Meta Meta `json:"meta"`
}
