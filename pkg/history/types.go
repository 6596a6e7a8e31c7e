// Package history persists point-in-time cost snapshots and derives
// daily spend and a monthly projection from them.
//
// Snapshots are appended to a rolling 30-day whole-file JSON history.
// Daily spend is the difference between the last and first snapshot of
// each UTC day; the first tracked day has no prior baseline and reports
// the raw cumulative total instead, which overstates day-one spend.
// Downstream consumers depend on that figure, so it stays.
//
// Example usage:
//
//	tr := history.New(storageDir, logger.Default())
//	tr.Save(history.Totals{TotalCost: analysis.TotalCost, ...})
//	if p := tr.MonthlyProjection(); p != nil {
//	    fmt.Printf("projected month total: $%.2f\n", p.ProjectedMonthTotal)
//	}
package history

import (
	"time"
)

// ModelCost is one model's share of a snapshot's total cost.
type ModelCost struct {
	Name string  `json:"name"`
	Cost float64 `json:"cost"`
}

// Totals is the aggregated state a snapshot captures.
type Totals struct {
	TotalCost         float64
	TotalInputTokens  int64
	TotalOutputTokens int64

	// CostByModel maps model id to lifetime cost.
	CostByModel map[string]float64
}

// Snapshot is one immutable point-in-time record.
type Snapshot struct {
	// Timestamp is when the snapshot was taken.
	Timestamp time.Time `json:"timestamp"`

	// Date is the RFC3339 rendering of Timestamp, kept for display.
	Date string `json:"date"`

	TotalCost         float64     `json:"totalCost"`
	TotalInputTokens  int64       `json:"totalInputTokens"`
	TotalOutputTokens int64       `json:"totalOutputTokens"`
	Models            []ModelCost `json:"models"`
}

// DailyStat is one UTC day's derived spend.
type DailyStat struct {
	// Date is the YYYY-MM-DD day key.
	Date string `json:"date"`

	// Cost is the day's spend: last snapshot total minus first snapshot
	// total, except the first tracked day which carries the raw
	// cumulative total.
	Cost float64 `json:"cost"`

	// TotalCost is the cumulative total at the day's last snapshot.
	TotalCost float64 `json:"totalCost"`

	// Tokens is the day's input+output token delta.
	Tokens int64 `json:"tokens"`
}

// Projection extrapolates the current month's total cost.
type Projection struct {
	// AvgDailyRate is the mean daily spend over the trailing week.
	AvgDailyRate float64 `json:"avgDailyRate"`

	// DaysRemaining is the number of calendar days left this month.
	DaysRemaining int `json:"daysRemaining"`

	// ProjectedMonthTotal is CurrentMonthTotal plus the extrapolated
	// remaining spend.
	ProjectedMonthTotal float64 `json:"projectedMonthTotal"`

	// CurrentMonthTotal is the most recent cumulative total.
	CurrentMonthTotal float64 `json:"currentMonthTotal"`
}
