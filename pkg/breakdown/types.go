// Package breakdown aggregates usage by calendar day, job, and agent.
//
// Two query surfaces exist: a daily breakdown grouping cron runs by job
// name and agent session messages by agent id (with a derived bots subset),
// and a cron-usage drill-down adding a trailing-24h per-hour view per job.
// Nothing here is persisted; every query recomputes from the raw logs.
//
// Example usage:
//
//	agg := breakdown.New(jobsPath, runsDir, agentsDir, logger.Default())
//	daily := agg.Daily(7)
//	for _, day := range daily.Days {
//	    fmt.Printf("%s: %d cron input tokens\n", day.Date, day.Totals.CronInput)
//	}
package breakdown

// JobStats is one scheduled job's activity within a day or hour group.
type JobStats struct {
	Name   string `json:"name"`
	Input  int64  `json:"input"`
	Output int64  `json:"output"`
	Runs   int    `json:"runs"`
	Errors int    `json:"errors"`
	Total  int64  `json:"total"`
}

// AgentStats is one agent's session activity within a day group.
type AgentStats struct {
	Agent    string `json:"agent"`
	Input    int64  `json:"input"`
	Output   int64  `json:"output"`
	Messages int    `json:"messages"`
	Total    int64  `json:"total"`
}

// DayTotals sums a day's activity across both dimensions.
type DayTotals struct {
	CronInput   int64 `json:"cronInput"`
	CronOutput  int64 `json:"cronOutput"`
	AgentInput  int64 `json:"agentInput"`
	AgentOutput int64 `json:"agentOutput"`
}

// Day is one UTC calendar day of the daily breakdown. Cron and Agents are
// sorted descending by total tokens; Bots is the subset of Agents whose id
// follows the bot naming convention.
type Day struct {
	Date   string       `json:"date"`
	Cron   []JobStats   `json:"cron"`
	Agents []AgentStats `json:"agents"`
	Bots   []AgentStats `json:"bots"`
	Totals DayTotals    `json:"totals"`
}

// DailyBreakdown is the result of a Daily query, days in ascending order.
type DailyBreakdown struct {
	Days []Day `json:"days"`
}

// CronDayTotals sums one day's cron activity across all jobs.
type CronDayTotals struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Runs   int   `json:"runs"`
	Errors int   `json:"errors"`
}

// CronDay is one UTC day of the cron-usage view.
type CronDay struct {
	Day    string        `json:"day"`
	Crons  []JobStats    `json:"crons"`
	Totals CronDayTotals `json:"totals"`
}

// HourStats is one hour of one job's trailing-24h activity.
type HourStats struct {
	Hour   string `json:"hour"`
	Input  int64  `json:"input"`
	Output int64  `json:"output"`
	Runs   int    `json:"runs"`
	Errors int    `json:"errors"`
	Total  int64  `json:"total"`
}

// CronUsage is the result of a CronUsage query: daily rows plus a
// trailing-24h hourly drill-down per job name, filtered to hours with
// activity.
type CronUsage struct {
	Days         []CronDay              `json:"days"`
	HourlyByCron map[string][]HourStats `json:"hourlyByCron"`
}

// legacyJobNames maps pre-migration job ids to their human names. Runs
// logged before jobs gained a definition entry still resolve to a name.
var legacyJobNames = map[string]string{
	"ec0081d8-1ba7-4836-8170-5ff9891a663a": "marketplace-check",
	"590ae345-42c8-4873-9197-e3ad6ece2784": "parcel-tracking-sync",
	"3468816c-9dc4-4aea-90cf-921271a62a44": "macrumors-daily-summary",
	"024bb70d-f297-4802-9ce8-e848c501c1cc": "engadget-daily-summary",
	"57fd866d-d415-4c1e-b6d9-804bb9e5bc64": "robin-newsletter-summary",
	"c4ff1a2f-38ee-4771-acb0-4dc42746b750": "bins-reminder",
}
