package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bokonon23/clawdbot-cost-monitor/pkg/logger"
)

// historyFile holds the rolling snapshot history under the storage dir.
const historyFile = "cost-history.json"

// retention is how long snapshots are kept.
const retention = 30 * 24 * time.Hour

// Tracker records cost snapshots and answers history queries.
type Tracker interface {
	// Save appends one snapshot of the given totals, prunes entries
	// older than 30 days, and rewrites the history file in full. A
	// persistence failure is logged; the pruned in-memory history is
	// returned either way.
	Save(totals Totals) []Snapshot

	// History returns every retained snapshot, oldest first.
	History() []Snapshot

	// DailyStats groups the trailing N days of snapshots by UTC day.
	DailyStats(days int) []DailyStat

	// MonthlyProjection extrapolates this month's total from the
	// trailing week's daily spend. Returns nil when fewer than two
	// days of stats exist.
	MonthlyProjection() *Projection
}

// tracker implements the Tracker interface.
type tracker struct {
	dir    string
	logger logger.Logger

	mu  sync.Mutex
	now func() time.Time
}

// New creates a snapshot tracker rooted at dir.
func New(dir string, log logger.Logger) Tracker {
	return &tracker{
		dir:    dir,
		logger: log,
		now:    time.Now,
	}
}

// Save implements Tracker.Save.
func (t *tracker) Save(totals Totals) []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()

	snapshot := Snapshot{
		Timestamp:         now,
		Date:              now.Format(time.RFC3339),
		TotalCost:         totals.TotalCost,
		TotalInputTokens:  totals.TotalInputTokens,
		TotalOutputTokens: totals.TotalOutputTokens,
		Models:            modelCosts(totals.CostByModel),
	}

	history := append(t.load(), snapshot)

	cutoff := now.Add(-retention)
	retained := history[:0]
	for _, s := range history {
		if s.Timestamp.After(cutoff) {
			retained = append(retained, s)
		}
	}

	if err := t.save(retained); err != nil {
		t.logger.Error("failed to persist snapshot history", "error", err)
	}

	return retained
}

// History implements Tracker.History.
func (t *tracker) History() []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.load()
}

// DailyStats implements Tracker.DailyStats.
func (t *tracker) DailyStats(days int) []DailyStat {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.dailyStats(days)
}

func (t *tracker) dailyStats(days int) []DailyStat {
	if days <= 0 {
		days = 7
	}

	history := t.load()
	if len(history) == 0 {
		return []DailyStat{}
	}

	cutoff := t.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	byDay := make(map[string][]Snapshot)
	for _, s := range history {
		if !s.Timestamp.After(cutoff) {
			continue
		}
		key := s.Timestamp.UTC().Format("2006-01-02")
		byDay[key] = append(byDay[key], s)
	}

	dates := make([]string, 0, len(byDay))
	for date := range byDay {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	stats := make([]DailyStat, 0, len(dates))
	for i, date := range dates {
		snaps := byDay[date]
		first, last := snaps[0], snaps[len(snaps)-1]

		// No baseline exists before the first tracked day, so its
		// figure is the cumulative total rather than a delta.
		cost := last.TotalCost - first.TotalCost
		if i == 0 {
			cost = last.TotalCost
		}

		stats = append(stats, DailyStat{
			Date:      date,
			Cost:      cost,
			TotalCost: last.TotalCost,
			Tokens: (last.TotalInputTokens + last.TotalOutputTokens) -
				(first.TotalInputTokens + first.TotalOutputTokens),
		})
	}

	return stats
}

// MonthlyProjection implements Tracker.MonthlyProjection.
func (t *tracker) MonthlyProjection() *Projection {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.dailyStats(7)
	if len(stats) < 2 {
		return nil
	}

	var total float64
	for _, day := range stats {
		total += day.Cost
	}
	avgDailyRate := total / float64(len(stats))

	now := t.now().UTC()
	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	daysRemaining := daysInMonth - now.Day()

	current := stats[len(stats)-1].TotalCost

	return &Projection{
		AvgDailyRate:        avgDailyRate,
		DaysRemaining:       daysRemaining,
		ProjectedMonthTotal: current + avgDailyRate*float64(daysRemaining),
		CurrentMonthTotal:   current,
	}
}

// modelCosts flattens a per-model cost map into sorted rows.
func modelCosts(byModel map[string]float64) []ModelCost {
	models := make([]ModelCost, 0, len(byModel))
	for name, cost := range byModel {
		models = append(models, ModelCost{Name: name, Cost: cost})
	}

	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models
}

// load reads the history file; corruption or absence degrades to empty.
func (t *tracker) load() []Snapshot {
	data, err := os.ReadFile(filepath.Join(t.dir, historyFile))
	if err != nil {
		if !os.IsNotExist(err) {
			t.logger.Warn("failed to read snapshot history, starting empty", "error", err)
		}
		return []Snapshot{}
	}

	var history []Snapshot
	if err := json.Unmarshal(data, &history); err != nil {
		t.logger.Warn("snapshot history corrupt, starting empty", "error", err)
		return []Snapshot{}
	}

	return history
}

// save rewrites the history file in full.
func (t *tracker) save(history []Snapshot) error {
	if err := os.MkdirAll(t.dir, 0700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot history: %w", err)
	}

	path := filepath.Join(t.dir, historyFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
