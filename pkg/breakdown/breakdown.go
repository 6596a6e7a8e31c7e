package breakdown

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bokonon23/clawdbot-cost-monitor/pkg/event"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/logger"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/pathsafe"
)

// maxRunFiles caps how many run logs one scan examines.
const maxRunFiles = 200

// botSuffix marks agent ids that belong to the bots subset.
const botSuffix = "-bot"

const (
	dayFormat  = "2006-01-02"
	hourFormat = "2006-01-02T15:00"
)

// Aggregator produces dimensional usage breakdowns from raw logs.
type Aggregator interface {
	// Daily groups the trailing N days of cron runs and agent session
	// messages by UTC day. Missing sources contribute nothing.
	Daily(days int) *DailyBreakdown

	// CronUsage groups the trailing N days of cron runs by UTC day and
	// job name, plus a trailing-24h hourly drill-down per job.
	CronUsage(days int) *CronUsage
}

// aggregator implements the Aggregator interface.
type aggregator struct {
	jobsPath  string
	runsDir   string
	agentsDir string
	logger    logger.Logger

	now func() time.Time
}

// New creates a breakdown aggregator.
//
// Parameters:
//   - jobsPath: Job definition file ({jobs:[{id,name}]})
//   - runsDir: Directory of per-job .jsonl run logs
//   - agentsDir: Directory of per-agent session logs
//   - log: Structured logger
func New(jobsPath, runsDir, agentsDir string, log logger.Logger) Aggregator {
	return &aggregator{
		jobsPath:  jobsPath,
		runsDir:   runsDir,
		agentsDir: agentsDir,
		logger:    log,
		now:       time.Now,
	}
}

// jobStats accumulates one group before sorting.
type jobStats struct {
	input  int64
	output int64
	runs   int
	errors int
}

// agentStats accumulates one agent's group before sorting.
type agentStats struct {
	input    int64
	output   int64
	messages int
}

// Daily implements Aggregator.Daily.
func (a *aggregator) Daily(days int) *DailyBreakdown {
	if days <= 0 {
		days = 7
	}

	now := a.now().UTC()
	start := now.Add(-time.Duration(days) * 24 * time.Hour)
	names := a.jobNames()

	cronByDay := make(map[string]map[string]*jobStats)
	agentsByDay := make(map[string]map[string]*agentStats)

	a.eachRun(maxRunFiles, func(jobID string, ev *event.UsageEvent) {
		if ev.Timestamp.Before(start) {
			return
		}

		day := ev.Timestamp.UTC().Format(dayFormat)
		name := resolveJobName(names, jobID)

		group, ok := cronByDay[day]
		if !ok {
			group = make(map[string]*jobStats)
			cronByDay[day] = group
		}
		rec, ok := group[name]
		if !ok {
			rec = &jobStats{}
			group[name] = rec
		}

		rec.runs++
		if ev.Status == event.StatusError {
			rec.errors++
			return
		}
		rec.input += ev.Tokens.Input
		rec.output += ev.Tokens.Output
	})

	a.eachAgentMessage(func(agentID string, ev *event.UsageEvent) {
		if ev.Timestamp.Before(start) {
			return
		}

		day := ev.Timestamp.UTC().Format(dayFormat)

		group, ok := agentsByDay[day]
		if !ok {
			group = make(map[string]*agentStats)
			agentsByDay[day] = group
		}
		rec, ok := group[agentID]
		if !ok {
			rec = &agentStats{}
			group[agentID] = rec
		}

		rec.input += ev.Tokens.Input
		rec.output += ev.Tokens.Output
		rec.messages++
	})

	dates := make(map[string]bool)
	for d := range cronByDay {
		dates[d] = true
	}
	for d := range agentsByDay {
		dates[d] = true
	}

	result := &DailyBreakdown{Days: make([]Day, 0, len(dates))}

	for date := range dates {
		day := Day{
			Date:   date,
			Cron:   sortedJobStats(cronByDay[date]),
			Agents: sortedAgentStats(agentsByDay[date]),
		}

		for _, agent := range day.Agents {
			if strings.HasSuffix(agent.Agent, botSuffix) {
				day.Bots = append(day.Bots, agent)
			}
		}

		for _, c := range day.Cron {
			day.Totals.CronInput += c.Input
			day.Totals.CronOutput += c.Output
		}
		for _, ag := range day.Agents {
			day.Totals.AgentInput += ag.Input
			day.Totals.AgentOutput += ag.Output
		}

		result.Days = append(result.Days, day)
	}

	sort.Slice(result.Days, func(i, j int) bool {
		return result.Days[i].Date < result.Days[j].Date
	})

	return result
}

// CronUsage implements Aggregator.CronUsage.
func (a *aggregator) CronUsage(days int) *CronUsage {
	if days <= 0 {
		days = 2
	}

	now := a.now().UTC()
	dailyStart := now.Add(-time.Duration(days) * 24 * time.Hour)
	hourlyStart := now.Add(-24 * time.Hour)
	names := a.jobNames()

	daily := make(map[string]map[string]*jobStats)
	hourly := make(map[string]map[string]*jobStats)

	a.eachRun(maxRunFiles, func(jobID string, ev *event.UsageEvent) {
		name := resolveJobName(names, jobID)
		ts := ev.Timestamp.UTC()

		if !ts.Before(dailyStart) {
			day := ts.Format(dayFormat)
			group, ok := daily[day]
			if !ok {
				group = make(map[string]*jobStats)
				daily[day] = group
			}
			accumulateRun(group, name, ev)
		}

		if !ts.Before(hourlyStart) {
			hour := ts.Format(hourFormat)
			group, ok := hourly[name]
			if !ok {
				group = make(map[string]*jobStats)
				hourly[name] = group
			}
			accumulateRun(group, hour, ev)
		}
	})

	result := &CronUsage{
		Days:         make([]CronDay, 0, len(daily)),
		HourlyByCron: make(map[string][]HourStats),
	}

	for day, group := range daily {
		row := CronDay{Day: day, Crons: sortedJobStats(group)}
		for _, c := range row.Crons {
			row.Totals.Input += c.Input
			row.Totals.Output += c.Output
			row.Totals.Runs += c.Runs
			row.Totals.Errors += c.Errors
		}
		result.Days = append(result.Days, row)
	}

	sort.Slice(result.Days, func(i, j int) bool {
		return result.Days[i].Day < result.Days[j].Day
	})

	for name, hours := range hourly {
		rows := make([]HourStats, 0, len(hours))
		for hour, s := range hours {
			total := s.input + s.output
			if total == 0 && s.errors == 0 {
				continue
			}
			rows = append(rows, HourStats{
				Hour:   hour,
				Input:  s.input,
				Output: s.output,
				Runs:   s.runs,
				Errors: s.errors,
				Total:  total,
			})
		}
		if len(rows) == 0 {
			continue
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Hour < rows[j].Hour })
		result.HourlyByCron[name] = rows
	}

	return result
}

// accumulateRun folds one run event into the keyed stats group.
func accumulateRun(group map[string]*jobStats, key string, ev *event.UsageEvent) {
	rec, ok := group[key]
	if !ok {
		rec = &jobStats{}
		group[key] = rec
	}

	rec.runs++
	if ev.Status == event.StatusError {
		rec.errors++
		return
	}
	rec.input += ev.Tokens.Input
	rec.output += ev.Tokens.Output
}

// eachRun streams every finished-run event from the run logs, capped at
// maxFiles log files per scan. Missing directories yield nothing.
func (a *aggregator) eachRun(maxFiles int, fn func(jobID string, ev *event.UsageEvent)) {
	entries, err := os.ReadDir(a.runsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			a.logger.Warn("failed to read runs directory", "path", a.runsDir, "error", err)
		}
		return
	}

	seen := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), pathsafe.LogExtension) {
			continue
		}
		if seen >= maxFiles {
			a.logger.Warn("run log cap reached, remaining files skipped", "cap", maxFiles)
			break
		}
		seen++

		path, err := pathsafe.ResolveUnder(a.runsDir, entry.Name())
		if err != nil {
			a.logger.Warn("skipping unsafe run log entry", "entry", entry.Name(), "error", err)
			continue
		}

		jobID := strings.TrimSuffix(entry.Name(), pathsafe.LogExtension)
		a.scanLog(path, event.NewStream(event.SourceCronRun, jobID), func(ev *event.UsageEvent) {
			if ev.SourceKind != event.SourceCronRun {
				return
			}
			fn(jobID, ev)
		})
	}
}

// eachAgentMessage streams every usage-bearing session message from the
// per-agent session logs (<agent>/sessions/*.jsonl).
func (a *aggregator) eachAgentMessage(fn func(agentID string, ev *event.UsageEvent)) {
	agents, err := os.ReadDir(a.agentsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			a.logger.Warn("failed to read agents directory", "path", a.agentsDir, "error", err)
		}
		return
	}

	for _, agent := range agents {
		if !agent.IsDir() {
			continue
		}

		agentPath, err := pathsafe.ResolveUnder(a.agentsDir, agent.Name())
		if err != nil {
			a.logger.Warn("skipping unsafe agent entry", "entry", agent.Name(), "error", err)
			continue
		}

		sessionsDir := filepath.Join(agentPath, "sessions")
		files, err := os.ReadDir(sessionsDir)
		if err != nil {
			continue
		}

		agentID := agent.Name()
		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), pathsafe.LogExtension) {
				continue
			}

			path, err := pathsafe.ResolveUnder(sessionsDir, file.Name())
			if err != nil {
				a.logger.Warn("skipping unsafe session log entry", "entry", file.Name(), "error", err)
				continue
			}

			sessionID := agentID + "/" + strings.TrimSuffix(file.Name(), pathsafe.LogExtension)
			a.scanLog(path, event.NewStream(event.SourceAgentMessage, sessionID), func(ev *event.UsageEvent) {
				if ev.SourceKind != event.SourceAgentMessage {
					return
				}
				fn(agentID, ev)
			})
		}
	}
}

// scanLog normalizes one log file line by line.
func (a *aggregator) scanLog(path string, stream *event.Stream, fn func(*event.UsageEvent)) {
	f, err := os.Open(path)
	if err != nil {
		a.logger.Warn("failed to open log file", "path", path, "error", err)
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ev, ok := stream.Normalize(scanner.Bytes()); ok {
			fn(ev)
		}
	}

	if err := scanner.Err(); err != nil {
		a.logger.Warn("failed to scan log file", "path", path, "error", err)
	}
}

// jobNames loads the job-id-to-name table: the legacy map overlaid with
// the current job definition file.
func (a *aggregator) jobNames() map[string]string {
	names := make(map[string]string, len(legacyJobNames))
	for id, name := range legacyJobNames {
		names[id] = name
	}

	data, err := os.ReadFile(a.jobsPath)
	if err != nil {
		return names
	}

	gjson.GetBytes(data, "jobs").ForEach(func(_, job gjson.Result) bool {
		id := job.Get("id").String()
		if id == "" {
			return true
		}
		name := job.Get("name").String()
		if name == "" {
			name = id
		}
		names[id] = name
		return true
	})

	return names
}

// resolveJobName maps a job id to its display name, falling back to the
// raw id.
func resolveJobName(names map[string]string, jobID string) string {
	if name, ok := names[jobID]; ok {
		return name
	}
	return jobID
}

// sortedJobStats converts a stats group to rows sorted descending by
// total tokens.
func sortedJobStats(group map[string]*jobStats) []JobStats {
	rows := make([]JobStats, 0, len(group))
	for name, s := range group {
		rows = append(rows, JobStats{
			Name:   name,
			Input:  s.input,
			Output: s.output,
			Runs:   s.runs,
			Errors: s.errors,
			Total:  s.input + s.output,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].Name < rows[j].Name
	})

	return rows
}

// sortedAgentStats converts an agent group to rows sorted descending by
// total tokens.
func sortedAgentStats(group map[string]*agentStats) []AgentStats {
	rows := make([]AgentStats, 0, len(group))
	for agent, s := range group {
		rows = append(rows, AgentStats{
			Agent:    agent,
			Input:    s.input,
			Output:   s.output,
			Messages: s.messages,
			Total:    s.input + s.output,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].Agent < rows[j].Agent
	})

	return rows
}
