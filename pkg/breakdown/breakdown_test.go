package breakdown

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bokonon23/clawdbot-cost-monitor/pkg/logger"
)

var testNow = time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

type fixture struct {
	jobsPath  string
	runsDir   string
	agentsDir string
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	root := t.TempDir()
	fx := fixture{
		jobsPath:  filepath.Join(root, "jobs.json"),
		runsDir:   filepath.Join(root, "runs"),
		agentsDir: filepath.Join(root, "agents"),
	}
	mustMkdir(t, fx.runsDir)
	mustMkdir(t, fx.agentsDir)
	return fx
}

func (fx fixture) aggregator(t *testing.T) *aggregator {
	t.Helper()

	agg := New(fx.jobsPath, fx.runsDir, fx.agentsDir, logger.Noop()).(*aggregator)
	agg.now = func() time.Time { return testNow }
	return agg
}

func mustMkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("failed to create %s: %v", dir, err)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	mustMkdir(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func runLine(ts time.Time, status, errText string, input, output int64) string {
	if status == "ok" {
		return fmt.Sprintf(`{"action":"finished","ts":%d,"status":"ok","usage":{"input_tokens":%d,"output_tokens":%d}}`,
			ts.UnixMilli(), input, output)
	}
	return fmt.Sprintf(`{"action":"finished","ts":%d,"status":%q,"error":%q}`,
		ts.UnixMilli(), status, errText)
}

func messageLine(ts time.Time, input, output int64) string {
	return fmt.Sprintf(`{"timestamp":%q,"message":{"model":"claude-sonnet-4-5","usage":{"input_tokens":%d,"output_tokens":%d}}}`,
		ts.Format(time.RFC3339), input, output)
}

func TestDailyTwoRunsOneError(t *testing.T) {
	fx := newFixture(t)
	ts := testNow.Add(-2 * time.Hour)

	mustWrite(t, filepath.Join(fx.runsDir, "daily-sync.jsonl"),
		runLine(ts, "ok", "", 500, 100)+"\n"+
			runLine(ts.Add(time.Hour), "error", "boom", 0, 0)+"\n")

	result := fx.aggregator(t).Daily(7)

	if len(result.Days) != 1 {
		t.Fatalf("Days = %d, want 1", len(result.Days))
	}

	day := result.Days[0]
	if day.Date != "2025-06-01" {
		t.Errorf("Date = %q, want 2025-06-01", day.Date)
	}
	if len(day.Cron) != 1 {
		t.Fatalf("Cron = %d groups, want 1", len(day.Cron))
	}

	job := day.Cron[0]
	if job.Name != "daily-sync" {
		t.Errorf("Name = %q, want daily-sync (raw id fallback)", job.Name)
	}
	if job.Runs != 2 || job.Errors != 1 {
		t.Errorf("runs/errors = %d/%d, want 2/1", job.Runs, job.Errors)
	}
	if job.Input != 500 || job.Output != 100 {
		t.Errorf("tokens = %d/%d, want 500/100 (failed run contributes none)", job.Input, job.Output)
	}
	if day.Totals.CronInput != 500 || day.Totals.CronOutput != 100 {
		t.Errorf("day totals = %+v", day.Totals)
	}
}

func TestDailyAgentsAndBots(t *testing.T) {
	fx := newFixture(t)
	ts := testNow.Add(-3 * time.Hour)

	mustWrite(t, filepath.Join(fx.agentsDir, "helper-bot", "sessions", "a.jsonl"),
		messageLine(ts, 100, 20)+"\n"+messageLine(ts.Add(time.Minute), 50, 10)+"\n")
	mustWrite(t, filepath.Join(fx.agentsDir, "research", "sessions", "b.jsonl"),
		messageLine(ts, 900, 100)+"\n")

	result := fx.aggregator(t).Daily(7)

	if len(result.Days) != 1 {
		t.Fatalf("Days = %d, want 1", len(result.Days))
	}
	day := result.Days[0]

	if len(day.Agents) != 2 {
		t.Fatalf("Agents = %d, want 2", len(day.Agents))
	}
	if day.Agents[0].Agent != "research" {
		t.Errorf("top agent = %q, want research (sorted by total desc)", day.Agents[0].Agent)
	}

	helper := day.Agents[1]
	if helper.Agent != "helper-bot" || helper.Messages != 2 || helper.Input != 150 || helper.Output != 30 {
		t.Errorf("helper-bot stats = %+v", helper)
	}

	if len(day.Bots) != 1 || day.Bots[0].Agent != "helper-bot" {
		t.Errorf("Bots = %+v, want exactly helper-bot", day.Bots)
	}

	if day.Totals.AgentInput != 1050 || day.Totals.AgentOutput != 130 {
		t.Errorf("agent totals = %+v", day.Totals)
	}
}

func TestDailyWindowExcludesOldEvents(t *testing.T) {
	fx := newFixture(t)

	mustWrite(t, filepath.Join(fx.runsDir, "daily-sync.jsonl"),
		runLine(testNow.Add(-10*24*time.Hour), "ok", "", 500, 100)+"\n"+
			runLine(testNow.Add(-time.Hour), "ok", "", 10, 5)+"\n")

	result := fx.aggregator(t).Daily(7)

	if len(result.Days) != 1 {
		t.Fatalf("Days = %d, want 1 (old event outside window)", len(result.Days))
	}
	if got := result.Days[0].Cron[0].Input; got != 10 {
		t.Errorf("Input = %d, want 10", got)
	}
}

func TestCronUsageJobNameResolution(t *testing.T) {
	fx := newFixture(t)
	ts := testNow.Add(-time.Hour)

	mustWrite(t, fx.jobsPath, `{"jobs":[{"id":"job-1","name":"nightly-report"}]}`)
	mustWrite(t, filepath.Join(fx.runsDir, "job-1.jsonl"), runLine(ts, "ok", "", 100, 10)+"\n")
	mustWrite(t, filepath.Join(fx.runsDir, "ec0081d8-1ba7-4836-8170-5ff9891a663a.jsonl"),
		runLine(ts, "ok", "", 50, 5)+"\n")
	mustWrite(t, filepath.Join(fx.runsDir, "mystery-job.jsonl"), runLine(ts, "ok", "", 20, 2)+"\n")

	result := fx.aggregator(t).CronUsage(2)

	if len(result.Days) != 1 {
		t.Fatalf("Days = %d, want 1", len(result.Days))
	}

	got := make(map[string]bool)
	for _, c := range result.Days[0].Crons {
		got[c.Name] = true
	}

	for _, want := range []string{"nightly-report", "marketplace-check", "mystery-job"} {
		if !got[want] {
			t.Errorf("missing job name %q in %v", want, got)
		}
	}
}

func TestCronUsageHourly(t *testing.T) {
	fx := newFixture(t)

	mustWrite(t, filepath.Join(fx.runsDir, "daily-sync.jsonl"),
		runLine(testNow.Add(-2*time.Hour), "ok", "", 100, 10)+"\n"+
			runLine(testNow.Add(-time.Hour), "error", "timed out", 0, 0)+"\n"+
			runLine(testNow.Add(-30*time.Hour), "ok", "", 999, 99)+"\n") // outside 24h

	result := fx.aggregator(t).CronUsage(2)

	rows, ok := result.HourlyByCron["daily-sync"]
	if !ok {
		t.Fatal("no hourly rows for daily-sync")
	}
	if len(rows) != 2 {
		t.Fatalf("hourly rows = %d, want 2 (ok hour + error-only hour)", len(rows))
	}

	if rows[0].Hour != "2025-06-01T08:00" || rows[0].Total != 110 {
		t.Errorf("rows[0] = %+v", rows[0])
	}
	if rows[1].Hour != "2025-06-01T09:00" || rows[1].Errors != 1 || rows[1].Total != 0 {
		t.Errorf("rows[1] = %+v, want error-only hour retained", rows[1])
	}
}

func TestCronUsageDayTotals(t *testing.T) {
	fx := newFixture(t)
	ts := testNow.Add(-time.Hour)

	mustWrite(t, filepath.Join(fx.runsDir, "a.jsonl"), runLine(ts, "ok", "", 100, 10)+"\n")
	mustWrite(t, filepath.Join(fx.runsDir, "b.jsonl"),
		runLine(ts, "ok", "", 200, 20)+"\n"+runLine(ts, "error", "boom", 0, 0)+"\n")

	result := fx.aggregator(t).CronUsage(2)

	totals := result.Days[0].Totals
	if totals.Input != 300 || totals.Output != 30 || totals.Runs != 3 || totals.Errors != 1 {
		t.Errorf("totals = %+v, want {300 30 3 1}", totals)
	}

	// Within a day, jobs sort descending by total tokens.
	if result.Days[0].Crons[0].Name != "b" {
		t.Errorf("top job = %q, want b", result.Days[0].Crons[0].Name)
	}
}

func TestMissingSourcesYieldEmptyResults(t *testing.T) {
	root := t.TempDir()
	agg := New(
		filepath.Join(root, "nope", "jobs.json"),
		filepath.Join(root, "nope", "runs"),
		filepath.Join(root, "nope", "agents"),
		logger.Noop(),
	).(*aggregator)
	agg.now = func() time.Time { return testNow }

	daily := agg.Daily(7)
	if len(daily.Days) != 0 {
		t.Errorf("Daily Days = %d, want 0", len(daily.Days))
	}

	usage := agg.CronUsage(2)
	if len(usage.Days) != 0 || len(usage.HourlyByCron) != 0 {
		t.Errorf("CronUsage = %+v, want empty", usage)
	}
}
