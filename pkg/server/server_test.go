package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bokonon23/clawdbot-cost-monitor/pkg/analyzer"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/breakdown"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/history"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/logger"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/planusage"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/pricing"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/store"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/timeline"
)

type testEnv struct {
	server  *Server
	http    *httptest.Server
	tracker history.Tracker
}

// newTestEnv wires a server over real components and a small on-disk
// fixture: one priced session and one finished cron run.
func newTestEnv(t *testing.T, withSessions bool) *testEnv {
	t.Helper()

	root := t.TempDir()
	agentsDir := filepath.Join(root, "agents")
	runsDir := filepath.Join(root, "runs")
	storageDir := filepath.Join(root, "storage")
	jobsPath := filepath.Join(root, "jobs.json")

	require.NoError(t, os.MkdirAll(agentsDir, 0700))
	require.NoError(t, os.MkdirAll(runsDir, 0700))

	if withSessions {
		sessions := filepath.Join(agentsDir, "main", "sessions")
		require.NoError(t, os.MkdirAll(sessions, 0700))
		line := `{"timestamp":"2025-06-01T10:00:00Z","message":{"model":"claude-sonnet-4-5","usage":{"input_tokens":1000000,"output_tokens":0}},"provider":"anthropic"}` + "\n"
		require.NoError(t, os.WriteFile(filepath.Join(sessions, "abc.jsonl"), []byte(line), 0600))

		run := `{"action":"finished","ts":` + timestampMs(t) + `,"status":"ok","model":"claude-sonnet-4-5","provider":"anthropic","usage":{"input_tokens":500,"output_tokens":100}}` + "\n"
		require.NoError(t, os.WriteFile(filepath.Join(runsDir, "daily-sync.jsonl"), []byte(run), 0600))
	}

	model := pricing.New(pricing.DefaultTiers(), pricing.DefaultTier())
	st := store.New(storageDir, logger.Noop())
	tracker := history.New(storageDir, logger.Noop())

	srv := New(Config{UpdateInterval: 50 * time.Millisecond}, Deps{
		Analyzer:  analyzer.New([]string{agentsDir}, model, st, logger.Noop()),
		History:   tracker,
		Breakdown: breakdown.New(jobsPath, runsDir, agentsDir, logger.Noop()),
		Timeline:  timeline.New(runsDir, "", logger.Noop()),
		PlanUsage: planusage.New(filepath.Join(storageDir, "plan-usage.json"), logger.Noop()),
	}, logger.Noop())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, http: ts, tracker: tracker}
}

func timestampMs(t *testing.T) string {
	t.Helper()
	return strconv.FormatInt(time.Now().Add(-time.Hour).UnixMilli(), 10)
}

func getJSON(t *testing.T, env *testEnv, path string, out interface{}) {
	t.Helper()

	resp, err := http.Get(env.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestUsageEndpoint(t *testing.T) {
	env := newTestEnv(t, true)

	var analysis analyzer.Analysis
	getJSON(t, env, "/api/usage", &analysis)

	assert.Empty(t, analysis.Error)
	assert.InDelta(t, 3.00, analysis.TotalCost, 1e-9)
	assert.Equal(t, int64(1_000_000), analysis.TotalInputTokens)
	require.Len(t, analysis.Sessions, 1)
	assert.Equal(t, "main/abc", analysis.Sessions[0].Key)
}

func TestUsageEndpointNoSessions(t *testing.T) {
	env := newTestEnv(t, false)

	var payload map[string]interface{}
	getJSON(t, env, "/api/usage", &payload)

	errMsg, ok := payload["error"].(string)
	require.True(t, ok, "expected error field, got %v", payload)
	assert.Contains(t, errMsg, "No session files found")
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t, true)
	env.tracker.Save(history.Totals{TotalCost: 3.00, TotalInputTokens: 1_000_000})

	var stats []history.DailyStat
	getJSON(t, env, "/api/history?days=7", &stats)

	require.Len(t, stats, 1)
	assert.InDelta(t, 3.00, stats[0].TotalCost, 1e-9)
}

func TestProjectionEndpointEmpty(t *testing.T) {
	env := newTestEnv(t, true)

	resp, err := http.Get(env.http.URL + "/api/projection")
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, "{}", strings.TrimSpace(string(raw)))
}

func TestBreakdownEndpoint(t *testing.T) {
	env := newTestEnv(t, true)

	var daily breakdown.DailyBreakdown
	getJSON(t, env, "/api/breakdown?days=7", &daily)

	require.NotEmpty(t, daily.Days)

	found := false
	for _, day := range daily.Days {
		for _, job := range day.Cron {
			if job.Name == "daily-sync" && job.Runs == 1 {
				found = true
			}
		}
	}
	assert.True(t, found, "daily-sync run missing from %+v", daily.Days)
}

func TestCronUsageEndpoint(t *testing.T) {
	env := newTestEnv(t, true)

	var usage breakdown.CronUsage
	getJSON(t, env, "/api/cron-usage?days=2", &usage)

	require.NotEmpty(t, usage.Days)
	assert.Contains(t, usage.HourlyByCron, "daily-sync")
}

func TestTimelineEndpoint(t *testing.T) {
	env := newTestEnv(t, true)

	var result timeline.Result
	getJSON(t, env, "/api/timeline?window=24h", &result)

	assert.Len(t, result.Labels, 288)
	assert.Equal(t, 1, result.Meta.TotalRuns)
	require.Len(t, result.Models, 1)
	assert.Equal(t, "anthropic/claude-sonnet-4-5", result.Models[0].Model)
}

func TestPlanUsageEndpoint(t *testing.T) {
	env := newTestEnv(t, true)

	var result planusage.Result
	getJSON(t, env, "/api/plan-usage", &result)

	assert.Nil(t, result.Latest)
	assert.NotEmpty(t, result.Message)
}

func TestWebSocketPush(t *testing.T) {
	env := newTestEnv(t, true)

	wsURL, err := url.Parse(env.http.URL)
	require.NoError(t, err)
	wsURL.Scheme = "ws"
	wsURL.Path = "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	// Initial payload arrives on connect.
	var first analyzer.Analysis
	require.NoError(t, conn.ReadJSON(&first))
	assert.InDelta(t, 3.00, first.TotalCost, 1e-9)

	// The per-connection ticker delivers another one.
	var second analyzer.Analysis
	require.NoError(t, conn.ReadJSON(&second))
	assert.InDelta(t, first.TotalCost, second.TotalCost, 1e-9)
}

func TestQueryIntDefaults(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 7},
		{"days=30", 30},
		{"days=0", 7},
		{"days=-4", 7},
		{"days=junk", 7},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/history?"+tt.query, nil)
		if got := queryInt(r, "days", 7); got != tt.want {
			t.Errorf("queryInt(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
