package timeline

import (
	"bufio"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bokonon23/clawdbot-cost-monitor/pkg/event"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/logger"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/pathsafe"
)

// Error classification patterns, matched case-insensitively against a
// failed run's error text. Categories are non-exclusive.
var (
	cooldownPattern = regexp.MustCompile(`(?i)cooldown|rate_limit|429|no available auth profile`)
	timeoutPattern  = regexp.MustCompile(`(?i)timeout|timed out`)
	authPattern     = regexp.MustCompile(`(?i)auth|401|forbidden|missing scopes|token`)
)

// ClassifyError matches error text against the known failure categories.
func ClassifyError(text string) (cooldown, timeout, auth bool) {
	return cooldownPattern.MatchString(text),
		timeoutPattern.MatchString(text),
		authPattern.MatchString(text)
}

// Engine builds bucketed timelines from cron run logs.
type Engine interface {
	// Build aggregates the run logs over the given lookback window into
	// fixed-width buckets. Unknown window keys fall back to 24h, a
	// non-positive bucket width falls back to 5 minutes. A missing runs
	// directory yields an empty result, never an error.
	Build(window string, bucketMinutes int) *Result
}

// engine implements the Engine interface.
type engine struct {
	runsDir   string
	aliasPath string
	logger    logger.Logger

	now func() time.Time
}

// New creates a timeline engine over the cron runs directory.
//
// Parameters:
//   - runsDir: Directory of per-job .jsonl run logs
//   - aliasPath: Optional config file carrying model display aliases
//   - log: Structured logger
func New(runsDir, aliasPath string, log logger.Logger) Engine {
	return &engine{
		runsDir:   runsDir,
		aliasPath: aliasPath,
		logger:    log,
		now:       time.Now,
	}
}

// Build implements Engine.Build.
func (e *engine) Build(window string, bucketMinutes int) *Result {
	if bucketMinutes <= 0 {
		bucketMinutes = DefaultBucketMinutes
	}

	now := e.now().UTC()
	span := windowSpan(window)
	from := now.Add(-span)
	width := time.Duration(bucketMinutes) * time.Minute
	bucketCount := int((span + width - 1) / width)

	labels := make([]time.Time, bucketCount)
	for i := range labels {
		labels[i] = from.Add(time.Duration(i) * width)
	}

	result := &Result{
		Labels: labels,
		Models: []ModelSeries{},
		Errors: ErrorSeries{
			All:      make([]int, bucketCount),
			Cooldown: make([]int, bucketCount),
			Timeout:  make([]int, bucketCount),
			Auth:     make([]int, bucketCount),
		},
		Meta: Meta{
			From:          from,
			To:            now,
			BucketMinutes: bucketMinutes,
		},
	}

	series := make(map[string]*ModelSeries)

	entries, err := os.ReadDir(e.runsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			e.logger.Warn("failed to read runs directory", "path", e.runsDir, "error", err)
		}
		return result
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), pathsafe.LogExtension) {
			continue
		}

		path, err := pathsafe.ResolveUnder(e.runsDir, entry.Name())
		if err != nil {
			e.logger.Warn("skipping unsafe run log entry", "entry", entry.Name(), "error", err)
			continue
		}

		jobID := strings.TrimSuffix(entry.Name(), pathsafe.LogExtension)
		e.scanRunLog(path, jobID, from, now, width, bucketCount, series, result)
	}

	result.Models = rankSeries(series, loadAliases(e.aliasPath))
	return result
}

// scanRunLog folds one job's run log into the bucket series.
func (e *engine) scanRunLog(path, jobID string, from, to time.Time, width time.Duration, bucketCount int, series map[string]*ModelSeries, result *Result) {
	f, err := os.Open(path)
	if err != nil {
		e.logger.Warn("failed to open run log", "path", path, "error", err)
		return
	}
	defer f.Close()

	stream := event.NewStream(event.SourceCronRun, jobID)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		ev, ok := stream.Normalize(scanner.Bytes())
		if !ok {
			continue
		}

		if ev.Timestamp.Before(from) || ev.Timestamp.After(to) {
			continue
		}

		bucket := int(ev.Timestamp.Sub(from) / width)
		if bucket < 0 || bucket >= bucketCount {
			continue
		}

		result.Meta.TotalRuns++

		if ev.Status == event.StatusError {
			result.Meta.ErrorRuns++
			result.Errors.All[bucket]++

			cooldown, timeout, auth := ClassifyError(ev.ErrorText)
			if cooldown {
				result.Errors.Cooldown[bucket]++
			}
			if timeout {
				result.Errors.Timeout[bucket]++
			}
			if auth {
				result.Errors.Auth[bucket]++
			}
			continue
		}

		s, ok := series[ev.Model]
		if !ok {
			s = &ModelSeries{
				Model:  ev.Model,
				Points: make([]int64, bucketCount),
			}
			series[ev.Model] = s
		}

		tokens := ev.Tokens.Total()
		s.Points[bucket] += tokens
		s.TotalTokens += tokens
	}

	if err := scanner.Err(); err != nil {
		e.logger.Warn("failed to scan run log", "path", path, "error", err)
	}
}

// rankSeries orders model series by total volume descending and keeps the
// top entries, applying display aliases. Aggregation keys stay raw.
func rankSeries(series map[string]*ModelSeries, aliases map[string]string) []ModelSeries {
	ranked := make([]ModelSeries, 0, len(series))

	for _, s := range series {
		s.Display = s.Model
		if alias, ok := aliases[s.Model]; ok {
			s.Alias = alias
			s.Display = alias + " (" + s.Model + ")"
		}
		ranked = append(ranked, *s)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalTokens != ranked[j].TotalTokens {
			return ranked[i].TotalTokens > ranked[j].TotalTokens
		}
		return ranked[i].Model < ranked[j].Model
	})

	if len(ranked) > topModelSeries {
		ranked = ranked[:topModelSeries]
	}

	return ranked
}

// loadAliases reads the model alias table from the agent configuration
// file. Any failure degrades to an empty table.
func loadAliases(path string) map[string]string {
	aliases := make(map[string]string)
	if path == "" {
		return aliases
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return aliases
	}

	gjson.GetBytes(data, "agents.defaults.models").ForEach(func(key, value gjson.Result) bool {
		if alias := value.Get("alias").String(); alias != "" {
			aliases[key.String()] = alias
		}
		return true
	})

	return aliases
}
