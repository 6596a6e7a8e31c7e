package analyzer

import (
	"bufio"
	"os"

	"github.com/bokonon23/clawdbot-cost-monitor/pkg/event"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/logger"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/pathsafe"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/pricing"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/store"
)

// noSessionsMessage surfaces when no root contains any session log.
const noSessionsMessage = "No session files found. Is OpenClaw (Clawdbot) running?"

// Analyzer runs full usage analysis passes.
type Analyzer interface {
	// Analyze walks the session roots, prices every session, merges the
	// results into the accumulation store, and returns lifetime totals.
	// Only the complete absence of session files is an error result;
	// everything else degrades to zero contribution.
	Analyze() *Analysis
}

// analyzer implements the Analyzer interface.
type analyzer struct {
	roots   []string
	walker  pathsafe.Walker
	pricing *pricing.Model
	store   store.Store
	logger  logger.Logger
}

// New creates a usage analyzer.
//
// Parameters:
//   - roots: Allowed session log roots; files outside them are refused
//   - model: Pricing model
//   - st: Durable accumulation store
//   - log: Structured logger
func New(roots []string, model *pricing.Model, st store.Store, log logger.Logger) Analyzer {
	return &analyzer{
		roots:   roots,
		walker:  pathsafe.NewWalker(log),
		pricing: model,
		store:   st,
		logger:  log,
	}
}

// sessionTally accumulates one session's events before pricing.
type sessionTally struct {
	model string

	// priced holds tokens from records the pricing model will bill;
	// all holds every token, including those of records that carried
	// their own cost.
	priced event.TokenTally
	all    event.TokenTally

	embeddedCost float64
	messages     int
}

// Analyze implements Analyzer.Analyze.
func (a *analyzer) Analyze() *Analysis {
	var files []string
	for _, root := range a.roots {
		found, err := a.walker.Find(root)
		if err != nil {
			a.logger.Warn("failed to scan session root", "root", root, "error", err)
			continue
		}
		files = append(files, found...)
	}

	if len(files) == 0 {
		return &Analysis{Error: noSessionsMessage}
	}

	tallies := make(map[string]*sessionTally)
	messagesFound := 0

	for _, file := range files {
		if !pathsafe.InAllowedRoots(file, a.roots) {
			a.logger.Warn("refusing session file outside allowed roots", "path", file)
			continue
		}

		key := pathsafe.SessionID(file)
		tally, ok := tallies[key]
		if !ok {
			tally = &sessionTally{model: "unknown"}
			tallies[key] = tally
		}

		messagesFound += a.scanSession(file, key, tally)
	}

	current := make([]store.SessionAggregate, 0, len(tallies))
	for key, tally := range tallies {
		if tally.messages == 0 {
			continue
		}

		breakdown := a.pricing.Cost(tally.priced, tally.model)

		current = append(current, store.SessionAggregate{
			Key:           key,
			Model:         tally.model,
			Tokens:        tally.all,
			Cost:          breakdown.Total + tally.embeddedCost,
			CostBreakdown: breakdown,
		})
	}

	acc, err := a.store.Merge(current)
	if err != nil {
		a.logger.Error("failed to merge session aggregates", "error", err)
		return &Analysis{Error: err.Error()}
	}

	analysis := &Analysis{
		TotalInputTokens:      acc.TotalInputTokens,
		TotalOutputTokens:     acc.TotalOutputTokens,
		TotalCacheWriteTokens: acc.TotalCacheWriteTokens,
		TotalCacheReadTokens:  acc.TotalCacheReadTokens,
		TotalCost:             acc.TotalCost,
		ByModel:               acc.ByModel,
		Sessions:              acc.Sessions,
		Metadata: Meta{
			FilesFound:         len(files),
			MessagesFound:      messagesFound,
			SessionsWithData:   len(current),
			TrackingSince:      acc.Metadata.TrackingStarted,
			LastUpdate:         acc.Metadata.LastUpdate,
			TotalSessionsSeen:  acc.Metadata.TotalSessionsSeen,
			ActiveSessionCount: acc.Metadata.ActiveSessionCount,
		},
	}

	for _, sess := range acc.Sessions {
		analysis.CostWithoutCaching += a.pricing.CostWithoutCaching(sess.Tokens, sess.Model).Total
	}
	analysis.CacheSavings = analysis.CostWithoutCaching - analysis.TotalCost

	return analysis
}

// scanSession folds one log file into its session tally and returns how
// many usage-bearing records it contributed.
func (a *analyzer) scanSession(path, key string, tally *sessionTally) int {
	f, err := os.Open(path)
	if err != nil {
		a.logger.Warn("failed to open session log", "path", path, "error", err)
		return 0
	}
	defer f.Close()

	stream := event.NewStream(event.SourceAgentMessage, key)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	messages := 0
	for scanner.Scan() {
		ev, ok := stream.Normalize(scanner.Bytes())
		if !ok {
			continue
		}

		messages++
		tally.messages++
		tally.all = addTallies(tally.all, ev.Tokens)

		if ev.Model != "unknown" {
			tally.model = ev.Model
		}

		// A record carrying its own cost is authoritative; its tokens
		// are counted but never re-priced.
		if ev.EmbeddedCost != nil {
			tally.embeddedCost += *ev.EmbeddedCost
			continue
		}

		tally.priced = addTallies(tally.priced, ev.Tokens)
	}

	if err := scanner.Err(); err != nil {
		a.logger.Warn("failed to scan session log", "path", path, "error", err)
	}

	return messages
}

func addTallies(a, b event.TokenTally) event.TokenTally {
	return event.TokenTally{
		Input:      a.Input + b.Input,
		Output:     a.Output + b.Output,
		CacheWrite: a.CacheWrite + b.CacheWrite,
		CacheRead:  a.CacheRead + b.CacheRead,
	}
}
