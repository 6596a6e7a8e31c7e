// Package server exposes the aggregation engine over HTTP and WebSocket.
//
// It is a thin boundary: every request triggers a fresh synchronous
// computation over the logs and durable stores, and every WebSocket
// connection gets its own push loop with its own recomputation. Errors
// from the engine surface as structured {error} payloads, never as
// transport failures. The listener binds loopback by default.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bokonon23/clawdbot-cost-monitor/pkg/analyzer"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/breakdown"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/history"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/logger"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/planusage"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/timeline"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/watcher"
)

// Config contains server configuration.
type Config struct {
	// Host is the bind address. Loopback by default; set 0.0.0.0 to
	// allow network access.
	Host string

	// Port is the listen port.
	Port int

	// UpdateInterval is the per-connection push period.
	UpdateInterval time.Duration

	// SnapshotInterval is the cost snapshot period.
	SnapshotInterval time.Duration
}

// Deps are the aggregation components the server fronts.
type Deps struct {
	Analyzer  analyzer.Analyzer
	History   history.Tracker
	Breakdown breakdown.Aggregator
	Timeline  timeline.Engine
	PlanUsage planusage.Reader

	// Watcher is optional; when present, log changes push fresh
	// analysis to connected clients ahead of the next tick.
	Watcher watcher.Watcher
}

// Server serves the usage API and push channel.
type Server struct {
	config Config
	deps   Deps
	logger logger.Logger

	subs *subscribers
	quit chan struct{}
}

// New creates a server over the given components.
func New(cfg Config, deps Deps, log logger.Logger) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 3939
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = 30 * time.Second
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = time.Hour
	}

	return &Server{
		config: cfg,
		deps:   deps,
		logger: log,
		subs:   newSubscribers(),
		quit:   make(chan struct{}),
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/usage", s.handleUsage)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/projection", s.handleProjection)
	mux.HandleFunc("/api/breakdown", s.handleBreakdown)
	mux.HandleFunc("/api/cron-usage", s.handleCronUsage)
	mux.HandleFunc("/api/timeline", s.handleTimeline)
	mux.HandleFunc("/api/plan-usage", s.handlePlanUsage)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Run serves until ctx is cancelled.
//
// One snapshot is taken at startup (skipped when the analysis errored)
// and then once per snapshot interval. When a watcher is configured its
// change signal pushes fresh analysis to every connected client.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.snapshotLoop(ctx)
	if s.deps.Watcher != nil {
		go s.watchLoop(ctx)
	}

	go func() {
		<-ctx.Done()
		close(s.quit)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server shutdown incomplete", "error", err)
		}
	}()

	s.logger.Info("server listening", "addr", srv.Addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// snapshotLoop persists cost snapshots on the configured interval.
func (s *Server) snapshotLoop(ctx context.Context) {
	s.snapshot()

	ticker := time.NewTicker(s.config.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.snapshot()
		}
	}
}

// snapshot takes one cost snapshot unless the analysis errored.
func (s *Server) snapshot() {
	a := s.deps.Analyzer.Analyze()
	if a.Error != "" {
		s.logger.Warn("skipping snapshot", "reason", a.Error)
		return
	}

	byModel := make(map[string]float64, len(a.ByModel))
	for model, totals := range a.ByModel {
		byModel[model] = totals.Cost
	}

	s.deps.History.Save(history.Totals{
		TotalCost:         a.TotalCost,
		TotalInputTokens:  a.TotalInputTokens,
		TotalOutputTokens: a.TotalOutputTokens,
		CostByModel:       byModel,
	})

	s.logger.Info("snapshot saved", "totalCost", a.TotalCost)
}

// watchLoop relays log-change signals to every push connection.
func (s *Server) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-s.deps.Watcher.Changes():
			if !ok {
				return
			}
			s.subs.broadcast()
		}
	}
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.deps.Analyzer.Analyze())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.deps.History.DailyStats(queryInt(r, "days", 7)))
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	if p := s.deps.History.MonthlyProjection(); p != nil {
		s.writeJSON(w, p)
		return
	}
	s.writeJSON(w, struct{}{})
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.deps.Breakdown.Daily(queryInt(r, "days", 7)))
}

func (s *Server) handleCronUsage(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.deps.Breakdown.CronUsage(queryInt(r, "days", 2)))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	window := r.URL.Query().Get("window")
	bucket := queryInt(r, "bucket", timeline.DefaultBucketMinutes)
	s.writeJSON(w, s.deps.Timeline.Build(window, bucket))
}

func (s *Server) handlePlanUsage(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.deps.PlanUsage.Read())
}

// writeJSON renders one payload; encoding failures are logged, not
// surfaced.
func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

// queryInt parses a positive integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
