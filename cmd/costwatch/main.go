// Package main provides the costwatch CLI application.
//
// Costwatch is a usage aggregation and cost accounting daemon for Clawdbot
// deployments. It scans agent session logs and cron run logs, prices token
// usage per model, and serves the resulting aggregates over HTTP and a
// WebSocket push channel.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/bokonon23/clawdbot-cost-monitor/pkg/analyzer"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/breakdown"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/config"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/history"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/logger"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/planusage"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/pricing"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/server"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/store"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/timeline"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/watcher"
)

// version is set during build time.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main application logic.
func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	addr := flag.String("addr", "", "listen address override (host:port)")
	showVersion := flag.Bool("version", false, "show version information")

	flag.Parse()

	if *showVersion {
		fmt.Printf("costwatch %s\n", version)
		return nil
	}

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		return err
	}

	if *addr != "" {
		if err := applyAddr(cfg, *addr); err != nil {
			return err
		}
	}

	args := flag.Args()
	command := "serve"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "serve":
		return runServe(cfg)
	case "reset":
		return runReset(cfg)
	case "help":
		return showUsage()
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runServe assembles the aggregation components and serves until
// interrupted.
func runServe(cfg *config.Config) error {
	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Output: cfg.Logging.Output,
		Format: cfg.Logging.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model := pricing.New(pricingTiers(cfg), pricing.DefaultTier())

	st := store.New(cfg.Storage.Dir, log)

	var sessionRoots []string
	if cfg.Sources.AgentsDir != "" {
		sessionRoots = append(sessionRoots, cfg.Sources.AgentsDir)
	}

	deps := server.Deps{
		Analyzer:  analyzer.New(sessionRoots, model, st, log),
		History:   history.New(cfg.Storage.Dir, log),
		Breakdown: breakdown.New(cfg.Sources.CronJobsPath, cfg.Sources.CronRunsDir, cfg.Sources.AgentsDir, log),
		Timeline:  timeline.New(cfg.Sources.CronRunsDir, cfg.Sources.AliasConfigPath, log),
		PlanUsage: planusage.New(filepath.Join(cfg.Storage.Dir, "plan-usage.json"), log),
	}

	if cfg.Server.WatchLogs {
		w, err := watcher.New(watcher.Config{}, log)
		if err != nil {
			return fmt.Errorf("failed to create log watcher: %w", err)
		}
		defer w.Close()

		if err := w.Start(ctx, cfg.SessionRoots()); err != nil {
			// No watchable roots yet is not fatal; the periodic
			// push still refreshes clients.
			if !errors.Is(err, watcher.ErrNoWatchPaths) {
				return fmt.Errorf("failed to start log watcher: %w", err)
			}
			log.Warn("no log directories to watch, falling back to periodic refresh only")
		} else {
			deps.Watcher = w
		}
	}

	srv := server.New(server.Config{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		UpdateInterval:   cfg.Server.UpdateInterval,
		SnapshotInterval: cfg.Server.SnapshotInterval,
	}, deps, log)

	log.Info("costwatch starting",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	return srv.Run(ctx)
}

// runReset clears the accumulated session state. Log files are never
// touched; the next analysis rebuilds from whatever logs still exist.
func runReset(cfg *config.Config) error {
	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Output: cfg.Logging.Output,
		Format: cfg.Logging.Format,
	})

	if err := store.New(cfg.Storage.Dir, log).Reset(); err != nil {
		return fmt.Errorf("failed to reset accumulation data: %w", err)
	}

	fmt.Println("Accumulation data reset.")
	return nil
}

// pricingTiers merges configured per-model overrides over the built-in
// rate table.
func pricingTiers(cfg *config.Config) map[string]pricing.Tier {
	tiers := pricing.DefaultTiers()
	for id, rates := range cfg.Pricing.Overrides {
		tiers[id] = pricing.Tier{
			Input:      rates.Input,
			Output:     rates.Output,
			CacheWrite: rates.CacheWrite,
			CacheRead:  rates.CacheRead,
		}
	}
	return tiers
}

// applyAddr overrides the configured listen address with host:port.
func applyAddr(cfg *config.Config, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid listen port %q", portStr)
	}

	if host != "" {
		cfg.Server.Host = host
	}
	cfg.Server.Port = port
	return nil
}

// showUsage displays the usage information.
func showUsage() error {
	fmt.Println(`Costwatch - Usage aggregation and cost accounting for Clawdbot

Usage:
  costwatch [flags] [command]

Commands:
  serve              Start the HTTP/WebSocket server (default)
  reset              Clear accumulated session state
  help               Show this help message

Flags:
  -config string     Path to configuration file
  -addr string       Listen address override (host:port)
  -version           Show version information

Examples:
  costwatch
  costwatch -addr 0.0.0.0:3939
  costwatch -config ./config.yaml serve
  costwatch reset`)
	return nil
}
