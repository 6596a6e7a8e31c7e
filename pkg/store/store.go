package store

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

const (
	sessionsFile = "sessions-seen.json"
	metadataFile = "metadata.json"
)

// fileStore implements Store with whole-file JSON persistence.
type fileStore struct {
	dir    string
	logger logger.Logger

	mu  sync.Mutex
	now func() time.Time
}

// New creates a session accumulation store rooted at dir.
//
// The directory is created on first write; a missing or unreadable state
// file is treated as an empty store, never an error.
func New(dir string, log logger.Logger) Store {
	return &fileStore{
		dir:    dir,
		logger: log,
		now:    time.Now,
	}
}

// Merge implements Store.Merge.
func (s *fileStore) Merge(current []SessionAggregate) (*Accumulated, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.loadSessions()
	meta := s.loadMetadata()
	now := s.now()

	active := make(map[string]bool, len(current))

	for _, candidate := range current {
		active[candidate.Key] = true

		stored, exists := seen[candidate.Key]
		if !exists {
			candidate.FirstSeen = now
			candidate.LastSeen = now
			seen[candidate.Key] = candidate
			continue
		}

		// Cost change is the proxy for "new events arrived"; logs are
		// append-only, so an unchanged cost means an unchanged session.
		if stored.Cost != candidate.Cost {
			candidate.FirstSeen = stored.FirstSeen
			candidate.LastSeen = now
			seen[candidate.Key] = candidate
			continue
		}

		stored.LastSeen = now
		seen[candidate.Key] = stored
	}

	meta.LastUpdate = now
	meta.TotalSessionsSeen = len(seen)
	meta.ActiveSessionCount = len(active)

	if err := s.saveSessions(seen); err != nil {
		s.logger.Error("failed to persist session store", "error", err)
	}
	if err := s.saveMetadata(meta); err != nil {
		s.logger.Error("failed to persist store metadata", "error", err)
	}

	return s.accumulate(seen, meta), nil
}

// Metadata implements Store.Metadata.
func (s *fileStore) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadMetadata()
}

// Reset implements Store.Reset.
func (s *fileStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range []string{sessionsFile, metadataFile} {
		path := filepath.Join(s.dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}

	s.logger.Info("accumulation store reset", "dir", s.dir)
	return nil
}

// accumulate computes lifetime totals over every session ever seen.
func (s *fileStore) accumulate(seen map[string]SessionAggregate, meta Metadata) *Accumulated {
	acc := &Accumulated{
		ByModel:  make(map[string]*ModelTotals),
		Sessions: make([]SessionAggregate, 0, len(seen)),
		Metadata: meta,
	}

	for _, sess := range seen {
		acc.TotalInputTokens += sess.Tokens.Input
		acc.TotalOutputTokens += sess.Tokens.Output
		acc.TotalCacheWriteTokens += sess.Tokens.CacheWrite
		acc.TotalCacheReadTokens += sess.Tokens.CacheRead
		acc.TotalCost += sess.Cost

		totals, ok := acc.ByModel[sess.Model]
		if !ok {
			totals = &ModelTotals{}
			acc.ByModel[sess.Model] = totals
		}
		totals.InputTokens += sess.Tokens.Input
		totals.OutputTokens += sess.Tokens.Output
		totals.CacheWriteTokens += sess.Tokens.CacheWrite
		totals.CacheReadTokens += sess.Tokens.CacheRead
		totals.Cost += sess.Cost
		totals.Sessions++

		acc.Sessions = append(acc.Sessions, sess)
	}

	sort.Slice(acc.Sessions, func(i, j int) bool {
		return acc.Sessions[i].Key < acc.Sessions[j].Key
	})

	return acc
}

// loadSessions reads the sessions file; corruption degrades to empty.
func (s *fileStore) loadSessions() map[string]SessionAggregate {
	sessions := make(map[string]SessionAggregate)

	data, err := os.ReadFile(filepath.Join(s.dir, sessionsFile))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read session store, starting empty", "error", err)
		}
		return sessions
	}

	if err := json.Unmarshal(data, &sessions); err != nil {
		s.logger.Warn("session store corrupt, starting empty", "error", err)
		return make(map[string]SessionAggregate)
	}

	return sessions
}

// loadMetadata reads the metadata file, initializing it on first run.
func (s *fileStore) loadMetadata() Metadata {
	data, err := os.ReadFile(filepath.Join(s.dir, metadataFile))
	if err != nil {
		return s.freshMetadata()
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		s.logger.Warn("store metadata corrupt, reinitializing", "error", err)
		return s.freshMetadata()
	}

	return meta
}

func (s *fileStore) freshMetadata() Metadata {
	now := s.now()
	return Metadata{
		TrackingStarted: now,
		LastUpdate:      now,
	}
}

// saveSessions rewrites the sessions file in full.
func (s *fileStore) saveSessions(seen map[string]SessionAggregate) error {
	return s.writeFile(sessionsFile, seen)
}

// saveMetadata rewrites the metadata file in full.
func (s *fileStore) saveMetadata(meta Metadata) error {
	return s.writeFile(metadataFile, meta)
}

func (s *fileStore) writeFile(name string, v interface{}) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
