package pathsafe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LogExtension is the file extension of recognized log files.
const LogExtension = ".jsonl"

// Logger defines the logging interface used by the pathsafe package.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Walker enumerates log files under trusted base directories.
type Walker interface {
	// Find recursively returns every .jsonl file under dir.
	//
	// Every directory entry name is validated with ResolveUnder before it
	// is descended into or returned; unsafe entries are skipped and
	// logged, never fatal. A missing directory yields zero files and no
	// error.
	Find(dir string) ([]string, error)
}

// walker implements the Walker interface.
type walker struct {
	logger Logger
}

// NewWalker creates a new log file walker.
func NewWalker(log Logger) Walker {
	return &walker{logger: log}
}

// Find implements Walker.Find.
func (w *walker) Find(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			w.logger.Debug("log directory not found, skipping", "path", dir)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat directory %s: %w", dir, err)
	}

	return w.walk(dir)
}

// walk scans one directory level, recursing into safe subdirectories.
func (w *walker) walk(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		candidate, err := ResolveUnder(dir, entry.Name())
		if err != nil {
			w.logger.Warn("skipping unsafe directory entry",
				"dir", dir,
				"entry", entry.Name(),
				"error", err)
			continue
		}

		if entry.IsDir() {
			sub, err := w.walk(candidate)
			if err != nil {
				w.logger.Warn("failed to scan subdirectory",
					"path", candidate,
					"error", err)
				continue
			}
			files = append(files, sub...)
			continue
		}

		if !strings.HasSuffix(entry.Name(), LogExtension) {
			continue
		}

		files = append(files, candidate)
	}

	return files, nil
}

// SessionID derives the stable session identifier for a log file path:
// the file name without its extension, prefixed by the name of the
// directory two levels up when the file sits in an agent's sessions
// directory (<agent>/sessions/<file>.jsonl).
func SessionID(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), LogExtension)

	parent := filepath.Dir(path)
	if filepath.Base(parent) == "sessions" {
		agent := filepath.Base(filepath.Dir(parent))
		if agent != "" && agent != "." && agent != string(filepath.Separator) {
			return agent + "/" + stem
		}
	}

	return stem
}
