package pathsafe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bokonon23/clawdbot-cost-monitor/pkg/logger"
)

func TestResolveUnder(t *testing.T) {
	base := filepath.Join(string(filepath.Separator), "tmp", "base")

	tests := []struct {
		name    string
		child   string
		want    string
		wantErr error
	}{
		{
			name:  "simple child name",
			child: "file.jsonl",
			want:  filepath.Join(base, "file.jsonl"),
		},
		{
			name:  "nested child path",
			child: filepath.Join("sub", "file.jsonl"),
			want:  filepath.Join(base, "sub", "file.jsonl"),
		},
		{
			name:  "base directory itself",
			child: ".",
			want:  base,
		},
		{
			name:    "traversal with ../",
			child:   filepath.Join("..", "etc", "passwd"),
			wantErr: ErrTraversal,
		},
		{
			name:    "nested traversal",
			child:   filepath.Join("sub", "..", "..", "etc", "passwd"),
			wantErr: ErrTraversal,
		},
		{
			name:    "absolute path",
			child:   filepath.Join(string(filepath.Separator), "etc", "passwd"),
			wantErr: ErrUnsafeSegment,
		},
		{
			name:    "null byte injection",
			child:   "a\x00b",
			wantErr: ErrUnsafeSegment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveUnder(base, tt.child)

			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("ResolveUnder() error = nil, want %v", tt.wantErr)
				}
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ResolveUnder() error = %v, want %v", err, tt.wantErr)
				}

				var violation *Violation
				if !errors.As(err, &violation) {
					t.Errorf("ResolveUnder() error is not a *Violation: %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ResolveUnder() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveUnder() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestInAllowedRoots(t *testing.T) {
	sep := string(filepath.Separator)
	sessions := filepath.Join(sep, "home", "user", ".openclaw", "agents", "main", "sessions")
	projects := filepath.Join(sep, "home", "user", ".claude", "projects")

	tests := []struct {
		name   string
		target string
		roots  []string
		want   bool
	}{
		{
			name:   "inside root",
			target: filepath.Join(sessions, "abc.jsonl"),
			roots:  []string{sessions},
			want:   true,
		},
		{
			name:   "exact root",
			target: sessions,
			roots:  []string{sessions},
			want:   true,
		},
		{
			name:   "outside all roots",
			target: filepath.Join(sep, "etc", "passwd"),
			roots:  []string{sessions},
			want:   false,
		},
		{
			name:   "prefix without separator boundary",
			target: filepath.Join(sep, "home", "user", ".openclawEVIL", "file"),
			roots:  []string{filepath.Join(sep, "home", "user", ".openclaw")},
			want:   false,
		},
		{
			name:   "second of multiple roots",
			target: filepath.Join(projects, "foo", "bar.jsonl"),
			roots:  []string{sessions, projects},
			want:   true,
		},
		{
			name:   "no roots",
			target: filepath.Join(sessions, "abc.jsonl"),
			roots:  nil,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InAllowedRoots(tt.target, tt.roots); got != tt.want {
				t.Errorf("InAllowedRoots(%s) = %v, want %v", tt.target, got, tt.want)
			}
		})
	}
}

func TestWalkerFind(t *testing.T) {
	tmpDir := t.TempDir()

	// agents/main/sessions/{a,b}.jsonl, agents/news-bot/sessions/c.jsonl,
	// plus files that must be ignored.
	mustMkdir(t, filepath.Join(tmpDir, "main", "sessions"))
	mustMkdir(t, filepath.Join(tmpDir, "news-bot", "sessions"))
	mustWrite(t, filepath.Join(tmpDir, "main", "sessions", "a.jsonl"), "{}")
	mustWrite(t, filepath.Join(tmpDir, "main", "sessions", "b.jsonl"), "{}")
	mustWrite(t, filepath.Join(tmpDir, "news-bot", "sessions", "c.jsonl"), "{}")
	mustWrite(t, filepath.Join(tmpDir, "main", "sessions", "notes.txt"), "ignore")
	mustWrite(t, filepath.Join(tmpDir, "main", "sessions.json"), "{}")

	w := NewWalker(logger.Noop())

	files, err := w.Find(tmpDir)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}

	if len(files) != 3 {
		t.Errorf("Find() returned %d files, want 3: %v", len(files), files)
	}

	for _, f := range files {
		if filepath.Ext(f) != ".jsonl" {
			t.Errorf("Find() returned non-log file %s", f)
		}
		if !InAllowedRoots(f, []string{tmpDir}) {
			t.Errorf("Find() returned file outside base: %s", f)
		}
	}
}

func TestWalkerFindMissingDir(t *testing.T) {
	w := NewWalker(logger.Noop())

	files, err := w.Find(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Find() error = %v, want nil for missing directory", err)
	}
	if len(files) != 0 {
		t.Errorf("Find() returned %d files, want 0", len(files))
	}
}

func TestSessionID(t *testing.T) {
	sep := string(filepath.Separator)

	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "agent session file",
			path: filepath.Join(sep, "home", "u", ".openclaw", "agents", "main", "sessions", "abc.jsonl"),
			want: "main/abc",
		},
		{
			name: "bot agent session file",
			path: filepath.Join(sep, "data", "agents", "news-bot", "sessions", "x1.jsonl"),
			want: "news-bot/x1",
		},
		{
			name: "bare log file",
			path: filepath.Join(sep, "logs", "run.jsonl"),
			want: "run",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SessionID(tt.path); got != tt.want {
				t.Errorf("SessionID(%s) = %s, want %s", tt.path, got, tt.want)
			}
		})
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0700); err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
