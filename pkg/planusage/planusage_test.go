package planusage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bokonon23/clawdbot-cost-monitor/pkg/logger"
)

func TestReadLatestAndHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan-usage.json")
	content := `[
  {"timestamp":"2025-06-01T08:00:00Z","session":{"percentUsed":7,"resets":"10:59pm"},"weeklyAll":{"percentUsed":40,"resets":"Thu 5pm"}},
  {"timestamp":"2025-06-01T09:00:00Z","session":{"percentUsed":12,"resets":"10:59pm"},"weeklySonnet":{"percentUsed":3,"resets":"Thu 5pm"}}
]`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	result := New(path, logger.Noop()).Read()

	if len(result.History) != 2 {
		t.Fatalf("History = %d records, want 2", len(result.History))
	}
	if result.Message != "" {
		t.Errorf("Message = %q, want empty", result.Message)
	}

	if result.Latest == nil {
		t.Fatal("Latest = nil, want most recent record")
	}
	if result.Latest.Timestamp != "2025-06-01T09:00:00Z" {
		t.Errorf("Latest.Timestamp = %q", result.Latest.Timestamp)
	}
	if result.Latest.Session == nil || result.Latest.Session.PercentUsed != 12 {
		t.Errorf("Latest.Session = %+v", result.Latest.Session)
	}
	if result.Latest.WeeklyAll != nil {
		t.Errorf("Latest.WeeklyAll = %+v, want nil (not scraped)", result.Latest.WeeklyAll)
	}
}

func TestReadMissingFile(t *testing.T) {
	result := New(filepath.Join(t.TempDir(), "nope.json"), logger.Noop()).Read()

	if result.Latest != nil {
		t.Errorf("Latest = %+v, want nil", result.Latest)
	}
	if len(result.History) != 0 {
		t.Errorf("History = %d, want 0", len(result.History))
	}
	if result.Message == "" {
		t.Error("Message empty, want explanation")
	}
}

func TestReadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan-usage.json")
	if err := os.WriteFile(path, []byte("[{nope"), 0600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	result := New(path, logger.Noop()).Read()

	if result.Latest != nil || len(result.History) != 0 || result.Message == "" {
		t.Errorf("corrupt file should yield empty result, got %+v", result)
	}
}
