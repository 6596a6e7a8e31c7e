// Package planusage reads plan quota history collected by the external
// usage scraper.
//
// The scraping process itself lives outside this program; it appends
// percent-used readings for the current session and weekly quota windows
// to a JSON file. This package only loads that file and hands out the
// latest reading plus the full history. A missing file is a normal state,
// not an error.
package planusage

import (
	"encoding/json"
	"os"

	"github.com/bokonon23/clawdbot-cost-monitor/pkg/logger"
)

// noDataMessage explains an empty result when the scraper never ran.
const noDataMessage = "No plan usage data yet. Run the usage scraper to collect data."

// Quota is one quota window reading.
type Quota struct {
	// PercentUsed is how much of the window's allowance is consumed.
	PercentUsed int `json:"percentUsed"`

	// Resets is the human-readable reset time reported by the scraper.
	Resets string `json:"resets"`
}

// Record is one scraped observation. Windows the scraper could not parse
// are nil.
type Record struct {
	Timestamp    string `json:"timestamp"`
	Session      *Quota `json:"session"`
	WeeklyAll    *Quota `json:"weeklyAll"`
	WeeklySonnet *Quota `json:"weeklySonnet"`
}

// Result is the plan usage query payload.
type Result struct {
	// Latest is the most recent record, nil when none exist.
	Latest *Record `json:"latest"`

	// History holds every retained record, oldest first.
	History []Record `json:"history"`

	// Message explains an empty result.
	Message string `json:"message,omitempty"`
}

// Reader loads plan usage history.
type Reader interface {
	// Read returns the scraped history and its latest record. A missing
	// or unreadable file yields an empty result with a message.
	Read() *Result
}

// reader implements the Reader interface.
type reader struct {
	path   string
	logger logger.Logger
}

// New creates a plan usage reader over the scraper's output file.
func New(path string, log logger.Logger) Reader {
	return &reader{path: path, logger: log}
}

// Read implements Reader.Read.
func (r *reader) Read() *Result {
	empty := &Result{History: []Record{}, Message: noDataMessage}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("failed to read plan usage file", "path", r.path, "error", err)
		}
		return empty
	}

	var history []Record
	if err := json.Unmarshal(data, &history); err != nil {
		r.logger.Warn("plan usage file corrupt", "path", r.path, "error", err)
		return empty
	}

	if len(history) == 0 {
		return empty
	}

	return &Result{
		Latest:  &history[len(history)-1],
		History: history,
	}
}
