package event

import (
	"time"

	"github.com/tidwall/gjson"
)

// matcher is one schema-recognition strategy. It inspects a parsed record
// and either claims it (producing an event, or nil for control records)
// or passes.
type matcher func(s *Stream, rec gjson.Result) (ev *UsageEvent, claimed bool)

// Stream normalizes the lines of a single log file.
//
// A Stream is stateful: model_change control records update the model and
// provider context applied to subsequent records that carry no model of
// their own. Streams are not safe for concurrent use; each file gets its
// own.
type Stream struct {
	kind     SourceKind
	sourceID string

	// Current model context, updated by model_change records.
	model    string
	provider string

	matchers []matcher
}

// NewStream creates a normalizer for one log stream.
//
// Parameters:
//   - kind: Source kind attached to every event from this stream
//   - sourceID: Stable stream identifier (session or job id)
func NewStream(kind SourceKind, sourceID string) *Stream {
	return &Stream{
		kind:     kind,
		sourceID: sourceID,
		matchers: []matcher{
			matchMessage,
			matchCronFinished,
			matchModelChange,
		},
	}
}

// Normalize parses one log line and applies the schema matchers in
// priority order; the first matcher that recognizes the shape wins.
//
// Returns (nil, false) for lines that are not valid JSON, match no known
// shape, carry no usage, or carry negative token counts; such lines are
// skipped without aborting the stream. Control records return (nil, false)
// after updating the stream context.
func (s *Stream) Normalize(line []byte) (*UsageEvent, bool) {
	if !gjson.ValidBytes(line) {
		return nil, false
	}

	rec := gjson.ParseBytes(line)
	if !rec.IsObject() {
		return nil, false
	}

	for _, match := range s.matchers {
		ev, claimed := match(s, rec)
		if !claimed {
			continue
		}
		if ev == nil {
			return nil, false
		}
		if !ev.Tokens.Valid() {
			return nil, false
		}
		return ev, true
	}

	return nil, false
}

// matchMessage recognizes generic message records with a nested
// message.usage object. Two historical field-name spellings are accepted:
// {input_tokens, output_tokens, cache_creation_input_tokens,
// cache_read_input_tokens} and {input, output, cacheWrite, cacheRead}.
// A costUSD (or cost) field embeds an authoritative pre-computed cost.
func matchMessage(s *Stream, rec gjson.Result) (*UsageEvent, bool) {
	usage := rec.Get("message.usage")
	if !usage.IsObject() {
		return nil, false
	}

	ts, ok := recordTime(rec)
	if !ok {
		return nil, false
	}

	tokens := TokenTally{
		Input:      firstInt(usage, "input_tokens", "input"),
		Output:     firstInt(usage, "output_tokens", "output"),
		CacheWrite: firstInt(usage, "cache_creation_input_tokens", "cacheWrite"),
		CacheRead:  firstInt(usage, "cache_read_input_tokens", "cacheRead"),
	}

	if total := usage.Get("total_tokens"); total.Exists() {
		tokens = tokens.ReconcileTotal(total.Int())
	}

	model := rec.Get("message.model").String()
	provider := rec.Get("provider").String()
	if model == "" {
		model = s.model
	}
	if provider == "" {
		provider = s.provider
	}

	ev := &UsageEvent{
		Timestamp:  ts,
		Model:      NormalizeModel(model, provider),
		Tokens:     tokens,
		SourceKind: s.kind,
		SourceID:   s.sourceID,
		Status:     StatusOK,
	}

	if cost := firstNumber(rec, "costUSD", "cost"); cost != nil {
		ev.EmbeddedCost = cost
	}

	return ev, true
}

// matchCronFinished recognizes cron run completion records: an
// action=="finished" discriminator, a millisecond timestamp in
// runAtMs or ts, a status field, and flat usage token counts.
func matchCronFinished(s *Stream, rec gjson.Result) (*UsageEvent, bool) {
	if rec.Get("action").String() != "finished" {
		return nil, false
	}

	ms := rec.Get("runAtMs").Int()
	if ms == 0 {
		ms = rec.Get("ts").Int()
	}
	if ms == 0 {
		return nil, false
	}

	usage := rec.Get("usage")
	tokens := TokenTally{
		Input:  usage.Get("input_tokens").Int(),
		Output: usage.Get("output_tokens").Int(),
	}
	if total := usage.Get("total_tokens"); total.Exists() {
		tokens = tokens.ReconcileTotal(total.Int())
	}

	ev := &UsageEvent{
		Timestamp:  time.UnixMilli(ms).UTC(),
		Model:      NormalizeModel(rec.Get("model").String(), rec.Get("provider").String()),
		Tokens:     tokens,
		SourceKind: SourceCronRun,
		SourceID:   s.sourceID,
		Status:     StatusOK,
	}

	if rec.Get("status").String() != "ok" {
		ev.Status = StatusError
		ev.ErrorText = rec.Get("error").String()
	}

	return ev, true
}

// matchModelChange recognizes model_change control records. They produce
// no event; they update the model/provider context for the rest of the
// stream.
func matchModelChange(s *Stream, rec gjson.Result) (*UsageEvent, bool) {
	kind := rec.Get("type").String()
	if kind == "" {
		kind = rec.Get("action").String()
	}
	if kind != "model_change" {
		return nil, false
	}

	if model := rec.Get("model").String(); model != "" {
		s.model = model
	}
	if provider := rec.Get("provider").String(); provider != "" {
		s.provider = provider
	}

	return nil, true
}

// recordTime extracts the record timestamp: an RFC3339 "timestamp" string
// or a millisecond "ts" number.
func recordTime(rec gjson.Result) (time.Time, bool) {
	if raw := rec.Get("timestamp").String(); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, false
		}
		return ts.UTC(), true
	}

	if ms := rec.Get("ts").Int(); ms != 0 {
		return time.UnixMilli(ms).UTC(), true
	}

	return time.Time{}, false
}

// firstInt returns the first existing field among names as an int64.
func firstInt(rec gjson.Result, names ...string) int64 {
	for _, name := range names {
		if v := rec.Get(name); v.Exists() {
			return v.Int()
		}
	}
	return 0
}

// firstNumber returns a pointer to the first existing numeric field among
// names, or nil.
func firstNumber(rec gjson.Result, names ...string) *float64 {
	for _, name := range names {
		if v := rec.Get(name); v.Exists() && v.Type == gjson.Number {
			f := v.Float()
			return &f
		}
	}
	return nil
}
