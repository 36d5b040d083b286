// Package observe records widget session activity as traces, spans, and
// generations shipped to an observability backend. Recording is strictly
// best-effort: every entry point tolerates a disabled backend, and no
// failure here ever reaches chat functionality.
package observe

import (
	"net/http"
	"sync"
	"time"

	"github.com/24ep/chatkit-starter/internal/config"
	"github.com/24ep/chatkit-starter/internal/logging"
	"github.com/24ep/chatkit-starter/internal/metadata"
	"github.com/24ep/chatkit-starter/internal/shared/id"
	"go.uber.org/zap"
)

// SummarySpanName names the span that closes out a session with timing
// aggregates.
const SummarySpanName = "chat_reset"

// Recorder opens traces for widget sessions.
type Recorder struct {
	cfg      *config.Config
	exporter Exporter
	logger   *logging.Logger
	required metadata.Required
	now      func() time.Time
}

// NewRecorder creates a recorder. A nil or disabled exporter yields a
// recorder whose OpenTrace always returns nil.
func NewRecorder(cfg *config.Config, exporter Exporter, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recorder{
		cfg:      cfg,
		exporter: exporter,
		logger:   logger,
		required: metadata.Required{
			WorkflowID:   cfg.ChatKit.WorkflowID,
			AgentVersion: cfg.ChatKit.ResolveAgentVersion(),
			AppVersion:   cfg.App.Version,
		},
		now: time.Now,
	}
}

// Enabled reports whether traces will actually be recorded.
func (r *Recorder) Enabled() bool {
	return r != nil && r.exporter != nil && r.exporter.Enabled()
}

// OpenTrace starts a trace for one session. The event metadata is merged
// with environment, client, and request bundles, with required fields
// re-asserted last. Returns nil when recording is unavailable; every Trace
// method is a safe no-op on a nil receiver.
func (r *Recorder) OpenTrace(userID, sessionID string, eventMeta map[string]any, req *http.Request, snap *metadata.ClientSnapshot) *Trace {
	if !r.Enabled() {
		return nil
	}

	var reqMeta map[string]any
	if req != nil {
		reqMeta = metadata.Request(req)
	}
	merged := metadata.Merge(r.required, eventMeta, metadata.Environment(r.cfg), metadata.Client(snap), reqMeta)

	traceID := id.NewTraceID()
	now := r.now().UTC()
	r.exporter.Export(Event{
		ID:        id.NewEventID().String(),
		Timestamp: now.Format(time.RFC3339Nano),
		Type:      TypeTraceCreate,
		Body: TraceRecord{
			ID:        traceID.String(),
			Name:      "chatkit_session",
			UserID:    userID,
			SessionID: sessionID,
			Timestamp: now.Format(time.RFC3339Nano),
			Metadata:  merged,
		},
	})
	r.logger.Debug("trace opened",
		zap.String("trace_id", traceID.String()),
		zap.String("session_id", sessionID))

	return &Trace{id: traceID, recorder: r}
}

// Trace is the handle for one session's trace. At most one generation is
// open at a time; opening another supersedes the current one.
type Trace struct {
	mu       sync.Mutex
	id       id.TraceID
	recorder *Recorder
	entries  []ResponseEntry
	open     *openGeneration
	closed   bool
}

type openGeneration struct {
	id    id.ObservationID
	seq   int
	start time.Time
}

// ID returns the trace identifier, or "" for a nil handle.
func (t *Trace) ID() string {
	if t == nil {
		return ""
	}
	return t.id.String()
}

// AppendSpan records a completed point-in-time span. Spans are append-only;
// nothing rewrites one after emission.
func (t *Trace) AppendSpan(name string, input, output any, meta map[string]any) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.appendSpanLocked(name, input, output, meta)
}

func (t *Trace) appendSpanLocked(name string, input, output any, meta map[string]any) {
	now := t.recorder.now().UTC().Format(time.RFC3339Nano)
	t.recorder.exporter.Export(Event{
		ID:        id.NewEventID().String(),
		Timestamp: now,
		Type:      TypeSpanCreate,
		Body: SpanRecord{
			ID:        id.NewObservationID().String(),
			TraceID:   t.id.String(),
			Name:      name,
			StartTime: now,
			EndTime:   now,
			Input:     input,
			Output:    output,
			Metadata:  meta,
		},
	})
}

// OpenGeneration starts timing a response keyed by its sequence number. A
// repeated start for the same or a new sequence replaces the open
// generation; the accumulator keeps the latest start per sequence number.
func (t *Trace) OpenGeneration(name string, seq int, input any, meta map[string]any) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	start := t.recorder.now()
	t.upsertEntryLocked(seq, start)
	t.open = &openGeneration{
		id:    id.NewObservationID(),
		seq:   seq,
		start: start,
	}

	t.recorder.exporter.Export(Event{
		ID:        id.NewEventID().String(),
		Timestamp: start.UTC().Format(time.RFC3339Nano),
		Type:      TypeGenerationCreate,
		Body: GenerationRecord{
			ID:        t.open.id.String(),
			TraceID:   t.id.String(),
			Name:      name,
			StartTime: start.UTC().Format(time.RFC3339Nano),
			Input:     input,
			Metadata:  meta,
		},
	})
}

func (t *Trace) upsertEntryLocked(seq int, start time.Time) {
	for i := range t.entries {
		if t.entries[i].MessageNumber == seq {
			t.entries[i] = ResponseEntry{MessageNumber: seq, StartTime: start}
			return
		}
	}
	t.entries = append(t.entries, ResponseEntry{MessageNumber: seq, StartTime: start})
}

// CloseGeneration completes the open generation, recording its latency.
// No open generation means a stray end signal; it is ignored.
func (t *Trace) CloseGeneration(output any, comp *Completion, meta map[string]any) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.open == nil {
		return
	}

	end := t.recorder.now()
	latency := float64(end.Sub(t.open.start)) / float64(time.Millisecond)
	for i := range t.entries {
		if t.entries[i].MessageNumber == t.open.seq {
			endCopy := end
			t.entries[i].EndTime = &endCopy
			t.entries[i].LatencyMs = &latency
			break
		}
	}

	update := GenerationUpdate{
		ID:       t.open.id.String(),
		TraceID:  t.id.String(),
		EndTime:  end.UTC().Format(time.RFC3339Nano),
		Output:   output,
		Metadata: meta,
	}
	if comp != nil {
		update.Model = comp.Model
		update.Usage = comp.Usage
		update.Cost = comp.Cost
	}
	t.recorder.exporter.Export(Event{
		ID:        id.NewEventID().String(),
		Timestamp: end.UTC().Format(time.RFC3339Nano),
		Type:      TypeGenerationUpdate,
		Body:      update,
	})
	t.open = nil
}

// Close emits the session summary span and invalidates the handle. A
// generation still open when the session ends is dropped, not completed;
// its entry stays in the totals as an incomplete response.
func (t *Trace) Close(final map[string]any) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.open = nil

	summary := Summarize(t.entries).metadata()
	summary["resetAt"] = t.recorder.now().UTC().Format(time.RFC3339Nano)
	for k, v := range final {
		summary[k] = v
	}
	t.appendSpanLocked(SummarySpanName, nil, nil, summary)
	t.closed = true
}

// Stats returns the current timing aggregates without closing the trace.
func (t *Trace) Stats() Stats {
	if t == nil {
		return Stats{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summarize(t.entries)
}
