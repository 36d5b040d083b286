package observe

// Ingestion event types understood by the backend.
const (
	TypeTraceCreate      = "trace-create"
	TypeSpanCreate       = "span-create"
	TypeGenerationCreate = "generation-create"
	TypeGenerationUpdate = "generation-update"
)

// Event is one entry of an ingestion batch.
type Event struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Body      any    `json:"body"`
}

type batch struct {
	Batch []Event `json:"batch"`
}

// TraceRecord is the body of a trace-create event.
type TraceRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SpanRecord is the body of a span-create event. Input and Output are
// omitted entirely, not serialized as null, when unset.
type SpanRecord struct {
	ID        string         `json:"id"`
	TraceID   string         `json:"traceId"`
	Name      string         `json:"name"`
	StartTime string         `json:"startTime,omitempty"`
	EndTime   string         `json:"endTime,omitempty"`
	Input     any            `json:"input,omitempty"`
	Output    any            `json:"output,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// GenerationRecord is the body of a generation-create event. The model is
// not known at start; it arrives with the closing update.
type GenerationRecord struct {
	ID        string         `json:"id"`
	TraceID   string         `json:"traceId"`
	Name      string         `json:"name"`
	StartTime string         `json:"startTime,omitempty"`
	Input     any            `json:"input,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// GenerationUpdate is the body of a generation-update event closing a
// previously created generation.
type GenerationUpdate struct {
	ID       string         `json:"id"`
	TraceID  string         `json:"traceId"`
	EndTime  string         `json:"endTime,omitempty"`
	Model    string         `json:"model,omitempty"`
	Output   any            `json:"output,omitempty"`
	Usage    *TokenUsage    `json:"usage,omitempty"`
	Cost     *float64       `json:"cost,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Completion carries the model-reported details of a finished generation,
// as far as the widget supplies them.
type Completion struct {
	Model string
	Usage *TokenUsage
	Cost  *float64
}

// TokenUsage reports token counts for a completed generation.
type TokenUsage struct {
	PromptTokens     int    `json:"promptTokens,omitempty"`
	CompletionTokens int    `json:"completionTokens,omitempty"`
	TotalTokens      int    `json:"totalTokens,omitempty"`
	Unit             string `json:"unit,omitempty"`
}
