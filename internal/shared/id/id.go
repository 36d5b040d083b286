// Package id generates identifiers for observability records.
//
// Trace and observation ids are ULIDs: lexicographically sortable, so the
// observability backend can order events by id without trusting client
// clocks, and prefixed for readable logs.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TraceID identifies a trace spanning one widget session.
type TraceID string

// ObservationID identifies a span or generation within a trace.
type ObservationID string

// EventID identifies one ingestion batch event.
type EventID string

const (
	tracePrefix       = "trace"
	observationPrefix = "obs"
	eventPrefix       = "evt"
)

// Generator generates prefixed ULIDs.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(rand.Reader)
	})
	return defaultGenerator
}

// NewGenerator creates a generator from an entropy source. Pass a
// deterministic reader for reproducible ids in tests.
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID string.
func (g *Generator) Generate() string {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate())
}

// NewTraceID generates a new trace ID.
func NewTraceID() TraceID {
	return TraceID(Default().GenerateWithPrefix(tracePrefix))
}

// NewObservationID generates a new observation ID.
func NewObservationID() ObservationID {
	return ObservationID(Default().GenerateWithPrefix(observationPrefix))
}

// NewEventID generates a new ingestion event ID.
func NewEventID() EventID {
	return EventID(Default().GenerateWithPrefix(eventPrefix))
}

func (id TraceID) String() string       { return string(id) }
func (id ObservationID) String() string { return string(id) }
func (id EventID) String() string       { return string(id) }

// IsValid checks whether the part after the prefix is a valid ULID.
func IsValid(id string) bool {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '_' {
			id = id[i+1:]
			break
		}
	}
	_, err := ulid.Parse(id)
	return err == nil
}
