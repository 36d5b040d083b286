package observe

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ResponseEntry tracks the timing of one assistant response, keyed by its
// sequence number within the session.
type ResponseEntry struct {
	MessageNumber int
	StartTime     time.Time
	EndTime       *time.Time
	LatencyMs     *float64
}

// Stats summarizes response timing for a session. Latency aggregates are
// nil, not zero, when no response completed.
type Stats struct {
	TotalResponses     int
	CompletedResponses int
	AvgLatencyMs       *float64
	MinLatencyMs       *float64
	MaxLatencyMs       *float64
}

// Summarize aggregates entries that recorded a latency. Entries still open
// count toward the total only.
func Summarize(entries []ResponseEntry) Stats {
	latencies := make([]float64, 0, len(entries))
	for _, e := range entries {
		if e.LatencyMs != nil {
			latencies = append(latencies, *e.LatencyMs)
		}
	}

	s := Stats{
		TotalResponses:     len(entries),
		CompletedResponses: len(latencies),
	}
	if len(latencies) == 0 {
		return s
	}

	avg := stat.Mean(latencies, nil)
	min := floats.Min(latencies)
	max := floats.Max(latencies)
	s.AvgLatencyMs = &avg
	s.MinLatencyMs = &min
	s.MaxLatencyMs = &max
	return s
}

// metadata renders the stats for the session summary span. Absent
// aggregates serialize as null.
func (s Stats) metadata() map[string]any {
	m := map[string]any{
		"totalResponses":     s.TotalResponses,
		"completedResponses": s.CompletedResponses,
	}
	m["averageResponseLatencyMs"] = floatOrNil(s.AvgLatencyMs)
	m["minResponseLatencyMs"] = floatOrNil(s.MinLatencyMs)
	m["maxResponseLatencyMs"] = floatOrNil(s.MaxLatencyMs)
	return m
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
