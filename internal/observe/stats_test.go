package observe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(seq int, latencyMs float64) ResponseEntry {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Duration(latencyMs) * time.Millisecond)
	return ResponseEntry{MessageNumber: seq, StartTime: start, EndTime: &end, LatencyMs: &latencyMs}
}

func TestSummarize(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		s := Summarize(nil)
		assert.Equal(t, 0, s.TotalResponses)
		assert.Nil(t, s.AvgLatencyMs)
		assert.Nil(t, s.MinLatencyMs)
		assert.Nil(t, s.MaxLatencyMs)
	})

	t.Run("none completed", func(t *testing.T) {
		entries := []ResponseEntry{
			{MessageNumber: 1, StartTime: time.Now()},
			{MessageNumber: 2, StartTime: time.Now()},
		}
		s := Summarize(entries)
		assert.Equal(t, 2, s.TotalResponses)
		assert.Equal(t, 0, s.CompletedResponses)
		assert.Nil(t, s.AvgLatencyMs)
	})

	t.Run("mixed", func(t *testing.T) {
		entries := []ResponseEntry{
			entry(1, 100),
			{MessageNumber: 2, StartTime: time.Now()},
			entry(3, 300),
		}
		s := Summarize(entries)
		assert.Equal(t, 3, s.TotalResponses)
		assert.Equal(t, 2, s.CompletedResponses)
		require.NotNil(t, s.AvgLatencyMs)
		assert.InDelta(t, 200, *s.AvgLatencyMs, 0.001)
		assert.InDelta(t, 100, *s.MinLatencyMs, 0.001)
		assert.InDelta(t, 300, *s.MaxLatencyMs, 0.001)
	})

	t.Run("single", func(t *testing.T) {
		s := Summarize([]ResponseEntry{entry(1, 250)})
		assert.InDelta(t, 250, *s.AvgLatencyMs, 0.001)
		assert.InDelta(t, 250, *s.MinLatencyMs, 0.001)
		assert.InDelta(t, 250, *s.MaxLatencyMs, 0.001)
	})
}
