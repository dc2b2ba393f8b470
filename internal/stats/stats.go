// Package stats maintains running download statistics for a single update
// run. Latency percentiles use DDSketch so the final run summary stays
// cheap regardless of how many files were fetched.
package stats

import (
	"math"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// RunStats accumulates per-download observations across a run.
type RunStats struct {
	mu sync.Mutex

	started time.Time

	count    int64
	failures int64
	retries  int64
	bytes    int64

	sumMs float64
	minMs float64
	maxMs float64

	sketch *ddsketch.DDSketch
}

// New creates a RunStats. The sketch uses 1% relative accuracy, which is
// plenty for reporting download latency.
func New() *RunStats {
	s := &RunStats{
		started: time.Now().UTC(),
		minMs:   math.MaxFloat64,
		maxMs:   -math.MaxFloat64,
	}

	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err == nil {
		s.sketch = sketch
	}

	return s
}

// RecordDownload records one successful download.
func (s *RunStats) RecordDownload(bytes int64, elapsed time.Duration, retries int) {
	ms := float64(elapsed.Milliseconds())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.retries += int64(retries)
	s.bytes += bytes
	s.sumMs += ms

	if ms < s.minMs {
		s.minMs = ms
	}
	if ms > s.maxMs {
		s.maxMs = ms
	}

	if s.sketch != nil {
		s.sketch.Add(ms)
	}
}

// RecordFailure records a download that failed after exhausting retries.
func (s *RunStats) RecordFailure(retries int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures++
	s.retries += int64(retries)
}

// Count returns the number of successful downloads.
func (s *RunStats) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Summary is a point-in-time copy of the run statistics.
type Summary struct {
	Started  time.Time
	Elapsed  time.Duration
	Count    int64
	Failures int64
	Retries  int64
	Bytes    int64

	MinMs float64
	MaxMs float64
	AvgMs float64
	P50Ms float64
	P95Ms float64
	P99Ms float64
}

// Summarize returns the current statistics.
func (s *RunStats) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		Started:  s.started,
		Elapsed:  time.Since(s.started),
		Count:    s.count,
		Failures: s.failures,
		Retries:  s.retries,
		Bytes:    s.bytes,
	}

	if s.count > 0 {
		sum.MinMs = s.minMs
		sum.MaxMs = s.maxMs
		sum.AvgMs = s.sumMs / float64(s.count)
	}

	if s.sketch != nil && s.count > 0 {
		sum.P50Ms, _ = s.sketch.GetValueAtQuantile(0.50)
		sum.P95Ms, _ = s.sketch.GetValueAtQuantile(0.95)
		sum.P99Ms, _ = s.sketch.GetValueAtQuantile(0.99)
	}

	return sum
}

// LogArgs returns the summary as alternating slog key/value pairs.
func (sum Summary) LogArgs() []any {
	return []any{
		"downloads", sum.Count,
		"failures", sum.Failures,
		"retries", sum.Retries,
		"bytes", sum.Bytes,
		"elapsed", sum.Elapsed.Round(time.Millisecond).String(),
		"avg_ms", int64(sum.AvgMs),
		"p50_ms", int64(sum.P50Ms),
		"p95_ms", int64(sum.P95Ms),
		"p99_ms", int64(sum.P99Ms),
	}
}
