// Package progress tracks completion and latency for a batch of jobs:
// global counters, per-category metrics, per-level counts, progress lines,
// and Prometheus/JSON snapshots of all of it.
package progress

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// latencyBuckets are the fixed histogram upper bounds, in milliseconds.
var latencyBuckets = []int64{50, 100, 250, 500, 1000}

// LineWriter receives synchronous progress and summary lines. Satisfied by
// logging.Logger.
type LineWriter interface {
	Line(msg string)
}

type stdoutLines struct{}

func (stdoutLines) Line(msg string) {
	fmt.Printf("[%s]  ===  %s\n", time.Now().Format("2006-01-02 15:04:05"), msg)
}

// categoryMetric aggregates latencies for one category. The embedded mutex
// serializes writers and gives exports a consistent per-category view.
type categoryMetric struct {
	mu        sync.Mutex
	count     int64
	latencies []int64
	min       int64
	max       int64
}

func (m *categoryMetric) add(latencyMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 || latencyMs < m.min {
		m.min = latencyMs
	}
	if m.count == 0 || latencyMs > m.max {
		m.max = latencyMs
	}
	m.count++
	m.latencies = append(m.latencies, latencyMs)
}

// categorySnapshot is one category's state frozen for export.
type categorySnapshot struct {
	count     int64
	sum       int64
	min       int64
	max       int64
	latencies []int64
}

func (m *categoryMetric) snapshot() categorySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := categorySnapshot{
		count:     m.count,
		min:       m.min,
		max:       m.max,
		latencies: append([]int64(nil), m.latencies...),
	}
	for _, l := range s.latencies {
		s.sum += l
	}
	return s
}

// Tracker accumulates progress for a known number of expected jobs.
type Tracker struct {
	total int

	done         atomic.Int64
	latencySum   atomic.Int64
	latencyCount atomic.Int64
	paused       atomic.Bool
	lastLogged   atomic.Int64

	start time.Time

	logInterval int64
	highlightMs int64
	lines       LineWriter
	logger      *slog.Logger

	mu         sync.RWMutex
	categories map[string]*categoryMetric

	levelMu   sync.Mutex
	levels    map[string]int64
	catLevels map[string]map[string]int64

	reg        *prometheus.Registry
	serverOnce sync.Once
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLines routes progress lines through the given writer (normally the
// dual-sink logger). Defaults to stdout.
func WithLines(w LineWriter) Option { return func(t *Tracker) { t.lines = w } }

// WithLogger sets the structured logger used for warnings.
func WithLogger(l *slog.Logger) Option { return func(t *Tracker) { t.logger = l } }

// WithLogInterval emits a progress line every n completions (default 1).
func WithLogInterval(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.logInterval = int64(n)
		}
	}
}

// WithHighlight warns on any single job slower than thresholdMs.
// Zero disables highlighting.
func WithHighlight(thresholdMs int) Option {
	return func(t *Tracker) { t.highlightMs = int64(thresholdMs) }
}

// New creates a tracker expecting total jobs.
func New(total int, opts ...Option) *Tracker {
	t := &Tracker{
		total:       total,
		start:       time.Now(),
		logInterval: 1,
		lines:       stdoutLines{},
		logger:      slog.Default(),
		categories:  make(map[string]*categoryMetric),
		levels:      make(map[string]int64),
		catLevels:   make(map[string]map[string]int64),
		reg:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.reg.MustRegister(t)
	return t
}

// Registry exposes the tracker's Prometheus registry so callers can add
// their own instruments (e.g. pool counters) to the same scrape endpoint.
func (t *Tracker) Registry() *prometheus.Registry { return t.reg }

// Done returns the number of completed jobs.
func (t *Tracker) Done() int64 { return t.done.Load() }

// Expected returns the configured job total.
func (t *Tracker) Expected() int { return t.total }

// MarkDone records one completed job without a category dimension.
func (t *Tracker) MarkDone(latencyMs int64, level slog.Level) {
	t.markGlobal(latencyMs, level)
}

// MarkDoneCategory records one completed job under a category, creating the
// category metric on first observation.
func (t *Tracker) MarkDoneCategory(category string, latencyMs int64, level slog.Level) {
	t.categoryFor(category).add(latencyMs)

	t.levelMu.Lock()
	byLevel, ok := t.catLevels[category]
	if !ok {
		byLevel = make(map[string]int64)
		t.catLevels[category] = byLevel
	}
	byLevel[level.String()]++
	t.levelMu.Unlock()

	t.markGlobal(latencyMs, level)
}

func (t *Tracker) markGlobal(latencyMs int64, level slog.Level) {
	t.latencySum.Add(latencyMs)
	t.latencyCount.Add(1)
	done := t.done.Add(1)

	t.levelMu.Lock()
	t.levels[level.String()]++
	t.levelMu.Unlock()

	if t.highlightMs > 0 && latencyMs > t.highlightMs {
		t.lines.Line(fmt.Sprintf("[!!!] high latency job: %dms", latencyMs))
		t.logger.Warn("high latency job", slog.Int64("latency_ms", latencyMs))
	}

	if t.paused.Load() {
		return
	}
	last := t.lastLogged.Load()
	if done-last >= t.logInterval && t.lastLogged.CompareAndSwap(last, done) {
		t.progressLine(done)
	}
}

func (t *Tracker) categoryFor(name string) *categoryMetric {
	t.mu.RLock()
	m, ok := t.categories[name]
	t.mu.RUnlock()
	if ok {
		return m
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok = t.categories[name]; ok {
		return m
	}
	m = &categoryMetric{}
	t.categories[name] = m
	return m
}

// Pause suppresses progress lines. Metric collection continues.
func (t *Tracker) Pause() { t.paused.Store(true) }

// Resume re-enables progress lines.
func (t *Tracker) Resume() { t.paused.Store(false) }

// Paused reports whether progress lines are suppressed.
func (t *Tracker) Paused() bool { return t.paused.Load() }

func (t *Tracker) progressLine(done int64) {
	pct := 100
	if t.total > 0 {
		pct = int(done * 100 / int64(t.total))
		if pct > 100 {
			pct = 100
		}
	}
	t.lines.Line(fmt.Sprintf("Progress: %d%% | ETA: %s | Avg latency: %dms",
		pct, t.ETA(), t.averageLatency()))
}

// Finish emits the run summary lines.
func (t *Tracker) Finish() {
	elapsed := time.Since(t.start).Milliseconds()
	t.lines.Line(fmt.Sprintf("all workers finished, total jobs done: %d", t.done.Load()))
	t.lines.Line(fmt.Sprintf("average job latency: %dms", t.averageLatency()))
	t.lines.Line(fmt.Sprintf("total execution time: %dms", elapsed))
}

func (t *Tracker) averageLatency() int64 {
	count := t.latencyCount.Load()
	if count == 0 {
		return 0
	}
	return t.latencySum.Load() / count
}

// ETA estimates the remaining wall time as (total-done) × average latency,
// rounded up to whole seconds. "N/A" before the first completion, "0s" once
// everything is done.
func (t *Tracker) ETA() string {
	done := t.done.Load()
	if done == 0 {
		return "N/A"
	}
	if done >= int64(t.total) {
		return "0s"
	}
	etaMs := t.averageLatency() * (int64(t.total) - done)
	etaSec := (etaMs + 999) / 1000
	if etaSec >= 60 {
		return strconv.FormatInt(etaSec/60, 10) + "m" + strconv.FormatInt(etaSec%60, 10) + "s"
	}
	return strconv.FormatInt(etaSec, 10) + "s"
}
