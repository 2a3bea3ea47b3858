package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/amrshaker/taskmill/pkg/telemetry"
)

// ExportPrometheus renders the tracker's registry in the Prometheus text
// exposition format (0.0.4): per-category job_latency_bucket/_sum/_count
// plus job_total_done and job_total_expected, along with any instruments
// registered through Registry().
func (t *Tracker) ExportPrometheus() (string, error) {
	mfs, err := t.reg.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return "", fmt.Errorf("encode metric family: %w", err)
		}
	}
	return buf.String(), nil
}

type categoryJSON struct {
	JobCount         int64 `json:"job_count"`
	AverageLatencyMs int64 `json:"average_latency_ms"`
	MinLatencyMs     int64 `json:"min_latency_ms"`
	MaxLatencyMs     int64 `json:"max_latency_ms"`
}

type exportJSON struct {
	TotalDone     int64                   `json:"total_done"`
	TotalExpected int64                   `json:"total_expected"`
	Categories    map[string]categoryJSON `json:"categories"`
}

// ExportJSON returns the per-category metric snapshot.
func (t *Tracker) ExportJSON() ([]byte, error) {
	out := exportJSON{
		TotalDone:     t.done.Load(),
		TotalExpected: int64(t.total),
		Categories:    make(map[string]categoryJSON),
	}
	for name, s := range t.snapshotCategories() {
		avg := int64(0)
		if s.count > 0 {
			avg = s.sum / s.count
		}
		out.Categories[name] = categoryJSON{
			JobCount:         s.count,
			AverageLatencyMs: avg,
			MinLatencyMs:     s.min,
			MaxLatencyMs:     s.max,
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

type summaryCategoryJSON struct {
	Count            int64 `json:"count"`
	AverageLatencyMs int64 `json:"average_latency_ms"`
	MinLatencyMs     int64 `json:"min_latency_ms"`
	MaxLatencyMs     int64 `json:"max_latency_ms"`
}

type summaryJSON struct {
	TotalJobs            int                             `json:"total_jobs"`
	CompletedJobs        int64                           `json:"completed_jobs"`
	AverageLatencyMs     int64                           `json:"average_latency_ms"`
	TotalExecutionTimeMs int64                           `json:"total_execution_time_ms"`
	Paused               bool                            `json:"paused"`
	Categories           map[string]summaryCategoryJSON `json:"categories"`
	LevelSummary         map[string]map[string]int64     `json:"levelSummary"`
}

// ExportSummaryJSON returns the end-of-run summary: global totals,
// per-category aggregates, and per-level counts by category.
func (t *Tracker) ExportSummaryJSON() ([]byte, error) {
	out := summaryJSON{
		TotalJobs:            t.total,
		CompletedJobs:        t.done.Load(),
		AverageLatencyMs:     t.averageLatency(),
		TotalExecutionTimeMs: time.Since(t.start).Milliseconds(),
		Paused:               t.paused.Load(),
		Categories:           make(map[string]summaryCategoryJSON),
		LevelSummary:         make(map[string]map[string]int64),
	}

	for name, s := range t.snapshotCategories() {
		avg := int64(0)
		if s.count > 0 {
			avg = s.sum / s.count
		}
		out.Categories[name] = summaryCategoryJSON{
			Count:            s.count,
			AverageLatencyMs: avg,
			MinLatencyMs:     s.min,
			MaxLatencyMs:     s.max,
		}
	}

	t.levelMu.Lock()
	for cat, byLevel := range t.catLevels {
		counts := make(map[string]int64, len(byLevel))
		for level, n := range byLevel {
			counts[level] = n
		}
		out.LevelSummary[cat] = counts
	}
	t.levelMu.Unlock()

	return json.MarshalIndent(out, "", "  ")
}

func (t *Tracker) snapshotCategories() map[string]categorySnapshot {
	t.mu.RLock()
	metrics := make(map[string]*categoryMetric, len(t.categories))
	for name, m := range t.categories {
		metrics[name] = m
	}
	t.mu.RUnlock()

	snaps := make(map[string]categorySnapshot, len(metrics))
	for name, m := range metrics {
		snaps[name] = m.snapshot()
	}
	return snaps
}

// StartServer exposes the tracker's registry over HTTP on GET /metrics.
// Idempotent: only the first call starts a server.
func (t *Tracker) StartServer(ctx context.Context, addr string, logger *slog.Logger) {
	t.serverOnce.Do(func() {
		telemetry.StartMetricsServer(ctx, addr, t.reg, logger)
	})
}
