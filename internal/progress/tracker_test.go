package progress_test

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amrshaker/taskmill/internal/progress"
)

// lineRecorder captures progress lines instead of writing to stdout.
type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) Line(msg string) {
	r.mu.Lock()
	r.lines = append(r.lines, msg)
	r.mu.Unlock()
}

func (r *lineRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func newTracker(total int, opts ...progress.Option) (*progress.Tracker, *lineRecorder) {
	rec := &lineRecorder{}
	opts = append([]progress.Option{progress.WithLines(rec)}, opts...)
	return progress.New(total, opts...), rec
}

func TestMarkDoneCounts(t *testing.T) {
	tr, _ := newTracker(3)
	tr.MarkDone(100, slog.LevelInfo)
	tr.MarkDone(200, slog.LevelInfo)

	assert.Equal(t, int64(2), tr.Done())
	assert.Equal(t, 3, tr.Expected())
}

func TestETAFormatting(t *testing.T) {
	t.Run("no completions", func(t *testing.T) {
		tr, _ := newTracker(10)
		assert.Equal(t, "N/A", tr.ETA())
	})

	t.Run("all done", func(t *testing.T) {
		tr, _ := newTracker(2)
		tr.MarkDone(50, slog.LevelInfo)
		tr.MarkDone(50, slog.LevelInfo)
		assert.Equal(t, "0s", tr.ETA())
	})

	t.Run("seconds", func(t *testing.T) {
		tr, _ := newTracker(4)
		tr.MarkDone(1000, slog.LevelInfo)
		tr.MarkDone(1000, slog.LevelInfo)
		// 2 remaining × 1000ms avg = 2s
		assert.Equal(t, "2s", tr.ETA())
	})

	t.Run("rounds up", func(t *testing.T) {
		tr, _ := newTracker(2)
		tr.MarkDone(1500, slog.LevelInfo)
		// 1 remaining × 1500ms avg = ceil(1.5s) = 2s
		assert.Equal(t, "2s", tr.ETA())
	})

	t.Run("minutes", func(t *testing.T) {
		tr, _ := newTracker(100)
		tr.MarkDone(60000, slog.LevelInfo)
		// 99 remaining × 60s avg = 5940s = 99m0s
		assert.Equal(t, "99m0s", tr.ETA())
	})
}

// S5: six jobs across three categories; the text export lists every
// category with count 2 and cumulative buckets.
func TestPrometheusShape(t *testing.T) {
	tr, _ := newTracker(6)
	tr.MarkDoneCategory("IO", 50, slog.LevelInfo)
	tr.MarkDoneCategory("IO", 70, slog.LevelInfo)
	tr.MarkDoneCategory("CPU", 150, slog.LevelInfo)
	tr.MarkDoneCategory("CPU", 200, slog.LevelInfo)
	tr.MarkDoneCategory("NET", 90, slog.LevelInfo)
	tr.MarkDoneCategory("NET", 120, slog.LevelInfo)

	text, err := tr.ExportPrometheus()
	require.NoError(t, err)

	for _, want := range []string{
		`job_latency_bucket{category="IO",le="50"} 1`,
		`job_latency_bucket{category="IO",le="100"} 2`,
		`job_latency_bucket{category="IO",le="+Inf"} 2`,
		`job_latency_sum{category="IO"} 120`,
		`job_latency_count{category="IO"} 2`,
		`job_latency_bucket{category="CPU",le="100"} 0`,
		`job_latency_bucket{category="CPU",le="250"} 2`,
		`job_latency_count{category="CPU"} 2`,
		`job_latency_bucket{category="NET",le="250"} 2`,
		`job_latency_count{category="NET"} 2`,
		`job_total_done 6`,
		`job_total_expected 6`,
	} {
		assert.Contains(t, text, want)
	}

	// Cumulative property: bucket counts never decrease as le grows.
	assertCumulative(t, text, "IO")
	assertCumulative(t, text, "CPU")
	assertCumulative(t, text, "NET")
}

func assertCumulative(t *testing.T, text, category string) {
	t.Helper()
	prev := -1.0
	for _, le := range []string{"50", "100", "250", "500", "1000", "+Inf"} {
		needle := `job_latency_bucket{category="` + category + `",le="` + le + `"} `
		idx := strings.Index(text, needle)
		require.GreaterOrEqual(t, idx, 0, "missing bucket le=%s for %s", le, category)
		rest := text[idx+len(needle):]
		end := strings.IndexByte(rest, '\n')
		require.Greater(t, end, 0)
		v, err := strconv.ParseFloat(strings.TrimSpace(rest[:end]), 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, prev, "bucket le=%s for %s decreased", le, category)
		prev = v
	}
}

func TestSummaryJSONShape(t *testing.T) {
	tr, _ := newTracker(4)
	tr.MarkDoneCategory("IO", 50, slog.LevelInfo)
	tr.MarkDoneCategory("IO", 150, slog.LevelWarn)
	tr.MarkDoneCategory("CPU", 100, slog.LevelError)

	out, err := tr.ExportSummaryJSON()
	require.NoError(t, err)
	s := string(out)

	for _, want := range []string{
		`"total_jobs": 4`,
		`"completed_jobs": 3`,
		`"average_latency_ms": 100`,
		`"paused": false`,
		`"count": 2`,
		`"min_latency_ms": 50`,
		`"max_latency_ms": 150`,
		`"INFO": 1`,
		`"WARN": 1`,
		`"ERROR": 1`,
	} {
		assert.Contains(t, s, want)
	}
}

func TestExportJSONPerCategory(t *testing.T) {
	tr, _ := newTracker(2)
	tr.MarkDoneCategory("NET", 90, slog.LevelInfo)
	tr.MarkDoneCategory("NET", 110, slog.LevelInfo)

	out, err := tr.ExportJSON()
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, `"total_done": 2`)
	assert.Contains(t, s, `"total_expected": 2`)
	assert.Contains(t, s, `"job_count": 2`)
	assert.Contains(t, s, `"average_latency_ms": 100`)
	assert.Contains(t, s, `"min_latency_ms": 90`)
	assert.Contains(t, s, `"max_latency_ms": 110`)
}

func TestPauseSuppressesProgressLinesOnly(t *testing.T) {
	tr, rec := newTracker(10, progress.WithLogInterval(1))

	tr.Pause()
	tr.MarkDone(10, slog.LevelInfo)
	tr.MarkDone(10, slog.LevelInfo)
	assert.Empty(t, rec.all(), "paused tracker must not emit progress lines")
	assert.Equal(t, int64(2), tr.Done(), "metric collection continues while paused")

	tr.Resume()
	tr.MarkDone(10, slog.LevelInfo)
	lines := rec.all()
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[len(lines)-1], "Progress:")
}

func TestHighlightThreshold(t *testing.T) {
	tr, rec := newTracker(5, progress.WithHighlight(100), progress.WithLogInterval(100))
	tr.MarkDone(50, slog.LevelInfo)
	tr.MarkDone(250, slog.LevelInfo)

	var highlighted bool
	for _, l := range rec.all() {
		if strings.Contains(l, "high latency") {
			highlighted = true
		}
	}
	assert.True(t, highlighted, "a job above the threshold must be highlighted")
}
