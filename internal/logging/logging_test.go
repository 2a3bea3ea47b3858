package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amrshaker/taskmill/internal/logging"
)

type fileEntry struct {
	Timestamp string `json:"timestamp"`
	ThreadID  string `json:"thread_id"`
	Level     string `json:"level"`
	Event     string `json:"event"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Attempt   int    `json:"attempt"`
}

// readEntries parses the JSON records from the log file, skipping the plain
// banner/Line output.
func readEntries(t *testing.T, path string) []fileEntry {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []fileEntry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var e fileEntry
		require.NoError(t, json.Unmarshal([]byte(line), &e), "bad record line: %s", line)
		entries = append(entries, e)
	}
	return entries
}

func newLogger(t *testing.T, opts ...logging.Option) (*logging.Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	opts = append(opts, logging.WithConsole(&bytes.Buffer{}))
	lg, err := logging.New(path, opts...)
	require.NoError(t, err)
	return lg, path
}

func TestRecordsReachFileOnClose(t *testing.T) {
	lg, path := newLogger(t)
	logger := lg.Slog()

	for i := 0; i < 120; i++ {
		logger.Info("evt",
			slog.String("status", "SUCCESS"),
			slog.Int64("latency_ms", int64(i)),
			slog.Int("attempt", 1),
		)
	}
	require.NoError(t, lg.Close())

	entries := readEntries(t, path)
	assert.Len(t, entries, 120, "every record queued before Close must reach the file")
}

func TestRecordShape(t *testing.T) {
	lg, path := newLogger(t)
	logger := lg.Slog().With(slog.Int(logging.KeyWorker, 2))

	logger.Warn("job j-42",
		slog.String("status", "TIMEOUT"),
		slog.Int64("latency_ms", 105),
		slog.Int("attempt", 3),
	)
	require.NoError(t, lg.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	e := entries[0]

	assert.Equal(t, "worker#3", e.ThreadID, "worker 2 is labelled worker#3 (dense index starts at 1)")
	assert.Equal(t, "WARN", e.Level)
	assert.Equal(t, "job j-42", e.Event)
	assert.Equal(t, "TIMEOUT", e.Status)
	assert.Equal(t, int64(105), e.LatencyMs)
	assert.Equal(t, 3, e.Attempt)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, e.Timestamp)
}

func TestMainLabelWithoutWorker(t *testing.T) {
	lg, path := newLogger(t)
	lg.Slog().Info("startup", slog.String("status", "OK"))
	require.NoError(t, lg.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "main", entries[0].ThreadID)
}

func TestUnknownAttrsFoldIntoEvent(t *testing.T) {
	lg, path := newLogger(t)
	lg.Slog().Info("run starting", slog.Int("workers", 4), slog.String("status", "OK"))
	require.NoError(t, lg.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Event, "run starting")
	assert.Contains(t, entries[0].Event, "workers=4")
}

func TestLevelFiltering(t *testing.T) {
	lg, path := newLogger(t, logging.WithLevel(slog.LevelWarn))
	logger := lg.Slog()
	logger.Debug("too quiet")
	logger.Info("still too quiet")
	logger.Error("loud", slog.String("status", "FAILED"))
	require.NoError(t, lg.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "ERROR", entries[0].Level)
}

func TestLineWritesBothSinksSynchronously(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "test.log")
	lg, err := logging.New(path, logging.WithConsole(&console))
	require.NoError(t, err)

	lg.Line("Progress: 50% | ETA: 2s | Avg latency: 100ms")

	// No Close needed: Line is synchronous.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Progress: 50%")
	assert.Contains(t, console.String(), "Progress: 50%")

	require.NoError(t, lg.Close())
}

func TestStartBanner(t *testing.T) {
	lg, path := newLogger(t)
	require.NoError(t, lg.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "=== job run started")
}

func TestOpenFailureSurfaces(t *testing.T) {
	_, err := logging.New(filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	require.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	lg, _ := newLogger(t)
	require.NoError(t, lg.Close())
	require.NoError(t, lg.Close())
}

func TestJSONEscaping(t *testing.T) {
	lg, path := newLogger(t)
	lg.Slog().Info("weird \"quoted\"\nmessage\t", slog.String("status", "OK"))
	require.NoError(t, lg.Close())

	// The line must still parse as one JSON object per line.
	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Event, `weird "quoted"`)
}
