// Package logging implements the asynchronous structured logger backing the
// scheduler. Producers hand records to a single consumer goroutine which
// batches them, renders one JSON object per line, and writes to the log file
// and (optionally) to the console. Components log through the standard
// log/slog API; Slog returns a *slog.Logger backed by this package's handler.
package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf16"
)

const (
	// batchSize bounds how many records the consumer drains per write.
	batchSize = 50

	timeLayout = "2006-01-02 15:04:05"
)

type record struct {
	ts        time.Time
	worker    int // -1 = not a pool worker
	level     slog.Level
	event     string
	status    string
	latencyMs int64
	attempt   int
}

// entry is the on-disk shape of one record.
type entry struct {
	Timestamp string `json:"timestamp"`
	ThreadID  string `json:"thread_id"`
	Level     string `json:"level"`
	Event     string `json:"event"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Attempt   int    `json:"attempt"`
}

// Logger owns the log file, the console sink and the consumer goroutine.
type Logger struct {
	file *os.File
	fw   *bufio.Writer

	fileMu    sync.Mutex
	consoleMu sync.Mutex
	console   io.Writer
	echo      bool

	level slog.Level

	records chan record
	stopCh  chan struct{}
	doneCh  chan struct{}

	appendMode bool
	queueSize  int

	closed    atomic.Bool
	closeOnce sync.Once
	errOnce   sync.Once
}

// Option configures a Logger.
type Option func(*Logger)

// WithAppend opens the log file in append mode instead of truncating.
func WithAppend() Option { return func(l *Logger) { l.appendMode = true } }

// WithConsoleEcho controls whether async records are echoed to the console
// in addition to the file. Synchronous Line output always reaches the console.
func WithConsoleEcho(on bool) Option { return func(l *Logger) { l.echo = on } }

// WithLevel sets the minimum level accepted by the slog handler.
func WithLevel(level slog.Level) Option { return func(l *Logger) { l.level = level } }

// WithConsole redirects the console sink, mainly for tests.
func WithConsole(w io.Writer) Option { return func(l *Logger) { l.console = w } }

// WithQueueSize sets the record queue capacity.
func WithQueueSize(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.queueSize = n
		}
	}
}

// New opens the log file, starts the consumer goroutine, and returns once the
// consumer is ready, after writing the start banner.
func New(path string, opts ...Option) (*Logger, error) {
	l := &Logger{
		console:   os.Stdout,
		level:     slog.LevelInfo,
		queueSize: 1024,
	}
	for _, opt := range opts {
		opt(l)
	}

	mode := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if l.appendMode {
		mode = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, mode, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l.file = f
	l.fw = bufio.NewWriter(f)

	l.records = make(chan record, l.queueSize)
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})

	ready := make(chan struct{})
	go l.consume(ready)
	<-ready

	l.Line("=== job run started")
	return l, nil
}

// Slog returns a slog.Logger backed by this Logger.
func (l *Logger) Slog() *slog.Logger {
	return slog.New(&handler{l: l, worker: -1})
}

// Line writes a plain timestamped line synchronously to both console and
// file. Used for progress and UX output that must not lag behind the queue.
func (l *Logger) Line(msg string) {
	full := "[" + time.Now().Format(timeLayout) + "]  ===  " + msg

	l.consoleMu.Lock()
	fmt.Fprintln(l.console, full)
	l.consoleMu.Unlock()

	l.fileMu.Lock()
	defer l.fileMu.Unlock()
	if l.fw == nil {
		return
	}
	if _, err := l.fw.WriteString(full + "\n"); err != nil {
		l.reportWriteError(err)
		return
	}
	if err := l.fw.Flush(); err != nil {
		l.reportWriteError(err)
	}
}

// Close stops the consumer, drains every queued record to the sinks, flushes,
// and closes the file. Safe to call more than once.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.stopCh)
		<-l.doneCh

		l.fileMu.Lock()
		defer l.fileMu.Unlock()
		if ferr := l.fw.Flush(); ferr != nil {
			err = ferr
		}
		if cerr := l.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		l.fw = nil
	})
	return err
}

func (l *Logger) enqueue(rec record) {
	if l.closed.Load() {
		return
	}
	select {
	case l.records <- rec:
	case <-l.stopCh:
	}
}

func (l *Logger) consume(ready chan<- struct{}) {
	defer close(l.doneCh)
	close(ready)

	batch := make([]record, 0, batchSize)
	for {
		select {
		case rec := <-l.records:
			batch = append(batch[:0], rec)
			batch = l.fill(batch)
			l.writeBatch(batch)

		case <-l.stopCh:
			// Drain whatever producers managed to queue, then exit.
			batch = batch[:0]
			for {
				select {
				case r := <-l.records:
					batch = append(batch, r)
					if len(batch) == batchSize {
						l.writeBatch(batch)
						batch = batch[:0]
					}
				default:
					if len(batch) > 0 {
						l.writeBatch(batch)
					}
					return
				}
			}
		}
	}
}

// fill drains queued records without blocking, up to the batch limit.
func (l *Logger) fill(batch []record) []record {
	for len(batch) < batchSize {
		select {
		case r := <-l.records:
			batch = append(batch, r)
		default:
			return batch
		}
	}
	return batch
}

func (l *Logger) writeBatch(batch []record) {
	lines := make([][]byte, 0, len(batch))
	for _, rec := range batch {
		label := "main"
		if rec.worker >= 0 {
			label = fmt.Sprintf("worker#%d", rec.worker+1)
		}
		b, err := json.Marshal(entry{
			Timestamp: rec.ts.Format(timeLayout),
			ThreadID:  label,
			Level:     rec.level.String(),
			Event:     rec.event,
			Status:    rec.status,
			LatencyMs: rec.latencyMs,
			Attempt:   rec.attempt,
		})
		if err != nil {
			continue
		}
		// Escape everything above 0x7E as \uXXXX so each line is pure ASCII.
		var esc bytes.Buffer
		for _, r := range string(b) {
			if r <= 0x7E {
				esc.WriteRune(r)
			} else if r > 0xFFFF {
				r1, r2 := utf16.EncodeRune(r)
				fmt.Fprintf(&esc, `\u%04x\u%04x`, r1, r2)
			} else {
				fmt.Fprintf(&esc, `\u%04x`, r)
			}
		}
		lines = append(lines, esc.Bytes())
	}

	l.fileMu.Lock()
	if l.fw != nil {
		for _, b := range lines {
			if _, err := l.fw.Write(append(b, '\n')); err != nil {
				l.reportWriteError(err)
				break
			}
		}
		if err := l.fw.Flush(); err != nil {
			l.reportWriteError(err)
		}
	}
	l.fileMu.Unlock()

	if l.echo {
		l.consoleMu.Lock()
		for _, b := range lines {
			fmt.Fprintln(l.console, string(b))
		}
		l.consoleMu.Unlock()
	}
}

// reportWriteError surfaces the first file write failure on stderr; the
// console sink keeps running.
func (l *Logger) reportWriteError(err error) {
	l.errOnce.Do(func() {
		fmt.Fprintf(os.Stderr, "logging: file write failed, console only: %v\n", err)
	})
}
