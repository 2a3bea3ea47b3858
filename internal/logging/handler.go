package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Attribute keys the handler maps onto dedicated record fields. The worker
// key labels the record's thread_id as worker#<n+1>; records without it are
// labelled "main".
const (
	KeyWorker  = "worker"
	KeyStatus  = "status"
	KeyLatency = "latency_ms"
	KeyAttempt = "attempt"
)

// handler adapts the async Logger to the slog.Handler interface.
type handler struct {
	l *Logger

	worker    int
	status    string
	latencyMs int64
	attempt   int
	extras    []string
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.l.level
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	rec := record{
		ts:        r.Time,
		worker:    h.worker,
		level:     r.Level,
		status:    h.status,
		latencyMs: h.latencyMs,
		attempt:   h.attempt,
	}
	if rec.ts.IsZero() {
		rec.ts = time.Now()
	}

	// Copy the bound extras so concurrent Handle calls never share a
	// backing array.
	extras := make([]string, len(h.extras), len(h.extras)+4)
	copy(extras, h.extras)
	r.Attrs(func(a slog.Attr) bool {
		extras = h.apply(&rec, a, extras)
		return true
	})

	rec.event = r.Message
	if len(extras) > 0 {
		rec.event += " " + strings.Join(extras, " ")
	}

	h.l.enqueue(rec)
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	rec := record{
		worker:    nh.worker,
		status:    nh.status,
		latencyMs: nh.latencyMs,
		attempt:   nh.attempt,
	}
	for _, a := range attrs {
		nh.extras = nh.apply(&rec, a, nh.extras)
	}
	nh.worker = rec.worker
	nh.status = rec.status
	nh.latencyMs = rec.latencyMs
	nh.attempt = rec.attempt
	return nh
}

// WithGroup is accepted but groups are flattened: the record format is a
// fixed single-level object.
func (h *handler) WithGroup(string) slog.Handler {
	return h.clone()
}

func (h *handler) clone() *handler {
	nh := *h
	nh.extras = append([]string(nil), h.extras...)
	return &nh
}

// apply routes one attribute either into a dedicated record field or into
// the extras rendered after the event text.
func (h *handler) apply(rec *record, a slog.Attr, extras []string) []string {
	switch a.Key {
	case KeyWorker:
		rec.worker = int(a.Value.Int64())
	case KeyStatus:
		rec.status = a.Value.String()
	case KeyLatency:
		rec.latencyMs = a.Value.Int64()
	case KeyAttempt:
		rec.attempt = int(a.Value.Int64())
	default:
		extras = append(extras, fmt.Sprintf("%s=%v", a.Key, a.Value.Any()))
	}
	return extras
}
