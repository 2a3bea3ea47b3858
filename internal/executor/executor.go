// Package executor runs a single job through its attempt loop, enforcing
// per-attempt timeouts and retry limits and emitting the job's lifecycle
// hooks in order: OnStart, (OnAttempt|OnError)*, OnTimeout?, OnComplete,
// OnResult.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/amrshaker/taskmill/internal/domain"
	"github.com/amrshaker/taskmill/pkg/retry"
)

// Executor drives job attempts. The zero value is usable; New applies
// options.
type Executor struct {
	logger     *slog.Logger
	retryDelay time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(e *Executor) { e.logger = l } }

// WithRetryDelay sets the backoff base between failed attempts.
// Zero (the default) retries immediately.
func WithRetryDelay(d time.Duration) Option { return func(e *Executor) { e.retryDelay = d } }

// New constructs an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scoped returns a copy of the executor that logs through l. The pool uses
// this to stamp records with the executing worker.
func (e *Executor) Scoped(l *slog.Logger) *Executor {
	ne := *e
	ne.logger = l
	return &ne
}

// Execute runs the job until it reaches a terminal state and returns the
// result record. The hook sequence and the status transition
// PENDING → RUNNING → {SUCCESS, FAILED, TIMEOUT} are guaranteed; OnResult
// fires exactly once.
func (e *Executor) Execute(ctx context.Context, job *domain.Job) domain.Result {
	ctx, span := otel.Tracer("executor").Start(ctx, "executor.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.category", job.Category),
	)

	result := domain.Result{
		JobID:     job.ID,
		Category:  job.Category,
		StartTime: time.Now().UTC(),
	}

	job.SetStatus(domain.StatusRunning)
	if job.OnStart != nil {
		job.OnStart()
	}

	var (
		attempts    int
		lastErrMsg  string
		lastElapsed int64
		timedOut    bool
	)

	overallStart := time.Now()
	runErr := retry.Do(ctx, retry.Config{
		MaxAttempts: job.RetryCount + 1,
		BaseDelay:   e.retryDelay,
	}, func() error {
		attempts++
		attemptStart := time.Now()
		err, expired := e.runAttempt(ctx, job)
		elapsed := time.Since(attemptStart).Milliseconds()

		// A slow success still blows the attempt budget.
		if err == nil && job.TimeoutMs > 0 && elapsed > int64(job.TimeoutMs) {
			err = fmt.Errorf("timeout after %dms", job.TimeoutMs)
			expired = true
		}

		success := err == nil
		attemptMsg := ""
		if err != nil {
			lastErrMsg = err.Error()
			if lastErrMsg == "" {
				lastErrMsg = "unknown error"
			}
			attemptMsg = lastErrMsg
		}
		lastElapsed = elapsed

		if job.OnAttempt != nil {
			job.OnAttempt(attempts, success, elapsed, attemptMsg)
		}
		if err != nil && !expired && job.OnError != nil {
			job.OnError(lastErrMsg)
		}

		if expired {
			timedOut = true
			return retry.Permanent(err)
		}
		return err
	})

	totalElapsed := time.Since(overallStart).Milliseconds()

	var status domain.Status
	switch {
	case runErr == nil:
		status = domain.StatusSuccess
		job.SetStatus(status)
		if job.OnComplete != nil {
			job.OnComplete(true, attempts, lastElapsed)
		}
	case timedOut:
		status = domain.StatusTimeout
		job.SetStatus(status)
		if job.OnTimeout != nil {
			job.OnTimeout()
		}
		if job.OnComplete != nil {
			job.OnComplete(false, attempts, lastElapsed)
		}
	default:
		status = domain.StatusFailed
		job.SetStatus(status)
		if job.OnComplete != nil {
			job.OnComplete(false, attempts, totalElapsed)
		}
	}

	result.Status = status
	result.Success = runErr == nil
	result.Attempts = attempts
	result.DurationMs = totalElapsed
	result.EndTime = time.Now().UTC()
	if runErr != nil {
		result.ErrorMessage = lastErrMsg
		span.RecordError(runErr)
		span.SetStatus(codes.Error, status.String())
	}
	span.SetAttributes(attribute.Int("job.attempts", attempts))

	e.logResult(job, status, result)

	if job.OnResult != nil {
		job.OnResult(result)
	}
	return result
}

func (e *Executor) logResult(job *domain.Job, status domain.Status, result domain.Result) {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With(
		slog.String("status", status.String()),
		slog.Int64("latency_ms", result.DurationMs),
		slog.Int("attempt", result.Attempts),
	)
	switch status {
	case domain.StatusSuccess:
		log.Info("job " + job.ID)
	case domain.StatusTimeout:
		log.Warn("job "+job.ID, slog.String("error", result.ErrorMessage))
	default:
		log.Error("job "+job.ID, slog.String("error", result.ErrorMessage))
	}
}

// runAttempt invokes the task body once. With a timeout configured the body
// runs on its own goroutine; on expiry that goroutine is abandoned and keeps
// running until the body returns — tasks that can overrun are expected to
// watch ctx.
func (e *Executor) runAttempt(ctx context.Context, job *domain.Job) (err error, expired bool) {
	if job.TimeoutMs <= 0 {
		return e.invoke(ctx, job.Fn), false
	}

	d := time.Duration(job.TimeoutMs) * time.Millisecond
	attemptCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.invoke(attemptCtx, job.Fn)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case err := <-done:
		// A cooperative task that bailed out on the attempt deadline is a
		// timeout, not a retryable failure.
		if err != nil && errors.Is(err, context.DeadlineExceeded) && attemptCtx.Err() != nil {
			return err, true
		}
		return err, false
	case <-timer.C:
		return fmt.Errorf("timeout after %dms", job.TimeoutMs), true
	}
}

// invoke calls the task body, converting a panic into an error so a bad job
// cannot take down its worker.
func (e *Executor) invoke(ctx context.Context, fn domain.TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}
