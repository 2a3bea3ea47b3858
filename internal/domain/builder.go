package domain

import "context"

// Builder configures and creates jobs fluently.
type Builder struct {
	job Job
}

// NewJob starts a builder for a job with the given id.
func NewJob(id string) *Builder {
	b := &Builder{}
	b.job.ID = id
	b.job.Category = "default"
	return b
}

func (b *Builder) WithTask(fn TaskFunc) *Builder {
	b.job.Fn = fn
	return b
}

func (b *Builder) WithCategory(category string) *Builder {
	b.job.Category = category
	return b
}

func (b *Builder) WithPriority(p int) *Builder {
	b.job.Priority = p
	return b
}

// WithRetry sets the number of retries after the first attempt.
func (b *Builder) WithRetry(n int) *Builder {
	b.job.RetryCount = n
	return b
}

// WithTimeout sets the per-attempt deadline in milliseconds.
func (b *Builder) WithTimeout(ms int) *Builder {
	b.job.TimeoutMs = ms
	return b
}

func (b *Builder) OnStart(fn func()) *Builder {
	b.job.OnStart = fn
	return b
}

func (b *Builder) OnAttempt(fn func(attempt int, success bool, elapsedMs int64, errMsg string)) *Builder {
	b.job.OnAttempt = fn
	return b
}

func (b *Builder) OnError(fn func(errMsg string)) *Builder {
	b.job.OnError = fn
	return b
}

func (b *Builder) OnTimeout(fn func()) *Builder {
	b.job.OnTimeout = fn
	return b
}

func (b *Builder) OnComplete(fn func(success bool, attempts int, elapsedMs int64)) *Builder {
	b.job.OnComplete = fn
	return b
}

func (b *Builder) OnResult(fn func(Result)) *Builder {
	b.job.OnResult = fn
	return b
}

// Build returns the configured job. The builder must not be reused afterwards.
func (b *Builder) Build() *Job {
	if b.job.Category == "" {
		b.job.Category = "default"
	}
	if b.job.Fn == nil {
		b.job.Fn = func(context.Context) error { return nil }
	}
	return &b.job
}
