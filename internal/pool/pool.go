// Package pool implements the work-stealing worker pool. Each worker owns
// one deque: it pops its own bottom (LIFO) and, when empty, steals from a
// random peer's top (FIFO). Jobs are executed through the executor; a
// panicking job never takes its worker down.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amrshaker/taskmill/internal/deque"
	"github.com/amrshaker/taskmill/internal/domain"
	"github.com/amrshaker/taskmill/internal/executor"
	"github.com/amrshaker/taskmill/internal/logging"
	"github.com/amrshaker/taskmill/pkg/telemetry"
)

// idleBackoff is how long a worker sleeps after finding both its own deque
// and every peer empty.
const idleBackoff = 10 * time.Millisecond

// ResultFunc receives every terminal job result, on the worker goroutine
// that executed the job.
type ResultFunc func(domain.Result)

// Pool is a fixed-size set of workers with per-worker deques.
type Pool struct {
	deques  []*deque.Deque[*domain.Job]
	exec    *executor.Executor
	logger  *slog.Logger
	metrics *telemetry.PoolMetrics
	onDone  ResultFunc

	baseCtx context.Context
	backoff time.Duration

	next    atomic.Uint64
	stopped atomic.Bool

	workers sync.WaitGroup // worker goroutines
	jobs    sync.WaitGroup // submitted, not yet reported jobs
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(p *Pool) { p.logger = l } }

// WithExecutor replaces the default executor.
func WithExecutor(e *executor.Executor) Option { return func(p *Pool) { p.exec = e } }

// WithMetrics attaches Prometheus pool instruments.
func WithMetrics(m *telemetry.PoolMetrics) Option { return func(p *Pool) { p.metrics = m } }

// WithResultFunc registers a callback invoked with every job result.
func WithResultFunc(fn ResultFunc) Option { return func(p *Pool) { p.onDone = fn } }

// WithContext sets the base context handed to job bodies.
func WithContext(ctx context.Context) Option { return func(p *Pool) { p.baseCtx = ctx } }

// WithBackoff overrides the idle backoff, mainly for tests.
func WithBackoff(d time.Duration) Option { return func(p *Pool) { p.backoff = d } }

// New creates n deques and starts n workers. Worker i owns deque i and may
// steal from every peer. Construction fails for n < 1 and leaves no partial
// state.
func New(n int, opts ...Option) (*Pool, error) {
	if n < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", n)
	}

	p := &Pool{
		deques:  make([]*deque.Deque[*domain.Job], n),
		backoff: idleBackoff,
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.exec == nil {
		p.exec = executor.New(executor.WithLogger(p.logger))
	}

	for i := range p.deques {
		p.deques[i] = deque.New[*domain.Job]()
	}
	p.workers.Add(n)
	for i := 0; i < n; i++ {
		go p.run(i)
	}
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.deques) }

// Submit pushes a job onto the given worker's deque. It fails with
// InvalidWorkerError for an out-of-range index and PoolClosedError after
// Stop.
func (p *Pool) Submit(worker int, job *domain.Job) error {
	if worker < 0 || worker >= len(p.deques) {
		return &domain.InvalidWorkerError{Index: worker, Count: len(p.deques)}
	}
	if p.stopped.Load() {
		return &domain.PoolClosedError{}
	}
	p.jobs.Add(1)
	p.deques[worker].PushBottom(job)
	return nil
}

// Dispatch submits a job round-robin across workers.
func (p *Pool) Dispatch(job *domain.Job) error {
	idx := int((p.next.Add(1) - 1) % uint64(len(p.deques)))
	return p.Submit(idx, job)
}

// Wait blocks until every submitted job has executed and been reported.
func (p *Pool) Wait() {
	p.jobs.Wait()
}

// Stop asks the workers to finish. Each worker drains its own deque before
// exiting; jobs already popped complete and are callback-reported. Stop is
// idempotent and returns after all workers have exited.
func (p *Pool) Stop() {
	p.stopped.Store(true)
	p.workers.Wait()
}

func (p *Pool) run(id int) {
	defer p.workers.Done()
	log := p.logger.With(slog.Int(logging.KeyWorker, id))
	exec := p.exec.Scoped(log)

	for {
		job, ok := p.deques[id].PopBottom()
		if !ok {
			job, ok = p.steal(id)
		}
		if ok {
			p.execute(id, log, exec, job)
			continue
		}

		// Nothing local, nothing stolen. Exit once stopped; the local
		// deque is already drained at this point.
		if p.stopped.Load() && p.deques[id].Empty() {
			return
		}
		time.Sleep(p.backoff)
	}
}

// steal visits the peers in a fresh random order and takes the oldest job
// from the first non-empty deque.
func (p *Pool) steal(self int) (*domain.Job, bool) {
	for _, victim := range rand.Perm(len(p.deques)) {
		if victim == self {
			continue
		}
		if job, ok := p.deques[victim].StealTop(); ok {
			if p.metrics != nil {
				p.metrics.Steals.WithLabelValues(workerLabel(self)).Inc()
			}
			return job, true
		}
	}
	return nil, false
}

func (p *Pool) execute(id int, log *slog.Logger, exec *executor.Executor, job *domain.Job) {
	defer p.jobs.Done()
	defer func() {
		// The executor already recovers panics from the task body; this
		// guard covers panics escaping user hooks or the result callback.
		if r := recover(); r != nil {
			log.Error("job escaped executor", slog.String("job_id", job.ID), slog.Any("panic", r))
		}
	}()

	if p.metrics != nil {
		p.metrics.JobsInFlight.Inc()
		defer p.metrics.JobsInFlight.Dec()
	}

	result := exec.Execute(p.baseCtx, job)

	if p.metrics != nil {
		p.metrics.JobsExecuted.WithLabelValues(workerLabel(id)).Inc()
	}
	if p.onDone != nil {
		p.onDone(result)
	}
}

func workerLabel(id int) string {
	return strconv.Itoa(id)
}
