// Package workload supplies the demo jobs driven by the run command:
// random-latency generators across a few categories plus a handful of fixed
// system jobs.
package workload

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/amrshaker/taskmill/internal/domain"
)

// Generator builds jobs of one kind.
type Generator interface {
	Kind() string
	New(id string) *domain.Job
}

// Registry maps job kinds to their generators.
type Registry struct {
	mu    sync.RWMutex
	gens  map[string]Generator
	kinds []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{gens: make(map[string]Generator)}
}

// Register adds a generator. Safe to call concurrently.
func (r *Registry) Register(g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gens[g.Kind()]; !ok {
		r.kinds = append(r.kinds, g.Kind())
	}
	r.gens[g.Kind()] = g
}

// Get returns the generator for the given kind.
func (r *Registry) Get(kind string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gens[kind]
	if !ok {
		return nil, fmt.Errorf("no generator registered for kind %q", kind)
	}
	return g, nil
}

// Kinds lists registered kinds in registration order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.kinds...)
}

// sleepGenerator simulates I/O- or CPU-bound work by sleeping a random
// duration within its band.
type sleepGenerator struct {
	kind     string
	category string
	minMs    int
	maxMs    int
	timeout  int
	retries  int
}

func (g sleepGenerator) Kind() string { return g.kind }

func (g sleepGenerator) New(id string) *domain.Job {
	d := time.Duration(g.minMs+rand.N(g.maxMs-g.minMs+1)) * time.Millisecond
	return domain.NewJob(id).
		WithCategory(g.category).
		WithRetry(g.retries).
		WithTimeout(g.timeout).
		WithTask(func(ctx context.Context) error {
			select {
			case <-time.After(d):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}).
		Build()
}

// flakyGenerator fails a fixed number of attempts before succeeding,
// exercising the retry path.
type flakyGenerator struct {
	kind     string
	category string
	failures int
	sleepMs  int
}

func (g flakyGenerator) Kind() string { return g.kind }

func (g flakyGenerator) New(id string) *domain.Job {
	var attempts int
	return domain.NewJob(id).
		WithCategory(g.category).
		WithRetry(g.failures + 1).
		WithTask(func(ctx context.Context) error {
			time.Sleep(time.Duration(g.sleepMs) * time.Millisecond)
			attempts++
			if attempts <= g.failures {
				return fmt.Errorf("transient failure on attempt %d", attempts)
			}
			return nil
		}).
		Build()
}

// DefaultRegistry returns the generators used by the run command.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(sleepGenerator{kind: "io", category: "IO", minMs: 20, maxMs: 120, timeout: 500})
	r.Register(sleepGenerator{kind: "cpu", category: "CPU", minMs: 50, maxMs: 250, timeout: 1000})
	r.Register(sleepGenerator{kind: "net", category: "NET", minMs: 30, maxMs: 200, timeout: 800, retries: 2})
	r.Register(flakyGenerator{kind: "flaky", category: "NET", failures: 2, sleepMs: 15})
	return r
}

// SystemJobs returns the fixed maintenance jobs included in every run.
func SystemJobs() []*domain.Job {
	initDB := domain.NewJob("init-db").
		WithCategory("system").
		WithPriority(3).
		WithRetry(1).
		WithTimeout(5000).
		WithTask(func(ctx context.Context) error {
			time.Sleep(40 * time.Millisecond)
			return nil
		}).
		Build()

	genReport := domain.NewJob("gen-report").
		WithCategory("analytics").
		WithPriority(2).
		WithTask(func(ctx context.Context) error {
			time.Sleep(80 * time.Millisecond)
			return nil
		}).
		Build()

	cleanupTemp := domain.NewJob("cleanup-temp").
		WithCategory("maintenance").
		WithTimeout(2000).
		WithTask(func(ctx context.Context) error {
			time.Sleep(25 * time.Millisecond)
			return nil
		}).
		Build()

	var fetchTries int
	fetchAPI := domain.NewJob("fetch-api").
		WithCategory("network").
		WithRetry(3).
		WithTimeout(3000).
		WithTask(func(ctx context.Context) error {
			fetchTries++
			if fetchTries == 1 {
				return errors.New("connection reset")
			}
			time.Sleep(60 * time.Millisecond)
			return nil
		}).
		Build()

	return []*domain.Job{initDB, genReport, cleanupTemp, fetchAPI}
}
