// Package graph executes a DAG of tasks on a work-stealing pool. Nodes are
// released into the pool as soon as every dependency has finished; a cycle
// is rejected before anything runs.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/amrshaker/taskmill/internal/domain"
	"github.com/amrshaker/taskmill/internal/pool"
)

// NodeState tracks a node through its lifecycle.
type NodeState int32

const (
	NodePending NodeState = iota
	NodeReady
	NodeRunning
	NodeDone
)

func (s NodeState) String() string {
	switch s {
	case NodePending:
		return "PENDING"
	case NodeReady:
		return "READY"
	case NodeRunning:
		return "RUNNING"
	case NodeDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// Node is one unit of work in the graph.
type Node struct {
	id string
	fn domain.TaskFunc

	deps       []*Node
	dependents []*Node
	remaining  atomic.Int32
	state      atomic.Int32

	done   chan struct{}
	err    error // written once, before done closes
	onDone func()

	g *Graph
}

// NewNode creates a node. fn may be nil for a pure synchronization point.
func NewNode(id string, fn domain.TaskFunc) *Node {
	return &Node{id: id, fn: fn, done: make(chan struct{})}
}

// ID returns the node identifier.
func (n *Node) ID() string { return n.id }

// State returns the node's current lifecycle state.
func (n *Node) State() NodeState { return NodeState(n.state.Load()) }

// DependsOn declares that n runs only after each of the given nodes is done.
// Fails once the owning graph has started executing.
func (n *Node) DependsOn(others ...*Node) error {
	if n.g != nil && n.g.executing.Load() {
		return &domain.GraphStateError{Op: "add dependency"}
	}
	n.deps = append(n.deps, others...)
	return nil
}

// OnDone registers a continuation resumed on the worker goroutine right
// after the node completes.
func (n *Node) OnDone(fn func()) { n.onDone = fn }

// Done returns a channel closed when the node completes.
func (n *Node) Done() <-chan struct{} { return n.done }

// Err returns the node's execution error. Valid only after Done is closed.
func (n *Node) Err() error { return n.err }

// Graph owns a set of nodes and the pool that runs them.
type Graph struct {
	pool   *pool.Pool
	logger *slog.Logger

	mu    sync.Mutex
	nodes []*Node

	executing atomic.Bool
	ownsPool  bool
	ctx       context.Context
	wg        sync.WaitGroup

	errMu sync.Mutex
	errs  []error
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(g *Graph) { g.logger = l } }

// WithPool runs the graph on an existing pool instead of owning one.
func WithPool(p *pool.Pool) Option { return func(g *Graph) { g.pool = p } }

// New creates a graph backed by a pool with the given number of workers
// (ignored when WithPool supplies one).
func New(threads int, opts ...Option) (*Graph, error) {
	g := &Graph{}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.pool == nil {
		p, err := pool.New(threads, pool.WithLogger(g.logger))
		if err != nil {
			return nil, fmt.Errorf("graph pool: %w", err)
		}
		g.pool = p
		g.ownsPool = true
	}
	return g, nil
}

// AddNode registers a node. Fails once execution has begun.
func (g *Graph) AddNode(n *Node) error {
	if g.executing.Load() {
		return &domain.GraphStateError{Op: "add node"}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	n.g = g
	g.nodes = append(g.nodes, n)
	return nil
}

// Execute checks the graph for cycles and releases every dependency-free
// node into the pool. It returns immediately after seeding; WaitAll blocks
// for completion. With a cycle present no node runs and CycleError reports a
// representative path.
func (g *Graph) Execute(ctx context.Context) error {
	if !g.executing.CompareAndSwap(false, true) {
		return &domain.GraphStateError{Op: "execute"}
	}

	if path := g.findCycle(); path != nil {
		g.executing.Store(false)
		return &domain.CycleError{Path: path}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	g.ctx = ctx
	g.wg.Add(len(g.nodes))

	// Seed counters first so completions racing ahead of the seeding loop
	// observe consistent state.
	for _, n := range g.nodes {
		n.remaining.Store(int32(len(n.deps)))
		for _, dep := range n.deps {
			dep.dependents = append(dep.dependents, n)
		}
	}
	for _, n := range g.nodes {
		if n.remaining.Load() == 0 {
			g.release(n)
		}
	}
	return nil
}

// WaitAll blocks until every node is done and returns the nodes' errors
// joined, nil when all succeeded.
func (g *Graph) WaitAll() error {
	g.wg.Wait()
	g.errMu.Lock()
	defer g.errMu.Unlock()
	return errors.Join(g.errs...)
}

// Close stops the owned pool. Call after WaitAll.
func (g *Graph) Close() {
	if g.ownsPool {
		g.pool.Stop()
	}
}

// release moves a node to READY and hands it to the pool.
func (g *Graph) release(n *Node) {
	if !n.state.CompareAndSwap(int32(NodePending), int32(NodeReady)) {
		return
	}
	job := domain.NewJob(n.id).
		WithCategory("graph").
		WithTask(func(context.Context) error {
			g.runNode(g.ctx, n)
			return nil
		}).
		Build()
	if err := g.pool.Dispatch(job); err != nil {
		// Pool closed under us; record and unblock waiters.
		g.finishNode(n, fmt.Errorf("dispatch node %s: %w", n.id, err))
	}
}

func (g *Graph) runNode(ctx context.Context, n *Node) {
	n.state.Store(int32(NodeRunning))
	var err error
	if n.fn != nil {
		err = n.fn(ctx)
	}
	if err != nil {
		err = fmt.Errorf("node %s: %w", n.id, err)
		g.logger.Error("graph node failed",
			slog.String("node", n.id), slog.String("error", err.Error()))
	}
	g.finishNode(n, err)
}

// finishNode records the outcome, signals waiters, resumes the
// continuation, and unblocks dependents. A failed node still releases its
// dependents; the error surfaces through WaitAll and Node.Err.
func (g *Graph) finishNode(n *Node, err error) {
	n.err = err
	n.state.Store(int32(NodeDone))
	close(n.done)

	if err != nil {
		g.errMu.Lock()
		g.errs = append(g.errs, err)
		g.errMu.Unlock()
	}

	if n.onDone != nil {
		n.onDone()
	}

	for _, d := range n.dependents {
		if d.remaining.Add(-1) == 0 {
			g.release(d)
		}
	}
	g.wg.Done()
}

// findCycle runs a three-color depth-first search over the dependency
// edges. It returns a representative cycle path (first node repeated at the
// end), or nil when the graph is acyclic.
func (g *Graph) findCycle() []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS stack
		black = 2 // fully explored
	)
	colors := make(map[*Node]int, len(g.nodes))

	var stack []*Node
	var visit func(n *Node) []string
	visit = func(n *Node) []string {
		colors[n] = gray
		stack = append(stack, n)
		for _, dep := range n.deps {
			switch colors[dep] {
			case gray:
				// Found it: slice the stack from dep's position.
				path := []string{}
				for i := len(stack) - 1; i >= 0; i-- {
					path = append([]string{stack[i].id}, path...)
					if stack[i] == dep {
						break
					}
				}
				return append(path, dep.id)
			case white:
				if path := visit(dep); path != nil {
					return path
				}
			}
		}
		stack = stack[:len(stack)-1]
		colors[n] = black
		return nil
	}

	for _, n := range g.nodes {
		if colors[n] == white {
			if path := visit(n); path != nil {
				return path
			}
		}
	}
	return nil
}
