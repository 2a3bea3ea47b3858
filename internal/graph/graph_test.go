package graph_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amrshaker/taskmill/internal/domain"
	"github.com/amrshaker/taskmill/internal/graph"
)

// orderLog records completion order across worker goroutines.
type orderLog struct {
	mu    sync.Mutex
	order []string
}

func (o *orderLog) add(id string) {
	o.mu.Lock()
	o.order = append(o.order, id)
	o.mu.Unlock()
}

func (o *orderLog) index(id string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, v := range o.order {
		if v == id {
			return i
		}
	}
	return -1
}

func node(log *orderLog, id string, d time.Duration) *graph.Node {
	return graph.NewNode(id, func(ctx context.Context) error {
		time.Sleep(d)
		log.add(id)
		return nil
	})
}

// Diamond: A → {B, C} → D. D runs strictly after B and C; every node runs
// exactly once.
func TestDiamondOrdering(t *testing.T) {
	log := &orderLog{}
	g, err := graph.New(4)
	require.NoError(t, err)
	defer g.Close()

	a := node(log, "A", 10*time.Millisecond)
	b := node(log, "B", 20*time.Millisecond)
	c := node(log, "C", 15*time.Millisecond)
	d := node(log, "D", 5*time.Millisecond)

	require.NoError(t, b.DependsOn(a))
	require.NoError(t, c.DependsOn(a))
	require.NoError(t, d.DependsOn(b, c))
	for _, n := range []*graph.Node{a, b, c, d} {
		require.NoError(t, g.AddNode(n))
	}

	require.NoError(t, g.Execute(context.Background()))
	require.NoError(t, g.WaitAll())

	require.Len(t, log.order, 4, "each node must run exactly once")
	assert.Greater(t, log.index("B"), log.index("A"))
	assert.Greater(t, log.index("C"), log.index("A"))
	assert.Greater(t, log.index("D"), log.index("B"))
	assert.Greater(t, log.index("D"), log.index("C"))

	for _, n := range []*graph.Node{a, b, c, d} {
		assert.Equal(t, graph.NodeDone, n.State())
		assert.NoError(t, n.Err())
	}
}

func TestCycleDetection(t *testing.T) {
	var ran atomic.Int64
	mk := func(id string) *graph.Node {
		return graph.NewNode(id, func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}

	g, err := graph.New(2)
	require.NoError(t, err)
	defer g.Close()

	a, b, c := mk("a"), mk("b"), mk("c")
	require.NoError(t, a.DependsOn(b))
	require.NoError(t, b.DependsOn(c))
	require.NoError(t, c.DependsOn(a))
	for _, n := range []*graph.Node{a, b, c} {
		require.NoError(t, g.AddNode(n))
	}

	err = g.Execute(context.Background())
	var cycle *domain.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.NotEmpty(t, cycle.Path, "the error should name a representative cycle")
	assert.Equal(t, int64(0), ran.Load(), "no node may run when a cycle exists")
}

func TestNodeFailureUnblocksDependentsAndSurfaces(t *testing.T) {
	log := &orderLog{}

	g, err := graph.New(2)
	require.NoError(t, err)
	defer g.Close()

	boom := graph.NewNode("boom", func(ctx context.Context) error {
		return errors.New("exploded")
	})
	after := node(log, "after", 0)
	require.NoError(t, after.DependsOn(boom))
	require.NoError(t, g.AddNode(boom))
	require.NoError(t, g.AddNode(after))

	require.NoError(t, g.Execute(context.Background()))
	err = g.WaitAll()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Error(t, boom.Err())
	assert.Equal(t, 0, log.index("after"), "a failed dependency still unblocks dependents")
}

func TestMutationAfterExecuteFails(t *testing.T) {
	g, err := graph.New(2)
	require.NoError(t, err)
	defer g.Close()

	a := graph.NewNode("a", nil)
	require.NoError(t, g.AddNode(a))
	require.NoError(t, g.Execute(context.Background()))
	require.NoError(t, g.WaitAll())

	var state *domain.GraphStateError
	b := graph.NewNode("b", nil)
	assert.ErrorAs(t, g.AddNode(b), &state)
	assert.ErrorAs(t, a.DependsOn(b), &state)
	assert.ErrorAs(t, g.Execute(context.Background()), &state)
}

func TestDoneChannelAndContinuation(t *testing.T) {
	g, err := graph.New(1)
	require.NoError(t, err)
	defer g.Close()

	var resumed atomic.Bool
	n := graph.NewNode("n", func(ctx context.Context) error { return nil })
	n.OnDone(func() { resumed.Store(true) })
	require.NoError(t, g.AddNode(n))

	require.NoError(t, g.Execute(context.Background()))

	select {
	case <-n.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("node completion signal never fired")
	}
	require.NoError(t, g.WaitAll())
	assert.True(t, resumed.Load())
}
