package domain

import (
	"fmt"
	"strings"
)

// InvalidWorkerError is returned when a job is submitted to a worker index
// outside the pool.
type InvalidWorkerError struct {
	Index int
	Count int
}

func (e *InvalidWorkerError) Error() string {
	return fmt.Sprintf("invalid worker index %d: pool has %d workers", e.Index, e.Count)
}

// PoolClosedError is returned when a job is submitted after the pool stopped.
type PoolClosedError struct{}

func (e *PoolClosedError) Error() string {
	return "worker pool is closed"
}

// GraphStateError is returned when a task graph is mutated after execution
// has begun.
type GraphStateError struct {
	Op string
}

func (e *GraphStateError) Error() string {
	return fmt.Sprintf("graph already executing: cannot %s", e.Op)
}

// CycleError is returned when the task graph contains a dependency cycle.
// Path holds one representative cycle, first node repeated at the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "dependency cycle detected"
	}
	return "dependency cycle detected: " + strings.Join(e.Path, " -> ")
}
