// Package scheduler executes sets of independent work units with bounded
// concurrency, priority ordering, dependency propagation and per-provider
// circuit breaking. It is the single place retry and fail-fast policy lives;
// callers decide what to do with partial results.
package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is the sentinel matched by errors.Is for fail-fast
// rejections while a provider's circuit is open.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitOpenError reports a call rejected without invoking the service.
type CircuitOpenError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %q, retry after %s", e.Key, e.RetryAfter)
}

// Is makes errors.Is(err, ErrCircuitOpen) work.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// DependencyError marks a task skipped because a prerequisite did not
// succeed. The task was never attempted.
type DependencyError struct {
	TaskID     string
	Dependency string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("task %q skipped: dependency %q did not succeed", e.TaskID, e.Dependency)
}

// TaskSetError reports a construction-time problem with a task set
// (duplicate ids, unknown dependencies, cycles).
type TaskSetError struct {
	Message string
}

func (e *TaskSetError) Error() string {
	return fmt.Sprintf("invalid task set: %s", e.Message)
}
