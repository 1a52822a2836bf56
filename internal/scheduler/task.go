package scheduler

import (
	"context"
	"fmt"
)

// TaskStatus is the lifecycle state of one scheduled work unit.
type TaskStatus string

// Task states.
const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Task is one unit of scheduled work. Tasks form a DAG through DependsOn;
// cycles are rejected before anything runs.
type Task struct {
	ID   string
	Name string
	// Priority orders the ready queue; lower values run first. Ties are
	// broken by insertion order.
	Priority  int
	DependsOn []string
	// Key classifies the task for circuit breaking, typically the
	// provider name the task calls out to.
	Key string
	Run func(ctx context.Context) (any, error)
}

// TaskResult is the terminal outcome of one task.
type TaskResult struct {
	Status   TaskStatus
	Value    any
	Err      error
	Attempts int
}

// validateTaskSet rejects duplicate ids, unknown dependencies, missing run
// functions and dependency cycles.
func validateTaskSet(tasks []*Task) error {
	byID := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			return &TaskSetError{Message: "task with empty id"}
		}
		if t.Run == nil {
			return &TaskSetError{Message: fmt.Sprintf("task %q has no run function", t.ID)}
		}
		if _, dup := byID[t.ID]; dup {
			return &TaskSetError{Message: fmt.Sprintf("duplicate task id %q", t.ID)}
		}
		byID[t.ID] = t
	}

	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				return &TaskSetError{Message: fmt.Sprintf("task %q depends on unknown task %q", t.ID, dep)}
			}
		}
	}

	// Cycle detection via iterative DFS with colors.
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case gray:
			return &TaskSetError{Message: fmt.Sprintf("dependency cycle through task %q", id)}
		case black:
			return nil
		}
		color[id] = gray
		for _, dep := range byID[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	for _, t := range tasks {
		if err := visit(t.ID); err != nil {
			return err
		}
	}
	return nil
}
