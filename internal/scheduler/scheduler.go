package scheduler

import (
	"context"
	"sort"
)

// Config tunes scheduler execution.
type Config struct {
	// Concurrency is the default limit when Execute is called with
	// limit <= 0.
	Concurrency int
	// MinConcurrency/MaxConcurrency bound the adaptive limit. The limit
	// shrinks under repeated failures and grows under sustained success;
	// this is a throughput policy, not a correctness requirement.
	MinConcurrency int
	MaxConcurrency int
	Breaker        BreakerConfig
	Retry          RetryPolicy
}

// RetryPolicy re-executes a failed task when its error is classified
// retryable, typically a transient provider failure. MaxAttempts counts
// executions, so 1 disables retry. Every attempt is gated by the circuit
// breaker; an open circuit ends the task without consuming further attempts.
type RetryPolicy struct {
	MaxAttempts int
	Retryable   func(error) bool
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MinConcurrency <= 0 {
		c.MinConcurrency = 1
	}
	if c.MaxConcurrency < c.Concurrency {
		c.MaxConcurrency = c.Concurrency
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 1
	}
	return c
}

// Scheduler runs task sets. The breaker set is shared across every Execute
// call so provider outages observed by one job protect the rest.
type Scheduler struct {
	cfg      Config
	breakers *BreakerSet
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		cfg:      cfg,
		breakers: NewBreakerSet(cfg.Breaker),
	}
}

// Breakers exposes the shared breaker set.
func (s *Scheduler) Breakers() *BreakerSet {
	return s.breakers
}

type completion struct {
	id       string
	value    any
	err      error
	attempts int
}

// Execute runs the task set with at most limit tasks in flight. It returns
// the full result map including failures and skips; deciding whether partial
// success is acceptable is the caller's job. The only error return is a
// construction-time problem with the task set itself.
//
// A task whose dependency failed or was skipped is marked skipped without
// being attempted. In-flight siblings are never aborted when a peer fails.
// Failures the retry policy classifies as retryable are re-executed up to
// MaxAttempts times before the task is recorded as failed.
func (s *Scheduler) Execute(ctx context.Context, tasks []*Task, limit int) (map[string]*TaskResult, error) {
	if err := validateTaskSet(tasks); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.Concurrency
	}
	if limit > s.cfg.MaxConcurrency {
		limit = s.cfg.MaxConcurrency
	}

	results := make(map[string]*TaskResult, len(tasks))
	order := make(map[string]int, len(tasks))
	for i, t := range tasks {
		results[t.ID] = &TaskResult{Status: TaskPending}
		order[t.ID] = i
	}
	byID := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	done := make(chan completion)
	running := 0
	var successStreak, failureStreak int

	// propagateSkips marks every pending task with a failed or skipped
	// dependency as skipped, transitively.
	propagateSkips := func() {
		for changed := true; changed; {
			changed = false
			for _, t := range tasks {
				if results[t.ID].Status != TaskPending {
					continue
				}
				for _, dep := range t.DependsOn {
					ds := results[dep].Status
					if ds == TaskFailed || ds == TaskSkipped {
						results[t.ID] = &TaskResult{
							Status: TaskSkipped,
							Err:    &DependencyError{TaskID: t.ID, Dependency: dep},
						}
						changed = true
						break
					}
				}
			}
		}
	}

	// ready returns pending tasks whose dependencies all succeeded, by
	// priority then insertion order.
	ready := func() []*Task {
		var out []*Task
		for _, t := range tasks {
			if results[t.ID].Status != TaskPending {
				continue
			}
			ok := true
			for _, dep := range t.DependsOn {
				if results[dep].Status != TaskSucceeded {
					ok = false
					break
				}
			}
			if ok {
				out = append(out, t)
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Priority != out[j].Priority {
				return out[i].Priority < out[j].Priority
			}
			return order[out[i].ID] < order[out[j].ID]
		})
		return out
	}

	launch := func(t *Task) {
		results[t.ID].Status = TaskRunning
		running++
		go func() {
			attempts := 0
			for {
				// Fail fast while the circuit is open: the service
				// is never invoked, no outcome is recorded against
				// the breaker and no retry attempt is consumed.
				if err := s.breakers.Allow(t.Key); err != nil {
					done <- completion{id: t.ID, err: err, attempts: attempts}
					return
				}
				attempts++
				v, err := t.Run(ctx)
				s.breakers.Record(t.Key, err == nil)
				if err == nil || ctx.Err() != nil ||
					attempts >= s.cfg.Retry.MaxAttempts ||
					s.cfg.Retry.Retryable == nil || !s.cfg.Retry.Retryable(err) {
					done <- completion{id: t.ID, value: v, err: err, attempts: attempts}
					return
				}
			}
		}()
	}

	record := func(c completion) {
		running--
		res := results[c.id]
		res.Attempts = c.attempts
		if c.err != nil {
			res.Status = TaskFailed
			res.Err = c.err
			failureStreak++
			successStreak = 0
			if failureStreak >= 2 && limit > s.cfg.MinConcurrency {
				limit--
				failureStreak = 0
			}
			return
		}
		res.Status = TaskSucceeded
		res.Value = c.value
		successStreak++
		failureStreak = 0
		if successStreak >= 3 && limit < s.cfg.MaxConcurrency {
			limit++
			successStreak = 0
		}
	}

	for {
		propagateSkips()
		for _, t := range ready() {
			if running >= limit {
				break
			}
			launch(t)
		}
		if running == 0 {
			// Nothing in flight and nothing launchable: the set is
			// fully resolved.
			break
		}

		select {
		case c := <-done:
			record(c)
		case <-ctx.Done():
			// Cooperative cancellation: in-flight tasks finish or
			// time out on their own context; nothing new starts.
			for running > 0 {
				record(<-done)
			}
			for _, t := range tasks {
				if results[t.ID].Status == TaskPending {
					results[t.ID] = &TaskResult{Status: TaskSkipped, Err: ctx.Err()}
				}
			}
			return results, nil
		}
	}

	return results, nil
}

// SucceededFraction is a helper for partial-success gating: the fraction of
// tasks in the result map that succeeded.
func SucceededFraction(results map[string]*TaskResult) float64 {
	if len(results) == 0 {
		return 0
	}
	ok := 0
	for _, r := range results {
		if r.Status == TaskSucceeded {
			ok++
		}
	}
	return float64(ok) / float64(len(results))
}
