package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/resume-tailor/internal/diff"
	"github.com/jonathan/resume-tailor/internal/llm"
	"github.com/jonathan/resume-tailor/internal/progress"
	"github.com/jonathan/resume-tailor/internal/scheduler"
	"github.com/jonathan/resume-tailor/internal/segment"
	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

// broadcastGrace is how long a terminated job's progress registry stays up
// for slow subscribers.
const broadcastGrace = 5 * time.Second

// Config holds the engine tunables.
type Config struct {
	// RetryBudget is the number of validator-triggered retries per stage
	// beyond the initial attempt. Zero selects the default of 2; -1
	// disables retries.
	RetryBudget int
	// ProviderRetries is the number of scheduler-level re-invocations of a
	// model call after a transient provider failure (rate limit, timeout,
	// provider error). Zero selects the default of 1; -1 disables.
	// Separate from RetryBudget: a transient retry repeats the same
	// prompt, a validator retry feeds the rejection reason back.
	ProviderRetries int
	// PartialThreshold is the minimum fraction of fan-out tasks that must
	// succeed for the Implement stage to pass; failed sections are
	// carried over unmodified.
	PartialThreshold float64
	// Concurrency bounds the Implement fan-out.
	Concurrency int
	// CallTimeout applies to every model invocation.
	CallTimeout time.Duration
	// ProviderKey classifies model calls for circuit breaking.
	ProviderKey string
	// StageWeights override the progress weight table; nil uses defaults.
	StageWeights map[types.Stage]float64
}

func (c Config) withDefaults() Config {
	if c.RetryBudget < 0 {
		c.RetryBudget = 0
	} else if c.RetryBudget == 0 {
		c.RetryBudget = 2
	}
	if c.ProviderRetries < 0 {
		c.ProviderRetries = 0
	} else if c.ProviderRetries == 0 {
		c.ProviderRetries = 1
	}
	if c.PartialThreshold <= 0 || c.PartialThreshold > 1 {
		c.PartialThreshold = 0.6
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 2 * time.Minute
	}
	if c.ProviderKey == "" {
		c.ProviderKey = string(llm.ProviderGemini)
	}
	return c
}

// Request is one customization submission.
type Request struct {
	OriginalDocument  string
	TargetDescription string
	TemplateID        string
}

// Engine orchestrates customization jobs. Jobs run fully independently; the
// only shared mutable state is the scheduler's circuit breaker (deliberately
// shared so provider outages propagate across jobs) and the per-job
// subscriber registry in the broadcaster.
type Engine struct {
	model       llm.Client
	store       store.JobStore
	sched       *scheduler.Scheduler
	broadcaster *progress.Broadcaster
	segmenter   segment.Segmenter
	cfg         Config

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// New creates an engine. A nil segmenter uses the markdown segmenter and a
// nil scheduler gets a default one.
func New(model llm.Client, st store.JobStore, sched *scheduler.Scheduler, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	if sched == nil {
		sched = scheduler.New(scheduler.Config{
			Concurrency: cfg.Concurrency,
			Retry: scheduler.RetryPolicy{
				MaxAttempts: cfg.ProviderRetries + 1,
				Retryable:   llm.IsTransient,
			},
		})
	}
	return &Engine{
		model:       model,
		store:       st,
		sched:       sched,
		broadcaster: progress.NewBroadcaster(cfg.StageWeights),
		segmenter:   segment.NewMarkdownSegmenter(),
		cfg:         cfg,
		cancels:     make(map[uuid.UUID]context.CancelFunc),
	}
}

// SetSegmenter swaps the document segmenter collaborator.
func (e *Engine) SetSegmenter(s segment.Segmenter) {
	e.segmenter = s
}

// Progress exposes the broadcaster for subscription.
func (e *Engine) Progress() *progress.Broadcaster {
	return e.broadcaster
}

// Run executes a customization synchronously and returns the final result.
func (e *Engine) Run(ctx context.Context, req Request) (*types.JobResult, error) {
	job, err := e.createJob(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.runJob(ctx, job, req)
}

// Start launches a customization asynchronously and returns its job id.
// The job can later be cancelled between stages with Cancel.
func (e *Engine) Start(ctx context.Context, req Request) (uuid.UUID, error) {
	job, err := e.createJob(ctx, req)
	if err != nil {
		return uuid.Nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.mu.Lock()
	e.cancels[job.ID] = cancel
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.cancels, job.ID)
			e.mu.Unlock()
			cancel()
		}()
		_, _ = e.runJob(runCtx, job, req)
	}()

	return job.ID, nil
}

// Cancel requests cooperative cancellation of a running job. In-flight model
// calls for the current stage finish or time out; no further stage starts.
func (e *Engine) Cancel(jobID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cancel, ok := e.cancels[jobID]
	if ok {
		cancel()
	}
	return ok
}

// Status loads the persisted snapshot of a job.
func (e *Engine) Status(ctx context.Context, jobID uuid.UUID) (*types.JobSnapshot, error) {
	return e.store.Load(ctx, jobID)
}

func (e *Engine) createJob(ctx context.Context, req Request) (*types.Job, error) {
	job := &types.Job{
		ID:         uuid.New(),
		Status:     types.StatusPending,
		TemplateID: req.TemplateID,
		CreatedAt:  time.Now(),
	}
	if err := e.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// runJob drives the state machine:
// Pending -> Evaluating -> Planning -> Implementing -> Verifying -> Completed,
// with Failed reachable from any non-terminal state. Stages never overlap
// and never run out of order.
func (e *Engine) runJob(ctx context.Context, job *types.Job, req Request) (*types.JobResult, error) {
	defer e.broadcaster.Close(job.ID, broadcastGrace)

	sections, err := e.segmenter.Segment(req.OriginalDocument)
	if err != nil {
		return nil, e.fail(ctx, job, &PipelineError{
			Stage:  types.StageEvaluate,
			Kind:   KindInvalidInput,
			Reason: err.Error(),
			Cause:  err,
		})
	}

	// Evaluate
	if err := e.enterStage(ctx, job, types.StageEvaluate); err != nil {
		return nil, err
	}
	eval, err := e.evaluate(ctx, job.ID, req, sections)
	if err != nil {
		return nil, e.fail(ctx, job, err)
	}
	if err := e.completeStage(ctx, job, types.StageEvaluate, eval,
		fmt.Sprintf("evaluated resume: match score %d", eval.MatchScore)); err != nil {
		return nil, err
	}

	// Plan
	if err := e.enterStage(ctx, job, types.StagePlan); err != nil {
		return nil, err
	}
	plan, err := e.plan(ctx, job.ID, req, sections, eval)
	if err != nil {
		return nil, e.fail(ctx, job, err)
	}
	if err := e.completeStage(ctx, job, types.StagePlan, plan,
		fmt.Sprintf("planned changes to %d sections, target score %d", len(plan.SectionChanges), plan.TargetScore)); err != nil {
		return nil, err
	}

	// Implement (fan-out)
	if err := e.enterStage(ctx, job, types.StageImplement); err != nil {
		return nil, err
	}
	impl, err := e.implement(ctx, job.ID, req, sections, plan)
	if err != nil {
		return nil, e.fail(ctx, job, err)
	}
	if err := e.completeStage(ctx, job, types.StageImplement, impl,
		fmt.Sprintf("rewrote %d sections (%d carried over)", len(impl.ChangeLog), len(impl.CarriedOver))); err != nil {
		return nil, err
	}

	// Verify
	if err := e.enterStage(ctx, job, types.StageVerify); err != nil {
		return nil, err
	}
	verification, err := e.verify(ctx, job.ID, req, sections, impl, eval)
	if err != nil {
		return nil, e.fail(ctx, job, err)
	}
	if err := e.completeStage(ctx, job, types.StageVerify, verification,
		fmt.Sprintf("verified customization: final score %d", verification.FinalScore)); err != nil {
		return nil, err
	}

	// A verification that reports fabricated content fails the job loudly
	// with the issue list; it is never retried away.
	if !verification.IsTruthful {
		return nil, e.fail(ctx, job, &PipelineError{
			Stage:  types.StageVerify,
			Kind:   KindTruthfulness,
			Reason: fmt.Sprintf("customization introduced %d unsupported claims", len(verification.Issues)),
			Issues: verification.Issues,
		})
	}

	diffResult := diff.Compare(sections, impl.Sections)
	if err := e.store.SaveDiff(ctx, job.ID, diffResult); err != nil {
		return nil, e.fail(ctx, job, &PipelineError{
			Stage: types.StageVerify, Kind: KindStageFailed,
			Reason: "failed to persist diff", Cause: err,
		})
	}

	if err := e.store.SaveStatus(ctx, job.ID, types.StatusCompleted, types.StageVerify); err != nil {
		return nil, fmt.Errorf("failed to persist completion: %w", err)
	}

	return &types.JobResult{
		JobID:          job.ID,
		Evaluation:     eval,
		Plan:           plan,
		Implementation: impl,
		Verification:   verification,
		Diff:           diffResult,
	}, nil
}

// enterStage checks for cancellation between stages, persists the
// transition and announces it.
func (e *Engine) enterStage(ctx context.Context, job *types.Job, stage types.Stage) error {
	if ctx.Err() != nil {
		return e.fail(ctx, job, &PipelineError{
			Stage:  stage,
			Kind:   KindCancelled,
			Reason: "job cancelled",
			Cause:  ctx.Err(),
		})
	}
	if err := e.store.SaveStatus(ctx, job.ID, types.StatusRunning, stage); err != nil {
		return e.fail(ctx, job, &PipelineError{
			Stage: stage, Kind: KindStageFailed,
			Reason: "failed to persist stage transition", Cause: err,
		})
	}
	job.Status = types.StatusRunning
	job.CurrentStage = stage
	e.broadcaster.Publish(job.ID, stage, 0, fmt.Sprintf("entering %s stage", stage))
	return nil
}

// completeStage persists the validated stage payload and marks its progress
// weight as earned.
func (e *Engine) completeStage(ctx context.Context, job *types.Job, stage types.Stage, payload any, message string) error {
	if err := e.store.SaveStageResult(ctx, job.ID, stage, payload); err != nil {
		return e.fail(ctx, job, &PipelineError{
			Stage: stage, Kind: KindStageFailed,
			Reason: "failed to persist stage result", Cause: err,
		})
	}
	e.broadcaster.CompleteStage(job.ID, stage, message)
	return nil
}

// fail moves the job to its terminal Failed state with a user-visible
// error: failing stage, classification and rejection reason or issue list.
func (e *Engine) fail(ctx context.Context, job *types.Job, err error) error {
	pe, ok := err.(*PipelineError)
	if !ok {
		pe = &PipelineError{Stage: job.CurrentStage, Kind: KindStageFailed, Cause: err, Reason: err.Error()}
	}

	// Persist with a background-derived context so a cancelled job still
	// records why it stopped.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	_ = e.store.SaveError(saveCtx, job.ID, pe.Error())
	_ = e.store.SaveStatus(saveCtx, job.ID, types.StatusFailed, pe.Stage)
	job.Status = types.StatusFailed

	e.broadcaster.Publish(job.ID, pe.Stage, 0, pe.Error())
	return pe
}
