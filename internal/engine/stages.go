package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jonathan/resume-tailor/internal/llm"
	"github.com/jonathan/resume-tailor/internal/prompts"
	"github.com/jonathan/resume-tailor/internal/scheduler"
	"github.com/jonathan/resume-tailor/internal/schemas"
	"github.com/jonathan/resume-tailor/internal/types"
	"github.com/jonathan/resume-tailor/internal/validation"
)

// promptFile holds the stage prompt templates.
const promptFile = "stages.json"

// retryNote is appended to the prompt when a previous attempt was rejected
// by the stage validator.
func retryNote(reason string) string {
	return fmt.Sprintf("\n\nYour previous response was rejected: %s\nProduce a corrected response that fixes every listed problem.", reason)
}

// callModel routes a single model invocation through the scheduler so it
// gets the shared circuit-breaker and transient-retry treatment, and applies
// the call timeout.
func (e *Engine) callModel(ctx context.Context, name, system, prompt string, tier llm.ModelTier) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	tasks := []*scheduler.Task{{
		ID:   name,
		Name: name,
		Key:  e.cfg.ProviderKey,
		Run: func(ctx context.Context) (any, error) {
			return e.model.Invoke(ctx, system, prompt, tier)
		},
	}}
	results, err := e.sched.Execute(callCtx, tasks, 1)
	if err != nil {
		return "", err
	}
	res := results[name]
	if res.Err != nil {
		return "", res.Err
	}
	raw, ok := res.Value.(string)
	if !ok {
		return "", llm.NewError(llm.KindInvalidOutput, "model returned non-text value", nil)
	}
	return raw, nil
}

// invokeValidated runs the single-shot stage loop: invoke, gate the raw JSON
// against the stage schema, unmarshal, apply the domain validator. Schema
// and validator rejections consume the retry budget with the rejection
// reason fed back into the prompt. Transient provider errors are retried
// inside the scheduler under the circuit breaker; only an exhausted or
// non-retryable provider failure reaches this loop, and it fails the stage.
func (e *Engine) invokeValidated(
	ctx context.Context,
	jobID uuid.UUID,
	stage types.Stage,
	system, basePrompt string,
	tier llm.ModelTier,
	out any,
	check func() *validation.Rejection,
) error {
	var reason string
	attempts := e.cfg.RetryBudget + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		prompt := basePrompt
		if reason != "" {
			prompt += retryNote(reason)
		}
		if attempt > 1 {
			e.broadcaster.Publish(jobID, stage, 0,
				fmt.Sprintf("retrying %s stage (attempt %d of %d)", stage, attempt, attempts))
		}

		raw, err := e.callModel(ctx, fmt.Sprintf("%s-%s-%d", jobID, stage, attempt), system, prompt, tier)
		if err != nil {
			return &PipelineError{
				Stage:  stage,
				Kind:   KindStageFailed,
				Reason: fmt.Sprintf("model invocation failed: %v", err),
				Cause:  err,
			}
		}

		if err := schemas.ValidateStageOutput(stage, raw); err != nil {
			reason = err.Error()
			continue
		}
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			reason = fmt.Sprintf("response is not valid %s JSON: %v", stage, err)
			continue
		}
		if rej := check(); rej != nil {
			reason = rej.Reason()
			continue
		}
		return nil
	}

	return &PipelineError{
		Stage:  stage,
		Kind:   KindValidationRejected,
		Reason: fmt.Sprintf("output rejected after %d attempts: %s", attempts, reason),
	}
}

func (e *Engine) evaluate(ctx context.Context, jobID uuid.UUID, req Request, sections []types.Section) (*types.EvaluationResult, error) {
	system := prompts.MustGet(promptFile, "evaluate_system")
	basePrompt := prompts.Format(prompts.MustGet(promptFile, "evaluate_user"), map[string]string{
		"Sections": strings.Join(types.SectionNames(sections), ", "),
		"Target":   req.TargetDescription,
		"Document": req.OriginalDocument,
	})

	result := &types.EvaluationResult{}
	err := e.invokeValidated(ctx, jobID, types.StageEvaluate, system, basePrompt, llm.TierStandard, result,
		func() *validation.Rejection { return validation.ValidateEvaluation(result) })
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) plan(ctx context.Context, jobID uuid.UUID, req Request, sections []types.Section, eval *types.EvaluationResult) (*types.Plan, error) {
	evalJSON, err := json.Marshal(eval)
	if err != nil {
		return nil, &PipelineError{Stage: types.StagePlan, Kind: KindStageFailed, Reason: "failed to encode evaluation", Cause: err}
	}

	system := prompts.MustGet(promptFile, "plan_system")
	basePrompt := prompts.Format(prompts.MustGet(promptFile, "plan_user"), map[string]string{
		"Evaluation": string(evalJSON),
		"Sections":   strings.Join(types.SectionNames(sections), ", "),
		"Target":     req.TargetDescription,
		"Document":   req.OriginalDocument,
	})

	result := &types.Plan{}
	err = e.invokeValidated(ctx, jobID, types.StagePlan, system, basePrompt, llm.TierAdvanced, result,
		func() *validation.Rejection { return validation.ValidatePlan(result, eval) })
	if err != nil {
		return nil, err
	}
	return result, nil
}

// implement fans out one rewrite task per planned section, bounded by the
// configured concurrency, and merges the outputs in the original document's
// section order so the final artifact is stable regardless of scheduling
// jitter. Sections whose task failed or was skipped are carried over
// unmodified when the partial-success threshold is met.
func (e *Engine) implement(ctx context.Context, jobID uuid.UUID, req Request, sections []types.Section, plan *types.Plan) (*types.ImplementationResult, error) {
	allowed := make(map[string]bool, len(sections))
	for _, s := range sections {
		allowed[s.Name] = true
	}

	// Only sections present in the document are scheduled; plan entries
	// for unknown sections have nothing to rewrite.
	var targets []types.Section
	for _, s := range sections {
		if _, ok := plan.SectionChanges[s.Name]; ok {
			targets = append(targets, s)
		}
	}
	if len(targets) == 0 {
		return nil, &PipelineError{
			Stage:  types.StageImplement,
			Kind:   KindStageFailed,
			Reason: "plan does not touch any section present in the document",
		}
	}

	var completed atomic.Int64
	total := len(targets)

	tasks := make([]*scheduler.Task, 0, total)
	for i, target := range targets {
		tasks = append(tasks, &scheduler.Task{
			ID:       target.Name,
			Name:     fmt.Sprintf("rewrite %s", target.Name),
			Priority: i,
			Key:      e.cfg.ProviderKey,
			Run: func(ctx context.Context) (any, error) {
				rewrite, err := e.rewriteSection(ctx, req, target, plan, allowed)
				if err != nil {
					// Transient failures may be re-run by the
					// scheduler; only terminal successes count
					// toward the stage percentage.
					return nil, err
				}
				done := completed.Add(1)
				e.broadcaster.Publish(jobID, types.StageImplement,
					float64(done)/float64(total)*100,
					fmt.Sprintf("rewrote section %q (%d/%d)", target.Name, done, total))
				return rewrite, nil
			},
		})
	}

	results, err := e.sched.Execute(ctx, tasks, e.cfg.Concurrency)
	if err != nil {
		return nil, &PipelineError{Stage: types.StageImplement, Kind: KindStageFailed, Reason: err.Error(), Cause: err}
	}

	fraction := scheduler.SucceededFraction(results)
	if fraction < e.cfg.PartialThreshold {
		return nil, &PipelineError{
			Stage: types.StageImplement,
			Kind:  KindStageFailed,
			Reason: fmt.Sprintf("only %.0f%% of section rewrites succeeded, need %.0f%%: %s",
				fraction*100, e.cfg.PartialThreshold*100, firstTaskError(results)),
		}
	}

	impl := mergeSections(sections, results)
	if rej := validation.ValidateImplementation(impl); rej != nil {
		return nil, &PipelineError{
			Stage:  types.StageImplement,
			Kind:   KindValidationRejected,
			Reason: rej.Reason(),
		}
	}
	return impl, nil
}

// rewriteSection is the per-task model loop for one section, with its own
// validator-triggered retry budget.
func (e *Engine) rewriteSection(ctx context.Context, req Request, section types.Section, plan *types.Plan, allowed map[string]bool) (*types.SectionRewrite, error) {
	system := prompts.MustGet(promptFile, "implement_system")
	basePrompt := prompts.Format(prompts.MustGet(promptFile, "implement_user"), map[string]string{
		"Section": section.Name,
		"Change":  plan.SectionChanges[section.Name],
		"Terms":   strings.Join(plan.TermsToAdd, ", "),
		"Content": section.Content,
		"Target":  req.TargetDescription,
	})

	var reason string
	attempts := e.cfg.RetryBudget + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		prompt := basePrompt
		if reason != "" {
			prompt += retryNote(reason)
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		raw, err := e.model.Invoke(callCtx, system, prompt, llm.TierAdvanced)
		cancel()
		if err != nil {
			return nil, err
		}

		if err := schemas.ValidateStageOutput(types.StageImplement, raw); err != nil {
			reason = err.Error()
			continue
		}
		rewrite := &types.SectionRewrite{}
		if err := json.Unmarshal([]byte(raw), rewrite); err != nil {
			reason = fmt.Sprintf("response is not valid JSON: %v", err)
			continue
		}
		if rewrite.Section != section.Name {
			reason = fmt.Sprintf("rewrite names section %q, expected %q", rewrite.Section, section.Name)
			continue
		}
		if rej := validation.ValidateSectionRewrite(rewrite, allowed); rej != nil {
			reason = rej.Reason()
			continue
		}
		return rewrite, nil
	}

	return nil, llm.NewError(llm.KindInvalidOutput,
		fmt.Sprintf("section rewrite rejected after %d attempts: %s", attempts, reason), nil)
}

func (e *Engine) verify(ctx context.Context, jobID uuid.UUID, req Request, original []types.Section, impl *types.ImplementationResult, eval *types.EvaluationResult) (*types.VerificationResult, error) {
	system := prompts.MustGet(promptFile, "verify_system")
	basePrompt := prompts.Format(prompts.MustGet(promptFile, "verify_user"), map[string]string{
		"OriginalScore": fmt.Sprintf("%d", eval.MatchScore),
		"Original":      types.JoinSections(original),
		"Customized":    impl.Document(),
		"Target":        req.TargetDescription,
	})

	result := &types.VerificationResult{}
	err := e.invokeValidated(ctx, jobID, types.StageVerify, system, basePrompt, llm.TierStandard, result,
		func() *validation.Rejection { return validation.ValidateVerification(result) })
	if err != nil {
		return nil, err
	}
	return result, nil
}

// firstTaskError picks one representative failure for the user-visible
// partial-threshold message.
func firstTaskError(results map[string]*scheduler.TaskResult) string {
	for id, r := range results {
		if r.Status == scheduler.TaskFailed && r.Err != nil {
			return fmt.Sprintf("section %q: %v", id, r.Err)
		}
	}
	for id, r := range results {
		if r.Status == scheduler.TaskSkipped && r.Err != nil {
			return fmt.Sprintf("section %q: %v", id, r.Err)
		}
	}
	return "no failure detail available"
}
