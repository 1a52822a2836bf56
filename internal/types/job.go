// Package types defines the shared domain types for the customization engine.
package types

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a customization job.
type JobStatus string

// Job status constants define the possible lifecycle states.
const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Stage represents one of the four fixed pipeline phases.
type Stage string

// Pipeline stage constants, in execution order.
const (
	StageEvaluate  Stage = "evaluate"
	StagePlan      Stage = "plan"
	StageImplement Stage = "implement"
	StageVerify    Stage = "verify"
)

// Stages lists the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{StageEvaluate, StagePlan, StageImplement, StageVerify}
}

// Job identifies one customization run. It is owned and mutated exclusively
// by the orchestrator for the duration of the run; snapshots are persisted
// after each stage transition.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	Status       JobStatus  `json:"status"`
	CurrentStage Stage      `json:"current_stage,omitempty"`
	TemplateID   string     `json:"template_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// JobResult is the final output of a completed customization run.
type JobResult struct {
	JobID          uuid.UUID             `json:"job_id"`
	Evaluation     *EvaluationResult     `json:"evaluation"`
	Plan           *Plan                 `json:"plan"`
	Implementation *ImplementationResult `json:"implementation"`
	Verification   *VerificationResult   `json:"verification"`
	Diff           *DiffResult           `json:"diff"`
}

// JobSnapshot is the persisted view of a job, with stage fields populated
// incrementally as the pipeline advances.
type JobSnapshot struct {
	JobID          uuid.UUID             `json:"job_id"`
	Status         JobStatus             `json:"status"`
	CurrentStage   Stage                 `json:"current_stage,omitempty"`
	Evaluation     *EvaluationResult     `json:"evaluation,omitempty"`
	Plan           *Plan                 `json:"plan,omitempty"`
	Implementation *ImplementationResult `json:"implementation,omitempty"`
	Verification   *VerificationResult   `json:"verification,omitempty"`
	Diff           *DiffResult           `json:"diff,omitempty"`
	Error          string                `json:"error,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
}
