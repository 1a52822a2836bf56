// Package store persists job status and stage results. The orchestrator
// writes snapshots after every stage transition; it never reads business
// logic back out of the store.
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/resume-tailor/internal/types"
)

// JobStore is the persistence capability consumed by the orchestrator.
// Writes for a given job id are serialized by the orchestrator itself, so
// implementations never see concurrent writers for one job.
type JobStore interface {
	// CreateJob records a newly created job.
	CreateJob(ctx context.Context, job *types.Job) error
	// SaveStatus appends a status transition for a job.
	SaveStatus(ctx context.Context, jobID uuid.UUID, status types.JobStatus, stage types.Stage) error
	// SaveStageResult stores a validated stage payload.
	SaveStageResult(ctx context.Context, jobID uuid.UUID, stage types.Stage, payload any) error
	// SaveDiff stores the final structural diff.
	SaveDiff(ctx context.Context, jobID uuid.UUID, diff *types.DiffResult) error
	// SaveError records the user-visible failure for a job.
	SaveError(ctx context.Context, jobID uuid.UUID, message string) error
	// Load returns the current persisted snapshot of a job.
	Load(ctx context.Context, jobID uuid.UUID) (*types.JobSnapshot, error)
}

// NotFoundError reports a load for an unknown job id.
type NotFoundError struct {
	JobID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job %s not found", e.JobID)
}
