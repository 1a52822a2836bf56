package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/resume-tailor/internal/types"
)

// MemoryStore is an in-memory JobStore used for CLI runs without a database
// and for tests.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*types.JobSnapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]*types.JobSnapshot)}
}

// CreateJob records a newly created job.
func (m *MemoryStore) CreateJob(_ context.Context, job *types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = &types.JobSnapshot{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}
	return nil
}

// SaveStatus appends a status transition.
func (m *MemoryStore) SaveStatus(_ context.Context, jobID uuid.UUID, status types.JobStatus, stage types.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.jobs[jobID]
	if !ok {
		return &NotFoundError{JobID: jobID}
	}
	snap.Status = status
	snap.CurrentStage = stage
	if status == types.StatusCompleted || status == types.StatusFailed {
		now := time.Now()
		snap.CompletedAt = &now
	}
	return nil
}

// SaveStageResult stores a validated stage payload.
func (m *MemoryStore) SaveStageResult(_ context.Context, jobID uuid.UUID, stage types.Stage, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.jobs[jobID]
	if !ok {
		return &NotFoundError{JobID: jobID}
	}

	// Round-trip through JSON so the snapshot holds copies, not live
	// pipeline state.
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s result: %w", stage, err)
	}
	switch stage {
	case types.StageEvaluate:
		snap.Evaluation = &types.EvaluationResult{}
		return json.Unmarshal(data, snap.Evaluation)
	case types.StagePlan:
		snap.Plan = &types.Plan{}
		return json.Unmarshal(data, snap.Plan)
	case types.StageImplement:
		snap.Implementation = &types.ImplementationResult{}
		return json.Unmarshal(data, snap.Implementation)
	case types.StageVerify:
		snap.Verification = &types.VerificationResult{}
		return json.Unmarshal(data, snap.Verification)
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

// SaveDiff stores the final structural diff.
func (m *MemoryStore) SaveDiff(_ context.Context, jobID uuid.UUID, diff *types.DiffResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.jobs[jobID]
	if !ok {
		return &NotFoundError{JobID: jobID}
	}
	snap.Diff = diff
	return nil
}

// SaveError records the user-visible failure message.
func (m *MemoryStore) SaveError(_ context.Context, jobID uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.jobs[jobID]
	if !ok {
		return &NotFoundError{JobID: jobID}
	}
	snap.Error = message
	return nil
}

// Load returns a copy of the job snapshot.
func (m *MemoryStore) Load(_ context.Context, jobID uuid.UUID) (*types.JobSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.jobs[jobID]
	if !ok {
		return nil, &NotFoundError{JobID: jobID}
	}
	cp := *snap
	return &cp, nil
}
