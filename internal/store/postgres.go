package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/resume-tailor/internal/types"
)

// PostgresStore is the pgx-backed JobStore. One row per job in
// customization_jobs; stage payloads live in customization_artifacts keyed
// by (job_id, stage) and upserted on retry.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateJob records a newly created job.
func (s *PostgresStore) CreateJob(ctx context.Context, job *types.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO customization_jobs (id, status, template_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		job.ID, job.Status, job.TemplateID, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// SaveStatus appends a status transition for a job.
func (s *PostgresStore) SaveStatus(ctx context.Context, jobID uuid.UUID, status types.JobStatus, stage types.Stage) error {
	var err error
	if status == types.StatusCompleted || status == types.StatusFailed {
		_, err = s.pool.Exec(ctx,
			`UPDATE customization_jobs
			 SET status = $1, current_stage = $2, completed_at = NOW()
			 WHERE id = $3`,
			status, stage, jobID,
		)
	} else {
		_, err = s.pool.Exec(ctx,
			`UPDATE customization_jobs SET status = $1, current_stage = $2 WHERE id = $3`,
			status, stage, jobID,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// SaveStageResult stores a validated stage payload.
func (s *PostgresStore) SaveStageResult(ctx context.Context, jobID uuid.UUID, stage types.Stage, payload any) error {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s result: %w", stage, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO customization_artifacts (job_id, stage, content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (job_id, stage) DO UPDATE SET content = $3, created_at = NOW()`,
		jobID, stage, jsonBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to save %s result: %w", stage, err)
	}
	return nil
}

// SaveDiff stores the final structural diff.
func (s *PostgresStore) SaveDiff(ctx context.Context, jobID uuid.UUID, diff *types.DiffResult) error {
	jsonBytes, err := json.Marshal(diff)
	if err != nil {
		return fmt.Errorf("failed to marshal diff: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE customization_jobs SET diff = $1 WHERE id = $2`,
		jsonBytes, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to save diff: %w", err)
	}
	return nil
}

// SaveError records the user-visible failure for a job.
func (s *PostgresStore) SaveError(ctx context.Context, jobID uuid.UUID, message string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE customization_jobs SET error = $1 WHERE id = $2`,
		message, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to save error: %w", err)
	}
	return nil
}

// Load returns the current persisted snapshot of a job.
func (s *PostgresStore) Load(ctx context.Context, jobID uuid.UUID) (*types.JobSnapshot, error) {
	snap := &types.JobSnapshot{JobID: jobID}
	var diffBytes []byte
	var errMsg *string
	var stage *string

	err := s.pool.QueryRow(ctx,
		`SELECT status, current_stage, diff, error, created_at, completed_at
		 FROM customization_jobs WHERE id = $1`,
		jobID,
	).Scan(&snap.Status, &stage, &diffBytes, &errMsg, &snap.CreatedAt, &snap.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{JobID: jobID}
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if stage != nil {
		snap.CurrentStage = types.Stage(*stage)
	}
	if errMsg != nil {
		snap.Error = *errMsg
	}
	if len(diffBytes) > 0 {
		snap.Diff = &types.DiffResult{}
		if err := json.Unmarshal(diffBytes, snap.Diff); err != nil {
			return nil, fmt.Errorf("failed to decode diff: %w", err)
		}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT stage, content FROM customization_artifacts WHERE job_id = $1`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stageName string
		var content []byte
		if err := rows.Scan(&stageName, &content); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		if err := decodeArtifact(snap, types.Stage(stageName), content); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read artifacts: %w", err)
	}

	return snap, nil
}

func decodeArtifact(snap *types.JobSnapshot, stage types.Stage, content []byte) error {
	var target any
	switch stage {
	case types.StageEvaluate:
		snap.Evaluation = &types.EvaluationResult{}
		target = snap.Evaluation
	case types.StagePlan:
		snap.Plan = &types.Plan{}
		target = snap.Plan
	case types.StageImplement:
		snap.Implementation = &types.ImplementationResult{}
		target = snap.Implementation
	case types.StageVerify:
		snap.Verification = &types.VerificationResult{}
		target = snap.Verification
	default:
		return nil
	}
	if err := json.Unmarshal(content, target); err != nil {
		return fmt.Errorf("failed to decode %s artifact: %w", stage, err)
	}
	return nil
}
