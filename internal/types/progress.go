package types

import (
	"time"

	"github.com/google/uuid"
)

// ProgressEvent is one progress update pushed to subscribers of a job.
// OverallPercentage is monotonically non-decreasing within a job.
type ProgressEvent struct {
	JobID             uuid.UUID `json:"job_id"`
	Stage             Stage     `json:"stage"`
	StagePercentage   float64   `json:"stage_percentage"`
	OverallPercentage float64   `json:"overall_percentage"`
	Message           string    `json:"message"`
	Timestamp         time.Time `json:"timestamp"`
}
