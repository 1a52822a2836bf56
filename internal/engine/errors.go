// Package engine drives the four-stage customization pipeline:
// Evaluate -> Plan -> Implement -> Verify. Each stage transition is a single
// atomic step: invoke stage logic, validate, persist, broadcast, advance.
package engine

import (
	"fmt"

	"github.com/jonathan/resume-tailor/internal/types"
)

// ErrorKind classifies a pipeline failure for the caller. User-visible
// failures always carry the failing stage, a classification and the
// validator's rejection reason or truthfulness issues; never a bare
// "internal error".
type ErrorKind string

// Pipeline failure classifications.
const (
	KindValidationRejected ErrorKind = "validation_rejected"
	KindStageFailed        ErrorKind = "stage_failed"
	KindTruthfulness       ErrorKind = "truthfulness_violation"
	KindCancelled          ErrorKind = "cancelled"
	KindInvalidInput       ErrorKind = "invalid_input"
)

// PipelineError is the terminal failure of a customization job.
type PipelineError struct {
	Stage  types.Stage
	Kind   ErrorKind
	Reason string
	// Issues carries the verification issue list when the job failed the
	// truthfulness gate.
	Issues []types.VerificationIssue
	Cause  error
}

func (e *PipelineError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("stage %s failed (%s): %s", e.Stage, e.Kind, e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("stage %s failed (%s): %v", e.Stage, e.Kind, e.Cause)
	}
	return fmt.Sprintf("stage %s failed (%s)", e.Stage, e.Kind)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}
