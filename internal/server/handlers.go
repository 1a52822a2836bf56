package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/resume-tailor/internal/engine"
	"github.com/jonathan/resume-tailor/internal/fetch"
	"github.com/jonathan/resume-tailor/internal/types"
)

// CustomizeRequest represents the request body for POST /customizations.
// Exactly one of target or target_url must be set.
type CustomizeRequest struct {
	Resume    string `json:"resume"`
	Target    string `json:"target,omitempty"`
	TargetURL string `json:"target_url,omitempty"`
	Template  string `json:"template,omitempty"`
}

// CustomizeResponse represents the response for POST /customizations
type CustomizeResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// StatusResponse represents the response for GET /customizations/{id}
type StatusResponse struct {
	JobID          string                      `json:"job_id"`
	Status         types.JobStatus             `json:"status"`
	CurrentStage   types.Stage                 `json:"current_stage,omitempty"`
	Error          string                      `json:"error,omitempty"`
	Evaluation     *types.EvaluationResult     `json:"evaluation,omitempty"`
	Plan           *types.Plan                 `json:"plan,omitempty"`
	Implementation *types.ImplementationResult `json:"implementation,omitempty"`
	Verification   *types.VerificationResult   `json:"verification,omitempty"`
	Diff           *types.DiffResult           `json:"diff,omitempty"`
	CreatedAt      string                      `json:"created_at"`
	CompletedAt    string                      `json:"completed_at,omitempty"`
}

// handleCreateCustomization starts a new customization job.
func (s *Server) handleCreateCustomization(w http.ResponseWriter, r *http.Request) {
	var req CustomizeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Resume == "" {
		s.errorResponse(w, http.StatusBadRequest, "resume is required")
		return
	}
	if req.Target == "" && req.TargetURL == "" {
		s.errorResponse(w, http.StatusBadRequest, "Either target or target_url is required")
		return
	}
	if req.Target != "" && req.TargetURL != "" {
		s.errorResponse(w, http.StatusBadRequest, "target and target_url are mutually exclusive")
		return
	}

	target := req.Target
	if req.TargetURL != "" {
		text, err := fetch.TargetDescription(r.Context(), req.TargetURL, s.useBrowser, s.verbose)
		if err != nil {
			s.errorResponse(w, http.StatusBadGateway, "Failed to fetch target URL: "+err.Error())
			return
		}
		target = text
	}

	jobID, err := s.engine.Start(r.Context(), engine.Request{
		OriginalDocument:  req.Resume,
		TargetDescription: target,
		TemplateID:        req.Template,
	})
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to start job: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusAccepted, CustomizeResponse{
		JobID:  jobID.String(),
		Status: string(types.StatusPending),
	})
}

// handleGetCustomization returns the persisted snapshot of a job.
func (s *Server) handleGetCustomization(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.parseJobID(w, r)
	if !ok {
		return
	}

	snap, err := s.engine.Status(r.Context(), jobID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	resp := StatusResponse{
		JobID:          snap.JobID.String(),
		Status:         snap.Status,
		CurrentStage:   snap.CurrentStage,
		Error:          snap.Error,
		Evaluation:     snap.Evaluation,
		Plan:           snap.Plan,
		Implementation: snap.Implementation,
		Verification:   snap.Verification,
		Diff:           snap.Diff,
		CreatedAt:      snap.CreatedAt.Format(timeFormat),
	}
	if snap.CompletedAt != nil {
		resp.CompletedAt = snap.CompletedAt.Format(timeFormat)
	}

	s.jsonResponse(w, http.StatusOK, resp)
}

// handleCancelCustomization requests cooperative cancellation of a running
// job. In-flight stage work finishes or times out; no further stage starts.
func (s *Server) handleCancelCustomization(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.parseJobID(w, r)
	if !ok {
		return
	}

	if !s.engine.Cancel(jobID) {
		// Either unknown or already terminal; disambiguate via the store.
		snap, err := s.engine.Status(r.Context(), jobID)
		if err != nil {
			s.errorResponse(w, HTTPStatus(err), err.Error())
			return
		}
		s.jsonResponse(w, http.StatusConflict, map[string]string{
			"job_id": jobID.String(),
			"status": string(snap.Status),
			"error":  "job is not running",
		})
		return
	}

	s.jsonResponse(w, http.StatusAccepted, map[string]string{
		"job_id": jobID.String(),
		"status": "cancelling",
	})
}

// handleCustomizationEvents streams a job's progress events over SSE until
// the job's stream closes or the client disconnects.
func (s *Server) handleCustomizationEvents(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.parseJobID(w, r)
	if !ok {
		return
	}

	// Reject streams for unknown jobs up front.
	if _, err := s.engine.Status(r.Context(), jobID); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	events, cancel := s.engine.Progress().Subscribe(jobID)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				snap, err := s.engine.Status(context.WithoutCancel(r.Context()), jobID)
				if err == nil {
					sse.WriteComplete(jobID.String(), string(snap.Status))
				}
				return
			}
			if err := sse.WriteProgress(event); err != nil {
				return
			}
		}
	}
}

// parseJobID extracts and validates the {id} path parameter.
func (s *Server) parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := r.PathValue("id")
	if idStr == "" {
		s.errorResponse(w, http.StatusBadRequest, "Job ID is required")
		return uuid.Nil, false
	}
	jobID, err := uuid.Parse(idStr)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid job ID format")
		return uuid.Nil, false
	}
	return jobID, true
}
