package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-tailor/internal/engine"
	"github.com/jonathan/resume-tailor/internal/llm"
	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

const testResume = `## Summary
Backend engineer with six years of Go experience.

## Skills
Go, PostgreSQL, Docker`

// stubModel answers every stage with a fixed valid payload. Setting gate
// makes the evaluate call block until the channel is closed, which lets tests
// observe a running job.
type stubModel struct {
	gate chan struct{}
}

func (m *stubModel) Invoke(ctx context.Context, system, prompt string, _ llm.ModelTier) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch {
	case strings.Contains(system, "resume reviewer"):
		if m.gate != nil {
			select {
			case <-m.gate:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return `{
			"match_score": 55,
			"key_matches": [{"term": "Go", "evidence": "six years of Go experience"}],
			"missing_terms": ["Kubernetes"],
			"strengths": ["a", "b", "c"],
			"weaknesses": ["d", "e"]
		}`, nil
	case strings.Contains(system, "resume strategist"):
		return `{
			"target_score": 80,
			"section_changes": {"Summary": "sharpen", "Skills": "add Kubernetes"},
			"terms_to_add": ["Kubernetes"]
		}`, nil
	case strings.Contains(system, "resume writer"):
		section := "Summary"
		if strings.Contains(prompt, `"Skills"`) {
			section = "Skills"
		}
		return `{"section": "` + section + `", "content": "rewritten", "summary": "tightened"}`, nil
	case strings.Contains(system, "fact checker"):
		return `{"is_truthful": true, "issues": [], "final_score": 82, "improvement": 27}`, nil
	}
	return "", errors.New("unrecognized system instructions")
}

func (m *stubModel) GetModel(llm.ModelTier) string { return "stub" }

func (m *stubModel) Close() error { return nil }

func newTestServer(t *testing.T, model llm.Client) *Server {
	t.Helper()
	t.Setenv("JWT_SECRET", "")

	if model == nil {
		model = &stubModel{}
	}
	eng := engine.New(model, store.NewMemoryStore(), nil, engine.Config{CallTimeout: 5 * time.Second})
	srv, err := New(eng, Config{Addr: ":0"})
	require.NoError(t, err)
	return srv
}

// testMux routes straight to the handlers, bypassing the rate limiter so
// tests can issue as many requests as they need.
func testMux(srv *Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /customizations", srv.authenticated(http.HandlerFunc(srv.handleCreateCustomization)))
	mux.Handle("GET /customizations/{id}", srv.authenticated(http.HandlerFunc(srv.handleGetCustomization)))
	mux.Handle("GET /customizations/{id}/events", srv.authenticated(http.HandlerFunc(srv.handleCustomizationEvents)))
	mux.Handle("POST /customizations/{id}/cancel", srv.authenticated(http.HandlerFunc(srv.handleCancelCustomization)))
	mux.HandleFunc("GET /health", srv.handleHealth)
	return mux
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createJob(t *testing.T, mux *http.ServeMux) string {
	t.Helper()
	rec := doJSON(t, mux, http.MethodPost, "/customizations",
		`{"resume": `+mustQuote(testResume)+`, "target": "Senior Go engineer"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp CustomizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, err := uuid.Parse(resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, "pending", resp.Status)
	return resp.JobID
}

func mustQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func waitForStatus(t *testing.T, mux *http.ServeMux, jobID string, want types.JobStatus) StatusResponse {
	t.Helper()
	var last StatusResponse
	require.Eventually(t, func() bool {
		rec := doJSON(t, mux, http.MethodGet, "/customizations/"+jobID, "")
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &last); err != nil {
			return false
		}
		return last.Status == want
	}, 5*time.Second, 10*time.Millisecond, "job never reached status %s (last: %+v)", want, last)
	return last
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv.httpServer.Handler, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv.httpServer.Handler, http.MethodOptions, "/customizations", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCreateCustomizationValidation(t *testing.T) {
	mux := testMux(newTestServer(t, nil))

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"missing resume", `{"target": "Go engineer"}`, "resume is required"},
		{"missing target", `{"resume": "text"}`, "target or target_url is required"},
		{"both target forms", `{"resume": "text", "target": "a", "target_url": "https://example.com"}`, "mutually exclusive"},
		{"unknown field", `{"resume": "text", "target": "a", "bogus": true}`, "Invalid request body"},
		{"malformed JSON", `{"resume":`, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, mux, http.MethodPost, "/customizations", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
		})
	}
}

func TestCreateCustomizationRunsToCompletion(t *testing.T) {
	mux := testMux(newTestServer(t, nil))

	jobID := createJob(t, mux)
	status := waitForStatus(t, mux, jobID, types.StatusCompleted)

	require.NotNil(t, status.Evaluation)
	assert.Equal(t, 55, status.Evaluation.MatchScore)
	require.NotNil(t, status.Verification)
	assert.True(t, status.Verification.IsTruthful)
	require.NotNil(t, status.Diff)
	assert.NotEmpty(t, status.CompletedAt)
}

func TestGetCustomizationErrors(t *testing.T) {
	mux := testMux(newTestServer(t, nil))

	rec := doJSON(t, mux, http.MethodGet, "/customizations/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/customizations/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid job ID")
}

func TestCancelRunningJob(t *testing.T) {
	model := &stubModel{gate: make(chan struct{})}
	mux := testMux(newTestServer(t, model))

	jobID := createJob(t, mux)

	rec := doJSON(t, mux, http.MethodPost, "/customizations/"+jobID+"/cancel", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "cancelling")

	close(model.gate)
	status := waitForStatus(t, mux, jobID, types.StatusFailed)
	// Either the stage observed the cancellation mid-call or the engine
	// stopped at the next stage boundary; both spellings carry "cancel".
	assert.Contains(t, status.Error, "cancel")
}

func TestCancelFinishedJobConflicts(t *testing.T) {
	mux := testMux(newTestServer(t, nil))

	jobID := createJob(t, mux)
	waitForStatus(t, mux, jobID, types.StatusCompleted)

	rec := doJSON(t, mux, http.MethodPost, "/customizations/"+jobID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "completed")
}

func TestCancelUnknownJob(t *testing.T) {
	mux := testMux(newTestServer(t, nil))
	rec := doJSON(t, mux, http.MethodPost, "/customizations/"+uuid.NewString()+"/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsUnknownJob(t *testing.T) {
	mux := testMux(newTestServer(t, nil))
	rec := doJSON(t, mux, http.MethodGet, "/customizations/"+uuid.NewString()+"/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsStreamCompletesForFinishedJob(t *testing.T) {
	mux := testMux(newTestServer(t, nil))

	jobID := createJob(t, mux)
	waitForStatus(t, mux, jobID, types.StatusCompleted)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/customizations/"+jobID+"/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: complete")
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
}

func TestEventsLateSubscriberStillCompletes(t *testing.T) {
	srv := newTestServer(t, nil)
	mux := testMux(srv)

	jobID := createJob(t, mux)
	waitForStatus(t, mux, jobID, types.StatusCompleted)

	// Force the registry teardown that normally happens once the grace
	// period elapses, then connect late.
	id, err := uuid.Parse(jobID)
	require.NoError(t, err)
	srv.engine.Progress().Close(id, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/customizations/"+jobID+"/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.NoError(t, ctx.Err(), "stream for a finished job must complete immediately, not block")
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: complete")
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
}

func TestAuthRequiredWhenSecretConfigured(t *testing.T) {
	t.Setenv("JWT_SECRET", "integration-test-secret")

	eng := engine.New(&stubModel{}, store.NewMemoryStore(), nil, engine.Config{CallTimeout: 5 * time.Second})
	srv, err := New(eng, Config{Addr: ":0"})
	require.NoError(t, err)
	require.NotNil(t, srv.jwtService)
	mux := testMux(srv)

	body := `{"resume": "text", "target": "Go engineer"}`

	rec := doJSON(t, mux, http.MethodPost, "/customizations", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/customizations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := srv.jwtService.GenerateToken("user-1")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/customizations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	// Health stays open.
	rec = doJSON(t, mux, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
