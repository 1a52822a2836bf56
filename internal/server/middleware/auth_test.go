package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	subject string
	err     error
}

type fakeSubject string

func (s fakeSubject) GetSubject() string { return string(s) }

func (v *fakeValidator) ValidateToken(token string) (SubjectGetter, error) {
	if v.err != nil {
		return nil, v.err
	}
	return fakeSubject(v.subject), nil
}

func serveWithAuth(validator TokenValidator, authHeader string) (*httptest.ResponseRecorder, string) {
	var gotSubject string
	handler := AuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, _ = GetSubject(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, gotSubject
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	rec, subject := serveWithAuth(&fakeValidator{subject: "user-7"}, "Bearer sometoken")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-7", subject)
}

func TestAuthMiddlewareCaseInsensitiveScheme(t *testing.T) {
	rec, subject := serveWithAuth(&fakeValidator{subject: "user-7"}, "bearer sometoken")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-7", subject)
}

func TestAuthMiddlewareRejections(t *testing.T) {
	tests := []struct {
		name      string
		validator TokenValidator
		header    string
	}{
		{"missing header", &fakeValidator{subject: "u"}, ""},
		{"wrong scheme", &fakeValidator{subject: "u"}, "Basic dXNlcjpwYXNz"},
		{"no token", &fakeValidator{subject: "u"}, "Bearer"},
		{"invalid token", &fakeValidator{err: errors.New("bad signature")}, "Bearer sometoken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := serveWithAuth(tt.validator, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestGetSubjectWithoutAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := GetSubject(req)
	require.Error(t, err)
}
