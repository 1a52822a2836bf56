// Package llm - errors.go classifies failures at the model boundary.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// Kind classifies a model invocation failure. Every error crossing the
// ModelClient boundary carries exactly one classification.
type Kind string

// Failure classifications for model invocations.
const (
	KindRateLimited   Kind = "rate_limited"
	KindTimeout       Kind = "timeout"
	KindInvalidOutput Kind = "invalid_output"
	KindProviderError Kind = "provider_error"
)

// Error is a classified model invocation failure.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("model error (%s): %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("model error (%s): %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds a classified error with the given kind.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Classify wraps a raw provider error into a classified Error. Already
// classified errors pass through unchanged.
func Classify(err error, message string) *Error {
	var me *Error
	if errors.As(err, &me) {
		return me
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, message, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return NewError(KindRateLimited, message, err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return NewError(KindTimeout, message, err)
		}
	}

	return NewError(KindProviderError, message, err)
}

// IsTransient reports whether err is a classified model error worth
// re-invoking as-is: rate limits, timeouts and provider-side failures.
// Invalid output is not transient; re-sending the same prompt is the
// validator retry loop's job, not the scheduler's.
func IsTransient(err error) bool {
	var me *Error
	if !errors.As(err, &me) {
		return false
	}
	switch me.Kind {
	case KindRateLimited, KindTimeout, KindProviderError:
		return true
	}
	return false
}

// KindOf returns the classification of err, or KindProviderError when err is
// not a classified model error.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindProviderError
}
