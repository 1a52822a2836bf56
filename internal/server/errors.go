package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jonathan/resume-tailor/internal/store"
)

// timeFormat is the wire format for timestamps.
const timeFormat = time.RFC3339

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var notFound *store.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
