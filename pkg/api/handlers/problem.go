// Package handlers provides the HTTP handlers of the eec services.
//
// Every failure is answered with an RFC 7807 problem document. Repository
// errors are mapped by their sentinel (see statusOf); guard failures by
// WriteGuardError. Handlers answering 500 or above make the request guard
// drop their changes, so anything that may have mutated state must fail
// through writeError.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eecworkbench/eec/internal/logger"
	"github.com/eecworkbench/eec/pkg/models"
)

// ContentTypeProblemJSON is the media type of problem responses.
const ContentTypeProblemJSON = "application/problem+json"

// Problem is the body of an error response. Title is the standard reason
// phrase of Status.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// WriteProblem answers with status and detail. A 401 also carries the
// bearer challenge.
func WriteProblem(w http.ResponseWriter, status int, detail string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="eec"`)
	}
	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

// BadRequest answers a body or query that could not be parsed.
func BadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusBadRequest, detail)
}

// UnprocessableEntity answers a well-formed request with invalid values.
func UnprocessableEntity(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusUnprocessableEntity, detail)
}

// Unauthorized answers a missing or rejected credential.
func Unauthorized(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusUnauthorized, detail)
}

// Forbidden answers an authenticated caller lacking a scope.
func Forbidden(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusForbidden, detail)
}

// ServiceUnavailable answers when a dependency (data locks, the auth
// service) did not respond in time.
func ServiceUnavailable(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusServiceUnavailable, detail)
}

// statusOf maps repository errors to HTTP statuses. Anything unknown,
// including models.ErrIOFailure, is a 500.
func statusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyExists),
		errors.Is(err, models.ErrAlreadyInCluster),
		errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalid), errors.Is(err, models.ErrInvalidScope):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers a repository error. Server-side failures are logged
// and their detail withheld.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status < http.StatusInternalServerError {
		WriteProblem(w, status, err.Error())
		return
	}
	logger.ErrorCtx(r.Context(), "Request failed", logger.Err(err))
	WriteProblem(w, status, "internal error")
}

// WriteGuardError answers a failure of the request guard: the data locks
// were not taken in time (503), or a snapshot could not be read or written
// (500).
func WriteGuardError(w http.ResponseWriter, r *http.Request, err error) {
	logger.ErrorCtx(r.Context(), "Request guard failed", logger.Err(err))
	if statusOf(err) == http.StatusServiceUnavailable {
		ServiceUnavailable(w, "timed out waiting for the data lock")
		return
	}
	WriteProblem(w, http.StatusInternalServerError, "storage unavailable")
}
