package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/forgeworks/draftforge/pkg/auth"
	"github.com/forgeworks/draftforge/pkg/scheduler"
	"github.com/forgeworks/draftforge/pkg/services"
	"github.com/forgeworks/draftforge/pkg/tier"
)

// errorBody is the JSON error envelope: a message plus the stable error_type
// clients branch on.
type errorBody struct {
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}

// apiError carries the HTTP status plus the error envelope. It implements
// echo's HTTPStatusCoder and json.Marshaler, so the default error handler
// writes the envelope verbatim under the right status code.
type apiError struct {
	Code int
	Body errorBody
}

func (e *apiError) StatusCode() int { return e.Code }

func (e *apiError) MarshalJSON() ([]byte, error) { return json.Marshal(e.Body) }

func (e *apiError) Error() string {
	return fmt.Sprintf("code=%d, error_type=%s, message=%s", e.Code, e.Body.ErrorType, e.Body.Message)
}

func httpError(status int, errType, message string) *apiError {
	return &apiError{Code: status, Body: errorBody{Message: message, ErrorType: errType}}
}

// mapAuthError maps credential failures to 401 responses.
func mapAuthError(err error) *apiError {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return httpError(http.StatusUnauthorized, "Unauthorized", "missing bearer token")
	case errors.Is(err, auth.ErrExpiredToken):
		return httpError(http.StatusUnauthorized, "Expired", "token expired")
	default:
		return httpError(http.StatusUnauthorized, "InvalidToken", "invalid token")
	}
}

// mapServiceError maps scheduler and service errors to HTTP error responses.
func mapServiceError(err error) *apiError {
	var denial *tier.DenialError
	if errors.As(err, &denial) {
		status := http.StatusUnprocessableEntity
		if denial.Kind == tier.DenialTypeNotAllowed {
			status = http.StatusForbidden
		}
		return httpError(status, string(denial.Kind), denial.Message)
	}
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return httpError(http.StatusBadRequest, "ValidationFailed", validErr.Error())
	}
	if errors.Is(err, scheduler.ErrTooManyInFlight) {
		return httpError(http.StatusConflict, "TooManyInFlight", "too many jobs in flight; retry after one completes")
	}
	if errors.Is(err, services.ErrNotFound) {
		return httpError(http.StatusNotFound, "NotFound", "resource not found")
	}
	if errors.Is(err, services.ErrForbidden) {
		return httpError(http.StatusForbidden, "Forbidden", "not allowed for this principal")
	}
	if errors.Is(err, services.ErrNotCancellable) {
		return httpError(http.StatusConflict, "NotCancellable", "job is already in a terminal state")
	}
	if errors.Is(err, services.ErrConcurrentModification) {
		return httpError(http.StatusConflict, "ConcurrentModification", "lost a concurrent update; retry")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return httpError(http.StatusInternalServerError, "Internal", "internal server error")
}
