package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/draftforge/pkg/auth"
	"github.com/forgeworks/draftforge/pkg/scheduler"
	"github.com/forgeworks/draftforge/pkg/services"
	"github.com/forgeworks/draftforge/pkg/tier"
)

func TestAPIErrorEnvelope(t *testing.T) {
	e := httpError(http.StatusConflict, "TooManyInFlight", "too many jobs in flight")

	// Status comes from HTTPStatusCoder, the body from the marshaled envelope.
	assert.Equal(t, http.StatusConflict, e.StatusCode())

	data, err := json.Marshal(e)
	require.NoError(t, err)
	var body errorBody
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "TooManyInFlight", body.ErrorType)
	assert.Equal(t, "too many jobs in flight", body.Message)
}

func TestMapAuthError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		errType string
	}{
		{"missing", auth.ErrMissingToken, "Unauthorized"},
		{"expired", auth.ErrExpiredToken, "Expired"},
		{"invalid", auth.ErrInvalidToken, "InvalidToken"},
		{"wrapped invalid", fmt.Errorf("%w: bad signature", auth.ErrInvalidToken), "InvalidToken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapAuthError(tt.err)
			assert.Equal(t, http.StatusUnauthorized, he.Code)
			assert.Equal(t, tt.errType, he.Body.ErrorType)
		})
	}
}

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		errType string
	}{
		{
			"type denial",
			&tier.DenialError{Kind: tier.DenialTypeNotAllowed, Message: "no video on free"},
			http.StatusForbidden, "TypeNotAllowedForTier",
		},
		{
			"empty topic denial",
			&tier.DenialError{Kind: tier.DenialEmptyTopic, Message: "topic must not be empty"},
			http.StatusUnprocessableEntity, "EmptyTopic",
		},
		{
			"validation",
			services.NewValidationError("tier", "unknown tier"),
			http.StatusBadRequest, "ValidationFailed",
		},
		{"too many in flight", scheduler.ErrTooManyInFlight, http.StatusConflict, "TooManyInFlight"},
		{"not found", services.ErrNotFound, http.StatusNotFound, "NotFound"},
		{"wrapped not found", fmt.Errorf("fetching job: %w", services.ErrNotFound), http.StatusNotFound, "NotFound"},
		{"forbidden", services.ErrForbidden, http.StatusForbidden, "Forbidden"},
		{"not cancellable", services.ErrNotCancellable, http.StatusConflict, "NotCancellable"},
		{"concurrent modification", services.ErrConcurrentModification, http.StatusConflict, "ConcurrentModification"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "Internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapServiceError(tt.err)
			assert.Equal(t, tt.status, he.Code)
			assert.Equal(t, tt.errType, he.Body.ErrorType)
		})
	}
}
