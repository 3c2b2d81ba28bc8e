package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/profile-sync/internal/credentials"
	"github.com/jonathan/profile-sync/internal/jobs"
	"github.com/jonathan/profile-sync/internal/scraper"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrNotFound indicates the requested resource does not exist for the caller
type ErrNotFound struct {
	Resource string
}

func (e *ErrNotFound) Error() string {
	return e.Resource + " not found"
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validationErr *ErrValidation
	var notFoundErr *ErrNotFound
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrNoStore), errors.Is(err, credentials.ErrStorageDisabled):
		return http.StatusServiceUnavailable
	}

	kind, ok := scraper.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case scraper.KindCredentialsMissing, scraper.KindInvalidRequest:
		return http.StatusBadRequest
	case scraper.KindLoginFailed:
		return http.StatusUnauthorized
	case scraper.KindSecurityChallenge, scraper.KindChallengeNoSession,
		scraper.KindContentTooShort, scraper.KindNoProfileSignal, scraper.KindProfileNotFound:
		return http.StatusUnprocessableEntity
	case scraper.KindSessionExpired:
		return http.StatusGone
	case scraper.KindSessionBusy:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	SessionKey string `json:"session_key,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
}

// newErrorBody builds the response for err. Unclassified errors get a generic message.
func newErrorBody(err error) errorBody {
	var validationErr *ErrValidation
	var notFoundErr *ErrNotFound
	switch {
	case errors.As(err, &validationErr):
		return errorBody{ErrorCode: "INVALID_REQUEST", Message: validationErr.Error()}
	case errors.As(err, &notFoundErr):
		return errorBody{ErrorCode: "NOT_FOUND", Message: notFoundErr.Error()}
	case errors.Is(err, jobs.ErrNoStore), errors.Is(err, credentials.ErrStorageDisabled):
		return errorBody{ErrorCode: "UNAVAILABLE", Message: err.Error()}
	}

	var se *scraper.Error
	if !errors.As(err, &se) {
		return errorBody{ErrorCode: jobs.CodeError, Message: "internal server error"}
	}
	body := errorBody{ErrorCode: jobs.ErrorCode(err), Message: se.Message}
	if body.Message == "" {
		body.Message = se.Error()
	}
	if key, ok := scraper.SessionKeyOf(err); ok {
		body.SessionKey = key
		body.Retryable = true
	}
	return body
}
