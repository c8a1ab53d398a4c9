package response

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/storehouse/accounts/internal/domain"
)

// Envelope is the response shape for every endpoint:
// {success, message, token?, data?} on success, {success, message, code} on error.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Token   string      `json:"token,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Common error codes
const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeAccountLocked   = "ACCOUNT_LOCKED"
	CodeAccountInactive = "ACCOUNT_INACTIVE"
	CodeRateLimit       = "RATE_LIMIT_EXCEEDED"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeExpiredToken    = "EXPIRED_TOKEN"
	CodeInvalidToken    = "INVALID_TOKEN"
)

func WriteJSON(w http.ResponseWriter, statusCode int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func WriteError(w http.ResponseWriter, statusCode int, message, code string) {
	WriteJSON(w, statusCode, Envelope{Success: false, Message: message, Code: code})
}

// WriteDomainError maps a sentinel error from the credential flow onto the
// HTTP status codes of the external contract. Unknown errors become 500s
// with a generic message so dependency failures leak nothing.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingCredentials),
		errors.Is(err, domain.ErrValidation):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeInvalidInput)
	case errors.Is(err, domain.ErrDuplicateAccount):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeConflict)
	case errors.Is(err, domain.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, err.Error(), CodeUnauthorized)
	case errors.Is(err, domain.ErrAccountLocked):
		WriteError(w, http.StatusLocked, err.Error(), CodeAccountLocked)
	case errors.Is(err, domain.ErrAccountInactive):
		WriteError(w, http.StatusForbidden, err.Error(), CodeAccountInactive)
	case errors.Is(err, domain.ErrTokenExpired):
		WriteError(w, http.StatusUnauthorized, err.Error(), CodeExpiredToken)
	case errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrTokenStale):
		WriteError(w, http.StatusUnauthorized, "invalid token", CodeInvalidToken)
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), CodeNotFound)
	default:
		WriteError(w, http.StatusInternalServerError, "something went wrong", CodeInternalError)
	}
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}
