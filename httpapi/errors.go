package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/docportal"
	"github.com/MrEthical07/docportal/catalog"
)

// mapError translates domain errors into a status, a stable code and a
// client-safe message.
func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "not_found", "resource not found"
	case errors.Is(err, catalog.ErrInvalid):
		return http.StatusBadRequest, "validation_error", err.Error()
	case errors.Is(err, catalog.ErrForbidden):
		return http.StatusForbidden, "forbidden", "not allowed to modify this resource"
	case errors.Is(err, catalog.ErrUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable", "catalog storage unavailable"
	case errors.Is(err, docportal.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case errors.Is(err, docportal.ErrCredentialInvalid):
		return http.StatusUnauthorized, "session_expired", "session expired"
	case errors.Is(err, docportal.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", "too many requests"
	case errors.Is(err, docportal.ErrAccountExists):
		return http.StatusConflict, "account_exists", "an account with this email already exists"
	case errors.Is(err, docportal.ErrSignupInvalid):
		return http.StatusBadRequest, "signup_invalid", err.Error()
	case errors.Is(err, docportal.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, "backend_unavailable", "authentication backend unavailable"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func (h *Handler) writeMappedError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	status, code, msg := mapError(err)
	h.logOperationError(ctx, operation, status, code, msg, err)
	writeError(w, status, code, msg)
}

func (h *Handler) writeValidationError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	code := "validation_error"
	msg := err.Error()
	h.logOperationError(ctx, operation, http.StatusBadRequest, code, msg, err)
	writeError(w, http.StatusBadRequest, code, msg)
}
