package httpapi

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/docportal"
)

func (h *Handler) logOperationError(ctx context.Context, operation string, statusCode int, code, message string, err error) {
	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", statusCode,
		"error_code", code,
		"message", message,
		"request_id", docportal.RequestIDFromContext(ctx),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	if statusCode >= 500 {
		h.logger.ErrorContext(ctx, "http operation failed", fields...)
		return
	}
	h.logger.WarnContext(ctx, "http operation failed", fields...)
}

func scopedLogger(base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("component", "httpapi")
}
