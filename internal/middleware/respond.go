package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"docsearch/internal/apperr"
)

// WriteJSON encodes v with the given status.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// WriteError maps err's kind to a status and writes the error payload.
func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if kind.Status() >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request failed", "kind", kind.String(), "error", err)
	} else {
		slog.WarnContext(ctx, "request rejected", "kind", kind.String(), "error", err)
	}
	WriteJSON(ctx, w, kind.Status(), map[string]string{
		"error":         apperr.Message(err),
		"code":          kind.Code(),
		"correlationId": GetCorrelationID(ctx),
	})
}
