package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse mirrors the API's own error shape so gateway callers parse one format.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// writeJSON writes data as a JSON response with the given status code.
// Encoding failures are logged; the status line has already been sent by then.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

func writeJSONError(ctx context.Context, w http.ResponseWriter, detail string, status int) {
	writeJSON(ctx, w, ErrorResponse{Detail: detail}, status)
}
