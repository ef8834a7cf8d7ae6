package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/maneesh/voicehub/internal/apperr"
	"github.com/maneesh/voicehub/internal/models"
	"go.opentelemetry.io/otel/trace"
)

// maxJSONBody caps JSON request bodies. A finalize with 10000 parts fits.
const maxJSONBody = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// writeError translates err into its status and JSON body. Causes are
// logged, never sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.Status(kind)

	if status >= http.StatusInternalServerError {
		trace.SpanFromContext(r.Context()).RecordError(err)
		slog.Error("Request failed", "path", r.URL.Path, "kind", kind, "error", err)
	} else {
		slog.Debug("Request rejected", "path", r.URL.Path, "kind", kind, "error", err)
	}

	writeJSON(w, status, models.ErrorResponse{
		Error: apperr.PublicMessage(err),
		Code:  string(kind),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.InvalidArgument("request body too large")
		}
		return apperr.InvalidArgument("invalid JSON body")
	}
	return nil
}
