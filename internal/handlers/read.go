package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/maneesh/voicehub/internal/apperr"
	"github.com/maneesh/voicehub/internal/models"
)

// Pinger is a dependency the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadHandler serves read-only endpoints
type ReadHandler struct {
	svc    UploadService
	checks map[string]Pinger
}

// NewReadHandler creates a new read handler
func NewReadHandler(svc UploadService, checks map[string]Pinger) *ReadHandler {
	return &ReadHandler{svc: svc, checks: checks}
}

// ListObjects handles GET /api/upload?limit=N, listing the caller's files
func (rh *ReadHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, apperr.InvalidArgument("limit must be a positive integer"))
			return
		}
		limit = n
	}

	objects, err := rh.svc.ListObjects(r.Context(), identity(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ListObjectsResponse{Objects: objects})
}

// HealthResponse reports dependency status.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health handles GET /health
func (rh *ReadHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK
	for name, p := range rh.checks {
		if err := p.Ping(ctx); err != nil {
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}
