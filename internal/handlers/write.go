package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/maneesh/voicehub/internal/apperr"
	"github.com/maneesh/voicehub/internal/auth"
	"github.com/maneesh/voicehub/internal/models"
	"github.com/maneesh/voicehub/internal/uploads"
)

// formOverhead is allowed on top of the largest category size for the
// multipart envelope of a small-file upload.
const formOverhead = 1 << 20

// memoryLimit is the part of a multipart form kept in memory; the rest
// spills to temporary files.
const memoryLimit = 32 << 20

// UploadService is the server-side upload flow.
type UploadService interface {
	Initiate(ctx context.Context, id *auth.Identity, req models.InitiateRequest) (*models.InitiateResponse, error)
	SignParts(ctx context.Context, id *auth.Identity, req models.SignPartsRequest) (*models.SignPartsResponse, error)
	Complete(ctx context.Context, id *auth.Identity, req models.CompleteRequest) (*models.CompleteResponse, error)
	Abort(ctx context.Context, id *auth.Identity, req models.AbortRequest) error
	UploadSmall(ctx context.Context, id *auth.Identity, in uploads.SmallUpload) (*models.SmallUploadResponse, error)
	DeleteObject(ctx context.Context, id *auth.Identity, key string) error
	ListObjects(ctx context.Context, id *auth.Identity, limit int) ([]*models.StoredObject, error)
}

// WriteHandler serves the endpoints that create or discard uploads
type WriteHandler struct {
	svc          UploadService
	maxSmallBody int64
}

// NewWriteHandler creates a new write handler
func NewWriteHandler(svc UploadService) *WriteHandler {
	return &WriteHandler{
		svc:          svc,
		maxSmallBody: models.MaxCategorySize() + formOverhead,
	}
}

// Initiate handles POST /api/upload/chunked
func (wh *WriteHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req models.InitiateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := wh.svc.Initiate(r.Context(), identity(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SignParts handles POST /api/upload/chunked/sign
func (wh *WriteHandler) SignParts(w http.ResponseWriter, r *http.Request) {
	var req models.SignPartsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := wh.svc.SignParts(r.Context(), identity(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Complete handles PUT /api/upload/chunked
func (wh *WriteHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req models.CompleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := wh.svc.Complete(r.Context(), identity(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Abort handles DELETE /api/upload/chunked
func (wh *WriteHandler) Abort(w http.ResponseWriter, r *http.Request) {
	var req models.AbortRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := wh.svc.Abort(r.Context(), identity(r), req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SuccessResponse{Success: true})
}

// UploadSmall handles POST /api/upload, a multipart form with fields file and type
func (wh *WriteHandler) UploadSmall(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, wh.maxSmallBody)
	if err := r.ParseMultipartForm(memoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, apperr.InvalidArgument("file too large"))
			return
		}
		writeError(w, r, apperr.MissingParameter("multipart form with a file field is required"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apperr.MissingParameter("file is required"))
		return
	}
	defer file.Close()

	resp, err := wh.svc.UploadSmall(r.Context(), identity(r), uploads.SmallUpload{
		Category:    r.FormValue("type"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteObject handles DELETE /api/upload
func (wh *WriteHandler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteObjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := wh.svc.DeleteObject(r.Context(), identity(r), req.Key); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SuccessResponse{Success: true})
}

func identity(r *http.Request) *auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}
