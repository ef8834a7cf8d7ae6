// Package uploads implements the server side of the direct-to-storage upload
// flow: opening multipart sessions, re-signing part URLs, finalizing,
// aborting, the single-request small-file path and object deletion.
package uploads

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/maneesh/voicehub/internal/apperr"
	"github.com/maneesh/voicehub/internal/auth"
	"github.com/maneesh/voicehub/internal/models"
	"github.com/maneesh/voicehub/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("voicehub-uploads")

const (
	// DefaultPartURLExpiry bounds the lifetime of presigned part URLs.
	DefaultPartURLExpiry = time.Hour

	// DefaultListLimit and MaxListLimit bound ListObjects pages.
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ObjectStore is the object storage collaborator.
type ObjectStore interface {
	CreateMultipart(ctx context.Context, key, contentType string) (string, error)
	PresignPart(ctx context.Context, key, uploadID string, partNumber int, expiry time.Duration) (string, error)
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []models.UploadPart) (string, error)
	AbortMultipart(ctx context.Context, key, uploadID string) error
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	StatObject(ctx context.Context, key string) (*storage.ObjectStat, error)
	RemoveObject(ctx context.Context, key string) error
	PublicURL(key string) string
	Endpoint() string
	Bucket() string
	Region() string
}

// SessionRegistry tracks open multipart sessions.
type SessionRegistry interface {
	PutSession(ctx context.Context, s *models.UploadSession) error
	GetSession(ctx context.Context, uploadID string) (*models.UploadSession, error)
	DeleteSession(ctx context.Context, uploadID string) error
}

// Ledger records stored objects.
type Ledger interface {
	CreateObject(ctx context.Context, obj *models.StoredObject) error
	DeleteObject(ctx context.Context, key string) error
	ListObjectsByOwner(ctx context.Context, ownerID string, limit int) ([]*models.StoredObject, error)
}

// Observer receives one call per finished operation.
type Observer interface {
	Observe(op string, bytes int64, err error)
}

// Config holds the optional collaborators and tunables of a Service.
type Config struct {
	PartURLExpiry time.Duration
	// PartSize is the smallest part a client may send, except the last.
	// It bounds totalChunks for a declared file size. Values below
	// models.MinPartSize are raised to it.
	PartSize      int64
	Logger        *slog.Logger
	Observer      Observer
	Now           func() time.Time
}

// Service implements the upload operations. Registry and ledger writes are
// best-effort: the object store stays the source of truth.
type Service struct {
	store    ObjectStore
	registry SessionRegistry
	ledger   Ledger
	observer Observer
	logger   *slog.Logger
	expiry   time.Duration
	partSize int64
	now      func() time.Time
}

// NewService builds a Service. registry and ledger may be nil.
func NewService(store ObjectStore, registry SessionRegistry, ledger Ledger, cfg Config) *Service {
	s := &Service{
		store:    store,
		registry: registry,
		ledger:   ledger,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		expiry:   cfg.PartURLExpiry,
		partSize: cfg.PartSize,
		now:      cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.expiry <= 0 {
		s.expiry = DefaultPartURLExpiry
	}
	if s.partSize < models.MinPartSize {
		s.partSize = models.MinPartSize
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Initiate validates the request, opens a multipart session and presigns
// one PUT URL per declared part.
func (s *Service) Initiate(ctx context.Context, id *auth.Identity, req models.InitiateRequest) (_ *models.InitiateResponse, err error) {
	ctx, span := tracer.Start(ctx, "uploads.initiate",
		trace.WithAttributes(
			attribute.String("file_category", req.FileCategory),
			attribute.Int("total_chunks", req.TotalChunks),
			attribute.Int64("file_size", req.FileSize),
		),
	)
	defer func() { s.finish(span, "initiate", 0, err) }()

	if id == nil {
		return nil, apperr.Unauthorized("authentication required")
	}
	if req.FileName == "" || req.FileType == "" || req.FileCategory == "" || req.TotalChunks == 0 {
		return nil, apperr.MissingParameter("fileName, fileType, fileCategory and totalChunks are required")
	}

	category, err := models.ParseCategory(req.FileCategory)
	if err != nil {
		return nil, apperr.InvalidArgument("unknown file category %q", req.FileCategory)
	}
	if !category.Allows(req.FileType) {
		return nil, apperr.InvalidArgument("file type %s is not allowed for %s", req.FileType, category)
	}
	if req.FileSize < 0 {
		return nil, apperr.InvalidArgument("fileSize must not be negative")
	}
	if req.FileSize > 0 {
		if err := category.CheckSize(req.FileSize); err != nil {
			return nil, apperr.InvalidArgument("%v", err)
		}
	}
	if req.TotalChunks < 1 || req.TotalChunks > models.MaxTotalParts {
		return nil, apperr.InvalidArgument("totalChunks must be between 1 and %d", models.MaxTotalParts)
	}
	if req.FileSize > 0 && req.TotalChunks > maxPartsFor(req.FileSize, s.partSize) {
		return nil, apperr.InvalidArgument("totalChunks %d is too many for a %d byte file with %d byte parts", req.TotalChunks, req.FileSize, s.partSize)
	}

	now := s.now().UTC()
	key, err := models.NewObjectKey(category, id.UserID, req.FileName, now)
	if err != nil {
		return nil, apperr.InvalidArgument("%v", err)
	}
	objectKey := key.String()
	span.SetAttributes(attribute.String("object_key", objectKey))

	uploadID, err := s.store.CreateMultipart(ctx, objectKey, req.FileType)
	if err != nil {
		return nil, apperr.UpstreamUnavailable(err, "failed to open upload session")
	}

	numbers := make([]int, req.TotalChunks)
	for i := range numbers {
		numbers[i] = i + 1
	}
	parts, err := s.presign(ctx, objectKey, uploadID, numbers)
	if err != nil {
		s.abortQuietly(ctx, objectKey, uploadID)
		return nil, apperr.UpstreamUnavailable(err, "failed to sign part urls")
	}

	s.register(ctx, &models.UploadSession{
		UploadID:    uploadID,
		Key:         objectKey,
		OwnerID:     id.UserID,
		Category:    category,
		FileName:    req.FileName,
		ContentType: req.FileType,
		FileSize:    req.FileSize,
		TotalParts:  req.TotalChunks,
		CreatedAt:   now,
	})

	s.logger.Info("Upload initiated",
		"upload_id", uploadID,
		"key", objectKey,
		"owner", id.UserID,
		"parts", req.TotalChunks,
	)

	return &models.InitiateResponse{
		UploadID:  uploadID,
		Key:       objectKey,
		FileName:  req.FileName,
		FileType:  req.FileType,
		Endpoint:  s.store.Endpoint(),
		Bucket:    s.store.Bucket(),
		Region:    s.store.Region(),
		ExpiresAt: now.Add(s.expiry),
		PartSize:  s.partSize,
		Parts:     parts,
	}, nil
}

// SignParts re-issues presigned URLs for parts of an open session, for
// clients whose original URLs expired.
func (s *Service) SignParts(ctx context.Context, id *auth.Identity, req models.SignPartsRequest) (_ *models.SignPartsResponse, err error) {
	ctx, span := tracer.Start(ctx, "uploads.sign_parts",
		trace.WithAttributes(
			attribute.String("object_key", req.Key),
			attribute.String("upload_id", req.UploadID),
			attribute.Int("part_count", len(req.PartNumbers)),
		),
	)
	defer func() { s.finish(span, "sign_parts", 0, err) }()

	if err := authorize(id, req.Key); err != nil {
		return nil, err
	}
	if req.UploadID == "" || len(req.PartNumbers) == 0 {
		return nil, apperr.MissingParameter("uploadId and partNumbers are required")
	}

	session, err := s.checkSession(ctx, id, req.UploadID, req.Key)
	if err != nil {
		return nil, err
	}

	limit := models.MaxTotalParts
	if session != nil && session.TotalParts > 0 {
		limit = session.TotalParts
	}
	for _, n := range req.PartNumbers {
		if n < 1 || n > limit {
			return nil, apperr.InvalidArgument("part number %d outside 1..%d", n, limit)
		}
	}

	parts, err := s.presign(ctx, req.Key, req.UploadID, req.PartNumbers)
	if err != nil {
		return nil, apperr.UpstreamUnavailable(err, "failed to sign part urls")
	}

	return &models.SignPartsResponse{
		ExpiresAt: s.now().UTC().Add(s.expiry),
		Parts:     parts,
	}, nil
}

// Complete assembles the uploaded parts into the final object.
func (s *Service) Complete(ctx context.Context, id *auth.Identity, req models.CompleteRequest) (_ *models.CompleteResponse, err error) {
	ctx, span := tracer.Start(ctx, "uploads.complete",
		trace.WithAttributes(
			attribute.String("object_key", req.Key),
			attribute.String("upload_id", req.UploadID),
			attribute.Int("part_count", len(req.Parts)),
		),
	)
	var size int64
	defer func() { s.finish(span, "complete", size, err) }()

	if err := authorize(id, req.Key); err != nil {
		return nil, err
	}
	if req.UploadID == "" || len(req.Parts) == 0 {
		return nil, apperr.MissingParameter("uploadId, key and parts are required")
	}

	session, err := s.checkSession(ctx, id, req.UploadID, req.Key)
	if err != nil {
		return nil, err
	}

	totalParts := 0
	if session != nil {
		totalParts = session.TotalParts
	}
	if totalParts == 0 {
		s.logger.Warn("Declared part count unknown, trailing parts cannot be verified",
			"upload_id", req.UploadID,
			"key", req.Key,
			"parts", len(req.Parts),
		)
	}

	parts := make([]models.UploadPart, len(req.Parts))
	copy(parts, req.Parts)
	models.SortParts(parts)

	if err := models.ValidateParts(parts, totalParts); err != nil {
		return nil, apperr.UploadIncomplete(err, "upload is incomplete: %v", err)
	}

	etag, err := s.store.CompleteMultipart(ctx, req.Key, req.UploadID, parts)
	switch {
	case errors.Is(err, storage.ErrInvalidParts):
		return nil, apperr.UploadIncomplete(err, "object storage rejected the uploaded parts")
	case errors.Is(err, storage.ErrNoSuchUpload):
		return nil, apperr.InvalidArgument("upload session not found or already finished")
	case err != nil:
		return nil, apperr.UpstreamUnavailable(err, "failed to complete upload")
	}

	s.unregister(ctx, req.UploadID)

	url := s.store.PublicURL(req.Key)
	size = s.record(ctx, req.Key, url, etag, session)

	s.logger.Info("Upload completed",
		"upload_id", req.UploadID,
		"key", req.Key,
		"parts", len(parts),
	)

	return &models.CompleteResponse{URL: url, Key: req.Key, ETag: etag}, nil
}

// Abort discards a multipart session. Sessions that no longer exist count
// as aborted so the call can be repeated safely.
func (s *Service) Abort(ctx context.Context, id *auth.Identity, req models.AbortRequest) (err error) {
	ctx, span := tracer.Start(ctx, "uploads.abort",
		trace.WithAttributes(
			attribute.String("object_key", req.Key),
			attribute.String("upload_id", req.UploadID),
		),
	)
	defer func() { s.finish(span, "abort", 0, err) }()

	if err := authorize(id, req.Key); err != nil {
		return err
	}
	if req.UploadID == "" {
		return apperr.MissingParameter("uploadId and key are required")
	}

	if _, err := s.checkSession(ctx, id, req.UploadID, req.Key); err != nil {
		return err
	}

	err = s.store.AbortMultipart(ctx, req.Key, req.UploadID)
	switch {
	case errors.Is(err, storage.ErrNoSuchUpload):
		s.logger.Debug("Abort of unknown session treated as done", "upload_id", req.UploadID)
	case err != nil:
		return apperr.UpstreamUnavailable(err, "failed to abort upload")
	}

	s.unregister(ctx, req.UploadID)
	s.logger.Info("Upload aborted", "upload_id", req.UploadID, "key", req.Key)
	return nil
}

// SmallUpload is a whole file sent in one request.
type SmallUpload struct {
	Category    string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadSmall stores a whole file in one request. Category rules are checked
// before anything reaches the object store.
func (s *Service) UploadSmall(ctx context.Context, id *auth.Identity, in SmallUpload) (_ *models.SmallUploadResponse, err error) {
	ctx, span := tracer.Start(ctx, "uploads.upload_small",
		trace.WithAttributes(
			attribute.String("file_category", in.Category),
			attribute.Int64("file_size", in.Size),
		),
	)
	var size int64
	defer func() { s.finish(span, "upload_small", size, err) }()

	if id == nil {
		return nil, apperr.Unauthorized("authentication required")
	}
	if in.FileName == "" || in.Body == nil {
		return nil, apperr.MissingParameter("file is required")
	}

	categoryName := in.Category
	if categoryName == "" {
		categoryName = string(models.CategoryGeneral)
	}
	category, err := models.ParseCategory(categoryName)
	if err != nil {
		return nil, apperr.InvalidArgument("unknown file category %q", in.Category)
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if !category.Allows(contentType) {
		return nil, apperr.InvalidArgument("file type %s is not allowed for %s", contentType, category)
	}
	if in.Size <= 0 {
		return nil, apperr.InvalidArgument("file is empty")
	}
	if err := category.CheckSize(in.Size); err != nil {
		return nil, apperr.InvalidArgument("%v", err)
	}

	now := s.now().UTC()
	key, err := models.NewObjectKey(category, id.UserID, in.FileName, now)
	if err != nil {
		return nil, apperr.InvalidArgument("%v", err)
	}
	objectKey := key.String()

	etag, err := s.store.PutObject(ctx, objectKey, in.Body, in.Size, contentType)
	if err != nil {
		return nil, apperr.UpstreamUnavailable(err, "failed to store file")
	}

	url := s.store.PublicURL(objectKey)
	s.recordObject(ctx, &models.StoredObject{
		Key:         objectKey,
		URL:         url,
		OwnerID:     id.UserID,
		Category:    category,
		Size:        in.Size,
		ContentType: contentType,
		ETag:        etag,
		CreatedAt:   now,
	})
	size = in.Size

	s.logger.Info("Small file stored", "key", objectKey, "size", in.Size)

	return &models.SmallUploadResponse{
		URL:  url,
		Name: in.FileName,
		Size: in.Size,
		Type: contentType,
		Key:  objectKey,
	}, nil
}

// DeleteObject removes a stored object owned by the caller.
func (s *Service) DeleteObject(ctx context.Context, id *auth.Identity, key string) (err error) {
	ctx, span := tracer.Start(ctx, "uploads.delete_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
		),
	)
	defer func() { s.finish(span, "delete_object", 0, err) }()

	if err := authorize(id, key); err != nil {
		return err
	}

	err = s.store.RemoveObject(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return apperr.UpstreamUnavailable(err, "failed to delete file")
	}

	if s.ledger != nil {
		if err := s.ledger.DeleteObject(ctx, key); err != nil {
			s.logger.Warn("Failed to delete object record", "key", key, "error", err)
		}
	}

	s.logger.Info("Object deleted", "key", key)
	return nil
}

// ListObjects returns the caller's newest stored objects.
func (s *Service) ListObjects(ctx context.Context, id *auth.Identity, limit int) (_ []*models.StoredObject, err error) {
	ctx, span := tracer.Start(ctx, "uploads.list_objects")
	defer func() { s.finish(span, "list_objects", 0, err) }()

	if id == nil {
		return nil, apperr.Unauthorized("authentication required")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if s.ledger == nil {
		return []*models.StoredObject{}, nil
	}

	objects, err := s.ledger.ListObjectsByOwner(ctx, id.UserID, limit)
	if err != nil {
		return nil, apperr.UpstreamUnavailable(err, "failed to list files")
	}
	if objects == nil {
		objects = []*models.StoredObject{}
	}
	return objects, nil
}

// authorize is the ownership check shared by every operation on an
// existing key.
func authorize(id *auth.Identity, key string) error {
	if id == nil {
		return apperr.Unauthorized("authentication required")
	}
	if key == "" {
		return apperr.MissingParameter("key is required")
	}
	if !models.OwnedBy(key, id.UserID) {
		return apperr.Forbidden("you do not have access to this file")
	}
	return nil
}

// checkSession cross-checks the registered session, when there is one,
// against the caller and key.
func (s *Service) checkSession(ctx context.Context, id *auth.Identity, uploadID, key string) (*models.UploadSession, error) {
	if s.registry == nil {
		return nil, nil
	}

	session, err := s.registry.GetSession(ctx, uploadID)
	if err != nil {
		s.logger.Warn("Session registry lookup failed", "upload_id", uploadID, "error", err)
		return nil, nil
	}
	if session == nil {
		return nil, nil
	}

	if session.OwnerID != id.UserID {
		return nil, apperr.Forbidden("you do not have access to this upload")
	}
	if session.Key != key {
		return nil, apperr.InvalidArgument("uploadId does not belong to key")
	}
	return session, nil
}

func (s *Service) presign(ctx context.Context, key, uploadID string, numbers []int) ([]models.PartURL, error) {
	parts := make([]models.PartURL, 0, len(numbers))
	for _, n := range numbers {
		u, err := s.store.PresignPart(ctx, key, uploadID, n, s.expiry)
		if err != nil {
			return nil, err
		}
		parts = append(parts, models.PartURL{PartNumber: n, URL: u})
	}
	return parts, nil
}

func (s *Service) register(ctx context.Context, session *models.UploadSession) {
	if s.registry == nil {
		return
	}
	if err := s.registry.PutSession(ctx, session); err != nil {
		s.logger.Warn("Failed to register upload session", "upload_id", session.UploadID, "error", err)
	}
}

func (s *Service) unregister(ctx context.Context, uploadID string) {
	if s.registry == nil {
		return
	}
	if err := s.registry.DeleteSession(ctx, uploadID); err != nil {
		s.logger.Warn("Failed to unregister upload session", "upload_id", uploadID, "error", err)
	}
}

func (s *Service) abortQuietly(ctx context.Context, key, uploadID string) {
	if err := s.store.AbortMultipart(ctx, key, uploadID); err != nil && !errors.Is(err, storage.ErrNoSuchUpload) {
		s.logger.Warn("Failed to abort upload session", "upload_id", uploadID, "error", err)
	}
}

// record writes the ledger row for a completed multipart object and
// returns its size, or zero when it is unknown.
func (s *Service) record(ctx context.Context, key, url, etag string, session *models.UploadSession) int64 {
	if s.ledger == nil {
		return 0
	}

	parsed, err := models.ParseObjectKey(key)
	if err != nil {
		return 0
	}

	obj := &models.StoredObject{
		Key:       key,
		URL:       url,
		OwnerID:   parsed.OwnerID,
		Category:  parsed.Category,
		ETag:      etag,
		CreatedAt: s.now().UTC(),
	}
	if session != nil {
		obj.Size = session.FileSize
		obj.ContentType = session.ContentType
	}

	stat, err := s.store.StatObject(ctx, key)
	if err != nil {
		s.logger.Warn("Failed to stat completed object", "key", key, "error", err)
	} else {
		obj.Size = stat.Size
		if stat.ContentType != "" {
			obj.ContentType = stat.ContentType
		}
	}

	s.recordObject(ctx, obj)
	return obj.Size
}

func (s *Service) recordObject(ctx context.Context, obj *models.StoredObject) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.CreateObject(ctx, obj); err != nil {
		s.logger.Warn("Failed to record stored object", "key", obj.Key, "error", err)
	}
}

func (s *Service) finish(span trace.Span, op string, bytes int64, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	}
	span.End()
	if s.observer != nil {
		s.observer.Observe(op, bytes, err)
	}
}

// maxPartsFor is the largest part count for size bytes cut into parts of
// at least partSize.
func maxPartsFor(size, partSize int64) int {
	n := (size + partSize - 1) / partSize
	if n < 1 {
		return 1
	}
	if n > models.MaxTotalParts {
		return models.MaxTotalParts
	}
	return int(n)
}
