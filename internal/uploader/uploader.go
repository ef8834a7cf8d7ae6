package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/maneesh/voicehub/internal/apperr"
	"github.com/maneesh/voicehub/internal/chunker"
	"github.com/maneesh/voicehub/internal/models"
	"golang.org/x/sync/errgroup"
)

// abortTimeout bounds the single abort attempt made from recovery paths.
const abortTimeout = 30 * time.Second

var errCancelled = errors.New("upload cancelled")

// API is the remote surface the uploader drives. *Client implements it.
type API interface {
	Initiate(ctx context.Context, req models.InitiateRequest) (*models.InitiateResponse, error)
	SignParts(ctx context.Context, req models.SignPartsRequest) (*models.SignPartsResponse, error)
	Complete(ctx context.Context, req models.CompleteRequest) (*models.CompleteResponse, error)
	Abort(ctx context.Context, req models.AbortRequest) error
	UploadSmall(ctx context.Context, category models.Category, fileName, contentType string, body io.Reader) (*models.SmallUploadResponse, error)
	PutPart(ctx context.Context, partURL string, body io.Reader, size int64) (string, error)
}

// Status is the outcome of an upload.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	// StatusUploaded means every part is stored but finalizing failed; the
	// session can still be completed or aborted.
	StatusUploaded Status = "uploaded"
)

// Options describe one upload.
type Options struct {
	FileName    string
	ContentType string
	Category    models.Category

	// Concurrency bounds parallel part PUTs. Zero means sequential.
	Concurrency int
	// ChunkSize overrides the naive part size.
	ChunkSize int64
	Retry     RetryPolicy
	Cancel    *CancelToken
	// Progress receives a percentage after each stored part.
	Progress func(percent int)
}

// Result reports what an upload produced. For a multipart upload UploadID
// and Parts are kept so a failed finalize can be retried or aborted.
type Result struct {
	Status   Status
	URL      string
	Key      string
	ETag     string
	UploadID string
	Parts    []models.UploadPart
}

// Uploader runs uploads against an API.
type Uploader struct {
	api    API
	logger *slog.Logger
}

// New creates an uploader. A nil logger uses slog.Default().
func New(api API, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{api: api, logger: logger}
}

// Upload stores size bytes of src. Files below models.SmallFileThreshold go
// through the single-request path. Cancellation through opts.Cancel yields
// a cancelled Result and a nil error.
func (u *Uploader) Upload(ctx context.Context, src io.ReaderAt, size int64, opts Options) (*Result, error) {
	if opts.Cancel.Cancelled() {
		return &Result{Status: StatusCancelled}, nil
	}
	if opts.Category == "" {
		opts.Category = models.CategoryGeneral
	}

	if size < models.SmallFileThreshold {
		return u.uploadSmall(ctx, src, size, opts)
	}
	return u.uploadMultipart(ctx, src, size, opts)
}

func (u *Uploader) uploadSmall(ctx context.Context, src io.ReaderAt, size int64, opts Options) (*Result, error) {
	resp, err := u.api.UploadSmall(ctx, opts.Category, opts.FileName, opts.ContentType, io.NewSectionReader(src, 0, size))
	if err != nil {
		return nil, err
	}
	if opts.Progress != nil {
		opts.Progress(100)
	}
	return &Result{Status: StatusCompleted, URL: resp.URL, Key: resp.Key}, nil
}

func (u *Uploader) uploadMultipart(ctx context.Context, src io.ReaderAt, size int64, opts Options) (*Result, error) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = models.DefaultChunkSize
	}
	ch := chunker.NewChunker(chunkSize, models.MinPartSize)
	ranges, err := ch.Plan(size)
	if err != nil {
		return nil, apperr.InvalidArgument("%v", err)
	}

	started, err := u.api.Initiate(ctx, models.InitiateRequest{
		FileName:     opts.FileName,
		FileType:     opts.ContentType,
		FileCategory: string(opts.Category),
		FileSize:     size,
		TotalChunks:  len(ranges),
	})
	if err != nil {
		return nil, err
	}

	sess := newSession(u.api, started)
	log := u.logger.With("upload_id", started.UploadID, "key", started.Key)
	log.Info("multipart upload started", "size", size, "parts", len(ranges), "chunk_size", ch.ChunkSize())

	parts, err := u.sendParts(ctx, src, ranges, sess, opts, log)
	if err != nil {
		u.abort(ctx, sess, log)
		switch {
		case errors.Is(err, errCancelled):
			log.Info("multipart upload cancelled")
			return &Result{Status: StatusCancelled, UploadID: sess.uploadID, Key: sess.key}, nil
		case ctx.Err() != nil:
			return &Result{Status: StatusCancelled, UploadID: sess.uploadID, Key: sess.key},
				apperr.Cancelled("upload interrupted: %v", ctx.Err())
		default:
			return nil, apperr.UploadFailed(err, "upload failed, please try again")
		}
	}

	res := &Result{Status: StatusUploaded, UploadID: sess.uploadID, Key: sess.key, Parts: parts}
	done, err := u.api.Complete(ctx, models.CompleteRequest{UploadID: sess.uploadID, Key: sess.key, Parts: parts})
	if err != nil {
		log.Warn("finalize failed, session left open", "error", err)
		return res, err
	}

	res.Status = StatusCompleted
	res.URL = done.URL
	res.ETag = done.ETag
	log.Info("multipart upload completed", "etag", done.ETag)
	return res, nil
}

// sendParts stores every range and returns the parts sorted by number.
func (u *Uploader) sendParts(ctx context.Context, src io.ReaderAt, ranges []chunker.Range, sess *session, opts Options, log *slog.Logger) ([]models.UploadPart, error) {
	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}
	policy := opts.Retry.withDefaults()

	var (
		mu    sync.Mutex
		parts = make([]models.UploadPart, 0, len(ranges))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	// gctx is cancelled only by a failed part or by ctx. The cancel token
	// stops scheduling and never reaches the group, so parts already in
	// flight run to completion.
	for _, rng := range ranges {
		if opts.Cancel.Cancelled() || gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if opts.Cancel.Cancelled() || gctx.Err() != nil {
				return nil
			}
			etag, err := u.sendPart(gctx, src, rng, sess, policy, log)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			parts = append(parts, models.UploadPart{PartNumber: rng.PartNumber, ETag: etag})
			if opts.Progress != nil {
				opts.Progress(percent(len(parts), len(ranges)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(parts) < len(ranges) {
		return nil, errCancelled
	}

	models.SortParts(parts)
	return parts, nil
}

// sendPart PUTs one range, retrying under policy. A 403 re-signs the part
// URL before the next attempt.
func (u *Uploader) sendPart(ctx context.Context, src io.ReaderAt, rng chunker.Range, sess *session, policy RetryPolicy, log *slog.Logger) (string, error) {
	var etag string

	op := func() error {
		partURL, err := sess.url(ctx, rng.PartNumber)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		tag, err := u.api.PutPart(ctx, partURL, chunker.Section(src, rng), rng.Size())
		if err == nil {
			etag = tag
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		if needsResign(err) {
			sess.invalidate(rng.PartNumber)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		log.Warn("part upload failed, retrying", "part", rng.PartNumber, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, policy.BackOff(ctx), notify); err != nil {
		return "", fmt.Errorf("part %d: %w", rng.PartNumber, err)
	}
	return etag, nil
}

// abort makes one best-effort abort attempt that survives ctx cancellation.
func (u *Uploader) abort(ctx context.Context, sess *session, log *slog.Logger) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()

	if err := u.api.Abort(actx, models.AbortRequest{UploadID: sess.uploadID, Key: sess.key}); err != nil {
		log.Warn("abort failed, storage lifecycle will reclaim the parts", "error", err)
	}
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// session holds the presigned URL of every part and re-signs on demand.
type session struct {
	api      API
	uploadID string
	key      string

	mu   sync.Mutex
	urls map[int]string
}

func newSession(api API, init *models.InitiateResponse) *session {
	s := &session{
		api:      api,
		uploadID: init.UploadID,
		key:      init.Key,
		urls:     make(map[int]string, len(init.Parts)),
	}
	for _, p := range init.Parts {
		s.urls[p.PartNumber] = p.URL
	}
	return s
}

func (s *session) url(ctx context.Context, partNumber int) (string, error) {
	s.mu.Lock()
	u, ok := s.urls[partNumber]
	s.mu.Unlock()
	if ok {
		return u, nil
	}

	resp, err := s.api.SignParts(ctx, models.SignPartsRequest{
		UploadID:    s.uploadID,
		Key:         s.key,
		PartNumbers: []int{partNumber},
	})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range resp.Parts {
		s.urls[p.PartNumber] = p.URL
	}
	u, ok = s.urls[partNumber]
	if !ok {
		return "", fmt.Errorf("no url signed for part %d", partNumber)
	}
	return u, nil
}

func (s *session) invalidate(partNumber int) {
	s.mu.Lock()
	delete(s.urls, partNumber)
	s.mu.Unlock()
}
