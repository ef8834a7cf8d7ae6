package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maneesh/voicehub/internal/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("voicehub-storage")

var (
	// ErrNoSuchUpload is returned when the multipart session no longer
	// exists (already completed, aborted or reaped).
	ErrNoSuchUpload = errors.New("no such multipart upload")

	// ErrInvalidParts is returned when the store rejects the part list.
	ErrInvalidParts = errors.New("invalid or missing parts")

	// ErrObjectNotFound is returned for missing objects.
	ErrObjectNotFound = errors.New("object not found")
)

// MinioConfig holds the object store connection settings.
type MinioConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	BucketName    string
	Region        string
	UseSSL        bool
	PublicBaseURL string
}

// ObjectStat describes a stored object.
type ObjectStat struct {
	Size        int64
	ContentType string
	ETag        string
}

// MinioClient wraps S3-compatible multipart operations with tracing
type MinioClient struct {
	core          *minio.Core
	bucketName    string
	region        string
	publicBaseURL string
}

// NewMinioClient initializes a new MinIO client and ensures the bucket exists
func NewMinioClient(ctx context.Context, cfg MinioConfig) (*MinioClient, error) {
	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	mc := &MinioClient{
		core:          core,
		bucketName:    cfg.BucketName,
		region:        cfg.Region,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}

	exists, err := core.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		slog.Info("Creating bucket", "bucket", cfg.BucketName)
		err = core.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return mc, nil
}

// Endpoint returns the base URL clients use to address the store.
func (mc *MinioClient) Endpoint() string {
	return mc.core.EndpointURL().String()
}

// Bucket returns the bucket name.
func (mc *MinioClient) Bucket() string {
	return mc.bucketName
}

// Region returns the configured region.
func (mc *MinioClient) Region() string {
	return mc.region
}

// Ping reports whether the bucket is reachable
func (mc *MinioClient) Ping(ctx context.Context) error {
	_, err := mc.core.BucketExists(ctx, mc.bucketName)
	return err
}

// PublicURL derives the public URL of key.
func (mc *MinioClient) PublicURL(key string) string {
	base := mc.publicBaseURL
	if base == "" {
		base = strings.TrimRight(mc.Endpoint(), "/") + "/" + mc.bucketName
	}
	return base + "/" + escapeKey(key)
}

// CreateMultipart opens a multipart upload session for key
func (mc *MinioClient) CreateMultipart(ctx context.Context, key, contentType string) (string, error) {
	ctx, span := tracer.Start(ctx, "minio.create_multipart",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.String("content_type", contentType),
		),
	)
	defer span.End()

	uploadID, err := mc.core.NewMultipartUpload(ctx, mc.bucketName, key, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to create multipart upload: %w", err)
	}

	span.SetAttributes(attribute.String("upload_id", uploadID))
	return uploadID, nil
}

// PresignPart returns a URL that authorizes a single UploadPart request
func (mc *MinioClient) PresignPart(ctx context.Context, key, uploadID string, partNumber int, expiry time.Duration) (string, error) {
	ctx, span := tracer.Start(ctx, "minio.presign_part",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int("part_number", partNumber),
		),
	)
	defer span.End()

	params := url.Values{}
	params.Set("partNumber", strconv.Itoa(partNumber))
	params.Set("uploadId", uploadID)

	u, err := mc.core.Presign(ctx, "PUT", mc.bucketName, key, expiry, params)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to presign part %d: %w", partNumber, err)
	}

	return u.String(), nil
}

// CompleteMultipart assembles the uploaded parts into the final object
func (mc *MinioClient) CompleteMultipart(ctx context.Context, key, uploadID string, parts []models.UploadPart) (string, error) {
	ctx, span := tracer.Start(ctx, "minio.complete_multipart",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.String("upload_id", uploadID),
			attribute.Int("part_count", len(parts)),
		),
	)
	defer span.End()

	completed := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, minio.CompletePart{
			PartNumber: p.PartNumber,
			ETag:       p.ETag,
		})
	}

	info, err := mc.core.CompleteMultipartUpload(ctx, mc.bucketName, key, uploadID, completed, minio.PutObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to complete multipart upload: %w", classify(err))
	}

	span.SetAttributes(attribute.Bool("complete_success", true))
	return info.ETag, nil
}

// AbortMultipart discards a multipart session and its uploaded parts
func (mc *MinioClient) AbortMultipart(ctx context.Context, key, uploadID string) error {
	ctx, span := tracer.Start(ctx, "minio.abort_multipart",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.String("upload_id", uploadID),
		),
	)
	defer span.End()

	if err := mc.core.AbortMultipartUpload(ctx, mc.bucketName, key, uploadID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to abort multipart upload: %w", classify(err))
	}

	return nil
}

// PutObject uploads a whole object in a single request
func (mc *MinioClient) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	ctx, span := tracer.Start(ctx, "minio.put_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int64("size_bytes", size),
		),
	)
	defer span.End()

	info, err := mc.core.Client.PutObject(ctx, mc.bucketName, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	span.SetAttributes(attribute.Bool("upload_success", true))
	return info.ETag, nil
}

// StatObject returns the size and content type of key
func (mc *MinioClient) StatObject(ctx context.Context, key string) (*ObjectStat, error) {
	ctx, span := tracer.Start(ctx, "minio.stat_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
		),
	)
	defer span.End()

	info, err := mc.core.Client.StatObject(ctx, mc.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to stat object: %w", classify(err))
	}

	return &ObjectStat{Size: info.Size, ContentType: info.ContentType, ETag: info.ETag}, nil
}

// RemoveObject deletes key from the bucket
func (mc *MinioClient) RemoveObject(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "minio.remove_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
		),
	)
	defer span.End()

	err := mc.core.Client.RemoveObject(ctx, mc.bucketName, key, minio.RemoveObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete object: %w", classify(err))
	}

	return nil
}

// classify maps provider error codes onto the package sentinels.
func classify(err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchUpload":
		return fmt.Errorf("%w: %s", ErrNoSuchUpload, resp.Message)
	case "InvalidPart", "InvalidPartOrder", "EntityTooSmall":
		return fmt.Errorf("%w: %s", ErrInvalidParts, resp.Message)
	case "NoSuchKey":
		return fmt.Errorf("%w: %s", ErrObjectNotFound, resp.Message)
	}
	return err
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
