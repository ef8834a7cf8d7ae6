package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/maneesh/voicehub/internal/models"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// sessionsKey is a hash of uploadId -> UploadSession JSON
	sessionsKey = "upload:sessions"

	// sessionsCreatedKey is a sorted set of uploadId scored by creation time (unix ms)
	sessionsCreatedKey = "upload:sessions:created"
)

// RedisClient is the registry of open multipart sessions
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient initializes a new Redis client
func NewRedisClient(ctx context.Context, addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test the connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Ping reports whether Redis is reachable
func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// PutSession registers an open session
func (rc *RedisClient) PutSession(ctx context.Context, s *models.UploadSession) error {
	ctx, span := tracer.Start(ctx, "redis.put_session",
		trace.WithAttributes(
			attribute.String("upload_id", s.UploadID),
			attribute.String("object_key", s.Key),
		),
	)
	defer span.End()

	data, err := json.Marshal(s)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = rc.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionsKey, s.UploadID, data)
		pipe.ZAdd(ctx, sessionsCreatedKey, redis.Z{
			Score:  float64(s.CreatedAt.UnixMilli()),
			Member: s.UploadID,
		})
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to register session: %w", err)
	}

	return nil
}

// GetSession returns the registered session, or nil when none is registered
func (rc *RedisClient) GetSession(ctx context.Context, uploadID string) (*models.UploadSession, error) {
	ctx, span := tracer.Start(ctx, "redis.get_session",
		trace.WithAttributes(
			attribute.String("upload_id", uploadID),
		),
	)
	defer span.End()

	data, err := rc.client.HGet(ctx, sessionsKey, uploadID).Result()
	if err == redis.Nil {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s models.UploadSession
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &s, nil
}

// DeleteSession removes a session from the registry. Missing sessions are not an error.
func (rc *RedisClient) DeleteSession(ctx context.Context, uploadID string) error {
	ctx, span := tracer.Start(ctx, "redis.delete_session",
		trace.WithAttributes(
			attribute.String("upload_id", uploadID),
		),
	)
	defer span.End()

	_, err := rc.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, sessionsKey, uploadID)
		pipe.ZRem(ctx, sessionsCreatedKey, uploadID)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// ExpiredSessions returns up to limit sessions created before the cutoff, oldest first
func (rc *RedisClient) ExpiredSessions(ctx context.Context, before time.Time, limit int) ([]*models.UploadSession, error) {
	ctx, span := tracer.Start(ctx, "redis.expired_sessions",
		trace.WithAttributes(
			attribute.Int64("before_ms", before.UnixMilli()),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	ids, err := rc.client.ZRangeByScore(ctx, sessionsCreatedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(before.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := rc.client.HMGet(ctx, sessionsKey, ids...).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	sessions := make([]*models.UploadSession, 0, len(values))
	var dangling []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			dangling = append(dangling, ids[i])
			continue
		}
		var s models.UploadSession
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to unmarshal session %s: %w", ids[i], err)
		}
		sessions = append(sessions, &s)
	}

	// Index entries whose hash record is gone are dropped so they stop resurfacing.
	if len(dangling) > 0 {
		if err := rc.client.ZRem(ctx, sessionsCreatedKey, dangling...).Err(); err != nil {
			span.RecordError(err)
		}
	}

	span.SetAttributes(attribute.Int("session_count", len(sessions)))
	return sessions, nil
}
