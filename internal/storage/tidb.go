package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/maneesh/voicehub/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const schema = `CREATE TABLE IF NOT EXISTS stored_objects (
	object_key   VARCHAR(512) NOT NULL PRIMARY KEY,
	url          VARCHAR(1024) NOT NULL,
	owner_id     VARCHAR(128) NOT NULL,
	category     VARCHAR(32) NOT NULL,
	size         BIGINT NOT NULL,
	content_type VARCHAR(255) NOT NULL,
	etag         VARCHAR(128) NOT NULL,
	created_at   DATETIME(3) NOT NULL,
	INDEX idx_stored_objects_owner (owner_id, created_at)
)`

// TiDBClient is the ledger of stored objects. Any MySQL-protocol server works.
type TiDBClient struct {
	db *sql.DB
}

// NewTiDBClient initializes a new TiDB client and applies the schema
func NewTiDBClient(ctx context.Context, dsn string) (*TiDBClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &TiDBClient{db: db}, nil
}

// Close closes the database connection
func (tc *TiDBClient) Close() error {
	return tc.db.Close()
}

// Ping reports whether the database is reachable
func (tc *TiDBClient) Ping(ctx context.Context) error {
	return tc.db.PingContext(ctx)
}

// CreateObject records a stored object. Re-recording a key replaces the row.
func (tc *TiDBClient) CreateObject(ctx context.Context, obj *models.StoredObject) error {
	ctx, span := tracer.Start(ctx, "tidb.create_object",
		trace.WithAttributes(
			attribute.String("object_key", obj.Key),
			attribute.String("owner_id", obj.OwnerID),
			attribute.Int64("size_bytes", obj.Size),
		),
	)
	defer span.End()

	query := `REPLACE INTO stored_objects (object_key, url, owner_id, category, size, content_type, etag, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tc.db.ExecContext(ctx, query,
		obj.Key, obj.URL, obj.OwnerID, string(obj.Category), obj.Size, obj.ContentType, obj.ETag, obj.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert object: %w", err)
	}

	span.SetAttributes(attribute.Bool("insert_success", true))
	return nil
}

// DeleteObject removes a stored object record
func (tc *TiDBClient) DeleteObject(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "tidb.delete_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
		),
	)
	defer span.End()

	res, err := tc.db.ExecContext(ctx, `DELETE FROM stored_objects WHERE object_key = ?`, key)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete object: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil {
		span.SetAttributes(attribute.Int64("rows_affected", n))
	}
	return nil
}

// ListObjectsByOwner returns the newest objects of ownerID
func (tc *TiDBClient) ListObjectsByOwner(ctx context.Context, ownerID string, limit int) ([]*models.StoredObject, error) {
	ctx, span := tracer.Start(ctx, "tidb.list_objects_by_owner",
		trace.WithAttributes(
			attribute.String("owner_id", ownerID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	query := `SELECT object_key, url, owner_id, category, size, content_type, etag, created_at
			  FROM stored_objects
			  WHERE owner_id = ?
			  ORDER BY created_at DESC
			  LIMIT ?`

	rows, err := tc.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query objects: %w", err)
	}
	defer rows.Close()

	var objects []*models.StoredObject
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}
		objects = append(objects, obj)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating objects: %w", err)
	}

	span.SetAttributes(
		attribute.Int("object_count", len(objects)),
		attribute.Bool("query_success", true),
	)
	return objects, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(row rowScanner) (*models.StoredObject, error) {
	var obj models.StoredObject
	var category string
	err := row.Scan(
		&obj.Key,
		&obj.URL,
		&obj.OwnerID,
		&category,
		&obj.Size,
		&obj.ContentType,
		&obj.ETag,
		&obj.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	obj.Category = models.Category(category)
	return &obj, nil
}
