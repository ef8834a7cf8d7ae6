package models

import (
	"fmt"
	"sort"
	"time"
)

const (
	// MinPartSize is the provider minimum for every multipart part except the last.
	MinPartSize int64 = 5 * 1024 * 1024

	// DefaultChunkSize is the naive part size used by the uploader.
	DefaultChunkSize int64 = 5 * 1024 * 1024

	// SmallFileThreshold is the size below which uploads go through the
	// single-request path instead of a multipart session.
	SmallFileThreshold int64 = 10 * 1024 * 1024

	// MaxTotalParts is the provider limit on parts per multipart upload.
	MaxTotalParts = 10000
)

// UploadSession is an open multipart upload as tracked by the session
// registry. The object store remains the source of truth.
type UploadSession struct {
	UploadID    string    `json:"upload_id"`
	Key         string    `json:"key"`
	OwnerID     string    `json:"owner_id"`
	Category    Category  `json:"category"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	FileSize    int64     `json:"file_size"`
	TotalParts  int       `json:"total_parts"`
	CreatedAt   time.Time `json:"created_at"`
}

// UploadPart is one uploaded chunk and the integrity token the store
// returned for it.
type UploadPart struct {
	PartNumber int    `json:"PartNumber"`
	ETag       string `json:"ETag"`
}

// StoredObject is a durable object produced by a completed upload.
type StoredObject struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	OwnerID     string    `json:"ownerId"`
	Category    Category  `json:"category"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	ETag        string    `json:"etag"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SortParts orders parts by part number in place.
func SortParts(parts []UploadPart) {
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].PartNumber < parts[j].PartNumber
	})
}

// ValidateParts checks that parts cover 1..totalParts exactly once each and
// that every part carries an ETag. A totalParts of zero means the declared
// count is unknown, in which case the list must still be contiguous from 1.
// Missing trailing parts cannot be detected then: 1..3 of a five part
// upload passes.
func ValidateParts(parts []UploadPart, totalParts int) error {
	if len(parts) == 0 {
		return fmt.Errorf("no parts supplied")
	}

	expected := totalParts
	if expected == 0 {
		expected = len(parts)
	}

	seen := make(map[int]bool, len(parts))
	for _, p := range parts {
		if p.PartNumber < 1 || p.PartNumber > expected {
			return fmt.Errorf("part number %d outside 1..%d", p.PartNumber, expected)
		}
		if seen[p.PartNumber] {
			return fmt.Errorf("duplicate part number %d", p.PartNumber)
		}
		if p.ETag == "" {
			return fmt.Errorf("part %d has no ETag", p.PartNumber)
		}
		seen[p.PartNumber] = true
	}

	for n := 1; n <= expected; n++ {
		if !seen[n] {
			return fmt.Errorf("missing part number %d", n)
		}
	}

	return nil
}
