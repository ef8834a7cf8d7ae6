package models

import "time"

// InitiateRequest is the body of POST /api/upload/chunked.
type InitiateRequest struct {
	FileName     string `json:"fileName"`
	FileType     string `json:"fileType"`
	FileCategory string `json:"fileCategory"`
	FileSize     int64  `json:"fileSize"`
	TotalChunks  int    `json:"totalChunks"`
}

// PartURL is a presigned capability to PUT one part of a session.
type PartURL struct {
	PartNumber int    `json:"partNumber"`
	URL        string `json:"url"`
}

// InitiateResponse carries everything the client needs to address the
// object store directly. Parts replace raw storage credentials.
type InitiateResponse struct {
	UploadID  string    `json:"uploadId"`
	Key       string    `json:"key"`
	FileName  string    `json:"fileName"`
	FileType  string    `json:"fileType"`
	Endpoint  string    `json:"endpoint"`
	Bucket    string    `json:"bucket"`
	Region    string    `json:"region"`
	ExpiresAt time.Time `json:"expiresAt"`
	// PartSize is the minimum size of every part except the last.
	PartSize  int64     `json:"partSize"`
	Parts     []PartURL `json:"parts"`
}

// SignPartsRequest is the body of POST /api/upload/chunked/sign.
type SignPartsRequest struct {
	UploadID    string `json:"uploadId"`
	Key         string `json:"key"`
	PartNumbers []int  `json:"partNumbers"`
}

// SignPartsResponse returns fresh part URLs.
type SignPartsResponse struct {
	ExpiresAt time.Time `json:"expiresAt"`
	Parts     []PartURL `json:"parts"`
}

// CompleteRequest is the body of PUT /api/upload/chunked.
type CompleteRequest struct {
	UploadID string       `json:"uploadId"`
	Key      string       `json:"key"`
	Parts    []UploadPart `json:"parts"`
}

// CompleteResponse is returned by a successful finalize.
type CompleteResponse struct {
	URL  string `json:"url"`
	Key  string `json:"key"`
	ETag string `json:"etag"`
}

// AbortRequest is the body of DELETE /api/upload/chunked.
type AbortRequest struct {
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
}

// DeleteObjectRequest is the body of DELETE /api/upload.
type DeleteObjectRequest struct {
	Key string `json:"key"`
}

// SuccessResponse acknowledges operations without a payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// SmallUploadResponse is returned by POST /api/upload.
type SmallUploadResponse struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	Key  string `json:"key"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ListObjectsResponse is returned by GET /api/upload.
type ListObjectsResponse struct {
	Objects []*StoredObject `json:"objects"`
}
