// Package uploader is the client side of the upload flow. It talks to the
// upload API, streams parts straight to presigned storage URLs and drives
// the multipart session to completion or abort.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/maneesh/voicehub/internal/apperr"
	"github.com/maneesh/voicehub/internal/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	chunkedPath = "/api/upload/chunked"
	signPath    = "/api/upload/chunked/sign"
	uploadPath  = "/api/upload"

	// maxErrorBody caps how much of a failed response is read.
	maxErrorBody = 4 << 10
)

// StorageError is a non-2xx answer from the object store to a part PUT.
type StorageError struct {
	StatusCode int
	Body       string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage returned %d: %s", e.StatusCode, e.Body)
}

// Client calls the upload API with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates an API client. A nil httpClient gets a traced default.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// Initiate opens a multipart session.
func (c *Client) Initiate(ctx context.Context, req models.InitiateRequest) (*models.InitiateResponse, error) {
	var out models.InitiateResponse
	if err := c.doJSON(ctx, http.MethodPost, chunkedPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignParts fetches fresh part URLs for an open session.
func (c *Client) SignParts(ctx context.Context, req models.SignPartsRequest) (*models.SignPartsResponse, error) {
	var out models.SignPartsResponse
	if err := c.doJSON(ctx, http.MethodPost, signPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Complete finalizes a session.
func (c *Client) Complete(ctx context.Context, req models.CompleteRequest) (*models.CompleteResponse, error) {
	var out models.CompleteResponse
	if err := c.doJSON(ctx, http.MethodPut, chunkedPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Abort releases a session and its parts.
func (c *Client) Abort(ctx context.Context, req models.AbortRequest) error {
	return c.doJSON(ctx, http.MethodDelete, chunkedPath, req, nil)
}

// DeleteObject removes a stored object.
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	return c.doJSON(ctx, http.MethodDelete, uploadPath, models.DeleteObjectRequest{Key: key}, nil)
}

// ListObjects returns the caller's most recent objects.
func (c *Client) ListObjects(ctx context.Context, limit int) ([]*models.StoredObject, error) {
	path := uploadPath
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out models.ListObjectsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Objects, nil
}

// UploadSmall sends a whole file in one multipart form request.
func (c *Client) UploadSmall(ctx context.Context, category models.Category, fileName, contentType string, body io.Reader) (*models.SmallUploadResponse, error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeForm(form, category, fileName, contentType, body))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var out models.SmallUploadResponse
	if err := c.do(req, &out); err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	return &out, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeForm(form *multipart.Writer, category models.Category, fileName, contentType string, body io.Reader) error {
	if err := form.WriteField("type", string(category)); err != nil {
		return err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(fileName)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := form.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return form.Close()
}

// PutPart uploads one part to a presigned URL and returns the store's ETag.
func (c *Client) PutPart(ctx context.Context, partURL string, body io.Reader, size int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, partURL, body)
	if err != nil {
		return "", err
	}
	req.ContentLength = size

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &StorageError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	etag := resp.Header.Get("ETag")
	if etag == "" {
		return "", errors.New("storage response carried no ETag")
	}
	return etag, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return apperr.UpstreamUnavailable(err, "upload service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.UpstreamUnavailable(err, "malformed response from upload service")
	}
	return nil
}

// decodeError turns an error response back into a classified error.
func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body models.ErrorResponse
	if err := json.Unmarshal(b, &body); err != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}

	kind := apperr.Kind(body.Code)
	if kind == "" {
		kind = apperr.KindForStatus(resp.StatusCode)
	}
	return &apperr.Error{Kind: kind, Message: body.Error}
}
