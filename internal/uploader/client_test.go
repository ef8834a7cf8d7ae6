package uploader

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/maneesh/voicehub/internal/apperr"
	"github.com/maneesh/voicehub/internal/models"
	"github.com/stretchr/testify/require"
)

func TestClientInitiate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method, "method")
		require.Equal(t, "/api/upload/chunked", r.URL.Path, "path")
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"), "bearer token")

		var req models.InitiateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req), "decode body")
		require.Equal(t, "voice.zip", req.FileName, "file name")
		require.Equal(t, 3, req.TotalChunks, "total chunks")

		_ = json.NewEncoder(w).Encode(models.InitiateResponse{
			UploadID: "up-1",
			Key:      "model-file/u1/1-abc.zip",
			Parts:    []models.PartURL{{PartNumber: 1, URL: "https://s/1"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok", srv.Client())
	resp, err := c.Initiate(context.Background(), models.InitiateRequest{FileName: "voice.zip", TotalChunks: 3})
	require.NoError(t, err, "Initiate error")
	require.Equal(t, "up-1", resp.UploadID, "upload id")
	require.Len(t, resp.Parts, 1, "parts")
}

func TestClientDecodesErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		kind    apperr.Kind
		message string
	}{
		{"coded", http.StatusForbidden, `{"error":"not your file","code":"Forbidden"}`, apperr.KindForbidden, "not your file"},
		{"incomplete", http.StatusBadRequest, `{"error":"missing part 57","code":"UploadIncomplete"}`, apperr.KindUploadIncomplete, "missing part 57"},
		{"plain", http.StatusBadGateway, "bad gateway", apperr.KindUpstreamUnavailable, "Bad Gateway"},
		{"no code", http.StatusUnauthorized, `{"error":"sign in"}`, apperr.KindUnauthorized, "sign in"},
	}

	for _, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, tc.body)
		}))

		err := NewClient(srv.URL, "tok", srv.Client()).Abort(context.Background(), models.AbortRequest{UploadID: "u", Key: "k"})
		srv.Close()

		var aerr *apperr.Error
		require.ErrorAsf(t, err, &aerr, "case %s", tc.name)
		require.Equalf(t, tc.kind, aerr.Kind, "case %s kind", tc.name)
		require.Equalf(t, tc.message, aerr.Message, "case %s message", tc.name)
	}
}

func TestClientUploadSmall(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20), "parse form")
		require.Equal(t, "cover", r.FormValue("type"), "category field")

		file, hdr, err := r.FormFile("file")
		require.NoError(t, err, "file field")
		defer file.Close()
		b, _ := io.ReadAll(file)

		require.Equal(t, `my "cover".png`, hdr.Filename, "file name")
		require.Equal(t, "image/png", hdr.Header.Get("Content-Type"), "part content type")
		require.Equal(t, "png-bytes", string(b), "file body")

		_ = json.NewEncoder(w).Encode(models.SmallUploadResponse{URL: "https://cdn/x", Key: "cover/u1/x.png", Size: int64(len(b))})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", srv.Client())
	resp, err := c.UploadSmall(context.Background(), models.CategoryCover, `my "cover".png`, "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err, "UploadSmall error")
	require.Equal(t, "cover/u1/x.png", resp.Key, "key")
	require.Equal(t, int64(9), resp.Size, "size")
}

func TestClientPutPart(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"), "no bearer token sent to storage")
		b, _ := io.ReadAll(r.Body)
		if r.URL.Query().Get("partNumber") == "2" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, "<Error><Code>AccessDenied</Code></Error>")
			return
		}
		require.Equal(t, int64(len(b)), r.ContentLength, "content length")
		w.Header().Set("ETag", `"abc"`)
	}))
	defer srv.Close()

	c := NewClient("http://api.invalid", "tok", srv.Client())

	etag, err := c.PutPart(context.Background(), srv.URL+"/b/k?partNumber=1", strings.NewReader("part"), 4)
	require.NoError(t, err, "PutPart error")
	require.Equal(t, `"abc"`, etag, "etag")

	_, err = c.PutPart(context.Background(), srv.URL+"/b/k?partNumber=2", strings.NewReader("part"), 4)
	var serr *StorageError
	require.ErrorAs(t, err, &serr, "storage error")
	require.Equal(t, http.StatusForbidden, serr.StatusCode, "status")
	require.True(t, needsResign(err), "403 triggers re-sign")
}

func TestClientListObjects(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method, "method")
		require.Equal(t, "5", r.URL.Query().Get("limit"), "limit")
		_ = json.NewEncoder(w).Encode(models.ListObjectsResponse{Objects: []*models.StoredObject{{Key: "general/u1/a.bin"}}})
	}))
	defer srv.Close()

	objects, err := NewClient(srv.URL, "tok", srv.Client()).ListObjects(context.Background(), 5)
	require.NoError(t, err, "ListObjects error")
	require.Len(t, objects, 1, "objects")
	require.Equal(t, "general/u1/a.bin", objects[0].Key, "key")
}

func TestClientDeleteObject(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method, "method")
		require.Equal(t, "/api/upload", r.URL.Path, "path")
		var req models.DeleteObjectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req), "decode body")
		require.Equal(t, "cover/u1/x.png", req.Key, "key")
		_ = json.NewEncoder(w).Encode(models.SuccessResponse{Success: true})
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, "tok", srv.Client()).DeleteObject(context.Background(), "cover/u1/x.png"), "DeleteObject error")
}
