package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/maneesh/voicehub/internal/models"
	"github.com/maneesh/voicehub/internal/storage"
)

type fakeMultipart struct {
	key         string
	contentType string
	parts       map[int]string
}

type fakeObject struct {
	size        int64
	contentType string
	etag        string
}

// fakeStore is an in-memory ObjectStore.
type fakeStore struct {
	mu        sync.Mutex
	next      int
	sessions  map[string]*fakeMultipart
	objects   map[string]fakeObject
	puts      int
	createErr error
	signErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: map[string]*fakeMultipart{},
		objects:  map[string]fakeObject{},
	}
}

func (f *fakeStore) CreateMultipart(ctx context.Context, key, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return "", f.createErr
	}
	f.next++
	id := "upload-" + strconv.Itoa(f.next)
	f.sessions[id] = &fakeMultipart{key: key, contentType: contentType, parts: map[int]string{}}
	return id, nil
}

func (f *fakeStore) PresignPart(ctx context.Context, key, uploadID string, partNumber int, expiry time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return fmt.Sprintf("https://store.test/bucket/%s?partNumber=%d&uploadId=%s", key, partNumber, uploadID), nil
}

// uploadPart simulates a client PUT to a presigned URL.
func (f *fakeStore) uploadPart(uploadID string, partNumber int) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	etag := fmt.Sprintf("\"etag-%d\"", partNumber)
	f.sessions[uploadID].parts[partNumber] = etag
	return etag
}

func (f *fakeStore) CompleteMultipart(ctx context.Context, key, uploadID string, parts []models.UploadPart) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[uploadID]
	if !ok || s.key != key {
		return "", fmt.Errorf("complete: %w", storage.ErrNoSuchUpload)
	}
	for _, p := range parts {
		if s.parts[p.PartNumber] != p.ETag {
			return "", fmt.Errorf("complete: %w", storage.ErrInvalidParts)
		}
	}

	delete(f.sessions, uploadID)
	etag := "\"final-" + uploadID + "\""
	f.objects[key] = fakeObject{size: int64(len(parts)) * models.MinPartSize, contentType: s.contentType, etag: etag}
	return etag, nil
}

func (f *fakeStore) AbortMultipart(ctx context.Context, key, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.sessions[uploadID]; !ok {
		return fmt.Errorf("abort: %w", storage.ErrNoSuchUpload)
	}
	delete(f.sessions, uploadID)
	return nil
}

func (f *fakeStore) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.puts++
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return "", err
	}
	if n != size {
		return "", errors.New("short body")
	}
	f.objects[key] = fakeObject{size: size, contentType: contentType, etag: "\"small\""}
	return "\"small\"", nil
}

func (f *fakeStore) StatObject(ctx context.Context, key string) (*storage.ObjectStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.ObjectStat{Size: o.size, ContentType: o.contentType, ETag: o.etag}, nil
}

func (f *fakeStore) RemoveObject(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.objects, key)
	return nil
}

func (f *fakeStore) PublicURL(key string) string { return "https://cdn.test/" + key }
func (f *fakeStore) Endpoint() string            { return "https://store.test" }
func (f *fakeStore) Bucket() string              { return "bucket" }
func (f *fakeStore) Region() string              { return "auto" }

func (f *fakeStore) openSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeStore) hasObject(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

type fakeRegistry struct {
	mu       sync.Mutex
	sessions map[string]*models.UploadSession
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{sessions: map[string]*models.UploadSession{}}
}

func (r *fakeRegistry) PutSession(ctx context.Context, s *models.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.UploadID] = &cp
	return nil
}

func (r *fakeRegistry) GetSession(ctx context.Context, uploadID string) (*models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[uploadID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRegistry) DeleteSession(ctx context.Context, uploadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, uploadID)
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	objects map[string]*models.StoredObject
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{objects: map[string]*models.StoredObject{}}
}

func (l *fakeLedger) CreateObject(ctx context.Context, obj *models.StoredObject) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *obj
	l.objects[obj.Key] = &cp
	return nil
}

func (l *fakeLedger) DeleteObject(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.objects, key)
	return nil
}

func (l *fakeLedger) ListObjectsByOwner(ctx context.Context, ownerID string, limit int) ([]*models.StoredObject, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*models.StoredObject
	for _, o := range l.objects {
		if o.OwnerID == ownerID && len(out) < limit {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *fakeLedger) get(key string) *models.StoredObject {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.objects[key]
}
