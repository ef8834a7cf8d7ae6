package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/maneesh/voicehub/internal/models"
	"github.com/maneesh/voicehub/internal/storage"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type fakeRegistry struct {
	mu       sync.Mutex
	sessions map[string]*models.UploadSession
}

func newFakeRegistry(sessions ...*models.UploadSession) *fakeRegistry {
	r := &fakeRegistry{sessions: map[string]*models.UploadSession{}}
	for _, s := range sessions {
		r.sessions[s.UploadID] = s
	}
	return r
}

func (r *fakeRegistry) ExpiredSessions(ctx context.Context, before time.Time, limit int) ([]*models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.UploadSession
	for _, s := range r.sessions {
		if s.CreatedAt.Before(before) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRegistry) DeleteSession(ctx context.Context, uploadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, uploadID)
	return nil
}

func (r *fakeRegistry) has(uploadID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[uploadID]
	return ok
}

type fakeAborter struct {
	mu      sync.Mutex
	gone    map[string]bool
	broken  map[string]bool
	aborted []string
}

func (f *fakeAborter) AbortMultipart(ctx context.Context, key, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.broken[uploadID] {
		return errors.New("store unavailable")
	}
	if f.gone[uploadID] {
		return fmt.Errorf("abort: %w", storage.ErrNoSuchUpload)
	}
	f.aborted = append(f.aborted, uploadID)
	return nil
}

type countingObserver struct {
	mu      sync.Mutex
	aborted int
	passes  int
}

func (o *countingObserver) ObserveSweep(aborted, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.aborted += aborted
	o.passes++
}

func (o *countingObserver) snapshot() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.aborted, o.passes
}

func session(id string, age time.Duration) *models.UploadSession {
	return &models.UploadSession{
		UploadID:  id,
		Key:       "model-file/u1/" + id + ".zip",
		OwnerID:   "u1",
		CreatedAt: time.Now().UTC().Add(-age),
	}
}

// ---- tests ----

func TestRunAbortsOnlyStaleSessions(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry(session("old", 48*time.Hour), session("young", time.Hour))
	store := &fakeAborter{}

	res, err := Run(context.Background(), reg, store, 24*time.Hour)
	require.NoError(t, err, "Run error")
	require.Equal(t, Stats{Scanned: 1, Aborted: 1}, res, "stats")
	require.Equal(t, []string{"old"}, store.aborted, "aborted sessions")
	require.False(t, reg.has("old"), "stale session unregistered")
	require.True(t, reg.has("young"), "young session kept")
}

func TestRunTreatsMissingUploadsAsDone(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry(session("done", 48*time.Hour))
	store := &fakeAborter{gone: map[string]bool{"done": true}}

	res, err := Run(context.Background(), reg, store, 24*time.Hour)
	require.NoError(t, err, "Run error")
	require.Equal(t, 1, res.Aborted, "released")
	require.False(t, reg.has("done"), "unregistered")
}

func TestRunKeepsFailedSessions(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry(session("a", 48*time.Hour), session("b", 49*time.Hour))
	store := &fakeAborter{broken: map[string]bool{"b": true}}

	res, err := Run(context.Background(), reg, store, 24*time.Hour)
	require.NoError(t, err, "Run error")
	require.Equal(t, Stats{Scanned: 2, Aborted: 1, Failed: 1}, res, "stats")
	require.True(t, reg.has("b"), "failed session retried next pass")
}

func TestRunDrainsMultipleBatches(t *testing.T) {
	t.Parallel()

	var sessions []*models.UploadSession
	for i := 0; i < batchSize*2+5; i++ {
		sessions = append(sessions, session(fmt.Sprintf("s%03d", i), 48*time.Hour+time.Duration(i)*time.Second))
	}
	reg := newFakeRegistry(sessions...)
	store := &fakeAborter{}

	res, err := Run(context.Background(), reg, store, 24*time.Hour)
	require.NoError(t, err, "Run error")
	require.Equal(t, batchSize*2+5, res.Aborted, "all sessions released")
}

func TestRunStopsWhenNoProgress(t *testing.T) {
	t.Parallel()

	broken := map[string]bool{}
	var sessions []*models.UploadSession
	for i := 0; i < batchSize; i++ {
		id := fmt.Sprintf("s%03d", i)
		broken[id] = true
		sessions = append(sessions, session(id, 48*time.Hour))
	}
	reg := newFakeRegistry(sessions...)

	res, err := Run(context.Background(), reg, &fakeAborter{broken: broken}, 24*time.Hour)
	require.NoError(t, err, "Run error")
	require.Equal(t, batchSize, res.Failed, "one attempt per session")
}

func TestStartRunsPeriodically(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry(session("old", 48*time.Hour))
	obs := &countingObserver{}

	stop := Start(context.Background(), reg, &fakeAborter{}, 10*time.Millisecond, 24*time.Hour, nil, obs)
	defer stop()

	require.Eventually(t, func() bool {
		aborted, passes := obs.snapshot()
		return aborted == 1 && passes >= 2
	}, 2*time.Second, 5*time.Millisecond, "sweeper passes observed")
	require.False(t, reg.has("old"), "stale session unregistered")
}
