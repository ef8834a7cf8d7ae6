// Package sweeper aborts multipart sessions that clients abandoned without
// completing or aborting them.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maneesh/voicehub/internal/models"
	"github.com/maneesh/voicehub/internal/storage"
)

const (
	DefaultInterval  = 15 * time.Minute
	DefaultOlderThan = 24 * time.Hour

	batchSize = 100
)

// Registry is the subset of the session registry the sweeper needs.
type Registry interface {
	ExpiredSessions(ctx context.Context, before time.Time, limit int) ([]*models.UploadSession, error)
	DeleteSession(ctx context.Context, uploadID string) error
}

// Aborter is the subset of the object store the sweeper needs.
type Aborter interface {
	AbortMultipart(ctx context.Context, key, uploadID string) error
}

// Observer receives a summary of each pass.
type Observer interface {
	ObserveSweep(aborted, failed int)
}

// Stats summarizes a sweep pass.
type Stats struct {
	Scanned int `json:"scanned"`
	Aborted int `json:"aborted"`
	Failed  int `json:"failed"`
}

// Run performs one best-effort pass. Sessions registered more than olderThan
// ago are aborted and unregistered. Sessions the store no longer knows are
// unregistered too. Failed aborts stay registered for the next pass.
func Run(ctx context.Context, reg Registry, store Aborter, olderThan time.Duration) (Stats, error) {
	var res Stats
	cutoff := time.Now().UTC().Add(-olderThan)

	for {
		sessions, err := reg.ExpiredSessions(ctx, cutoff, batchSize)
		if err != nil {
			return res, err
		}

		released := 0
		for _, s := range sessions {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Scanned++

			err := store.AbortMultipart(ctx, s.Key, s.UploadID)
			if err != nil && !errors.Is(err, storage.ErrNoSuchUpload) {
				res.Failed++
				slog.Error("sweeper: abort session", slog.String("uploadId", s.UploadID), slog.String("key", s.Key), slog.String("error", err.Error()))
				continue
			}

			if err := reg.DeleteSession(ctx, s.UploadID); err != nil {
				res.Failed++
				slog.Error("sweeper: unregister session", slog.String("uploadId", s.UploadID), slog.String("error", err.Error()))
				continue
			}
			res.Aborted++
			released++
		}

		// A short batch is the last one. A batch with no progress would be
		// returned again unchanged.
		if len(sessions) < batchSize || released == 0 {
			return res, nil
		}
	}
}

// Start launches a periodic background sweep. Returns a stop function to
// cancel the loop. Invalid interval/olderThan fall back to the defaults.
func Start(parent context.Context, reg Registry, store Aborter, interval, olderThan time.Duration, logger *slog.Logger, obs Observer) context.CancelFunc {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if olderThan <= 0 {
		olderThan = DefaultOlderThan
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := Run(ctx, reg, store, olderThan)
				if obs != nil {
					obs.ObserveSweep(res.Aborted, res.Failed)
				}
				if err != nil {
					if ctx.Err() == nil {
						logger.Error("sweeper: run failed", slog.String("error", err.Error()))
					}
					continue
				}
				logger.Info("sweeper: pass",
					slog.Int("scanned", res.Scanned),
					slog.Int("aborted", res.Aborted),
					slog.Int("failed", res.Failed),
					slog.String("olderThan", olderThan.String()),
				)
			}
		}
	}()
	return cancel
}
