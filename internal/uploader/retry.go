package uploader

import (
	"context"
	"errors"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/maneesh/voicehub/internal/apperr"
)

const (
	DefaultAttempts  = 3
	DefaultRetryStep = time.Second
)

// RetryPolicy bounds per-part retries. The wait before retry n is n*Step.
type RetryPolicy struct {
	Attempts int
	Step     time.Duration
}

// DefaultRetryPolicy is three attempts spaced one and two seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: DefaultAttempts, Step: DefaultRetryStep}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = DefaultAttempts
	}
	if p.Step < 0 {
		p.Step = 0
	}
	return p
}

// Delay returns the wait before the given retry, counted from 1.
func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	return time.Duration(retry) * p.Step
}

// BackOff returns a fresh schedule allowing Attempts-1 retries.
func (p RetryPolicy) BackOff(ctx context.Context) backoff.BackOff {
	p = p.withDefaults()
	b := backoff.WithMaxRetries(&linearBackOff{policy: p}, uint64(p.Attempts-1))
	return backoff.WithContext(b, ctx)
}

type linearBackOff struct {
	policy RetryPolicy
	retry  int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.retry++
	return b.policy.Delay(b.retry)
}

func (b *linearBackOff) Reset() {
	b.retry = 0
}

// retryable reports whether a failed part PUT is worth another attempt.
// Expired or revoked URLs (403) are retried after a re-sign.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var serr *StorageError
	if errors.As(err, &serr) {
		switch {
		case serr.StatusCode == http.StatusForbidden,
			serr.StatusCode == http.StatusRequestTimeout,
			serr.StatusCode == http.StatusTooManyRequests,
			serr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	var aerr *apperr.Error
	if errors.As(err, &aerr) {
		return aerr.Kind == apperr.KindUpstreamUnavailable
	}

	return true
}

func needsResign(err error) bool {
	var serr *StorageError
	return errors.As(err, &serr) && serr.StatusCode == http.StatusForbidden
}
