package uploader

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/maneesh/voicehub/internal/apperr"
	"github.com/stretchr/testify/require"
)

func TestLinearBackOffSchedule(t *testing.T) {
	t.Parallel()

	b := RetryPolicy{Attempts: 3, Step: time.Second}.BackOff(context.Background())

	require.Equal(t, time.Second, b.NextBackOff(), "first retry")
	require.Equal(t, 2*time.Second, b.NextBackOff(), "second retry")
	require.Equal(t, backoff.Stop, b.NextBackOff(), "retries exhausted")

	b.Reset()
	require.Equal(t, time.Second, b.NextBackOff(), "reset restarts schedule")
}

func TestRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{}.withDefaults()
	require.Equal(t, DefaultAttempts, p.Attempts, "attempts")
	require.Equal(t, time.Duration(0), p.Delay(0), "no delay before first attempt")
	require.Equal(t, 3*time.Second, DefaultRetryPolicy().Delay(3), "linear")
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", errors.New("connection reset"), true},
		{"server error", &StorageError{StatusCode: http.StatusBadGateway}, true},
		{"throttled", &StorageError{StatusCode: http.StatusTooManyRequests}, true},
		{"expired url", &StorageError{StatusCode: http.StatusForbidden}, true},
		{"bad request", &StorageError{StatusCode: http.StatusBadRequest}, false},
		{"cancelled", context.Canceled, false},
		{"api forbidden", apperr.Forbidden("not yours"), false},
		{"api upstream", apperr.UpstreamUnavailable(nil, "down"), true},
	}

	for _, tc := range tests {
		require.Equalf(t, tc.want, retryable(tc.err), "case %s", tc.name)
	}
}

func TestCancelToken(t *testing.T) {
	t.Parallel()

	var nilToken *CancelToken
	require.False(t, nilToken.Cancelled(), "nil token never cancelled")

	tok := NewCancelToken()
	require.False(t, tok.Cancelled(), "fresh token")
	tok.Cancel()
	tok.Cancel()
	require.True(t, tok.Cancelled(), "cancelled")
}
