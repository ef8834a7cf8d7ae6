package uploader

import "sync/atomic"

// CancelToken is a cooperative cancellation flag. The uploader checks it
// before starting each part; a part already in flight runs to completion.
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken returns an unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel sets the flag. It is safe to call more than once and from any
// goroutine.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called. A nil token is never set.
func (t *CancelToken) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}
