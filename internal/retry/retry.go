// Package retry gives callers a way to have the engine retry
// VaultBusy/LockContended errors on their behalf instead of handling
// the bounded-spin contention model described by spec.md §5
// themselves.
//
// Grounded on the teacher's own dependency on cenkalti/backoff for
// reconnect retries (go.mod's transitive backoff requirement, listed
// in DESIGN.md's dependency inventory); the core's own lock-acquisition
// retry (internal/keystore's TakeOrCreateSpin/TakeKeySpin) uses a
// fixed bounded spin per spec.md §5 exactly, so this package is a
// separate, caller-facing convenience layered on top rather than a
// replacement for it.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v3"
)

// Retryable reports whether err is one this package's Do should retry
// rather than give up on immediately.
type Retryable func(error) bool

// Do runs fn, retrying with exponential backoff while shouldRetry(err)
// is true, until fn succeeds, shouldRetry returns false, or ctx is
// done. It gives up and returns the last error once the backoff's
// max elapsed time is exceeded.
func Do(ctx context.Context, shouldRetry Retryable, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second

	var lastErr error
	op := func() error {
		err := fn()
		lastErr = err
		if err == nil {
			return nil
		}
		if !shouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return lastErr
	}
	return nil
}
