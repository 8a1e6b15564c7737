package posting

import (
	"context"
	"time"

	"github.com/transfa/ledger-kernel/internal/ledgererr"
)

// withRetry runs fn, retrying up to maxAttempts total attempts with
// exponential backoff while the error is Transient (spec §4.2 step 6:
// "the engine retries up to N times with exponential backoff before
// surfacing TransientConflict"). maxAttempts < 1 is treated as 1.
func withRetry(ctx context.Context, maxAttempts int, baseBackoff time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	backoff := baseBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !ledgererr.IsRetryable(lastErr) || attempt == maxAttempts {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}
