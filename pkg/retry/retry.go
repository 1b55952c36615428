package retry

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// DefaultAttempts suits idempotent RPC view calls.
const DefaultAttempts = 3

// Do runs fn up to attempts times, sleeping with jittered exponential
// backoff between failures. Only idempotent operations belong here;
// state-changing transactions must never be retried. Returns the last
// error when every attempt fails, or the context error on cancellation.
func Do(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	b := &backoff.Backoff{
		Min:    200 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return err
}
