// Package ledger is the credit two-phase debit boundary: Reserve holds
// credits, Commit finalizes usage, Refund releases the unused remainder.
// Commit and Refund are idempotent per reservation token.
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInsufficientCredits is a typed result, not an exception path:
	// callers branch on it.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrUnknownReservation means the token was never issued or belongs
	// to another ledger instance.
	ErrUnknownReservation = errors.New("unknown reservation token")
)

// Token identifies one reservation. Opaque to callers.
type Token string

// Ledger is the collaborator interface the executor consumes. All three
// calls must be atomic; Commit and Refund must be no-ops the second time
// for the same token and amount semantics.
type Ledger interface {
	Reserve(ctx context.Context, owner string, n int) (Token, error)
	Commit(ctx context.Context, token Token, nUsed int) error
	Refund(ctx context.Context, token Token, nUnused int) error
}

// Retry policy for ledger calls: exponential backoff, 3 tries, 100ms base
// capped at 2s. Probes never retry; the ledger does because a failed
// settlement strands credits.
const (
	retryAttempts = 3
	retryBase     = 100 * time.Millisecond
	retryCap      = 2 * time.Second
)

// withRetry runs fn up to retryAttempts times with exponential backoff.
// Typed business outcomes (insufficient credits, unknown token) are final
// and never retried.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	delay := retryBase
	for attempt := 0; attempt < retryAttempts; attempt++ {
		err = fn()
		if err == nil || errors.Is(err, ErrInsufficientCredits) || errors.Is(err, ErrUnknownReservation) {
			return err
		}
		if attempt == retryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > retryCap {
			delay = retryCap
		}
	}
	return err
}
