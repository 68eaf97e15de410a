package executor

import (
	"context"
	"time"

	"github.com/Temiboboye/zbai/internal/models"
)

// orderBuffer reorders worker completions back into input order. Workers
// finish in whatever order the network allows; results are only released
// once every earlier index has completed. Not safe for concurrent use:
// callers serialize through the job lock.
type orderBuffer struct {
	pending map[int]models.VerificationResult
	next    int
	total   int
}

func newOrderBuffer(total int) *orderBuffer {
	return &orderBuffer{pending: make(map[int]models.VerificationResult), total: total}
}

// complete stores the result for index i and returns the contiguous run of
// results now releasable, possibly empty.
func (b *orderBuffer) complete(i int, res models.VerificationResult) []models.VerificationResult {
	b.pending[i] = res

	var ready []models.VerificationResult
	for {
		r, ok := b.pending[b.next]
		if !ok {
			break
		}
		delete(b.pending, b.next)
		ready = append(ready, r)
		b.next++
	}
	return ready
}

// rateLimiter is a token bucket refilled at a fixed rate, shared across all
// jobs so the pool stays friendly to upstream resolvers and MX hosts.
type rateLimiter struct {
	tokens chan struct{}
}

func newRateLimiter(ctx context.Context, perSecond int) *rateLimiter {
	rl := &rateLimiter{tokens: make(chan struct{}, perSecond)}

	// Pre-fill so a fresh executor does not stall its first burst.
	for i := 0; i < perSecond; i++ {
		rl.tokens <- struct{}{}
	}

	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(perSecond))
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case rl.tokens <- struct{}{}:
				default:
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return rl
}

func (rl *rateLimiter) wait(ctx context.Context) error {
	select {
	case <-rl.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
