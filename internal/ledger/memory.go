package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type reservation struct {
	owner    string
	amount   int
	commit   int
	refunded int
	settled  bool
}

// Memory is the in-process ledger used by tests and single-node deploys.
type Memory struct {
	mu           sync.Mutex
	balances     map[string]int
	reservations map[Token]*reservation
}

func NewMemory() *Memory {
	return &Memory{
		balances:     make(map[string]int),
		reservations: make(map[Token]*reservation),
	}
}

// Credit grants n credits to the owner.
func (m *Memory) Credit(owner string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[owner] += n
}

// Balance returns the owner's free (unreserved) credits.
func (m *Memory) Balance(owner string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[owner]
}

func (m *Memory) Reserve(_ context.Context, owner string, n int) (Token, error) {
	if n <= 0 {
		return "", fmt.Errorf("reserve amount must be positive, got %d", n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.balances[owner] < n {
		return "", fmt.Errorf("owner %s has %d credits, needs %d: %w",
			owner, m.balances[owner], n, ErrInsufficientCredits)
	}
	m.balances[owner] -= n

	token := Token(uuid.New().String())
	m.reservations[token] = &reservation{owner: owner, amount: n}
	return token, nil
}

// Commit finalizes nUsed debited credits and releases the rest of the hold.
// A second settlement on the same token is a no-op.
func (m *Memory) Commit(_ context.Context, token Token, nUsed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[token]
	if !ok {
		return ErrUnknownReservation
	}
	if r.settled {
		return nil
	}
	if nUsed < 0 || nUsed > r.amount {
		return fmt.Errorf("commit of %d outside reservation of %d", nUsed, r.amount)
	}
	r.commit = nUsed
	r.refunded = r.amount - nUsed
	r.settled = true
	m.balances[r.owner] += r.refunded
	return nil
}

// Refund returns nUnused credits and debits the remainder of the hold.
// Idempotent like Commit.
func (m *Memory) Refund(_ context.Context, token Token, nUnused int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[token]
	if !ok {
		return ErrUnknownReservation
	}
	if r.settled {
		return nil
	}
	if nUnused < 0 || nUnused > r.amount {
		return fmt.Errorf("refund of %d outside reservation of %d", nUnused, r.amount)
	}
	r.refunded = nUnused
	r.commit = r.amount - nUnused
	r.settled = true
	m.balances[r.owner] += nUnused
	return nil
}

// Committed reports the finally debited amount for a settled token.
func (m *Memory) Committed(token Token) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[token]
	if !ok || !r.settled {
		return 0, false
	}
	return r.commit, true
}
