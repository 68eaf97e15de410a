package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveDebitsBalance(t *testing.T) {
	m := NewMemory()
	m.Credit("acct", 10)

	token, err := m.Reserve(context.Background(), "acct", 4)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 6, m.Balance("acct"), "held credits leave the free balance")
}

func TestReserveInsufficient(t *testing.T) {
	m := NewMemory()
	m.Credit("acct", 3)

	_, err := m.Reserve(context.Background(), "acct", 4)
	require.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, 3, m.Balance("acct"), "a failed reserve holds nothing")
}

func TestReserveRejectsNonPositive(t *testing.T) {
	m := NewMemory()
	m.Credit("acct", 3)

	_, err := m.Reserve(context.Background(), "acct", 0)
	assert.Error(t, err)
}

func TestCommitPartialAutoRefundsRemainder(t *testing.T) {
	m := NewMemory()
	m.Credit("acct", 10)
	token, err := m.Reserve(context.Background(), "acct", 5)
	require.NoError(t, err)

	require.NoError(t, m.Commit(context.Background(), token, 3))
	assert.Equal(t, 7, m.Balance("acct"), "3 debited, 2 released")

	committed, ok := m.Committed(token)
	require.True(t, ok)
	assert.Equal(t, 3, committed)
}

func TestRefund(t *testing.T) {
	m := NewMemory()
	m.Credit("acct", 10)
	token, err := m.Reserve(context.Background(), "acct", 5)
	require.NoError(t, err)

	require.NoError(t, m.Refund(context.Background(), token, 5))
	assert.Equal(t, 10, m.Balance("acct"), "full refund restores the balance")

	committed, ok := m.Committed(token)
	require.True(t, ok)
	assert.Zero(t, committed)
}

func TestSettleOnce(t *testing.T) {
	m := NewMemory()
	m.Credit("acct", 10)
	token, err := m.Reserve(context.Background(), "acct", 5)
	require.NoError(t, err)

	require.NoError(t, m.Commit(context.Background(), token, 5))

	// Later settlements on the same token change nothing.
	require.NoError(t, m.Commit(context.Background(), token, 1))
	require.NoError(t, m.Refund(context.Background(), token, 5))
	assert.Equal(t, 5, m.Balance("acct"))

	committed, _ := m.Committed(token)
	assert.Equal(t, 5, committed)
}

func TestCommitOutsideReservation(t *testing.T) {
	m := NewMemory()
	m.Credit("acct", 10)
	token, err := m.Reserve(context.Background(), "acct", 2)
	require.NoError(t, err)

	assert.Error(t, m.Commit(context.Background(), token, 3))
	assert.Error(t, m.Refund(context.Background(), token, -1))
}

func TestUnknownToken(t *testing.T) {
	m := NewMemory()
	assert.ErrorIs(t, m.Commit(context.Background(), "bogus", 1), ErrUnknownReservation)
	assert.ErrorIs(t, m.Refund(context.Background(), "bogus", 1), ErrUnknownReservation)
}

func TestWithRetryStopsOnBusinessError(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		return ErrInsufficientCredits
	})
	require.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, 1, calls, "typed outcomes are final, not transient")
}

func TestWithRetryRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return assert.AnError
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}
