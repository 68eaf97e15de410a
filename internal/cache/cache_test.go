package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Temiboboye/zbai/internal/classify"
)

func TestGetMiss(t *testing.T) {
	s := New(time.Hour)
	_, ok := s.Get("example.com")
	assert.False(t, ok)
}

func TestSetProviderAndGet(t *testing.T) {
	s := New(time.Hour)
	s.SetProvider("Example.COM", classify.Microsoft365)

	e, ok := s.Get("example.com")
	require.True(t, ok, "keys are case-insensitive")
	assert.Equal(t, classify.Microsoft365, e.Provider)
	assert.Equal(t, Unknown, e.CatchAll)
}

func TestSetCatchAll(t *testing.T) {
	s := New(time.Hour)
	s.SetCatchAll("example.com", True)

	e, ok := s.Get("example.com")
	require.True(t, ok)
	assert.Equal(t, True, e.CatchAll)
}

func TestUnknownNeverClobbersFreshConclusive(t *testing.T) {
	s := New(time.Hour)
	s.SetCatchAll("example.com", False)

	// A late inconclusive probe must not erase what we know.
	s.SetCatchAll("example.com", Unknown)

	e, ok := s.Get("example.com")
	require.True(t, ok)
	assert.Equal(t, False, e.CatchAll)

	// A conclusive verdict may still flip it.
	s.SetCatchAll("example.com", True)
	e, _ = s.Get("example.com")
	assert.Equal(t, True, e.CatchAll)
}

func TestExpiry(t *testing.T) {
	s := New(10 * time.Millisecond)
	s.SetProvider("example.com", classify.Zoho)

	_, ok := s.Get("example.com")
	require.True(t, ok)

	time.Sleep(25 * time.Millisecond)
	_, ok = s.Get("example.com")
	assert.False(t, ok, "expired entries are invisible to Get")

	assert.Equal(t, 1, s.Len())
	s.Cleanup()
	assert.Equal(t, 0, s.Len())
}

func TestTriStateString(t *testing.T) {
	assert.Equal(t, "unknown", Unknown.String())
	assert.Equal(t, "false", False.String())
	assert.Equal(t, "true", True.String())
}
