package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Temiboboye/zbai/internal/classify"
)

// TriState is the catch-all observation for a domain: we may simply not
// know yet (SMTP blocked, probe inconclusive).
type TriState int

const (
	Unknown TriState = iota
	False
	True
)

func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	}
	return "unknown"
}

// DefaultTTL is how long a domain observation stays valid.
const DefaultTTL = 24 * time.Hour

// Entry is one per-domain observation: provider tag plus catch-all state.
type Entry struct {
	Provider   classify.Provider
	CatchAll   TriState
	ObservedAt time.Time
	TTL        time.Duration
}

func (e Entry) fresh(now time.Time) bool {
	return now.Before(e.ObservedAt.Add(e.TTL))
}

// Store is the in-memory per-domain cache. Reads go through a shared lock,
// writes are serialized and freshness-checked so a slow prober finishing
// late cannot clobber a newer observation.
type Store struct {
	mu    sync.RWMutex
	items map[string]Entry
	ttl   time.Duration
}

func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{items: make(map[string]Entry), ttl: ttl}
}

// Get returns the entry for the domain if present and unexpired.
func (s *Store) Get(domain string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[strings.ToLower(domain)]
	if !ok || !e.fresh(time.Now()) {
		return Entry{}, false
	}
	return e, true
}

// SetProvider records the classifier tag, creating the entry lazily.
func (s *Store) SetProvider(domain string, p classify.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(domain)
	e := s.entryLocked(key)
	e.Provider = p
	e.ObservedAt = time.Now()
	s.items[key] = e
}

// SetCatchAll records a catch-all observation. An Unknown verdict never
// overwrites a conclusive one that is still fresh; racing probers are
// acceptable, losing information is not.
func (s *Store) SetCatchAll(domain string, v TriState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(domain)
	e := s.entryLocked(key)
	if v == Unknown && e.CatchAll != Unknown && e.fresh(time.Now()) {
		return
	}
	e.CatchAll = v
	e.ObservedAt = time.Now()
	s.items[key] = e
}

// entryLocked returns the current entry or a blank one if missing/expired.
// Caller holds the write lock.
func (s *Store) entryLocked(key string) Entry {
	e, ok := s.items[key]
	if !ok || !e.fresh(time.Now()) {
		return Entry{Provider: classify.Generic, CatchAll: Unknown, TTL: s.ttl}
	}
	return e
}

// Cleanup removes expired entries.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, e := range s.items {
		if !e.fresh(now) {
			delete(s.items, k)
		}
	}
}

// StartCleanup launches a single goroutine that evicts expired entries every
// interval and exits when ctx is cancelled.
func (s *Store) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Len reports the current entry count, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
