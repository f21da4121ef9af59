// Package store implements the key-value store with lazy expiry: a map of
// string keys to typed values, plus an expiry index ordered by instant so a
// sweep of "everything due by now" runs in O(k log n).
package store

import (
	"sort"
	"sync"
	"time"

	"redisd/internal/clock"
)

type expiryBucket struct {
	at   time.Time
	keys []string
}

// Store is the process-wide singleton holding all keys. Every operation
// acquires a single internal lock for its smallest critical section;
// nothing in this package performs socket I/O while holding it.
type Store struct {
	clock clock.Clock

	mu       sync.Mutex
	data     map[string]Value
	expiries []expiryBucket // sorted ascending by `at`
}

// New returns an empty Store driven by clk.
func New(clk clock.Clock) *Store {
	return &Store{
		clock: clk,
		data:  make(map[string]Value),
	}
}

// Set inserts or overwrites key with value. If expiryMS is non-nil, key is
// scheduled to expire at now+*expiryMS; an existing expiry bucket for key is
// never removed on overwrite; lazy eviction tolerates the stale entry.
func (s *Store) Set(key string, value Value, expiryMS *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expiryMS != nil {
		at := s.clock.Now().Add(time.Duration(*expiryMS) * time.Millisecond)
		s.scheduleExpiryLocked(at, key)
	}
	s.data[key] = value
}

// scheduleExpiryLocked must be called with mu held.
func (s *Store) scheduleExpiryLocked(at time.Time, key string) {
	i := sort.Search(len(s.expiries), func(i int) bool {
		return !s.expiries[i].at.Before(at)
	})
	if i < len(s.expiries) && s.expiries[i].at.Equal(at) {
		s.expiries[i].keys = append(s.expiries[i].keys, key)
		return
	}
	bucket := expiryBucket{at: at, keys: []string{key}}
	s.expiries = append(s.expiries, expiryBucket{})
	copy(s.expiries[i+1:], s.expiries[i:])
	s.expiries[i] = bucket
}

// Get performs a lazy expiry sweep and then looks up key.
func (s *Store) Get(key string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(s.clock.Now())
	v, ok := s.data[key]
	return v, ok
}

// TypeName returns the Redis type name for key ("string", "stream", or
// "none"). Only Get sweeps expiries; TypeName reports whatever is currently
// held, expired or not.
func (s *Store) TypeName(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return "none"
	}
	return v.TypeName()
}

// sweepLocked removes every key whose expiry instant is <= t from data, and
// retains expiry buckets with instant >= t (mu must be held).
//
// An instant exactly equal to t is therefore both evicted from data AND
// retained in the expiry index. The retained bucket is harmless: its keys
// are already gone from data, so the next sweep's unconditional delete is a
// no-op, and any later SET on that key schedules a fresh bucket rather than
// touching the stale one.
func (s *Store) sweepLocked(t time.Time) {
	cut := sort.Search(len(s.expiries), func(i int) bool {
		return s.expiries[i].at.After(t)
	})
	for _, bucket := range s.expiries[:cut] {
		for _, k := range bucket.keys {
			delete(s.data, k)
		}
	}

	retainFrom := sort.Search(len(s.expiries), func(i int) bool {
		return !s.expiries[i].at.Before(t)
	})
	s.expiries = s.expiries[retainFrom:]
}

// Sweep runs an expiry pass for t. Exposed for callers (tests, INFO-style
// diagnostics) that want to force a sweep without a GET.
func (s *Store) Sweep(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(t)
}
