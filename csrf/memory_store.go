package csrf

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSweepInterval is how often the background janitor reclaims
// expired records when none is configured.
const DefaultSweepInterval = time.Hour

// MemoryStore is an in-process Store backed by a mutex-guarded map.
// Records are replaced whole under the lock, so a concurrent Sweep never
// observes a half-written record.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record

	now func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryStore creates an empty in-memory token store. The background
// sweeper is not started until StartSweeping is called.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates a store that reads the current time from
// the given clock. Used by tests to exercise expiry without sleeping.
func NewMemoryStoreWithClock(clock func() time.Time) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     clock,
		done:    make(chan struct{}),
	}
}

// Put implements Store.Put.
func (s *MemoryStore) Put(sessionKey, token string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[sessionKey] = Record{
		Token:     token,
		ExpiresAt: s.now().Add(ttl),
	}
}

// Get implements Store.Get. Expired records are reported absent; the
// sweeper reclaims the memory later.
func (s *MemoryStore) Get(sessionKey string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[sessionKey]
	if !ok || rec.Expired(s.now()) {
		return Record{}, false
	}

	return rec, true
}

// Swap implements Store.Swap. Validation and rotation happen under a single
// lock acquisition, so two concurrent unsafe requests presenting the same
// token serialize: exactly one of them consumes it.
func (s *MemoryStore) Swap(sessionKey, expected, next string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sessionKey]
	if !ok || rec.Expired(s.now()) {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(rec.Token), []byte(expected)) != 1 {
		return false
	}

	s.records[sessionKey] = Record{
		Token:     next,
		ExpiresAt: s.now().Add(ttl),
	}

	return true
}

// Sweep implements Store.Sweep.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, key)
			removed++
		}
	}

	return removed
}

// Len returns the number of records currently held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// StartSweeping launches the background janitor that reclaims expired
// records every interval. It runs until Stop is called.
func (s *MemoryStore) StartSweeping(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(s.now()); n > 0 {
					log.Debug().Int("removed", n).Msg("csrf: swept expired token records")
				}
			case <-s.done:
				return
			}
		}
	}()
}

// Stop terminates the background sweeper. Safe to call more than once and
// safe to call even if StartSweeping was never invoked.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

var _ Store = (*MemoryStore)(nil)
