package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore implements Store using ttlcache. Suitable for single-process
// deployments; sessions do not survive a restart.
type MemoryStore struct {
	cache *ttlcache.Cache[string, Session]
}

// NewMemoryStore creates a new in-memory session store with automatic
// expiry of stale sessions.
func NewMemoryStore() *MemoryStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, Session](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryStore{cache: cache}
}

// Create implements Store.Create.
func (s *MemoryStore) Create(_ context.Context, sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session: missing session id")
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session: expires_at must be in the future")
	}

	s.cache.Set(sess.ID, sess, ttl)

	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	item := s.cache.Get(sessionID)
	if item == nil {
		return nil, nil // not found
	}

	sess := item.Value()

	return &sess, nil
}

// Update implements Store.Update. An already expired session is deleted
// instead of extended.
func (s *MemoryStore) Update(_ context.Context, sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session: missing session id")
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		s.cache.Delete(sess.ID)
		return nil
	}

	s.cache.Set(sess.ID, sess, ttl)

	return nil
}

// Delete implements Store.Delete.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.cache.Delete(sessionID)

	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.cache.Stop()

	return nil
}

var _ Store = (*MemoryStore)(nil)
