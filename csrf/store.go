package csrf

import "time"

// Record is the anti-forgery token currently bound to one session key.
type Record struct {
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the record's TTL has elapsed at the given instant.
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE

// Store associates session keys with their current anti-forgery token.
// There is at most one live record per session key. Implementations must
// be safe for concurrent use by many in-flight request handlers.
type Store interface {
	// Put inserts or overwrites the record for sessionKey with
	// expiry now+ttl. It always succeeds.
	Put(sessionKey, token string, ttl time.Duration)

	// Get returns the live record for sessionKey. Records whose TTL has
	// elapsed are reported as absent even before the sweeper reclaims them.
	Get(sessionKey string) (Record, bool)

	// Swap atomically replaces the record for sessionKey with next iff a
	// live record exists and its token equals expected. It reports whether
	// the swap happened. The comparison is exact and constant-time.
	Swap(sessionKey, expected, next string, ttl time.Duration) bool

	// Sweep removes every record that has expired at the given instant and
	// returns the number of records removed.
	Sweep(now time.Time) int
}
