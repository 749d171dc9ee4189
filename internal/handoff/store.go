package handoff

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gdlqbot/authrelay"
)

// ErrNotFound is returned by TakeOnce for any key that does not identify a
// live entry: keys that were never issued, keys whose entry has already been
// collected, and keys whose entry has expired are all indistinguishable to
// the caller
var ErrNotFound = errors.New("no credential found for key")

// Store is an in-memory registry of credentials awaiting one-time collection.
// Every entry expires a fixed TTL after insertion if not collected first;
// whichever of collection and expiry happens first removes the entry, and the
// other observes it as already gone.
type Store struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*storeEntry

	// now is only overridden in tests
	now func() time.Time
}

type storeEntry struct {
	record    authrelay.Credential
	expiresAt time.Time
	timer     *time.Timer
}

// NewStore initializes a Store whose entries live for the given TTL. A
// non-positive TTL is a configuration error.
func NewStore(ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("handoff TTL must be positive; got %s", ttl)
	}
	return &Store{
		ttl:     ttl,
		entries: make(map[string]*storeEntry),
		now:     time.Now,
	}, nil
}

// Put registers the given credential under a freshly generated key and
// returns that key. The entry will be removed automatically once the store's
// TTL elapses, if it has not been collected via TakeOnce before then.
func (s *Store) Put(record authrelay.Credential) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 128 bits of entropy makes a collision with a live key astronomically
	// unlikely, but regenerating costs nothing
	key := generateKey()
	for {
		if _, exists := s.entries[key]; !exists {
			break
		}
		key = generateKey()
	}

	entry := &storeEntry{
		record:    record,
		expiresAt: s.now().Add(s.ttl),
	}
	entry.timer = time.AfterFunc(s.ttl, func() {
		s.expire(key)
	})
	s.entries[key] = entry
	return key
}

// TakeOnce atomically removes and returns the credential stored under the
// given key. If the key is unknown, already collected, or expired, it returns
// ErrNotFound.
func (s *Store) TakeOnce(key string) (authrelay.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return authrelay.Credential{}, ErrNotFound
	}
	delete(s.entries, key)
	entry.timer.Stop()

	// The entry's deadline may have passed before its timer callback ran: a
	// dead entry must never be served, so treat it exactly like a missing one
	if !entry.expiresAt.After(s.now()) {
		return authrelay.Credential{}, ErrNotFound
	}
	return entry.record, nil
}

// Len reports the number of live entries, for diagnostics
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels all pending expiry timers and drops all entries
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		entry.timer.Stop()
	}
	s.entries = make(map[string]*storeEntry)
}

// expire is invoked by an entry's timer once its TTL has elapsed; if TakeOnce
// already collected the entry this is a no-op
func (s *Store) expire(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func generateKey() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)
}
