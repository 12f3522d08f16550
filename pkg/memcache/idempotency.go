package mem

import (
	"sync"
	"time"
)

type IdempotencyStore interface {
	// Reserve claims key for ttl. It returns false if the key is already
	// held and not expired.
	Reserve(key string, ttl time.Duration) bool

	// Release drops key so a failed request can be retried with it.
	Release(key string)

	// Purge removes expired keys and returns how many were dropped.
	Purge() int
}

type IdempotencyKeys struct {
	mu   sync.Mutex
	data map[string]time.Time // key -> expiry
	now  func() time.Time
}

func NewIdempotencyKeys() *IdempotencyKeys {
	return NewIdempotencyKeysWithClock(time.Now)
}

func NewIdempotencyKeysWithClock(now func() time.Time) *IdempotencyKeys {
	return &IdempotencyKeys{
		data: make(map[string]time.Time),
		now:  now,
	}
}

func (s *IdempotencyKeys) Reserve(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.data[key]; ok && now.Before(exp) {
		return false
	}
	s.data[key] = now.Add(ttl)
	return true
}

func (s *IdempotencyKeys) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

func (s *IdempotencyKeys) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, exp := range s.data {
		if !now.Before(exp) {
			delete(s.data, k)
			n++
		}
	}
	return n
}
