package tgui

import (
	"sync"
	"time"
)

// StateStore keeps short-lived conversation state keyed by string
// (typically "chat:user"). Entries expire after the TTL and are swept
// lazily at most once per cleanup interval.
type StateStore[T any] struct {
	mu sync.Mutex

	ttl             time.Duration
	max             int
	cleanupInterval time.Duration
	nextCleanup     time.Time
	now             func() time.Time

	m map[string]stateEntry[T]
}

type stateEntry[T any] struct {
	v   T
	exp time.Time
}

// NewStateStore creates a store. ttl <= 0 means 10 minutes.
func NewStateStore[T any](ttl time.Duration) *StateStore[T] {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateStore[T]{
		ttl:             ttl,
		max:             5000,
		cleanupInterval: time.Minute,
		now:             time.Now,
		m:               map[string]stateEntry[T]{},
	}
}

// WithClock overrides the time source.
func (s *StateStore[T]) WithClock(now func() time.Time) *StateStore[T] {
	s.mu.Lock()
	if now != nil {
		s.now = now
	}
	s.mu.Unlock()
	return s
}

// Put stores v under key and resets its expiry.
func (s *StateStore[T]) Put(key string, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.maybeCleanupLocked(now)
	s.m[key] = stateEntry[T]{v: v, exp: now.Add(s.ttl)}
	s.enforceMaxLocked()
}

func (s *StateStore[T]) Get(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.maybeCleanupLocked(now)
	e, ok := s.m[key]
	if !ok || now.After(e.exp) {
		if ok {
			delete(s.m, key)
		}
		var zero T
		return zero, false
	}
	return e.v, true
}

// Take returns and removes the entry.
func (s *StateStore[T]) Take(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	delete(s.m, key)
	if !ok || s.now().After(e.exp) {
		var zero T
		return zero, false
	}
	return e.v, true
}

func (s *StateStore[T]) Delete(key string) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

func (s *StateStore[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *StateStore[T]) maybeCleanupLocked(now time.Time) {
	if s.nextCleanup.IsZero() {
		s.nextCleanup = now.Add(s.cleanupInterval)
		return
	}
	if now.Before(s.nextCleanup) {
		return
	}
	for k, e := range s.m {
		if now.After(e.exp) {
			delete(s.m, k)
		}
	}
	s.nextCleanup = now.Add(s.cleanupInterval)
}

// enforceMaxLocked evicts arbitrary entries once the store is over max.
func (s *StateStore[T]) enforceMaxLocked() {
	over := len(s.m) - s.max
	for k := range s.m {
		if over <= 0 {
			return
		}
		delete(s.m, k)
		over--
	}
}
