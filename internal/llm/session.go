package llm

import (
	"sync"
	"time"
)

// sessionIdleTTL is how long an untouched session survives before eviction.
const sessionIdleTTL = 5 * time.Minute

// Session holds a cached context string prepended to every call made under
// its ID, plus hit/miss counters for cache effectiveness reporting.
type Session struct {
	ID            string
	CachedContext string
	Hits          int
	Misses        int
	LastUsed      time.Time
}

// SessionStore is the process-wide, mutex-guarded session map. Sessions
// idle for five minutes are evicted lazily on access.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Open creates or refreshes a session with the given cached context.
func (s *SessionStore) Open(id, cachedContext string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictIdle()

	s.sessions[id] = &Session{
		ID:            id,
		CachedContext: cachedContext,
		LastUsed:      s.now(),
	}
}

// CachedContext returns the session's cached context, counting a hit when
// present and a miss when the session is unknown or evicted.
func (s *SessionStore) CachedContext(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictIdle()

	session, ok := s.sessions[id]
	if !ok {
		return ""
	}
	if session.CachedContext == "" {
		session.Misses++
	} else {
		session.Hits++
	}
	session.LastUsed = s.now()
	return session.CachedContext
}

// Close drops a session explicitly.
func (s *SessionStore) Close(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Stats returns (hits, misses) for a session, zeroes when unknown.
func (s *SessionStore) Stats(id string) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		return session.Hits, session.Misses
	}
	return 0, 0
}

func (s *SessionStore) evictIdle() {
	cutoff := s.now().Add(-sessionIdleTTL)
	for id, session := range s.sessions {
		if session.LastUsed.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}
