package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-quiz-service/internal/app"
)

// markerTimeout bounds each liveness marker write.
const markerTimeout = 250 * time.Millisecond

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Live sessions (with their countdown goroutines) stay in a local map;
//     durable state goes through Storage.
//   - Redis holds a liveness marker per open session so other instances
//     and operators can see which attempts are currently open. Marker
//     writes happen outside the map lock.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(clientID string, create func() *app.Session) *app.Session {
	session, created := s.getOrCreate(clientID, create, false)
	if created {
		s.mark(clientID)
	}
	return session
}

func (s *SessionStore) Acquire(clientID string, create func() *app.Session) *app.Session {
	session, created := s.getOrCreate(clientID, create, true)
	if created {
		s.mark(clientID)
	}
	return session
}

func (s *SessionStore) getOrCreate(clientID string, create func() *app.Session, attach bool) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[clientID]
	if !ok {
		session = create()
		s.sessions[clientID] = session
	}
	if attach {
		session.Attach()
	}
	return session, !ok
}

func (s *SessionStore) Get(clientID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[clientID]
	return session, ok
}

func (s *SessionStore) DeleteIfIdle(clientID string) {
	s.mu.Lock()
	session, ok := s.sessions[clientID]
	removed := ok && session.IsIdle()
	if removed {
		session.Close()
		delete(s.sessions, clientID)
	}
	s.mu.Unlock()

	if removed {
		s.unmark(clientID)
	}
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

// mark and unmark are best effort; a slow or absent Redis only loses the marker.
func (s *SessionStore) mark(clientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), markerTimeout)
	defer cancel()
	_ = s.client.Set(ctx, s.key(clientID), "1", s.ttl).Err()
}

func (s *SessionStore) unmark(clientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), markerTimeout)
	defer cancel()
	_ = s.client.Del(ctx, s.key(clientID)).Err()
}

func (s *SessionStore) key(clientID string) string {
	return "quiz:live:" + clientID
}
