package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/tokengate/core"
	"github.com/layer-3/tokengate/ports"
)

// MemoryStore is the in-memory Store implementation. It is the reference
// single-process backend and the one tests run against; it forfeits
// durability across restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]core.Session // refresh token -> session
	byJTI    map[string]string       // jti -> refresh token
	revoked  map[string]time.Time    // jti -> entry expiry

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]core.Session),
		byJTI:    make(map[string]string),
		revoked:  make(map[string]time.Time),
		now:      time.Now,
	}
}

var (
	_ ports.Store   = (*MemoryStore)(nil)
	_ ports.Sweeper = (*MemoryStore)(nil)
)

// SaveSession records a session under its refresh token.
func (s *MemoryStore) SaveSession(_ context.Context, refreshToken string, session core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[refreshToken] = session
	s.byJTI[session.JTI] = refreshToken
	return nil
}

// GetSession looks up a session; an entry past its refresh expiry is
// treated as absent.
func (s *MemoryStore) GetSession(_ context.Context, refreshToken string) (core.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[refreshToken]
	if !ok || !s.now().Before(session.RefreshExpiry) {
		return core.Session{}, false, nil
	}
	return session, true, nil
}

// DeleteSession removes a session by refresh token.
func (s *MemoryStore) DeleteSession(_ context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(refreshToken)
	return nil
}

// DeleteSessionByJTI removes the session matching the jti, if any.
func (s *MemoryStore) DeleteSessionByJTI(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if refreshToken, ok := s.byJTI[jti]; ok {
		s.deleteLocked(refreshToken)
	}
	return nil
}

// Revoke adds a jti to the revocation set until at least now+ttl.
func (s *MemoryStore) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry := s.now().Add(ttl)
	// Double revocation keeps the later expiry.
	if existing, ok := s.revoked[jti]; !ok || expiry.After(existing) {
		s.revoked[jti] = expiry
	}
	return nil
}

// IsRevoked checks the revocation set, ignoring entries already reclaimed.
func (s *MemoryStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiry, ok := s.revoked[jti]
	if !ok || s.now().After(expiry) {
		return false, nil
	}
	return true, nil
}

// Sweep reclaims expired sessions and revocation entries. It takes the same
// lock as foreground mutations.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0

	for refreshToken, session := range s.sessions {
		if !now.Before(session.RefreshExpiry) {
			s.deleteLocked(refreshToken)
			removed++
		}
	}
	for jti, expiry := range s.revoked {
		if now.After(expiry) {
			delete(s.revoked, jti)
			removed++
		}
	}

	return removed, nil
}

// Len reports the number of live session records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) deleteLocked(refreshToken string) {
	if session, ok := s.sessions[refreshToken]; ok {
		delete(s.byJTI, session.JTI)
	}
	delete(s.sessions, refreshToken)
}
