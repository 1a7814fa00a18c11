// Package session implements the admin surface's in-process session store:
// random-token login sessions with a fixed expiry, guarded the same way
// the teacher SDK's registry and cache packages guard their maps — a
// single sync.RWMutex sized for many concurrent readers and occasional
// writers.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

const (
	tokenBytes = 32 // 256 bits
	ttl        = time.Hour
)

// Session is one issued admin login.
type Session struct {
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Store holds all live admin sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewStore builds an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]Session)}
}

// Create issues a fresh session token valid for one hour.
func (s *Store) Create() (Session, error) {
	token, err := randomToken()
	if err != nil {
		return Session{}, err
	}

	now := time.Now()
	sess := Session{Token: token, CreatedAt: now, ExpiresAt: now.Add(ttl)}

	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()

	return sess, nil
}

// Validate reports whether token names a live, unexpired session. An
// expired session is evicted as a side effect.
func (s *Store) Validate(token string) bool {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return false
	}
	if sess.expired(time.Now()) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return false
	}
	return true
}

// Revoke removes a single session (logout).
func (s *Store) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Clear removes every session, invoked whenever the admin password
// changes.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]Session)
}

// Count reports the number of live sessions, for diagnostics.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func randomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
