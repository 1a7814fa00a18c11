package session

import (
	"testing"
	"time"
)

func TestStore_CreateAndValidate(t *testing.T) {
	s := NewStore()
	sess, err := s.Create()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sess.Token) != tokenBytes*2 {
		t.Errorf("expected %d hex chars, got %d", tokenBytes*2, len(sess.Token))
	}
	if !s.Validate(sess.Token) {
		t.Error("expected freshly created session to validate")
	}
}

func TestStore_ValidateRejectsUnknownToken(t *testing.T) {
	s := NewStore()
	if s.Validate("not-a-real-token") {
		t.Error("expected unknown token to fail validation")
	}
}

func TestStore_ExpiresAfterTTL(t *testing.T) {
	s := NewStore()
	sess, err := s.Create()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.mu.Lock()
	expired := s.sessions[sess.Token]
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	s.sessions[sess.Token] = expired
	s.mu.Unlock()

	if s.Validate(sess.Token) {
		t.Error("expected expired session to fail validation")
	}
	if s.Count() != 0 {
		t.Error("expected expired session to be evicted on validation")
	}
}

func TestStore_ClearRemovesAllSessions(t *testing.T) {
	s := NewStore()
	s.Create()
	s.Create()
	if s.Count() != 2 {
		t.Fatalf("expected 2 sessions, got %d", s.Count())
	}

	s.Clear()
	if s.Count() != 0 {
		t.Errorf("expected 0 sessions after Clear, got %d", s.Count())
	}
}

func TestStore_Revoke(t *testing.T) {
	s := NewStore()
	sess, _ := s.Create()
	s.Revoke(sess.Token)
	if s.Validate(sess.Token) {
		t.Error("expected revoked session to fail validation")
	}
}
