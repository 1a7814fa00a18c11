package config

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestConfig_ValidateRequiresHTTPS(t *testing.T) {
	cfg := Config{UpstreamBaseURL: "http://example.com", UpstreamAPIKey: "k", DefaultModel: "m"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for non-https upstream URL")
	}

	cfg.UpstreamBaseURL = "https://example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error for valid config: %v", err)
	}
}

func TestConfig_Redacted(t *testing.T) {
	cfg := Config{AdminSecret: "supersecret"}
	redacted := cfg.Redacted()
	if redacted.AdminSecret != "" {
		t.Errorf("expected adminSecret to be cleared, got %q", redacted.AdminSecret)
	}
}

func TestVerifySecret_PlaintextBootstrap(t *testing.T) {
	ok, needsRehash := VerifySecret("bootstrap-pass", "bootstrap-pass")
	if !ok || !needsRehash {
		t.Errorf("expected plaintext match to succeed and request rehash, got ok=%v needsRehash=%v", ok, needsRehash)
	}
}

func TestVerifySecret_HashedSecret(t *testing.T) {
	hash, err := HashSecret("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	ok, needsRehash := VerifySecret(hash, "correct horse")
	if !ok || needsRehash {
		t.Errorf("expected hashed match without rehash, got ok=%v needsRehash=%v", ok, needsRehash)
	}

	ok, _ = VerifySecret(hash, "wrong password")
	if ok {
		t.Error("expected wrong password to fail verification")
	}
}

func TestGenerateLocalAPIKey_Is32BytesHex(t *testing.T) {
	key, err := GenerateLocalAPIKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != 64 {
		t.Errorf("expected 64 hex chars for 32 bytes, got %d", len(key))
	}
}

func TestStore_UpdatePersistsAndPublishesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	_, err = store.Update(func(c *Config) {
		c.UpstreamBaseURL = "https://generativelanguage.googleapis.com"
		c.UpstreamAPIKey = "secret"
		c.DefaultModel = "gemini-1.5-pro"
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got := store.Get()
	if got.UpstreamBaseURL != "https://generativelanguage.googleapis.com" {
		t.Errorf("unexpected published config: %+v", got)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	if reopened.Get().UpstreamAPIKey != "secret" {
		t.Error("expected persisted config to survive reload")
	}
}

func TestStore_UpdateRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	before := store.Get()
	_, err = store.Update(func(c *Config) {
		c.UpstreamBaseURL = "http://insecure.example.com"
	})
	if err == nil {
		t.Fatal("expected validation error for http upstream URL")
	}
	if !reflect.DeepEqual(store.Get(), before) {
		t.Error("expected rejected update to leave the published config unchanged")
	}
}
