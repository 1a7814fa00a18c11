// Package config implements the gateway's single process-wide
// Configuration record: environment-seeded defaults, admin-surface-only
// mutation, and atomic write-temp-then-rename persistence grounded on the
// teacher pack's TimAnthonyAlexander-loom internal/workflow.Store — the
// same lock-save-rename shape, generalized from workflow state to gateway
// configuration and from JSON to YAML via gopkg.in/yaml.v3.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const (
	bcryptCost             = 12
	schemaVersion          = "1"
	localAPIKeyBytes       = 32
	defaultConfigPath      = "gatewayd.config.yaml"
	DefaultMaxRequestBytes = 200 << 20 // 200 MiB ceiling on an inbound request body
)

// MCPServer is one configured Model Context Protocol server the gateway's
// mcpbridge dials for tool-catalog merging.
type MCPServer struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Config is the single process-wide configuration record.
type Config struct {
	UpstreamBaseURL      string      `yaml:"upstreamBaseURL" json:"upstreamBaseURL"`
	UpstreamAPIKey       string      `yaml:"upstreamApiKey" json:"upstreamApiKey"`
	DefaultModel         string      `yaml:"defaultModel" json:"defaultModel"`
	LocalAPIKey          string      `yaml:"localApiKey" json:"localApiKey"`
	AdminSecret          string      `yaml:"adminSecret" json:"adminSecret,omitempty"`
	SchemaVersion        string      `yaml:"schemaVersion" json:"schemaVersion"`
	MCPServers           []MCPServer `yaml:"mcpServers,omitempty" json:"mcpServers,omitempty"`
	MaxRequestBodyBytes  int         `yaml:"maxRequestBodyBytes,omitempty" json:"maxRequestBodyBytes,omitempty"`
}

// Redacted returns a copy of c with AdminSecret cleared, for the admin
// surface's "get config" response.
func (c Config) Redacted() Config {
	c.AdminSecret = ""
	return c
}

// Validate checks the invariants the admin surface's "put config" enforces:
// the upstream URL must be HTTPS, and the required fields must be present.
func (c Config) Validate() error {
	if c.UpstreamBaseURL == "" {
		return errors.New("upstreamBaseURL is required")
	}
	parsed, err := url.Parse(c.UpstreamBaseURL)
	if err != nil {
		return fmt.Errorf("upstreamBaseURL is not a valid URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return errors.New("upstreamBaseURL must use https")
	}
	if c.UpstreamAPIKey == "" {
		return errors.New("upstreamApiKey is required")
	}
	if c.DefaultModel == "" {
		return errors.New("defaultModel is required")
	}
	return nil
}

// GenerateLocalAPIKey returns a fresh 32-byte random hex token.
func GenerateLocalAPIKey() (string, error) {
	return randomHex(localAPIKeyBytes)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashSecret hashes plaintext at the gateway's fixed bcrypt cost.
func HashSecret(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hashed), nil
}

// looksHashed reports whether secret is already a bcrypt hash, as opposed
// to a first-boot plaintext bootstrap value.
func looksHashed(secret string) bool {
	return len(secret) > 4 && (secret[:4] == "$2a$" || secret[:4] == "$2b$" || secret[:4] == "$2y$")
}

// VerifySecret checks plaintext against the stored admin secret, which may
// itself still be plaintext on first boot. It reports whether the secret
// needs to be rehashed (first successful login against a plaintext
// bootstrap value).
func VerifySecret(stored, plaintext string) (ok bool, needsRehash bool) {
	if !looksHashed(stored) {
		return stored == plaintext, stored == plaintext
	}
	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(plaintext))
	return err == nil, false
}

// Store loads and atomically persists the Configuration, and hands readers
// a snapshot-consistent copy via an atomic pointer swap rather than a lock
// held across the read.
type Store struct {
	path    string
	current atomic.Pointer[Config]
	saveMu  sync.Mutex
}

// NewStore loads the configuration at path, or env-derived defaults if the
// file does not yet exist.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultConfigPath
	}
	s := &Store{path: path}

	cfg, err := loadFromFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg, err = defaultsFromEnv()
		if err != nil {
			return nil, err
		}
	}
	s.current.Store(cfg)
	return s, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

func defaultsFromEnv() (*Config, error) {
	localKey := os.Getenv("GATEWAYD_LOCAL_API_KEY")
	if localKey == "" {
		generated, err := GenerateLocalAPIKey()
		if err != nil {
			return nil, err
		}
		localKey = generated
	}

	adminSecret := os.Getenv("GATEWAYD_ADMIN_SECRET")
	if adminSecret == "" {
		adminSecret = "changeme"
	}

	return &Config{
		UpstreamBaseURL:     os.Getenv("GATEWAYD_UPSTREAM_BASE_URL"),
		UpstreamAPIKey:      os.Getenv("GATEWAYD_UPSTREAM_API_KEY"),
		DefaultModel:        orDefault(os.Getenv("GATEWAYD_DEFAULT_MODEL"), "gemini-1.5-pro"),
		LocalAPIKey:         localKey,
		AdminSecret:         adminSecret,
		SchemaVersion:       schemaVersion,
		MaxRequestBodyBytes: DefaultMaxRequestBytes,
	}, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Get returns the current configuration snapshot.
func (s *Store) Get() Config {
	return *s.current.Load()
}

// Update applies mutate to a copy of the current configuration, validates
// it, persists it atomically, and only then publishes it to readers.
func (s *Store) Update(mutate func(*Config)) (Config, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	next := s.Get()
	mutate(&next)
	if err := next.Validate(); err != nil {
		return Config{}, err
	}
	if err := s.persist(&next); err != nil {
		return Config{}, err
	}
	s.current.Store(&next)
	return next, nil
}

func (s *Store) persist(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".gatewayd.config.*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config into place: %w", err)
	}
	return nil
}
