// Package credentials remembers the Moltbook session between runs.
package credentials

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrNoCredentials means nothing has been saved yet.
var ErrNoCredentials = errors.New("no saved credentials")

// Credentials is the persisted session.
type Credentials struct {
	APIKey           string    `json:"api_key"`
	AgentName        string    `json:"agent_name,omitempty"`
	VerificationCode string    `json:"verification_code,omitempty"`
	ClaimURL         string    `json:"claim_url,omitempty"`
	SavedAt          time.Time `json:"saved_at"`
}

// Store reads and writes credentials as a single JSON file readable only by
// the current user.
type Store struct {
	mu   sync.Mutex
	path string
}

// DefaultPath returns ~/.config/moltbot/credentials.json.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "moltbot", "credentials.json")
}

// NewStore creates a store at path, or DefaultPath when path is empty.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path}
}

// Path returns the file location.
func (s *Store) Path() string { return s.path }

// Save persists creds, replacing anything saved before.
func (s *Store) Save(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds.APIKey = strings.TrimSpace(creds.APIKey)
	if creds.APIKey == "" {
		return errors.New("api key is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	creds.SavedAt = time.Now()

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load returns the saved credentials or ErrNoCredentials.
func (s *Store) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var creds Credentials
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return creds, ErrNoCredentials
		}
		return creds, err
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, err
	}
	if creds.APIKey == "" {
		return creds, ErrNoCredentials
	}
	return creds, nil
}

// Clear forgets the session. Clearing an empty store is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
