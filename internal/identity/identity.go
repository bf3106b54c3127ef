// Package identity stores the local owner identity for the trackd CLI.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const identityFile = "identity.json"

// Identity is the owner on whose behalf the CLI tracks time.
type Identity struct {
	OwnerID     string `json:"owner_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// Manager loads and persists the identity file.
type Manager struct {
	configDir string
	mu        sync.RWMutex
	cached    *Identity
}

// NewManager creates a manager over configDir, creating the directory if
// needed. An empty configDir defaults to ~/.trackd.
func NewManager(configDir string) (*Manager, error) {
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".trackd")
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	m := &Manager{configDir: configDir}
	_ = m.load()
	return m, nil
}

// Current returns the stored identity, or nil when none is set.
func (m *Manager) Current() *Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cached
}

// Set persists the identity.
func (m *Manager) Set(id Identity) error {
	if id.OwnerID == "" {
		return fmt.Errorf("owner id required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err := os.WriteFile(m.path(), data, 0600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	m.cached = &id
	return nil
}

// Clear removes the stored identity.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove identity: %w", err)
	}
	m.cached = nil
	return nil
}

func (m *Manager) path() string {
	return filepath.Join(m.configDir, identityFile)
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path())
	if err != nil {
		return err
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("parse identity: %w", err)
	}
	m.cached = &id
	return nil
}
