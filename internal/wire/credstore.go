package wire

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// CredFileName is the credential snapshot inside the state directory.
const CredFileName = "creds.json"

// CredStore persists the opaque protocol credentials the relay hands back on
// its credentials-updated event. The payload is never inspected.
type CredStore struct {
	mu   sync.Mutex
	path string
}

// NewCredStore constructs a store rooted at the state directory.
func NewCredStore(stateDir string) *CredStore {
	return &CredStore{path: filepath.Join(stateDir, CredFileName)}
}

// Load returns the stored credentials, or nil when none exist yet.
// A missing or unreadable file is "no credentials", never an error.
func (c *CredStore) Load() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := os.ReadFile(c.path)
	if err != nil || len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return raw
}

// Save rewrites the snapshot wholesale via temp file and rename.
func (c *CredStore) Save(creds json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, creds, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
