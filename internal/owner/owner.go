// Package owner decides who may converse with the bridge and performs
// the one-time pairing handshake.
package owner

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/chat-gateway/internal/jid"
)

// StateFileName is the on-disk owner snapshot inside the state directory.
const StateFileName = "owner.json"

var pairPattern = regexp.MustCompile(`(?i)^/?pair\s+([0-9]{6,12})$`)

type stateFile struct {
	OwnerJIDs []string `json:"ownerJids"`
}

// Registry owns the allow-list of identities and the active pairing code.
// All writes to the on-disk snapshot are serialized through the registry.
type Registry struct {
	mu     sync.Mutex
	owners map[string]struct{}
	code   string
	path   string
	log    *zap.Logger
}

// New constructs a Registry seeded from the static allow-list sources.
// When either source yields an owner, the on-disk snapshot is not loaded:
// explicit configuration wins over persisted state.
func New(stateDir string, ownerNumbers, ownerJIDs []string, log *zap.Logger) *Registry {
	r := &Registry{
		owners: map[string]struct{}{},
		code:   generateCode(),
		path:   filepath.Join(stateDir, StateFileName),
		log:    log,
	}
	for _, n := range ownerNumbers {
		if j := jid.FromNumber(n); j != "" {
			r.owners[j] = struct{}{}
		}
	}
	for _, raw := range ownerJIDs {
		if j := jid.Normalize(raw); j != "" {
			r.owners[j] = struct{}{}
		}
	}
	return r
}

// Load reads the on-disk owner snapshot. It is best-effort: a missing or
// malformed file means "no owners yet". Skipped entirely when static
// configuration already produced owners.
func (r *Registry) Load() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.owners) > 0 {
		return
	}

	raw, err := os.ReadFile(r.path)
	if err != nil {
		return
	}
	var sf stateFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		r.log.Warn("ignoring malformed owner state", zap.String("path", r.path), zap.Error(err))
		return
	}
	for _, entry := range sf.OwnerJIDs {
		if j := jid.Normalize(entry); j != "" {
			r.owners[j] = struct{}{}
		}
	}
}

// IsPaired reports whether at least one owner is registered.
func (r *Registry) IsPaired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners) > 0
}

// OwnerJIDs returns the registered owners in stable order.
func (r *Registry) OwnerJIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownersLocked()
}

// PairingCode returns the current pairing code.
func (r *Registry) PairingCode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code
}

// IsAllowed reports whether the identity may converse with the bridge.
// Group identities require allowGroups and prior registration; they can
// never self-pair. Personal identities must be registered owners.
func (r *Registry) IsAllowed(j string, allowGroups bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if jid.IsGroup(j) {
		if !allowGroups {
			return false
		}
		_, ok := r.owners[j]
		return ok
	}
	_, ok := r.owners[j]
	return ok
}

// TryPair attempts the pairing handshake against free text. It succeeds only
// while unpaired and only when the supplied code equals the current pairing
// code exactly; on success the sender becomes an owner, the set is persisted
// synchronously, and the code rotates. A failed attempt has no side effects
// and does not reveal whether the format or the code was wrong.
func (r *Registry) TryPair(j, text string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if jid.IsGroup(j) {
		// Group identities can never self-pair.
		return false, nil
	}
	if len(r.owners) > 0 {
		return false, nil
	}
	m := pairPattern.FindStringSubmatch(text)
	if m == nil {
		return false, nil
	}
	if m[1] != r.code {
		return false, nil
	}

	r.owners[j] = struct{}{}
	if err := r.saveLocked(); err != nil {
		delete(r.owners, j)
		return false, fmt.Errorf("persist owner state: %w", err)
	}
	r.code = generateCode()
	return true, nil
}

func (r *Registry) ownersLocked() []string {
	out := make([]string, 0, len(r.owners))
	for j := range r.owners {
		out = append(out, j)
	}
	sort.Strings(out)
	return out
}

// saveLocked rewrites the snapshot wholesale: temp file then rename, so a
// crash mid-write never leaves a truncated state file.
func (r *Registry) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(stateFile{OwnerJIDs: r.ownersLocked()}, "", "  ")
	if err != nil {
		return err
	}
	payload = append(payload, '\n')

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

// generateCode draws an 8-digit code uniformly from [10000000, 99999999].
func generateCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(90000000))
	if err != nil {
		// crypto/rand failing means the platform RNG is broken; nothing
		// sensible to pair with in that case.
		panic(fmt.Sprintf("pairing code generation: %v", err))
	}
	return fmt.Sprintf("%08d", n.Int64()+10000000)
}
