// Package status holds the single source of truth for connection/session state.
//
// The store keeps one immutable StatusSnapshot and replaces it wholesale on
// every mutation, so readers never observe a partially updated value.
package status

import (
	"sync"
	"time"

	"github.com/and161185/chat-gateway/internal/model"
)

// Store is the mutable holder of the current StatusSnapshot.
// It is owned by the lifecycle controller; surfaces only read copies.
type Store struct {
	mu   sync.RWMutex
	snap model.StatusSnapshot
	now  func() time.Time
}

// New constructs a Store in the idle state.
func New() *Store {
	return &Store{
		snap: model.StatusSnapshot{State: model.StateIdle},
		now:  time.Now,
	}
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() model.StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSnapshot(s.snap)
}

// SetState transitions to the given state and rederives the active flag.
func (s *Store) SetState(state model.ConnectionState) {
	s.update(func(snap *model.StatusSnapshot) {
		snap.State = state
		snap.Active = state.Active()
	})
}

// SetUser records the authenticated session identity.
func (s *Store) SetUser(jid, number, pushName string) {
	s.update(func(snap *model.StatusSnapshot) {
		snap.JID = jid
		snap.Number = number
		snap.PushName = pushName
	})
}

// SetOwners replaces the published owner set and rederives the paired flag.
func (s *Store) SetOwners(ownerJIDs []string) {
	owners := append([]string(nil), ownerJIDs...)
	s.update(func(snap *model.StatusSnapshot) {
		snap.OwnerJIDs = owners
		snap.Paired = len(owners) > 0
	})
}

// MarkQrSeen stamps the time the latest QR code was received.
func (s *Store) MarkQrSeen() {
	s.update(func(snap *model.StatusSnapshot) { snap.LastQrAt = s.now() })
}

// MarkConnected stamps the time of the last successful open.
func (s *Store) MarkConnected() {
	s.update(func(snap *model.StatusSnapshot) { snap.LastConnectAt = s.now() })
}

// MarkDisconnected stamps the time of the last transport loss.
func (s *Store) MarkDisconnected() {
	s.update(func(snap *model.StatusSnapshot) { snap.LastDisconnectAt = s.now() })
}

// MarkMessageSeen stamps the time of the last accepted inbound message.
func (s *Store) MarkMessageSeen() {
	s.update(func(snap *model.StatusSnapshot) { snap.LastMessageAt = s.now() })
}

// SetError records the most recent processing error. A nil error clears it.
func (s *Store) SetError(err error) {
	s.update(func(snap *model.StatusSnapshot) {
		if err == nil {
			snap.LastError = ""
			return
		}
		snap.LastError = err.Error()
	})
}

// Public maps the internal snapshot into the versioned external projection.
// Unset optional fields are omitted from the wire form entirely.
func (s *Store) Public() model.PublicStatus {
	snap := s.Snapshot()

	connection := "disconnected"
	switch snap.State {
	case model.StateConnected:
		connection = "connected"
	case model.StateStarting, model.StateAwaitingQRScan:
		connection = "connecting"
	}

	out := model.PublicStatus{
		Version:    model.PublicStatusVersion,
		Connection: connection,
		Active:     snap.Active,
		Paired:     snap.Paired,
		OwnerJIDs:  append([]string{}, snap.OwnerJIDs...),
		JID:        snap.JID,
		Number:     snap.Number,
		PushName:   snap.PushName,
		LastError:  snap.LastError,
	}
	out.LastQrAt = isoOrEmpty(snap.LastQrAt)
	out.LastConnectAt = isoOrEmpty(snap.LastConnectAt)
	out.LastDisconnectAt = isoOrEmpty(snap.LastDisconnectAt)
	out.LastMessageAt = isoOrEmpty(snap.LastMessageAt)
	return out
}

func (s *Store) update(mutate func(*model.StatusSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cloneSnapshot(s.snap)
	mutate(&next)
	s.snap = next
}

func cloneSnapshot(in model.StatusSnapshot) model.StatusSnapshot {
	out := in
	out.OwnerJIDs = append([]string(nil), in.OwnerJIDs...)
	return out
}

func isoOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
