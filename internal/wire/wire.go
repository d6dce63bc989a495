// Package wire is the boundary to the messaging-network protocol library.
//
// The gateway consumes the library through the Socket/Dialer abstraction:
// a dialed socket emits lifecycle events (qr, open, close) and inbound
// message batches through Handlers, and exposes one outbound send primitive.
// Events are delivered from a single goroutine, so no two handlers ever run
// concurrently.
package wire

import "context"

// CodeLoggedOut is the authoritative logout close code: the session is dead
// and must not be retried automatically.
const CodeLoggedOut = 401

// User is the authenticated session identity reported on open.
type User struct {
	JID  string
	Name string
}

// CloseReason describes why the transport closed.
type CloseReason struct {
	Code int
	Err  error
}

// LoggedOut reports whether the close was an authoritative logout.
func (r CloseReason) LoggedOut() bool { return r.Code == CodeLoggedOut }

// Message is one raw inbound message before any gateway filtering.
type Message struct {
	JID         string
	ID          string
	Text        string
	FromMe      bool
	TimestampMs int64
}

// BatchTypeNotify marks live message batches; other types are history syncs
// the gateway ignores.
const BatchTypeNotify = "notify"

// MessageBatch is a group of inbound messages delivered together.
type MessageBatch struct {
	Type     string
	Messages []Message
}

// Handlers receives socket events. Nil handlers are skipped.
type Handlers struct {
	OnQR       func(code string)
	OnOpen     func(user User)
	OnClose    func(reason CloseReason)
	OnMessages func(batch MessageBatch)
}

// Socket is an established protocol session.
type Socket interface {
	// Send delivers text to the given identity.
	Send(ctx context.Context, jid, text string) error
	// Close tears the transport down; OnClose fires at most once.
	Close() error
}

// Dialer opens a socket and registers the event handlers. The controller
// depends on this function type so tests can inject fakes.
type Dialer func(ctx context.Context, h Handlers) (Socket, error)
