// Package model defines domain entities shared by the gateway core and its surfaces.
package model

import "time"

// ConnectionState is the lifecycle state of the messaging-network session.
// Exactly one state is current per process instance.
type ConnectionState string

const (
	StateIdle            ConnectionState = "idle"
	StateAwaitingConsent ConnectionState = "awaiting_consent"
	StateStarting        ConnectionState = "starting"
	StateAwaitingQRScan  ConnectionState = "awaiting_qr_scan"
	StateConnected       ConnectionState = "connected"
	StateDisconnected    ConnectionState = "disconnected"
	StateFailed          ConnectionState = "failed"
)

// Active reports whether the state counts as an active session
// (starting, awaiting a QR scan, or connected).
func (s ConnectionState) Active() bool {
	return s == StateStarting || s == StateAwaitingQRScan || s == StateConnected
}

// StatusSnapshot is the immutable status value held by the status store.
// A zero time means "not yet"; derived fields (Active, Paired) are maintained
// by the store, never set directly.
type StatusSnapshot struct {
	State     ConnectionState
	Active    bool
	Paired    bool
	OwnerJIDs []string

	JID      string // session identity, empty until connected
	Number   string // display form of the session number
	PushName string // display name from the authenticated user

	LastQrAt         time.Time
	LastConnectAt    time.Time
	LastDisconnectAt time.Time
	LastMessageAt    time.Time

	LastError string
}

// PublicStatusVersion identifies the projection schema.
const PublicStatusVersion = 1

// PublicStatus is the externally exposed projection of StatusSnapshot.
// Optional fields are omitted entirely when unset; this is a wire contract.
type PublicStatus struct {
	Version    int      `json:"version"`
	Connection string   `json:"connection"` // connected | connecting | disconnected
	Active     bool     `json:"active"`
	Paired     bool     `json:"paired"`
	OwnerJIDs  []string `json:"owner_jids"`

	JID      string `json:"jid,omitempty"`
	Number   string `json:"number,omitempty"`
	PushName string `json:"push_name,omitempty"`

	LastQrAt         string `json:"last_qr_at,omitempty"`
	LastConnectAt    string `json:"last_connect_at,omitempty"`
	LastDisconnectAt string `json:"last_disconnect_at,omitempty"`
	LastMessageAt    string `json:"last_message_at,omitempty"`

	LastError string `json:"last_error,omitempty"`
}

// InboundMessage is one accepted message from the messaging network.
// The JSON tags are the webhook wire shape.
type InboundMessage struct {
	JID         string `json:"jid"`
	MessageID   string `json:"messageId"`
	Text        string `json:"text"`
	TimestampMs int64  `json:"timestampMs"`
}

// QRSnapshot is the most recent QR code received during authentication.
type QRSnapshot struct {
	Raw   string `json:"raw"`
	ASCII string `json:"ascii"`
	At    string `json:"at"` // ISO-8601
}
