package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Relay frame types. The relay speaks JSON frames over a websocket; the
// heavy protocol work (crypto, multi-device sync) lives on the relay side.
const (
	frameHello   = "hello"
	frameQR      = "qr"
	frameOpen    = "open"
	frameClose   = "close"
	frameCreds   = "creds"
	frameMessage = "message"
	frameSend    = "send"
)

type frameUser struct {
	JID  string `json:"jid"`
	Name string `json:"name,omitempty"`
}

type frameMsg struct {
	JID         string `json:"jid"`
	ID          string `json:"id"`
	Text        string `json:"text"`
	FromMe      bool   `json:"fromMe,omitempty"`
	TimestampMs int64  `json:"timestampMs,omitempty"`
}

type frame struct {
	Type string `json:"type"`

	QR       string          `json:"qr,omitempty"`
	User     *frameUser      `json:"user,omitempty"`
	Code     int             `json:"code,omitempty"`
	Creds    json.RawMessage `json:"creds,omitempty"`
	Batch    string          `json:"batch,omitempty"`
	Messages []frameMsg      `json:"messages,omitempty"`

	ID   string `json:"id,omitempty"`
	JID  string `json:"jid,omitempty"`
	Text string `json:"text,omitempty"`
}

// relaySocket is a Socket over one websocket connection to the relay.
type relaySocket struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  sync.Once
	h       Handlers
	creds   *CredStore
	log     *zap.Logger
}

// NewRelayDialer returns a Dialer connecting to a relay endpoint. The dialed
// socket authenticates with the stored credentials and persists every
// credential update it receives.
func NewRelayDialer(url string, creds *CredStore, log *zap.Logger) Dialer {
	return func(ctx context.Context, h Handlers) (Socket, error) {
		if url == "" {
			return nil, fmt.Errorf("relay url not configured")
		}
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial relay: %w", err)
		}
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}

		s := &relaySocket{conn: conn, h: h, creds: creds, log: log}
		if err := s.writeFrame(frame{Type: frameHello, Creds: creds.Load()}); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("relay hello: %w", err)
		}

		go s.readLoop()
		return s, nil
	}
}

// Send writes one outbound text frame. Writes are serialized; gorilla allows
// only a single concurrent writer.
func (s *relaySocket) Send(ctx context.Context, jid, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	return s.writeFrame(frame{Type: frameSend, ID: id.String(), JID: jid, Text: text})
}

// Close tears the connection down; the read loop then reports the close.
func (s *relaySocket) Close() error {
	return s.conn.Close()
}

func (s *relaySocket) writeFrame(f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(f)
}

// readLoop dispatches frames until the connection dies. All handlers run on
// this goroutine, preserving the no-concurrent-handlers guarantee.
func (s *relaySocket) readLoop() {
	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			s.emitClose(CloseReason{Err: err})
			return
		}
		switch f.Type {
		case frameQR:
			if s.h.OnQR != nil && f.QR != "" {
				s.h.OnQR(f.QR)
			}
		case frameOpen:
			if s.h.OnOpen != nil && f.User != nil {
				s.h.OnOpen(User{JID: f.User.JID, Name: f.User.Name})
			}
		case frameCreds:
			if len(f.Creds) > 0 {
				if err := s.creds.Save(f.Creds); err != nil {
					s.log.Error("persist relay credentials", zap.Error(err))
				}
			}
		case frameMessage:
			if s.h.OnMessages != nil {
				s.h.OnMessages(batchFromFrame(f))
			}
		case frameClose:
			_ = s.conn.Close()
			s.emitClose(CloseReason{Code: f.Code})
			return
		default:
			s.log.Debug("ignoring unknown relay frame", zap.String("type", f.Type))
		}
	}
}

func (s *relaySocket) emitClose(reason CloseReason) {
	s.closed.Do(func() {
		if s.h.OnClose != nil {
			s.h.OnClose(reason)
		}
	})
}

func batchFromFrame(f frame) MessageBatch {
	out := MessageBatch{Type: f.Batch}
	if out.Type == "" {
		out.Type = BatchTypeNotify
	}
	for _, m := range f.Messages {
		out.Messages = append(out.Messages, Message{
			JID:         m.JID,
			ID:          m.ID,
			Text:        m.Text,
			FromMe:      m.FromMe,
			TimestampMs: m.TimestampMs,
		})
	}
	return out
}
