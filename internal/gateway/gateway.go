// Package gateway implements the lifecycle controller: it owns the protocol
// socket, drives the status store off socket events, consults access control
// and the dedupe/throttle guard, and invokes the pluggable reply function.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/chat-gateway/internal/errs"
	"github.com/and161185/chat-gateway/internal/guard"
	"github.com/and161185/chat-gateway/internal/jid"
	"github.com/and161185/chat-gateway/internal/metrics"
	"github.com/and161185/chat-gateway/internal/model"
	"github.com/and161185/chat-gateway/internal/owner"
	"github.com/and161185/chat-gateway/internal/qr"
	"github.com/and161185/chat-gateway/internal/reply"
	"github.com/and161185/chat-gateway/internal/status"
	"github.com/and161185/chat-gateway/internal/wire"
)

// DefaultRetryDelay is the fixed wait before one reconnect attempt.
const DefaultRetryDelay = 2 * time.Second

// Config carries the controller's behavioral knobs.
type Config struct {
	AllowGroups     bool
	MaxInboundChars int
	RetryDelay      time.Duration // zero selects DefaultRetryDelay
	ReplyMode       string        // metrics label only
	PrintQR         bool          // render QR codes to the terminal
}

// Deps are the controller's collaborators.
type Deps struct {
	Log     *zap.Logger
	Status  *status.Store
	Owners  *owner.Registry
	Guard   *guard.Guard
	Metrics metrics.Metrics
	Dial    wire.Dialer
	Replier reply.Replier
}

// Controller orchestrates the protocol socket. HTTP handlers, the console,
// and socket events all call into it concurrently; every mutable field is
// guarded by mu.
type Controller struct {
	cfg Config
	log *zap.Logger

	status  *status.Store
	owners  *owner.Registry
	guard   *guard.Guard
	met     metrics.Metrics
	dial    wire.Dialer
	replier reply.Replier

	mu       sync.Mutex
	sock     wire.Socket
	starting bool
	retrying bool
	qrCache  *model.QRSnapshot
}

// New constructs a Controller. Deps must be fully populated except Metrics,
// which defaults to the noop implementation.
func New(cfg Config, d Deps) *Controller {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxInboundChars <= 0 {
		cfg.MaxInboundChars = 4000
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Noop{}
	}
	return &Controller{
		cfg:     cfg,
		log:     d.Log,
		status:  d.Status,
		owners:  d.Owners,
		guard:   d.Guard,
		met:     d.Metrics,
		dial:    d.Dial,
		replier: d.Replier,
	}
}

// Start opens the protocol socket and registers event handlers. It is
// idempotent: with a socket already active (or a start in flight) it logs and
// returns nil without opening a second socket.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.sock != nil || c.starting {
		c.mu.Unlock()
		c.log.Info("socket already started")
		return nil
	}
	c.starting = true
	c.mu.Unlock()

	c.status.SetState(model.StateStarting)

	sock, err := c.dial(ctx, wire.Handlers{
		OnQR:       c.onQR,
		OnOpen:     c.onOpen,
		OnClose:    c.onClose,
		OnMessages: c.onMessages,
	})

	c.mu.Lock()
	c.starting = false
	if err == nil {
		c.sock = sock
	}
	c.mu.Unlock()

	if err != nil {
		c.status.SetError(err)
		c.status.SetState(model.StateDisconnected)
		return fmt.Errorf("start socket: %w", err)
	}
	return nil
}

// SendText forwards text to the given identity over the active socket.
func (c *Controller) SendText(ctx context.Context, to, text string) error {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return fmt.Errorf("%w: run /init and scan the QR first", errs.ErrNotConnected)
	}
	return sock.Send(ctx, to, text)
}

// QR returns a copy of the most recent QR snapshot, or nil when none has
// been received in this session.
func (c *Controller) QR() *model.QRSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.qrCache == nil {
		return nil
	}
	cp := *c.qrCache
	return &cp
}

// PairingCode returns the current pairing code.
func (c *Controller) PairingCode() string {
	return c.owners.PairingCode()
}

// Close tears down the active socket, if any.
func (c *Controller) Close() error {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return nil
	}
	return sock.Close()
}

func (c *Controller) onQR(code string) {
	c.status.SetState(model.StateAwaitingQRScan)
	c.status.MarkQrSeen()

	snap := &model.QRSnapshot{
		Raw:   code,
		ASCII: qr.ToASCII(code),
		At:    time.Now().UTC().Format(time.RFC3339),
	}
	// Only the latest QR is ever relevant; overwrite unconditionally.
	c.mu.Lock()
	c.qrCache = snap
	c.mu.Unlock()

	c.log.Info("qr received; scan to authenticate")
	if c.cfg.PrintQR {
		qr.Print(code)
	}
}

func (c *Controller) onOpen(user wire.User) {
	c.status.SetState(model.StateConnected)
	c.status.MarkConnected()

	j := jid.Normalize(user.JID)
	number := ""
	if j != "" {
		number = jid.Number(j)
	}
	c.status.SetUser(j, number, user.Name)
	c.status.SetOwners(c.owners.OwnerJIDs())

	c.log.Info("connected", zap.String("jid", j))
	if !c.owners.IsPaired() {
		c.log.Warn("owner not paired yet",
			zap.String("hint", "send: PAIR "+c.owners.PairingCode()+" from your phone"))
	}
}

func (c *Controller) onClose(reason wire.CloseReason) {
	c.status.SetState(model.StateDisconnected)
	c.status.MarkDisconnected()

	c.mu.Lock()
	c.sock = nil
	c.mu.Unlock()

	c.log.Warn("connection closed",
		zap.Int("code", reason.Code),
		zap.Bool("loggedOut", reason.LoggedOut()),
		zap.Error(reason.Err))

	if reason.LoggedOut() {
		c.status.SetState(model.StateFailed)
		c.status.SetError(errors.New("logged out; run /init to re-authenticate"))
		return
	}

	c.mu.Lock()
	if c.retrying {
		c.mu.Unlock()
		return
	}
	c.retrying = true
	c.mu.Unlock()

	c.met.IncReconnectsScheduled()
	time.AfterFunc(c.cfg.RetryDelay, func() {
		c.mu.Lock()
		c.retrying = false
		c.mu.Unlock()
		if err := c.Start(context.Background()); err != nil {
			c.status.SetError(err)
			c.log.Error("reconnect failed", zap.Error(err))
		}
	})
}

func (c *Controller) onMessages(batch wire.MessageBatch) {
	if batch.Type != wire.BatchTypeNotify {
		return
	}
	for _, m := range batch.Messages {
		if err := c.safeProcess(m); err != nil {
			c.status.SetError(err)
			c.log.Error("process inbound message", zap.Error(err))
		}
	}
}

// safeProcess isolates one message: an error or panic is returned, never
// allowed to abort the rest of the batch.
func (c *Controller) safeProcess(m wire.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing message: %v", r)
		}
	}()
	return c.process(m)
}

func (c *Controller) process(m wire.Message) error {
	if m.FromMe || m.ID == "" {
		return nil
	}
	j := jid.Normalize(m.JID)
	if j == "" {
		return nil
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return nil
	}

	if !c.guard.MarkSeen(j, m.ID) {
		c.met.IncDuplicatesDropped()
		return nil
	}

	if !c.owners.IsAllowed(j, c.cfg.AllowGroups) {
		paired, err := c.owners.TryPair(j, text)
		if err != nil {
			return err
		}
		if paired {
			c.status.SetOwners(c.owners.OwnerJIDs())
			c.log.Info("owner paired", zap.String("jid", j))
			return c.SendText(context.Background(), j, pairedText)
		}
		return nil
	}

	if len(text) > c.cfg.MaxInboundChars {
		text = text[:c.cfg.MaxInboundChars]
	}
	inbound := model.InboundMessage{
		JID:         j,
		MessageID:   m.ID,
		Text:        text,
		TimestampMs: m.TimestampMs,
	}

	c.status.MarkMessageSeen()
	c.met.IncMessagesReceived()

	switch strings.ToLower(text) {
	case "/status", "status":
		return c.SendText(context.Background(), j, c.formatStatus())
	case "/help", "help":
		return c.SendText(context.Background(), j, helpText)
	}

	if !c.guard.BeginReply(j) {
		c.met.IncThrottleSuppressed()
		return nil
	}

	// The replier may be slow (webhook, external tool); run it off the
	// event loop so it only delays this message's reply.
	go c.replyTo(inbound)
	return nil
}

func (c *Controller) replyTo(msg model.InboundMessage) {
	text, err := c.callReplier(msg)
	produced := err == nil && text != ""
	c.guard.FinishReply(msg.JID, produced)

	if err != nil {
		c.status.SetError(err)
		c.log.Error("reply generation failed", zap.Error(err))
		if sendErr := c.SendText(context.Background(), msg.JID, "Error: "+err.Error()); sendErr != nil {
			c.log.Error("send error reply", zap.Error(sendErr))
		}
		return
	}
	if !produced {
		return
	}

	if err := c.SendText(context.Background(), msg.JID, text); err != nil {
		c.status.SetError(err)
		c.log.Error("send reply", zap.Error(err))
		return
	}
	c.met.IncRepliesSent(c.cfg.ReplyMode)
}

// callReplier shields the gateway from a panicking reply backend.
func (c *Controller) callReplier(msg model.InboundMessage) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("panic in replier: %v", r)
		}
	}()
	return c.replier(context.Background(), msg)
}

func (c *Controller) formatStatus() string {
	s := c.status.Public()

	lines := []string{
		"Status",
		"connection: " + s.Connection,
		"active: " + yesNo(s.Active),
		"paired: " + yesNo(s.Paired),
	}
	if s.Number != "" {
		lines = append(lines, "number: "+s.Number)
	}
	if s.JID != "" {
		lines = append(lines, "jid: "+s.JID)
	}
	if s.LastMessageAt != "" {
		lines = append(lines, "last_message_at: "+s.LastMessageAt)
	}
	if s.LastError != "" {
		lines = append(lines, "last_error: "+s.LastError)
	}
	return strings.Join(lines, "\n")
}

const pairedText = "Paired successfully.\n" +
	"You can now chat with the bridge from this account.\n" +
	"Try: /status"

const helpText = "Chat Gateway\n\n" +
	"Commands:\n" +
	"- /status  Show connection + pairing status\n" +
	"- /help    Show this help\n\n" +
	"Chat:\n" +
	"- Send any message to get a reply."

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
