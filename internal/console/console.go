// Package console runs the interactive operator console on stdin/stdout.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/and161185/chat-gateway/internal/model"
	"github.com/and161185/chat-gateway/internal/status"
)

// Gateway is the controller surface the console consumes.
type Gateway interface {
	Start(ctx context.Context) error
	PairingCode() string
}

// Console reads operator commands line by line. One command runs at a time.
type Console struct {
	in      *bufio.Scanner
	out     io.Writer
	gw      Gateway
	status  *status.Store
	rootDir string
}

// New constructs a Console over the given reader/writer pair.
func New(in io.Reader, out io.Writer, gw Gateway, st *status.Store, rootDir string) *Console {
	return &Console{
		in:      bufio.NewScanner(in),
		out:     out,
		gw:      gw,
		status:  st,
		rootDir: rootDir,
	}
}

// Run processes commands until EOF, /exit, or context cancellation. Reads
// are synchronous: prompts issued mid-command (consent, update confirmation)
// consume the next line directly.
func (c *Console) Run(ctx context.Context) {
	fmt.Fprintln(c.out, "Chat Gateway console. Type /help for commands.")

	for c.in.Scan() {
		if ctx.Err() != nil {
			return
		}
		if !c.handle(ctx, c.in.Text()) {
			return
		}
	}
}

// handle executes one command; returns false to stop the loop.
func (c *Console) handle(ctx context.Context, raw string) bool {
	line := strings.TrimSpace(raw)
	if line == "" {
		return true
	}

	switch strings.ToLower(line) {
	case "/help", "help":
		c.printHelp()
	case "/exit", "/quit", "exit", "quit":
		fmt.Fprintln(c.out, "Bye.")
		return false
	case "/status", "status":
		c.printStatus()
	case "/init", "init":
		c.runInit(ctx)
	case "/update", "update":
		c.runUpdate(ctx)
	default:
		fmt.Fprintln(c.out, "Unknown command. Type /help.")
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, "\nCommands:")
	fmt.Fprintln(c.out, "  /init    Start onboarding (risk consent + QR)")
	fmt.Fprintln(c.out, "  /status  Show connection status")
	fmt.Fprintln(c.out, "  /update  git pull (if this folder is a git repo)")
	fmt.Fprintln(c.out, "  /exit    Quit")
	fmt.Fprintln(c.out, "\nPairing:")
	fmt.Fprintln(c.out, "  After /init, send: PAIR <code> from your phone to the gateway number.")
	fmt.Fprintln(c.out, "")
}

func (c *Console) printStatus() {
	s := c.status.Public()

	fmt.Fprintln(c.out, "\nStatus")
	c.statusLine("connection:", s.Connection)
	c.statusLine("active:", yesNo(s.Active))
	c.statusLine("paired:", yesNo(s.Paired))
	if s.Number != "" {
		c.statusLine("number:", s.Number)
	}
	if s.JID != "" {
		c.statusLine("jid:", s.JID)
	}
	if s.PushName != "" {
		c.statusLine("push name:", s.PushName)
	}
	if s.LastMessageAt != "" {
		c.statusLine("last message:", s.LastMessageAt)
	}
	if s.LastQrAt != "" {
		c.statusLine("last qr:", s.LastQrAt)
	}
	if s.LastError != "" {
		c.statusLine("last error:", s.LastError)
	}
	if len(s.OwnerJIDs) > 0 {
		c.statusLine("owner jids:", strings.Join(s.OwnerJIDs, ", "))
	}
	fmt.Fprintln(c.out, "")
}

func (c *Console) statusLine(label, value string) {
	fmt.Fprintf(c.out, "%-18s %s\n", label, value)
}

func (c *Console) runInit(ctx context.Context) {
	fmt.Fprintln(c.out, "This gateway uses an unofficial messaging-network client. It can be unstable and may lead to account restrictions.")
	fmt.Fprintln(c.out, "Use a dedicated number.")

	c.status.SetState(model.StateAwaitingConsent)
	if !c.askYesNo("Do you accept this risk? (yes/no) ") {
		c.status.SetState(model.StateIdle)
		fmt.Fprintln(c.out, "Setup cancelled.")
		return
	}

	fmt.Fprintln(c.out, "Starting session...")
	if err := c.gw.Start(ctx); err != nil {
		fmt.Fprintf(c.out, "Start failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "If a QR is required, it will be displayed above.")

	if !c.status.Snapshot().Paired {
		fmt.Fprintln(c.out, "Pair your phone (one-time):")
		fmt.Fprintf(c.out, "Send this message to the gateway number: PAIR %s\n", c.gw.PairingCode())
		fmt.Fprintln(c.out, "Once paired, you can chat normally. Try /status.")
	}
}

func (c *Console) askYesNo(prompt string) bool {
	fmt.Fprint(c.out, prompt)
	if !c.in.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(c.in.Text())) {
	case "y", "yes":
		return true
	}
	return false
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
