package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/chat-gateway/internal/model"
	"github.com/and161185/chat-gateway/internal/status"
)

type fakeGateway struct {
	startErr   error
	startCalls int
	code       string
}

var _ Gateway = (*fakeGateway)(nil)

func (f *fakeGateway) Start(context.Context) error {
	f.startCalls++
	return f.startErr
}

func (f *fakeGateway) PairingCode() string { return f.code }

func run(t *testing.T, gw *fakeGateway, st *status.Store, input string) string {
	t.Helper()
	var out bytes.Buffer
	c := New(strings.NewReader(input), &out, gw, st, t.TempDir())
	c.Run(context.Background())
	return out.String()
}

func TestRun_HelpAndExit(t *testing.T) {
	t.Parallel()
	out := run(t, &fakeGateway{}, status.New(), "/help\n/exit\n")
	require.Contains(t, out, "/init")
	require.Contains(t, out, "PAIR <code>")
	require.Contains(t, out, "Bye.")
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Parallel()
	out := run(t, &fakeGateway{}, status.New(), "frobnicate\n")
	require.Contains(t, out, "Unknown command")
}

func TestRun_Status(t *testing.T) {
	t.Parallel()
	st := status.New()
	st.SetState(model.StateConnected)
	st.SetUser("1@s.whatsapp.net", "+1", "Alice")

	out := run(t, &fakeGateway{}, st, "/status\n")
	require.Contains(t, out, "connection:")
	require.Contains(t, out, "connected")
	require.Contains(t, out, "Alice")
}

func TestInit_ConsentDeclined(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	st := status.New()

	out := run(t, gw, st, "/init\nno\n")
	require.Contains(t, out, "Setup cancelled")
	require.Zero(t, gw.startCalls)
	require.Equal(t, model.StateIdle, st.Snapshot().State)
}

func TestInit_ConsentAccepted(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{code: "12345678"}
	st := status.New()

	out := run(t, gw, st, "/init\nyes\n")
	require.Equal(t, 1, gw.startCalls)
	require.Contains(t, out, "PAIR 12345678")
}

func TestInit_PairedSkipsPairingHint(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{code: "12345678"}
	st := status.New()
	st.SetOwners([]string{"1@s.whatsapp.net"})

	out := run(t, gw, st, "/init\ny\n")
	require.Equal(t, 1, gw.startCalls)
	require.NotContains(t, out, "PAIR 12345678")
}

func TestInit_MidPromptStateIsAwaitingConsent(t *testing.T) {
	t.Parallel()
	st := status.New()
	var out bytes.Buffer

	in, pw := newPipeScanner(t)
	c := New(in, &out, &fakeGateway{}, st, t.TempDir())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(context.Background())
	}()

	pw.line("/init")
	require.Eventually(t, func() bool {
		return st.Snapshot().State == model.StateAwaitingConsent
	}, time.Second, 5*time.Millisecond)
	pw.line("no")
	pw.close()
	<-done
}

type pipeWriter struct {
	t *testing.T
	w *io.PipeWriter
}

func newPipeScanner(t *testing.T) (io.Reader, *pipeWriter) {
	t.Helper()
	r, w := io.Pipe()
	return r, &pipeWriter{t: t, w: w}
}

func (p *pipeWriter) line(s string) {
	p.t.Helper()
	_, err := io.WriteString(p.w, s+"\n")
	require.NoError(p.t, err)
}

func (p *pipeWriter) close() { _ = p.w.Close() }
