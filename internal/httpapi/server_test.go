package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/chat-gateway/internal/errs"
	"github.com/and161185/chat-gateway/internal/model"
	"github.com/and161185/chat-gateway/internal/status"
)

type fakeGateway struct {
	startErr error
	sendErr  error
	qr       *model.QRSnapshot

	startCalls int
	sentJID    string
	sentText   string
}

var _ Gateway = (*fakeGateway)(nil)

func (f *fakeGateway) Start(context.Context) error {
	f.startCalls++
	return f.startErr
}

func (f *fakeGateway) SendText(_ context.Context, jid, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentJID, f.sentText = jid, text
	return nil
}

func (f *fakeGateway) QR() *model.QRSnapshot { return f.qr }

func newServer(t *testing.T, token string, gw *fakeGateway) (*Server, *status.Store) {
	t.Helper()
	st := status.New()
	srv, err := New("127.0.0.1", 0, token, st, gw, nil, zap.NewNop())
	require.NoError(t, err)
	return srv, st
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RefusesInsecureBind(t *testing.T) {
	t.Parallel()
	_, err := New("0.0.0.0", 8080, "", status.New(), &fakeGateway{}, nil, zap.NewNop())
	require.Error(t, err)

	_, err = New("0.0.0.0", 8080, "secret", status.New(), &fakeGateway{}, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = New("localhost", 8080, "", status.New(), &fakeGateway{}, nil, zap.NewNop())
	require.NoError(t, err)
}

func TestHealth_NoAuthRequired(t *testing.T) {
	t.Parallel()
	srv, st := newServer(t, "secret", &fakeGateway{})
	st.SetState(model.StateConnected)

	rec := do(t, srv.Handler(), http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		OK       bool   `json:"ok"`
		State    string `json:"state"`
		UptimeMs int64  `json:"uptime_ms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.OK)
	require.Equal(t, "connected", body.State)
}

func TestAuth_BearerToken(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t, "secret", &fakeGateway{})
	h := srv.Handler()

	require.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/status", "", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/status", "wrong", "").Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/status", "secret", "").Code)

	// No token configured: everything is open (loopback-only enforced at New).
	open, _ := newServer(t, "", &fakeGateway{})
	require.Equal(t, http.StatusOK, do(t, open.Handler(), http.MethodGet, "/status", "", "").Code)
}

func TestStatus_ReturnsProjection(t *testing.T) {
	t.Parallel()
	srv, st := newServer(t, "", &fakeGateway{})
	st.SetState(model.StateAwaitingQRScan)

	rec := do(t, srv.Handler(), http.MethodGet, "/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body model.PublicStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "connecting", body.Connection)
	require.True(t, body.Active)
}

func TestQR_NotFoundWithoutCode(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	srv, _ := newServer(t, "", gw)
	h := srv.Handler()

	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/qr", "", "").Code)

	gw.qr = &model.QRSnapshot{Raw: "ABC", ASCII: "art", At: "2026-03-01T00:00:00Z"}
	rec := do(t, h, http.MethodGet, "/qr", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ABC")
}

func TestInit_RequiresConsent(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	srv, _ := newServer(t, "", gw)
	h := srv.Handler()

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/init", "", `{}`).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/init", "", `{"acceptRisk":false}`).Code)
	require.Zero(t, gw.startCalls)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/init", "", `{"acceptRisk":true}`).Code)
	require.Equal(t, 1, gw.startCalls)
}

func TestInit_StartFailureSurfaces(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{startErr: errors.New("dial failed")}
	srv, st := newServer(t, "", gw)

	rec := do(t, srv.Handler(), http.MethodPost, "/init", "", `{"acceptRisk":true}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, st.Snapshot().LastError, "dial failed")
}

func TestSend_Validation(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	srv, _ := newServer(t, "", gw)
	h := srv.Handler()

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/send", "", `not json`).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/send", "", `{"jid":"1@s.whatsapp.net"}`).Code)

	rec := do(t, h, http.MethodPost, "/send", "", `{"jid":"1@s.whatsapp.net","text":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1@s.whatsapp.net", gw.sentJID)
	require.Equal(t, "hi", gw.sentText)
}

func TestSend_NotConnected(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{sendErr: fmt.Errorf("send: %w", errs.ErrNotConnected)}
	srv, st := newServer(t, "", gw)

	rec := do(t, srv.Handler(), http.MethodPost, "/send", "", `{"jid":"1@s.whatsapp.net","text":"hi"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, st.Snapshot().LastError, "not connected")
}

func TestSend_GenericFailure(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{sendErr: errors.New("relay write failed")}
	srv, st := newServer(t, "", gw)

	rec := do(t, srv.Handler(), http.MethodPost, "/send", "", `{"jid":"1@s.whatsapp.net","text":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, st.Snapshot().LastError, "relay write failed")
}

func TestRateLimit_PerIP(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t, "", &fakeGateway{})
	h := srv.Handler()

	var limited bool
	for i := 0; i < rateLimitRequests+5; i++ {
		rec := do(t, h, http.MethodGet, "/status", "", "")
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	require.True(t, limited, "rate limit never triggered")

	// /health stays outside the budget.
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "", "").Code)
}
