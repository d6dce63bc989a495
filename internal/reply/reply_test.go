package reply

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/chat-gateway/internal/config"
	"github.com/and161185/chat-gateway/internal/model"
)

func TestEcho(t *testing.T) {
	t.Parallel()
	r := Echo()
	got, err := r(context.Background(), model.InboundMessage{Text: "ping"})
	require.NoError(t, err)
	require.Equal(t, "Received: ping", got)
}

func TestWebhook_OK(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var msg model.InboundMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		require.Equal(t, "1@s.whatsapp.net", msg.JID)
		require.Equal(t, "m1", msg.MessageID)

		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "pong"})
	}))
	defer srv.Close()

	r := Webhook(srv.URL, srv.Client())
	got, err := r(context.Background(), model.InboundMessage{JID: "1@s.whatsapp.net", MessageID: "m1", Text: "ping"})
	require.NoError(t, err)
	require.Equal(t, "pong", got)
}

func TestWebhook_Errors(t *testing.T) {
	t.Parallel()

	t.Run("non-2xx", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := Webhook(srv.URL, srv.Client())(context.Background(), model.InboundMessage{Text: "x"})
		require.ErrorContains(t, err, "webhook error")
	})

	t.Run("missing reply field", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"other": "x"})
		}))
		defer srv.Close()

		_, err := Webhook(srv.URL, srv.Client())(context.Background(), model.InboundMessage{Text: "x"})
		require.ErrorContains(t, err, "reply")
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
			_ = json.NewEncoder(w).Encode(map[string]string{"reply": "late"})
		}))
		defer srv.Close()

		client := &http.Client{Timeout: 20 * time.Millisecond}
		_, err := Webhook(srv.URL, client)(context.Background(), model.InboundMessage{Text: "x"})
		require.Error(t, err)
	})
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	require.Equal(t, "short", Truncate("short", 100))

	long := strings.Repeat("a", 100)
	got := Truncate(long, 50)
	require.LessOrEqual(t, len(got), 50)
	require.Contains(t, got, "(truncated)")
}

func TestNew_ModeSelection(t *testing.T) {
	t.Parallel()

	_, err := New(config.Config{ReplyMode: config.ReplyModeWebhook})
	require.Error(t, err, "webhook mode requires a URL")

	r, err := New(config.Config{ReplyMode: config.ReplyModeEcho, MaxReplyChars: 10})
	require.NoError(t, err)
	got, err := r(context.Background(), model.InboundMessage{Text: strings.Repeat("x", 100)})
	require.NoError(t, err)
	require.LessOrEqual(t, len(got), 10)
}
