// Package reply provides the pluggable reply backends: echo, webhook, and an
// external command-execution tool. A Replier receives one accepted inbound
// message and returns the outbound reply text; an empty reply means "say
// nothing".
package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/and161185/chat-gateway/internal/config"
	"github.com/and161185/chat-gateway/internal/model"
)

// Replier generates a reply for one inbound message. Failures are returned
// as errors and handled by the caller; a Replier must never panic the
// gateway.
type Replier func(ctx context.Context, msg model.InboundMessage) (string, error)

// New selects the backend by reply mode and bounds reply length.
func New(cfg config.Config) (Replier, error) {
	var r Replier
	switch cfg.ReplyMode {
	case config.ReplyModeWebhook:
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("REPLY_MODE=webhook requires WEBHOOK_URL")
		}
		r = Webhook(cfg.WebhookURL, &http.Client{Timeout: cfg.WebhookTimeout})
	case config.ReplyModeExec:
		r = Exec(cfg.Exec, cfg.StateDir)
	default:
		r = Echo()
	}
	return truncated(r, cfg.MaxReplyChars), nil
}

// Echo returns a Replier that mirrors the inbound text back.
func Echo() Replier {
	return func(_ context.Context, msg model.InboundMessage) (string, error) {
		return "Received: " + msg.Text, nil
	}
}

// Webhook returns a Replier that POSTs the inbound message as JSON and
// expects {"reply": "..."} back.
func Webhook(url string, client *http.Client) Replier {
	return func(ctx context.Context, msg model.InboundMessage) (string, error) {
		body, err := json.Marshal(msg)
		if err != nil {
			return "", err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("webhook request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return "", fmt.Errorf("webhook error: %s %s", resp.Status, strings.TrimSpace(string(snippet)))
		}

		var out struct {
			Reply string `json:"reply"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("webhook response decode: %w", err)
		}
		if out.Reply == "" {
			return "", fmt.Errorf("webhook response must be JSON: {\"reply\": string}")
		}
		return out.Reply, nil
	}
}

func truncated(r Replier, maxChars int) Replier {
	if maxChars <= 0 {
		return r
	}
	return func(ctx context.Context, msg model.InboundMessage) (string, error) {
		text, err := r(ctx, msg)
		if err != nil {
			return "", err
		}
		return Truncate(text, maxChars), nil
	}
}

// Truncate bounds text to maxChars, marking the cut when one was made.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := maxChars - 20
	if cut < 0 {
		cut = 0
	}
	return strings.TrimRight(text[:cut], " \t\n") + "\n...(truncated)"
}
