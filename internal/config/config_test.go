package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	require.Equal(t, "127.0.0.1", cfg.Host)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "./auth_state", cfg.StateDir)
	require.Equal(t, ReplyModeEcho, cfg.ReplyMode)
	require.Equal(t, 25*time.Second, cfg.WebhookTimeout)
	require.True(t, cfg.EnableConsole)
	require.False(t, cfg.AllowGroups)
	require.Equal(t, 4000, cfg.MaxInboundChars)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REPLY_MODE", "WEBHOOK")
	t.Setenv("WEBHOOK_URL", " https://example.com/hook ")
	t.Setenv("ENABLE_CLI", "off")
	t.Setenv("ALLOW_GROUPS", "yes")
	t.Setenv("OWNER_NUMBERS", "+7 900 111-22-33, +1 555 000 1111")
	t.Setenv("MAX_INBOUND_CHARS", "bogus")

	cfg := Load()
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, ReplyModeWebhook, cfg.ReplyMode)
	require.Equal(t, "https://example.com/hook", cfg.WebhookURL)
	require.False(t, cfg.EnableConsole)
	require.True(t, cfg.AllowGroups)
	require.Equal(t, []string{"+7 900 111-22-33", "+1 555 000 1111"}, cfg.OwnerNumbers)
	require.Equal(t, 4000, cfg.MaxInboundChars, "unparseable int keeps the default")
}

func TestLoad_UnknownReplyModeFallsBackToEcho(t *testing.T) {
	t.Setenv("REPLY_MODE", "quantum")
	require.Equal(t, ReplyModeEcho, Load().ReplyMode)
}

func TestApplyFile_Overlay(t *testing.T) {
	cfg := Load()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	payload := []byte("port: 9999\nallow_groups: true\nexec:\n  bin: mytool\n")
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	require.NoError(t, cfg.ApplyFile(path))
	require.Equal(t, 9999, cfg.Port)
	require.True(t, cfg.AllowGroups)
	require.Equal(t, "mytool", cfg.Exec.Bin)
	// Keys absent from the file keep their values.
	require.Equal(t, "127.0.0.1", cfg.Host)
	require.Equal(t, "./auth_state", cfg.StateDir)
}

func TestApplyFile_Errors(t *testing.T) {
	cfg := Load()
	require.Error(t, cfg.ApplyFile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [broken"), 0o600))
	require.Error(t, cfg.ApplyFile(path))
}
