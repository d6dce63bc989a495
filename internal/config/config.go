// Package config loads gateway configuration from the environment with an
// optional YAML overlay file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Reply modes selectable via REPLY_MODE.
const (
	ReplyModeEcho    = "echo"
	ReplyModeWebhook = "webhook"
	ReplyModeExec    = "exec"
)

// ExecConfig controls the external reply tool invocation.
type ExecConfig struct {
	Bin     string        `yaml:"bin"`
	Workdir string        `yaml:"workdir"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config is the full gateway configuration.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	StateDir   string `yaml:"state_dir"`
	AdminToken string `yaml:"admin_token"`
	RelayURL   string `yaml:"relay_url"`

	ReplyMode      string        `yaml:"reply_mode"`
	WebhookURL     string        `yaml:"webhook_url"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	Exec           ExecConfig    `yaml:"exec"`

	EnableConsole bool `yaml:"enable_console"`
	AllowGroups   bool `yaml:"allow_groups"`

	OwnerNumbers []string `yaml:"owner_numbers"`
	OwnerJIDs    []string `yaml:"owner_jids"`

	MaxInboundChars int `yaml:"max_inbound_chars"`
	MaxReplyChars   int `yaml:"max_reply_chars"`
}

// Load builds the configuration from environment variables with defaults.
func Load() Config {
	return Config{
		Host:     getEnv("HOST", "127.0.0.1"),
		Port:     envInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StateDir:   getEnv("AUTH_STATE_DIR", "./auth_state"),
		AdminToken: strings.TrimSpace(os.Getenv("GATEWAY_ADMIN_TOKEN")),
		RelayURL:   strings.TrimSpace(os.Getenv("RELAY_URL")),

		ReplyMode:      parseReplyMode(os.Getenv("REPLY_MODE")),
		WebhookURL:     strings.TrimSpace(os.Getenv("WEBHOOK_URL")),
		WebhookTimeout: envDuration("WEBHOOK_TIMEOUT", 25*time.Second),
		Exec: ExecConfig{
			Bin:     getEnv("EXEC_BIN", "codex"),
			Workdir: getEnv("EXEC_WORKDIR", "."),
			Model:   strings.TrimSpace(os.Getenv("EXEC_MODEL")),
			Timeout: envDuration("EXEC_TIMEOUT", 90*time.Second),
		},

		EnableConsole: envBool("ENABLE_CLI", true),
		AllowGroups:   envBool("ALLOW_GROUPS", false),

		OwnerNumbers: splitList(os.Getenv("OWNER_NUMBERS")),
		OwnerJIDs:    splitList(os.Getenv("OWNER_JIDS")),

		MaxInboundChars: envInt("MAX_INBOUND_CHARS", 4000),
		MaxReplyChars:   envInt("MAX_REPLY_CHARS", 4000),
	}
}

// ApplyFile overlays values from a YAML file onto the config. Only keys
// present in the file override; everything else keeps its current value.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	// Decoding into the existing struct leaves absent keys untouched.
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseReplyMode(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case ReplyModeWebhook:
		return ReplyModeWebhook
	case ReplyModeExec:
		return ReplyModeExec
	default:
		return ReplyModeEcho
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
