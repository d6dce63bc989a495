package reply

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/and161185/chat-gateway/internal/config"
	"github.com/and161185/chat-gateway/internal/model"
)

// Exec returns a Replier that shells out to an external reply tool. The
// prompt goes in on stdin (no argument escaping issues); the result is read
// from the tool's last-message output file, falling back to stdout. A hung
// tool is killed when its timeout elapses.
func Exec(cfg config.ExecConfig, stateDir string) Replier {
	return func(ctx context.Context, msg model.InboundMessage) (string, error) {
		outDir := filepath.Join(stateDir, "tmp")
		if err := os.MkdirAll(outDir, 0o700); err != nil {
			return "", fmt.Errorf("exec replier tmp dir: %w", err)
		}
		outFile := filepath.Join(outDir, fmt.Sprintf("reply_last_%d.txt", time.Now().UnixNano()))
		defer os.Remove(outFile)

		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		args := []string{
			"exec",
			"-C", cfg.Workdir,
			"--output-last-message", outFile,
		}
		if cfg.Model != "" {
			args = append(args, "-m", cfg.Model)
		}
		args = append(args, "-")

		cmd := exec.CommandContext(runCtx, cfg.Bin, args...)
		cmd.Stdin = strings.NewReader(buildPrompt(msg.Text))
		var stdout, stderr strings.Builder
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		runErr := cmd.Run()

		text := readLastMessage(outFile)
		if text == "" {
			text = strings.TrimSpace(stdout.String())
		}

		if runErr == nil && text != "" {
			return text, nil
		}

		reason := "empty output"
		switch {
		case runCtx.Err() == context.DeadlineExceeded:
			reason = "timed out"
		case runErr != nil:
			reason = runErr.Error()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("reply tool failed: %s: %s", reason, detail)
		}
		return "", fmt.Errorf("reply tool failed: %s", reason)
	}
}

func buildPrompt(userText string) string {
	return strings.Join([]string{
		"You are replying over a chat bridge.",
		"Be concise, direct, and practical.",
		"Avoid long preambles. Prefer short paragraphs and short lists.",
		"If you output code, keep it minimal.",
		"",
		"User message:",
		userText,
	}, "\n")
}

func readLastMessage(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
