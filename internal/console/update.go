package console

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// runUpdate fast-forwards the gateway checkout. Local changes require an
// explicit confirmation before pulling.
func (c *Console) runUpdate(ctx context.Context) {
	if !c.insideGitRepo(ctx) {
		fmt.Fprintln(c.out, "Not a git repository. /update skipped.")
		return
	}

	dirty, _ := c.git(ctx, "status", "--porcelain")
	if dirty != "" {
		fmt.Fprintln(c.out, "Local changes detected:")
		fmt.Fprintln(c.out, dirty)
		if !c.askYesNo("Proceed with git pull --ff-only? (yes/no) ") {
			fmt.Fprintln(c.out, "Update cancelled.")
			return
		}
	}

	before, _ := c.git(ctx, "rev-parse", "--short", "HEAD")

	out, err := c.git(ctx, "pull", "--ff-only")
	if err != nil {
		fmt.Fprintf(c.out, "Update failed: %v\n", err)
		return
	}
	if out != "" {
		fmt.Fprintln(c.out, out)
	}

	after, _ := c.git(ctx, "rev-parse", "--short", "HEAD")
	if before == after {
		fmt.Fprintf(c.out, "Already up to date (%s).\n", after)
		return
	}
	fmt.Fprintf(c.out, "Updated: %s -> %s\n", before, after)
	fmt.Fprintln(c.out, "Restart the process to load the new code.")
}

func (c *Console) insideGitRepo(ctx context.Context) bool {
	out, err := c.git(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.HasPrefix(strings.ToLower(out), "true")
}

func (c *Console) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.rootDir
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}
