package scan

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// repositoryURL resolves the origin remote of the checkout. The .git/config
// file is preferred so analysis works without a git binary; exec is the
// fallback for worktrees and submodule layouts where config lives elsewhere.
func repositoryURL(ctx context.Context, root string) (string, error) {
	if raw, err := os.ReadFile(filepath.Join(root, ".git", "config")); err == nil {
		if url := originURL(string(raw)); url != "" {
			return url, nil
		}
	}
	cmd := exec.CommandContext(ctx, "git", "-C", root, "config", "--get", "remote.origin.url")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func originURL(config string) string {
	inOrigin := false
	scanner := bufio.NewScanner(strings.NewReader(config))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			inOrigin = line == `[remote "origin"]`
			continue
		}
		if !inOrigin {
			continue
		}
		if key, value, ok := strings.Cut(line, "="); ok && strings.TrimSpace(key) == "url" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
