package sync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitDestination keeps the export as one file in a local clone and pushes
// each change to Remote.
type GitDestination struct {
	Repo   string
	File   string // relative to Repo
	Branch string
	Remote string
}

func NewGitDestination(repo, file, branch string) *GitDestination {
	return &GitDestination{Repo: repo, File: file, Branch: branch, Remote: "origin"}
}

func (d *GitDestination) Name() string {
	return "git:" + filepath.Join(d.Repo, d.File)
}

func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	if _, err := d.git(ctx, "checkout", d.Branch); err != nil {
		return err
	}
	// The branch may not exist on the remote yet.
	_, _ = d.git(ctx, "pull", "--ff-only", d.Remote, d.Branch)

	path := filepath.Join(d.Repo, d.File)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if _, err := d.git(ctx, "add", "--", d.File); err != nil {
		return err
	}

	status, err := d.git(ctx, "status", "--porcelain", "--", d.File)
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		return nil
	}
	for _, args := range [][]string{
		{"commit", "-m", "kd: update graph export", "--", d.File},
		{"push", d.Remote, d.Branch},
	} {
		if _, err := d.git(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

// git runs a git subcommand in the clone and returns its stdout. Failures
// carry the command's stderr.
func (d *GitDestination) git(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.Repo
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("git %s: %w", args[0], err)
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
	}
	return stdout.String(), nil
}
