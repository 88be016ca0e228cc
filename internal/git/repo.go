// Package git provides git operations for Grove.
// This file implements canonical-clone and branch operations.
package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	groveerrors "github.com/grovekit/grove/internal/errors"
)

// Clone clones repoURL into workDir, creating parent directories as needed.
// It is a no-op if workDir already exists; callers serialize first-clone
// races with a per-project lock.
func Clone(ctx context.Context, repoURL, workDir string) error {
	if _, err := os.Stat(workDir); err == nil {
		return nil
	}

	parent := filepath.Dir(workDir)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return fmt.Errorf("failed to create clone parent directory: %w", err)
	}

	if _, err := RunCommand(ctx, parent, "clone", repoURL, workDir); err != nil {
		return fmt.Errorf("cloning %s: %w: %w", repoURL, groveerrors.ErrClone, err)
	}

	return nil
}

// DetectRepoRoot finds the root of the git repository containing path.
func DetectRepoRoot(ctx context.Context, path string) (string, error) {
	output, err := RunCommand(ctx, path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("%w: %w", groveerrors.ErrNotGitRepo, err)
	}
	return output, nil
}

// DefaultBranch resolves the repository's default branch from
// refs/remotes/origin/HEAD, falling back to the current branch for
// repositories without a remote.
func DefaultBranch(ctx context.Context, workDir string) (string, error) {
	out, err := RunCommand(ctx, workDir, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil {
		return strings.TrimPrefix(out, "refs/remotes/origin/"), nil
	}

	out, err = RunCommand(ctx, workDir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve default branch: %w", err)
	}
	return out, nil
}

// BranchExists checks if a local branch exists in the repository.
func BranchExists(ctx context.Context, workDir, name string) (bool, error) {
	_, err := RunCommand(ctx, workDir, "show-ref", "--verify", "refs/heads/"+name)
	if err != nil {
		// Exit code 1 or "not a valid ref" means ref not found, which is expected
		errStr := err.Error()
		if strings.Contains(errStr, "exit status 1") || strings.Contains(errStr, "not a valid ref") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check branch existence: %w", err)
	}
	return true, nil
}

// RemoteBranchExists checks if a branch exists on the origin remote.
func RemoteBranchExists(ctx context.Context, workDir, name string) (bool, error) {
	_, err := RunCommand(ctx, workDir, "show-ref", "--verify", "refs/remotes/origin/"+name)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "exit status 1") || strings.Contains(errStr, "not a valid ref") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check remote branch existence: %w", err)
	}
	return true, nil
}

// Fetch fetches from origin. Failures are returned so callers can decide
// whether stale refs are acceptable.
func Fetch(ctx context.Context, workDir string) error {
	if _, err := RunCommand(ctx, workDir, "fetch", "origin"); err != nil {
		return fmt.Errorf("failed to fetch from origin: %w", err)
	}
	return nil
}

// HasCommitsBetween reports whether branch carries commits that base does
// not. This is how the engine decides whether a job actually changed
// anything before recording a session.
func HasCommitsBetween(ctx context.Context, workDir, base, branch string) (bool, error) {
	out, err := RunCommand(ctx, workDir, "rev-list", "--count", base+".."+branch)
	if err != nil {
		return false, fmt.Errorf("failed to count commits between %s and %s: %w", base, branch, err)
	}
	return out != "0", nil
}
