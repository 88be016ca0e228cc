// Package git provides git operations for Grove.
// This file implements linked-worktree operations for disposable job
// workspaces.
package git

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	groveerrors "github.com/grovekit/grove/internal/errors"
)

// WorktreeAddOptions controls worktree creation.
type WorktreeAddOptions struct {
	// Path is the absolute directory for the new worktree.
	Path string

	// Branch is the branch to check out.
	Branch string

	// Create makes a new branch from Base instead of checking out an
	// existing one.
	Create bool

	// Base is the start point for a created branch (e.g. "main" or
	// "origin/main"). Ignored unless Create is set.
	Base string
}

// WorktreeAdd creates a linked worktree of the repository at workDir.
// On failure the partially created directory is removed so creation is
// atomic from the caller's point of view.
func WorktreeAdd(ctx context.Context, workDir string, opts WorktreeAddOptions) error {
	if opts.Path == "" {
		return fmt.Errorf("worktree path %w", groveerrors.ErrEmptyValue)
	}
	if opts.Branch == "" {
		return fmt.Errorf("worktree branch %w", groveerrors.ErrEmptyValue)
	}

	var args []string
	if opts.Create {
		args = []string{"worktree", "add", opts.Path, "-b", opts.Branch}
		if opts.Base != "" {
			args = append(args, opts.Base)
		}
	} else {
		args = []string{"worktree", "add", opts.Path, opts.Branch}
	}

	if _, err := RunCommand(ctx, workDir, args...); err != nil {
		// Branch checkouts race with other worktrees holding the branch;
		// surface that distinctly so feedback can report it.
		if strings.Contains(err.Error(), "invalid reference") {
			_ = os.RemoveAll(opts.Path)
			return fmt.Errorf("branch %q: %w", opts.Branch, groveerrors.ErrBranchNotFound)
		}
		_ = os.RemoveAll(opts.Path)
		return fmt.Errorf("failed to create worktree: %w", err)
	}

	return nil
}

// WorktreeRemove removes a linked worktree and prunes stale registrations.
// It is idempotent and best-effort: every failure is logged and a manual
// directory removal is attempted, but an error is only returned when the
// directory is still present afterwards.
func WorktreeRemove(ctx context.Context, workDir, path string) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Already gone (possibly removed externally); still prune so git
		// forgets the registration.
		if _, pruneErr := RunCommand(ctx, workDir, "worktree", "prune"); pruneErr != nil {
			log.Warn().Err(pruneErr).Str("repo", workDir).Msg("worktree prune failed")
		}
		return nil
	}

	if _, err := RunCommand(ctx, workDir, "worktree", "remove", "--force", path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("git worktree remove failed, falling back to manual removal")
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return fmt.Errorf("failed to remove worktree directory %s: %w", path, rmErr)
		}
	}

	if _, err := RunCommand(ctx, workDir, "worktree", "prune"); err != nil {
		log.Warn().Err(err).Str("repo", workDir).Msg("worktree prune failed")
	}

	return nil
}

// WorktreeList returns the paths of all registered worktrees, including the
// main working tree.
func WorktreeList(ctx context.Context, workDir string) ([]string, error) {
	output, err := RunCommand(ctx, workDir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, "worktree ") {
			paths = append(paths, strings.TrimPrefix(line, "worktree "))
		}
	}
	return paths, nil
}
