// Package git provides git operations for Grove.
// This file provides shared git command execution utilities.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	groveerrors "github.com/grovekit/grove/internal/errors"
)

// RunCommand executes a git command in the specified directory and returns
// its trimmed stdout. All errors are wrapped with ErrGitOperation and
// include stderr for debugging.
func RunCommand(ctx context.Context, workDir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...) //#nosec G204 -- args are constructed internally, not user input
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check for context cancellation
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// Include stderr in error for debugging, wrap with ErrGitOperation
		if stderr.Len() > 0 {
			return "", fmt.Errorf("git %s failed: %s: %w", args[0], strings.TrimSpace(stderr.String()), groveerrors.ErrGitOperation)
		}
		return "", fmt.Errorf("git %s failed: %w", args[0], groveerrors.ErrGitOperation)
	}

	return strings.TrimSpace(stdout.String()), nil
}
