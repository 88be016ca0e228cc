// Package workspace provides disposable job workspaces for Grove.
// This file implements the Manager which owns workspace lifecycle.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/grovekit/grove/internal/constants"
	"github.com/grovekit/grove/internal/ctxutil"
	"github.com/grovekit/grove/internal/domain"
	groveerrors "github.com/grovekit/grove/internal/errors"
	"github.com/grovekit/grove/internal/git"
)

// Manager creates and destroys isolated working copies of a project's
// repository so concurrent jobs never share mutable git state.
type Manager interface {
	// Acquire prepares a workspace for a job according to mode.
	// Returns (nil, nil) for mode None.
	Acquire(ctx context.Context, project *domain.Project, mode AcquireMode) (*domain.Workspace, error)

	// Release removes the workspace's worktree and deregisters it.
	// Idempotent; safe to call with nil.
	Release(ctx context.Context, ws *domain.Workspace)

	// EnsureClone makes sure the project's canonical clone exists,
	// cloning it if absent. Safe for concurrent callers.
	EnsureClone(ctx context.Context, project *domain.Project) error

	// NeutralDir returns the directory jobs without a workspace run in.
	NeutralDir() string
}

// DefaultManager implements Manager on top of the git package.
type DefaultManager struct {
	scratchRoot   string
	defaultBranch string
	logger        zerolog.Logger

	// cloneLocks serializes first-time clones per project. Worktree
	// creation from an existing clone needs no lock: each acquisition
	// produces an independent linked copy.
	cloneMu    sync.Mutex
	cloneLocks map[string]*sync.Mutex
}

// NewManager creates a DefaultManager. scratchRoot holds worktrees, agent
// outputs, and the neutral directory; defaultBranch is used for projects
// that do not configure their own base branch.
func NewManager(scratchRoot, defaultBranch string, logger zerolog.Logger) *DefaultManager {
	return &DefaultManager{
		scratchRoot:   scratchRoot,
		defaultBranch: defaultBranch,
		logger:        logger,
		cloneLocks:    make(map[string]*sync.Mutex),
	}
}

// NeutralDir returns the scratch directory for workspace-less jobs,
// creating it on first use.
func (m *DefaultManager) NeutralDir() string {
	dir := filepath.Join(m.scratchRoot, constants.NeutralDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		m.logger.Warn().Err(err).Str("dir", dir).Msg("failed to create neutral directory")
	}
	return dir
}

// EnsureClone makes sure the canonical clone exists, holding the
// per-project lock across the existence check and the clone so concurrent
// first requests do not race to create the same clone.
func (m *DefaultManager) EnsureClone(ctx context.Context, project *domain.Project) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	lock := m.cloneLock(project.Name)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(project.WorkDir); err == nil {
		return nil
	}

	m.logger.Info().
		Str("project", project.Name).
		Str("repo_url", project.RepoURL).
		Str("work_dir", project.WorkDir).
		Msg("canonical clone missing, cloning")

	cloneCtx, cancel := context.WithTimeout(ctx, constants.DefaultCloneTimeout)
	defer cancel()

	return git.Clone(cloneCtx, project.RepoURL, project.WorkDir)
}

// Acquire prepares a workspace for a job according to mode.
func (m *DefaultManager) Acquire(ctx context.Context, project *domain.Project, mode AcquireMode) (*domain.Workspace, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	if mode.IsNone() {
		return nil, nil
	}

	if err := m.EnsureClone(ctx, project); err != nil {
		return nil, fmt.Errorf("%w: %w", groveerrors.ErrWorkspaceAcquisition, err)
	}

	// Refresh refs; stale origin refs are tolerable, a missing fetch is
	// only logged.
	if err := git.Fetch(ctx, project.WorkDir); err != nil {
		m.logger.Warn().Err(err).Str("project", project.Name).Msg("fetch before acquire failed")
	}

	// A fresh unique id namespaces the path. Never the branch name alone:
	// two pending feedback jobs may target the same branch.
	id := ShortID()
	wtPath := filepath.Join(m.scratchRoot, constants.WorkspacesDir, project.Name, id)
	if err := os.MkdirAll(filepath.Dir(wtPath), 0o750); err != nil {
		return nil, fmt.Errorf("%w: failed to create workspace base directory: %w", groveerrors.ErrWorkspaceAcquisition, err)
	}

	baseBranch := project.BaseBranch
	if baseBranch == "" {
		baseBranch = m.defaultBranch
	}

	var branch string
	var err error
	switch mode.kind {
	case modeNewBranch:
		branch = mode.prefix + "-" + id
		err = m.addNewBranchWorktree(ctx, project, wtPath, branch, baseBranch)
	case modeExistingBranch:
		branch = mode.branch
		err = m.addExistingBranchWorktree(ctx, project, wtPath, branch)
	case modeNone:
		// Handled above.
	}
	if err != nil {
		return nil, err
	}

	ws := &domain.Workspace{
		ID:         id,
		Path:       wtPath,
		Project:    project.Name,
		RepoDir:    project.WorkDir,
		Branch:     branch,
		BaseBranch: baseBranch,
		CreatedAt:  time.Now().UTC(),
	}

	m.logger.Info().
		Str("workspace_id", id).
		Str("project", project.Name).
		Str("branch", branch).
		Str("path", wtPath).
		Msg("workspace acquired")

	return ws, nil
}

// Release removes the worktree and deregisters it from the canonical
// clone. Best-effort log-and-continue: release must not fail job teardown
// even if the directory was already removed externally.
func (m *DefaultManager) Release(ctx context.Context, ws *domain.Workspace) {
	if ws == nil {
		return
	}

	// Teardown runs even when the job's context is already canceled.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.GitCommandTimeout)
	defer cancel()

	if err := git.WorktreeRemove(releaseCtx, ws.RepoDir, ws.Path); err != nil {
		m.logger.Warn().
			Err(err).
			Str("workspace_id", ws.ID).
			Str("path", ws.Path).
			Msg("workspace release incomplete")
		return
	}

	m.logger.Debug().
		Str("workspace_id", ws.ID).
		Str("path", ws.Path).
		Msg("workspace released")
}

// addNewBranchWorktree cuts a fresh branch from the base branch, preferring
// the origin ref when it exists so jobs start from the latest upstream.
func (m *DefaultManager) addNewBranchWorktree(ctx context.Context, project *domain.Project, wtPath, branch, baseBranch string) error {
	base := baseBranch
	if onRemote, err := git.RemoteBranchExists(ctx, project.WorkDir, baseBranch); err == nil && onRemote {
		base = "origin/" + baseBranch
	}

	err := git.WorktreeAdd(ctx, project.WorkDir, git.WorktreeAddOptions{
		Path:   wtPath,
		Branch: branch,
		Create: true,
		Base:   base,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", groveerrors.ErrWorkspaceAcquisition, err)
	}
	return nil
}

// addExistingBranchWorktree checks out an existing branch, materializing a
// local branch from origin when only the remote ref exists.
func (m *DefaultManager) addExistingBranchWorktree(ctx context.Context, project *domain.Project, wtPath, branch string) error {
	local, err := git.BranchExists(ctx, project.WorkDir, branch)
	if err != nil {
		return fmt.Errorf("%w: %w", groveerrors.ErrWorkspaceAcquisition, err)
	}

	opts := git.WorktreeAddOptions{Path: wtPath, Branch: branch}
	if !local {
		remote, remoteErr := git.RemoteBranchExists(ctx, project.WorkDir, branch)
		if remoteErr != nil {
			return fmt.Errorf("%w: %w", groveerrors.ErrWorkspaceAcquisition, remoteErr)
		}
		if !remote {
			return fmt.Errorf("branch %q for project %s: %w", branch, project.Name, groveerrors.ErrBranchNotFound)
		}
		opts.Create = true
		opts.Base = "origin/" + branch
	}

	if err := git.WorktreeAdd(ctx, project.WorkDir, opts); err != nil {
		if strings.Contains(err.Error(), "already used by worktree") {
			// The branch is held by another live worktree. Fall back to a
			// detached checkout of the same commit would change ownership
			// semantics, so surface it instead.
			return fmt.Errorf("%w: branch %q is in use by another workspace: %w",
				groveerrors.ErrWorkspaceAcquisition, branch, err)
		}
		return fmt.Errorf("%w: %w", groveerrors.ErrWorkspaceAcquisition, err)
	}
	return nil
}

// cloneLock returns the per-project clone mutex, creating it on demand.
func (m *DefaultManager) cloneLock(project string) *sync.Mutex {
	m.cloneMu.Lock()
	defer m.cloneMu.Unlock()

	lock, ok := m.cloneLocks[project]
	if !ok {
		lock = &sync.Mutex{}
		m.cloneLocks[project] = lock
	}
	return lock
}

// ShortID returns a fresh 8-character identifier, the same length as the
// original chat bot's query ids.
func ShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:constants.ShortIDLength]
}

// Ensure DefaultManager implements Manager.
var _ Manager = (*DefaultManager)(nil)
