package domain

import "time"

// Workspace is an isolated, disposable filesystem checkout bound to exactly
// one job for its lifetime. It is a linked worktree of the project's
// canonical clone at a specific branch, destroyed when the job reaches a
// terminal state.
type Workspace struct {
	// ID is the fresh unique identifier the workspace path is namespaced
	// by. Two concurrent jobs on the same branch still get distinct
	// paths because of this id.
	ID string `json:"id"`

	// Path is the absolute worktree directory.
	Path string `json:"path"`

	// Project is the owning project's name.
	Project string `json:"project"`

	// RepoDir is the canonical clone this worktree is linked to. Kept so
	// release can deregister the worktree even after the directory was
	// removed externally.
	RepoDir string `json:"repo_dir"`

	// Branch is the branch checked out in this worktree.
	Branch string `json:"branch"`

	// BaseBranch is the branch the job branch was cut from. Used to
	// detect whether the job committed any changes.
	BaseBranch string `json:"base_branch"`

	// CreatedAt is when the worktree was created.
	CreatedAt time.Time `json:"created_at"`
}
