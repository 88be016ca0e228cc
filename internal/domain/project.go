// Package domain provides shared domain types for the Grove job
// orchestration system. These types are used across all internal packages
// to ensure consistent data structures.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case.
package domain

// Project is an immutable description of a git-backed project that jobs
// run against. Projects are loaded once from configuration; the
// orchestration core only reads them.
type Project struct {
	// Name is the unique identifier used in chat commands and lookups.
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// RepoURL is the clone URL for the project's repository.
	RepoURL string `json:"repo_url" yaml:"repo_url" mapstructure:"repo_url"`

	// WorkDir is where the canonical clone lives on disk. The clone is
	// created on first use if the directory is absent.
	WorkDir string `json:"work_dir" yaml:"work_dir" mapstructure:"work_dir"`

	// BaseBranch is the branch new job branches are cut from.
	// Empty means the configured global default (usually "main").
	BaseBranch string `json:"base_branch,omitempty" yaml:"base_branch,omitempty" mapstructure:"base_branch"`

	// UpCommand starts the project's long-lived auxiliary process
	// (e.g. a dev server). Run with `sh -c` in WorkDir. Optional.
	UpCommand string `json:"up_command,omitempty" yaml:"up_command,omitempty" mapstructure:"up_command"`

	// DownCommand optionally tears down project resources after the
	// auxiliary process is stopped. Optional.
	DownCommand string `json:"down_command,omitempty" yaml:"down_command,omitempty" mapstructure:"down_command"`
}
