// Package errors provides centralized error handling for Grove.
//
// This package defines sentinel errors used for programmatic error
// categorization throughout the application. All error types can be checked
// using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// These allow callers to check error types with errors.Is().
// All errors use lowercase descriptions per Go conventions.
var (
	// ErrClone indicates that cloning a project's canonical repository
	// failed (network, auth, or bad repo URL).
	ErrClone = errors.New("clone failed")

	// ErrGitOperation indicates that a git command (fetch, worktree,
	// branch, etc.) failed during execution.
	ErrGitOperation = errors.New("git operation failed")

	// ErrNotGitRepo indicates the path is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrBranchNotFound indicates the requested branch does not exist
	// locally or on the remote.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrWorkspaceAcquisition indicates a disposable workspace could not
	// be created for a job.
	ErrWorkspaceAcquisition = errors.New("workspace acquisition failed")

	// ErrNoActiveSession indicates a feedback job was submitted for a
	// project with no recorded session to resume.
	ErrNoActiveSession = errors.New("no active session")

	// ErrMissingOutput indicates the agent exited cleanly but never wrote
	// the designated output file.
	ErrMissingOutput = errors.New("agent output file missing")

	// ErrAgentExecution indicates the agent process failed to run or
	// exited non-zero without producing output.
	ErrAgentExecution = errors.New("agent execution failed")

	// ErrAgentSpawn indicates the agent process could not be started at
	// all. This is an infrastructure problem, distinct from
	// ErrAgentExecution which is a task problem.
	ErrAgentSpawn = errors.New("agent process spawn failed")

	// ErrAlreadyRunning indicates an auxiliary process is already tracked
	// and alive for the project.
	ErrAlreadyRunning = errors.New("auxiliary process already running")

	// ErrProcessNotRunning indicates no auxiliary process is tracked for
	// the project.
	ErrProcessNotRunning = errors.New("auxiliary process not running")

	// ErrNoUpCommand indicates the project has no configured up command.
	ErrNoUpCommand = errors.New("no up command configured")

	// ErrProjectNotFound indicates the named project is not configured.
	ErrProjectNotFound = errors.New("project not found")

	// ErrJobNotFound indicates the requested job is not in the registry.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition indicates an attempt to make an invalid job
	// state transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrEmptyValue indicates that a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrConfigNotFound indicates that the configuration file was not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates the configuration failed validation.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrUnknownCommand indicates an unrecognized command kind.
	ErrUnknownCommand = errors.New("unknown command kind")
)
