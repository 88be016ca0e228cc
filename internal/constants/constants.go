// Package constants provides centralized constant values used throughout Grove.
// This package is the single source of truth for all shared constants and MUST NOT
// import any other internal packages.
package constants

import "time"

// Directory and file naming used by Grove for scratch data.
const (
	// GroveHome is the hidden directory name where Grove stores its data.
	// This directory is created in the user's home directory.
	GroveHome = ".grove"

	// LogsDir is the directory name where log files are stored.
	LogsDir = "logs"

	// WorkspacesDir is the directory under the scratch root where
	// disposable job worktrees are created.
	WorkspacesDir = "worktrees"

	// OutputsDir is the directory under the scratch root where agent
	// output files are written.
	OutputsDir = "outputs"

	// NeutralDir is the directory under the scratch root used as the
	// working directory for jobs that need no project checkout.
	NeutralDir = "neutral"

	// LogFileName is the name of the rotating daemon log file.
	LogFileName = "grove.log"
)

// Log file rotation settings, applied to the rotating file writer.
const (
	LogMaxSizeMB  = 10
	LogMaxBackups = 3
	LogMaxAgeDays = 28
	LogCompress   = true
)

// Timeout configurations for orchestration operations.
const (
	// DefaultAgentTimeout is the default hard wall-clock limit for one
	// agent execution. On expiry the process tree is killed and the job
	// is marked TimedOut.
	DefaultAgentTimeout = 30 * time.Minute

	// DefaultCloneTimeout bounds the first-time clone of a project's
	// canonical repository.
	DefaultCloneTimeout = 30 * time.Minute

	// GitCommandTimeout bounds individual local git commands
	// (worktree add/remove, branch checks).
	GitCommandTimeout = 2 * time.Minute

	// TerminateGracePeriod is how long a process group is given after
	// SIGTERM before SIGKILL escalation.
	TerminateGracePeriod = 5 * time.Second

	// DownCommandTimeout bounds a project's teardown command after its
	// auxiliary process has been stopped.
	DownCommandTimeout = 2 * time.Minute
)

// Job registry retention defaults.
const (
	// DefaultJobRetention is how many terminal jobs are kept queryable
	// per project before LRU eviction.
	DefaultJobRetention = 20
)

// Auxiliary process supervision defaults.
const (
	// DefaultLogBufferLines is the capacity of the per-process log ring.
	// Oldest lines are dropped once the ring is full.
	DefaultLogBufferLines = 500

	// DefaultTailLines is how many log lines a tail request returns when
	// the caller does not specify a count.
	DefaultTailLines = 50
)

// ShortIDLength is the length of the short unique identifiers used for
// jobs and workspaces, mirroring short git-style ids in chat output.
const ShortIDLength = 8
