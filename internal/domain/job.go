package domain

import (
	"context"
	"time"
)

// JobState represents a job's position in its lifecycle.
// Transitions are monotonic: Pending → Running → one terminal state,
// enforced by the job registry's transition table.
type JobState string

// Job lifecycle states.
const (
	// JobStatePending means the job is registered but the engine has not
	// picked it up yet.
	JobStatePending JobState = "pending"

	// JobStateRunning means the agent process is executing.
	JobStateRunning JobState = "running"

	// JobStateCompleted means the agent exited cleanly and produced its
	// output file.
	JobStateCompleted JobState = "completed"

	// JobStateFailed means the agent failed: spawn error, non-zero exit,
	// or missing output.
	JobStateFailed JobState = "failed"

	// JobStateCancelled means a caller cancelled the job and the process
	// tree was terminated.
	JobStateCancelled JobState = "cancelled"

	// JobStateTimedOut means the wall-clock limit expired and the process
	// tree was terminated.
	JobStateTimedOut JobState = "timed_out"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCancelled, JobStateTimedOut:
		return true
	case JobStatePending, JobStateRunning:
		return false
	}
	return false
}

// Job is one orchestrated execution of a development command against a
// project. Only the engine running the job transitions its state, with the
// single exception of cancellation, which any caller may request through
// the registry.
type Job struct {
	// ID is an opaque unique identifier (8-char short id).
	ID string `json:"id"`

	// Project is the name of the project the job runs against.
	Project string `json:"project"`

	// Kind is the development command being executed.
	Kind CommandKind `json:"kind"`

	// Argument is the user-supplied task text.
	Argument string `json:"argument"`

	// Workspace is the disposable checkout bound to this job.
	// Nil for kinds that run without one (ask, init).
	Workspace *Workspace `json:"workspace,omitempty"`

	// State is the current lifecycle state.
	State JobState `json:"state"`

	// Cause records why a terminal state was reached. Empty for
	// Completed. Never empty for Failed, Cancelled, or TimedOut.
	Cause string `json:"cause,omitempty"`

	// SummaryPath is where the agent's captured output lives once the
	// job completes. The file is deleted when the result is retrieved.
	SummaryPath string `json:"summary_path,omitempty"`

	// StartedAt is when the job was registered.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is set when the job reaches a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// CancelCtx is cancelled when a caller requests cancellation.
	// The engine's wait loop listens on it. Not serialized.
	CancelCtx context.Context `json:"-"`

	// CancelFunc cancels CancelCtx. Owned by the registry. Not serialized.
	CancelFunc context.CancelFunc `json:"-"`
}

// Elapsed returns how long the job has been (or was) running, measured
// against now for live jobs.
func (j *Job) Elapsed(now time.Time) time.Duration {
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(j.StartedAt)
	}
	return now.Sub(j.StartedAt)
}

// SessionLink records the branch a successful feat/fix/plan job worked on
// so a later feedback job can resume it. One link per project; each new
// successful session supersedes the previous one.
type SessionLink struct {
	// Project is the project the session belongs to.
	Project string `json:"project"`

	// JobID is the job that recorded the link.
	JobID string `json:"job_id"`

	// Branch is the branch name to resume.
	Branch string `json:"branch"`

	// RecordedAt is when the link was written.
	RecordedAt time.Time `json:"recorded_at"`
}
