package domain

// JobRequest is what a chat adapter submits to the orchestrator.
type JobRequest struct {
	// Project is the configured project name.
	Project string `json:"project"`

	// Kind is the development command to run.
	Kind CommandKind `json:"kind"`

	// Argument is the user's task text.
	Argument string `json:"argument"`

	// RequesterID identifies the submitting user for audit logging.
	// The core does not interpret it.
	RequesterID string `json:"requester_id,omitempty"`
}

// JobHandle is returned immediately on submission; the job itself runs
// asynchronously.
type JobHandle struct {
	// ID is the job's opaque identifier, usable with cancel and status.
	ID string `json:"id"`
}

// JobResult is delivered to the submitting adapter once the job reaches a
// terminal state.
type JobResult struct {
	// ID is the job's identifier.
	ID string `json:"id"`

	// Project is the project the job ran against.
	Project string `json:"project"`

	// Kind is the command that was executed.
	Kind CommandKind `json:"kind"`

	// State is the terminal state.
	State JobState `json:"state"`

	// Summary is the agent's captured output, already suffixed with the
	// measured execution duration. Empty unless State is Completed.
	// Truncation for display limits belongs to the adapter.
	Summary string `json:"summary,omitempty"`

	// Err describes the failure for non-Completed terminal states.
	Err string `json:"error,omitempty"`
}
