// Package job provides the in-memory registry that is the source of truth
// for every orchestrated job and for the session links that let feedback
// resume a prior branch.
//
// This file implements the job state machine, which enforces valid state
// transitions.
//
// Import rules:
//   - CAN import: internal/clock, internal/constants, internal/domain, internal/errors, std lib
//   - MUST NOT import: internal/workspace, internal/engine, internal/cli
package job

import (
	"fmt"
	"time"

	"github.com/grovekit/grove/internal/domain"
	groveerrors "github.com/grovekit/grove/internal/errors"
)

// ValidTransitions defines all allowed state transitions in the job lifecycle.
// Format: from_state -> []to_states
//
// The state machine follows this flow:
//
//	Pending → Running, Failed, Cancelled
//	Running → Completed, Failed, Cancelled, TimedOut
//
// Pending can fail directly: workspace acquisition happens before the agent
// starts, and an acquisition error terminates the job without it ever running.
//
//nolint:gochecknoglobals // Exported for testing and read-only lookup table
var ValidTransitions = map[domain.JobState][]domain.JobState{
	domain.JobStatePending: {
		domain.JobStateRunning,
		domain.JobStateFailed,
		domain.JobStateCancelled,
	},
	domain.JobStateRunning: {
		domain.JobStateCompleted,
		domain.JobStateFailed,
		domain.JobStateCancelled,
		domain.JobStateTimedOut,
	},
}

// IsValidTransition checks if a transition from one state to another is allowed.
// Returns false for transitions from terminal states or to the same state.
func IsValidTransition(from, to domain.JobState) bool {
	if from == to {
		return false
	}

	validTargets, exists := ValidTransitions[from]
	if !exists {
		return false // Terminal state or unknown state
	}
	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// transition validates and applies a state change to the job in place.
// cause explains terminal failures and is ignored for non-terminal targets.
// The caller must hold the registry lock.
func transition(j *domain.Job, to domain.JobState, cause string, now time.Time) error {
	if j == nil {
		return fmt.Errorf("%w: job is nil", groveerrors.ErrInvalidTransition)
	}

	from := j.State
	if !IsValidTransition(from, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s",
			groveerrors.ErrInvalidTransition, from, to)
	}

	j.State = to
	if to.Terminal() {
		completed := now.UTC()
		j.CompletedAt = &completed
		j.Cause = cause
	}

	return nil
}
