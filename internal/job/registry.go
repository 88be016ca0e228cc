package job

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/grovekit/grove/internal/clock"
	"github.com/grovekit/grove/internal/constants"
	"github.com/grovekit/grove/internal/domain"
	groveerrors "github.com/grovekit/grove/internal/errors"
)

// Registry is the authoritative in-memory table of active and
// recently-completed jobs. All methods are safe for concurrent use; a
// single registry-wide mutex guards every read and write so no caller
// can observe a torn state transition.
//
// Jobs reach a terminal state only after the engine has released their
// workspace, so retention pruning never reaps a live checkout.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[string]*domain.Job
	sessions  map[string]domain.SessionLink
	retention int
	clock     clock.Clock
	logger    zerolog.Logger
}

// NewRegistry creates a registry that keeps at most retention terminal
// jobs per project. A retention of zero or less falls back to the default.
func NewRegistry(retention int, clk clock.Clock, logger zerolog.Logger) *Registry {
	if retention <= 0 {
		retention = constants.DefaultJobRetention
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Registry{
		jobs:      make(map[string]*domain.Job),
		sessions:  make(map[string]domain.SessionLink),
		retention: retention,
		clock:     clk,
		logger:    logger,
	}
}

// Create registers a new pending job and returns a snapshot of it.
// The snapshot carries the job's cancellation context so the engine can
// listen for cancel requests.
func (r *Registry) Create(project string, kind domain.CommandKind, argument string) *domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	j := &domain.Job{
		ID:         newJobID(),
		Project:    project,
		Kind:       kind,
		Argument:   argument,
		State:      domain.JobStatePending,
		StartedAt:  r.clock.Now().UTC(),
		CancelCtx:  cancelCtx,
		CancelFunc: cancelFunc,
	}
	r.jobs[j.ID] = j

	r.logger.Info().
		Str("job_id", j.ID).
		Str("project", project).
		Str("kind", string(kind)).
		Msg("job registered")

	return snapshot(j)
}

// BindWorkspace attaches the acquired workspace to the job record so
// status queries can surface the branch being worked on.
func (r *Registry) BindWorkspace(id string, ws *domain.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", groveerrors.ErrJobNotFound, id)
	}
	j.Workspace = ws
	return nil
}

// MarkRunning transitions the job from Pending to Running.
func (r *Registry) MarkRunning(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", groveerrors.ErrJobNotFound, id)
	}
	return transition(j, domain.JobStateRunning, "", r.clock.Now())
}

// MarkTerminal moves the job into the given terminal state. cause explains
// failures and must be empty for Completed. summaryPath points at the
// captured agent output, when one exists.
func (r *Registry) MarkTerminal(id string, state domain.JobState, cause, summaryPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", groveerrors.ErrJobNotFound, id)
	}
	if !state.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal state", groveerrors.ErrInvalidTransition, state)
	}
	if err := transition(j, state, cause, r.clock.Now()); err != nil {
		return err
	}
	j.SummaryPath = summaryPath
	j.CancelFunc()

	r.logger.Info().
		Str("job_id", id).
		Str("project", j.Project).
		Str("state", string(state)).
		Msg("job finished")

	r.pruneLocked(j.Project)
	return nil
}

// Cancel signals the job's cancellation context. It does not stop the
// subprocess itself; the engine listening on the context owns termination.
// Returns false when the job is unknown or already terminal.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok || j.State.Terminal() {
		return false
	}
	j.CancelFunc()

	r.logger.Info().
		Str("job_id", id).
		Str("project", j.Project).
		Msg("cancellation requested")
	return true
}

// CancelProject signals cancellation for every non-terminal job of the
// project and returns how many were signalled.
func (r *Registry) CancelProject(project string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, j := range r.jobs {
		if j.Project == project && !j.State.Terminal() {
			j.CancelFunc()
			count++
		}
	}
	return count
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", groveerrors.ErrJobNotFound, id)
	}
	return snapshot(j), nil
}

// ListByProject returns snapshots of the project's jobs, newest first.
func (r *Registry) ListByProject(project string) []*domain.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Job
	for _, j := range r.jobs {
		if j.Project == project {
			out = append(out, snapshot(j))
		}
	}
	sortNewestFirst(out)
	return out
}

// ListAll returns snapshots of every retained job, newest first.
func (r *Registry) ListAll() []*domain.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, snapshot(j))
	}
	sortNewestFirst(out)
	return out
}

// RecordSession stores the branch a successful job worked on, superseding
// any earlier link for the same project.
func (r *Registry) RecordSession(link domain.SessionLink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[link.Project] = link

	r.logger.Info().
		Str("project", link.Project).
		Str("job_id", link.JobID).
		Str("branch", link.Branch).
		Msg("session link recorded")
}

// LatestSession returns the most recently recorded session link for the
// project, or ErrNoActiveSession when none exists.
func (r *Registry) LatestSession(project string) (domain.SessionLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	link, ok := r.sessions[project]
	if !ok {
		return domain.SessionLink{}, fmt.Errorf("%w: project %s", groveerrors.ErrNoActiveSession, project)
	}
	return link, nil
}

// pruneLocked evicts the oldest terminal jobs of the project beyond the
// retention count. Non-terminal jobs are never evicted. The caller must
// hold the write lock.
func (r *Registry) pruneLocked(project string) {
	var terminal []*domain.Job
	for _, j := range r.jobs {
		if j.Project == project && j.State.Terminal() {
			terminal = append(terminal, j)
		}
	}
	if len(terminal) <= r.retention {
		return
	}

	// Oldest completions first.
	sort.Slice(terminal, func(i, k int) bool {
		return terminal[i].CompletedAt.Before(*terminal[k].CompletedAt)
	})
	for _, j := range terminal[:len(terminal)-r.retention] {
		delete(r.jobs, j.ID)
		r.logger.Debug().
			Str("job_id", j.ID).
			Str("project", project).
			Msg("evicted retained job")
	}
}

func sortNewestFirst(jobs []*domain.Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].StartedAt.Equal(jobs[k].StartedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].StartedAt.After(jobs[k].StartedAt)
	})
}

// snapshot returns a shallow copy so callers never read a job the
// registry is concurrently mutating.
func snapshot(j *domain.Job) *domain.Job {
	c := *j
	return &c
}

func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:constants.ShortIDLength]
}
