// Package status composes read-only snapshots of job registry and
// supervisor state for display. It never mutates anything and never
// blocks on long operations; both sources hand out copies under brief
// locks.
package status

import (
	"sort"
	"time"

	"github.com/grovekit/grove/internal/clock"
	"github.com/grovekit/grove/internal/domain"
	"github.com/grovekit/grove/internal/job"
	"github.com/grovekit/grove/internal/supervisor"
)

// JobStatus is one job row in a status view.
type JobStatus struct {
	ID       string             `json:"id"`
	Kind     domain.CommandKind `json:"kind"`
	Argument string             `json:"argument"`
	State    domain.JobState    `json:"state"`
	Branch   string             `json:"branch,omitempty"`
	Elapsed  time.Duration      `json:"elapsed"`
}

// ProcessStatus describes a running auxiliary process.
type ProcessStatus struct {
	PID     int           `json:"pid"`
	Command string        `json:"command"`
	Uptime  time.Duration `json:"uptime"`
}

// ProjectStatus is the per-project view: active jobs plus the auxiliary
// process, when one is running.
type ProjectStatus struct {
	Project string         `json:"project"`
	Jobs    []JobStatus    `json:"jobs"`
	Process *ProcessStatus `json:"process,omitempty"`
}

// Reporter builds status snapshots.
type Reporter struct {
	registry   *job.Registry
	supervisor *supervisor.Supervisor
	clock      clock.Clock
}

// New creates a reporter over the given registry and supervisor.
func New(registry *job.Registry, sup *supervisor.Supervisor, clk clock.Clock) *Reporter {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Reporter{
		registry:   registry,
		supervisor: sup,
		clock:      clk,
	}
}

// Project returns the status of one project.
func (r *Reporter) Project(name string) ProjectStatus {
	now := r.clock.Now()
	st := ProjectStatus{Project: name}

	for _, j := range r.registry.ListByProject(name) {
		if j.State.Terminal() {
			continue
		}
		st.Jobs = append(st.Jobs, jobRow(j, now))
	}

	if rec, ok := r.supervisor.Get(name); ok {
		st.Process = &ProcessStatus{
			PID:     rec.PID,
			Command: rec.Command,
			Uptime:  rec.Uptime(now),
		}
	}
	return st
}

// Overview returns the status of every project that has an active job or
// a running auxiliary process, sorted by project name.
func (r *Reporter) Overview() []ProjectStatus {
	now := r.clock.Now()

	byProject := make(map[string]*ProjectStatus)
	ensure := func(name string) *ProjectStatus {
		if st, ok := byProject[name]; ok {
			return st
		}
		st := &ProjectStatus{Project: name}
		byProject[name] = st
		return st
	}

	for _, j := range r.registry.ListAll() {
		if j.State.Terminal() {
			continue
		}
		st := ensure(j.Project)
		st.Jobs = append(st.Jobs, jobRow(j, now))
	}

	for name, rec := range r.supervisor.Snapshot() {
		st := ensure(name)
		st.Process = &ProcessStatus{
			PID:     rec.PID,
			Command: rec.Command,
			Uptime:  rec.Uptime(now),
		}
	}

	out := make([]ProjectStatus, 0, len(byProject))
	for _, st := range byProject {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].Project < out[k].Project
	})
	return out
}

func jobRow(j *domain.Job, now time.Time) JobStatus {
	row := JobStatus{
		ID:       j.ID,
		Kind:     j.Kind,
		Argument: j.Argument,
		State:    j.State,
		Elapsed:  j.Elapsed(now),
	}
	if j.Workspace != nil {
		row.Branch = j.Workspace.Branch
	}
	return row
}
