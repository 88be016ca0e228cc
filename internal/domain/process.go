package domain

import "time"

// AuxiliaryProcess describes a supervised long-lived project process
// (e.g. a dev server), distinct from job execution. At most one exists per
// project at a time.
type AuxiliaryProcess struct {
	// Project is the owning project's name.
	Project string `json:"project"`

	// PID is the process id of the process-group leader.
	PID int `json:"pid"`

	// Command is the shell command that was launched.
	Command string `json:"command"`

	// StartedAt is when the process was launched.
	StartedAt time.Time `json:"started_at"`
}

// Uptime returns how long the process has been running as of now.
func (p *AuxiliaryProcess) Uptime(now time.Time) time.Duration {
	return now.Sub(p.StartedAt)
}
