package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/grovekit/grove/internal/clock"
	"github.com/grovekit/grove/internal/constants"
	"github.com/grovekit/grove/internal/domain"
	groveerrors "github.com/grovekit/grove/internal/errors"
	"github.com/grovekit/grove/internal/git"
	"github.com/grovekit/grove/internal/job"
	"github.com/grovekit/grove/internal/proc"
	"github.com/grovekit/grove/internal/workspace"
)

// stderrTailLimit bounds how much captured stderr ends up in a failure
// cause. Causes travel back to chat; full dumps belong in the log file.
const stderrTailLimit = 1024

// Engine executes jobs against their workspaces. One Run call owns the
// whole lifecycle after registration: the Running transition, the agent
// subprocess, timeout and cancellation, output capture, session
// recording, workspace release, and the terminal transition.
type Engine struct {
	registry   *job.Registry
	workspaces workspace.Manager
	runner     AgentRunner
	clock      clock.Clock
	logger     zerolog.Logger
	outputsDir string
	timeout    time.Duration
	grace      time.Duration
}

// New creates an engine. outputsDir is where job output files are
// written; timeout is the per-job wall-clock limit, defaulted when zero.
func New(registry *job.Registry, workspaces workspace.Manager, runner AgentRunner, outputsDir string, timeout time.Duration, clk clock.Clock, logger zerolog.Logger) *Engine {
	if timeout <= 0 {
		timeout = constants.DefaultAgentTimeout
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Engine{
		registry:   registry,
		workspaces: workspaces,
		runner:     runner,
		clock:      clk,
		logger:     logger,
		outputsDir: outputsDir,
		timeout:    timeout,
		grace:      constants.TerminateGracePeriod,
	}
}

// OutputPath returns the output file assigned to the job.
func (e *Engine) OutputPath(jobID string) string {
	return filepath.Join(e.outputsDir, "output_"+jobID+".txt")
}

// Run executes the job to its terminal state and returns the result.
// It blocks for the duration of the agent process; the submission path
// calls it on its own goroutine. ws is nil for workspace-less kinds.
// rules is the command-specific system prompt text.
func (e *Engine) Run(ctx context.Context, j *domain.Job, project *domain.Project, ws *domain.Workspace, rules string) domain.JobResult {
	outputPath := e.OutputPath(j.ID)
	if err := os.MkdirAll(e.outputsDir, 0o750); err != nil {
		return e.finish(ctx, j, ws, domain.JobStateFailed,
			fmt.Sprintf("creating output directory: %v", err), outputPath)
	}

	// A cancel that raced submission wins before the agent spawns.
	select {
	case <-j.CancelCtx.Done():
		return e.finish(ctx, j, ws, domain.JobStateCancelled, "cancelled before start", outputPath)
	case <-ctx.Done():
		return e.finish(ctx, j, ws, domain.JobStateCancelled, "orchestrator shutting down", outputPath)
	default:
	}

	if err := e.registry.MarkRunning(j.ID); err != nil {
		return e.finish(ctx, j, ws, domain.JobStateFailed,
			fmt.Sprintf("marking job running: %v", err), outputPath)
	}

	workDir := e.workspaces.NeutralDir()
	switch {
	case ws != nil:
		workDir = ws.Path
	case j.Kind == domain.CommandInit && project.WorkDir != "":
		// init primes the canonical clone itself.
		workDir = project.WorkDir
	}

	prompt := BuildPrompt(project, j.Kind, j.Argument, workDir, outputPath)

	started := e.clock.Now()
	agent, err := e.runner.Start(ctx, AgentRequest{
		WorkingDir:   workDir,
		Prompt:       prompt,
		SystemPrompt: rules,
	})
	if err != nil {
		return e.finish(ctx, j, ws, domain.JobStateFailed, err.Error(), outputPath)
	}

	e.logger.Info().
		Str("job_id", j.ID).
		Str("project", j.Project).
		Str("kind", j.Kind.String()).
		Str("working_dir", workDir).
		Int("pid", agent.PID()).
		Msg("agent running")

	done := make(chan error, 1)
	go func() { done <- agent.Wait() }()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	var state domain.JobState
	var cause string
	select {
	case waitErr := <-done:
		state, cause = e.classifyExit(waitErr, outputPath, agent, started)
	case <-j.CancelCtx.Done():
		e.terminate(agent, done)
		state, cause = domain.JobStateCancelled, "cancelled by request"
	case <-ctx.Done():
		e.terminate(agent, done)
		state, cause = domain.JobStateCancelled, "orchestrator shutting down"
	case <-timer.C:
		e.terminate(agent, done)
		state, cause = domain.JobStateTimedOut, fmt.Sprintf("exceeded %s wall-clock limit", e.timeout)
	}

	if state == domain.JobStateCompleted {
		e.recordSession(ctx, j, ws)
	}

	return e.finish(ctx, j, ws, state, cause, outputPath)
}

// classifyExit decides the terminal state after the agent exited on its
// own. Presence of the output file decides success: an agent that wrote
// its result did the work, whatever its exit code says.
func (e *Engine) classifyExit(waitErr error, outputPath string, agent AgentProcess, started time.Time) (domain.JobState, string) {
	if _, statErr := os.Stat(outputPath); statErr == nil {
		if err := appendDuration(outputPath, e.clock.Now().Sub(started)); err != nil {
			e.logger.Warn().Err(err).Str("output", outputPath).Msg("failed to append execution time")
		}
		return domain.JobStateCompleted, ""
	}

	if waitErr != nil {
		cause := fmt.Sprintf("%v: %v", groveerrors.ErrAgentExecution, waitErr)
		if tail := stderrTail(agent.Stderr()); tail != "" {
			cause += ": " + tail
		}
		return domain.JobStateFailed, cause
	}

	return domain.JobStateFailed, groveerrors.ErrMissingOutput.Error()
}

// terminate kills the agent's process group and joins the wait goroutine
// so the exit status is reaped before the job is finalized.
func (e *Engine) terminate(agent AgentProcess, done <-chan error) {
	proc.TerminateGroup(e.logger, agent.PID(), e.grace)
	<-done
}

// recordSession stores a session link for kinds that support feedback,
// but only when the branch actually gained commits. An agent run that
// changed nothing leaves no branch artifact to resume.
func (e *Engine) recordSession(ctx context.Context, j *domain.Job, ws *domain.Workspace) {
	if ws == nil || !j.Kind.Spec().RecordsSession {
		return
	}
	if !e.hasChanges(ctx, ws) {
		e.logger.Info().
			Str("job_id", j.ID).
			Str("branch", ws.Branch).
			Msg("no commits on branch, skipping session link")
		return
	}
	e.registry.RecordSession(domain.SessionLink{
		Project:    j.Project,
		JobID:      j.ID,
		Branch:     ws.Branch,
		RecordedAt: e.clock.Now().UTC(),
	})
}

// hasChanges reports whether the workspace branch has commits beyond its
// base. The base is resolved against origin first, matching how the
// branch was cut.
func (e *Engine) hasChanges(ctx context.Context, ws *domain.Workspace) bool {
	has, err := git.HasCommitsBetween(ctx, ws.Path, "origin/"+ws.BaseBranch, "HEAD")
	if err != nil {
		has, err = git.HasCommitsBetween(ctx, ws.Path, ws.BaseBranch, "HEAD")
	}
	if err != nil {
		e.logger.Warn().Err(err).Str("branch", ws.Branch).Msg("failed to check branch for commits")
		return false
	}
	return has
}

// finish releases the workspace, records the terminal transition, and
// builds the result. The workspace release always runs, whichever error
// path led here, and runs before the terminal transition so a retained
// terminal job never holds a live checkout.
func (e *Engine) finish(ctx context.Context, j *domain.Job, ws *domain.Workspace, state domain.JobState, cause, outputPath string) domain.JobResult {
	e.workspaces.Release(ctx, ws)

	summaryPath := outputPath
	if state != domain.JobStateCompleted {
		discardSummary(outputPath)
		summaryPath = ""
	}

	if err := e.registry.MarkTerminal(j.ID, state, cause, summaryPath); err != nil {
		e.logger.Error().Err(err).Str("job_id", j.ID).Msg("failed to record terminal state")
	}

	result := domain.JobResult{
		ID:      j.ID,
		Project: j.Project,
		Kind:    j.Kind,
		State:   state,
		Err:     cause,
	}
	if state == domain.JobStateCompleted {
		summary, err := ConsumeSummary(summaryPath)
		if err != nil {
			e.logger.Warn().Err(err).Str("job_id", j.ID).Msg("failed to read summary")
		}
		result.Summary = summary
	}
	return result
}

func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTailLimit {
		return s
	}
	return s[len(s)-stderrTailLimit:]
}
