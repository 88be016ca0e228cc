// Package engine runs the external development agent bound to a job's
// workspace, enforces the wall-clock timeout, and reports the terminal
// outcome into the job registry.
//
// Import rules:
//   - CAN import: internal/clock, internal/constants, internal/domain, internal/errors,
//     internal/git, internal/job, internal/proc, internal/workspace, std lib
//   - MUST NOT import: internal/cli, internal/orchestrator
package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	groveerrors "github.com/grovekit/grove/internal/errors"
)

// AgentRequest describes one agent invocation.
type AgentRequest struct {
	// WorkingDir is where the agent runs: the job's workspace, or the
	// neutral directory for workspace-less commands.
	WorkingDir string

	// Prompt is the full task prompt, passed on stdin.
	Prompt string

	// SystemPrompt is the command-specific rule text.
	SystemPrompt string

	// Model overrides the runner's configured model when non-empty.
	Model string
}

// AgentProcess is a handle on a started agent subprocess. Stdout and
// Stderr must only be read after Wait has returned.
type AgentProcess interface {
	// PID returns the process group leader's pid.
	PID() int

	// Wait blocks until the process exits and returns its exit error.
	Wait() error

	// Stdout returns the captured standard output.
	Stdout() string

	// Stderr returns the captured standard error.
	Stderr() string
}

// AgentRunner abstracts agent process creation so the engine can be
// tested without a real CLI on the path.
type AgentRunner interface {
	Start(ctx context.Context, req AgentRequest) (AgentProcess, error)
}

// ClaudeRunner invokes the Claude Code CLI in print mode. The subprocess
// is placed in its own process group so the engine can terminate the
// whole tree, including any helpers the agent spawns.
type ClaudeRunner struct {
	binary         string
	model          string
	permissionMode string
	logger         zerolog.Logger
}

// ClaudeRunnerOption is a functional option for configuring ClaudeRunner.
type ClaudeRunnerOption func(*ClaudeRunner)

// WithBinary overrides the CLI binary name.
func WithBinary(binary string) ClaudeRunnerOption {
	return func(r *ClaudeRunner) {
		r.binary = binary
	}
}

// WithModel sets the default model passed to the CLI.
func WithModel(model string) ClaudeRunnerOption {
	return func(r *ClaudeRunner) {
		r.model = model
	}
}

// WithRunnerLogger sets the logger for the runner.
func WithRunnerLogger(logger zerolog.Logger) ClaudeRunnerOption {
	return func(r *ClaudeRunner) {
		r.logger = logger
	}
}

// NewClaudeRunner creates a runner with the given options.
func NewClaudeRunner(opts ...ClaudeRunnerOption) *ClaudeRunner {
	r := &ClaudeRunner{
		binary:         "claude",
		permissionMode: "bypassPermissions",
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the agent and returns a handle without waiting.
func (r *ClaudeRunner) Start(ctx context.Context, req AgentRequest) (AgentProcess, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := r.buildCommand(req)

	p := &claudeProcess{cmd: cmd}
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr
	cmd.Stdin = strings.NewReader(req.Prompt)
	cmd.Dir = req.WorkingDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w: %w", r.binary, groveerrors.ErrAgentSpawn, err)
	}

	r.logger.Debug().
		Int("pid", cmd.Process.Pid).
		Str("working_dir", req.WorkingDir).
		Msg("agent process started")

	return p, nil
}

// buildCommand constructs the claude CLI command with appropriate flags.
func (r *ClaudeRunner) buildCommand(req AgentRequest) *exec.Cmd {
	args := []string{
		"-p", // Print mode (non-interactive)
		"--output-format", "text",
	}

	// Determine model: request > runner default
	model := req.Model
	if model == "" {
		model = r.model
	}
	if model != "" {
		args = append(args, "--model", model)
	}

	if r.permissionMode != "" {
		args = append(args, "--permission-mode", r.permissionMode)
	}

	if req.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", req.SystemPrompt)
	}

	//nolint:gosec // Arguments are built from validated configuration
	return exec.Command(r.binary, args...)
}

type claudeProcess struct {
	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func (p *claudeProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *claudeProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *claudeProcess) Stdout() string {
	return p.stdout.String()
}

func (p *claudeProcess) Stderr() string {
	return p.stderr.String()
}
