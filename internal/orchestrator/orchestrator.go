// Package orchestrator wires the job registry, workspace manager,
// execution engine, and process supervisor into one context constructed
// at startup. Chat adapters talk to this package and nothing below it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/grovekit/grove/internal/clock"
	"github.com/grovekit/grove/internal/config"
	"github.com/grovekit/grove/internal/constants"
	"github.com/grovekit/grove/internal/domain"
	"github.com/grovekit/grove/internal/engine"
	groveerrors "github.com/grovekit/grove/internal/errors"
	"github.com/grovekit/grove/internal/job"
	"github.com/grovekit/grove/internal/status"
	"github.com/grovekit/grove/internal/supervisor"
	"github.com/grovekit/grove/internal/workspace"
)

// ResultHandler receives terminal job results. The orchestrator calls it
// from the job's own goroutine; handlers must be safe for concurrent use.
type ResultHandler func(domain.JobResult)

// Orchestrator owns all long-lived components. There are no package
// level singletons; construct one at startup and pass it around.
type Orchestrator struct {
	cfg        *config.Config
	registry   *job.Registry
	workspaces workspace.Manager
	engine     *engine.Engine
	supervisor *supervisor.Supervisor
	reporter   *status.Reporter
	logger     zerolog.Logger
	onResult   ResultHandler
	runner     engine.AgentRunner

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithResultHandler sets the handler invoked with each terminal result.
func WithResultHandler(h ResultHandler) Option {
	return func(o *Orchestrator) {
		o.onResult = h
	}
}

// WithRunner overrides the agent runner, for tests.
func WithRunner(r engine.AgentRunner) Option {
	return func(o *Orchestrator) {
		o.runner = r
	}
}

// New constructs the orchestrator and all components beneath it.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(o)
	}

	clk := clock.RealClock{}
	o.registry = job.NewRegistry(cfg.Jobs.Retention, clk, logger)
	o.workspaces = workspace.NewManager(cfg.ScratchRoot, cfg.Git.BaseBranch, logger)
	o.supervisor = supervisor.New(clk, logger, cfg.Jobs.LogBufferLines)
	o.reporter = status.New(o.registry, o.supervisor, clk)

	runner := o.runner
	if runner == nil {
		runner = engine.NewClaudeRunner(
			engine.WithBinary(cfg.Agent.Binary),
			engine.WithModel(cfg.Agent.Model),
			engine.WithRunnerLogger(logger),
		)
	}
	outputsDir := filepath.Join(cfg.ScratchRoot, constants.OutputsDir)
	o.engine = engine.New(o.registry, o.workspaces, runner, outputsDir, cfg.Agent.Timeout, clk, logger)

	return o
}

// Submit registers a job and returns its handle immediately; the job
// runs on its own goroutine. Validation failures, including feedback
// without a recorded session, are returned synchronously and register
// nothing.
func (o *Orchestrator) Submit(req domain.JobRequest) (domain.JobHandle, error) {
	if !req.Kind.Valid() {
		return domain.JobHandle{}, fmt.Errorf("%w: %q", groveerrors.ErrUnknownCommand, string(req.Kind))
	}
	project, ok := o.cfg.Project(req.Project)
	if !ok {
		return domain.JobHandle{}, fmt.Errorf("%w: %s", groveerrors.ErrProjectNotFound, req.Project)
	}

	spec := req.Kind.Spec()
	mode := workspace.None()
	switch {
	case spec.ResumesSession:
		link, err := o.registry.LatestSession(project.Name)
		if err != nil {
			return domain.JobHandle{}, err
		}
		mode = workspace.ExistingBranch(link.Branch)
	case spec.NeedsWorkspace:
		mode = workspace.NewBranch(spec.BranchPrefix)
	}

	j := o.registry.Create(project.Name, req.Kind, req.Argument)

	o.logger.Info().
		Str("job_id", j.ID).
		Str("project", project.Name).
		Str("kind", req.Kind.String()).
		Str("requester", req.RequesterID).
		Msg("job submitted")

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(j, project, mode)
	}()

	return domain.JobHandle{ID: j.ID}, nil
}

// execute runs the job lifecycle on its own goroutine: workspace
// acquisition, the engine run, and result delivery.
func (o *Orchestrator) execute(j *domain.Job, project *domain.Project, mode workspace.AcquireMode) {
	var ws *domain.Workspace
	if !mode.IsNone() {
		var err error
		ws, err = o.workspaces.Acquire(o.ctx, project, mode)
		if err != nil {
			o.failBeforeRun(j, err)
			return
		}
		if err := o.registry.BindWorkspace(j.ID, ws); err != nil {
			o.logger.Warn().Err(err).Str("job_id", j.ID).Msg("failed to bind workspace")
		}
	} else if j.Kind == domain.CommandInit {
		// init has no workspace but still needs the canonical clone.
		if err := o.workspaces.EnsureClone(o.ctx, project); err != nil {
			o.failBeforeRun(j, err)
			return
		}
	}

	result := o.engine.Run(o.ctx, j, project, ws, o.cfg.Rules.For(j.Kind))

	// A successful init also brings the project's auxiliary process up,
	// so one command readies the whole project.
	if j.Kind == domain.CommandInit &&
		result.State == domain.JobStateCompleted && project.UpCommand != "" {
		if _, err := o.supervisor.Start(o.ctx, project); err != nil && !errors.Is(err, groveerrors.ErrAlreadyRunning) {
			o.logger.Warn().Err(err).Str("project", project.Name).Msg("failed to start auxiliary process after init")
		}
	}

	o.deliver(result)
}

// failBeforeRun records a failure that happened before the engine took
// over, typically workspace acquisition.
func (o *Orchestrator) failBeforeRun(j *domain.Job, cause error) {
	if err := o.registry.MarkTerminal(j.ID, domain.JobStateFailed, cause.Error(), ""); err != nil {
		o.logger.Error().Err(err).Str("job_id", j.ID).Msg("failed to record terminal state")
	}
	o.deliver(domain.JobResult{
		ID:      j.ID,
		Project: j.Project,
		Kind:    j.Kind,
		State:   domain.JobStateFailed,
		Err:     cause.Error(),
	})
}

func (o *Orchestrator) deliver(result domain.JobResult) {
	if o.onResult != nil {
		o.onResult(result)
	}
}

// Cancel requests cancellation of a job. Returns false when the job is
// unknown or already terminal.
func (o *Orchestrator) Cancel(id string) bool {
	return o.registry.Cancel(id)
}

// CancelProject cancels every non-terminal job of the project and
// returns how many were signalled.
func (o *Orchestrator) CancelProject(project string) int {
	return o.registry.CancelProject(project)
}

// Job returns a snapshot of the job.
func (o *Orchestrator) Job(id string) (*domain.Job, error) {
	return o.registry.Get(id)
}

// Status returns the per-project status view.
func (o *Orchestrator) Status(project string) status.ProjectStatus {
	return o.reporter.Project(project)
}

// StatusAll returns the status of every project with activity.
func (o *Orchestrator) StatusAll() []status.ProjectStatus {
	return o.reporter.Overview()
}

// Up starts the project's auxiliary process, cloning the repository
// first if needed so the up command has a working directory.
func (o *Orchestrator) Up(ctx context.Context, name string) (domain.AuxiliaryProcess, error) {
	project, ok := o.cfg.Project(name)
	if !ok {
		return domain.AuxiliaryProcess{}, fmt.Errorf("%w: %s", groveerrors.ErrProjectNotFound, name)
	}
	if err := o.workspaces.EnsureClone(ctx, project); err != nil {
		return domain.AuxiliaryProcess{}, err
	}
	return o.supervisor.Start(ctx, project)
}

// Down stops the project's auxiliary process.
func (o *Orchestrator) Down(name string) error {
	return o.supervisor.Stop(name)
}

// Restart stops and restarts the project's auxiliary process.
func (o *Orchestrator) Restart(ctx context.Context, name string) (domain.AuxiliaryProcess, error) {
	project, ok := o.cfg.Project(name)
	if !ok {
		return domain.AuxiliaryProcess{}, fmt.Errorf("%w: %s", groveerrors.ErrProjectNotFound, name)
	}
	if err := o.workspaces.EnsureClone(ctx, project); err != nil {
		return domain.AuxiliaryProcess{}, err
	}
	return o.supervisor.Restart(ctx, project)
}

// Tail returns the last n log lines of the project's auxiliary process.
func (o *Orchestrator) Tail(name string, n int) ([]string, error) {
	return o.supervisor.TailLog(name, n)
}

// StartAll brings up the auxiliary process of every project with an up
// command configured, in parallel since first-time clones can be slow.
// Used at daemon startup; failures are logged, not fatal.
func (o *Orchestrator) StartAll(ctx context.Context) int {
	var started atomic.Int32
	var g errgroup.Group
	for i := range o.cfg.Projects {
		project := &o.cfg.Projects[i]
		if project.UpCommand == "" {
			continue
		}
		g.Go(func() error {
			if _, err := o.Up(ctx, project.Name); err != nil {
				o.logger.Error().Err(err).Str("project", project.Name).Msg("failed to start auxiliary process")
				return nil
			}
			started.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(started.Load())
}

// Shutdown cancels all running jobs, waits for them to finish, and
// stops every auxiliary process.
func (o *Orchestrator) Shutdown() {
	o.logger.Info().Msg("orchestrator shutting down")
	o.cancel()
	o.wg.Wait()
	o.supervisor.StopAll()
}
