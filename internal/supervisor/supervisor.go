package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/grovekit/grove/internal/clock"
	"github.com/grovekit/grove/internal/constants"
	"github.com/grovekit/grove/internal/domain"
	groveerrors "github.com/grovekit/grove/internal/errors"
	"github.com/grovekit/grove/internal/proc"
)

// running tracks one live auxiliary process.
type running struct {
	rec  domain.AuxiliaryProcess
	cmd  *exec.Cmd
	logs *logRing
	done chan struct{}

	// down and dir carry the project's teardown command so Stop can run
	// it without re-resolving the project.
	down string
	dir  string
}

// Supervisor runs at most one auxiliary process per project. Exits are
// detected by a per-process waiter, so a dead process never lingers in
// status output.
type Supervisor struct {
	mu       sync.Mutex
	procs    map[string]*running
	clock    clock.Clock
	logger   zerolog.Logger
	grace    time.Duration
	logLines int
}

// New creates a supervisor. logLines bounds the per-process log ring and
// is defaulted when zero.
func New(clk clock.Clock, logger zerolog.Logger, logLines int) *Supervisor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logLines <= 0 {
		logLines = constants.DefaultLogBufferLines
	}
	return &Supervisor{
		procs:    make(map[string]*running),
		clock:    clk,
		logger:   logger,
		grace:    constants.TerminateGracePeriod,
		logLines: logLines,
	}
}

// Start launches the project's up command in its working directory.
// Fails with ErrAlreadyRunning if an auxiliary process is already alive
// for the project, and with ErrNoUpCommand if none is configured.
func (s *Supervisor) Start(ctx context.Context, project *domain.Project) (domain.AuxiliaryProcess, error) {
	if err := ctx.Err(); err != nil {
		return domain.AuxiliaryProcess{}, err
	}
	if project.UpCommand == "" {
		return domain.AuxiliaryProcess{}, fmt.Errorf("%w: project %s", groveerrors.ErrNoUpCommand, project.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.procs[project.Name]; ok {
		return existing.rec, fmt.Errorf("%w: project %s (pid %d)",
			groveerrors.ErrAlreadyRunning, project.Name, existing.rec.PID)
	}

	cmd := exec.Command("sh", "-c", project.UpCommand) //nolint:gosec // Command comes from operator configuration
	cmd.Dir = project.WorkDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	logs := newLogRing(s.logLines)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return domain.AuxiliaryProcess{}, fmt.Errorf("attaching stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return domain.AuxiliaryProcess{}, fmt.Errorf("attaching stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return domain.AuxiliaryProcess{}, fmt.Errorf("starting up command for %s: %w", project.Name, err)
	}

	r := &running{
		rec: domain.AuxiliaryProcess{
			Project:   project.Name,
			PID:       cmd.Process.Pid,
			Command:   project.UpCommand,
			StartedAt: s.clock.Now().UTC(),
		},
		cmd:  cmd,
		logs: logs,
		done: make(chan struct{}),
		down: project.DownCommand,
		dir:  project.WorkDir,
	}
	s.procs[project.Name] = r

	var scanners sync.WaitGroup
	for _, pipe := range []io.Reader{stdout, stderr} {
		scanners.Add(1)
		go func(pipe io.Reader) {
			defer scanners.Done()
			scanner := bufio.NewScanner(pipe)
			for scanner.Scan() {
				logs.Append(scanner.Text())
			}
		}(pipe)
	}

	go s.reap(project.Name, r, &scanners)

	s.logger.Info().
		Str("project", project.Name).
		Int("pid", r.rec.PID).
		Str("command", project.UpCommand).
		Msg("auxiliary process started")

	return r.rec, nil
}

// reap waits for the process to exit and clears its record, so status
// reads never report a dead process as running.
func (s *Supervisor) reap(project string, r *running, scanners *sync.WaitGroup) {
	scanners.Wait()
	err := r.cmd.Wait()
	close(r.done)

	s.mu.Lock()
	if current, ok := s.procs[project]; ok && current == r {
		delete(s.procs, project)
	}
	s.mu.Unlock()

	evt := s.logger.Info()
	if err != nil {
		evt = s.logger.Warn().Err(err)
	}
	evt.Str("project", project).Int("pid", r.rec.PID).Msg("auxiliary process exited")
}

// Stop terminates the project's auxiliary process, escalating after the
// grace period. The record is removed whichever way the process went.
func (s *Supervisor) Stop(project string) error {
	s.mu.Lock()
	r, ok := s.procs[project]
	if ok {
		delete(s.procs, project)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: project %s", groveerrors.ErrProcessNotRunning, project)
	}

	proc.TerminateGroup(s.logger, r.rec.PID, s.grace)
	<-r.done

	s.runDownCommand(project, r)

	s.logger.Info().
		Str("project", project).
		Int("pid", r.rec.PID).
		Msg("auxiliary process stopped")
	return nil
}

// runDownCommand executes the project's teardown command, if configured,
// after its auxiliary process is gone. Best effort.
func (s *Supervisor) runDownCommand(project string, r *running) {
	if r.down == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DownCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", r.down) //nolint:gosec // Command comes from operator configuration
	cmd.Dir = r.dir
	if out, err := cmd.CombinedOutput(); err != nil {
		s.logger.Warn().Err(err).
			Str("project", project).
			Str("command", r.down).
			Str("output", string(out)).
			Msg("down command failed")
	}
}

// Restart stops any running auxiliary process for the project and starts
// a fresh one.
func (s *Supervisor) Restart(ctx context.Context, project *domain.Project) (domain.AuxiliaryProcess, error) {
	if err := s.Stop(project.Name); err != nil && !errors.Is(err, groveerrors.ErrProcessNotRunning) {
		return domain.AuxiliaryProcess{}, err
	}
	return s.Start(ctx, project)
}

// StartAll launches the auxiliary process for every project that has an
// up command configured. Failures are logged and do not stop the rest.
func (s *Supervisor) StartAll(ctx context.Context, projects []*domain.Project) int {
	started := 0
	for _, project := range projects {
		if project.UpCommand == "" {
			continue
		}
		if _, err := s.Start(ctx, project); err != nil {
			s.logger.Error().Err(err).Str("project", project.Name).Msg("failed to start auxiliary process")
			continue
		}
		started++
	}
	return started
}

// StopAll terminates every tracked auxiliary process.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	names := make([]string, 0, len(s.procs))
	for name := range s.procs {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		if err := s.Stop(name); err != nil && !errors.Is(err, groveerrors.ErrProcessNotRunning) {
			s.logger.Warn().Err(err).Str("project", name).Msg("failed to stop auxiliary process")
		}
	}
}

// TailLog returns the most recent n log lines of the project's auxiliary
// process.
func (s *Supervisor) TailLog(project string, n int) ([]string, error) {
	s.mu.Lock()
	r, ok := s.procs[project]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: project %s", groveerrors.ErrProcessNotRunning, project)
	}
	if n <= 0 {
		n = constants.DefaultTailLines
	}
	return r.logs.Tail(n), nil
}

// Get returns the tracked auxiliary process for the project, if any.
func (s *Supervisor) Get(project string) (domain.AuxiliaryProcess, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.procs[project]
	if !ok {
		return domain.AuxiliaryProcess{}, false
	}
	return r.rec, true
}

// Snapshot returns all tracked auxiliary processes keyed by project.
func (s *Supervisor) Snapshot() map[string]domain.AuxiliaryProcess {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]domain.AuxiliaryProcess, len(s.procs))
	for name, r := range s.procs {
		out[name] = r.rec
	}
	return out
}

