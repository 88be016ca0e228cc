package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovekit/grove/internal/clock"
	"github.com/grovekit/grove/internal/domain"
	groveerrors "github.com/grovekit/grove/internal/errors"
	"github.com/grovekit/grove/internal/job"
	"github.com/grovekit/grove/internal/proc"
	"github.com/grovekit/grove/internal/workspace"
)

// scriptRunner runs a shell script in place of the agent CLI, in its own
// process group like the production runner.
type scriptRunner struct {
	script string
}

func (r *scriptRunner) Start(_ context.Context, req AgentRequest) (AgentProcess, error) {
	cmd := exec.Command("sh", "-c", r.script)
	cmd.Dir = req.WorkingDir

	p := &claudeProcess{cmd: cmd}
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr
	cmd.Stdin = strings.NewReader(req.Prompt)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting sh: %w: %w", groveerrors.ErrAgentSpawn, err)
	}
	return p, nil
}

// fakeWorkspaceManager satisfies workspace.Manager for tests that do not
// need real git behind the workspace.
type fakeWorkspaceManager struct {
	mu       sync.Mutex
	neutral  string
	released []*domain.Workspace
}

func (f *fakeWorkspaceManager) Acquire(context.Context, *domain.Project, workspace.AcquireMode) (*domain.Workspace, error) {
	return nil, nil
}

func (f *fakeWorkspaceManager) Release(_ context.Context, ws *domain.Workspace) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, ws)
}

func (f *fakeWorkspaceManager) EnsureClone(context.Context, *domain.Project) error {
	return nil
}

func (f *fakeWorkspaceManager) NeutralDir() string {
	return f.neutral
}

func (f *fakeWorkspaceManager) releasedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.released)
}

type engineFixture struct {
	registry   *job.Registry
	manager    *fakeWorkspaceManager
	outputsDir string
	project    *domain.Project
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	return &engineFixture{
		registry:   job.NewRegistry(0, clock.RealClock{}, zerolog.Nop()),
		manager:    &fakeWorkspaceManager{neutral: t.TempDir()},
		outputsDir: t.TempDir(),
		project:    &domain.Project{Name: "proj-a", RepoURL: "https://example.com/proj-a.git"},
	}
}

func (f *engineFixture) engine(runner AgentRunner, timeout time.Duration) *Engine {
	return New(f.registry, f.manager, runner, f.outputsDir, timeout, clock.RealClock{}, zerolog.Nop())
}

func TestRunCompleted(t *testing.T) {
	f := newEngineFixture(t)
	j := f.registry.Create("proj-a", domain.CommandAsk, "what does this do")

	e := f.engine(nil, 0)
	runner := &scriptRunner{script: "printf 'the answer' > " + e.OutputPath(j.ID)}
	e = f.engine(runner, 0)

	result := e.Run(context.Background(), j, f.project, nil, "answer briefly")

	assert.Equal(t, domain.JobStateCompleted, result.State)
	assert.Contains(t, result.Summary, "the answer")
	assert.Contains(t, result.Summary, "Execution time:")
	assert.Empty(t, result.Err)

	// Release-on-read: the output file is consumed with the result.
	assert.NoFileExists(t, e.OutputPath(j.ID))

	got, err := f.registry.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateCompleted, got.State)
	assert.Empty(t, got.Cause)
}

func TestRunNonZeroExitWithOutput(t *testing.T) {
	f := newEngineFixture(t)
	j := f.registry.Create("proj-a", domain.CommandAsk, "q")

	e := f.engine(nil, 0)
	runner := &scriptRunner{script: "printf 'partial result' > " + e.OutputPath(j.ID) + "; exit 3"}
	e = f.engine(runner, 0)

	result := e.Run(context.Background(), j, f.project, nil, "")

	// The agent wrote its result; the exit code does not override that.
	assert.Equal(t, domain.JobStateCompleted, result.State)
	assert.Contains(t, result.Summary, "partial result")
}

func TestRunMissingOutput(t *testing.T) {
	f := newEngineFixture(t)
	j := f.registry.Create("proj-a", domain.CommandAsk, "q")
	e := f.engine(&scriptRunner{script: "true"}, 0)

	result := e.Run(context.Background(), j, f.project, nil, "")

	assert.Equal(t, domain.JobStateFailed, result.State)
	assert.Contains(t, result.Err, "output file missing")

	got, err := f.registry.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, got.State)
	assert.NotEmpty(t, got.Cause)
}

func TestRunAgentFailure(t *testing.T) {
	f := newEngineFixture(t)
	j := f.registry.Create("proj-a", domain.CommandAsk, "q")
	e := f.engine(&scriptRunner{script: "echo 'model overloaded' >&2; exit 1"}, 0)

	result := e.Run(context.Background(), j, f.project, nil, "")

	assert.Equal(t, domain.JobStateFailed, result.State)
	assert.Contains(t, result.Err, "agent execution failed")
	assert.Contains(t, result.Err, "model overloaded")
}

func TestRunSpawnFailure(t *testing.T) {
	f := newEngineFixture(t)
	j := f.registry.Create("proj-a", domain.CommandAsk, "q")
	runner := NewClaudeRunner(WithBinary(filepath.Join(t.TempDir(), "no-such-binary")))
	e := f.engine(runner, 0)

	result := e.Run(context.Background(), j, f.project, nil, "")

	assert.Equal(t, domain.JobStateFailed, result.State)
	assert.Contains(t, result.Err, "agent process spawn failed")
}

func TestRunCancellation(t *testing.T) {
	f := newEngineFixture(t)
	j := f.registry.Create("proj-a", domain.CommandAsk, "q")
	e := f.engine(&scriptRunner{script: "sleep 60"}, 0)

	resultCh := make(chan domain.JobResult, 1)
	go func() { resultCh <- e.Run(context.Background(), j, f.project, nil, "") }()

	require.Eventually(t, func() bool {
		got, err := f.registry.Get(j.ID)
		return err == nil && got.State == domain.JobStateRunning
	}, 5*time.Second, 20*time.Millisecond)

	require.True(t, f.registry.Cancel(j.ID))

	select {
	case result := <-resultCh:
		assert.Equal(t, domain.JobStateCancelled, result.State)
		assert.Contains(t, result.Err, "cancelled")
	case <-time.After(10 * time.Second):
		t.Fatal("cancelled job did not finish within the grace period")
	}

	assert.Equal(t, 1, f.manager.releasedCount())
	assert.NoFileExists(t, e.OutputPath(j.ID))
}

func TestRunTimeout(t *testing.T) {
	f := newEngineFixture(t)
	j := f.registry.Create("proj-a", domain.CommandAsk, "q")

	// The shell spawns a child so group termination is exercised.
	e := f.engine(&scriptRunner{script: "sleep 60 & wait"}, 500*time.Millisecond)

	result := e.Run(context.Background(), j, f.project, nil, "")

	assert.Equal(t, domain.JobStateTimedOut, result.State)
	assert.Contains(t, result.Err, "wall-clock limit")

	got, err := f.registry.Get(j.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	f := newEngineFixture(t)
	j := f.registry.Create("proj-a", domain.CommandAsk, "q")
	require.True(t, f.registry.Cancel(j.ID))

	e := f.engine(&scriptRunner{script: "sleep 60"}, 0)
	result := e.Run(context.Background(), j, f.project, nil, "")

	assert.Equal(t, domain.JobStateCancelled, result.State)

	got, err := f.registry.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateCancelled, got.State)
}

func TestRunSessionRecording(t *testing.T) {
	setupWorkspace := func(t *testing.T) (*workspace.DefaultManager, *domain.Project, *domain.Workspace) {
		t.Helper()
		seed := t.TempDir()
		runGitCmd(t, seed, "init", "-b", "main")
		runGitCmd(t, seed, "config", "user.email", "test@test.com")
		runGitCmd(t, seed, "config", "user.name", "Test")
		require.NoError(t, os.WriteFile(filepath.Join(seed, "README.md"), []byte("# Seed"), 0o600))
		runGitCmd(t, seed, "add", ".")
		runGitCmd(t, seed, "commit", "-m", "Initial commit")
		origin := filepath.Join(t.TempDir(), "origin.git")
		runGitCmd(t, seed, "clone", "--bare", seed, origin)

		project := &domain.Project{
			Name:    "proj-a",
			RepoURL: origin,
			WorkDir: filepath.Join(t.TempDir(), "proj-a"),
		}
		m := workspace.NewManager(t.TempDir(), "main", zerolog.Nop())
		require.NoError(t, m.EnsureClone(context.Background(), project))
		runGitCmd(t, project.WorkDir, "config", "user.email", "test@test.com")
		runGitCmd(t, project.WorkDir, "config", "user.name", "Test")

		ws, err := m.Acquire(context.Background(), project, workspace.NewBranch("feat"))
		require.NoError(t, err)
		return m, project, ws
	}

	t.Run("records link when branch gained commits", func(t *testing.T) {
		m, project, ws := setupWorkspace(t)
		registry := job.NewRegistry(0, clock.RealClock{}, zerolog.Nop())
		j := registry.Create("proj-a", domain.CommandFeat, "add thing")
		require.NoError(t, registry.BindWorkspace(j.ID, ws))

		outputsDir := t.TempDir()
		e := New(registry, m, nil, outputsDir, 0, clock.RealClock{}, zerolog.Nop())
		script := "git commit --allow-empty -m 'change' && printf 'done' > " + e.OutputPath(j.ID)
		e = New(registry, m, &scriptRunner{script: script}, outputsDir, 0, clock.RealClock{}, zerolog.Nop())

		result := e.Run(context.Background(), j, project, ws, "")
		require.Equal(t, domain.JobStateCompleted, result.State)

		link, err := registry.LatestSession("proj-a")
		require.NoError(t, err)
		assert.Equal(t, j.ID, link.JobID)
		assert.Equal(t, ws.Branch, link.Branch)

		// Workspace was released.
		assert.NoDirExists(t, ws.Path)
	})

	t.Run("no link when branch has no commits", func(t *testing.T) {
		m, project, ws := setupWorkspace(t)
		registry := job.NewRegistry(0, clock.RealClock{}, zerolog.Nop())
		j := registry.Create("proj-a", domain.CommandFeat, "add thing")

		outputsDir := t.TempDir()
		e := New(registry, m, nil, outputsDir, 0, clock.RealClock{}, zerolog.Nop())
		script := "printf 'nothing to do' > " + e.OutputPath(j.ID)
		e = New(registry, m, &scriptRunner{script: script}, outputsDir, 0, clock.RealClock{}, zerolog.Nop())

		result := e.Run(context.Background(), j, project, ws, "")
		require.Equal(t, domain.JobStateCompleted, result.State)

		_, err := registry.LatestSession("proj-a")
		assert.ErrorIs(t, err, groveerrors.ErrNoActiveSession)
	})
}

func TestRunTimedOutLeavesNoDescendants(t *testing.T) {
	f := newEngineFixture(t)
	j := f.registry.Create("proj-a", domain.CommandAsk, "q")

	pidFile := filepath.Join(t.TempDir(), "child.pid")
	script := fmt.Sprintf("sleep 60 & echo $! > %s; wait", pidFile)
	e := f.engine(&scriptRunner{script: script}, 500*time.Millisecond)

	result := e.Run(context.Background(), j, f.project, nil, "")
	require.Equal(t, domain.JobStateTimedOut, result.State)

	data, err := os.ReadFile(pidFile) //nolint:gosec // Test-owned path
	require.NoError(t, err)
	var childPID int
	_, err = fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &childPID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return !proc.Alive(childPID)
	}, 5*time.Second, 50*time.Millisecond, "descendant survived the timeout")
}

func runGitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\nOutput: %s", strings.Join(args, " "), err, out)
	}
}
