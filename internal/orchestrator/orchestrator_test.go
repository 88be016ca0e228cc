package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovekit/grove/internal/config"
	"github.com/grovekit/grove/internal/domain"
	"github.com/grovekit/grove/internal/engine"
	groveerrors "github.com/grovekit/grove/internal/errors"
	"github.com/grovekit/grove/internal/proc"
)

// scriptRunner stands in for the agent CLI. The script runs in its own
// process group with OUT set to the job's output file path, which the
// prompt names as its final token.
type scriptRunner struct {
	script string
}

func (r *scriptRunner) Start(_ context.Context, req engine.AgentRequest) (engine.AgentProcess, error) {
	fields := strings.Fields(req.Prompt)
	outPath := ""
	if len(fields) > 0 {
		outPath = fields[len(fields)-1]
	}

	cmd := exec.Command("sh", "-c", r.script)
	cmd.Dir = req.WorkingDir
	cmd.Env = append(os.Environ(), "OUT="+outPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	p := &scriptProcess{cmd: cmd}
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting sh: %w", err)
	}
	return p, nil
}

type scriptProcess struct {
	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func (p *scriptProcess) PID() int       { return p.cmd.Process.Pid }
func (p *scriptProcess) Wait() error    { return p.cmd.Wait() }
func (p *scriptProcess) Stdout() string { return p.stdout.String() }
func (p *scriptProcess) Stderr() string { return p.stderr.String() }

func runGitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

// createBareOrigin builds a bare repository with one commit on main.
func createBareOrigin(t *testing.T) string {
	t.Helper()
	origin := filepath.Join(t.TempDir(), "origin.git")
	runGitCmd(t, t.TempDir(), "init", "--bare", "--initial-branch=main", origin)

	seed := filepath.Join(t.TempDir(), "seed")
	runGitCmd(t, t.TempDir(), "clone", origin, seed)
	runGitCmd(t, seed, "config", "user.email", "dev@example.com")
	runGitCmd(t, seed, "config", "user.name", "Dev")
	require.NoError(t, os.WriteFile(filepath.Join(seed, "README.md"), []byte("seed\n"), 0o600))
	runGitCmd(t, seed, "add", ".")
	runGitCmd(t, seed, "commit", "-m", "initial")
	runGitCmd(t, seed, "push", "origin", "main")
	return origin
}

func testConfig(t *testing.T, projects ...domain.Project) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ScratchRoot = t.TempDir()
	cfg.Agent.Timeout = time.Minute
	cfg.Projects = projects
	return cfg
}

func testProject(t *testing.T, name string) domain.Project {
	t.Helper()
	return domain.Project{
		Name:    name,
		RepoURL: "https://example.com/" + name + ".git",
		WorkDir: t.TempDir(),
	}
}

type fixture struct {
	orch    *Orchestrator
	results chan domain.JobResult
}

func newFixture(t *testing.T, cfg *config.Config, script string) *fixture {
	t.Helper()
	results := make(chan domain.JobResult, 8)
	o := New(cfg, zerolog.Nop(),
		WithRunner(&scriptRunner{script: script}),
		WithResultHandler(func(r domain.JobResult) { results <- r }),
	)
	t.Cleanup(o.Shutdown)
	return &fixture{orch: o, results: results}
}

func (f *fixture) waitResult(t *testing.T) domain.JobResult {
	t.Helper()
	select {
	case r := <-f.results:
		return r
	case <-time.After(15 * time.Second):
		t.Fatal("timed out waiting for job result")
		return domain.JobResult{}
	}
}

func TestSubmitUnknownCommand(t *testing.T) {
	cfg := testConfig(t, testProject(t, "alpha"))
	f := newFixture(t, cfg, "true")

	_, err := f.orch.Submit(domain.JobRequest{Project: "alpha", Kind: "deploy"})
	assert.ErrorIs(t, err, groveerrors.ErrUnknownCommand)
}

func TestSubmitUnknownProject(t *testing.T) {
	cfg := testConfig(t, testProject(t, "alpha"))
	f := newFixture(t, cfg, "true")

	_, err := f.orch.Submit(domain.JobRequest{Project: "ghost", Kind: domain.CommandAsk, Argument: "hi"})
	assert.ErrorIs(t, err, groveerrors.ErrProjectNotFound)
}

func TestSubmitFeedbackWithoutSession(t *testing.T) {
	cfg := testConfig(t, testProject(t, "alpha"))
	f := newFixture(t, cfg, "true")

	_, err := f.orch.Submit(domain.JobRequest{Project: "alpha", Kind: domain.CommandFeedback, Argument: "tweak it"})
	assert.ErrorIs(t, err, groveerrors.ErrNoActiveSession)

	// Nothing was registered for the failed submission.
	st := f.orch.Status("alpha")
	assert.Empty(t, st.Jobs)
}

func TestSubmitAskCompletes(t *testing.T) {
	cfg := testConfig(t, testProject(t, "alpha"))
	f := newFixture(t, cfg, `printf 'forty two' > "$OUT"`)

	handle, err := f.orch.Submit(domain.JobRequest{
		Project:     "alpha",
		Kind:        domain.CommandAsk,
		Argument:    "what is the answer",
		RequesterID: "user-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, handle.ID)

	result := f.waitResult(t)
	assert.Equal(t, handle.ID, result.ID)
	assert.Equal(t, "alpha", result.Project)
	assert.Equal(t, domain.JobStateCompleted, result.State)
	assert.Contains(t, result.Summary, "forty two")
	assert.Contains(t, result.Summary, "Execution time:")

	got, err := f.orch.Job(handle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateCompleted, got.State)
}

func TestSubmitFeatAcquiresWorkspace(t *testing.T) {
	origin := createBareOrigin(t)
	project := domain.Project{
		Name:    "alpha",
		RepoURL: origin,
		WorkDir: filepath.Join(t.TempDir(), "alpha"),
	}
	cfg := testConfig(t, project)
	f := newFixture(t, cfg, `printf 'implemented' > "$OUT"`)

	handle, err := f.orch.Submit(domain.JobRequest{Project: "alpha", Kind: domain.CommandFeat, Argument: "add a thing"})
	require.NoError(t, err)

	result := f.waitResult(t)
	assert.Equal(t, domain.JobStateCompleted, result.State)

	got, err := f.orch.Job(handle.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Workspace)
	assert.True(t, strings.HasPrefix(got.Workspace.Branch, "feat-"), "branch %q", got.Workspace.Branch)

	// The worktree is gone once the job is terminal.
	assert.NoDirExists(t, got.Workspace.Path)
}

func TestFeedbackResumesRecordedBranch(t *testing.T) {
	origin := createBareOrigin(t)
	workDir := filepath.Join(t.TempDir(), "alpha")
	runGitCmd(t, t.TempDir(), "clone", origin, workDir)
	runGitCmd(t, workDir, "config", "user.email", "dev@example.com")
	runGitCmd(t, workDir, "config", "user.name", "Dev")

	project := domain.Project{Name: "alpha", RepoURL: origin, WorkDir: workDir}
	cfg := testConfig(t, project)
	f := newFixture(t, cfg, `git commit --allow-empty -m "agent work" && printf 'done' > "$OUT"`)

	featHandle, err := f.orch.Submit(domain.JobRequest{Project: "alpha", Kind: domain.CommandFeat, Argument: "add a thing"})
	require.NoError(t, err)
	require.Equal(t, domain.JobStateCompleted, f.waitResult(t).State)

	feat, err := f.orch.Job(featHandle.ID)
	require.NoError(t, err)
	require.NotNil(t, feat.Workspace)

	fbHandle, err := f.orch.Submit(domain.JobRequest{Project: "alpha", Kind: domain.CommandFeedback, Argument: "tweak it"})
	require.NoError(t, err)
	require.Equal(t, domain.JobStateCompleted, f.waitResult(t).State)

	fb, err := f.orch.Job(fbHandle.ID)
	require.NoError(t, err)
	require.NotNil(t, fb.Workspace)

	// Feedback lands on the branch the feat job recorded, in a fresh
	// worktree of its own.
	assert.Equal(t, feat.Workspace.Branch, fb.Workspace.Branch)
	assert.NotEqual(t, feat.Workspace.Path, fb.Workspace.Path)
}

func TestSubmitWorkspaceAcquireFailure(t *testing.T) {
	project := domain.Project{
		Name:    "alpha",
		RepoURL: filepath.Join(t.TempDir(), "does-not-exist.git"),
		WorkDir: filepath.Join(t.TempDir(), "alpha"),
	}
	cfg := testConfig(t, project)
	f := newFixture(t, cfg, "true")

	handle, err := f.orch.Submit(domain.JobRequest{Project: "alpha", Kind: domain.CommandFix, Argument: "fix it"})
	require.NoError(t, err)

	result := f.waitResult(t)
	assert.Equal(t, domain.JobStateFailed, result.State)
	assert.NotEmpty(t, result.Err)

	got, err := f.orch.Job(handle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, got.State)
}

func TestCancelRunningJob(t *testing.T) {
	cfg := testConfig(t, testProject(t, "alpha"))
	f := newFixture(t, cfg, "sleep 60")

	handle, err := f.orch.Submit(domain.JobRequest{Project: "alpha", Kind: domain.CommandAsk, Argument: "slow one"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, jerr := f.orch.Job(handle.ID)
		return jerr == nil && j.State == domain.JobStateRunning
	}, 10*time.Second, 20*time.Millisecond)

	assert.True(t, f.orch.Cancel(handle.ID))

	result := f.waitResult(t)
	assert.Equal(t, domain.JobStateCancelled, result.State)
	assert.Empty(t, result.Summary)
}

func TestCancelUnknownJob(t *testing.T) {
	cfg := testConfig(t, testProject(t, "alpha"))
	f := newFixture(t, cfg, "true")

	assert.False(t, f.orch.Cancel("nope"))
}

func TestCancelProject(t *testing.T) {
	cfg := testConfig(t, testProject(t, "alpha"))
	f := newFixture(t, cfg, "sleep 60")

	h1, err := f.orch.Submit(domain.JobRequest{Project: "alpha", Kind: domain.CommandAsk, Argument: "one"})
	require.NoError(t, err)
	h2, err := f.orch.Submit(domain.JobRequest{Project: "alpha", Kind: domain.CommandAsk, Argument: "two"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		a, aerr := f.orch.Job(h1.ID)
		b, berr := f.orch.Job(h2.ID)
		return aerr == nil && berr == nil &&
			a.State == domain.JobStateRunning && b.State == domain.JobStateRunning
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, 2, f.orch.CancelProject("alpha"))

	states := map[string]domain.JobState{}
	for range 2 {
		r := f.waitResult(t)
		states[r.ID] = r.State
	}
	assert.Equal(t, domain.JobStateCancelled, states[h1.ID])
	assert.Equal(t, domain.JobStateCancelled, states[h2.ID])
}

func TestUpDownTail(t *testing.T) {
	project := testProject(t, "alpha")
	project.UpCommand = "echo listening; sleep 60"
	cfg := testConfig(t, project)
	f := newFixture(t, cfg, "true")

	rec, err := f.orch.Up(context.Background(), "alpha")
	require.NoError(t, err)
	assert.True(t, proc.Alive(rec.PID))

	require.Eventually(t, func() bool {
		lines, terr := f.orch.Tail("alpha", 10)
		return terr == nil && len(lines) > 0 && strings.Contains(lines[0], "listening")
	}, 5*time.Second, 20*time.Millisecond)

	st := f.orch.Status("alpha")
	require.NotNil(t, st.Process)
	assert.Equal(t, rec.PID, st.Process.PID)

	require.NoError(t, f.orch.Down("alpha"))
	assert.ErrorIs(t, f.orch.Down("alpha"), groveerrors.ErrProcessNotRunning)

	require.Eventually(t, func() bool {
		return !proc.Alive(rec.PID)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestUpUnknownProject(t *testing.T) {
	cfg := testConfig(t, testProject(t, "alpha"))
	f := newFixture(t, cfg, "true")

	_, err := f.orch.Up(context.Background(), "ghost")
	assert.ErrorIs(t, err, groveerrors.ErrProjectNotFound)
}

func TestRestartReplacesProcess(t *testing.T) {
	project := testProject(t, "alpha")
	project.UpCommand = "sleep 60"
	cfg := testConfig(t, project)
	f := newFixture(t, cfg, "true")

	first, err := f.orch.Up(context.Background(), "alpha")
	require.NoError(t, err)

	second, err := f.orch.Restart(context.Background(), "alpha")
	require.NoError(t, err)
	assert.NotEqual(t, first.PID, second.PID)
	assert.True(t, proc.Alive(second.PID))

	require.NoError(t, f.orch.Down("alpha"))
}

func TestStartAllSkipsProjectsWithoutUpCommand(t *testing.T) {
	withUp := testProject(t, "alpha")
	withUp.UpCommand = "sleep 60"
	without := testProject(t, "beta")
	cfg := testConfig(t, withUp, without)
	f := newFixture(t, cfg, "true")

	assert.Equal(t, 1, f.orch.StartAll(context.Background()))

	st := f.orch.StatusAll()
	require.Len(t, st, 1)
	assert.Equal(t, "alpha", st[0].Project)
}

func TestInitStartsAuxiliaryProcess(t *testing.T) {
	project := testProject(t, "alpha")
	project.UpCommand = "sleep 60"
	cfg := testConfig(t, project)
	f := newFixture(t, cfg, `printf 'primed' > "$OUT"`)

	_, err := f.orch.Submit(domain.JobRequest{Project: "alpha", Kind: domain.CommandInit, Argument: ""})
	require.NoError(t, err)

	result := f.waitResult(t)
	require.Equal(t, domain.JobStateCompleted, result.State)

	require.Eventually(t, func() bool {
		st := f.orch.Status("alpha")
		return st.Process != nil && proc.Alive(st.Process.PID)
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, f.orch.Down("alpha"))
}

func TestShutdownCancelsRunningJobs(t *testing.T) {
	cfg := testConfig(t, testProject(t, "alpha"))
	results := make(chan domain.JobResult, 1)
	o := New(cfg, zerolog.Nop(),
		WithRunner(&scriptRunner{script: "sleep 60"}),
		WithResultHandler(func(r domain.JobResult) { results <- r }),
	)

	handle, err := o.Submit(domain.JobRequest{Project: "alpha", Kind: domain.CommandAsk, Argument: "slow"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, jerr := o.Job(handle.ID)
		return jerr == nil && j.State == domain.JobStateRunning
	}, 10*time.Second, 20*time.Millisecond)

	o.Shutdown()

	select {
	case r := <-results:
		assert.Equal(t, domain.JobStateCancelled, r.State)
	case <-time.After(5 * time.Second):
		t.Fatal("no result delivered during shutdown")
	}
}
