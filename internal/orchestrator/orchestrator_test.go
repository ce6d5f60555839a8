package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencode-kanban/okb/internal/store"
)

type fakeGit struct {
	validRepos     map[string]bool
	defaultBranch  string
	remoteURL      string
	fetchErr       error
	createWTErr    error
	removeWTErr    error
	deleteBranchErr error
	createdWT      []string
}

func (g *fakeGit) IsValidRepo(path string) bool { return g.validRepos[path] }
func (g *fakeGit) DetectDefaultBranch(repoPath string) (string, error) {
	return g.defaultBranch, nil
}
func (g *fakeGit) GetRemoteURL(repoPath string) string { return g.remoteURL }
func (g *fakeGit) CheckRefFormat(branch string) error {
	if branch == "" {
		return fmt.Errorf("empty branch")
	}
	return nil
}
func (g *fakeGit) Fetch(ctx context.Context, repoPath string) error { return g.fetchErr }
func (g *fakeGit) CreateWorktree(repoPath, worktreePath, newBranch, baseRef string) error {
	if g.createWTErr != nil {
		return g.createWTErr
	}
	if err := os.MkdirAll(worktreePath, 0o755); err != nil {
		return err
	}
	g.createdWT = append(g.createdWT, worktreePath)
	return nil
}
func (g *fakeGit) RemoveWorktree(repoPath, worktreePath string, force bool) error {
	if g.removeWTErr != nil {
		return g.removeWTErr
	}
	return os.RemoveAll(worktreePath)
}
func (g *fakeGit) DeleteBranch(repoPath, branch string) error { return g.deleteBranchErr }

type fakeMux struct {
	sessions   map[string]bool
	createErr  error
	killCalls  []string
	switched   []string
}

func newFakeMux() *fakeMux { return &fakeMux{sessions: map[string]bool{}} }

func (m *fakeMux) Exists(name string) (bool, error) { return m.sessions[name], nil }
func (m *fakeMux) Create(name, cwd, initialCommand string) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.sessions[name] = true
	return nil
}
func (m *fakeMux) Kill(name string) error {
	m.killCalls = append(m.killCalls, name)
	delete(m.sessions, name)
	return nil
}
func (m *fakeMux) SwitchClient(name string) error {
	m.switched = append(m.switched, name)
	return nil
}
func (m *fakeMux) CapturePane(name string, lines int) (string, error) { return "> ", nil }

type fakeAgent struct {
	launchCalls []string
	resumeCalls []string
}

func (a *fakeAgent) Launch(sessionName, cwd string) error {
	a.launchCalls = append(a.launchCalls, sessionName)
	return nil
}
func (a *fakeAgent) Resume(sessionName, cwd, agentSessionID string) error {
	a.resumeCalls = append(a.resumeCalls, sessionName)
	return nil
}
func (a *fakeAgent) Start(sessionName string) error { return nil }
func (a *fakeAgent) WaitUntilReady(ctx context.Context, sessionName string) (string, error) {
	return "", nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Store, *fakeGit, *fakeMux, *fakeAgent, context.Context) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	g := &fakeGit{validRepos: map[string]bool{}, defaultBranch: "main"}
	m := newFakeMux()
	a := &fakeAgent{}

	o := New(st, g, m, a, filepath.Join(dir, "worktrees"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go o.Run(ctx)

	return o, st, g, m, a, ctx
}

func TestCreateTaskFullPipeline(t *testing.T) {
	o, _, g, m, a, ctx := newTestOrchestrator(t)
	repoPath := t.TempDir()
	g.validRepos[repoPath] = true

	task, err := o.CreateTask(ctx, CreateInput{
		RepoPath: repoPath,
		Branch:   "feature/login",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.TmuxSessionName == "" || task.WorktreePath == "" {
		t.Fatalf("expected runtime fields populated: %+v", task)
	}
	if len(g.createdWT) != 1 {
		t.Errorf("expected one worktree created, got %v", g.createdWT)
	}
	if len(a.launchCalls) != 1 {
		t.Errorf("expected agent launched once, got %v", a.launchCalls)
	}
	if !m.sessions[task.TmuxSessionName] {
		t.Errorf("expected mux session %q to exist", task.TmuxSessionName)
	}
}

func TestCreateTaskRollsBackOnMuxFailure(t *testing.T) {
	o, st, g, m, _, ctx := newTestOrchestrator(t)
	repoPath := t.TempDir()
	g.validRepos[repoPath] = true
	m.createErr = fmt.Errorf("mux create failed")

	_, err := o.CreateTask(ctx, CreateInput{RepoPath: repoPath, Branch: "feature/x"})
	if err == nil {
		t.Fatal("expected CreateTask to fail")
	}

	repo, rerr := st.GetRepoByPath(mustAbs(t, repoPath))
	if rerr != nil {
		t.Fatalf("GetRepoByPath: %v", rerr)
	}
	if _, terr := st.GetTaskByBranch(repo.ID, "feature/x"); terr == nil {
		t.Fatal("expected no task row to survive rollback")
	}
	if len(g.createdWT) != 1 {
		t.Fatalf("expected worktree creation attempted once, got %v", g.createdWT)
	}
}

func TestCreateTaskRejectsSelectorConflict(t *testing.T) {
	o, _, g, _, _, ctx := newTestOrchestrator(t)
	repoPath := t.TempDir()
	g.validRepos[repoPath] = true

	_, err := o.CreateTask(ctx, CreateInput{
		RepoPath:     repoPath,
		Branch:       "feature/x",
		CategoryID:   "abc",
		CategorySlug: "todo",
	})
	if err == nil {
		t.Fatal("expected selector conflict error")
	}
}

func TestCreateTaskConcurrentSameBranchFailsFast(t *testing.T) {
	o, _, g, m, _, ctx := newTestOrchestrator(t)
	repoPath := t.TempDir()
	g.validRepos[repoPath] = true

	release, ok := o.locks.TryAcquire(mustRepoID(t, o, ctx, repoPath), "feature/dup")
	if !ok {
		t.Fatal("expected to acquire lock in test setup")
	}
	defer release()

	_, err := o.CreateTask(ctx, CreateInput{RepoPath: repoPath, Branch: "feature/dup"})
	if err == nil {
		t.Fatal("expected conflict error while lock held")
	}
	_ = m
}

func TestDeleteTaskWithAllCleanupSteps(t *testing.T) {
	o, _, g, _, _, ctx := newTestOrchestrator(t)
	repoPath := t.TempDir()
	g.validRepos[repoPath] = true

	task, err := o.CreateTask(ctx, CreateInput{RepoPath: repoPath, Branch: "feature/del"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	report, err := o.DeleteTask(ctx, task.ID, true, true, true)
	if err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if !report.RowDeleted || !report.KilledSession || !report.RemovedWorktree || !report.DeletedBranch {
		t.Errorf("expected full cleanup success, got %+v", report)
	}
}

func TestDeleteTaskPartialFailureRetainsRow(t *testing.T) {
	o, st, g, _, _, ctx := newTestOrchestrator(t)
	repoPath := t.TempDir()
	g.validRepos[repoPath] = true

	task, err := o.CreateTask(ctx, CreateInput{RepoPath: repoPath, Branch: "feature/partial"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	g.removeWTErr = fmt.Errorf("disk busy")

	report, err := o.DeleteTask(ctx, task.ID, true, true, false)
	if err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if report.RowDeleted {
		t.Fatal("expected row retained on partial failure")
	}
	if _, gerr := st.GetTask(task.ID); gerr != nil {
		t.Fatalf("expected task row to still exist: %v", gerr)
	}
}

func TestReconcileMarksMissingSessionDead(t *testing.T) {
	o, st, g, m, _, ctx := newTestOrchestrator(t)
	repoPath := t.TempDir()
	g.validRepos[repoPath] = true

	task, err := o.CreateTask(ctx, CreateInput{RepoPath: repoPath, Branch: "feature/dead"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	delete(m.sessions, task.TmuxSessionName)

	if err := o.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got, err := st.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.TmuxStatus != store.StatusDead {
		t.Errorf("status = %v, want dead", got.TmuxStatus)
	}
}

func TestFreeSessionNameExcludesDeadRowStillHoldingName(t *testing.T) {
	o, _, g, m, _, ctx := newTestOrchestrator(t)
	repoPath := t.TempDir()
	g.validRepos[repoPath] = true

	task1, err := o.CreateTask(ctx, CreateInput{RepoPath: repoPath, Branch: "feat!x"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	// task1 goes dead: its mux session disappears, but its Store row (and
	// tmux_session_name) is retained until the task is deleted.
	delete(m.sessions, task1.TmuxSessionName)

	task2, err := o.CreateTask(ctx, CreateInput{RepoPath: repoPath, Branch: "feat@x"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if task2.TmuxSessionName == task1.TmuxSessionName {
		t.Fatalf("task2 reused dead task1's session name %q; checking mux.Exists alone would miss this collision", task2.TmuxSessionName)
	}
}

func TestReconcileMarksBrokenWhenWorktreeMissing(t *testing.T) {
	o, st, g, _, _, ctx := newTestOrchestrator(t)
	repoPath := t.TempDir()
	g.validRepos[repoPath] = true

	task, err := o.CreateTask(ctx, CreateInput{RepoPath: repoPath, Branch: "feature/broken"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := os.RemoveAll(task.WorktreePath); err != nil {
		t.Fatalf("removing worktree: %v", err)
	}

	if err := o.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got, err := st.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.TmuxStatus != store.StatusBroken {
		t.Errorf("status = %v, want broken", got.TmuxStatus)
	}
}

func TestReconcileMarksUnavailableWhenRepoPathMissing(t *testing.T) {
	o, st, g, _, _, ctx := newTestOrchestrator(t)
	repoPath := t.TempDir()
	g.validRepos[repoPath] = true

	task, err := o.CreateTask(ctx, CreateInput{RepoPath: repoPath, Branch: "feature/unavail"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := os.RemoveAll(repoPath); err != nil {
		t.Fatalf("removing repo path: %v", err)
	}

	if err := o.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got, err := st.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.TmuxStatus != store.StatusUnavailable {
		t.Errorf("status = %v, want unavailable", got.TmuxStatus)
	}
}

func TestAttachRespawnsDeadTask(t *testing.T) {
	o, st, g, m, a, ctx := newTestOrchestrator(t)
	repoPath := t.TempDir()
	g.validRepos[repoPath] = true

	task, err := o.CreateTask(ctx, CreateInput{RepoPath: repoPath, Branch: "feature/respawn"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	delete(m.sessions, task.TmuxSessionName)
	if err := o.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got, err := o.Attach(ctx, task.ID)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if got.TmuxSessionName == "" || !m.sessions[got.TmuxSessionName] {
		t.Fatalf("expected a fresh live session after attach, got %+v", got)
	}
	if len(a.launchCalls) < 2 {
		t.Errorf("expected agent relaunched on respawn, launchCalls=%v", a.launchCalls)
	}
	if len(m.switched) == 0 {
		t.Error("expected switch_client to be called")
	}
	_ = st
}

func mustAbs(t *testing.T, p string) string {
	t.Helper()
	abs, err := filepath.Abs(p)
	if err != nil {
		t.Fatalf("filepath.Abs: %v", err)
	}
	return abs
}

func mustRepoID(t *testing.T, o *Orchestrator, ctx context.Context, repoPath string) string {
	t.Helper()
	var id string
	err := o.submit(ctx, func() {
		repo, err := o.resolveRepo(repoPath)
		if err != nil {
			t.Fatalf("resolveRepo: %v", err)
		}
		id = repo.ID
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return id
}

func TestStatusIntervalScalesAboveThreshold(t *testing.T) {
	if got := statusInterval(5); got != 3*time.Second {
		t.Errorf("statusInterval(5) = %v, want base interval", got)
	}
	if got := statusInterval(40); got <= 3*time.Second {
		t.Errorf("statusInterval(40) = %v, want scaled above base", got)
	}
}
