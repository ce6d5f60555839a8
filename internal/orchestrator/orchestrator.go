// Package orchestrator is the core state machine: it owns the creation
// pipeline with rollback, deletion with cleanup, lazy re-spawn, startup
// reconciliation, and the status-polling scheduler. It is the sole writer
// of task-lifecycle fields in the Store (spec §4.G).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/opencode-kanban/okb/internal/constants"
	"github.com/opencode-kanban/okb/internal/namecodec"
	"github.com/opencode-kanban/okb/internal/store"
)

// gitDriver is the slice of GitDriver the Orchestrator depends on.
type gitDriver interface {
	IsValidRepo(path string) bool
	DetectDefaultBranch(repoPath string) (string, error)
	GetRemoteURL(repoPath string) string
	CheckRefFormat(branch string) error
	Fetch(ctx context.Context, repoPath string) error
	CreateWorktree(repoPath, worktreePath, newBranch, baseRef string) error
	RemoveWorktree(repoPath, worktreePath string, force bool) error
	DeleteBranch(repoPath, branch string) error
}

// muxDriver is the slice of MuxDriver the Orchestrator depends on.
type muxDriver interface {
	Exists(name string) (bool, error)
	Create(name, cwd, initialCommand string) error
	Kill(name string) error
	SwitchClient(name string) error
	CapturePane(name string, lines int) (string, error)
}

// agentDriver is the slice of AgentDriver the Orchestrator depends on.
type agentDriver interface {
	Launch(sessionName, cwd string) error
	Resume(sessionName, cwd, agentSessionID string) error
	Start(sessionName string) error
	WaitUntilReady(ctx context.Context, sessionName string) (string, error)
}

// Store is the slice of the persistence layer the Orchestrator depends
// on, narrowed so tests can supply a fake backed by a real Store opened
// against a temp file.
type Store interface {
	GetRepoByPath(path string) (store.Repo, error)
	CreateRepo(path, name, defaultBase, remoteURL string) (store.Repo, error)
	GetRepo(id string) (store.Repo, error)
	ListRepos() ([]store.Repo, error)

	GetCategoryBySlug(slug string) (store.Category, error)
	GetCategory(id string) (store.Category, error)
	GetCategoryByPosition(position int) (store.Category, error)
	ListCategories() ([]store.Category, error)
	CreateCategory(name, slug string) (store.Category, error)
	UpdateCategoryName(id, name string) error
	DeleteCategory(id string) error

	GetTask(id string) (store.Task, error)
	GetTaskByBranch(repoID, branch string) (store.Task, error)
	GetTaskBySessionName(sessionName, excludeTaskID string) (store.Task, error)
	ListTasksByCategory(categoryID string) ([]store.Task, error)
	ListLiveTasks() ([]store.Task, error)
	CreateTask(title, repoID, branch, categoryID string) (store.Task, error)
	DeleteTask(id string) error
	UpdateTaskRuntime(id, sessionName, worktreePath, agentSessionID string) error
	UpdateTaskStatus(id string, status store.TaskStatus, source store.StatusSource, statusErr string, sampledAt string) error
	ArchiveTask(id string) (bool, error)
	MoveTask(taskID, categoryID string, position int) error
	ReorderWithinCategory(categoryID string, orderedIDs []string) error
	Snapshot() (store.Board, error)
}

// Orchestrator serializes every task-lifecycle mutation through a single
// logical worker (spec §5, §9): all exported methods enqueue a closure on
// intents and block for its result, so the Store never sees concurrent
// writers for the same row regardless of how many goroutines call in.
type Orchestrator struct {
	store           Store
	git             gitDriver
	mux             muxDriver
	agent           agentDriver
	worktreeBaseDir string
	log             *slog.Logger

	locks *repoBranchLock

	intents chan func()
}

// New constructs an Orchestrator. Run must be called once to start its
// worker loop before any method is invoked.
func New(s Store, git gitDriver, mux muxDriver, agent agentDriver, worktreeBaseDir string, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:           s,
		git:             git,
		mux:             mux,
		agent:           agent,
		worktreeBaseDir: worktreeBaseDir,
		log:             log,
		locks:           newRepoBranchLock(),
		intents:         make(chan func(), 64),
	}
}

// Run drains the intent queue until ctx is cancelled. Callers should run
// this in its own goroutine.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-o.intents:
			fn()
		}
	}
}

// submit enqueues fn and blocks until it has run, giving every exported
// method FIFO, single-writer semantics over the intent queue.
func (o *Orchestrator) submit(ctx context.Context, fn func()) error {
	reply := make(chan struct{})
	wrapped := func() {
		fn()
		close(reply)
	}
	select {
	case o.intents <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateInput is the creation pipeline's input (spec §4.G.1).
type CreateInput struct {
	RepoPath        string
	Branch          string
	BaseRef         string // optional; falls back to repo.default_base, then detection
	Title           string // optional; defaults to Branch
	CategoryID      string // mutually exclusive with CategorySlug
	CategorySlug    string
	SwitchOnCreate  bool
}

func (in CreateInput) validate() error {
	if in.RepoPath == "" || in.Branch == "" {
		return taxonomy(KindUsage, "validate", fmt.Errorf("repo path and branch are required"))
	}
	if in.CategoryID != "" && in.CategorySlug != "" {
		return taxonomy(KindConflict, "resolve_category", ErrCategorySelectorConflict)
	}
	return nil
}

// CreateTask runs the full creation pipeline described in spec §4.G.1,
// accumulating a compensation stack and unwinding it in reverse on any
// hard failure, leaving Store, filesystem, and mux state equivalent to
// pre-start (spec §8 property 5).
func (o *Orchestrator) CreateTask(ctx context.Context, in CreateInput) (store.Task, error) {
	if err := in.validate(); err != nil {
		return store.Task{}, err
	}

	var result store.Task
	var opErr error
	err := o.submit(ctx, func() {
		result, opErr = o.createTaskLocked(ctx, in)
	})
	if err != nil {
		return store.Task{}, err
	}
	return result, opErr
}

func (o *Orchestrator) createTaskLocked(ctx context.Context, in CreateInput) (store.Task, error) {
	// Step 1: resolve repo.
	repo, err := o.resolveRepo(in.RepoPath)
	if err != nil {
		return store.Task{}, err
	}

	// Advisory lock on (repo_id, branch): second concurrent create fails
	// fast (spec §5).
	release, ok := o.locks.TryAcquire(repo.ID, in.Branch)
	if !ok {
		return store.Task{}, taxonomy(KindConflict, "acquire_lock", fmt.Errorf("creation already in flight for %s@%s", repo.Name, in.Branch))
	}
	defer release()

	if _, err := o.store.GetTaskByBranch(repo.ID, in.Branch); err == nil {
		return store.Task{}, taxonomy(KindConflict, "check_existing", fmt.Errorf("task already exists for %s@%s", repo.Name, in.Branch))
	}

	// Step 2: resolve category.
	category, err := o.resolveCategory(in.CategoryID, in.CategorySlug)
	if err != nil {
		return store.Task{}, err
	}

	// Step 3: resolve base ref.
	baseRef, err := o.resolveBaseRef(repo, in.BaseRef)
	if err != nil {
		return store.Task{}, err
	}

	if err := o.git.CheckRefFormat(in.Branch); err != nil {
		return store.Task{}, taxonomy(KindUsage, "check_ref_format", err)
	}

	var compensations []func() error
	rollback := func(cause error) error {
		for i := len(compensations) - 1; i >= 0; i-- {
			if cerr := compensations[i](); cerr != nil {
				o.log.Error("compensation step failed", "error", cerr)
			}
		}
		return cause
	}

	// Step 4: worktree path, disambiguated.
	repoSlug := namecodec.Slug(repo.Name)
	branchSlug := namecodec.Slug(in.Branch)
	worktreePath := o.freeWorktreePath(repoSlug, branchSlug)

	// Step 5: tmux session name, disambiguated against the Store.
	sessionName, err := o.freeSessionName(repo.Name, in.Branch, "")
	if err != nil {
		return store.Task{}, taxonomy(KindIo, "derive_session_name", err)
	}

	title := in.Title
	if title == "" {
		title = in.Branch
	}

	// Step 6: insert task row; push delete-row compensation.
	task, err := o.store.CreateTask(title, repo.ID, in.Branch, category.ID)
	if err != nil {
		return store.Task{}, taxonomy(KindIo, "insert_task", err)
	}
	compensations = append(compensations, func() error {
		return o.store.DeleteTask(task.ID)
	})

	// Step 7: fetch (transient failure logged, not compensated).
	if err := o.git.Fetch(ctx, repo.Path); err != nil {
		o.log.Warn("fetch failed, proceeding with local refs", "repo", repo.Name, "error", err)
	}

	// Step 8: create worktree; push remove-worktree compensation.
	if err := o.git.CreateWorktree(repo.Path, worktreePath, in.Branch, baseRef); err != nil {
		return store.Task{}, rollback(taxonomy(KindExternalFatal, "create_worktree", err))
	}
	compensations = append(compensations, func() error {
		return o.git.RemoveWorktree(repo.Path, worktreePath, true)
	})

	// Step 9: create mux session; push kill-session compensation.
	if err := o.mux.Create(sessionName, worktreePath, ""); err != nil {
		return store.Task{}, rollback(taxonomy(KindExternalFatal, "mux_create", err))
	}
	compensations = append(compensations, func() error {
		return o.mux.Kill(sessionName)
	})

	// Step 10: launch (or resume) the agent. No compensation: idempotent.
	if task.OpencodeSessionID != "" {
		if err := o.agent.Resume(sessionName, worktreePath, task.OpencodeSessionID); err != nil {
			return store.Task{}, rollback(taxonomy(KindExternalFatal, "agent_resume", err))
		}
	} else {
		if err := o.agent.Launch(sessionName, worktreePath); err != nil {
			return store.Task{}, rollback(taxonomy(KindExternalFatal, "agent_launch", err))
		}
	}
	if err := o.agent.Start(sessionName); err != nil {
		return store.Task{}, rollback(taxonomy(KindExternalFatal, "agent_start", err))
	}

	// Step 11: persist runtime fields.
	if err := o.store.UpdateTaskRuntime(task.ID, sessionName, worktreePath, task.OpencodeSessionID); err != nil {
		return store.Task{}, rollback(taxonomy(KindIo, "update_runtime", err))
	}
	task.TmuxSessionName = sessionName
	task.WorktreePath = worktreePath

	// Step 12: optional attach.
	if in.SwitchOnCreate {
		if err := o.mux.SwitchClient(sessionName); err != nil {
			o.log.Warn("switch_client failed after create", "session", sessionName, "error", err)
		}
	}

	return task, nil
}

func (o *Orchestrator) resolveRepo(path string) (store.Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return store.Repo{}, taxonomy(KindUsage, "resolve_repo", err)
	}
	if repo, err := o.store.GetRepoByPath(abs); err == nil {
		return repo, nil
	}

	if !o.git.IsValidRepo(abs) {
		return store.Repo{}, taxonomy(KindUsage, "resolve_repo", fmt.Errorf("%s is not a git repository", abs))
	}
	defaultBase, _ := o.git.DetectDefaultBranch(abs)
	remoteURL := o.git.GetRemoteURL(abs)
	name := filepath.Base(abs)

	repo, err := o.store.CreateRepo(abs, name, defaultBase, remoteURL)
	if err != nil {
		return store.Repo{}, taxonomy(KindIo, "resolve_repo", err)
	}
	return repo, nil
}

// resolveCategory implements spec §4.G.1 step 2: exactly one selector, or
// neither falls back first to slug "todo" then to position 0. A selector
// conflict (both given) is a hard error.
func (o *Orchestrator) resolveCategory(categoryID, categorySlug string) (store.Category, error) {
	if categoryID != "" && categorySlug != "" {
		return store.Category{}, taxonomy(KindConflict, "resolve_category", ErrCategorySelectorConflict)
	}
	if categoryID != "" {
		c, err := o.store.GetCategory(categoryID)
		if err != nil {
			return store.Category{}, taxonomy(KindNotFound, "resolve_category", err)
		}
		return c, nil
	}
	if categorySlug != "" {
		c, err := o.store.GetCategoryBySlug(categorySlug)
		if err != nil {
			return store.Category{}, taxonomy(KindNotFound, "resolve_category", err)
		}
		return c, nil
	}
	if c, err := o.store.GetCategoryBySlug("todo"); err == nil {
		return c, nil
	}
	c, err := o.store.GetCategoryByPosition(0)
	if err != nil {
		return store.Category{}, taxonomy(KindNotFound, "resolve_category", fmt.Errorf("no default category available: %w", err))
	}
	return c, nil
}

func (o *Orchestrator) resolveBaseRef(repo store.Repo, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if repo.DefaultBase != "" {
		return repo.DefaultBase, nil
	}
	detected, err := o.git.DetectDefaultBranch(repo.Path)
	if err != nil {
		return "", taxonomy(KindExternalFatal, "detect_default_branch", err)
	}
	return detected, nil
}

func (o *Orchestrator) freeWorktreePath(repoSlug, branchSlug string) string {
	base := filepath.Join(o.worktreeBaseDir, repoSlug, branchSlug)
	path := base
	for n := 2; pathExists(path); n++ {
		path = fmt.Sprintf("%s-%d", base, n)
	}
	return path
}

// freeSessionName derives the base NameCodec name and disambiguates against
// the Store with a numeric suffix, per spec §4.B step 5. Checking the Store
// rather than live tmux state is deliberate: a dead task's row keeps its
// tmux_session_name until the task is deleted, so a name must stay reserved
// even after its session is gone (Testable Property 2, Data Model
// Invariant 5). excludeTaskID lets a task re-derive a name on respawn
// without colliding with its own still-held row.
func (o *Orchestrator) freeSessionName(repoName, branch, excludeTaskID string) (string, error) {
	base := namecodec.SessionName(repoName, branch)
	name := base
	for n := 2; ; n++ {
		_, err := o.store.GetTaskBySessionName(name, excludeTaskID)
		if store.IsNotFound(err) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
		name = namecodec.WithSuffix(base, n)
	}
}

// statusInterval computes the per-task polling interval for the observation
// loop, scaling linearly above constants.PollScaleThreshold tasks (spec
// §4.G.5).
func statusInterval(liveTaskCount int) time.Duration {
	if liveTaskCount <= constants.PollScaleThreshold {
		return constants.PollBaseInterval
	}
	scale := float64(liveTaskCount) / float64(constants.PollScaleThreshold)
	return time.Duration(float64(constants.PollBaseInterval) * scale)
}

// jitter returns a duration shuffled by up to +/-20% to avoid synchronized
// probe spikes across tasks (spec §4.G.5 "randomized order").
func jitter(d time.Duration, rnd *rand.Rand) time.Duration {
	factor := 0.8 + rnd.Float64()*0.4
	return time.Duration(float64(d) * factor)
}
