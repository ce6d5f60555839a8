package orchestrator

import (
	"context"
	"fmt"

	"github.com/opencode-kanban/okb/internal/statusprobe"
	"github.com/opencode-kanban/okb/internal/store"
)

// Reconcile sweeps every live (non-archived, session-bearing) task and
// aligns its persisted status with the observed multiplexer state. It
// never recreates sessions, never mutates git state, and never deletes
// rows (spec §4.G.3). Safe to call again on demand; running it twice in
// succession yields identical Store state (spec §8 property 7).
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	var opErr error
	err := o.submit(ctx, func() {
		opErr = o.reconcileLocked()
	})
	if err != nil {
		return err
	}
	return opErr
}

func (o *Orchestrator) reconcileLocked() error {
	tasks, err := o.store.ListLiveTasks()
	if err != nil {
		return taxonomy(KindIo, "list_live_tasks", err)
	}

	for _, t := range tasks {
		status, statusErr, ok := o.classifyForReconcile(t)
		if !ok {
			continue
		}
		if err := o.store.UpdateTaskStatus(t.ID, status, store.SourceReconcile, statusErr, ""); err != nil {
			o.log.Warn("reconcile: status write failed", "task", t.ID, "error", err)
		}
	}
	return nil
}

// classifyForReconcile applies the broken -> unavailable -> dead -> probe
// ladder from spec §4.G.3. ok is false only when classification could not
// be completed (already logged); the task is left untouched in that case.
func (o *Orchestrator) classifyForReconcile(t store.Task) (status store.TaskStatus, statusErr string, ok bool) {
	if !pathExists(t.WorktreePath) {
		return store.StatusBroken, "worktree missing", true
	}

	repo, err := o.store.GetRepo(t.RepoID)
	if err != nil {
		o.log.Warn("reconcile: repo lookup failed", "task", t.ID, "error", err)
		return "", "", false
	}
	if !pathExists(repo.Path) {
		return store.StatusUnavailable, "repo path unavailable", true
	}

	exists, err := o.mux.Exists(t.TmuxSessionName)
	if err != nil {
		o.log.Warn("reconcile: checking session failed", "task", t.ID, "error", err)
		return "", "", false
	}
	if !exists {
		return store.StatusDead, "", true
	}

	status, err = statusprobe.Classify(o.mux, t.TmuxSessionName)
	if err != nil {
		o.log.Warn("reconcile: probe failed", "task", t.ID, "error", err)
		return "", "", false
	}
	return status, "", true
}

// Attach implements lazy re-spawn on attach (spec §4.G.4). If the task's
// session is alive, it switches the client. If dead, it verifies the
// worktree still exists, recreates the mux session there, resumes (or
// launches) the agent, persists the refreshed session name, and switches
// the client.
func (o *Orchestrator) Attach(ctx context.Context, taskID string) (store.Task, error) {
	var result store.Task
	var opErr error
	err := o.submit(ctx, func() {
		result, opErr = o.attachLocked(taskID)
	})
	if err != nil {
		return store.Task{}, err
	}
	return result, opErr
}

func (o *Orchestrator) attachLocked(taskID string) (store.Task, error) {
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return store.Task{}, taxonomy(KindNotFound, "get_task", err)
	}

	if task.TmuxStatus == store.StatusBroken {
		return store.Task{}, taxonomy(KindExternalFatal, "attach", fmt.Errorf("task %s is broken: worktree missing; re-create or abandon", task.ID))
	}
	if task.TmuxStatus == store.StatusUnavailable {
		return store.Task{}, taxonomy(KindExternalFatal, "attach", fmt.Errorf("task %s's repo path is unavailable", task.ID))
	}

	if task.TmuxSessionName != "" {
		exists, err := o.mux.Exists(task.TmuxSessionName)
		if err != nil {
			return store.Task{}, taxonomy(KindIo, "check_session", err)
		}
		if exists {
			if err := o.mux.SwitchClient(task.TmuxSessionName); err != nil {
				return store.Task{}, taxonomy(KindExternalFatal, "switch_client", err)
			}
			return task, nil
		}
	}

	// Dead: worktree must still exist before we respawn into it.
	if !pathExists(task.WorktreePath) {
		_ = o.store.UpdateTaskStatus(task.ID, store.StatusBroken, store.SourceReconcile, "worktree missing", "")
		return store.Task{}, taxonomy(KindExternalFatal, "attach", fmt.Errorf("worktree for task %s no longer exists at %s", task.ID, task.WorktreePath))
	}

	repo, err := o.store.GetRepo(task.RepoID)
	if err != nil {
		return store.Task{}, taxonomy(KindNotFound, "get_repo", err)
	}
	sessionName, err := o.freeSessionName(repo.Name, task.Branch, task.ID)
	if err != nil {
		return store.Task{}, taxonomy(KindIo, "derive_session_name", err)
	}

	if err := o.mux.Create(sessionName, task.WorktreePath, ""); err != nil {
		return store.Task{}, taxonomy(KindExternalFatal, "mux_create", err)
	}
	if task.OpencodeSessionID != "" {
		err = o.agent.Resume(sessionName, task.WorktreePath, task.OpencodeSessionID)
	} else {
		err = o.agent.Launch(sessionName, task.WorktreePath)
	}
	if err != nil {
		return store.Task{}, taxonomy(KindExternalFatal, "agent_respawn", err)
	}
	if err := o.agent.Start(sessionName); err != nil {
		return store.Task{}, taxonomy(KindExternalFatal, "agent_start", err)
	}

	if err := o.store.UpdateTaskRuntime(task.ID, sessionName, task.WorktreePath, task.OpencodeSessionID); err != nil {
		return store.Task{}, taxonomy(KindIo, "update_runtime", err)
	}
	task.TmuxSessionName = sessionName

	if err := o.mux.SwitchClient(sessionName); err != nil {
		return store.Task{}, taxonomy(KindExternalFatal, "switch_client", err)
	}
	return task, nil
}
