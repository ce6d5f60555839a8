package orchestrator

import "context"

// DeletionReport carries the outcome of each independent cleanup step so
// the caller can show the user a full picture even on partial failure
// (spec §4.G.2).
type DeletionReport struct {
	KilledSession   bool
	KillSessionErr  error
	RemovedWorktree bool
	RemoveWorktreeErr error
	DeletedBranch   bool
	DeleteBranchErr error
	RowDeleted      bool
}

// HasErrors reports whether any requested cleanup step failed.
func (r DeletionReport) HasErrors() bool {
	return r.KillSessionErr != nil || r.RemoveWorktreeErr != nil || r.DeleteBranchErr != nil
}

// DeleteTask runs the deletion-with-cleanup flow: kill_session,
// remove_worktree, delete_branch are independent booleans executed in
// that fixed order, each accumulating its own error rather than aborting
// the others. Only once the requested external steps are attempted is the
// Task row hard-deleted; if any requested step failed, the row is
// retained so the user can retry (spec §4.G.2).
func (o *Orchestrator) DeleteTask(ctx context.Context, taskID string, killSession, removeWorktree, deleteBranch bool) (DeletionReport, error) {
	var report DeletionReport
	var opErr error
	err := o.submit(ctx, func() {
		report, opErr = o.deleteTaskLocked(taskID, killSession, removeWorktree, deleteBranch)
	})
	if err != nil {
		return DeletionReport{}, err
	}
	return report, opErr
}

func (o *Orchestrator) deleteTaskLocked(taskID string, killSession, removeWorktree, deleteBranch bool) (DeletionReport, error) {
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return DeletionReport{}, taxonomy(KindNotFound, "get_task", err)
	}
	repo, err := o.store.GetRepo(task.RepoID)
	if err != nil {
		return DeletionReport{}, taxonomy(KindNotFound, "get_repo", err)
	}

	var report DeletionReport

	if killSession && task.TmuxSessionName != "" {
		if err := o.mux.Kill(task.TmuxSessionName); err != nil {
			report.KillSessionErr = err
		} else {
			report.KilledSession = true
		}
	}

	if removeWorktree && task.WorktreePath != "" {
		if err := o.git.RemoveWorktree(repo.Path, task.WorktreePath, true); err != nil {
			report.RemoveWorktreeErr = err
		} else {
			report.RemovedWorktree = true
		}
	}

	if deleteBranch {
		if err := o.git.DeleteBranch(repo.Path, task.Branch); err != nil {
			report.DeleteBranchErr = err
		} else {
			report.DeletedBranch = true
		}
	}

	if report.HasErrors() {
		return report, nil
	}

	if err := o.store.DeleteTask(task.ID); err != nil {
		return report, taxonomy(KindIo, "delete_row", err)
	}
	report.RowDeleted = true
	return report, nil
}
