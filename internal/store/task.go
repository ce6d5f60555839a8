package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const taskColumns = `id, title, repo_id, branch, category_id, position, tmux_session_name,
	worktree_path, tmux_status, status_source, status_fetched_at, status_error,
	opencode_session_id, session_todo_json, archived, created_at, updated_at`

// GetTask returns a task by id, or ErrNotFound.
func (s *Store) GetTask(id string) (Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// GetTaskByBranch returns the task for (repoID, branch), or ErrNotFound.
// Used by the creation pipeline to enforce invariant 1 before inserting.
func (s *Store) GetTaskByBranch(repoID, branch string) (Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE repo_id = ? AND branch = ?`, repoID, branch)
	return scanTask(row)
}

// GetTaskBySessionName returns the task currently holding sessionName (live,
// dead or archived; archiving keeps the row, so it still matches), or
// ErrNotFound. excludeTaskID, if non-empty, is never matched against,
// letting a task re-derive a name without colliding with its own row.
func (s *Store) GetTaskBySessionName(sessionName, excludeTaskID string) (Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE tmux_session_name = ? AND id != ?`, sessionName, excludeTaskID)
	return scanTask(row)
}

// ListTasksByCategory returns a category's non-archived tasks ordered by position.
func (s *Store) ListTasksByCategory(categoryID string) ([]Task, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks WHERE category_id = ? AND archived = 0 ORDER BY position`, categoryID)
	if err != nil {
		return nil, wrapDBError("list tasks", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListLiveTasks returns every non-archived task that has a tmux session
// name set, for use by reconciliation and the status observation loop.
func (s *Store) ListLiveTasks() ([]Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskColumns + ` FROM tasks WHERE archived = 0 AND tmux_session_name != ''`)
	if err != nil {
		return nil, wrapDBError("list live tasks", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// CreateTask inserts a task row at the end of its category's ordering with
// status=unknown (spec §4.G.1 step 6). Returns ErrConflict if (repoID,
// branch) already has a task (invariant 1).
func (s *Store) CreateTask(title, repoID, branch, categoryID string) (Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Task{}, wrapDBError("create task", err)
	}
	defer tx.Rollback()

	var maxPos sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(position) FROM tasks WHERE category_id = ?`, categoryID).Scan(&maxPos); err != nil {
		return Task{}, wrapDBError("create task", err)
	}
	position := 0
	if maxPos.Valid {
		position = int(maxPos.Int64) + 1
	}

	now := isoNow()
	t := Task{
		ID:           newID(),
		Title:        title,
		RepoID:       repoID,
		Branch:       branch,
		CategoryID:   categoryID,
		Position:     position,
		TmuxStatus:   StatusUnknown,
		StatusSource: SourceNone,
	}
	_, err = tx.Exec(`INSERT INTO tasks (id, title, repo_id, branch, category_id, position,
		tmux_session_name, worktree_path, tmux_status, status_source, status_fetched_at,
		status_error, opencode_session_id, session_todo_json, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '', '', ?, ?, '', '', '', '', 0, ?, ?)`,
		t.ID, t.Title, t.RepoID, t.Branch, t.CategoryID, t.Position,
		string(t.TmuxStatus), string(t.StatusSource), now, now)
	if err != nil {
		return Task{}, wrapDBError("create task", err)
	}
	if err := tx.Commit(); err != nil {
		return Task{}, wrapDBError("create task", err)
	}
	t.CreatedAt, _ = parseISO(now)
	t.UpdatedAt = t.CreatedAt
	return t, nil
}

// DeleteTask hard-deletes a task row. Called only after the deletion
// pipeline's external cleanup steps have run (spec §4.G.2).
func (s *Store) DeleteTask(id string) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete task", err)
	}
	return requireRowsAffected(res, "delete task")
}

// UpdateTaskRuntime persists the creation pipeline's runtime fields
// (spec §4.G.1 step 11).
func (s *Store) UpdateTaskRuntime(id, sessionName, worktreePath, agentSessionID string) error {
	res, err := s.db.Exec(`UPDATE tasks SET tmux_session_name = ?, worktree_path = ?,
		opencode_session_id = ?, updated_at = ? WHERE id = ?`,
		sessionName, worktreePath, agentSessionID, isoNow(), id)
	if err != nil {
		return wrapDBError("update task runtime", err)
	}
	return requireRowsAffected(res, "update task runtime")
}

// UpdateTaskStatus writes a status observation. source identifies who
// produced it. If source is probe, sampledAt must be the time the sample
// was captured; the write is silently dropped (no error, no-op) if the
// row's updated_at is newer than sampledAt, per spec §5's ordering
// guarantee and §8 property 4. A write that changes nothing does not bump
// updated_at (spec §4.G.5's write-coalescing rule).
func (s *Store) UpdateTaskStatus(id string, status TaskStatus, source StatusSource, statusErr string, sampledAt string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return wrapDBError("update task status", err)
	}
	defer tx.Rollback()

	var curStatus, curSource, curErr, updatedAt string
	err = tx.QueryRow(`SELECT tmux_status, status_source, status_error, updated_at FROM tasks WHERE id = ?`, id).
		Scan(&curStatus, &curSource, &curErr, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("update task status: %w", ErrNotFound)
		}
		return wrapDBError("update task status", err)
	}

	if source == SourceProbe && sampledAt != "" && updatedAt > sampledAt {
		// A user intent mutated this row after the probe's sample was
		// captured; drop the stale write.
		return nil
	}

	now := isoNow()
	if curStatus == string(status) && curSource == string(source) && curErr == statusErr {
		// No-op transition: refresh status_fetched_at only, never updated_at,
		// so unrelated observers don't see a spurious change.
		_, err = tx.Exec(`UPDATE tasks SET status_fetched_at = ? WHERE id = ?`, now, id)
	} else {
		_, err = tx.Exec(`UPDATE tasks SET tmux_status = ?, status_source = ?, status_error = ?,
			status_fetched_at = ?, updated_at = ? WHERE id = ?`,
			string(status), string(source), statusErr, now, now, id)
	}
	if err != nil {
		return wrapDBError("update task status", err)
	}
	return wrapDBError("update task status", tx.Commit())
}

// ArchiveTask sets archived=true. Idempotent: re-archiving an already
// archived task succeeds (spec §8 property 8); the return bool reports
// whether this call actually changed the row.
func (s *Store) ArchiveTask(id string) (changed bool, err error) {
	tx, txErr := s.db.Begin()
	if txErr != nil {
		return false, wrapDBError("archive task", txErr)
	}
	defer tx.Rollback()

	var archived bool
	if err := tx.QueryRow(`SELECT archived FROM tasks WHERE id = ?`, id).Scan(&archived); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("archive task: %w", ErrNotFound)
		}
		return false, wrapDBError("archive task", err)
	}
	if archived {
		return false, nil
	}

	if _, err := tx.Exec(`UPDATE tasks SET archived = 1, updated_at = ? WHERE id = ?`, isoNow(), id); err != nil {
		return false, wrapDBError("archive task", err)
	}
	return true, wrapDBError("archive task", tx.Commit())
}

// MoveTask relocates a task to (categoryID, position) and renumbers both
// the source and destination categories to a contiguous 0..n permutation,
// all inside one transaction (spec §4.G.6).
func (s *Store) MoveTask(taskID, categoryID string, position int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return wrapDBError("move task", err)
	}
	defer tx.Rollback()

	var fromCategory string
	if err := tx.QueryRow(`SELECT category_id FROM tasks WHERE id = ?`, taskID).Scan(&fromCategory); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("move task: %w", ErrNotFound)
		}
		return wrapDBError("move task", err)
	}

	fromIDs, err := orderedTaskIDs(tx, fromCategory)
	if err != nil {
		return err
	}
	fromIDs = removeID(fromIDs, taskID)

	var toIDs []string
	if categoryID == fromCategory {
		toIDs = fromIDs
	} else {
		toIDs, err = orderedTaskIDs(tx, categoryID)
		if err != nil {
			return err
		}
	}
	toIDs = insertAt(toIDs, taskID, position)

	now := isoNow()
	if categoryID != fromCategory {
		if err := renumber(tx, fromIDs, fromCategory, now); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`UPDATE tasks SET category_id = ? WHERE id = ?`, categoryID, taskID); err != nil {
		return wrapDBError("move task", err)
	}
	if err := renumber(tx, toIDs, categoryID, now); err != nil {
		return err
	}

	return wrapDBError("move task", tx.Commit())
}

// ReorderWithinCategory applies a full new ordering for categoryID. orderedIDs
// must contain exactly that category's current (non-archived) task ids.
func (s *Store) ReorderWithinCategory(categoryID string, orderedIDs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return wrapDBError("reorder", err)
	}
	defer tx.Rollback()

	current, err := orderedTaskIDs(tx, categoryID)
	if err != nil {
		return err
	}
	if !sameSet(current, orderedIDs) {
		return fmt.Errorf("reorder: ordered ids do not match category membership: %w", ErrInvariant)
	}

	if err := renumber(tx, orderedIDs, categoryID, isoNow()); err != nil {
		return err
	}
	return wrapDBError("reorder", tx.Commit())
}

// Snapshot returns the full board view under one consistent transactional
// read (spec §4.A).
func (s *Store) Snapshot() (Board, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Board{}, wrapDBError("snapshot", err)
	}
	defer tx.Rollback()

	repoRows, err := tx.Query(`SELECT id, path, name, default_base, remote_url, created_at, updated_at FROM repos`)
	if err != nil {
		return Board{}, wrapDBError("snapshot", err)
	}
	var repos []Repo
	for repoRows.Next() {
		r, err := scanRepo(repoRows)
		if err != nil {
			repoRows.Close()
			return Board{}, err
		}
		repos = append(repos, r)
	}
	repoRows.Close()
	if err := repoRows.Err(); err != nil {
		return Board{}, wrapDBError("snapshot", err)
	}

	catRows, err := tx.Query(`SELECT id, name, slug, position, created_at FROM categories ORDER BY position`)
	if err != nil {
		return Board{}, wrapDBError("snapshot", err)
	}
	var cats []Category
	for catRows.Next() {
		c, err := scanCategory(catRows)
		if err != nil {
			catRows.Close()
			return Board{}, err
		}
		cats = append(cats, c)
	}
	catRows.Close()
	if err := catRows.Err(); err != nil {
		return Board{}, wrapDBError("snapshot", err)
	}

	taskRows, err := tx.Query(`SELECT ` + taskColumns + ` FROM tasks WHERE archived = 0 ORDER BY category_id, position`)
	if err != nil {
		return Board{}, wrapDBError("snapshot", err)
	}
	tasks, err := scanTasks(taskRows)
	if err != nil {
		return Board{}, err
	}

	return Board{Repos: repos, Categories: cats, Tasks: tasks}, wrapDBError("snapshot", tx.Commit())
}

func orderedTaskIDs(tx *sql.Tx, categoryID string) ([]string, error) {
	rows, err := tx.Query(`SELECT id FROM tasks WHERE category_id = ? AND archived = 0 ORDER BY position`, categoryID)
	if err != nil {
		return nil, wrapDBError("move task", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("move task", err)
		}
		ids = append(ids, id)
	}
	return ids, wrapDBError("move task", rows.Err())
}

func renumber(tx *sql.Tx, ids []string, categoryID, updatedAt string) error {
	for i, id := range ids {
		if _, err := tx.Exec(`UPDATE tasks SET category_id = ?, position = ?, updated_at = ? WHERE id = ?`,
			categoryID, i, updatedAt, id); err != nil {
			return wrapDBError("renumber", err)
		}
	}
	return nil
}

func removeID(ids []string, target string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func insertAt(ids []string, target string, position int) []string {
	if position < 0 {
		position = 0
	}
	if position > len(ids) {
		position = len(ids)
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:position]...)
	out = append(out, target)
	out = append(out, ids[position:]...)
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if !seen[id] {
			return false
		}
	}
	return true
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var status, source, createdAt, updatedAt, fetchedAt string
	var archived int
	err := row.Scan(&t.ID, &t.Title, &t.RepoID, &t.Branch, &t.CategoryID, &t.Position,
		&t.TmuxSessionName, &t.WorktreePath, &status, &source, &fetchedAt, &t.StatusError,
		&t.OpencodeSessionID, &t.SessionTodoJSON, &archived, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, fmt.Errorf("get task: %w", ErrNotFound)
		}
		return Task{}, wrapDBError("get task", err)
	}
	t.TmuxStatus = TaskStatus(status)
	t.StatusSource = StatusSource(source)
	t.Archived = archived != 0
	t.CreatedAt, _ = parseISO(createdAt)
	t.UpdatedAt, _ = parseISO(updatedAt)
	t.StatusFetchedAt, _ = parseISO(fetchedAt)
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	defer rows.Close()
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, wrapDBError("scan tasks", rows.Err())
}
