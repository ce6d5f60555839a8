package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenSeedsDefaultCategories(t *testing.T) {
	s := openTestStore(t)

	cats, err := s.ListCategories()
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(cats) != 3 {
		t.Fatalf("got %d categories, want 3", len(cats))
	}
	wantSlugs := []string{"todo", "in-progress", "done"}
	for i, c := range cats {
		if c.Slug != wantSlugs[i] {
			t.Errorf("category[%d].Slug = %q, want %q", i, c.Slug, wantSlugs[i])
		}
		if c.Position != i {
			t.Errorf("category[%d].Position = %d, want %d", i, c.Position, i)
		}
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s1.Close()

	s2, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	cats, err := s2.ListCategories()
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(cats) != 3 {
		t.Fatalf("got %d categories after reopen, want 3 (no duplicate seeding)", len(cats))
	}
}

func TestCreateRepoAndTask(t *testing.T) {
	s := openTestStore(t)

	repo, err := s.CreateRepo("/tmp/myrepo", "myrepo", "main", "")
	if err != nil {
		t.Fatalf("CreateRepo: %v", err)
	}

	todo, err := s.GetCategoryBySlug("todo")
	if err != nil {
		t.Fatalf("GetCategoryBySlug: %v", err)
	}

	task, err := s.CreateTask("Login feature", repo.ID, "feature/login", todo.ID)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.TmuxStatus != StatusUnknown {
		t.Errorf("new task status = %q, want unknown", task.TmuxStatus)
	}

	_, err = s.CreateTask("Duplicate", repo.ID, "feature/login", todo.ID)
	if !IsConflict(err) {
		t.Errorf("CreateTask duplicate (repo,branch) err = %v, want Conflict", err)
	}
}

func TestDeleteLastCategoryRejected(t *testing.T) {
	s := openTestStore(t)
	cats, _ := s.ListCategories()

	// Delete two of the three (all empty).
	if err := s.DeleteCategory(cats[1].ID); err != nil {
		t.Fatalf("DeleteCategory(1): %v", err)
	}
	if err := s.DeleteCategory(cats[2].ID); err != nil {
		t.Fatalf("DeleteCategory(2): %v", err)
	}

	if err := s.DeleteCategory(cats[0].ID); err == nil {
		t.Error("expected deleting the last category to be rejected")
	}
}

func TestDeleteNonEmptyCategoryRejected(t *testing.T) {
	s := openTestStore(t)
	repo, _ := s.CreateRepo("/tmp/r", "r", "main", "")
	todo, _ := s.GetCategoryBySlug("todo")
	_, err := s.CreateTask("t", repo.ID, "b", todo.ID)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if err := s.DeleteCategory(todo.ID); !IsConflict(err) {
		t.Errorf("DeleteCategory on non-empty = %v, want Conflict", err)
	}
}

func TestMoveAndReorderScenario5(t *testing.T) {
	s := openTestStore(t)
	repo, _ := s.CreateRepo("/tmp/r", "r", "main", "")
	todo, _ := s.GetCategoryBySlug("todo")
	inProgress, _ := s.GetCategoryBySlug("in-progress")

	a, _ := s.CreateTask("A", repo.ID, "a", todo.ID)
	b, _ := s.CreateTask("B", repo.ID, "b", todo.ID)
	c, _ := s.CreateTask("C", repo.ID, "c", todo.ID)

	if err := s.MoveTask(b.ID, inProgress.ID, 0); err != nil {
		t.Fatalf("MoveTask: %v", err)
	}

	if err := s.ReorderWithinCategory(todo.ID, []string{a.ID, c.ID}); err != nil {
		t.Fatalf("ReorderWithinCategory: %v", err)
	}

	todoTasks, err := s.ListTasksByCategory(todo.ID)
	if err != nil {
		t.Fatalf("ListTasksByCategory(todo): %v", err)
	}
	if len(todoTasks) != 2 || todoTasks[0].ID != a.ID || todoTasks[1].ID != c.ID {
		t.Errorf("todo order = %+v, want [A, C]", todoTasks)
	}
	for _, task := range todoTasks {
		if task.ID == a.ID && task.Position != 0 {
			t.Errorf("A.Position = %d, want 0", task.Position)
		}
		if task.ID == c.ID && task.Position != 1 {
			t.Errorf("C.Position = %d, want 1", task.Position)
		}
	}

	inProgressTasks, err := s.ListTasksByCategory(inProgress.ID)
	if err != nil {
		t.Fatalf("ListTasksByCategory(in-progress): %v", err)
	}
	if len(inProgressTasks) != 1 || inProgressTasks[0].ID != b.ID || inProgressTasks[0].Position != 0 {
		t.Errorf("in-progress = %+v, want [B@0]", inProgressTasks)
	}
}

func TestArchiveIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	repo, _ := s.CreateRepo("/tmp/r", "r", "main", "")
	todo, _ := s.GetCategoryBySlug("todo")
	task, _ := s.CreateTask("t", repo.ID, "b", todo.ID)

	changed, err := s.ArchiveTask(task.ID)
	if err != nil || !changed {
		t.Fatalf("first ArchiveTask: changed=%v err=%v", changed, err)
	}
	changed, err = s.ArchiveTask(task.ID)
	if err != nil {
		t.Fatalf("second ArchiveTask: %v", err)
	}
	if changed {
		t.Error("second ArchiveTask reported a change; want no-op")
	}
}

func TestUpdateTaskStatusDropsStaleProbe(t *testing.T) {
	s := openTestStore(t)
	repo, _ := s.CreateRepo("/tmp/r", "r", "main", "")
	todo, _ := s.GetCategoryBySlug("todo")
	task, _ := s.CreateTask("t", repo.ID, "b", todo.ID)

	staleSample := task.CreatedAt.Format(isoFormat)

	// A user intent bumps updated_at.
	if err := s.UpdateTaskRuntime(task.ID, "sess", "/tmp/wt", ""); err != nil {
		t.Fatalf("UpdateTaskRuntime: %v", err)
	}

	// A probe result captured before that user intent must be dropped.
	if err := s.UpdateTaskStatus(task.ID, StatusRunning, SourceProbe, "", staleSample); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}

	got, err := s.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.TmuxStatus == StatusRunning {
		t.Error("stale probe write was applied; want it dropped")
	}
}

func TestUpdateTaskStatusCoalescesNoOp(t *testing.T) {
	s := openTestStore(t)
	repo, _ := s.CreateRepo("/tmp/r", "r", "main", "")
	todo, _ := s.GetCategoryBySlug("todo")
	task, _ := s.CreateTask("t", repo.ID, "b", todo.ID)

	if err := s.UpdateTaskStatus(task.ID, StatusRunning, SourceProbe, "", ""); err != nil {
		t.Fatalf("first UpdateTaskStatus: %v", err)
	}
	afterFirst, _ := s.GetTask(task.ID)

	if err := s.UpdateTaskStatus(task.ID, StatusRunning, SourceProbe, "", ""); err != nil {
		t.Fatalf("second UpdateTaskStatus: %v", err)
	}
	afterSecond, _ := s.GetTask(task.ID)

	if afterFirst.UpdatedAt != afterSecond.UpdatedAt {
		t.Errorf("no-op status transition bumped updated_at: %v -> %v", afterFirst.UpdatedAt, afterSecond.UpdatedAt)
	}
}
