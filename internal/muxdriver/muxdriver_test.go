package muxdriver

import (
	"os/exec"
	"testing"
)

const testSocket = "opencode-kanban-test"

func requireTmux(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not found on PATH")
	}
}

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	requireTmux(t)
	d := New(testSocket)
	t.Cleanup(func() {
		_, _ = d.run("kill-server")
	})
	return d
}

func TestCreateExistsKill(t *testing.T) {
	d := newTestDriver(t)
	name := "ok-test-create"

	ok, err := d.Exists(name)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatal("expected session to not exist yet")
	}

	if err := d.Create(name, t.TempDir(), ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err = d.Exists(name)
	if err != nil {
		t.Fatalf("Exists after create: %v", err)
	}
	if !ok {
		t.Fatal("expected session to exist after Create")
	}

	if err := d.Kill(name); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	ok, err = d.Exists(name)
	if err != nil {
		t.Fatalf("Exists after kill: %v", err)
	}
	if ok {
		t.Fatal("expected session to not exist after Kill")
	}
}

func TestKillMissingSessionIsNotAnError(t *testing.T) {
	d := newTestDriver(t)
	if err := d.Kill("ok-does-not-exist"); err != nil {
		t.Fatalf("Kill on missing session: %v", err)
	}
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	d := newTestDriver(t)
	name := "ok-test-dup"

	if err := d.Create(name, t.TempDir(), ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := d.Create(name, t.TempDir(), "")
	if err == nil {
		t.Fatal("expected error creating duplicate session")
	}
}

func TestSendKeysAndCapturePane(t *testing.T) {
	d := newTestDriver(t)
	name := "ok-test-sendkeys"

	if err := d.Create(name, t.TempDir(), ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := d.SendKeys(name, "echo hello-muxdriver"); err != nil {
		t.Fatalf("SendKeys: %v", err)
	}
	if err := d.SendEnter(name); err != nil {
		t.Fatalf("SendEnter: %v", err)
	}

	out, err := d.CapturePane(name, 10)
	if err != nil {
		t.Fatalf("CapturePane: %v", err)
	}
	if out == "" {
		t.Fatal("expected non-empty pane capture")
	}
}

func TestListSessionsIncludesCreated(t *testing.T) {
	d := newTestDriver(t)
	name := "ok-test-list"

	if err := d.Create(name, t.TempDir(), ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	names, err := d.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	found := false
	for _, n := range names {
		if n == name {
			found = true
		}
	}
	if !found {
		t.Errorf("ListSessions = %v, want to contain %q", names, name)
	}
}

func TestValidateNameRejectsUnsafeChars(t *testing.T) {
	d := New(testSocket)
	if _, err := d.Exists("ok bad name"); err == nil {
		t.Error("expected validation error for session name with space")
	}
	if err := d.Create("ok;rm -rf", t.TempDir(), ""); err == nil {
		t.Error("expected validation error for session name with semicolon")
	}
}
