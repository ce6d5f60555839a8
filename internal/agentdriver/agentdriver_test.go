package agentdriver

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type fakeMux struct {
	sentKeys  []string
	enters    int
	paneLines []string
	captureErr error
}

func (f *fakeMux) SendKeys(name, text string) error {
	f.sentKeys = append(f.sentKeys, text)
	return nil
}

func (f *fakeMux) SendEnter(name string) error {
	f.enters++
	return nil
}

func (f *fakeMux) CapturePane(name string, lines int) (string, error) {
	if f.captureErr != nil {
		return "", f.captureErr
	}
	out := ""
	for _, l := range f.paneLines {
		out += l + "\n"
	}
	return out, nil
}

func TestLaunchSendsAgentBinWithCwd(t *testing.T) {
	mux := &fakeMux{}
	d := New(mux, "opencode")

	if err := d.Launch("ok-repo-branch", "/work/repo-branch"); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	want := "opencode --cwd /work/repo-branch"
	if len(mux.sentKeys) != 1 || mux.sentKeys[0] != want {
		t.Errorf("sentKeys = %v, want [%s]", mux.sentKeys, want)
	}
}

func TestResumeWithNoPriorSessionFallsBackToLaunch(t *testing.T) {
	mux := &fakeMux{}
	d := New(mux, "opencode")

	if err := d.Resume("ok-repo-branch", "/work/repo-branch", ""); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	want := "opencode --cwd /work/repo-branch"
	if mux.sentKeys[0] != want {
		t.Errorf("sentKeys = %v, want fallback to bare launch", mux.sentKeys)
	}
}

func TestResumeWithPriorSessionPassesID(t *testing.T) {
	mux := &fakeMux{}
	d := New(mux, "opencode")
	id := "3fa85f64-5717-4562-b3fc-2c963f66afa6"

	if err := d.Resume("ok-repo-branch", "/work/repo-branch", id); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	want := fmt.Sprintf("opencode --cwd /work/repo-branch -s %s", id)
	if mux.sentKeys[0] != want {
		t.Errorf("sentKeys = %v, want [%s]", mux.sentKeys, want)
	}
}

func TestDetectAgentSessionIDFindsUUID(t *testing.T) {
	mux := &fakeMux{paneLines: []string{
		"Starting agent...",
		"session: 3fa85f64-5717-4562-b3fc-2c963f66afa6 ready",
	}}
	d := New(mux, "opencode")

	id, ok, err := d.DetectAgentSessionID("ok-repo-branch")
	if err != nil {
		t.Fatalf("DetectAgentSessionID: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if id != "3fa85f64-5717-4562-b3fc-2c963f66afa6" {
		t.Errorf("id = %q", id)
	}
}

func TestDetectAgentSessionIDNoMatchYet(t *testing.T) {
	mux := &fakeMux{paneLines: []string{"Starting agent...", "Loading model..."}}
	d := New(mux, "opencode")

	_, ok, err := d.DetectAgentSessionID("ok-repo-branch")
	if err != nil {
		t.Fatalf("DetectAgentSessionID: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false before a session id appears")
	}
}

func TestWaitUntilReadyTimesOut(t *testing.T) {
	mux := &fakeMux{paneLines: []string{"still loading"}}
	d := New(mux, "opencode")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := d.WaitUntilReady(ctx, "ok-repo-branch")
	if err == nil {
		t.Fatal("expected WaitUntilReady to time out")
	}
}
