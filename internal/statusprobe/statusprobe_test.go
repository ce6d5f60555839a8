package statusprobe

import (
	"testing"

	"github.com/opencode-kanban/okb/internal/store"
)

type fakeMux struct {
	exists bool
	pane   string
}

func (f fakeMux) Exists(name string) (bool, error) { return f.exists, nil }

func (f fakeMux) CapturePane(name string, lines int) (string, error) { return f.pane, nil }

func TestClassifyDeadWhenSessionMissing(t *testing.T) {
	got, err := Classify(fakeMux{exists: false}, "ok-repo-branch")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got != store.StatusDead {
		t.Errorf("got %v, want dead", got)
	}
}

func TestClassifyTextWaitingTakesPriority(t *testing.T) {
	text := "Some tool call\nDo you want to proceed?\n1. Yes, allow once\n2. No\nesc to interrupt"
	if got := ClassifyText(text); got != store.StatusWaiting {
		t.Errorf("got %v, want waiting", got)
	}
}

func TestClassifyTextRunning(t *testing.T) {
	text := "Writing file...\nesc to interrupt"
	if got := ClassifyText(text); got != store.StatusRunning {
		t.Errorf("got %v, want running", got)
	}
}

func TestClassifyTextIdle(t *testing.T) {
	text := "Welcome back\n> "
	if got := ClassifyText(text); got != store.StatusIdle {
		t.Errorf("got %v, want idle", got)
	}
}

func TestClassifyTextUnknownWhenNoSentinel(t *testing.T) {
	text := "some random scrollback with no recognizable prompt"
	if got := ClassifyText(text); got != store.StatusUnknown {
		t.Errorf("got %v, want unknown", got)
	}
}

func TestClassifyTextIgnoresOldScrollback(t *testing.T) {
	var lines []string
	for i := 0; i < 40; i++ {
		lines = append(lines, "old line with esc to interrupt text from history")
	}
	lines = append(lines, "")
	for i := 0; i < 30; i++ {
		lines = append(lines, "plain output line")
	}
	text := joinLines(lines)
	if got := ClassifyText(text); got != store.StatusUnknown {
		t.Errorf("got %v, want unknown (old sentinel should be out of the classify window)", got)
	}
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func TestClassifyTextStripsANSI(t *testing.T) {
	text := "\x1b[32mesc to interrupt\x1b[0m"
	if got := ClassifyText(text); got != store.StatusRunning {
		t.Errorf("got %v, want running after ANSI strip", got)
	}
}
