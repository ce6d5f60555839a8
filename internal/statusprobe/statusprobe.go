// Package statusprobe classifies a task's live agent state from recent
// pane output. Classify captures the pane through the mux; the ladder itself,
// ClassifyText, is a pure function over captured text with no I/O and no
// Store access, so its verdicts can be unit tested from fixture strings
// alone (spec §4.F).
package statusprobe

import (
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/opencode-kanban/okb/internal/constants"
	"github.com/opencode-kanban/okb/internal/store"
)

// waitingSentinels are substrings that indicate the agent is blocked on a
// permission prompt and needs user input to proceed.
var waitingSentinels = []string{
	"Yes, allow once",
	"Yes, allow always",
	"enter to select",
	"esc to cancel",
}

// runningSentinels indicate the agent is actively working.
var runningSentinels = []string{
	"esc to interrupt",
}

// idleGlyphs indicate the agent is sitting at an input prompt with
// nothing in flight.
var idleGlyphs = []string{
	">",
	"│ >",
}

// mux is the narrow capture dependency this package needs.
type mux interface {
	Exists(name string) (bool, error)
	CapturePane(name string, lines int) (string, error)
}

// Classify captures name's pane via m and returns the task's current
// status. It never writes the Store; callers decide how to persist the
// verdict (spec §4.F: "never write the Store directly; return a value").
func Classify(m mux, sessionName string) (store.TaskStatus, error) {
	alive, err := m.Exists(sessionName)
	if err != nil {
		return store.StatusUnknown, err
	}
	if !alive {
		return store.StatusDead, nil
	}

	raw, err := m.CapturePane(sessionName, constants.PaneCaptureLines)
	if err != nil {
		return store.StatusUnknown, err
	}
	return ClassifyText(raw), nil
}

// ClassifyText applies the priority-ordered classification rules to
// already-captured pane text. Exported separately from Classify so tests
// can exercise the classification logic without a mux fake.
func ClassifyText(raw string) store.TaskStatus {
	clean := ansi.Strip(raw)
	lines := nonEmptyTail(strings.Split(clean, "\n"), constants.PaneClassifyLines)
	window := strings.Join(lines, "\n")

	if containsAny(window, waitingSentinels) {
		return store.StatusWaiting
	}
	if containsAny(window, runningSentinels) {
		return store.StatusRunning
	}
	if containsAny(window, idleGlyphs) {
		return store.StatusIdle
	}
	return store.StatusUnknown
}

func nonEmptyTail(lines []string, n int) []string {
	var nonEmpty []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty = append(nonEmpty, l)
		}
	}
	if len(nonEmpty) > n {
		nonEmpty = nonEmpty[len(nonEmpty)-n:]
	}
	return nonEmpty
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
