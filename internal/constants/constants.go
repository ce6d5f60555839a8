// Package constants collects the tunable literals referenced across the
// orchestrator and its drivers, so they are named and changed in one place.
package constants

import "time"

const (
	// MuxSocket is the reserved tmux control socket name (-L flag) this tool
	// uses exclusively, so it never collides with the user's own sessions.
	MuxSocket = "opencode-kanban"

	// SessionNamePrefix is prepended to every derived tmux session name.
	SessionNamePrefix = "ok"

	// MaxSessionNameBytes is the truncation point for derived session names.
	MaxSessionNameBytes = 200

	// MaxCategoryNameLen is the maximum display length for a category name.
	MaxCategoryNameLen = 30

	// PaneCaptureLines is how many trailing lines StatusProbe captures from
	// a pane before classifying.
	PaneCaptureLines = 50

	// PaneClassifyLines is how many of the captured lines (from the tail,
	// non-empty only) StatusProbe actually examines when classifying.
	PaneClassifyLines = 30

	// PollBaseInterval is the status observation loop's per-task interval
	// when the task count is at or below PollScaleThreshold.
	PollBaseInterval = 3 * time.Second

	// PollScaleThreshold is the task count above which the per-task poll
	// interval is scaled linearly to bound the aggregate probe rate.
	PollScaleThreshold = 20

	// GitFetchTimeout bounds a single `git fetch` subprocess invocation.
	GitFetchTimeout = 20 * time.Second

	// AgentReadyPollInterval is the spacing between AgentDriver session-id
	// scrape retries while waiting for the agent to print its banner.
	AgentReadyPollInterval = 500 * time.Millisecond

	// AgentReadyTimeout bounds how long AgentDriver waits for a freshly
	// launched agent to reveal its session id before giving up (non-fatal).
	AgentReadyTimeout = 15 * time.Second

	// DefaultAgentBin is the agent binary name resolved from PATH when no
	// config override is set.
	DefaultAgentBin = "opencode"
)

// DefaultSeedCategories are the categories created in a fresh project
// database, in display order. The "in-progress" slug is hyphenated; see
// DESIGN.md Open Question 1 for why this is the chosen normalization.
var DefaultSeedCategories = []struct {
	Name string
	Slug string
}{
	{"Todo", "todo"},
	{"In Progress", "in-progress"},
	{"Done", "done"},
}
