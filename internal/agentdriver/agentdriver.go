// Package agentdriver starts and resumes the coding-agent process inside a
// task's mux session, and scrapes the pane for the agent's own session id
// so a later resume can hand it back (spec §4.E).
package agentdriver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/x/ansi"
	"github.com/google/uuid"

	"github.com/opencode-kanban/okb/internal/constants"
)

// muxer is the slice of MuxDriver this package depends on, kept narrow so
// tests can supply a fake without importing the real tmux-backed driver.
type muxer interface {
	SendKeys(name, text string) error
	SendEnter(name string) error
	CapturePane(name string, lines int) (string, error)
}

// Driver launches and resumes the coding agent inside an already-created
// mux session. It never creates or kills sessions itself; that is
// MuxDriver's and the Orchestrator's job.
type Driver struct {
	mux muxer
	bin string
}

// New returns a Driver that runs agentBin inside sessions via mux.
func New(mux muxer, agentBin string) *Driver {
	if agentBin == "" {
		agentBin = constants.DefaultAgentBin
	}
	return &Driver{mux: mux, bin: agentBin}
}

// Launch types a fresh agent command into name's pane, rooted at cwd (the
// task's worktree), for a task with no prior agent session. The command
// runs once Start sends the Enter key.
func (d *Driver) Launch(sessionName, cwd string) error {
	return d.mux.SendKeys(sessionName, fmt.Sprintf("%s --cwd %s", d.bin, cwd))
}

// Resume re-attaches to a previously detected agent session id, for a
// task whose mux session was recreated (spec §4.G.4 lazy re-spawn).
func (d *Driver) Resume(sessionName, cwd, agentSessionID string) error {
	if agentSessionID == "" {
		return d.Launch(sessionName, cwd)
	}
	return d.mux.SendKeys(sessionName, fmt.Sprintf("%s --cwd %s -s %s", d.bin, cwd, agentSessionID))
}

// Start sends the launch/resume command's trailing Enter, actually
// starting the process queued by Launch or Resume.
func (d *Driver) Start(sessionName string) error {
	return d.mux.SendEnter(sessionName)
}

var sessionIDPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// DetectAgentSessionID scrapes name's pane for a UUID-v4 token the
// agent prints as its own session id. ok is false if none has appeared
// yet (not an error: the agent may just still be starting).
func (d *Driver) DetectAgentSessionID(sessionName string) (id string, ok bool, err error) {
	raw, err := d.mux.CapturePane(sessionName, constants.PaneCaptureLines)
	if err != nil {
		return "", false, err
	}
	clean := ansi.Strip(raw)

	for _, line := range strings.Split(clean, "\n") {
		match := sessionIDPattern.FindString(line)
		if match == "" {
			continue
		}
		if u, err := uuid.Parse(match); err != nil || u.Version() != 4 {
			continue
		}
		return match, true, nil
	}
	return "", false, nil
}

// WaitUntilReady polls DetectAgentSessionID until a session id appears or
// the ready-wait window elapses, bounded by context cancellation.
func (d *Driver) WaitUntilReady(ctx context.Context, sessionName string) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, constants.AgentReadyTimeout)
	defer cancel()

	var id string
	op := func() error {
		found, ok, err := d.DetectAgentSessionID(sessionName)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrAgentNotReady
		}
		id = found
		return nil
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(constants.AgentReadyPollInterval), waitCtx)
	if err := backoff.Retry(op, bo); err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return "", ErrAgentNotReady
		}
		return "", err
	}
	return id, nil
}
