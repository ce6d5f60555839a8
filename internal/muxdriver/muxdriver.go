// Package muxdriver wraps tmux session operations via subprocess, pinned to
// a reserved control socket so this tool never touches the user's default
// tmux sessions (spec §4.D).
package muxdriver

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/opencode-kanban/okb/internal/constants"
)

// Sentinel errors, detected from tmux's stderr text.
var (
	ErrNoServer        = errors.New("no tmux server running")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Driver wraps tmux operations on one reserved control socket.
type Driver struct {
	socket string
}

// New returns a Driver pinned to the given control socket name.
func New(socket string) *Driver {
	if socket == "" {
		socket = constants.MuxSocket
	}
	return &Driver{socket: socket}
}

func (d *Driver) run(args ...string) (string, error) {
	full := append([]string{"-L", d.socket}, args...)
	cmd := exec.Command("tmux", full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", wrapError(err, stderr.String(), args)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func wrapError(err error, stderr string, args []string) error {
	stderr = strings.TrimSpace(stderr)
	switch {
	case strings.Contains(stderr, "no server running"), strings.Contains(stderr, "error connecting to"):
		return ErrNoServer
	case strings.Contains(stderr, "duplicate session"):
		return ErrSessionExists
	case strings.Contains(stderr, "session not found"), strings.Contains(stderr, "can't find session"):
		return ErrSessionNotFound
	}
	op := ""
	if len(args) > 0 {
		op = args[0]
	}
	if stderr != "" {
		return fmt.Errorf("tmux %s: %s", op, stderr)
	}
	return fmt.Errorf("tmux %s: %w", op, err)
}

func validateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("muxdriver: invalid session name %q", name)
	}
	return nil
}

// Exists reports whether a session with name is running.
func (d *Driver) Exists(name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	_, err := d.run("has-session", "-t", "="+name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
		return false, nil
	}
	return false, err
}

// Create starts a detached, single-window, single-pane session named name
// in cwd. If initialCommand is non-empty, it is run as the pane's command
// instead of the default shell (spec §4.D).
func (d *Driver) Create(name, cwd, initialCommand string) error {
	if err := validateName(name); err != nil {
		return err
	}
	args := []string{"new-session", "-d", "-s", name, "-c", cwd}
	if initialCommand != "" {
		args = append(args, initialCommand)
	}
	_, err := d.run(args...)
	return err
}

// Kill terminates a session. Killing an already-dead session is success,
// so compensation-stack unwinds are idempotent (spec §4.G.1).
func (d *Driver) Kill(name string) error {
	_, err := d.run("kill-session", "-t", name)
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoServer) {
		return nil
	}
	return err
}

// SwitchClient attaches the invoking terminal's client to name.
func (d *Driver) SwitchClient(name string) error {
	_, err := d.run("switch-client", "-t", name)
	return err
}

// ListSessions returns all session names on this driver's socket.
func (d *Driver) ListSessions() ([]string, error) {
	out, err := d.run("list-sessions", "-F", "#{session_name}")
	if err != nil {
		if errors.Is(err, ErrNoServer) {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CapturePane returns the trailing `lines` lines of pane 0.0's buffer.
func (d *Driver) CapturePane(name string, lines int) (string, error) {
	return d.run("capture-pane", "-p", "-t", name+":0.0", "-S", "-"+strconv.Itoa(lines))
}

// PanePID returns pane 0.0's foreground process PID.
func (d *Driver) PanePID(name string) (string, error) {
	return d.run("display-message", "-p", "-t", name+":0.0", "#{pane_pid}")
}

// SendKeys sends literal text to pane 0.0, without a trailing Enter.
func (d *Driver) SendKeys(name, text string) error {
	_, err := d.run("send-keys", "-l", "-t", name+":0.0", text)
	return err
}

// SendEnter sends the Enter key to pane 0.0.
func (d *Driver) SendEnter(name string) error {
	_, err := d.run("send-keys", "-t", name+":0.0", "Enter")
	return err
}
