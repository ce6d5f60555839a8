package gitdriver

import "fmt"

// Error is returned by every GitDriver operation that shells out to git.
// Stderr carries the subprocess's captured error output for diagnostics
// (spec §4.C: "all stderr is captured and attached to the error variant").
type Error struct {
	Op     string
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("git %s: %s", e.Op, e.Stderr)
	}
	return fmt.Sprintf("git %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrWorktreeExists is returned by CreateWorktree when the target path
// already exists (spec §4.C: "no overwrite").
type ErrWorktreeExists struct {
	Path string
}

func (e *ErrWorktreeExists) Error() string {
	return fmt.Sprintf("worktree path already exists: %s", e.Path)
}

// ErrTransient marks a failure the caller may proceed past (e.g. a fetch
// that timed out while offline).
type ErrTransient struct {
	Err error
}

func (e *ErrTransient) Error() string { return "transient: " + e.Err.Error() }
func (e *ErrTransient) Unwrap() error { return e.Err }
