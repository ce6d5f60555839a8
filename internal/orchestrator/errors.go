package orchestrator

import "fmt"

// Kind is the error taxonomy named in spec §7. Every operation the
// Orchestrator exposes returns an error that either is nil or unwraps to
// one of these via errors.As on *TaxonomyError.
type Kind string

const (
	KindUsage             Kind = "usage"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInvariant         Kind = "invariant"
	KindExternalTransient Kind = "external_transient"
	KindExternalFatal     Kind = "external_fatal"
	KindIo                Kind = "io"
)

// TaxonomyError carries the taxonomy Kind plus the failing step's name, so
// callers (CLI, UI) can map it to an exit code or a user-facing message
// without inspecting driver-specific error types.
type TaxonomyError struct {
	Kind Kind
	Step string
	Err  error
}

func (e *TaxonomyError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Step, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TaxonomyError) Unwrap() error { return e.Err }

func taxonomy(kind Kind, step string, err error) error {
	if err == nil {
		return nil
	}
	return &TaxonomyError{Kind: kind, Step: step, Err: err}
}

// ErrCategorySelectorConflict is the error behind the code named in spec
// scenario 6: both --category-id and --category-slug were given.
var ErrCategorySelectorConflict = fmt.Errorf("category selector conflict")
