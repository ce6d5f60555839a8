package cmd

import (
	"errors"
	"fmt"

	"github.com/opencode-kanban/okb/internal/orchestrator"
)

// errUsage marks a usage error raised before an Orchestrator call is made
// (missing required flag, bad positional argument).
var errUsage = errors.New("usage error")

// exitCodeFor maps an error returned from an Orchestrator call (or a
// pre-flight usage check) to the process exit code described in spec §7.
func exitCodeFor(err error) int {
	var taxErr *orchestrator.TaxonomyError
	if errors.As(err, &taxErr) {
		switch taxErr.Kind {
		case orchestrator.KindUsage:
			return 2
		case orchestrator.KindNotFound:
			return 3
		case orchestrator.KindConflict, orchestrator.KindInvariant:
			return 4
		default: // ExternalTransient, ExternalFatal, Io
			return 5
		}
	}
	if errors.Is(err, errUsage) {
		return 2
	}
	return 5
}

// errorCode maps an error to the stable machine-readable code carried in a
// JSON envelope's error.code field.
func errorCode(err error) string {
	var taxErr *orchestrator.TaxonomyError
	if errors.As(err, &taxErr) {
		if errors.Is(taxErr.Err, orchestrator.ErrCategorySelectorConflict) {
			return "CATEGORY_SELECTOR_CONFLICT"
		}
		switch taxErr.Kind {
		case orchestrator.KindUsage:
			return "USAGE"
		case orchestrator.KindNotFound:
			return "NOT_FOUND"
		case orchestrator.KindConflict:
			return "CONFLICT"
		case orchestrator.KindInvariant:
			return "INVARIANT"
		case orchestrator.KindExternalTransient:
			return "EXTERNAL_TRANSIENT"
		case orchestrator.KindExternalFatal:
			return "EXTERNAL_FATAL"
		case orchestrator.KindIo:
			return "IO"
		}
	}
	if errors.Is(err, errUsage) {
		return "USAGE"
	}
	return "INTERNAL"
}

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}
