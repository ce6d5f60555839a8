package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the Store's failure taxonomy (spec §4.A, §7).
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrInvariant = errors.New("invariant violation")
)

// wrapDBError converts sql.ErrNoRows to ErrNotFound and attaches sqlite
// unique-constraint failures to ErrConflict, wrapping everything else as an
// opaque I/O error with operation context.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if isUniqueConstraintErr(err) {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUniqueConstraintErr detects sqlite's UNIQUE constraint failure message.
// modernc.org/sqlite does not export a typed constraint-violation error, so
// this matches on the driver's stable error text, same as the corpus's own
// substring-based error classification style (muxdriver's stderr-to-sentinel
// wrapError).
func isUniqueConstraintErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is or wraps ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
