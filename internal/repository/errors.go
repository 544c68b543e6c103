package repository

import (
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Common repository errors that can be checked with errors.Is()
var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when attempting to create an entity that already exists
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrDuplicatePendingRequest is returned when a company already has a pending
	// renewal or cancellation for the same address
	ErrDuplicatePendingRequest = errors.New("a pending request already exists for this address")

	// ErrConflict is returned when a compare-and-swap write lost a race
	ErrConflict = errors.New("concurrent modification")

	// ErrInvalidTransition is returned when a status change is not in the transition table
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrCursorConsumed is returned when a history cursor is ranged over a second time
	ErrCursorConsumed = errors.New("history cursor already consumed")
)

// ConflictError describes a lost compare-and-swap. It matches ErrConflict.
type ConflictError struct {
	Entity   string // "ip" or "request"
	ID       int64
	Expected string // version or status the writer read
	Actual   string // version or status found at write time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %d: concurrent modification: expected %s, found %s",
		e.Entity, e.ID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidEntity, fmt.Sprintf(format, args...))
}

// isConstraintViolation reports whether err is a SQLite constraint failure with
// the given extended code. Connections without extended result codes report the
// primary code only, so the message is checked as a fallback.
func isConstraintViolation(err error, extended int, marker string) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Code() == extended {
		return true
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), marker)
}

func isUniqueViolation(err error) bool {
	return isConstraintViolation(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE, "UNIQUE")
}

func isForeignKeyViolation(err error) bool {
	return isConstraintViolation(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, "FOREIGN KEY")
}
