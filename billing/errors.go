package billing

import (
	"errors"
	"fmt"
	"strings"
)

// Typed failures surfaced by billing operations. Handlers map these onto HTTP
// status codes; everything else is treated as an internal error.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStaleConsumption  = errors.New("entry already billed by another invoice")
	ErrNumberingConflict = errors.New("invoice number conflict")
)

// ValidationError reports malformed caller input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// isNumberConflict detects a uniqueness violation on invoices.number, the one
// constraint we retry on.
func isNumberConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: invoices.number")
}
