package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidDate         = errors.New("invalid date")
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	ErrBlobStoreDisabled   = errors.New("backup archive store is not configured")
)

// InvalidDateError reports a date that cannot be used to derive a sequence key.
type InvalidDateError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidDateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

func (e *InvalidDateError) Unwrap() error { return e.Err }

// Is lets callers match any InvalidDateError with errors.Is(err, ErrInvalidDate).
func (e *InvalidDateError) Is(target error) bool { return target == ErrInvalidDate }

// DuplicateIdentifierError is returned when an allocated tracking code is already taken.
type DuplicateIdentifierError struct {
	Identifier string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("identifier %s is already assigned", e.Identifier)
}

func (e *DuplicateIdentifierError) Is(target error) bool {
	return target == ErrDuplicateIdentifier || target == ErrConflict
}
