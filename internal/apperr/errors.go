package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrOutsideRoot   = errors.New("path escapes store root")
	ErrInvalidName   = errors.New("unknown document name")
	ErrLockContended = errors.New("store lock held by another writer")
	ErrValidation    = errors.New("validation failed")
)

// Error is a caller-facing failure. Its message is shown as is; errors.Is
// matches its Kind.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// Validation returns an ErrValidation with a caller-facing message.
func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound returns an ErrNotFound with a caller-facing message.
func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

// IsUser reports whether err is the caller's fault rather than the server's.
func IsUser(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound)
}
