package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrDisposed              = errors.New("resource already disposed")
	ErrNativeCreation        = errors.New("native resource creation failed")
	ErrNotShareable          = errors.New("depth stencil buffer is not shareable")
	ErrRepositoryNotOpen     = errors.New("resource repository is not open")
	ErrRepositoryAlreadyOpen = errors.New("resource repository is already open")
	ErrNoWriter              = errors.New("no external writer registered for type")
	ErrTypeMismatch          = errors.New("savable type mismatch")
	ErrGroupMismatch         = errors.New("group header mismatch")
	ErrUnknownType           = errors.New("unknown savable type")
	ErrJobSystemShutdown     = errors.New("job system is shut down")
	ErrUnknown               = errors.New("unknown")
)

// ContentError describes a failure of the content pipeline. Expected and
// Actual are filled when the failure is a mismatch between two types or
// two names.
type ContentError struct {
	Op       string
	Expected string
	Actual   string
	Err      error
}

func (e *ContentError) Error() string {
	switch {
	case e.Expected != "" || e.Actual != "":
		return fmt.Sprintf("%s: %v (expected %q, got %q)", e.Op, e.Err, e.Expected, e.Actual)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

func NewContentError(op string, err error) *ContentError {
	return &ContentError{Op: op, Err: err}
}

func NewMismatchError(op string, err error, expected, actual string) *ContentError {
	return &ContentError{Op: op, Err: err, Expected: expected, Actual: actual}
}
