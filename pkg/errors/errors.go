// Package errors provides the error taxonomy shared by handles, transactions
// and remote backends.
//
// Misuse of an API surfaces as ErrInvalidState or ErrInvalidArgument.
// Failures of the operation itself (transforms, stream writes) surface as
// *IOError so callers can tell the two apart with errors.Is and errors.As.
package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested document or transaction was not found.
	ErrNotFound = stderrors.New("not found")

	// ErrClosed indicates the resource has been closed.
	ErrClosed = stderrors.New("closed")

	// ErrInvalidState indicates an operation was called on an object that is
	// not ready for it, such as sending a handle that holds no content.
	ErrInvalidState = stderrors.New("invalid state")

	// ErrInvalidArgument indicates an argument was rejected, such as an
	// unsupported format on a format-restricted handle.
	ErrInvalidArgument = stderrors.New("invalid argument")

	// ErrConflict indicates a transaction could not be applied because of a
	// concurrent modification.
	ErrConflict = stderrors.New("conflict")

	// ErrUnsupported indicates the backend does not support the operation.
	ErrUnsupported = stderrors.New("unsupported")
)

// IOError reports a failure inside a transformation or stream write.
type IOError struct {
	Op  string
	Err error
}

// NewIOError wraps err as an I/O failure of op. A nil err yields nil.
func NewIOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Err: err}
}

func (e *IOError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("i/o failure: %v", e.Err)
	}
	return fmt.Sprintf("%s: i/o failure: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsIOError reports whether any error in err's chain is an *IOError.
func IsIOError(err error) bool {
	var ioErr *IOError
	return stderrors.As(err, &ioErr)
}
