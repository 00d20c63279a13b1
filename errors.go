package xcoro

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is the structured error a shim call returns when its syscall
// fails: the shim operation that failed, a high-level category, the raw
// errno if the failure came from a syscall, and an optional wrapped cause.
// A context that is already done before submission is returned as the
// context's own error, not as an *Error.
type Error struct {
	Op    string    // shim operation that failed (e.g. "read", "open")
	Code  ErrorCode // high-level error category
	Errno syscall.Errno
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op == "" {
		return fmt.Sprintf("xcoro: %s", msg)
	}
	if e.Errno != 0 {
		return fmt.Sprintf("xcoro: op=%s errno=%d %s", e.Op, e.Errno, msg)
	}
	return fmt.Sprintf("xcoro: op=%s %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode is a high-level error category, independent of the exact
// errno that produced it.
type ErrorCode string

const (
	ErrCodeNotFound          ErrorCode = "not found"
	ErrCodeExists            ErrorCode = "already exists"
	ErrCodeBusy              ErrorCode = "busy"
	ErrCodeInvalidParameters ErrorCode = "invalid parameters"
	ErrCodeNotSupported      ErrorCode = "not supported"
	ErrCodePermissionDenied  ErrorCode = "permission denied"
	ErrCodeInsufficientMemory ErrorCode = "insufficient memory"
	ErrCodeIOError           ErrorCode = "I/O error"
	ErrCodeTimeout           ErrorCode = "timeout"
	ErrCodeShutdown          ErrorCode = "offload context shut down"
)

// NewError creates a structured error with no errno attached (e.g. a
// context-shutdown or cancellation failure).
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewErrnoError wraps a raw syscall errno returned by a dispatched action,
// mapping it to an ErrorCode.
func NewErrnoError(op string, errno syscall.Errno) *Error {
	return &Error{
		Op:    op,
		Code:  mapErrnoToCode(errno),
		Errno: errno,
		Msg:   errno.Error(),
		Inner: errno,
	}
}

// WrapError wraps an arbitrary error with an op label, preserving an
// inner *Error's code and errno if present.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if xe, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: xe.Code, Errno: xe.Errno, Msg: xe.Msg, Inner: xe.Inner}
	}

	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}

	return &Error{Op: op, Code: ErrCodeIOError, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.ENOENT:
		return ErrCodeNotFound
	case syscall.EEXIST:
		return ErrCodeExists
	case syscall.EBUSY, syscall.EAGAIN:
		return ErrCodeBusy
	case syscall.EINVAL, syscall.E2BIG, syscall.ENAMETOOLONG:
		return ErrCodeInvalidParameters
	case syscall.ENOSYS, syscall.EOPNOTSUPP:
		return ErrCodeNotSupported
	case syscall.EPERM, syscall.EACCES:
		return ErrCodePermissionDenied
	case syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeInsufficientMemory
	case syscall.ETIMEDOUT:
		return ErrCodeTimeout
	default:
		return ErrCodeIOError
	}
}

// IsCode reports whether err is an *Error with the given category.
func IsCode(err error, code ErrorCode) bool {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Code == code
	}
	return false
}

// IsErrno reports whether err is an *Error wrapping the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Errno == errno
	}
	return false
}
