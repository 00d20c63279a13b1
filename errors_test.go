package xcoro

import (
	"errors"
	"syscall"
	"testing"
)

func TestStructuredError(t *testing.T) {
	err := NewError("open", ErrCodeInvalidParameters, "bad flags")

	if err.Op != "open" {
		t.Errorf("Expected Op=open, got %s", err.Op)
	}
	if err.Code != ErrCodeInvalidParameters {
		t.Errorf("Expected Code=ErrCodeInvalidParameters, got %s", err.Code)
	}

	expected := "xcoro: op=open bad flags"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestNewErrnoError(t *testing.T) {
	err := NewErrnoError("read", syscall.EIO)

	if err.Errno != syscall.EIO {
		t.Errorf("Expected Errno=EIO, got %v", err.Errno)
	}
	if err.Code != ErrCodeIOError {
		t.Errorf("Expected Code=ErrCodeIOError, got %s", err.Code)
	}
}

func TestWrapError(t *testing.T) {
	inner := syscall.ENOENT
	err := WrapError("unlink", inner)

	if err.Code != ErrCodeNotFound {
		t.Errorf("Expected Code=ErrCodeNotFound, got %s", err.Code)
	}
	if err.Errno != syscall.ENOENT {
		t.Errorf("Expected Errno=ENOENT, got %v", err.Errno)
	}
	if !errors.Is(err, syscall.ENOENT) {
		t.Error("Expected wrapped error to satisfy errors.Is for ENOENT")
	}
}

func TestWrapErrorPreservesInnerStructuredError(t *testing.T) {
	inner := NewErrnoError("read", syscall.EAGAIN)
	wrapped := WrapError("pread", inner)

	if wrapped.Code != inner.Code {
		t.Errorf("Expected wrapped Code to match inner, got %s want %s", wrapped.Code, inner.Code)
	}
	if wrapped.Op != "pread" {
		t.Errorf("Expected wrapped Op to be overridden, got %s", wrapped.Op)
	}
}

func TestIsCode(t *testing.T) {
	err := NewError("connect", ErrCodeTimeout, "operation timed out")

	if !IsCode(err, ErrCodeTimeout) {
		t.Error("IsCode should return true for matching code")
	}
	if IsCode(err, ErrCodeIOError) {
		t.Error("IsCode should return false for non-matching code")
	}
	if IsCode(nil, ErrCodeTimeout) {
		t.Error("IsCode should return false for nil error")
	}
}

func TestIsErrno(t *testing.T) {
	err := NewErrnoError("fsync", syscall.EIO)

	if !IsErrno(err, syscall.EIO) {
		t.Error("IsErrno should return true for matching errno")
	}
	if IsErrno(err, syscall.EPERM) {
		t.Error("IsErrno should return false for non-matching errno")
	}
	if IsErrno(nil, syscall.EIO) {
		t.Error("IsErrno should return false for nil error")
	}
}

func TestErrnoMapping(t *testing.T) {
	testCases := []struct {
		errno    syscall.Errno
		expected ErrorCode
	}{
		{syscall.ENOENT, ErrCodeNotFound},
		{syscall.EEXIST, ErrCodeExists},
		{syscall.EBUSY, ErrCodeBusy},
		{syscall.EINVAL, ErrCodeInvalidParameters},
		{syscall.EPERM, ErrCodePermissionDenied},
		{syscall.ENOMEM, ErrCodeInsufficientMemory},
		{syscall.ETIMEDOUT, ErrCodeTimeout},
		{syscall.ENOSYS, ErrCodeNotSupported},
	}

	for _, tc := range testCases {
		code := mapErrnoToCode(tc.errno)
		if code != tc.expected {
			t.Errorf("mapErrnoToCode(%v) = %s, want %s", tc.errno, code, tc.expected)
		}
	}
}
