// Package shim is the fiber-facing API for the offload core: one
// function per offloaded syscall, each building an offload.Action,
// calling offload.Submit, and translating the result into either a
// normal Go return value or a *xcoro.Error.
package shim

import (
	"context"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/baruch/xcoro"
	"github.com/baruch/xcoro/internal/bufpool"
	"github.com/baruch/xcoro/offload"
)

// readChunkSize is the transfer size ReadFile uses per offloaded pread;
// it matches bufpool's 256KB bucket so repeated large reads stop paying
// for a fresh allocation every chunk.
const readChunkSize = 256 * 1024

func errFor(op string, errno syscall.Errno) error {
	if errno == 0 {
		return nil
	}
	return xcoro.NewErrnoError(op, errno)
}

// Open offloads an open(2) call with the caller's flags and a zero mode
// (no O_CREAT; see OpenCreate for that).
func Open(ctx context.Context, c *offload.Context, path string, flags int) (int, error) {
	a := offload.NewAction(offload.OpOpen)
	defer offload.Release(a)
	a.Path = path
	a.Flags = flags
	if err := offload.Submit(ctx, c, a); err != nil {
		return -1, err
	}
	return a.Result, errFor("open", a.Errno)
}

// OpenCreate offloads an open(2) call with O_CREAT, using mode for the
// file's permission bits if it is created.
func OpenCreate(ctx context.Context, c *offload.Context, path string, flags int, mode uint32) (int, error) {
	a := offload.NewAction(offload.OpOpenCreate)
	defer offload.Release(a)
	a.Path = path
	a.Flags = flags
	a.Mode = mode
	if err := offload.Submit(ctx, c, a); err != nil {
		return -1, err
	}
	return a.Result, errFor("open_create", a.Errno)
}

// Close offloads a close(2) call.
func Close(ctx context.Context, c *offload.Context, fd int) error {
	a := offload.NewAction(offload.OpClose)
	defer offload.Release(a)
	a.Fd = fd
	if err := offload.Submit(ctx, c, a); err != nil {
		return err
	}
	return errFor("close", a.Errno)
}

// Read offloads a read(2) call into buf, returning the byte count read.
func Read(ctx context.Context, c *offload.Context, fd int, buf []byte) (int, error) {
	a := offload.NewAction(offload.OpRead)
	defer offload.Release(a)
	a.Fd = fd
	a.Buf = buf
	if err := offload.Submit(ctx, c, a); err != nil {
		return 0, err
	}
	return a.Result, errFor("read", a.Errno)
}

// Pread offloads a pread(2) call at the given offset.
func Pread(ctx context.Context, c *offload.Context, fd int, buf []byte, offset int64) (int, error) {
	a := offload.NewAction(offload.OpPread)
	defer offload.Release(a)
	a.Fd = fd
	a.Buf = buf
	a.Offset = offset
	if err := offload.Submit(ctx, c, a); err != nil {
		return 0, err
	}
	return a.Result, errFor("pread", a.Errno)
}

// Write offloads a write(2) call.
func Write(ctx context.Context, c *offload.Context, fd int, buf []byte) (int, error) {
	a := offload.NewAction(offload.OpWrite)
	defer offload.Release(a)
	a.Fd = fd
	a.Buf = buf
	if err := offload.Submit(ctx, c, a); err != nil {
		return 0, err
	}
	return a.Result, errFor("write", a.Errno)
}

// Pwrite offloads a pwrite(2) call at the given offset.
func Pwrite(ctx context.Context, c *offload.Context, fd int, buf []byte, offset int64) (int, error) {
	a := offload.NewAction(offload.OpPwrite)
	defer offload.Release(a)
	a.Fd = fd
	a.Buf = buf
	a.Offset = offset
	if err := offload.Submit(ctx, c, a); err != nil {
		return 0, err
	}
	return a.Result, errFor("pwrite", a.Errno)
}

// Fstat offloads an fstat(2) call.
func Fstat(ctx context.Context, c *offload.Context, fd int) (unix.Stat_t, error) {
	a := offload.NewAction(offload.OpFstat)
	defer offload.Release(a)
	a.Fd = fd
	if err := offload.Submit(ctx, c, a); err != nil {
		return unix.Stat_t{}, err
	}
	return a.Stat, errFor("fstat", a.Errno)
}

// Lstat offloads an lstat(2) call.
func Lstat(ctx context.Context, c *offload.Context, path string) (unix.Stat_t, error) {
	a := offload.NewAction(offload.OpLstat)
	defer offload.Release(a)
	a.Path = path
	if err := offload.Submit(ctx, c, a); err != nil {
		return unix.Stat_t{}, err
	}
	return a.Stat, errFor("lstat", a.Errno)
}

// Fsync offloads an fsync(2) call.
func Fsync(ctx context.Context, c *offload.Context, fd int) error {
	a := offload.NewAction(offload.OpFsync)
	defer offload.Release(a)
	a.Fd = fd
	if err := offload.Submit(ctx, c, a); err != nil {
		return err
	}
	return errFor("fsync", a.Errno)
}

// Mkdir offloads a mkdir(2) call.
func Mkdir(ctx context.Context, c *offload.Context, path string, mode uint32) error {
	a := offload.NewAction(offload.OpMkdir)
	defer offload.Release(a)
	a.Path = path
	a.Mode = mode
	if err := offload.Submit(ctx, c, a); err != nil {
		return err
	}
	return errFor("mkdir", a.Errno)
}

// Unlink offloads an unlink(2) call.
func Unlink(ctx context.Context, c *offload.Context, path string) error {
	a := offload.NewAction(offload.OpUnlink)
	defer offload.Release(a)
	a.Path = path
	if err := offload.Submit(ctx, c, a); err != nil {
		return err
	}
	return errFor("unlink", a.Errno)
}

// Rename offloads a rename(2) call.
func Rename(ctx context.Context, c *offload.Context, oldpath, newpath string) error {
	a := offload.NewAction(offload.OpRename)
	defer offload.Release(a)
	a.Path = oldpath
	a.Path2 = newpath
	if err := offload.Submit(ctx, c, a); err != nil {
		return err
	}
	return errFor("rename", a.Errno)
}

// Readlink offloads a readlink(2) call into buf.
func Readlink(ctx context.Context, c *offload.Context, path string, buf []byte) (int, error) {
	a := offload.NewAction(offload.OpReadlink)
	defer offload.Release(a)
	a.Path = path
	a.Buf = buf
	if err := offload.Submit(ctx, c, a); err != nil {
		return 0, err
	}
	return a.Result, errFor("readlink", a.Errno)
}

// Connect offloads a connect(2) call.
func Connect(ctx context.Context, c *offload.Context, fd int, addr unix.Sockaddr) error {
	a := offload.NewAction(offload.OpConnect)
	defer offload.Release(a)
	a.Fd = fd
	a.SockAddr = addr
	if err := offload.Submit(ctx, c, a); err != nil {
		return err
	}
	return errFor("connect", a.Errno)
}

// Accept offloads an accept4(2) call, returning the new connection fd.
func Accept(ctx context.Context, c *offload.Context, listenFd int) (int, error) {
	a := offload.NewAction(offload.OpAccept)
	defer offload.Release(a)
	a.Fd = listenFd
	if err := offload.Submit(ctx, c, a); err != nil {
		return -1, err
	}
	return a.Result, errFor("accept", a.Errno)
}

// Send offloads a send(2) call.
func Send(ctx context.Context, c *offload.Context, fd int, buf []byte, flags int) (int, error) {
	a := offload.NewAction(offload.OpSend)
	defer offload.Release(a)
	a.Fd = fd
	a.Buf = buf
	a.Flags = flags
	if err := offload.Submit(ctx, c, a); err != nil {
		return 0, err
	}
	return a.Result, errFor("send", a.Errno)
}

// ReadFile offloads the full read of fd's contents starting at offset 0
// (the fd's current file position is neither used nor moved), chunking through a pooled buffer (package bufpool) instead of
// one allocation per call site. It stops at the first short read (EOF) or
// error.
func ReadFile(ctx context.Context, c *offload.Context, fd int) ([]byte, error) {
	chunk := bufpool.Get(readChunkSize)
	defer bufpool.Put(chunk)

	var out []byte
	var offset int64
	for {
		n, err := Pread(ctx, c, fd, chunk, offset)
		if err != nil {
			return out, err
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, chunk[:n]...)
		offset += int64(n)
		if n < len(chunk) {
			return out, nil
		}
	}
}

// Recv offloads a recvfrom(2) call with no peer address capture.
func Recv(ctx context.Context, c *offload.Context, fd int, buf []byte, flags int) (int, error) {
	a := offload.NewAction(offload.OpRecv)
	defer offload.Release(a)
	a.Fd = fd
	a.Buf = buf
	a.Flags = flags
	if err := offload.Submit(ctx, c, a); err != nil {
		return 0, err
	}
	return a.Result, errFor("recv", a.Errno)
}
