package offload

import (
	"encoding/binary"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// workerLoop runs on its own locked OS thread with every signal masked,
// pulling actions off the submit queue and dispatching each to the real
// blocking syscall it names. id is used only for logging.
func (c *Context) workerLoop(id int) {
	defer c.workerWG.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var fullMask unix.Sigset_t
	for i := range fullMask.Val {
		fullMask.Val[i] = ^uint64(0)
	}
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &fullMask, nil); err != nil {
		c.cfg.Logger.WithOp("worker_init").WithError(err).Warn("failed to mask signals on worker thread", "worker", id)
	}

	for {
		a := c.queue.popBlocking()
		if a == nil {
			return
		}

		start := time.Now()
		dispatch(a)
		latency := time.Since(start)

		c.completeAction(a, latency)
	}
}

// dispatch executes the blocking syscall named by a.tag, storing the
// result or errno into a's output fields. It performs no synchronization
// of its own; the caller (workerLoop) owns a exclusively until
// completeAction publishes it.
func dispatch(a *Action) {
	switch a.tag {
	case OpOpen:
		fd, err := unix.Open(a.Path, a.Flags, 0)
		setResult(a, fd, err)

	case OpOpenCreate:
		fd, err := unix.Open(a.Path, a.Flags|unix.O_CREAT, a.Mode)
		setResult(a, fd, err)

	case OpClose:
		err := unix.Close(a.Fd)
		setResult(a, 0, err)

	case OpRead:
		n, err := unix.Read(a.Fd, a.Buf)
		setResult(a, n, err)

	case OpPread:
		n, err := unix.Pread(a.Fd, a.Buf, a.Offset)
		setResult(a, n, err)

	case OpWrite:
		n, err := unix.Write(a.Fd, a.Buf)
		setResult(a, n, err)

	case OpPwrite:
		n, err := unix.Pwrite(a.Fd, a.Buf, a.Offset)
		setResult(a, n, err)

	case OpFstat:
		err := unix.Fstat(a.Fd, &a.Stat)
		setResult(a, 0, err)

	case OpLstat:
		err := unix.Lstat(a.Path, &a.Stat)
		setResult(a, 0, err)

	case OpFsync:
		err := unix.Fsync(a.Fd)
		setResult(a, 0, err)

	case OpMkdir:
		err := unix.Mkdir(a.Path, a.Mode)
		setResult(a, 0, err)

	case OpUnlink:
		err := unix.Unlink(a.Path)
		setResult(a, 0, err)

	case OpRename:
		err := unix.Rename(a.Path, a.Path2)
		setResult(a, 0, err)

	case OpReadlink:
		n, err := unix.Readlink(a.Path, a.Buf)
		setResult(a, n, err)

	case OpConnect:
		err := unix.Connect(a.Fd, a.SockAddr)
		setResult(a, 0, err)

	case OpAccept:
		fd, _, err := unix.Accept4(a.Fd, 0)
		setResult(a, fd, err)

	case OpSend:
		// send(2) is sendto(2) with no destination address.
		err := unix.Sendto(a.Fd, a.Buf, a.Flags, nil)
		if err != nil {
			setResult(a, -1, err)
		} else {
			setResult(a, len(a.Buf), nil)
		}

	case OpRecv:
		n, _, err := unix.Recvfrom(a.Fd, a.Buf, a.Flags)
		setResult(a, n, err)

	default:
		a.Result = -1
		a.Errno = unix.ENOSYS
	}
}

// completeAction reports a's result to the response fiber over the
// response socket and records completion metrics. It writes a's registry
// token, not the pointer itself, onto the byte stream.
func (c *Context) completeAction(a *Action, latency time.Duration) {
	success := a.Errno == 0
	var moved uint64
	if a.Buf != nil && a.Result > 0 {
		moved = uint64(a.Result)
	}
	c.cfg.Observer.ObserveCompletion(uint8(a.tag), moved, uint64(latency.Nanoseconds()), success)

	a.published.Store(true)

	var tokBuf [8]byte
	binary.LittleEndian.PutUint64(tokBuf[:], uint64(a.token))

	for {
		_, err := unix.Write(c.respW, tokBuf[:])
		if err == nil {
			return
		}
		if err == unix.EINTR {
			continue
		}
		c.cfg.Logger.WithOp("respond").WithError(err).Error("failed to write completion token to response channel")
		return
	}
}

func setResult(a *Action, n int, err error) {
	a.Result = n
	if err != nil {
		if errno, ok := err.(unix.Errno); ok {
			a.Errno = syscall.Errno(errno)
		} else {
			a.Errno = syscall.Errno(unix.EIO)
		}
	} else {
		a.Errno = 0
	}
}
