package offload

import (
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/baruch/xcoro/fiber"
)

var actionPool = sync.Pool{New: func() any { return &Action{} }}

// NewAction acquires an Action from the pool (allocating only on pool
// miss) and sets its tag. Callers outside this package (package shim)
// use this instead of constructing an Action literal, since the header
// fields are unexported.
func NewAction(tag Tag) *Action {
	a := actionPool.Get().(*Action)
	a.tag = tag
	return a
}

// Release returns a to the pool after its Submit has completed. It is
// safe, but not required, to call; forgetting to call it only costs an
// allocation on the next NewAction, it does not leak across the queue or
// registry since both drop their references to a before Submit returns.
func Release(a *Action) {
	a.reset()
	actionPool.Put(a)
}

// Tag is the discriminant of an Action: which offloaded syscall this
// record represents. The set is closed: adding a new
// offloaded syscall means adding a new Tag and a new case in dispatch,
// not a new record shape. Keeping the set closed keeps the worker's
// dispatch allocation-free and branch-predictable.
type Tag uint8

const (
	OpOpen Tag = iota
	OpOpenCreate
	OpClose
	OpRead
	OpPread
	OpWrite
	OpPwrite
	OpFstat
	OpLstat
	OpFsync
	OpMkdir
	OpUnlink
	OpRename
	OpReadlink
	OpConnect
	OpAccept
	OpSend
	OpRecv

	numTags
)

func (t Tag) String() string {
	switch t {
	case OpOpen:
		return "open"
	case OpOpenCreate:
		return "open_create"
	case OpClose:
		return "close"
	case OpRead:
		return "read"
	case OpPread:
		return "pread"
	case OpWrite:
		return "write"
	case OpPwrite:
		return "pwrite"
	case OpFstat:
		return "fstat"
	case OpLstat:
		return "lstat"
	case OpFsync:
		return "fsync"
	case OpMkdir:
		return "mkdir"
	case OpUnlink:
		return "unlink"
	case OpRename:
		return "rename"
	case OpReadlink:
		return "readlink"
	case OpConnect:
		return "connect"
	case OpAccept:
		return "accept"
	case OpSend:
		return "send"
	case OpRecv:
		return "recv"
	default:
		return "unknown"
	}
}

// Action is one outstanding offloaded call: a closed record carrying the
// header (wait handle, queue link, registry token), the discriminant, and
// every field any offloaded syscall might need for input or output. Only
// the fields relevant to Tag are populated for a given call; this is the
// flattened, allocation-free stand-in for a tagged union.
//
// Ownership: the submitting fiber owns the Action for the call's entire
// lifetime (acquired from the pool before Submit, released after Park
// returns). The queue, the worker that dispatches it, and the response
// fiber (via the registry token) all hold a borrowed reference; none of
// them retains it past the action's completion.
type Action struct {
	// header
	tag   Tag
	wait  *fiber.WaitHandle
	token uint32
	next  *Action // intrusive queue link; nil once dequeued

	// published is the worker-to-wire-thread memory barrier: the worker
	// release-stores it after filling the outputs, and the response
	// fiber acquire-loads it after reading the completion token. The
	// socket alone orders the token bytes, not the Go-level writes to
	// this record.
	published atomic.Bool

	// inputs
	Path     string
	Path2    string // Rename's new path
	Flags    int
	Mode     uint32
	Fd       int
	Buf      []byte
	Offset   int64
	SockAddr unix.Sockaddr

	// outputs
	Result int
	Stat   unix.Stat_t
	Errno  syscall.Errno
}

// reset clears an Action for reuse from the pool. Called by Release.
func (a *Action) reset() {
	a.tag = 0
	a.wait = nil
	a.token = 0
	a.next = nil
	a.published.Store(false)
	a.Path = ""
	a.Path2 = ""
	a.Flags = 0
	a.Mode = 0
	a.Fd = 0
	a.Buf = nil
	a.Offset = 0
	a.SockAddr = nil
	a.Result = 0
	a.Stat = unix.Stat_t{}
	a.Errno = 0
}
