package offload

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/baruch/xcoro"
	"github.com/baruch/xcoro/fiber"
	"github.com/baruch/xcoro/internal/logging"
)

// Config configures a Context.
type Config struct {
	// NumWorkers is the fixed size of the blocking-call worker pool.
	// Defaults to 4 if zero.
	NumWorkers int

	// Logger receives structured diagnostics. Defaults to logging.Default().
	Logger *logging.Logger

	// Observer receives completion/gauge observations. Defaults to
	// xcoro.NoOpObserver{}.
	Observer xcoro.Observer

	// RegistryHint sizes the registry's initial backing slab.
	RegistryHint int

	// ReadBatch is the maximum number of completion tokens the response
	// fiber pulls off the response socket per read. Defaults to 32.
	ReadBatch int
}

func (c Config) withDefaults() Config {
	if c.NumWorkers <= 0 {
		c.NumWorkers = 4
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	if c.Observer == nil {
		c.Observer = xcoro.NoOpObserver{}
	}
	if c.RegistryHint <= 0 {
		c.RegistryHint = 64
	}
	if c.ReadBatch <= 0 {
		c.ReadBatch = 32
	}
	return c
}

// Context owns one offload core: the submission queue, the registry, the
// worker pool, the response channel, and the response fiber. One Context
// typically serves an entire process; its fiber-facing operations are
// Submit (package-level, via package shim) and nothing else.
type Context struct {
	cfg Config

	sched    *fiber.Scheduler
	queue    *submitQueue
	registry *registry

	respR int // response socket, read end (worker pool writes to respW)
	respW int

	// numActiveIOs counts submitted-but-not-yet-resumed actions. It is
	// read and written only on the wire thread (submitters increment,
	// the response fiber decrements), and the cooperative discipline
	// serialises those, so it needs no synchronization.
	numActiveIOs int64

	responseFiber *fiber.Fiber

	// workerWG tracks worker exits for a teardown path that is never
	// reached in normal operation; a Context lives for the process
	// lifetime.
	workerWG sync.WaitGroup
}

// Init creates and starts a Context on s: it opens the response
// socketpair, spawns the worker pool, and spawns the response fiber.
// Call it from the wire thread: before s.Run starts, or from a running
// fiber. Construction is the one point where response-channel setup can
// still fail gracefully, so errors are returned rather than fatal;
// after Init, loss of the channel has no safe continuation.
func Init(s *fiber.Scheduler, cfg Config) (*Context, error) {
	cfg = cfg.withDefaults()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("offload: socketpair: %w", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, fmt.Errorf("offload: set nonblock: %w", err)
	}

	c := &Context{
		cfg:      cfg,
		sched:    s,
		queue:    newSubmitQueue(),
		registry: newRegistry(cfg.RegistryHint),
		respR:    fds[0],
		respW:    fds[1],
	}

	c.workerWG.Add(cfg.NumWorkers)
	for i := 0; i < cfg.NumWorkers; i++ {
		go c.workerLoop(i)
	}

	c.responseFiber = s.Spawn("offload-response", c.responseLoop)

	return c, nil
}

// Logger returns the Context's configured logger.
func (c *Context) Logger() *logging.Logger { return c.cfg.Logger }

// ActiveIOs returns the current count of submitted-but-not-yet-completed
// actions. Meaningful only on the wire thread, or once Run has returned.
func (c *Context) ActiveIOs() int64 { return c.numActiveIOs }
