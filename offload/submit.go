package offload

import (
	"context"

	"github.com/baruch/xcoro/fiber"
)

// Submit hands a to the worker pool and blocks the calling fiber until a
// worker dispatches it and the response fiber reports completion. On
// return (nil error), a's output fields (Result, Stat, Errno) are
// populated. While the submitter is parked, every other fiber keeps
// running.
//
// Cancellation of an in-flight call is not supported: once a is queued,
// the worker that claims it runs the syscall to completion and still
// owns a's buffers and registry slot until then, so ctx is consulted
// only before a becomes visible to any worker. Timeouts belong a layer
// above, by not submitting.
func Submit(ctx context.Context, c *Context, a *Action) error {
	fiber.MustFrom(ctx) // documents the programming-contract: only fibers submit

	if err := ctx.Err(); err != nil {
		return err
	}

	a.wait = c.sched.NewWaitHandle()
	a.token = c.registry.acquire(a)

	// The idle check must read the count from before this submission:
	// zero means the response fiber observed nothing outstanding and
	// fully suspended, so nothing but this explicit resume will ever
	// wake it. Resuming before the increment is safe because the
	// response fiber, once it runs, re-examines the socket and the
	// count from scratch; there is no state it could see stale.
	wasIdle := c.numActiveIOs == 0

	c.queue.push(a)
	c.cfg.Observer.ObserveQueueDepth(c.queueDepthHint())

	if wasIdle {
		c.sched.Resume(c.responseFiber)
	}

	c.numActiveIOs++
	c.cfg.Observer.ObserveActiveIOs(c.numActiveIOs)

	a.wait.Park()
	return nil
}

// queueDepthHint returns a best-effort submission queue depth for
// observability only; it is never used for correctness decisions.
func (c *Context) queueDepthHint() uint32 {
	c.queue.mu.Lock()
	defer c.queue.mu.Unlock()
	n := uint32(0)
	for cur := c.queue.head; cur != nil; cur = cur.next {
		n++
	}
	return n
}
