package fiber

import (
	"context"
	"fmt"
)

type fiberKey struct{}

// fiberState is where a fiber currently stands with respect to the wire
// loop. Mutated only by the side of the gate/yield handoff that holds
// control, so no synchronization is needed.
type fiberState uint8

const (
	stateReady fiberState = iota
	stateRunning
	stateSuspended
	stateFDWait
	stateDone
)

// Fiber is one cooperatively-scheduled execution context. Its body runs
// on a dedicated goroutine, but that goroutine only ever executes while
// the scheduler has handed it the wire thread; the rest of the time it
// is blocked on its gate. The Fiber value is what the offload core
// resumes and what shims use to assert they are being called from fiber
// context rather than from a worker (see MustFrom).
type Fiber struct {
	Name string

	s       *Scheduler
	fn      func(ctx context.Context)
	state   fiberState
	next    *Fiber        // ready-queue link
	gate    chan struct{} // scheduler-to-fiber handoff
	started bool
}

// Current returns the Fiber associated with ctx, if any.
func Current(ctx context.Context) (*Fiber, bool) {
	f, ok := ctx.Value(fiberKey{}).(*Fiber)
	return f, ok
}

// MustFrom returns the Fiber associated with ctx, panicking if ctx was not
// created by Spawn. Shims must be called from fiber context, never from a
// worker goroutine: a worker recursing into Submit would be a programming
// bug, not a runtime condition worth a recoverable error.
func MustFrom(ctx context.Context) *Fiber {
	f, ok := Current(ctx)
	if !ok {
		panic(fmt.Sprintf("fiber: %T called without a fiber-bearing context; worker goroutines must not call offload shims", ctx))
	}
	return f
}

// Suspend parks the calling fiber until some other fiber calls
// Scheduler.Resume with its handle. Used by the response fiber when it
// has fully drained and no I/O is outstanding: the fiber holds no
// readiness registration while suspended, so the scheduler can observe
// true quiescence.
func Suspend(ctx context.Context) {
	f := MustFrom(ctx)
	if f.s.running != f {
		panic("fiber: Suspend called from outside the running fiber")
	}
	f.s.suspendCurrent(stateSuspended)
}
