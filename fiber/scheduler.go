package fiber

import (
	"context"
	"runtime"
)

// Scheduler is the wire loop: the goroutine that calls Run dispatches
// ready fibers in FIFO order, one at a time, falling back to the
// readiness poller when none are ready. At most one fiber executes at
// any instant; control changes hands only at explicit suspension points
// (Suspend, WaitHandle.Park, WaitRead), never by preemption.
//
// All scheduler state is owned by the wire thread. Nothing here takes a
// lock: fibers are mutually serialised by construction, and the only
// cross-thread traffic in the system (offload workers) goes through a
// file descriptor the poller watches, not through scheduler state.
type Scheduler struct {
	readyHead *Fiber
	readyTail *Fiber
	running   *Fiber

	// yield is the fiber-to-scheduler half of the handoff; each Fiber's
	// gate is the scheduler-to-fiber half. Both are unbuffered, so a
	// handoff is also a happens-before edge and exactly one side of the
	// pair is ever runnable.
	yield chan struct{}

	poll    *poller
	baseCtx context.Context
}

// New creates a scheduler with an empty ready queue and a fresh
// readiness poller.
func New() (*Scheduler, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	return &Scheduler{yield: make(chan struct{}), poll: p}, nil
}

// Spawn creates a fiber that will run fn and appends it to the ready
// queue. It may be called before Run starts or from a running fiber;
// never from another OS thread while Run is active. The fiber's body
// receives a context derived from Run's, annotated so Current and
// MustFrom resolve to the new Fiber.
func (s *Scheduler) Spawn(name string, fn func(ctx context.Context)) *Fiber {
	f := &Fiber{
		Name:  name,
		s:     s,
		fn:    fn,
		state: stateReady,
		gate:  make(chan struct{}),
	}
	s.pushReady(f)
	return f
}

// Run executes fibers until the system is quiescent: the ready queue is
// empty and no fiber is waiting on fd readiness. Fibers that are still
// suspended at that point can never run again (nothing is left to
// resume them) and are abandoned; there is no graceful teardown.
//
// Run locks the calling goroutine to its OS thread for the duration, so
// the loop itself never migrates; fibers execute only while it has
// explicitly handed them control.
func (s *Scheduler) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	s.baseCtx = ctx

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := s.popReady()
		if f == nil {
			if s.poll.pending() == 0 {
				return nil
			}
			if err := s.poll.wait(s.readyFromPoll); err != nil {
				return err
			}
			continue
		}
		s.dispatch(f)
	}
}

// Resume makes a suspended fiber runnable again by appending it to the
// ready queue. Wire-thread only. Resuming a fiber that is not suspended
// (already ready, running, or done) is a no-op; the caller's condition
// will be re-examined when the fiber next runs anyway.
func (s *Scheduler) Resume(f *Fiber) {
	if f.state != stateSuspended {
		return
	}
	f.state = stateReady
	s.pushReady(f)
}

// WaitRead parks the calling fiber until fd is readable. The
// registration is one-shot: it exists only for the duration of the
// wait, so a fiber that is not parked here holds no readiness-engine
// state and does not keep the scheduler from detecting quiescence.
func (s *Scheduler) WaitRead(ctx context.Context, fd int) error {
	f := MustFrom(ctx)
	if s.running != f {
		panic("fiber: WaitRead called from outside the running fiber")
	}
	if err := s.poll.armRead(fd, f); err != nil {
		return err
	}
	s.suspendCurrent(stateFDWait)
	return nil
}

// dispatch hands the wire thread to f and blocks until f yields it back
// by suspending, waiting on an fd, or returning from its body. The
// fiber goroutine is started lazily on first dispatch so that its
// context can derive from Run's.
func (s *Scheduler) dispatch(f *Fiber) {
	f.state = stateRunning
	s.running = f

	if !f.started {
		f.started = true
		fctx := context.WithValue(s.baseCtx, fiberKey{}, f)
		go func() {
			<-f.gate
			f.fn(fctx)
			f.state = stateDone
			s.yield <- struct{}{}
		}()
	}

	f.gate <- struct{}{}
	<-s.yield
	s.running = nil
}

// suspendCurrent records why the running fiber is leaving the wire
// thread, yields to the scheduler, and blocks until the scheduler
// dispatches this fiber again.
func (s *Scheduler) suspendCurrent(st fiberState) {
	f := s.running
	f.state = st
	s.yield <- struct{}{}
	<-f.gate
}

func (s *Scheduler) readyFromPoll(f *Fiber) {
	if f.state != stateFDWait {
		return
	}
	f.state = stateReady
	s.pushReady(f)
}

func (s *Scheduler) pushReady(f *Fiber) {
	f.next = nil
	if s.readyTail == nil {
		s.readyHead, s.readyTail = f, f
	} else {
		s.readyTail.next = f
		s.readyTail = f
	}
}

func (s *Scheduler) popReady() *Fiber {
	f := s.readyHead
	if f == nil {
		return nil
	}
	s.readyHead = f.next
	if s.readyHead == nil {
		s.readyTail = nil
	}
	f.next = nil
	return f
}
