package fiber

// WaitHandle is a single-shot rendezvous: one fiber parks on it with
// Park, exactly one Resume makes the parked fiber runnable again. A
// Resume that arrives before the Park is latched: the handle is
// level-latched, not edge-triggered, so no wakeup is lost to the
// classic "signal before wait" race.
//
// All methods run on the wire thread (Park from the parking fiber,
// Resume from whichever fiber completes the rendezvous), so the handle
// needs no synchronization of its own.
type WaitHandle struct {
	s         *Scheduler
	parked    *Fiber
	signalled bool
}

// NewWaitHandle returns a fresh, unsignalled wait handle.
func (s *Scheduler) NewWaitHandle() *WaitHandle {
	return &WaitHandle{s: s}
}

// Resume signals the handle: if a fiber is parked, it becomes runnable;
// otherwise the signal is latched and the next Park returns
// immediately. A second Resume on an already-signalled, not-yet-parked
// handle is a no-op; callers must not rely on more than one outstanding
// action per handle, per the offload core's one-record-one-handle
// invariant.
func (w *WaitHandle) Resume() {
	if f := w.parked; f != nil {
		w.parked = nil
		w.s.Resume(f)
		return
	}
	w.signalled = true
}

// Park blocks the calling fiber until Resume is called. A Resume that
// already happened returns immediately.
func (w *WaitHandle) Park() {
	if w.signalled {
		w.signalled = false
		return
	}
	if w.s.running == nil {
		panic("fiber: Park called from outside a running fiber")
	}
	w.parked = w.s.running
	w.s.suspendCurrent(stateSuspended)
}

// Reset clears a latched signal so the handle can be reused for a
// wholly new wait. Only meaningful while no fiber is parked.
func (w *WaitHandle) Reset() {
	w.signalled = false
}
