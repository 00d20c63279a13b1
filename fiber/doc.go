// Package fiber implements the cooperative, single-threaded scheduling
// core that the offload package depends on: a wire loop (Scheduler.Run)
// that serialises every fiber behind one thread-locked run loop, a
// single-shot WaitHandle rendezvous, and an epoll-backed readiness
// engine for fibers parked on a file descriptor.
//
// Each fiber's body does run on its own goroutine, but only as a stack
// carrier: the goroutine is blocked on its gate except while the
// scheduler has explicitly handed it the wire thread, so at most one
// fiber executes at any instant and control transfers only at the
// declared suspension points (Suspend, WaitHandle.Park,
// Scheduler.WaitRead). This is deliberate; the point is a
// deterministic, cooperatively-scheduled control-flow core, not
// goroutine-style parallelism. Code that wants the Go runtime to
// schedule it freely should not be a fiber.
package fiber
