package offload

import (
	"context"
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/baruch/xcoro/fiber"
)

// tokenSize is the wire size of one completion token on the response
// channel. Each worker writes exactly one token per completed action in
// a single write, far below PIPE_BUF, so tokens never interleave.
const tokenSize = 8

// responseState is the response fiber's parking mode. The fiber is never
// parked in more than one of these at a time.
type responseState int

const (
	// draining: actively reading completions off the response socket,
	// up to ReadBatch tokens per read, as fast as they arrive.
	stateDraining responseState = iota
	// fdParked: no completions pending; parked on the scheduler's
	// readiness engine for the response socket's read end.
	stateFdParked
	// fullySuspended: numActiveIOs is zero, so no worker can possibly
	// write a completion; suspended with no readiness registration at
	// all, so the scheduler can observe quiescence. Only a submitter's
	// explicit resume ends this state.
	stateFullySuspended
)

// responseLoop is the response fiber's body (see Init). It implements
// the four transitions between the three parking states:
//
//   - draining -> fdParked: a short or empty read with numActiveIOs > 0.
//   - fdParked -> draining: the scheduler reports the socket readable.
//   - draining -> fullySuspended: a short or empty read with
//     numActiveIOs == 0.
//   - fullySuspended -> draining: Submit resumes the fiber directly when
//     it observes the idle-to-busy transition.
//
// A full-buffer read stays in draining and reads again immediately; a
// short one parks instead of spinning. The active-IO check runs after the
// batch's decrements, so it sees the true post-batch count.
func (c *Context) responseLoop(ctx context.Context) {
	buf := make([]byte, c.cfg.ReadBatch*tokenSize)
	carry := 0 // bytes of a token split across reads (stream semantics)

	state := stateDraining

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch state {
		case stateDraining:
			n, err := unix.Read(c.respR, buf[carry:])
			if err == unix.EINTR {
				continue
			}

			goToSleep := false
			switch {
			case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
				goToSleep = true
			case err != nil:
				c.cfg.Logger.WithOp("response_loop").WithError(err).Error("response channel read failed")
				panic(fmt.Sprintf("offload: response channel read: %v", err))
			case n == 0:
				// EOF. The write end is held by every worker for the
				// life of the process; losing it leaves no correct way
				// to deliver completions.
				c.cfg.Logger.WithOp("response_loop").Error("response channel EOF")
				panic("offload: response channel EOF")
			default:
				total := carry + n
				for off := 0; off+tokenSize <= total; off += tokenSize {
					tok := uint32(binary.LittleEndian.Uint64(buf[off : off+tokenSize]))
					c.completeFromToken(tok)
				}
				carry = total % tokenSize
				copy(buf, buf[total-carry:total])
				if total < len(buf) {
					goToSleep = true
				}
			}

			if !goToSleep {
				continue
			}
			if c.numActiveIOs == 0 {
				state = stateFullySuspended
			} else {
				state = stateFdParked
			}

		case stateFdParked:
			if err := c.sched.WaitRead(ctx, c.respR); err != nil {
				c.cfg.Logger.WithOp("response_loop").WithError(err).Error("fd wait failed")
				return
			}
			state = stateDraining

		case stateFullySuspended:
			fiber.Suspend(ctx)
			state = stateDraining
		}
	}
}

// completeFromToken looks up the action named by tok, wakes its
// submitter, and releases the token. The decrement happens before the
// caller's park-or-suspend decision so the idle check at the end of a
// batch sees the post-batch count.
func (c *Context) completeFromToken(tok uint32) {
	a := c.registry.lookup(tok)
	if a == nil {
		c.cfg.Logger.WithOp("response_loop").Error("stale completion token", "token", tok)
		return
	}
	if !a.published.Load() {
		// Cannot happen: the worker publishes before writing the token.
		// The load itself is what matters, pairing with the worker's
		// store so the outputs written before it are visible here.
		c.cfg.Logger.WithOp("response_loop").Error("completion token arrived before its results", "token", tok)
		return
	}

	c.numActiveIOs--
	c.cfg.Observer.ObserveActiveIOs(c.numActiveIOs)

	wait := a.wait
	c.registry.release(tok)
	wait.Resume()
}
