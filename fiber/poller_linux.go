//go:build linux

package fiber

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// poller is the scheduler's readiness engine: an epoll instance holding
// a one-shot read registration per fd-parked fiber. The scheduler only
// consults it when the ready queue is empty, so a blocking epoll_wait
// here never starves a runnable fiber.
type poller struct {
	epfd    int
	waiters map[int32]*Fiber
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("fiber: epoll_create1: %w", err)
	}
	return &poller{epfd: epfd, waiters: make(map[int32]*Fiber)}, nil
}

// armRead registers fd for a single read-readiness event
// (EPOLLIN|EPOLLONESHOT) on behalf of f. Readiness is level-checked at
// arm time, so data written to fd before the registration still fires
// the event; nothing is lost to an arm/write race. After the oneshot
// fires the kernel keeps the entry disabled, hence the MOD-then-ADD
// dance on rearm.
func (p *poller) armRead(fd int, f *Fiber) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLONESHOT, Fd: int32(fd)}
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	if err == unix.ENOENT {
		err = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	}
	if err != nil {
		return fmt.Errorf("fiber: epoll_ctl arm: %w", err)
	}
	p.waiters[int32(fd)] = f
	return nil
}

// pending returns the number of fibers currently parked on fd
// readiness. Zero pending plus an empty ready queue is the scheduler's
// quiescence condition.
func (p *poller) pending() int {
	return len(p.waiters)
}

// wait blocks until at least one registered fd is readable and calls
// ready for each fiber whose fd fired, dropping its registration.
func (p *poller) wait(ready func(*Fiber)) error {
	var events [8]unix.EpollEvent
	for {
		n, err := unix.EpollWait(p.epfd, events[:], -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("fiber: epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			fd := events[i].Fd
			if f, ok := p.waiters[fd]; ok {
				delete(p.waiters, fd)
				ready(f)
			}
		}
		if n > 0 {
			return nil
		}
	}
}
