//go:build darwin

package reactor

import (
	"golang.org/x/sys/unix"
)

// kqueuePoller is the Darwin platformPoller backend: one kqueue fd,
// paired EVFILT_READ/EVFILT_WRITE registrations per fd (kqueue has no
// combined read+write filter the way epoll does), and a pipe-based
// wakeup since EVFILT_USER trigger semantics vary across Darwin
// versions.
type kqueuePoller struct {
	kq      int
	wakeR   int
	wakeW   int
	changes []unix.Kevent_t
}

func newPlatformPoller() (platformPoller, error) {
	return &kqueuePoller{}, nil
}

func (p *kqueuePoller) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	p.kq = kq

	fds := [2]int{}
	if err := unix.Pipe(fds[:]); err != nil {
		_ = unix.Close(kq)
		return err
	}
	p.wakeR, p.wakeW = fds[0], fds[1]
	if err := unix.SetNonblock(p.wakeR, true); err != nil {
		_ = unix.Close(p.wakeR)
		_ = unix.Close(p.wakeW)
		_ = unix.Close(kq)
		return err
	}

	ev := unix.Kevent_t{
		Ident:  uint64(p.wakeR),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}
	if _, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		_ = unix.Close(p.wakeR)
		_ = unix.Close(p.wakeW)
		_ = unix.Close(kq)
		return err
	}

	return nil
}

func (p *kqueuePoller) closePoller() error {
	_ = unix.Close(p.wakeR)
	_ = unix.Close(p.wakeW)
	return unix.Close(p.kq)
}

func (p *kqueuePoller) add(fd int, ev Events) error {
	return p.applyMask(fd, ev, unix.EV_ADD|unix.EV_ENABLE|unix.EV_CLEAR)
}

func (p *kqueuePoller) modify(fd int, ev Events) error {
	// kqueue has no in-place modify; re-register both filters, enabling
	// or disabling each per the new mask.
	changes := []unix.Kevent_t{
		kevent(fd, unix.EVFILT_READ, flagsFor(ev&In != 0)),
		kevent(fd, unix.EVFILT_WRITE, flagsFor(ev&Out != 0)),
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func flagsFor(enabled bool) uint16 {
	if enabled {
		return unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR
	}
	return unix.EV_DELETE
}

func (p *kqueuePoller) applyMask(fd int, ev Events, baseFlags uint16) error {
	var changes []unix.Kevent_t
	if ev&In != 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_READ, baseFlags))
	}
	if ev&Out != 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_WRITE, baseFlags))
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func kevent(fd int, filter int16, flags uint16) unix.Kevent_t {
	return unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}
}

func (p *kqueuePoller) remove(fd int) error {
	changes := []unix.Kevent_t{
		kevent(fd, unix.EVFILT_READ, unix.EV_DELETE),
		kevent(fd, unix.EVFILT_WRITE, unix.EV_DELETE),
	}
	// Best-effort: a filter not currently registered for fd yields
	// ENOENT, which we ignore since remove is idempotent per fd.
	_, _ = unix.Kevent(p.kq, changes, nil, nil)
	return nil
}

func (p *kqueuePoller) wake() error {
	_, err := unix.Write(p.wakeW, []byte{1})
	return err
}

func (p *kqueuePoller) wait(dst []readyEvent) ([]readyEvent, error) {
	if cap(p.changes) == 0 {
		p.changes = make([]unix.Kevent_t, 256)
	}
	n, err := unix.Kevent(p.kq, nil, p.changes, nil)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}

	merged := make(map[int]Events, n)
	var order []int
	for i := 0; i < n; i++ {
		ke := p.changes[i]
		fd := int(ke.Ident)
		if fd == p.wakeR {
			p.drainWake()
			continue
		}
		ev := kqueueToEvents(ke)
		if _, ok := merged[fd]; !ok {
			order = append(order, fd)
		}
		merged[fd] |= ev
	}
	for _, fd := range order {
		dst = append(dst, readyEvent{fd: fd, ev: merged[fd]})
	}
	return dst, nil
}

func (p *kqueuePoller) drainWake() {
	var buf [64]byte
	for {
		_, err := unix.Read(p.wakeR, buf[:])
		if err != nil {
			return
		}
	}
}

func kqueueToEvents(ke unix.Kevent_t) Events {
	var ev Events
	switch ke.Filter {
	case unix.EVFILT_READ:
		ev |= In
	case unix.EVFILT_WRITE:
		ev |= Out
	}
	if ke.Flags&unix.EV_EOF != 0 {
		if ke.Filter == unix.EVFILT_READ {
			ev |= RDHup
		} else {
			ev |= Hup
		}
	}
	if ke.Flags&unix.EV_ERROR != 0 {
		ev |= Err
	}
	return ev
}

