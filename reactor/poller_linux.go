//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// epollPoller is the Linux platformPoller backend: epoll_create1, one
// EpollEvent buffer, edge-triggered registration, and an eventfd used to
// pull the loop out of EpollWait. It keeps no fd-indexed side table of
// its own; the Reactor's entries map is the single source of truth.
type epollPoller struct {
	epfd  int
	wakeR int
	wakeW int
	evbuf []unix.EpollEvent
}

func newPlatformPoller() (platformPoller, error) {
	return &epollPoller{}, nil
}

func (p *epollPoller) init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = epfd

	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return err
	}
	p.wakeR, p.wakeW = wakeFd, wakeFd

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, p.wakeR, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(p.wakeR),
	}); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return err
	}

	p.evbuf = make([]unix.EpollEvent, 256)
	return nil
}

func (p *epollPoller) closePoller() error {
	_ = unix.Close(p.wakeR)
	return unix.Close(p.epfd)
}

func (p *epollPoller) add(fd int, ev Events) error {
	e := &unix.EpollEvent{Events: toEpoll(ev), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, e)
}

func (p *epollPoller) modify(fd int, ev Events) error {
	e := &unix.EpollEvent{Events: toEpoll(ev), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, e)
}

func (p *epollPoller) remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) wake() error {
	var one [8]byte
	one[7] = 1
	_, err := unix.Write(p.wakeW, one[:])
	return err
}

func (p *epollPoller) wait(dst []readyEvent) ([]readyEvent, error) {
	n, err := unix.EpollWait(p.epfd, p.evbuf, -1)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	for i := 0; i < n; i++ {
		fd := int(p.evbuf[i].Fd)
		if fd == p.wakeR {
			p.drainWake()
			continue
		}
		dst = append(dst, readyEvent{fd: fd, ev: fromEpoll(p.evbuf[i].Events)})
	}
	return dst, nil
}

func (p *epollPoller) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakeR, buf[:])
		if err != nil {
			return
		}
	}
}

// toEpoll converts Events to the edge-triggered epoll event mask.
// EPOLLRDHUP carries RDHup (half-close detection).
func toEpoll(ev Events) uint32 {
	var e uint32 = unix.EPOLLET
	if ev&In != 0 {
		e |= unix.EPOLLIN
	}
	if ev&Out != 0 {
		e |= unix.EPOLLOUT
	}
	e |= unix.EPOLLRDHUP
	return e
}

func fromEpoll(mask uint32) Events {
	var ev Events
	if mask&unix.EPOLLIN != 0 {
		ev |= In
	}
	if mask&unix.EPOLLOUT != 0 {
		ev |= Out
	}
	if mask&unix.EPOLLERR != 0 {
		ev |= Err
	}
	if mask&unix.EPOLLHUP != 0 {
		ev |= Hup
	}
	if mask&unix.EPOLLRDHUP != 0 {
		ev |= RDHup
	}
	return ev
}
