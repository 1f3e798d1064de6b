//go:build darwin

package tcptoolkit

import "golang.org/x/sys/unix"

// acceptNonblock accepts one pending connection on listenFd and applies
// O_NONBLOCK/FD_CLOEXEC afterward, since accept4(2) does not exist on
// Darwin — only plain accept(2) does.
func acceptNonblock(listenFd int) (int, error) {
	fd, _, err := unix.Accept(listenFd)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}
