//go:build linux

package tcptoolkit

import "golang.org/x/sys/unix"

// acceptNonblock accepts one pending connection on listenFd, returning it
// already non-blocking and close-on-exec via accept4(2)'s flags.
func acceptNonblock(listenFd int) (int, error) {
	return unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
}
