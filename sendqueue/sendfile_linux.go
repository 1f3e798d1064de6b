//go:build linux

package sendqueue

import "golang.org/x/sys/unix"

// sendFile transmits as much of the file frame's remaining span as the
// kernel accepts in one call, via Linux's sendfile(2).
func sendFile(fd int, f *Frame) (int, error) {
	off := f.FileOffset
	remaining := f.FileLen - f.FileOffset
	if remaining <= 0 {
		return 0, nil
	}
	n, err := unix.Sendfile(fd, int(f.File.Fd()), &off, int(remaining))
	return n, err
}
