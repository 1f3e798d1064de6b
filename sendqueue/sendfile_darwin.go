//go:build darwin

package sendqueue

import "golang.org/x/sys/unix"

// sendFile transmits as much of the file frame's remaining span as the
// kernel accepts in one call, via Darwin's sendfile(2). Darwin's sendfile
// takes the source fd before the destination fd and reports the
// transferred length through an in/out pointer rather than a return
// value, unlike Linux's.
func sendFile(fd int, f *Frame) (int, error) {
	remaining := f.FileLen - f.FileOffset
	if remaining <= 0 {
		return 0, nil
	}
	length := remaining
	_, err := unix.Sendfile(int(f.File.Fd()), fd, f.FileOffset, &length, nil, 0)
	return int(length), err
}
