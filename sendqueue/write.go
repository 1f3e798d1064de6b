package sendqueue

import (
	"golang.org/x/sys/unix"
)

// WriteOnce issues exactly one non-blocking write syscall for the
// current head frame (send(2) for a byte frame, the platform's sendfile
// equivalent for a file frame) and, on any bytes actually transmitted,
// drains that many bytes from the queue itself. EINTR is left for the
// caller's loop to retry; EAGAIN is reported back so the caller can call
// Finish and wait for the next writable readiness event; any other
// error is surfaced so the caller can escalate to an abortive close.
//
// WriteOnce does nothing and returns (0, nil) if the queue is empty.
func (q *Queue) WriteOnce(fd int) (n int64, err error) {
	if q.IsEmpty() {
		return 0, nil
	}
	f := &q.frames[0]

	var wrote int
	if f.isFile() {
		wrote, err = sendFile(fd, f)
	} else {
		wrote, err = unix.Write(fd, f.Data[f.Offset:])
	}
	if wrote > 0 {
		q.Drain(int64(wrote))
	}
	if err != nil {
		return int64(wrote), err
	}
	return int64(wrote), nil
}
