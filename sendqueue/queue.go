// Package sendqueue implements the per-socket outbound segmented byte
// queue: an ordered sequence of send frames, each either an in-memory
// byte buffer or a file descriptor slice (for zero-copy transfer), drained
// from the head as the socket's writer becomes ready. A short write
// leaves the head frame live with its offset advanced, so the next
// readiness event resumes exactly where the kernel stopped.
package sendqueue

import (
	"errors"
	"os"
)

// ErrOutOfMemory names the failure of growing the backing slice. No
// function in this package returns it: Go's append does not report
// allocation failure. It exists so enqueue call sites can handle
// rejection and success symmetrically.
var ErrOutOfMemory = errors.New("sendqueue: out of memory")

// Frame is one unit of outbound data: either a byte buffer or a file
// descriptor slice. Exactly one of the two payload fields is meaningful,
// selected by File being non-nil.
type Frame struct {
	// Bytes payload. Offset bytes have already been transmitted.
	Data   []byte
	Offset int

	// File payload: when File != nil, the frame is the zero-copy file
	// span [FileOffset, FileLen) sent via sendfile(2). FileLen is the end
	// offset within the file; FileOffset advances as bytes are sent.
	File      *os.File
	FileOffset int64
	FileLen    int64

	// FreeOnDrain: when true and this is a byte frame, Data is dropped
	// (eligible for GC) once the frame is fully drained; when true and
	// this is a file frame, File is closed on drain or on Free.
	FreeOnDrain bool
	// FreeOnErr governs what Add does with a frame that is rejected:
	// when true, the frame's resources are released by Add itself
	// (matching FreeOnDrain's ownership semantics) before returning the
	// error, keeping caller error paths symmetric with the success path.
	FreeOnErr bool
	// ReadOnly marks a byte frame whose Data must never be mutated by
	// the queue; enforced by convention (Go slices have no const), kept
	// here purely as documentation of caller intent.
	ReadOnly bool
}

func (f *Frame) isFile() bool { return f.File != nil }

// length returns the total byte length of the frame.
func (f *Frame) length() int64 {
	if f.isFile() {
		return f.FileLen
	}
	return int64(len(f.Data))
}

// offset returns the current drain offset of the frame.
func (f *Frame) offset() int64 {
	if f.isFile() {
		return f.FileOffset
	}
	return int64(f.Offset)
}

// remaining reports how many bytes of this frame have not yet drained.
func (f *Frame) remaining() int64 { return f.length() - f.offset() }

// retired reports whether this frame has been fully drained.
func (f *Frame) retired() bool { return f.offset() >= f.length() }

func (f *Frame) release() {
	if f.isFile() {
		if f.FreeOnDrain && f.File != nil {
			_ = f.File.Close()
		}
		return
	}
	if f.FreeOnDrain {
		f.Data = nil
	}
}

// Release applies the frame's ownership flags (FreeOnDrain) as if it had
// just been retired, without it ever having been added to a Queue. Used
// by callers that reject a frame outright (e.g. a socket already
// closing) but still owe the caller the FreeOnErr release.
func (f *Frame) Release() { f.release() }

// Queue is an ordered sequence of live send frames plus a running byte
// counter. The zero value is a usable empty queue.
type Queue struct {
	frames []Frame
	bytes  int64
}

// Bytes returns the number of not-yet-drained payload bytes across all
// live frames.
func (q *Queue) Bytes() int64 { return q.bytes }

// IsEmpty reports whether the queue has no live frames.
func (q *Queue) IsEmpty() bool { return len(q.frames) == 0 }

// Add appends frame to the tail of the queue.
//
// Add only fails for a malformed frame (offset past length). On error,
// the frame is released according to FreeOnErr before returning, so
// callers never have to remember to free on both branches themselves.
func (q *Queue) Add(f Frame) error {
	if f.length() < f.offset() {
		if f.FreeOnErr {
			f.release()
		}
		return errors.New("sendqueue: frame offset exceeds length")
	}
	q.frames = append(q.frames, f)
	q.bytes += f.remaining()
	return nil
}

// Drain consumes exactly n bytes from the head of the queue, advancing
// offsets and retiring frames whose remaining length is exhausted.
// Retired frames are released according to their ownership flags and
// dropped from the head of the queue, so after Drain the head frame (if
// any) is always live.
//
// Drain panics if n exceeds q.Bytes(); callers are expected to never
// attempt to drain more than has been enqueued (the reactor write path
// only drains what the syscall actually reported as written).
func (q *Queue) Drain(n int64) {
	if n > q.bytes {
		panic("sendqueue: drain exceeds queued bytes")
	}
	q.bytes -= n
	for n > 0 {
		f := &q.frames[0]
		rem := f.remaining()
		if n < rem {
			f.advance(n)
			return
		}
		n -= rem
		f.advance(rem)
		f.release()
		q.advanceHead()
	}
}

func (f *Frame) advance(n int64) {
	if f.isFile() {
		f.FileOffset += n
	} else {
		f.Offset += int(n)
	}
}

// advanceHead drops every retired frame at the head of the queue by
// re-slicing past it.
func (q *Queue) advanceHead() {
	for len(q.frames) > 0 && q.frames[0].retired() {
		q.frames = q.frames[1:]
	}
}

// Finish removes any retired frames still in the queue (for example a
// zero-length frame added behind live ones), compacting the backing
// slice in place. Drain already drops retired frames from the head.
// Callers invoke it after a partial write.
func (q *Queue) Finish() {
	live := q.frames[:0]
	for i := range q.frames {
		if !q.frames[i].retired() {
			live = append(live, q.frames[i])
		}
	}
	q.frames = live
}

// Free retires all frames, releasing each according to its ownership
// flags, and empties the queue. Used by abortive close.
func (q *Queue) Free() {
	for i := range q.frames {
		q.frames[i].release()
	}
	q.frames = nil
	q.bytes = 0
}
