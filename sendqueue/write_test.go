package sendqueue

import (
	"syscall"
	"testing"
)

func socketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	return fds[0], fds[1]
}

func TestWriteOnceDrainsOnSuccessfulWrite(t *testing.T) {
	a, b := socketpair(t)
	defer syscall.Close(a)
	defer syscall.Close(b)

	var q Queue
	if err := q.Add(Frame{Data: []byte("hello")}); err != nil {
		t.Fatal(err)
	}

	n, err := q.WriteOnce(a)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("wrote %d bytes, want 5", n)
	}
	if !q.IsEmpty() {
		t.Fatal("queue should be empty after full drain")
	}

	buf := make([]byte, 16)
	got, err := syscall.Read(b, buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:got]) != "hello" {
		t.Fatalf("peer read %q, want hello", buf[:got])
	}
}

func TestWriteOnceOnEmptyQueueIsNoop(t *testing.T) {
	a, b := socketpair(t)
	defer syscall.Close(a)
	defer syscall.Close(b)

	var q Queue
	n, err := q.WriteOnce(a)
	if err != nil || n != 0 {
		t.Fatalf("WriteOnce on empty queue = (%d, %v), want (0, nil)", n, err)
	}
}
