package sendqueue

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestAddDrainConcatenatesInOrder(t *testing.T) {
	var q Queue
	a := []byte("hello ")
	b := []byte("world")

	if err := q.Add(Frame{Data: a}); err != nil {
		t.Fatal(err)
	}
	if err := q.Add(Frame{Data: b}); err != nil {
		t.Fatal(err)
	}
	if q.Bytes() != int64(len(a)+len(b)) {
		t.Fatalf("Bytes() = %d, want %d", q.Bytes(), len(a)+len(b))
	}

	var got []byte
	for !q.IsEmpty() {
		f := &q.frames[0]
		chunk := f.Data[f.Offset:]
		got = append(got, chunk...)
		q.Drain(int64(len(chunk)))
		q.Finish()
	}

	if !bytes.Equal(got, []byte("hello world")) {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
	if !q.IsEmpty() {
		t.Fatal("queue should be empty after draining all bytes")
	}
}

func TestPartialDrainLeavesResidualOffset(t *testing.T) {
	var q Queue
	if err := q.Add(Frame{Data: []byte("0123456789")}); err != nil {
		t.Fatal(err)
	}
	q.Drain(4)
	if q.Bytes() != 6 {
		t.Fatalf("Bytes() = %d, want 6", q.Bytes())
	}
	if q.frames[0].Offset != 4 {
		t.Fatalf("frame offset = %d, want 4", q.frames[0].Offset)
	}
	q.Drain(6)
	if !q.IsEmpty() {
		t.Fatal("queue should be empty")
	}
}

func TestFinishCompactsRetiredFrames(t *testing.T) {
	var q Queue
	_ = q.Add(Frame{Data: []byte("aa")})
	_ = q.Add(Frame{Data: []byte("bb")})
	q.Drain(2) // retires frame 0, leaves it in place
	if len(q.frames) != 2 {
		t.Fatalf("expected retired frame to remain until Finish, len=%d", len(q.frames))
	}
	q.Finish()
	if len(q.frames) != 1 {
		t.Fatalf("Finish should compact retired frames, len=%d", len(q.frames))
	}
}

func TestFreeReleasesOwnedFrames(t *testing.T) {
	var q Queue
	_ = q.Add(Frame{Data: []byte("owned"), FreeOnDrain: true})
	q.Free()
	if !q.IsEmpty() {
		t.Fatal("Free should empty the queue")
	}
}

func TestFileFrameDrainClosesOwnedFD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload")
	if err := os.WriteFile(path, []byte("filedata"), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}

	var q Queue
	if err := q.Add(Frame{File: f, FileLen: 8, FreeOnDrain: true}); err != nil {
		t.Fatal(err)
	}
	q.Drain(8)
	if !q.IsEmpty() {
		t.Fatal("file frame should retire after draining its full length")
	}
	if err := f.Close(); err == nil {
		t.Fatal("expected file to already be closed by Drain's release")
	}
}

func TestDrainPanicsOnOverdraw(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when draining more bytes than queued")
		}
	}()
	var q Queue
	_ = q.Add(Frame{Data: []byte("ab")})
	q.Drain(3)
}
