package minheap

import "testing"

func TestHeapOrdersByDeadline(t *testing.T) {
	var h Heap
	deadlines := []int64{50, 10, 30, 5, 100}
	for _, d := range deadlines {
		h.Push(&Element{Deadline: d})
	}
	var got []int64
	for h.Len() > 0 {
		got = append(got, h.Pop().Deadline)
	}
	want := []int64{5, 10, 30, 50, 100}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBackRefTracksIndexAcrossSwaps(t *testing.T) {
	var h Heap
	var lastIndex int
	target := &Element{Deadline: 100, Ref: func(i int) { lastIndex = i }}
	h.Push(target)
	if target.Index != lastIndex {
		t.Fatalf("index mismatch after push: %d vs %d", target.Index, lastIndex)
	}

	// Push smaller deadlines to force target to move within the heap.
	for _, d := range []int64{90, 80, 70, 60} {
		h.Push(&Element{Deadline: d})
	}
	if target.Index != lastIndex {
		t.Fatalf("back-ref out of sync: element.Index=%d last callback index=%d", target.Index, lastIndex)
	}
	if h.items[target.Index] != target {
		t.Fatalf("element.Index does not locate the element in the backing slice")
	}
}

func TestRemoveByCurrentIndex(t *testing.T) {
	var h Heap
	a := &Element{Deadline: 10}
	b := &Element{Deadline: 20}
	c := &Element{Deadline: 5}
	h.Push(a)
	h.Push(b)
	h.Push(c)

	removed := h.Remove(b.Index)
	if removed != b {
		t.Fatalf("Remove(b.Index) returned %v, want b", removed)
	}
	if b.Index != -1 {
		t.Fatalf("removed element should have Index -1, got %d", b.Index)
	}
	if h.Len() != 2 {
		t.Fatalf("heap length = %d, want 2", h.Len())
	}
}

func TestFixAfterDeadlineMutation(t *testing.T) {
	var h Heap
	a := &Element{Deadline: 100}
	b := &Element{Deadline: 200}
	h.Push(a)
	h.Push(b)

	b.Deadline = 1
	h.Fix(b.Index)

	if h.Peek() != b {
		t.Fatal("Fix should have moved b to the root after lowering its deadline")
	}
}
