// Package minheap implements a binary min-heap keyed by a 64-bit
// deadline, where every element carries a back-reference slot that is
// kept in sync with the element's current index as it moves within the
// heap. This lets an external holder (a Handle) locate and mutate its
// own entry after insertion, which is what the timer package needs: a
// callback may reschedule a timer other than itself while that timer is
// still sitting somewhere inside the heap array.
package minheap

import "container/heap"

// Element is the data a caller stores in the heap. Deadline is the sort
// key (ascending). Index is maintained by the heap itself; callers should
// treat it as read-only except via Ref.
type Element struct {
	Deadline int64
	Index    int
	// Owner is opaque caller data, round-tripped unchanged; it lets a
	// caller holding only an *Element (e.g. after Pop) recover whatever
	// richer structure the element is embedded in or referenced from.
	Owner any
	// Ref, if non-nil, is called every time this element's Index changes,
	// including on insertion and on removal (with index -1).
	Ref func(index int)
}

// Heap is a min-heap of *Element.
type Heap struct {
	items items
}

type items []*Element

func (h items) Len() int           { return len(h) }
func (h items) Less(i, j int) bool { return h[i].Deadline < h[j].Deadline }

func (h items) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h.setIndex(i)
	h.setIndex(j)
}

func (h items) setIndex(i int) {
	h[i].Index = i
	if h[i].Ref != nil {
		h[i].Ref(i)
	}
}

func (h *items) Push(x any) {
	e := x.(*Element)
	e.Index = len(*h)
	*h = append(*h, e)
}
func (h *items) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	e.Index = -1
	return e
}

// Len returns the number of elements currently in the heap.
func (h *Heap) Len() int { return h.items.Len() }

// Peek returns the root element (minimum deadline) without removing it,
// or nil if the heap is empty.
func (h *Heap) Peek() *Element {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

// Push inserts e into the heap, setting e.Index and invoking e.Ref as it
// settles into place.
func (h *Heap) Push(e *Element) {
	heap.Push(&h.items, e)
	if e.Ref != nil {
		e.Ref(e.Index)
	}
}

// Pop removes and returns the root element, or nil if the heap is empty.
func (h *Heap) Pop() *Element {
	if len(h.items) == 0 {
		return nil
	}
	e := heap.Pop(&h.items).(*Element)
	if e.Ref != nil {
		e.Ref(-1)
	}
	return e
}

// Remove removes the element currently at index i. Use Element.Index,
// kept current via Ref, to locate it; the heap may have moved it since
// it was inserted.
func (h *Heap) Remove(i int) *Element {
	if i < 0 || i >= len(h.items) {
		return nil
	}
	e := heap.Remove(&h.items, i).(*Element)
	if e.Ref != nil {
		e.Ref(-1)
	}
	return e
}

// Fix re-establishes heap order after the Deadline of the element at
// index i has been changed in place.
func (h *Heap) Fix(i int) {
	if i < 0 || i >= len(h.items) {
		return
	}
	heap.Fix(&h.items, i)
}
