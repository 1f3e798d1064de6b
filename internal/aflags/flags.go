// Package aflags provides an atomic bit-set primitive used as the single
// source of truth for the socket state machines in netkit: client,
// server-child, and listener sockets each store their state in one Word,
// mutated only through the accessors below.
//
// Word offers two memory-ordering flavors. The SeqCst methods go through
// the Go memory model's sequentially-consistent atomics. The Acq/Rel
// methods use the same underlying operations (Go does not expose weaker
// orderings than SeqCst on its atomic types) but are named distinctly so
// call sites document the ordering they actually require.
//
// Test is a masked load, not a compare-and-swap: it reports whether every
// bit in mask is set in a single load. Callers that need an atomic read-modify-
// transition of more than one bit must combine those bits into a single
// Set or Clear call; Word offers no multi-flag atomicity beyond that.
package aflags

import "sync/atomic"

// Word is a machine word of atomic bits.
type Word struct {
	v atomic.Uint64
}

// Set performs a sequentially-consistent bitwise-or, returning the value
// prior to the update.
func (w *Word) Set(mask uint64) (prev uint64) {
	for {
		old := w.v.Load()
		if w.v.CompareAndSwap(old, old|mask) {
			return old
		}
	}
}

// Clear performs a sequentially-consistent bitwise-and-not, returning the
// value prior to the update.
func (w *Word) Clear(mask uint64) (prev uint64) {
	for {
		old := w.v.Load()
		if w.v.CompareAndSwap(old, old&^mask) {
			return old
		}
	}
}

// Test returns true if all bits in mask are set in a single load.
func (w *Word) Test(mask uint64) bool {
	return w.v.Load()&mask == mask
}

// TestAny returns true if any bit in mask is set in a single load.
func (w *Word) TestAny(mask uint64) bool {
	return w.v.Load()&mask != 0
}

// Load returns the full word.
func (w *Word) Load() uint64 {
	return w.v.Load()
}

// Store overwrites the word unconditionally.
func (w *Word) Store(val uint64) {
	w.v.Store(val)
}

// SetAcq is an acquire/release-flavored alias for Set, named for call
// sites that cross a happens-before edge with a paired load elsewhere
// (e.g. close_guard synchronizing teardown arbitration). Go's atomic.Uint64
// CAS is already sequentially consistent; the name documents intent.
func (w *Word) SetAcq(mask uint64) (prev uint64) { return w.Set(mask) }

// ClearRel is the release-flavored alias for Clear, see SetAcq.
func (w *Word) ClearRel(mask uint64) (prev uint64) { return w.Clear(mask) }

// TestAcq is the acquire-flavored alias for Test, see SetAcq.
func (w *Word) TestAcq(mask uint64) bool { return w.Test(mask) }

// SetOnce sets mask and reports whether every bit in mask was clear
// before this call (i.e. prev&mask == 0).
// Used for single-transition invariants like "opened flips 0->1 exactly
// once" or arbitrating confirmed_free between two racing teardown paths.
func (w *Word) SetOnce(mask uint64) (won bool) {
	prev := w.Set(mask)
	return prev&mask == 0
}
