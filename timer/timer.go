// Package timer implements the hierarchical timer service: a dedicated
// worker goroutine that sleeps until the earliest deadline in a min-heap
// of timeouts and intervals, honoring in-callback insert/cancel/
// reschedule of any timer including itself. The worker never holds the
// service lock across a callback invocation, so callbacks may call back
// into the service API without deadlock.
package timer

import (
	"errors"
	"sync"
	"time"

	"github.com/vela-systems/netkit/internal/minheap"
	"github.com/vela-systems/netkit/internal/netlog"
)

var log = netlog.For("timer")

// ErrNotFound is returned by Cancel when the handle's timer has already
// fired or was already cancelled.
var ErrNotFound = errors.New("timer: handle not found")

// Callback is invoked with the opaque data supplied at registration.
type Callback func(data any)

// Handle is an opaque, externally-held reference to a node inside the
// service's heap. It stays valid for the timer's lifetime: one firing for
// a timeout, until Cancel for an interval.
type Handle struct {
	node *node
}

type node struct {
	mu sync.Mutex

	el *minheap.Element

	callback Callback
	data     any

	// interval-only fields; period == 0 means this node is a one-shot
	// timeout.
	period         time.Duration
	baseTime       time.Time
	count          int  // 0 == fire forever, >0 == fires remaining
	hadFiniteCount bool // true if this interval was created with Count > 0

	dead bool
}

// Service is a dedicated timer worker: a min-heap of timer nodes, a
// mutex, and a goroutine that sleeps on the root deadline.
type Service struct {
	mu     sync.Mutex
	heap   minheap.Heap
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	latest int64 // deadline of the current root; 0 when the heap is empty
}

// New constructs a Service. Call Start to spawn its worker.
func New() *Service {
	return &Service{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start spawns the dedicated worker goroutine.
func (s *Service) Start() {
	go s.run()
}

// AddTimeoutParams configures a one-shot timer.
type AddTimeoutParams struct {
	Deadline time.Time
	Callback Callback
	Data     any
}

// AddTimeout inserts a one-shot timer. A Deadline already in the past
// fires on the worker's next loop iteration.
func (s *Service) AddTimeout(p AddTimeoutParams) (*Handle, error) {
	return s.insert(&node{callback: p.Callback, data: p.Data}, p.Deadline)
}

// AddIntervalParams configures a recurring timer.
type AddIntervalParams struct {
	BaseTime time.Time
	Period   time.Duration
	// Count == 0 fires forever until Cancel; Count > 0 fires exactly
	// Count times and then auto-removes.
	Count    int
	Callback Callback
	Data     any
}

// AddInterval inserts a recurring timer.
func (s *Service) AddInterval(p AddIntervalParams) (*Handle, error) {
	n := &node{
		callback:       p.Callback,
		data:           p.Data,
		period:         p.Period,
		baseTime:       p.BaseTime,
		count:          p.Count,
		hadFiniteCount: p.Count > 0,
	}
	return s.insert(n, p.BaseTime)
}

func (s *Service) insert(n *node, deadline time.Time) (*Handle, error) {
	el := &minheap.Element{Deadline: deadline.UnixNano(), Owner: n}
	n.el = el

	s.mu.Lock()
	wasRoot := s.heap.Peek()
	s.heap.Push(el)
	s.latest = s.heap.Peek().Deadline
	becameRoot := s.heap.Peek() == el
	s.mu.Unlock()

	if wasRoot == nil || becameRoot {
		s.signal()
	}
	return &Handle{node: n}, nil
}

// Cancel removes h's timer from wherever it currently sits in the heap.
// Returns ErrNotFound if the timer already fired or was already
// cancelled — by design, a cancel racing with a callback that has
// already been popped (but not yet run) observes the timer as gone.
func (s *Service) Cancel(h *Handle) error {
	n := h.node
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dead {
		return ErrNotFound
	}

	s.mu.Lock()
	if n.period <= 0 && n.el.Index < 0 {
		// The worker already popped this one-shot: it counts as fired,
		// and its callback still runs.
		s.mu.Unlock()
		return ErrNotFound
	}
	// Index is -1 if the worker already popped this interval (between
	// firings); Remove is then a no-op and marking the node dead stops
	// any re-insertion.
	s.heap.Remove(n.el.Index)
	n.dead = true
	if root := s.heap.Peek(); root != nil {
		s.latest = root.Deadline
	} else {
		s.latest = 0
	}
	s.mu.Unlock()
	return nil
}

// Open returns a *Handle's node under the timer lock, so a running
// callback may mutate another timer's deadline/period/count/data before
// calling Close. Returns nil if the timer already fired or was
// cancelled. Must be paired with Close.
func (s *Service) Open(h *Handle) *Params {
	n := h.node
	n.mu.Lock()
	if n.dead {
		n.mu.Unlock()
		return nil
	}
	return &Params{n: n}
}

// Params is the mutable view into an open timer, returned by Open.
type Params struct {
	n *node
}

// Deadline returns the timer's current absolute deadline.
func (p *Params) Deadline() time.Time { return time.Unix(0, p.n.el.Deadline) }

// SetDeadline mutates the deadline; takes effect when Close re-heapifies.
func (p *Params) SetDeadline(t time.Time) { p.n.el.Deadline = t.UnixNano() }

// Data returns the opaque data pointer.
func (p *Params) Data() any { return p.n.data }

// SetData replaces the opaque data pointer.
func (p *Params) SetData(d any) { p.n.data = d }

// Period returns the interval period (zero for a one-shot timeout).
func (p *Params) Period() time.Duration { return p.n.period }

// SetPeriod mutates an interval's period.
func (p *Params) SetPeriod(d time.Duration) { p.n.period = d }

// Count returns the interval's remaining fire count (0 == forever).
func (p *Params) Count() int { return p.n.count }

// SetCount mutates an interval's remaining fire count.
func (p *Params) SetCount(c int) { p.n.count = c; p.n.hadFiniteCount = c > 0 }

// Close releases the lock Open acquired, re-heapifying the node at its
// (possibly mutated) deadline and re-signalling the worker if needed.
func (s *Service) Close(p *Params) {
	if p == nil {
		return
	}
	n := p.n
	s.mu.Lock()
	s.heap.Fix(n.el.Index)
	if root := s.heap.Peek(); root != nil {
		s.latest = root.Deadline
	}
	s.mu.Unlock()
	s.signal()
	n.mu.Unlock()
}

// Latest returns the deadline of the current heap root as Unix
// nanoseconds (time.Time.UnixNano, wall clock), or 0 when no timers are
// scheduled. Deadlines are stored and compared in this form, not on the
// monotonic clock.
func (s *Service) Latest() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *Service) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// StopSync requests shutdown and blocks until the worker goroutine has
// exited. Must not be called from within a callback running on this
// service's own worker (would self-join and deadlock).
func (s *Service) StopSync() {
	s.stopAsyncOnce()
	<-s.done
}

// StopAsync requests shutdown without waiting for the worker to exit.
func (s *Service) StopAsync() {
	s.stopAsyncOnce()
}

func (s *Service) stopAsyncOnce() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *Service) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		root := s.heap.Peek()
		s.mu.Unlock()

		if root == nil {
			select {
			case <-s.stop:
				return
			case <-s.wake:
				continue
			}
		}

		d := time.Until(time.Unix(0, root.Deadline))
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}

		s.fireDue()
	}
}

// fireDue pops and runs every timer whose deadline has passed, releasing
// the lock around each callback invocation so the callback may safely
// call back into the timer API (add/cancel/open/close any timer,
// including itself).
func (s *Service) fireDue() {
	for {
		s.mu.Lock()
		root := s.heap.Peek()
		if root == nil || root.Deadline > nowNano() {
			s.mu.Unlock()
			return
		}
		s.heap.Pop()
		if next := s.heap.Peek(); next != nil {
			s.latest = next.Deadline
		} else {
			s.latest = 0
		}
		s.mu.Unlock()

		s.runNode(root.Owner.(*node))
	}
}

func nowNano() int64 { return time.Now().UnixNano() }

// safeCall invokes a timer callback with panic recovery: a misbehaving
// callback must not take down the worker goroutine, since every other
// pending timer on this service depends on it still being alive.
func safeCall(cb Callback, data any) {
	defer func() {
		if r := recover(); r != nil {
			log.Err().Any("recovered", r).Log("timer callback panicked")
		}
	}()
	cb(data)
}

// runNode fires a popped node's callback, re-inserting it if it is an
// interval with remaining fire count. The lock is not held during the
// callback so it may safely call back into the Service's API.
func (s *Service) runNode(n *node) {
	n.mu.Lock()
	if n.dead {
		// A Cancel won the race after the pop; the callback never runs.
		n.mu.Unlock()
		return
	}
	if n.period <= 0 {
		// One-shot: the handle dies before the callback runs.
		n.dead = true
		cb, data := n.callback, n.data
		n.mu.Unlock()
		if cb != nil {
			safeCall(cb, data)
		}
		return
	}

	// Interval: advance base time and decrement count before running the
	// callback. count == 0 fires forever; count > 0 fires exactly count
	// times and then auto-removes.
	n.baseTime = n.baseTime.Add(n.period)
	if n.count > 0 {
		n.count--
	}
	cb, data := n.callback, n.data
	endOfLife := n.count == 0 && n.hadFiniteCount
	n.mu.Unlock()

	if cb != nil {
		safeCall(cb, data)
	}

	n.mu.Lock()
	if endOfLife || n.dead {
		n.dead = true
		n.mu.Unlock()
		return
	}
	next := n.baseTime
	n.mu.Unlock()
	s.reinsert(n, next)
}

// reinsert pushes an already-constructed node (an interval due for
// another cycle) back into the heap at a new deadline. The node lock is
// held across the push so a concurrent Cancel either lands before (the
// node is dead, nothing is pushed) or after (the pushed element is
// removed normally); both lock in node-then-service order.
func (s *Service) reinsert(n *node, deadline time.Time) {
	n.mu.Lock()
	if n.dead {
		n.mu.Unlock()
		return
	}
	el := &minheap.Element{Deadline: deadline.UnixNano(), Owner: n}
	n.el = el

	s.mu.Lock()
	root := s.heap.Peek()
	s.heap.Push(el)
	s.latest = s.heap.Peek().Deadline
	becameRoot := s.heap.Peek() == el
	s.mu.Unlock()
	n.mu.Unlock()

	if root == nil || becameRoot {
		s.signal()
	}
}
