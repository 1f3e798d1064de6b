// Package pool implements the worker thread pool: a mutex-guarded FIFO
// work queue paired with a counting semaphore, and a fixed set of worker
// goroutines blocked on that semaphore. The queue is a chunked linked
// list with O(1) push and pop and sync.Pool chunk recycling, so a drain
// never shifts the backing storage.
package pool

import (
	"sync"

	"github.com/vela-systems/netkit/internal/netlog"
)

var log = netlog.For("pool")

const chunkSize = 128

// Item is one unit of work: a function plus the opaque data it closed
// over at submission time.
type Item struct {
	Fn   func(data any)
	Data any
}

type chunk struct {
	tasks   [chunkSize]Item
	next    *chunk
	readPos int
	pos     int
}

var chunkPool = sync.Pool{New: func() any { return &chunk{} }}

func newChunk() *chunk {
	c := chunkPool.Get().(*chunk)
	c.pos, c.readPos, c.next = 0, 0, nil
	return c
}

func returnChunk(c *chunk) {
	var zero Item
	for i := 0; i < c.pos; i++ {
		c.tasks[i] = zero
	}
	c.pos, c.readPos, c.next = 0, 0, nil
	chunkPool.Put(c)
}

// ring is the unexported chunked FIFO; callers of ring's methods must
// hold Pool.mu.
type ring struct {
	head   *chunk
	tail   *chunk
	length int
}

func (q *ring) push(it Item) {
	if q.tail == nil {
		q.tail = newChunk()
		q.head = q.tail
	}
	if q.tail.pos == len(q.tail.tasks) {
		newTail := newChunk()
		q.tail.next = newTail
		q.tail = newTail
	}
	q.tail.tasks[q.tail.pos] = it
	q.tail.pos++
	q.length++
}

func (q *ring) pop() (Item, bool) {
	if q.head == nil || q.head.readPos >= q.head.pos {
		if q.head != nil && q.head == q.tail {
			q.head.pos, q.head.readPos = 0, 0
		}
		return Item{}, false
	}
	it := q.head.tasks[q.head.readPos]
	q.head.tasks[q.head.readPos] = Item{}
	q.head.readPos++
	q.length--
	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos, q.head.readPos = 0, 0
		} else {
			old := q.head
			q.head = q.head.next
			returnChunk(old)
		}
	}
	return it, true
}

// Pool is a FIFO work queue guarded by a mutex, paired with a counting
// semaphore (a buffered channel token bucket) that worker goroutines
// block on. Shutdown is a cancellation flag plus N semaphore posts, one
// per worker, so every blocked worker observes it and exits.
type Pool struct {
	mu      sync.Mutex
	q       ring
	sema    chan struct{}
	workers int

	closedMu sync.Mutex
	closed   bool

	wg sync.WaitGroup
}

// New constructs a Pool and spawns n worker goroutines, each running the
// work loop (block on the semaphore, pop, run, repeat).
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{sema: make(chan struct{}, 1<<20), workers: workers}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.thread()
	}
	return p
}

// Add enqueues a work item and posts the semaphore once. Growth and post
// happen under the same lock, so a worker that observes a post always
// finds a work item.
func (p *Pool) Add(fn func(data any), data any) {
	p.mu.Lock()
	p.q.push(Item{Fn: fn, Data: data})
	p.sema <- struct{}{}
	p.mu.Unlock()
}

// TryWork performs a single non-blocking pop-and-run; it reports whether
// an item was found.
func (p *Pool) TryWork() bool {
	select {
	case <-p.sema:
	default:
		return false
	}
	return p.work()
}

// work pops and runs exactly one item; the caller has already taken a
// semaphore token. It returns false when that token had no item behind
// it (a shutdown post).
func (p *Pool) work() bool {
	p.mu.Lock()
	it, ok := p.q.pop()
	p.mu.Unlock()
	if !ok {
		// A semaphore post with no corresponding item is a shutdown
		// signal (see Shutdown).
		return false
	}
	safeRun(it)
	return true
}

func safeRun(it Item) {
	defer func() {
		if r := recover(); r != nil {
			log.Err().Any("recovered", r).Log("pool worker task panicked")
		}
	}()
	if it.Fn != nil {
		it.Fn(it.Data)
	}
}

// thread is the ready-made worker loop: block on the semaphore, run one
// item, repeat, until Shutdown's cancellation flag is observed.
func (p *Pool) thread() {
	defer p.wg.Done()
	for {
		<-p.sema
		if p.isClosed() {
			return
		}
		p.mu.Lock()
		it, ok := p.q.pop()
		p.mu.Unlock()
		if !ok {
			continue
		}
		safeRun(it)
	}
}

func (p *Pool) isClosed() bool {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()
	return p.closed
}

// Shutdown sets the cancellation flag and posts one semaphore token per
// worker so every blocked worker wakes, observes the flag, and exits.
// Shutdown does not wait for workers to finish in-flight items; call
// Free for that.
func (p *Pool) Shutdown() {
	p.closedMu.Lock()
	p.closed = true
	p.closedMu.Unlock()
	for i := 0; i < p.workers; i++ {
		p.sema <- struct{}{}
	}
}

// Free joins all worker goroutines. Shutdown must have been called with
// the pool's worker count first, or this blocks forever.
func (p *Pool) Free() {
	p.wg.Wait()
}
