package reactor

import (
	"errors"
	"sync"
	"time"

	"github.com/vela-systems/netkit/internal/netlog"
)

var log = netlog.For("reactor")

// Standard errors.
var (
	// ErrStopped is returned by Add/Modify/Remove once Stop has been
	// called.
	ErrStopped = errors.New("reactor: stopped")
	// ErrAlreadyRegistered is returned by Add when fd is already in the
	// table: at most one handler per fd.
	ErrAlreadyRegistered = errors.New("reactor: fd already registered")
	// ErrNotRegistered is returned by Modify/Remove for an unknown fd.
	ErrNotRegistered = errors.New("reactor: fd not registered")
)

// platformPoller is implemented once per OS (poller_linux.go,
// poller_darwin.go), wrapping the kernel's readiness-notification
// primitive plus a wakeup mechanism the background goroutine can be
// pulled out of its wait syscall by.
type platformPoller interface {
	init() error
	closePoller() error
	add(fd int, ev Events) error
	modify(fd int, ev Events) error
	remove(fd int) error
	// wait blocks until events are ready or the wakeup fd fires,
	// appending ready (fd, Events) pairs to dst and returning the
	// extended slice.
	wait(dst []readyEvent) ([]readyEvent, error)
	// wake interrupts a concurrent wait call.
	wake() error
}

type readyEvent struct {
	fd int
	ev Events
}

type entry struct {
	handler Handler
	mask    Events
}

// Reactor owns a platform event-multiplexing handle and a fd-to-handler
// table, plus the single background goroutine that drives them. All
// Handler callbacks are invoked only on that goroutine.
type Reactor struct {
	poller platformPoller

	mu      sync.Mutex
	entries map[int]*entry
	stopped bool

	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a Reactor and initializes its platform poller, but does
// not yet start the background goroutine; call Start for that.
func New() (*Reactor, error) {
	r := &Reactor{
		entries: make(map[int]*entry),
		done:    make(chan struct{}),
	}
	p, err := newPlatformPoller()
	if err != nil {
		return nil, err
	}
	r.poller = p
	if err := r.poller.init(); err != nil {
		return nil, err
	}
	return r, nil
}

// Start spawns the background goroutine that runs the readiness loop.
func (r *Reactor) Start() {
	go r.run()
}

// Add registers fd with the given initial event mask and handler. At
// most one handler per fd; Add fails with ErrAlreadyRegistered if fd is
// already registered.
func (r *Reactor) Add(fd int, mask Events, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	if _, ok := r.entries[fd]; ok {
		return ErrAlreadyRegistered
	}
	if err := r.poller.add(fd, mask); err != nil {
		return err
	}
	r.entries[fd] = &entry{handler: h, mask: mask}
	return nil
}

// Modify changes the registered event mask for fd.
func (r *Reactor) Modify(fd int, mask Events) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	e, ok := r.entries[fd]
	if !ok {
		return ErrNotRegistered
	}
	if err := r.poller.modify(fd, mask); err != nil {
		return err
	}
	e.mask = mask
	return nil
}

// Remove unregisters fd. It does not close fd; the caller owns the
// descriptor's lifetime.
func (r *Reactor) Remove(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	if _, ok := r.entries[fd]; !ok {
		return ErrNotRegistered
	}
	delete(r.entries, fd)
	return r.poller.remove(fd)
}

// Stop requests the background goroutine to exit; Add/Modify/Remove
// become errors immediately. Stop does not block — call Free to join
// the goroutine and release the poller handle.
func (r *Reactor) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.stopOnce.Do(func() {
		if err := r.poller.wake(); err != nil {
			log.Warning().Err(err).Log("reactor: failed to wake background goroutine on stop")
		}
	})
}

// Free joins the background goroutine (Stop must have been called
// first, or this blocks forever) and releases the poller handle.
func (r *Reactor) Free() error {
	<-r.done
	return r.poller.closePoller()
}

func (r *Reactor) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Reactor) lookup(fd int) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[fd]
	if !ok {
		return nil, false
	}
	return e.handler, true
}

func (r *Reactor) run() {
	defer close(r.done)
	var buf [256]readyEvent
	for {
		if r.isStopped() {
			return
		}
		events, err := r.poller.wait(buf[:0])
		if err != nil {
			log.Err().Err(err).Log("reactor: poller wait failed")
			time.Sleep(time.Millisecond)
			continue
		}
		if r.isStopped() {
			return
		}
		for _, re := range events {
			r.dispatch(re.fd, re.ev)
		}
	}
}

// dispatch invokes the registered handler for fd and honors a CloseFD
// action by removing fd and invoking the handler once more with Hup.
func (r *Reactor) dispatch(fd int, ev Events) {
	h, ok := r.lookup(fd)
	if !ok {
		return
	}
	if h.HandleEvent(r, fd, ev) == CloseFD {
		_ = r.Remove(fd)
		h.HandleEvent(r, fd, Hup)
	}
}
