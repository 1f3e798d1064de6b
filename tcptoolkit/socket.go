// Package tcptoolkit implements the TCP socket and server state machine:
// non-blocking connect, a per-connection outbound send queue with
// partial-write recovery, ordered half-close, and deferred teardown that
// arbitrates between user-initiated and reactor-internal close paths.
package tcptoolkit

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/vela-systems/netkit/internal/aflags"
	"github.com/vela-systems/netkit/internal/netlog"
	"github.com/vela-systems/netkit/reactor"
	"github.com/vela-systems/netkit/resolver"
	"github.com/vela-systems/netkit/sendqueue"
)

var log = netlog.For("tcptoolkit")

// EventKind enumerates the closed set of socket lifecycle events.
type EventKind int

const (
	// EventOpen fires once, the first time the socket becomes writable
	// (client or server child). A listener (Server) gets no EventOpen.
	EventOpen EventKind = iota
	// EventData fires when the socket is readable; the handler is
	// expected to call Read until it returns would-block.
	EventData
	// EventCanSend fires when the socket is writable and the caller
	// opted out of the default inline-drain behavior (see
	// Config.ManualDrain).
	EventCanSend
	// EventReadClose fires when the peer half-closes (TCP FIN on the
	// read side only).
	EventReadClose
	// EventClose fires exactly once, after the socket has been removed
	// from its reactor and before resource teardown. Err() reports the
	// cause.
	EventClose
	// EventDeinit fires during teardown, after EventClose, before the
	// fd is closed.
	EventDeinit
	// EventFree fires exactly once, as the very last event in a
	// socket's lifetime.
	EventFree
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventData:
		return "data"
	case EventCanSend:
		return "can_send"
	case EventReadClose:
		return "read_close"
	case EventClose:
		return "close"
	case EventDeinit:
		return "deinit"
	case EventFree:
		return "free"
	default:
		return "unknown"
	}
}

// Handler reacts to a Socket's lifecycle events. Exactly one method,
// taking the event kind; callers inspect the Socket itself (Read, Err,
// etc.) for any event-specific payload.
type Handler interface {
	HandleSocketEvent(s *Socket, kind EventKind)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(s *Socket, kind EventKind)

func (f HandlerFunc) HandleSocketEvent(s *Socket, kind EventKind) { f(s, kind) }

// Kind distinguishes a socket's role; fixed at construction.
type Kind int

const (
	KindClient Kind = iota
	KindServerChild
	KindListener
)

// flag bits, backed by internal/aflags.Word. The confirmed-free
// arbitration between user-invoked Free and internal teardown is a
// sync.Once (Socket.freeOnce): the first caller proceeds, concurrent
// callers block until it is done.
const (
	flagOpened uint64 = 1 << iota
	flagClosing
	flagClosingFast
	flagCloseGuard
	flagCloseNotified
)

// Standard errors surfaced to callers.
var (
	// ErrUnreachable is returned by Dial when every resolved candidate
	// address failed to start a connection attempt.
	ErrUnreachable = errors.New("tcptoolkit: no candidate address reachable")
	// ErrInvalidArgument is returned by constructors called with neither
	// a usable address nor a hostname+port pair.
	ErrInvalidArgument = errors.New("tcptoolkit: invalid argument")
)

// Config configures optional Socket behavior.
type Config struct {
	// ManualDrain, when true, fires EventCanSend on write-readiness
	// instead of the default of draining the send queue inline.
	ManualDrain bool
	// AutoCloseOnReadClose, when true, calls Close automatically after
	// firing EventReadClose.
	AutoCloseOnReadClose bool
}

// Socket is the common client/server-child/listener state machine.
type Socket struct {
	kind Kind

	mu      sync.Mutex
	fd      int
	flags   aflags.Word
	queue   sendqueue.Queue
	handler Handler
	cfg     Config

	r *reactor.Reactor

	lastErr error

	freeOnce sync.Once
}

// Fd returns the underlying file descriptor, or -1 once the socket has
// been freed.
func (s *Socket) Fd() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fd
}

// Kind reports the socket's fixed role.
func (s *Socket) Kind() Kind { return s.kind }

// SetHandler installs h as the socket's event handler. Used by
// Server.materialize's ServerHandler.OnAccept callback to attach a
// handler to the freshly accepted child before it is bound to a
// reactor; also usable to replace a client socket's handler.
func (s *Socket) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Err returns the cause of the most recent close, valid from EventClose
// onward.
func (s *Socket) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func tcpSockaddr(addr *net.TCPAddr) (unix.Sockaddr, int, error) {
	if addr == nil {
		return nil, 0, ErrInvalidArgument
	}
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}
	ip6 := addr.IP.To16()
	if ip6 == nil {
		return nil, 0, ErrInvalidArgument
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], ip6)
	return sa, unix.AF_INET6, nil
}

// DialTCP creates a non-blocking client socket and begins connecting to
// addr, registering it with r. The connect outcome (success, refused,
// timed out) is delivered via EventOpen / EventClose on the reactor
// goroutine: any of success, in-progress, or would-block from
// connect(2) leads to the same registration.
func DialTCP(r *reactor.Reactor, addr *net.TCPAddr, handler Handler, cfg Config) (*Socket, error) {
	sa, family, err := tcpSockaddr(addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	applyDefaultSockopts(fd)

	s := &Socket{kind: KindClient, fd: fd, handler: handler, cfg: cfg, r: r}

	// EINTR/EPIPE/ECONNRESET at connect time are retried a few times
	// before giving up on this candidate; in-progress and would-block
	// proceed to registration like success.
	for attempt := 0; ; attempt++ {
		err = unix.Connect(fd, sa)
		switch err {
		case unix.EINTR, unix.EPIPE, unix.ECONNRESET:
			if attempt < 3 {
				continue
			}
		}
		break
	}
	if err != nil && err != unix.EINPROGRESS && err != unix.EAGAIN {
		_ = unix.Close(fd)
		return nil, err
	}

	if err := r.Add(fd, reactor.In|reactor.Out|reactor.RDHup, s); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return s, nil
}

// Dial resolves hostname and begins connecting to the first candidate
// address that accepts a connection attempt, advancing through the
// resolver's candidate list on immediate connect failure. Candidates
// that fail asynchronously (after registration) surface via EventClose
// and are not retried. Returns ErrUnreachable when every candidate
// fails to start, and ErrInvalidArgument for an empty hostname.
func Dial(r *reactor.Reactor, hostname string, port int, handler Handler, cfg Config) (*Socket, error) {
	if hostname == "" {
		return nil, ErrInvalidArgument
	}
	addrs, err := resolver.ResolveSync(context.Background(), hostname, strconv.Itoa(port), resolver.Hints{})
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		tcp, ok := a.(*net.TCPAddr)
		if !ok {
			continue
		}
		s, err := DialTCP(r, tcp, handler, cfg)
		if err == nil {
			return s, nil
		}
	}
	return nil, ErrUnreachable
}

// applyDefaultSockopts disables Nagle so a single-byte Send reaches the
// peer without coalescing delay. Best-effort; a socket that rejects the
// option (e.g. an AF_UNIX fd in tests) still works.
func applyDefaultSockopts(fd int) {
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}

// newChildSocket wraps an already-accepted, already-nonblocking fd as a
// server-child Socket. Used by Server's accept loop.
func newChildSocket(r *reactor.Reactor, fd int, cfg Config) *Socket {
	applyDefaultSockopts(fd)
	return &Socket{kind: KindServerChild, fd: fd, cfg: cfg, r: r}
}

var _ reactor.Handler = (*Socket)(nil)

// HandleEvent implements reactor.Handler, translating readiness events
// into the socket lifecycle: Err is read first and becomes the close
// cause; the first Out flips opened and fires EventOpen; In fires
// EventData; Hup tears down; Out drains the queue (or fires
// EventCanSend under ManualDrain); RDHup fires EventReadClose.
func (s *Socket) HandleEvent(r *reactor.Reactor, fd int, ev reactor.Events) reactor.Action {
	s.mu.Lock()

	if ev&reactor.Err != 0 {
		errno := s.getSockErrorLocked()
		s.mu.Unlock()
		s.teardown(errno)
		return reactor.Continue
	}

	if !s.flags.Test(flagOpened) && ev&reactor.Out != 0 {
		s.flags.Set(flagOpened)
		handler := s.handler
		s.mu.Unlock()
		if handler != nil {
			handler.HandleSocketEvent(s, EventOpen)
		}
		s.mu.Lock()

		if errno := s.getSockErrorLocked(); errno != nil {
			s.mu.Unlock()
			s.teardown(errno)
			return reactor.Continue
		}

		if s.flags.Test(flagClosingFast) {
			s.mu.Unlock()
			s.teardown(nil)
			return reactor.Continue
		}
		if s.flags.Test(flagClosing) && s.queue.IsEmpty() {
			s.maybeShutdownWRLocked()
		}
	}

	if ev&reactor.In != 0 {
		handler := s.handler
		s.mu.Unlock()
		if handler != nil {
			handler.HandleSocketEvent(s, EventData)
		}
		s.mu.Lock()
	}

	if ev&reactor.Hup != 0 {
		s.mu.Unlock()
		s.teardown(nil)
		return reactor.Continue
	}

	if ev&reactor.Out != 0 {
		if s.cfg.ManualDrain {
			handler := s.handler
			s.mu.Unlock()
			if handler != nil {
				handler.HandleSocketEvent(s, EventCanSend)
			}
			s.mu.Lock()
		} else {
			code := s.sendBufferedLocked()
			if code == -2 {
				s.mu.Unlock()
				s.teardown(s.lastErr)
				return reactor.Continue
			}
			if code == -1 {
				s.queue.Finish()
			}
		}
	}

	if ev&reactor.RDHup != 0 {
		handler := s.handler
		auto := s.cfg.AutoCloseOnReadClose
		s.mu.Unlock()
		if handler != nil {
			handler.HandleSocketEvent(s, EventReadClose)
		}
		if auto {
			_ = s.Close()
		}
		return reactor.Continue
	}

	s.mu.Unlock()
	return reactor.Continue
}

// getSockErrorLocked reads SO_ERROR; caller holds s.mu.
func (s *Socket) getSockErrorLocked() error {
	errno, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// maybeShutdownWRLocked issues shutdown(WR) exactly once; caller holds
// s.mu.
func (s *Socket) maybeShutdownWRLocked() {
	if s.flags.SetOnce(flagCloseGuard) {
		_ = unix.Shutdown(s.fd, unix.SHUT_WR)
	}
}

// sendBufferedLocked drains the queue by issuing one write syscall per
// live frame until empty or would-block. Returns 0 (empty), -1
// (would-block), or -2 (fatal; s.lastErr is set and flagClosingFast is
// set). When the queue empties while flagClosing is set, issues
// shutdown(WR) exactly once; the eventual teardown waits for the peer's
// EOF. Caller holds s.mu.
func (s *Socket) sendBufferedLocked() int {
	for !s.queue.IsEmpty() {
		_, err := s.queue.WriteOnce(s.fd)
		if err == nil {
			continue
		}
		switch err {
		case unix.EINTR:
			continue
		case unix.EAGAIN, unix.EWOULDBLOCK:
			return -1
		case unix.EPIPE, unix.ECONNRESET:
			s.flags.Set(flagClosingFast)
			s.queue.Free()
			s.lastErr = unix.EPIPE
			return -2
		default:
			s.flags.Set(flagClosingFast)
			s.lastErr = err
			return -2
		}
	}

	if s.flags.Test(flagClosing) {
		s.maybeShutdownWRLocked()
	}
	return 0
}

// Send enqueues frame for transmission. Any already-buffered frames are
// drained first; the new frame is then appended and drained inline as
// far as the kernel accepts it, with the residual left queued for the
// next write-readiness event. A socket that is closing (gracefully or
// abortively) rejects the frame with EPIPE, releasing it per FreeOnErr.
func (s *Socket) Send(frame sendqueue.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flags.TestAny(flagClosing | flagClosingFast) {
		if frame.FreeOnErr {
			frame.Release()
		}
		return unix.EPIPE
	}

	if code := s.sendBufferedLocked(); code == -2 {
		if frame.FreeOnErr {
			frame.Release()
		}
		return s.lastErr
	}

	if err := s.queue.Add(frame); err != nil {
		return err
	}
	// A fatal error here is not surfaced: the frame is already owned by
	// the queue and the failure reaches user code via EventClose.
	if code := s.sendBufferedLocked(); code == -1 {
		s.queue.Finish()
	}
	return nil
}

// Read reads up to len(buf) bytes directly from the fd. A peer EOF is
// reported as io.EOF (read(2) reports it as a zero-length read, which
// drain loops cannot distinguish from an empty buf otherwise); a dry
// socket reports EAGAIN, the signal for edge-triggered handlers to stop
// draining.
func (s *Socket) Read(buf []byte) (int, error) {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()
	if fd < 0 {
		return 0, io.EOF
	}
	n, err := unix.Read(fd, buf)
	if n < 0 {
		n = 0
	}
	if n == 0 && err == nil && len(buf) > 0 {
		return 0, io.EOF
	}
	return n, err
}

// Close requests a graceful close: the send queue is flushed and
// shutdown(WR) is issued once empty; teardown completes once the peer's
// FIN is observed.
func (s *Socket) Close() error {
	s.mu.Lock()
	s.flags.Set(flagClosing)
	empty := s.queue.IsEmpty()
	if empty {
		s.maybeShutdownWRLocked()
	}
	s.mu.Unlock()
	return nil
}

// Terminate requests an abortive close: the queue is dropped,
// shutdown(RDWR) is issued immediately, and teardown runs synchronously.
// SO_LINGER is zeroed first so the final close resets the connection
// rather than lingering to flush kernel-buffered bytes.
func (s *Socket) Terminate() error {
	s.mu.Lock()
	s.flags.Set(flagClosingFast)
	s.queue.Free()
	if s.fd >= 0 {
		_ = unix.SetsockoptLinger(s.fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 0})
		if s.flags.SetOnce(flagCloseGuard) {
			_ = unix.Shutdown(s.fd, unix.SHUT_RDWR)
		}
	}
	s.mu.Unlock()
	s.teardown(nil)
	return nil
}

// teardown removes the socket from its reactor, fires EventClose, then
// arbitrates against a concurrent user-invoked Free via freeOnce before
// releasing resources.
func (s *Socket) teardown(cause error) {
	s.mu.Lock()
	if s.r != nil && s.fd >= 0 {
		_ = s.r.Remove(s.fd)
	}
	if cause != nil {
		s.lastErr = cause
	}
	handler := s.handler
	s.mu.Unlock()

	// EventClose fires exactly once even when a user-invoked Terminate
	// races reactor-initiated teardown.
	if handler != nil && s.flags.SetOnce(flagCloseNotified) {
		handler.HandleSocketEvent(s, EventClose)
	}

	s.finish(handler)
}

// Free is the user-invocable teardown entry point. It runs teardown, so
// EventClose fires (once) before the free callback even when Free comes
// first; freeOnce arbitrates with any internal teardown already in
// flight, so exactly one path performs resource release.
func (s *Socket) Free() {
	s.teardown(nil)
}

// queueEmptyForTest reports whether the send queue is empty; used for
// white-box assertions on the abortive-close path.
func (s *Socket) queueEmptyForTest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.IsEmpty()
}

func (s *Socket) finish(handler Handler) {
	s.freeOnce.Do(func() {
		s.mu.Lock()
		fd := s.fd
		s.fd = -1
		r := s.r
		s.mu.Unlock()

		if handler != nil {
			handler.HandleSocketEvent(s, EventDeinit)
		}
		if fd >= 0 {
			// Unregister before close: the kernel recycles descriptor
			// numbers, and a stale table entry would collide with the
			// next Add of the reused fd.
			if r != nil {
				_ = r.Remove(fd)
			}
			if err := unix.Close(fd); err != nil {
				log.Warning().Err(err).Log("tcptoolkit: close on teardown failed")
			}
		}
		s.mu.Lock()
		s.queue.Free()
		s.mu.Unlock()
		if handler != nil {
			handler.HandleSocketEvent(s, EventFree)
		}
	})
}
