// Server is the listening-socket variant of the state machine: it binds,
// listens, and on readiness repeatedly accept4()s until would-block,
// handing each accepted connection to user code for configuration before
// binding the resulting child Socket to a reactor.
package tcptoolkit

import (
	"errors"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/vela-systems/netkit/internal/aflags"
	"github.com/vela-systems/netkit/reactor"
)

// ServerHandler configures accepted connections and observes the
// listener's own lifecycle. Servers see a subset of the socket events:
// open (per accepted child), close, deinit, free.
type ServerHandler interface {
	// OnAccept is called once per accepted connection with a freshly
	// constructed, not-yet-reactor-bound child Socket. The handler may
	// call SetHandler on it (and any other configuration) and return it,
	// or return a different *Socket entirely to use instead. Returning
	// nil rejects the connection; the fd is closed.
	OnAccept(srv *Server, child *Socket) *Socket
	// HandleServerEvent fires EventClose, EventDeinit, and EventFree for
	// the listener itself.
	HandleServerEvent(srv *Server, kind EventKind)
}

// flag bits for Server, reusing the same bit layout convention as Socket.
const (
	srvFlagClosing uint64 = 1 << iota
	srvFlagCloseGuard
	srvFlagCloseNotified
)

// Server is the listening-socket state machine: accept loop plus
// per-connection materialization and reactor binding.
type Server struct {
	mu      sync.Mutex
	fd      int
	flags   aflags.Word
	handler ServerHandler

	r            *reactor.Reactor // reactor the listener itself is bound to
	childReactor *reactor.Reactor // reactor new children are bound to
	childCfg     Config

	lastErr  error
	freeOnce sync.Once
}

// ServerOption configures optional Server construction behavior.
type ServerOption func(*Server)

// WithChildReactor binds accepted connections to a reactor other than
// the listener's own, spreading per-connection dispatch across loops.
func WithChildReactor(r *reactor.Reactor) ServerOption {
	return func(s *Server) { s.childReactor = r }
}

// WithChildConfig sets the Config applied to every accepted child Socket.
func WithChildConfig(cfg Config) ServerOption {
	return func(s *Server) { s.childCfg = cfg }
}

// ListenTCP binds and listens on addr, registering the listener with r.
// The listener counts as opened the moment this returns successfully —
// unlike a client socket, it has no separate "first readiness" open
// event.
func ListenTCP(r *reactor.Reactor, addr *net.TCPAddr, backlog int, handler ServerHandler, opts ...ServerOption) (*Server, error) {
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
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if backlog <= 0 {
		backlog = 128
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	srv := &Server{fd: fd, handler: handler, r: r, childReactor: r}
	for _, o := range opts {
		o(srv)
	}

	if err := r.Add(fd, reactor.In|reactor.RDHup, srv); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return srv, nil
}

// Addr returns the bound local address.
func (srv *Server) Addr() (*net.TCPAddr, error) {
	srv.mu.Lock()
	fd := srv.fd
	srv.mu.Unlock()
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}, nil
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}, nil
	default:
		return nil, errors.New("tcptoolkit: unsupported sockaddr family")
	}
}

// Fd returns the listener's file descriptor.
func (srv *Server) Fd() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.fd
}

var _ reactor.Handler = (*Server)(nil)

// HandleEvent implements reactor.Handler for the listener fd.
func (srv *Server) HandleEvent(r *reactor.Reactor, fd int, ev reactor.Events) reactor.Action {
	if ev&reactor.Err != 0 {
		errno, _ := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		srv.teardown(unix.Errno(errno))
		return reactor.Continue
	}
	if ev&reactor.In != 0 {
		srv.acceptLoop()
	}
	if ev&(reactor.Hup|reactor.RDHup) != 0 {
		srv.teardown(nil)
		return reactor.Continue
	}
	return reactor.Continue
}

// transientAcceptErr reports whether err is in the accept4 retry class:
// EINTR/EPIPE/EPERM/EPROTO/ECONNRESET/ECONNABORTED.
func transientAcceptErr(err error) bool {
	switch err {
	case unix.EINTR, unix.EPIPE, unix.EPERM, unix.EPROTO, unix.ECONNRESET, unix.ECONNABORTED:
		return true
	default:
		return false
	}
}

// acceptLoop repeatedly accept4()s until would-block.
func (srv *Server) acceptLoop() {
	srv.mu.Lock()
	listenFd := srv.fd
	srv.mu.Unlock()

	for {
		fd, err := acceptNonblock(listenFd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if transientAcceptErr(err) {
				continue
			}
			log.Warning().Err(err).Log("tcptoolkit: accept4 failed, stopping accept loop")
			return
		}
		srv.materialize(fd)
	}
}

// materialize constructs a child Socket template for fd, lets the
// handler configure or replace it, and binds the result to a reactor.
// Whatever *Socket OnAccept returns (the template or a replacement) is
// used as-is.
func (srv *Server) materialize(fd int) {
	srv.mu.Lock()
	childReactor := srv.childReactor
	cfg := srv.childCfg
	handler := srv.handler
	srv.mu.Unlock()

	template := newChildSocket(childReactor, fd, cfg)

	var child *Socket
	if handler != nil {
		child = handler.OnAccept(srv, template)
	} else {
		child = template
	}
	if child == nil {
		_ = unix.Close(fd)
		return
	}

	if err := childReactor.Add(fd, reactor.In|reactor.Out|reactor.RDHup, child); err != nil {
		log.Warning().Err(err).Log("tcptoolkit: failed to register accepted connection")
		_ = unix.Close(fd)
		return
	}
}

// Close requests a graceful shutdown of the listener: no new
// connections are accepted after this returns; shutdown(RDWR) is issued
// exactly once.
func (srv *Server) Close() error {
	srv.mu.Lock()
	srv.flags.Set(srvFlagClosing)
	if srv.flags.SetOnce(srvFlagCloseGuard) {
		_ = unix.Shutdown(srv.fd, unix.SHUT_RDWR)
	}
	srv.mu.Unlock()
	srv.teardown(nil)
	return nil
}

func (srv *Server) teardown(cause error) {
	srv.mu.Lock()
	if srv.r != nil && srv.fd >= 0 {
		_ = srv.r.Remove(srv.fd)
	}
	if cause != nil {
		srv.lastErr = cause
	}
	handler := srv.handler
	srv.mu.Unlock()

	if handler != nil && srv.flags.SetOnce(srvFlagCloseNotified) {
		handler.HandleServerEvent(srv, EventClose)
	}
	srv.finish(handler)
}

// Free is the user-invocable teardown entry point, arbitrating against
// any concurrent internal teardown via freeOnce exactly like Socket.Free.
func (srv *Server) Free() {
	srv.mu.Lock()
	handler := srv.handler
	srv.mu.Unlock()
	srv.finish(handler)
}

func (srv *Server) finish(handler ServerHandler) {
	srv.freeOnce.Do(func() {
		srv.mu.Lock()
		fd := srv.fd
		srv.fd = -1
		r := srv.r
		srv.mu.Unlock()

		if handler != nil {
			handler.HandleServerEvent(srv, EventDeinit)
		}
		if fd >= 0 {
			if r != nil {
				_ = r.Remove(fd)
			}
			if err := unix.Close(fd); err != nil {
				log.Warning().Err(err).Log("tcptoolkit: close on listener teardown failed")
			}
		}
		if handler != nil {
			handler.HandleServerEvent(srv, EventFree)
		}
	})
}
