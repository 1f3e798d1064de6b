// Package resolver implements address resolution, synchronous and
// worker-dispatched asynchronous, on top of net.DefaultResolver. The
// async variant submits the blocking lookup onto a shared pool.Pool and
// invokes the caller's callback on whichever worker ran it.
package resolver

import (
	"context"
	"net"

	"github.com/vela-systems/netkit/internal/netlog"
	"github.com/vela-systems/netkit/pool"
)

var log = netlog.For("resolver")

// Hints narrows the candidate address family.
type Hints struct {
	// Network is "tcp", "tcp4", or "tcp6"; zero value defaults to "tcp".
	Network string
}

func (h Hints) network() string {
	if h.Network == "" {
		return "tcp"
	}
	return h.Network
}

// ResolveSync performs blocking resolution of hostname:service, returning
// every candidate address in the order the resolver produced them.
func ResolveSync(ctx context.Context, hostname, service string, hints Hints) ([]net.Addr, error) {
	addrs, err := net.DefaultResolver.LookupHost(ctx, hostname)
	if err != nil {
		return nil, err
	}
	out := make([]net.Addr, 0, len(addrs))
	for _, a := range addrs {
		resolved, err := net.ResolveTCPAddr(hints.network(), net.JoinHostPort(a, service))
		if err != nil {
			continue
		}
		out = append(out, resolved)
	}
	if len(out) == 0 {
		return nil, &net.DNSError{Err: "no usable address", Name: hostname, IsNotFound: true}
	}
	return out, nil
}

// AsyncResult is delivered to an async resolution's Callback.
type AsyncResult struct {
	Addrs []net.Addr
	Err   error
}

// AsyncParams configures an asynchronous resolution.
type AsyncParams struct {
	Context           context.Context
	Hostname, Service string
	Hints             Hints
	// Callback is invoked with the result on the dispatching worker
	// goroutine. It must not reenter the same request.
	Callback func(AsyncResult)
}

// ResolveAsync dispatches a worker-thread-pool job that performs the
// blocking resolution and invokes Callback with the result on that
// worker.
func ResolveAsync(p *pool.Pool, params AsyncParams) {
	ctx := params.Context
	if ctx == nil {
		ctx = context.Background()
	}
	p.Add(func(data any) {
		ap := data.(AsyncParams)
		addrs, err := ResolveSync(ctx, ap.Hostname, ap.Service, ap.Hints)
		if ap.Callback != nil {
			safeCallback(ap.Callback, AsyncResult{Addrs: addrs, Err: err})
		}
	}, params)
}

func safeCallback(cb func(AsyncResult), r AsyncResult) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Err().Any("recovered", rec).Log("resolver callback panicked")
		}
	}()
	cb(r)
}
