// Command netbench drives either a bandwidth test (sustained throughput
// between client/server pairs) or a connection-stress test (many
// short-lived connections), reporting aggregate bytes and connection
// counts. It exists to exercise reactor and tcptoolkit end-to-end.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vela-systems/netkit/reactor"
	"github.com/vela-systems/netkit/sendqueue"
	"github.com/vela-systems/netkit/tcptoolkit"
)

// mode selects which benchmark netbench runs.
type mode string

const (
	modeBandwidth  mode = "bandwidth"
	modeConnStress mode = "connstress"
)

func main() {
	var (
		modeFlag   = flag.String("mode", string(modeBandwidth), "bandwidth|connstress")
		clients    = flag.Int("clients", 1, "number of concurrent client connections")
		servers    = flag.Int("servers", 1, "number of listener reactors in connstress mode")
		msgSize    = flag.Int("size", 4096, "message size in bytes, for bandwidth mode")
		durationMS = flag.Int("duration-ms", 1000, "test duration in milliseconds")
		pinThreads = flag.Bool("pin-threads", false, "restrict GOMAXPROCS to 1 (thread-affinity emulation)")
		sharedLoop = flag.Bool("shared-loop", false, "run clients and servers on one shared reactor")
		port       = flag.Int("port", 0, "listen port (0 = ephemeral)")
	)
	flag.Parse()

	if *pinThreads {
		runtime.GOMAXPROCS(1)
	}

	switch mode(*modeFlag) {
	case modeBandwidth:
		runBandwidth(*clients, *msgSize, time.Duration(*durationMS)*time.Millisecond, *port, *sharedLoop)
	case modeConnStress:
		runConnStress(*clients, *servers, *port, *sharedLoop)
	default:
		fmt.Fprintf(os.Stderr, "unknown -mode %q\n", *modeFlag)
		os.Exit(2)
	}
}

type echoServer struct{}

func (echoServer) OnAccept(srv *tcptoolkit.Server, child *tcptoolkit.Socket) *tcptoolkit.Socket {
	child.SetHandler(tcptoolkit.HandlerFunc(func(s *tcptoolkit.Socket, kind tcptoolkit.EventKind) {
		if kind != tcptoolkit.EventData {
			return
		}
		var buf [65536]byte
		for {
			n, err := s.Read(buf[:])
			if n > 0 {
				_ = s.Send(sendqueue.Frame{Data: append([]byte(nil), buf[:n]...), FreeOnDrain: true})
			}
			if err != nil {
				return
			}
		}
	}))
	return child
}
func (echoServer) HandleServerEvent(*tcptoolkit.Server, tcptoolkit.EventKind) {}

func runBandwidth(numClients, msgSize int, duration time.Duration, port int, shared bool) {
	serverReactor, err := reactor.New()
	must(err)
	serverReactor.Start()
	defer func() { serverReactor.Stop(); _ = serverReactor.Free() }()

	srv, err := tcptoolkit.ListenTCP(serverReactor, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}, 256, echoServer{},
		tcptoolkit.WithChildConfig(tcptoolkit.Config{AutoCloseOnReadClose: true}))
	must(err)
	defer srv.Free()
	addr, err := srv.Addr()
	must(err)

	clientReactor := serverReactor
	if !shared {
		clientReactor, err = reactor.New()
		must(err)
		clientReactor.Start()
		defer func() { clientReactor.Stop(); _ = clientReactor.Free() }()
	}

	var totalBytes atomic.Int64
	var wg sync.WaitGroup
	stop := make(chan struct{})

	payload := make([]byte, msgSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		opened := make(chan struct{})
		var once sync.Once
		client, err := tcptoolkit.DialTCP(clientReactor, addr, tcptoolkit.HandlerFunc(func(s *tcptoolkit.Socket, kind tcptoolkit.EventKind) {
			switch kind {
			case tcptoolkit.EventOpen:
				once.Do(func() { close(opened) })
			case tcptoolkit.EventData:
				var buf [65536]byte
				for {
					n, err := s.Read(buf[:])
					if n > 0 {
						totalBytes.Add(int64(n))
					}
					if err != nil {
						return
					}
				}
			case tcptoolkit.EventFree:
				wg.Done()
			}
		}), tcptoolkit.Config{})
		must(err)

		go func() {
			select {
			case <-opened:
			case <-time.After(5 * time.Second):
				return
			}
			for {
				select {
				case <-stop:
					client.Free()
					return
				default:
					_ = client.Send(sendqueue.Frame{Data: payload})
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}

	time.Sleep(duration)
	close(stop)
	wg.Wait()

	fmt.Printf("bandwidth: %d bytes in %s (%.2f MiB/s)\n", totalBytes.Load(), duration,
		float64(totalBytes.Load())/duration.Seconds()/(1024*1024))
}

func runConnStress(numClients, numServers, port int, shared bool) {
	if numServers < 1 {
		numServers = 1
	}

	// One listener per server reactor; with an explicit -port the first
	// listener takes it and the rest go ephemeral.
	var totalConns atomic.Int64
	var firstReactor *reactor.Reactor
	addrs := make([]*net.TCPAddr, 0, numServers)
	for i := 0; i < numServers; i++ {
		r, err := reactor.New()
		must(err)
		r.Start()
		defer func() { r.Stop(); _ = r.Free() }()
		if firstReactor == nil {
			firstReactor = r
		}

		p := 0
		if i == 0 {
			p = port
		}
		srv, err := tcptoolkit.ListenTCP(r, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: p}, 1024,
			connCountingServer{count: &totalConns},
			tcptoolkit.WithChildConfig(tcptoolkit.Config{AutoCloseOnReadClose: true}))
		must(err)
		defer srv.Free()
		addr, err := srv.Addr()
		must(err)
		addrs = append(addrs, addr)
	}

	clientReactor := firstReactor
	if !shared {
		r, err := reactor.New()
		must(err)
		r.Start()
		defer func() { r.Stop(); _ = r.Free() }()
		clientReactor = r
	}

	var wg sync.WaitGroup
	for i := 0; i < numClients; i++ {
		wg.Add(1)
		client, err := tcptoolkit.DialTCP(clientReactor, addrs[i%len(addrs)], tcptoolkit.HandlerFunc(func(s *tcptoolkit.Socket, kind tcptoolkit.EventKind) {
			switch kind {
			case tcptoolkit.EventOpen:
				_ = s.Send(sendqueue.Frame{Data: []byte("0123456789ABCDEF")})
				_ = s.Close()
			case tcptoolkit.EventFree:
				wg.Done()
			}
		}), tcptoolkit.Config{})
		must(err)
		defer client.Free()
	}
	wg.Wait()

	fmt.Printf("connstress: %d connections accepted\n", totalConns.Load())
}

type connCountingServer struct {
	count *atomic.Int64
}

func (s connCountingServer) OnAccept(srv *tcptoolkit.Server, child *tcptoolkit.Socket) *tcptoolkit.Socket {
	s.count.Add(1)
	child.SetHandler(tcptoolkit.HandlerFunc(func(sock *tcptoolkit.Socket, kind tcptoolkit.EventKind) {
		if kind != tcptoolkit.EventData {
			return
		}
		var buf [256]byte
		for {
			_, err := sock.Read(buf[:])
			if err != nil {
				return
			}
		}
	}))
	return child
}
func (connCountingServer) HandleServerEvent(*tcptoolkit.Server, tcptoolkit.EventKind) {}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
