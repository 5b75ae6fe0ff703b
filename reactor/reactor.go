// Package reactor is the runtime's socket layer: non-blocking TCP with
// a producer-side write queue per connection (spec.md §2 "Socket
// reactor"). It is named as an external collaborator in spec.md §1 and
// specified only at its boundary — readiness, a send queue, and
// SOCKET-typed events delivered to a sink — so this is a minimal,
// idiomatic rendition rather than a hand-rolled epoll loop: Go's
// runtime netpoller already makes every net.Conn non-blocking under
// the hood, so "edge-triggered readiness" becomes one reader goroutine
// per connection, grounded on transport.Stream's sendLoop/cmplLoop
// goroutine-pair idiom (transport/api.go).
package reactor

import (
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/shacorun/shaco/cmn/nlog"
	"github.com/shacorun/shaco/memsys"
	"github.com/shacorun/shaco/msg"
)

// Sink receives SOCKET-typed events as they happen; in practice the
// harbor's own Push-to-self path through the dispatcher.
type Sink interface {
	OnSocketEvent(ev msg.SocketEvent)
}

const readBufSize = 64 * 1024

type conn struct {
	id     int32
	nc     net.Conn
	writeQ chan []byte
	closed atomic.Bool
	sendMu sync.Mutex // serializes Send against closeConn's close(writeQ)
}

// Reactor owns every live connection, keyed by an opaque socket id the
// way the original shaco_socket layer hands out small integer ids.
type Reactor struct {
	mu      sync.RWMutex
	conns   map[int32]*conn
	nextID  atomic.Int32
	sink    Sink
	burst   int
}

func New(sink Sink, writeBurst int) *Reactor {
	if writeBurst <= 0 {
		writeBurst = 64
	}
	return &Reactor{conns: make(map[int32]*conn), sink: sink, burst: writeBurst}
}

// SetSink installs sink after construction, for the common bootstrap
// ordering where the reactor is built before the service that will
// consume its events has been created.
func (r *Reactor) SetSink(sink Sink) { r.sink = sink }

// Listen starts accepting connections on laddr; each accepted
// connection is registered and its reader goroutine started, exactly
// like an explicitly Dial-ed one.
func (r *Reactor) Listen(laddr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", laddr)
	if err != nil {
		return nil, err
	}
	go r.acceptLoop(ln)
	return ln, nil
}

func (r *Reactor) acceptLoop(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return // listener closed
		}
		r.Register(nc)
	}
}

// Dial connects to raddr and registers the resulting connection.
func (r *Reactor) Dial(raddr string) (int32, error) {
	nc, err := net.Dial("tcp", raddr)
	if err != nil {
		return 0, err
	}
	return r.Register(nc), nil
}

// Register adopts an already-established net.Conn (e.g. one handed off
// by a slave manager, mirroring the harbor's "S" attach command
// carrying a pre-buffered payload — spec.md §4.5) and starts its
// reader/writer goroutines.
func (r *Reactor) Register(nc net.Conn) int32 {
	id := r.nextID.Add(1)
	c := &conn{id: id, nc: nc, writeQ: make(chan []byte, r.burst)}

	r.mu.Lock()
	r.conns[id] = c
	r.mu.Unlock()

	go r.writeLoop(c)
	go r.readLoop(c)
	return id
}

// Send enqueues buf on sock's write queue; never blocks the caller on
// network backpressure (spec.md §5 "harbor never blocks awaiting
// space") — a full queue drops the write and reports an error instead.
func (r *Reactor) Send(sock int32, buf []byte) error {
	r.mu.RLock()
	c, ok := r.conns[sock]
	r.mu.RUnlock()
	if !ok {
		return io.ErrClosedPipe
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed.Load() {
		return io.ErrClosedPipe
	}
	select {
	case c.writeQ <- buf:
		return nil
	default:
		return io.ErrShortWrite
	}
}

func (r *Reactor) Close(sock int32) {
	r.mu.Lock()
	c, ok := r.conns[sock]
	if ok {
		delete(r.conns, sock)
	}
	r.mu.Unlock()
	if ok {
		r.closeConn(c, nil)
	}
}

func (r *Reactor) closeConn(c *conn, cause error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.nc.Close()
	// Send checks c.closed under the same lock before it writes to
	// writeQ, so once that flag is visibly true here no send can still
	// be in flight to race this close.
	c.sendMu.Lock()
	close(c.writeQ)
	c.sendMu.Unlock()
	if cause != nil && r.sink != nil {
		r.sink.OnSocketEvent(msg.SocketEvent{Kind: msg.EvSockErr, Sock: c.id, Err: cause})
	}
}

func (r *Reactor) writeLoop(c *conn) {
	for buf := range c.writeQ {
		if _, err := c.nc.Write(buf); err != nil {
			r.dropAndError(c, err)
			return
		}
	}
}

func (r *Reactor) readLoop(c *conn) {
	buf := memsys.Alloc(readBufSize)
	defer memsys.Free(buf)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			data := memsys.Dup(buf[:n])
			r.sink.OnSocketEvent(msg.SocketEvent{Kind: msg.EvData, Sock: c.id, Data: data})
		}
		if err != nil {
			r.dropAndError(c, err)
			return
		}
	}
}

func (r *Reactor) dropAndError(c *conn, err error) {
	r.mu.Lock()
	delete(r.conns, c.id)
	r.mu.Unlock()
	if err == io.EOF {
		nlog.Infof("reactor: sock=%d closed by peer", c.id)
	}
	r.closeConn(c, err)
}
