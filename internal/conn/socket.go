// Package conn binds a raw socket fd to a httpserver.ServerProto and
// drives it from the owning eventloop.Loop, spec.md §3's Connection
// layer: "binds a socket to a protocol instance and dispatches parsed
// requests to the handler chain."
//
// Grounded on the teacher's core/engine.go Connection/handleRead/
// closeConnection, replacing its hard-coded HTTP parsing with the
// ServerProto state machine and its direct syscall.Write with the
// Ostream.Write/Sendfile contract.
package conn

import (
	"syscall"
	"time"

	"github.com/nxweb/nxweb/internal/eventloop"
	"github.com/nxweb/nxweb/internal/httpserver"
	"github.com/nxweb/nxweb/internal/pool"
	"github.com/nxweb/nxweb/internal/stream"
)

// Connection owns one accepted socket, its read buffer and its protocol
// instance.
type Connection struct {
	fd    int
	loop  *eventloop.Loop
	proto *httpserver.ServerProto

	readBuf    *pool.BytePool
	buf        []byte
	lastActive time.Time
	abnormal   bool

	onClose func(*Connection)
}

// socketOstream adapts a raw fd's write(2)/sendfile(2) calls to
// stream.Ostream, so ServerProto can drive it uniformly with any other
// ostream (a subrequest sink, a streamer).
type socketOstream struct {
	stream.OstreamBase
	fd int
}

func (s *socketOstream) Write(p []byte, _ stream.WriteFlags) (int, error) {
	n, err := syscall.Write(s.fd, p)
	if err != nil {
		if err == syscall.EAGAIN {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

func (s *socketOstream) Sendfile(fileFd int, offset int64, count int64) (int64, error) {
	off := offset
	n, err := syscall.Sendfile(s.fd, fileFd, &off, int(count))
	if err != nil && err != syscall.EAGAIN {
		return int64(n), err
	}
	return int64(n), nil
}

// New accepts ownership of fd, registers it with loop and wires a fresh
// ServerProto (built by newProto, typically httpserver.NewServerProto
// bound to this net thread's dispatcher and a pooled arena) to it.
func New(fd int, loop *eventloop.Loop, bufPool *pool.BytePool, newProto func() *httpserver.ServerProto) *Connection {
	c := &Connection{
		fd:         fd,
		loop:       loop,
		readBuf:    bufPool,
		lastActive: loop.Now(),
	}
	c.proto = newProto()
	c.proto.Out = &socketOstream{fd: fd}
	c.proto.SetOnClose(func() { c.Close() })

	src := &eventloop.FdSource{
		Fd:         fd,
		OnReadable: c.handleReadable,
		OnWritable: c.handleWritable,
	}
	src.DataError.Subscribe(stream.SubscriberFunc(func(msg stream.Message) {
		c.handleError(msg)
	}))
	loop.RegisterFdSource(src)
	c.buf = bufPool.Get(8192)
	return c
}

func (c *Connection) handleReadable() {
	for {
		n, err := syscall.Read(c.fd, c.buf)
		if err != nil {
			if err == syscall.EAGAIN {
				return
			}
			// A read error is always an abnormal close; only a clean EOF
			// while WAITING (below) is a normal one, per spec.md §7.
			c.abnormal = true
			c.Close()
			return
		}
		if n == 0 {
			c.abnormal = c.proto.State() != httpserver.StateWaiting
			c.Close()
			return
		}
		c.lastActive = c.loop.Now()
		c.proto.FeedBytes(c.buf[:n], c.handleProtoError)
		if n < len(c.buf) {
			return
		}
	}
}

func (c *Connection) handleWritable() {
	c.loop.Cork(c.fd)
	c.proto.PumpWrite()
}

func (c *Connection) handleProtoError(status int, closeAfter bool) {
	if closeAfter {
		c.abnormal = status >= 500 || status == 408 || status == 400
		c.Close()
	}
}

func (c *Connection) handleError(msg stream.Message) {
	// Hangup/error events off the fd itself are always abnormal; a clean
	// read-closed notification while idle is not (spec.md §7: "RDHUP while
	// WAITING for the next request is a normal close, logged as such").
	c.abnormal = !(msg.Tag == stream.TagReadClosed && c.proto.State() == httpserver.StateWaiting)
	c.Close()
}

// Close unregisters fd and releases pooled resources. A non-abnormal close
// uses the OS default (graceful FIN); an abnormal close sets SO_LINGER{1,0}
// so the kernel sends RST instead of draining, per spec.md §7.
func (c *Connection) Close() {
	c.loop.UnregisterFdSource(c.fd)
	if c.abnormal {
		syscall.SetsockoptLinger(c.fd, syscall.SOL_SOCKET, syscall.SO_LINGER, &syscall.Linger{Onoff: 1, Linger: 0})
	}
	syscall.Close(c.fd)
	if c.buf != nil {
		c.readBuf.Put(c.buf)
		c.buf = nil
	}
	if c.onClose != nil {
		c.onClose(c)
	}
}

// Fd returns the underlying socket descriptor.
func (c *Connection) Fd() int { return c.fd }

// LastActive reports the last time bytes were read from this connection,
// used by the idle-connection sweep.
func (c *Connection) LastActive() time.Time { return c.lastActive }

// SetOnClose registers a callback invoked once the connection is closed,
// letting the owning listener/netthread drop it from its active set.
func (c *Connection) SetOnClose(fn func(*Connection)) { c.onClose = fn }
