package httpclient

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nxweb/nxweb/internal/arena"
	"github.com/nxweb/nxweb/internal/eventloop"
	"github.com/nxweb/nxweb/internal/stream"
)

// RetryCount is NXWEB_PROXY_RETRY_COUNT, spec.md §4.6: "Retries on ...
// idempotent failures."
var RetryCount = 2

// skewRingSize bounds the backend-time-delta ring spec.md §4.6 names
// ("a ring of recent backend-time deltas").
const skewRingSize = 16

// proxyOstream adapts a pooled backend connection's raw fd the same way
// internal/conn.socketOstream adapts an inbound socket.
type proxyOstream struct {
	stream.OstreamBase
	fd int
}

func (s *proxyOstream) Write(p []byte, _ stream.WriteFlags) (int, error) {
	n, err := syscall.Write(s.fd, p)
	if err != nil {
		if err == syscall.EAGAIN {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

// ProxyConn wraps a ClientProto bound to one pooled backend socket, spec.md
// §3's ProxyConn entity. Its FdSource is registered once at dial time and
// stays registered across keep-alive reuse; only the bound ClientProto is
// reset between requests.
type ProxyConn struct {
	fd     int
	target string
	proto  *ClientProto
	timer  *eventloop.Timer
	loop   *eventloop.Loop
	buf    []byte
}

// Fd returns the underlying socket descriptor.
func (pc *ProxyConn) Fd() int { return pc.fd }

// Proto returns the bound client protocol.
func (pc *ProxyConn) Proto() *ClientProto { return pc.proto }

func (pc *ProxyConn) handleReadable() {
	for {
		n, err := syscall.Read(pc.fd, pc.buf)
		if err != nil {
			if err == syscall.EAGAIN {
				return
			}
			pc.proto.fail(err)
			return
		}
		if n == 0 {
			pc.proto.fail(syscall.ECONNRESET)
			return
		}
		pc.proto.FeedBytes(pc.buf[:n])
		if n < len(pc.buf) {
			return
		}
	}
}

// Close unregisters the connection's FdSource and releases the socket
// without returning it to any pool.
func (pc *ProxyConn) Close() {
	pc.loop.UnregisterFdSource(pc.fd)
	syscall.Close(pc.fd)
}

// target is one (host, addr) pool: a LIFO free list of idle connections
// plus a ring of recent backend-time skew samples.
type target struct {
	addr string
	free []*ProxyConn

	skew      [skewRingSize]time.Duration
	skewCount int
	skewNext  int
}

func (t *target) recordSkew(d time.Duration) {
	t.skew[t.skewNext] = d
	t.skewNext = (t.skewNext + 1) % skewRingSize
	if t.skewCount < skewRingSize {
		t.skewCount++
	}
}

// MeanSkew returns the average of the recorded backend-time deltas, or 0
// if none have been recorded yet.
func (t *target) MeanSkew() time.Duration {
	if t.skewCount == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < t.skewCount; i++ {
		sum += t.skew[i]
	}
	return sum / time.Duration(t.skewCount)
}

// ProxyPool is one net thread's per-target connection pool, spec.md §5:
// "The proxy pool is per-thread; no locking required."
type ProxyPool struct {
	loop    *eventloop.Loop
	targets map[string]*target
	dial    func(addr string) (int, error)
}

// NewProxyPool creates a ProxyPool bound to loop. dial opens a nonblocking
// TCP connection to addr (injected so tests can substitute an in-memory
// pipe pair).
func NewProxyPool(loop *eventloop.Loop, dial func(addr string) (int, error)) *ProxyPool {
	return &ProxyPool{
		loop:    loop,
		targets: make(map[string]*target),
		dial:    dial,
	}
}

func (p *ProxyPool) targetFor(addr string) *target {
	t, ok := p.targets[addr]
	if !ok {
		t = &target{addr: addr}
		p.targets[addr] = t
	}
	return t
}

// Acquire pops the most recently returned idle connection for addr (LIFO,
// spec.md §4.6), or dials a fresh one if the free list is empty.
func (p *ProxyPool) Acquire(addr string, a *arena.Arena) (*ProxyConn, error) {
	t := p.targetFor(addr)
	if n := len(t.free); n > 0 {
		pc := t.free[n-1]
		t.free = t.free[:n-1]
		if pc.timer != nil {
			p.loop.UnsetTimer(pc.timer)
			pc.timer = nil
		}
		pc.proto.Reset()
		return pc, nil
	}

	fd, err := p.dial(addr)
	if err != nil {
		return nil, err
	}
	pc := &ProxyConn{
		fd:     fd,
		target: addr,
		proto:  New(p.loop, a),
		loop:   p.loop,
		buf:    make([]byte, 16384),
	}
	pc.proto.Out = &proxyOstream{fd: fd}
	p.loop.RegisterFdSource(&eventloop.FdSource{
		Fd:         fd,
		OnReadable: pc.handleReadable,
		OnWritable: func() { pc.proto.pumpWrite() },
	})
	return pc, nil
}

// Release returns pc to addr's free list and arms its keep-alive timer;
// the timer callback evicts and closes it if still idle when it fires
// (spec.md §4.6: "return sets a keep-alive timer; closed connections are
// evicted").
func (p *ProxyPool) Release(pc *ProxyConn) {
	t := p.targetFor(pc.target)
	t.free = append(t.free, pc)
	pc.timer = p.loop.SetTimer(eventloop.TimerBackend, func() {
		p.evict(pc)
	})
}

// Discard closes pc without returning it to the pool, used after a
// protocol error on the connection.
func (p *ProxyPool) Discard(pc *ProxyConn) {
	pc.Close()
}

func (p *ProxyPool) evict(pc *ProxyConn) {
	t := p.targetFor(pc.target)
	for i, c := range t.free {
		if c == pc {
			t.free = append(t.free[:i], t.free[i+1:]...)
			break
		}
	}
	pc.Close()
}

// RecordBackendDate samples wall-clock skew between a backend's Date
// header and local time, spec.md §4.6: "used for log annotation."
func (p *ProxyPool) RecordBackendDate(addr string, backendTime, localTime time.Time) {
	p.targetFor(addr).recordSkew(localTime.Sub(backendTime))
}

// MeanSkew reports the current mean backend-time skew for addr.
func (p *ProxyPool) MeanSkew(addr string) time.Duration {
	return p.targetFor(addr).MeanSkew()
}

// DialNonblocking starts a nonblocking IPv4 TCP connect to addr (resolved
// by resolve) with TCP_NODELAY set. NewProxyPool does not use it unless a
// caller wraps it as the pool's dial function.
func DialNonblocking(addr string, resolve func(string) (unix.Sockaddr, error)) (int, error) {
	sa, err := resolve(addr)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}
