// Package listener owns the bound listening sockets and the accept4-drain
// loop that hands freshly accepted fds to a net thread, spec.md §4.7.
//
// Grounded on the teacher's core/engine.go Engine.Run/acceptConnections
// (ListenTCP, syscall.Accept-until-EAGAIN, TCP_NODELAY/SO_KEEPALIVE on the
// accepted fd), generalized to register one listening fd per net thread's
// poller (spec.md §5: "every net thread's poller holds every listen fd")
// and to retry the accept drain after EMFILE/ENFILE instead of only
// silently returning.
package listener

import (
	"net"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/nxweb/nxweb/internal/eventloop"
)

// Listener owns one bound TCP socket and drains it into onAccept whenever
// any registered net thread's loop reports it readable.
type Listener struct {
	fd   int
	addr string

	retryTimer *eventloop.Timer
}

// Bind resolves and listens on addr ("host:port"), returning a Listener
// whose fd is ready to be registered with each net thread's loop via
// Register.
func Bind(addr string) (*Listener, error) {
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve listen address %q", addr)
	}
	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %q", addr)
	}
	lnFile, err := ln.File()
	if err != nil {
		ln.Close()
		return nil, errors.Wrap(err, "dup listener fd")
	}
	// ln.File() dup'd the fd into lnFile, whose finalizer would close it
	// once lnFile is garbage-collected. Dup it once more into a raw fd no
	// Go object owns and close both wrappers; only the raw fd is kept
	// alive from here on.
	fd, err := syscall.Dup(int(lnFile.Fd()))
	lnFile.Close()
	ln.Close()
	if err != nil {
		return nil, errors.Wrap(err, "dup listener fd")
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return nil, errors.Wrap(err, "set listener nonblocking")
	}

	return &Listener{fd: fd, addr: addr}, nil
}

// Fd returns the raw listening socket descriptor.
func (l *Listener) Fd() int { return l.fd }

// Addr returns the address this listener was bound to.
func (l *Listener) Addr() string { return l.addr }

// Register adds the listening fd to loop's poller so Accept is called
// whenever it is readable, per spec.md §4.7/§5.
func (l *Listener) Register(loop *eventloop.Loop) error {
	return loop.AddListener(l.fd)
}

// Unregister removes the listening fd from loop's poller, used during
// graceful shutdown (spec.md §4.7: stop accepting before draining
// in-flight connections).
func (l *Listener) Unregister(loop *eventloop.Loop) error {
	return loop.RemoveListener(l.fd)
}

// Close releases the listening socket.
func (l *Listener) Close() error {
	return syscall.Close(l.fd)
}

// Accept drains pending connections off the listening fd until EAGAIN,
// handing each accepted fd (already made nonblocking, TCP_NODELAY and
// SO_KEEPALIVE configured) to onAccept.
//
// When accept fails with EMFILE or ENFILE it schedules a one-shot retry
// via loop's TimerAcceptRetry queue (an addition over the teacher); any
// other accept error ends the drain without a retry.
func (l *Listener) Accept(loop *eventloop.Loop, onAccept func(fd int)) {
	for {
		nfd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.EMFILE || err == unix.ENFILE {
				l.scheduleRetry(loop, onAccept)
				return
			}
			return
		}

		unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		unix.SetsockoptInt(nfd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)

		onAccept(nfd)
	}
}

// scheduleRetry re-attempts Accept after one TimerAcceptRetry tick when the
// fd table is exhausted (EMFILE/ENFILE), since an edge-triggered listening
// socket won't fire again on its own until new connections arrive.
func (l *Listener) scheduleRetry(loop *eventloop.Loop, onAccept func(fd int)) {
	if l.retryTimer != nil {
		return
	}
	l.retryTimer = loop.SetTimer(eventloop.TimerAcceptRetry, func() {
		l.retryTimer = nil
		l.Accept(loop, onAccept)
	})
}
