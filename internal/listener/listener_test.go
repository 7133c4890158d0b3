package listener

import (
	"net"
	"testing"

	"github.com/nxweb/nxweb/internal/eventloop"
	"github.com/nxweb/nxweb/internal/poller"
)

func newTestLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	p, err := poller.NewPoller()
	if err != nil {
		t.Fatalf("poller.NewPoller: %v", err)
	}
	return eventloop.New(p, func(int, bool) {})
}

func TestBindAddr(t *testing.T) {
	ln, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer ln.Close()

	if ln.Addr() != "127.0.0.1:0" {
		t.Errorf("Addr() = %q, want the address passed to Bind", ln.Addr())
	}
	if ln.Fd() <= 0 {
		t.Errorf("Fd() = %d, want a positive descriptor", ln.Fd())
	}
}

func TestAcceptDrainsPendingConnections(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find a free port: %v", err)
	}
	addr := probe.Addr().String()
	probe.Close()

	ln, err := Bind(addr)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer ln.Close()

	loop := newTestLoop(t)
	if err := ln.Register(loop); err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer ln.Unregister(loop)

	const dialCount = 3
	for i := 0; i < dialCount; i++ {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		defer c.Close()
	}

	accepted := make([]int, 0, dialCount)
	ln.Accept(loop, func(fd int) {
		accepted = append(accepted, fd)
	})

	if len(accepted) != dialCount {
		t.Fatalf("accepted %d connections, want %d", len(accepted), dialCount)
	}
	for _, fd := range accepted {
		if fd <= 0 {
			t.Errorf("accepted fd %d, want a positive descriptor", fd)
		}
	}
}
