package subrequest

import (
	"testing"

	"github.com/nxweb/nxweb/internal/arena"
	"github.com/nxweb/nxweb/internal/eventloop"
	"github.com/nxweb/nxweb/internal/httpserver"
	"github.com/nxweb/nxweb/internal/poller"
	"github.com/nxweb/nxweb/internal/reqid"
	"github.com/nxweb/nxweb/internal/stream"
)

type fakeDispatcher struct {
	resp *httpserver.Response
}

func (f *fakeDispatcher) Dispatch(req *httpserver.Request, p *httpserver.ServerProto) *httpserver.Response {
	return f.resp
}

func newTestLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	p, err := poller.NewPoller()
	if err != nil {
		t.Fatalf("poller.NewPoller: %v", err)
	}
	return eventloop.New(p, func(int, bool) {})
}

func TestSpawnMemoryNode(t *testing.T) {
	loop := newTestLoop(t)
	gen := reqid.NewGenerator(0)
	a := arena.New(4096)
	disp := &fakeDispatcher{resp: &httpserver.Response{
		Status:     200,
		Kind:       httpserver.ContentMemory,
		MemContent: []byte("hello"),
	}}
	parent := &httpserver.Request{ID: reqid.ID(1), RootID: reqid.ID(1)}

	var got stream.Node
	var gotErr error
	Spawn(loop, gen, disp, a, parent, Request{Method: "GET", URI: "/inc"}, func(n stream.Node, err error) {
		got, gotErr = n, err
	})

	if gotErr != nil {
		t.Fatalf("unexpected error: %v", gotErr)
	}
	if string(got.Bytes) != "hello" {
		t.Fatalf("got node bytes %q, want %q", got.Bytes, "hello")
	}
}

func TestSpawnErrorStatusFails(t *testing.T) {
	loop := newTestLoop(t)
	gen := reqid.NewGenerator(0)
	a := arena.New(4096)
	disp := &fakeDispatcher{resp: &httpserver.Response{Status: 500}}
	parent := &httpserver.Request{ID: reqid.ID(1), RootID: reqid.ID(1)}

	var gotErr error
	Spawn(loop, gen, disp, a, parent, Request{Method: "GET", URI: "/inc"}, func(n stream.Node, err error) {
		gotErr = err
	})

	if gotErr != ErrFailed {
		t.Fatalf("got error %v, want ErrFailed", gotErr)
	}
}

func TestComposeMixesLiteralsAndSubrequests(t *testing.T) {
	loop := newTestLoop(t)
	gen := reqid.NewGenerator(0)
	a := arena.New(4096)
	okDisp := &fakeDispatcher{resp: &httpserver.Response{
		Status:     200,
		Kind:       httpserver.ContentMemory,
		MemContent: []byte("B"),
	}}
	parent := &httpserver.Request{ID: reqid.ID(1), RootID: reqid.ID(1)}

	items := []Item{
		{Bytes: []byte("A")},
		{Sub: &Request{Method: "GET", URI: "/b"}},
		{Bytes: []byte("C")},
	}

	var streamed []byte
	done := make(chan struct{})
	Compose(loop, gen, okDisp, a, parent, items, func(s *stream.Streamer) {
		buf := make([]byte, 64)
		for {
			n, eof, err := s.Read(buf)
			if err != nil {
				t.Fatalf("streamer read: %v", err)
			}
			streamed = append(streamed, buf[:n]...)
			if eof == stream.EOF {
				break
			}
		}
		close(done)
	})
	<-done

	if string(streamed) != "ABC" {
		t.Fatalf("got streamed %q, want %q", streamed, "ABC")
	}
}

func TestComposeSubstitutesPlaceholderOnFailure(t *testing.T) {
	loop := newTestLoop(t)
	gen := reqid.NewGenerator(0)
	a := arena.New(4096)
	failDisp := &fakeDispatcher{resp: &httpserver.Response{Status: 404}}
	parent := &httpserver.Request{ID: reqid.ID(1), RootID: reqid.ID(1)}

	items := []Item{{Sub: &Request{Method: "GET", URI: "/missing"}}}

	var streamed []byte
	done := make(chan struct{})
	Compose(loop, gen, failDisp, a, parent, items, func(s *stream.Streamer) {
		buf := make([]byte, 64)
		n, _, err := s.Read(buf)
		if err != nil {
			t.Fatalf("streamer read: %v", err)
		}
		streamed = buf[:n]
		close(done)
	})
	<-done

	if string(streamed) != string(ssiErrorPlaceholder) {
		t.Fatalf("got %q, want placeholder %q", streamed, ssiErrorPlaceholder)
	}
}
