package httpserver

import (
	"strings"
	"testing"

	"github.com/nxweb/nxweb/internal/arena"
	"github.com/nxweb/nxweb/internal/eventloop"
	"github.com/nxweb/nxweb/internal/poller"
	"github.com/nxweb/nxweb/internal/reqid"
	"github.com/nxweb/nxweb/internal/stream"
)

// recordingOstream captures everything written to it, standing in for
// the connection's socket-backed ostream in these protocol-level tests.
type recordingOstream struct {
	stream.OstreamBase
	written []byte
}

func (o *recordingOstream) Write(p []byte, flags stream.WriteFlags) (int, error) {
	o.written = append(o.written, p...)
	return len(p), nil
}

func (o *recordingOstream) Sendfile(fd int, offset, count int64) (int64, error) { return 0, nil }

// dispatchFunc adapts a plain function to the Dispatcher interface.
type dispatchFunc func(req *Request, p *ServerProto) *Response

func (f dispatchFunc) Dispatch(req *Request, p *ServerProto) *Response { return f(req, p) }

func newTestProto(t *testing.T, disp Dispatcher) (*ServerProto, *recordingOstream) {
	t.Helper()
	pl, err := poller.NewPoller()
	if err != nil {
		t.Fatalf("poller.NewPoller: %v", err)
	}
	loop := eventloop.New(pl, func(fd int, on bool) {})
	gen := reqid.NewGenerator(0)
	a := arena.New(0)
	p := NewServerProto(loop, gen, disp, a)
	out := &recordingOstream{}
	out.SetReady(true)
	p.Out = out
	return p, out
}

// S1: GET / HTTP/1.0 against an empty handler list gets back a status
// line echoing HTTP/1.0, Connection: close, and a non-empty body.
func TestScenarioS1HTTP10NotFound(t *testing.T) {
	disp := dispatchFunc(func(req *Request, p *ServerProto) *Response {
		return &Response{
			Status:        404,
			Kind:          ContentMemory,
			MemContent:    []byte("<html>nxweb/1 not found</html>"),
			ContentLength: 30,
			ContentType:   "text/html",
		}
	})
	p, out := newTestProto(t, disp)

	var gotStatus int
	var closeAfter bool
	p.FeedBytes([]byte("GET / HTTP/1.0\r\nHost: x\r\n\r\n"), func(status int, close bool) {
		gotStatus, closeAfter = status, close
	})

	if gotStatus != 0 {
		t.Fatalf("onError called with status=%d closeAfter=%v, want no error", gotStatus, closeAfter)
	}
	resp := string(out.written)
	if !strings.HasPrefix(resp, "HTTP/1.0 404 Not Found\r\n") {
		t.Errorf("status line = %q, want HTTP/1.0 404 Not Found prefix", strings.SplitN(resp, "\r\n", 2)[0])
	}
	if !strings.Contains(resp, "Connection: close") {
		t.Error("HTTP/1.0 response without keep-alive should carry Connection: close")
	}
	if !strings.Contains(resp, "nxweb/1") {
		t.Error("body should be present and non-empty")
	}
}

// S2: GET /a/../b HTTP/1.1 is dispatched as if path = /b.
func TestScenarioS2DotSegmentNormalization(t *testing.T) {
	var gotURI string
	disp := dispatchFunc(func(req *Request, p *ServerProto) *Response {
		gotURI = req.URI
		return &Response{Status: 200, Kind: ContentNone}
	})
	p, _ := newTestProto(t, disp)

	p.FeedBytes([]byte("GET /a/../b HTTP/1.1\r\nHost: x\r\n\r\n"), func(status int, close bool) {
		t.Fatalf("unexpected protocol error %d", status)
	})

	if gotURI != "/b" {
		t.Errorf("dispatched URI = %q, want /b", gotURI)
	}
}

// S3: a Content-Length-framed POST body arrives in one piece and the
// handler observes the full content plus ContentReceived.
func TestScenarioS3InMemoryBody(t *testing.T) {
	var gotContent string
	var gotReceived int64
	disp := dispatchFunc(func(req *Request, p *ServerProto) *Response {
		gotContent = string(req.Content)
		gotReceived = req.ContentReceived
		return &Response{Status: 200, Kind: ContentNone}
	})
	p, _ := newTestProto(t, disp)

	p.FeedBytes([]byte("POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nHELLO"), func(status int, close bool) {
		t.Fatalf("unexpected protocol error %d", status)
	})

	if gotContent != "HELLO" || gotReceived != 5 {
		t.Errorf("content=%q received=%d, want HELLO/5", gotContent, gotReceived)
	}
}

// S3 split across two reads: body arrives after the request line/headers
// in a second FeedBytes call.
func TestScenarioS3InMemoryBodySplitAcrossReads(t *testing.T) {
	var gotContent string
	disp := dispatchFunc(func(req *Request, p *ServerProto) *Response {
		gotContent = string(req.Content)
		return &Response{Status: 200, Kind: ContentNone}
	})
	p, _ := newTestProto(t, disp)

	fail := func(status int, close bool) { t.Fatalf("unexpected protocol error %d", status) }
	p.FeedBytes([]byte("POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nHEL"), fail)
	p.FeedBytes([]byte("LO"), fail)

	if gotContent != "HELLO" {
		t.Errorf("content = %q, want HELLO", gotContent)
	}
}

// S4: a chunked request body decodes to the concatenation of its chunks.
func TestScenarioS4ChunkedBody(t *testing.T) {
	var gotContent string
	disp := dispatchFunc(func(req *Request, p *ServerProto) *Response {
		gotContent = string(req.Content)
		return &Response{Status: 200, Kind: ContentNone}
	})
	p, _ := newTestProto(t, disp)

	raw := "POST /u HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nHELLO\r\n0\r\n\r\n"
	p.FeedBytes([]byte(raw), func(status int, close bool) {
		t.Fatalf("unexpected protocol error %d", status)
	})

	if gotContent != "HELLO" {
		t.Errorf("content = %q, want HELLO", gotContent)
	}
}

// S6: two pipelined GETs on one connection each get a full response and
// the protocol returns to StateWaiting between them (keep-alive).
func TestScenarioS6PipelinedKeepAlive(t *testing.T) {
	n := 0
	disp := dispatchFunc(func(req *Request, p *ServerProto) *Response {
		n++
		return &Response{Status: 200, Kind: ContentNone, KeepAlive: true}
	})
	p, out := newTestProto(t, disp)

	fail := func(status int, close bool) { t.Fatalf("unexpected protocol error %d", status) }
	first := "GET /a HTTP/1.1\r\nHost: x\r\n\r\n"
	p.FeedBytes([]byte(first), fail)
	if n != 1 {
		t.Fatalf("after first request n = %d, want 1", n)
	}
	if p.State() != StateWaiting {
		t.Fatalf("state after first response = %v, want StateWaiting (ready for next pipelined request)", p.State())
	}

	second := "GET /b HTTP/1.1\r\nHost: x\r\n\r\n"
	p.FeedBytes([]byte(second), fail)
	if n != 2 {
		t.Fatalf("after second request n = %d, want 2", n)
	}

	if strings.Count(string(out.written), "HTTP/1.1 200") != 2 {
		t.Errorf("expected two full responses on the wire, got %q", out.written)
	}
}

func TestFeedBytesRejectsOversizedHeaders(t *testing.T) {
	old := MaxHeadersSize
	MaxHeadersSize = 16
	defer func() { MaxHeadersSize = old }()

	disp := dispatchFunc(func(req *Request, p *ServerProto) *Response {
		t.Fatal("dispatch should not run for an oversized header block")
		return nil
	})
	p, _ := newTestProto(t, disp)

	var gotStatus int
	p.FeedBytes([]byte("GET /aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa HTTP/1.1\r\n"), func(status int, close bool) {
		gotStatus = status
	})
	if gotStatus != 400 {
		t.Errorf("status = %d, want 400 for oversized still-incomplete headers", gotStatus)
	}
}

func TestFeedBytesRejectsOversizedBody(t *testing.T) {
	old := MaxRequestBodySize
	MaxRequestBodySize = 3
	defer func() { MaxRequestBodySize = old }()

	disp := dispatchFunc(func(req *Request, p *ServerProto) *Response {
		t.Fatal("dispatch should not run when the declared body exceeds the cap")
		return nil
	})
	p, _ := newTestProto(t, disp)

	var gotStatus int
	var closeAfter bool
	p.FeedBytes([]byte("POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nHELLO"), func(status int, close bool) {
		gotStatus, closeAfter = status, close
	})
	if gotStatus != 413 || !closeAfter {
		t.Errorf("status=%d closeAfter=%v, want 413/true", gotStatus, closeAfter)
	}
}
