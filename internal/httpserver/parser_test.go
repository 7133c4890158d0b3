package httpserver

import (
	"strings"
	"testing"

	"github.com/nxweb/nxweb/internal/arena"
)

func parseFull(t *testing.T, raw string) *Request {
	t.Helper()
	a := arena.New(0)
	end := FindHeadersEnd([]byte(raw))
	if end < 0 {
		t.Fatalf("FindHeadersEnd did not find a terminator in %q", raw)
	}
	req, err := ParseRequest([]byte(raw[:end]), a)
	if err != nil {
		t.Fatalf("ParseRequest(%q) = %v", raw, err)
	}
	return req
}

func TestParseRequestBasics(t *testing.T) {
	req := parseFull(t, "GET /a/../b HTTP/1.1\r\nHost: example.com\r\n\r\n")
	if req.Method != "GET" || req.URI != "/b" || req.Host != "example.com" {
		t.Errorf("got Method=%q URI=%q Host=%q", req.Method, req.URI, req.Host)
	}
	if !req.HTTP11 || !req.KeepAlive {
		t.Error("HTTP/1.1 request should default to HTTP11=true, KeepAlive=true")
	}
}

func TestParseRequestHEADRewrittenToGET(t *testing.T) {
	req := parseFull(t, "HEAD /x HTTP/1.1\r\nHost: example.com\r\n\r\n")
	if !req.Head || req.Method != "GET" || !req.Get {
		t.Errorf("HEAD request should rewrite Method to GET with Head=true, got Method=%q Head=%v", req.Method, req.Head)
	}
}

func TestParseRequestHTTP10DefaultsToClose(t *testing.T) {
	req := parseFull(t, "GET / HTTP/1.0\r\nHost: example.com\r\n\r\n")
	if req.HTTP11 {
		t.Error("HTTP/1.0 request reported HTTP11=true")
	}
	if req.KeepAlive {
		t.Error("HTTP/1.0 request without Connection: keep-alive should default KeepAlive=false")
	}
	if req.Proto != "HTTP/1.0" {
		t.Errorf("Proto = %q, want HTTP/1.0", req.Proto)
	}
}

func TestParseRequestConnectionHeaderOverridesDefault(t *testing.T) {
	req := parseFull(t, "GET / HTTP/1.0\r\nHost: example.com\r\nConnection: keep-alive\r\n\r\n")
	if !req.KeepAlive {
		t.Error("Connection: keep-alive on an HTTP/1.0 request should set KeepAlive=true")
	}

	req = parseFull(t, "GET / HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n")
	if req.KeepAlive {
		t.Error("Connection: close on an HTTP/1.1 request should set KeepAlive=false")
	}
}

func TestParseRequestMissingHost(t *testing.T) {
	a := arena.New(0)
	raw := "GET / HTTP/1.1\r\n\r\n"
	end := FindHeadersEnd([]byte(raw))
	_, err := ParseRequest([]byte(raw[:end]), a)
	if err != ErrMissingHost {
		t.Errorf("err = %v, want ErrMissingHost", err)
	}
}

func TestParseRequestRejectsDotDotEscape(t *testing.T) {
	a := arena.New(0)
	raw := "GET /.. HTTP/1.1\r\nHost: example.com\r\n\r\n"
	end := FindHeadersEnd([]byte(raw))
	_, err := ParseRequest([]byte(raw[:end]), a)
	if err != ErrMalformed {
		t.Errorf("err = %v, want ErrMalformed for a root-escaping URI", err)
	}
}

func TestParseRequestTrailerHeaderRejected(t *testing.T) {
	a := arena.New(0)
	raw := "GET / HTTP/1.1\r\nHost: example.com\r\nTrailer: X-Foo\r\n\r\n"
	end := FindHeadersEnd([]byte(raw))
	_, err := ParseRequest([]byte(raw[:end]), a)
	if err != ErrBadTrailer {
		t.Errorf("err = %v, want ErrBadTrailer", err)
	}
}

func TestParseRequestURITooLong(t *testing.T) {
	old := MaxURILength
	MaxURILength = 8
	defer func() { MaxURILength = old }()

	a := arena.New(0)
	raw := "GET /this-is-way-too-long HTTP/1.1\r\nHost: example.com\r\n\r\n"
	end := FindHeadersEnd([]byte(raw))
	_, err := ParseRequest([]byte(raw[:end]), a)
	if err != ErrURITooLong {
		t.Errorf("err = %v, want ErrURITooLong", err)
	}
}

func TestParseRequestChunkedEncoding(t *testing.T) {
	req := parseFull(t, "POST /up HTTP/1.1\r\nHost: example.com\r\nTransfer-Encoding: chunked\r\n\r\n")
	if !req.ChunkedEncoding {
		t.Error("Transfer-Encoding: chunked should set ChunkedEncoding=true")
	}
}

func TestParseRequestHeaderFolding(t *testing.T) {
	req := parseFull(t, "GET / HTTP/1.1\r\nHost: example.com\r\nX-Foo: bar\r\n baz\r\n\r\n")
	if got := req.Headers["x-foo"]; got != "bar baz" {
		t.Errorf("folded header = %q, want \"bar baz\"", got)
	}
}

func TestParseRequestAbsoluteURI(t *testing.T) {
	req := parseFull(t, "GET http://Example.com/a HTTP/1.1\r\nHost: other.example\r\n\r\n")
	if req.Host != "example.com" || req.URI != "/a" {
		t.Errorf("got Host=%q URI=%q, want example.com /a (absolute-form host wins)", req.Host, req.URI)
	}
}

func TestFindHeadersEndIncomplete(t *testing.T) {
	if end := FindHeadersEnd([]byte("GET / HTTP/1.1\r\nHost: x")); end != -1 {
		t.Errorf("FindHeadersEnd on incomplete headers = %d, want -1", end)
	}
}

func TestFindHeadersEndLFOnly(t *testing.T) {
	raw := "GET / HTTP/1.1\nHost: x\n\n"
	if end := FindHeadersEnd([]byte(raw)); end != strings.Index(raw, "\n\n")+2 {
		t.Errorf("FindHeadersEnd with bare LF terminator = %d", end)
	}
}
