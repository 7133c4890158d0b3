// Package httpclient implements the outbound HTTP/1.1 client protocol and
// per-target proxy pool spec.md §4.6 describes: a state machine mirroring
// the server's, and a per-net-thread pool of idle backend connections with
// LIFO reuse, keep-alive eviction and a backend-clock-skew ring buffer.
//
// Grounded on the teacher's core/rpc/client.Client for the request/
// response round-trip shape (Go/Call/pending-map/receive-loop), adapted
// from its length-framed JSON-RPC wire format to raw HTTP/1.1 request
// lines and headers, and on core/sendfile.FileCache's per-key LRU
// free-list pattern (applied here to pooled backend connections instead
// of file descriptors).
package httpclient

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/nxweb/nxweb/internal/arena"
	"github.com/nxweb/nxweb/internal/eventloop"
	"github.com/nxweb/nxweb/internal/httpserver"
	"github.com/nxweb/nxweb/internal/stream"
)

// State is one of the 8 states spec.md §4.6 names.
type State int

const (
	StateConnecting State = iota
	StateIdle
	StateSendingHeaders
	StateWait100
	StateSendingBody
	StateWaitResponse
	StateRecvHeaders
	StateRecvBody
)

// Request is the outbound request a caller builds before Send.
type Request struct {
	Method  string
	Path    string
	Host    string
	Headers map[string]string
	Body    []byte
}

// Response is the parsed backend reply.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
	Date    string // raw Date header, for clock-skew sampling
}

// ClientProto drives one outbound connection through the request/response
// cycle, mirroring httpserver.ServerProto's shape with the roles reversed.
type ClientProto struct {
	loop *eventloop.Loop
	a    *arena.Arena

	Out stream.Ostream

	state State

	readBuf     []byte
	bodyDecoder *httpserver.ChunkedDecoder

	req  *Request
	resp *Response

	writeCursor int
	headerBlock []byte

	onDone func(*Response, error)

	writeTimer    *eventloop.Timer
	readTimer     *eventloop.Timer
	continueTimer *eventloop.Timer
}

// New creates a ClientProto bound to loop and a. Out must be set (the
// pooled connection's socket ostream) before Send.
func New(loop *eventloop.Loop, a *arena.Arena) *ClientProto {
	return &ClientProto{loop: loop, a: a, state: StateIdle}
}

// State reports the client's current state.
func (c *ClientProto) State() State { return c.state }

// Reset returns the protocol to IDLE for reuse on the next request issued
// over the same pooled connection.
func (c *ClientProto) Reset() {
	c.state = StateIdle
	c.readBuf = nil
	c.bodyDecoder = nil
	c.req = nil
	c.resp = nil
	c.writeCursor = 0
	c.headerBlock = nil
}

// Send writes req's request line and headers (and body, if any) to Out and
// transitions to WAIT_RESPONSE/SENDING_BODY as appropriate. onDone is
// called exactly once with the parsed response or an error.
func (c *ClientProto) Send(req *Request, onDone func(*Response, error)) {
	c.req = req
	c.onDone = onDone
	c.state = StateSendingHeaders

	var b bytes.Buffer
	b.WriteString(req.Method)
	b.WriteByte(' ')
	b.WriteString(req.Path)
	b.WriteString(" HTTP/1.1\r\n")
	b.WriteString("Host: ")
	b.WriteString(req.Host)
	b.WriteString("\r\n")
	if req.Body != nil {
		b.WriteString("Content-Length: ")
		b.WriteString(strconv.Itoa(len(req.Body)))
		b.WriteString("\r\n")
	}
	for k, v := range req.Headers {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	c.headerBlock = b.Bytes()

	c.pumpWrite()
}

func (c *ClientProto) pumpWrite() {
	if c.state == StateSendingHeaders {
		n, err := c.Out.Write(c.headerBlock[c.writeCursor:], stream.FlagMore)
		if err != nil {
			c.fail(err)
			return
		}
		c.writeCursor += n
		if c.writeCursor < len(c.headerBlock) {
			return
		}
		c.writeCursor = 0
		if len(c.req.Body) > 0 {
			c.state = StateSendingBody
		} else {
			c.state = StateWaitResponse
			return
		}
	}
	if c.state == StateSendingBody {
		n, err := c.Out.Write(c.req.Body[c.writeCursor:], 0)
		if err != nil {
			c.fail(err)
			return
		}
		c.writeCursor += n
		if c.writeCursor >= len(c.req.Body) {
			c.state = StateWaitResponse
		}
	}
}

// FeedBytes is called by the pooled connection with newly read socket
// bytes while state is WAIT_RESPONSE/RECV_HEADERS/RECV_BODY.
func (c *ClientProto) FeedBytes(data []byte) {
	switch c.state {
	case StateWaitResponse, StateRecvHeaders:
		c.state = StateRecvHeaders
		c.readBuf = append(c.readBuf, data...)
		c.tryParseHeaders()
	case StateRecvBody:
		c.feedBody(data)
	}
}

func (c *ClientProto) tryParseHeaders() {
	end := httpserver.FindHeadersEnd(c.readBuf)
	if end < 0 {
		return
	}
	resp, err := parseResponse(c.readBuf[:end])
	if err != nil {
		c.fail(err)
		return
	}
	c.resp = resp
	leftover := c.readBuf[end:]
	c.readBuf = nil

	if cl, ok := resp.Headers["transfer-encoding"]; ok && strings.Contains(strings.ToLower(cl), "chunked") {
		c.bodyDecoder = httpserver.NewChunkedDecoder()
		c.state = StateRecvBody
		if len(leftover) > 0 {
			c.feedBody(leftover)
		}
		return
	}

	contentLength := 0
	if cl, ok := resp.Headers["content-length"]; ok {
		if n, err := strconv.Atoi(cl); err == nil {
			contentLength = n
		}
	}
	if contentLength == 0 {
		c.finish()
		return
	}
	c.state = StateRecvBody
	if len(leftover) > 0 {
		c.feedBody(leftover)
	}
}

func (c *ClientProto) feedBody(data []byte) {
	if c.bodyDecoder != nil {
		var err error
		c.resp.Body, err = c.bodyDecoder.Decode(c.resp.Body, data, false)
		if err != nil {
			c.fail(err)
			return
		}
		if c.bodyDecoder.Done() {
			c.finish()
		}
		return
	}

	c.resp.Body = append(c.resp.Body, data...)
	wantLen := 0
	if cl, ok := c.resp.Headers["content-length"]; ok {
		wantLen, _ = strconv.Atoi(cl)
	}
	if len(c.resp.Body) >= wantLen {
		c.finish()
	}
}

func (c *ClientProto) finish() {
	resp := c.resp
	done := c.onDone
	c.onDone = nil
	if done != nil {
		done(resp, nil)
	}
}

func (c *ClientProto) fail(err error) {
	done := c.onDone
	c.onDone = nil
	if done != nil {
		done(nil, err)
	}
}

func parseResponse(buf []byte) (*Response, error) {
	lineEnd := bytes.IndexByte(buf, '\n')
	if lineEnd < 0 {
		return nil, httpserver.ErrMalformed
	}
	line := buf[:lineEnd]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	parts := bytes.SplitN(line, []byte(" "), 3)
	if len(parts) < 2 {
		return nil, httpserver.ErrMalformed
	}
	status, err := strconv.Atoi(string(parts[1]))
	if err != nil {
		return nil, httpserver.ErrMalformed
	}

	resp := &Response{Status: status, Headers: make(map[string]string, 8)}
	data := buf[lineEnd+1:]
	for len(data) > 0 {
		le := bytes.IndexByte(data, '\n')
		if le < 0 {
			le = len(data)
		}
		hline := data[:le]
		if len(hline) > 0 && hline[len(hline)-1] == '\r' {
			hline = hline[:len(hline)-1]
		}
		if len(hline) == 0 {
			break
		}
		colon := bytes.IndexByte(hline, ':')
		if colon > 0 {
			key := strings.ToLower(strings.TrimSpace(string(hline[:colon])))
			val := strings.TrimSpace(string(hline[colon+1:]))
			resp.Headers[key] = val
			if key == "date" {
				resp.Date = val
			}
		}
		if le == len(data) {
			break
		}
		data = data[le+1:]
	}
	return resp, nil
}
