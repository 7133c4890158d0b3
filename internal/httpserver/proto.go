package httpserver

import (
	"github.com/nxweb/nxweb/internal/arena"
	"github.com/nxweb/nxweb/internal/eventloop"
	"github.com/nxweb/nxweb/internal/reqid"
	"github.com/nxweb/nxweb/internal/stream"
)

// State is one of the six states spec.md §4.2 names.
type State int

const (
	StateWaiting State = iota
	StateRecvHeaders
	StateHandling
	StateRecvBody
	StateSendHeaders
	StateSendBody
)

// Dispatcher runs the handler chain for a parsed request and produces a
// Response; internal/handler implements this.
type Dispatcher interface {
	Dispatch(req *Request, p *ServerProto) *Response
}

// BodySink is what RECV_BODY mode 2/3 write decoded body bytes into.
type BodySink interface {
	stream.Ostream
}

// ServerProto is the state machine over one keep-alive connection,
// spec.md §3's ServerProto entity and §4.2's state diagram.
//
// Grounded on the teacher's core/engine.go Connection (state field,
// handleRead/processRequest/checkKeepAlive flow) and core/http/context_fd.go
// (writeResponse's raw-write loop, generalized here into
// HeaderBlock+body emission through the stream model instead of a direct
// syscall.Write).
type ServerProto struct {
	loop   *eventloop.Loop
	gen    *reqid.Generator
	disp   Dispatcher

	state State
	arena *arena.Arena

	req  *Request
	resp *Response

	readBuf    []byte
	readOffset int

	bodyDecoder *ChunkedDecoder
	bodySink    BodySink

	keepAliveTimer *eventloop.Timer
	readTimer      *eventloop.Timer
	writeTimer     *eventloop.Timer
	continueTimer  *eventloop.Timer

	// Out is the ostream this protocol writes response bytes to (the
	// connection's socket-backed ostream). Bytes read off the socket
	// arrive through FeedBytes.
	Out stream.Ostream

	writeCursor int // bytes of HeaderBlock/body already handed to Out

	rootID reqid.ID
	parent *Request

	onClose func()

	// onSubresponse, when set, redirects SendResponse away from wire
	// serialization: internal/subrequest drives a ServerProto with no
	// socket, so its "response" is the Response value itself (destined
	// for a stream.Node), not a header block written to Out (spec.md
	// §4.5: "a child server connection ... whose protocol is driven
	// purely by in-memory byte sources and sinks").
	onSubresponse func(*Response)
}

// NewServerProto creates a protocol instance bound to loop, a request-id
// generator and a dispatcher. a is the connection-owned arena, reused
// across keep-alive requests via Reset.
func NewServerProto(loop *eventloop.Loop, gen *reqid.Generator, disp Dispatcher, a *arena.Arena) *ServerProto {
	return &ServerProto{
		loop:  loop,
		gen:   gen,
		disp:  disp,
		state: StateWaiting,
		arena: a,
	}
}

// State reports the current protocol state.
func (p *ServerProto) State() State { return p.state }

// Request returns the in-flight request: set once its headers are parsed
// (or DispatchRequest runs) and cleared when the response finishes.
func (p *ServerProto) Request() *Request { return p.req }

// SetParent marks p as driving a subrequest (internal/subrequest):
// dispatched requests inherit rootID for the X-NXWEB-Root-Request-ID
// propagation chain (spec.md §4.5) instead of minting their own root.
func (p *ServerProto) SetParent(parent *Request, rootID reqid.ID) {
	p.parent = parent
	p.rootID = rootID
}

// DispatchRequest runs req through the dispatcher directly, bypassing
// wire parsing entirely. internal/subrequest uses this: a subrequest has
// no header bytes to scan, only a synthesized Request.
func (p *ServerProto) DispatchRequest(req *Request) {
	req.ID = p.gen.Next()
	req.RootID = req.ID
	if p.parent != nil {
		req.ParentReq = p.parent
		req.RootID = p.rootID
	}
	p.req = req
	p.state = StateHandling
	p.dispatch()
}

// ConnectRequestBodyOut lets a handler route the decoded request body to
// its own ostream instead of the default in-memory buffer, spec.md §4.2
// body mode 2.
func (p *ServerProto) ConnectRequestBodyOut(sink BodySink) {
	p.bodySink = sink
}

// FeedBytes is called by the connection layer with newly read socket
// bytes; it drives RECV_HEADERS/RECV_BODY parsing. onError reports a
// status code and whether to close after responding.
func (p *ServerProto) FeedBytes(data []byte, onError func(status int, closeAfter bool)) {
	if p.keepAliveTimer != nil {
		p.loop.UnsetTimer(p.keepAliveTimer)
		p.keepAliveTimer = nil
	}

	switch p.state {
	case StateWaiting:
		p.state = StateRecvHeaders
		p.readBuf = append(p.readBuf, data...)
		p.tryParseHeaders(onError)
	case StateRecvHeaders:
		p.readBuf = append(p.readBuf, data...)
		p.tryParseHeaders(onError)
	case StateRecvBody:
		p.feedBody(data, onError)
	}
}

func (p *ServerProto) tryParseHeaders(onError func(status int, closeAfter bool)) {
	end := FindHeadersEnd(p.readBuf)
	if end < 0 {
		if len(p.readBuf) > MaxHeadersSize {
			onError(400, true)
		}
		return
	}
	req, err := ParseRequest(p.readBuf[:end], p.arena)
	if err != nil {
		status := 400
		switch err {
		case ErrBadTrailer:
			status = 501
		case ErrURITooLong:
			status = 414
		}
		onError(status, true)
		return
	}

	req.ID = p.gen.Next()
	req.RootID = req.ID
	if p.parent != nil {
		req.ParentReq = p.parent
		req.RootID = p.rootID
	}

	leftover := p.readBuf[end:]
	p.readBuf = nil
	p.readOffset = 0
	p.req = req
	p.state = StateHandling

	p.beginBody(leftover, onError)
}

// beginBody implements spec.md §4.2's three body modes.
func (p *ServerProto) beginBody(leftover []byte, onError func(status int, closeAfter bool)) {
	if p.req.ContentLength <= 0 && !p.req.ChunkedEncoding {
		p.dispatch()
		return
	}

	// spec.md §4.2 body mode 3, §7: a known Content-Length over the cap
	// is rejected before any buffering starts. bodySink (mode 2) is a
	// handler-owned sink, not the memory-capped default, so it's exempt.
	if p.bodySink == nil && !p.req.ChunkedEncoding && p.req.ContentLength > MaxRequestBodySize {
		onError(413, true)
		return
	}

	if p.req.Expect100Continue {
		p.writeContinue()
		// Bounded by the 100-continue timer (spec.md §4.2, §6: "1.5 s
		// default wait"); onError(408-ish close) fires if no body bytes
		// arrive in time.
		p.continueTimer = p.loop.SetTimer(eventloop.Timer100Continue, func() {
			if p.state == StateRecvBody && p.req != nil && p.req.ContentReceived == 0 {
				onError(408, true)
			}
		})
	}

	if p.req.ChunkedEncoding {
		p.bodyDecoder = NewChunkedDecoder()
	}

	p.state = StateRecvBody
	if len(leftover) > 0 {
		p.feedBody(leftover, onError)
	}
}

func (p *ServerProto) writeContinue() {
	if p.Out != nil {
		p.Out.Write([]byte("HTTP/1.1 100 Continue\r\n\r\n"), 0)
	}
}

func (p *ServerProto) feedBody(data []byte, onError func(status int, closeAfter bool)) {
	if p.continueTimer != nil {
		p.loop.UnsetTimer(p.continueTimer)
		p.continueTimer = nil
	}
	if p.bodySink != nil {
		p.bodySink.Write(data, stream.FlagMore)
		p.req.ContentReceived += int64(len(data))
		if p.bodyComplete() {
			p.state = StateHandling
			p.dispatch()
		}
		return
	}

	if p.req.ChunkedEncoding {
		var err error
		p.req.Content, err = p.bodyDecoder.Decode(p.req.Content, data, false)
		if err != nil {
			onError(400, true)
			return
		}
		p.req.ContentReceived = int64(len(p.req.Content))
		if p.req.ContentReceived > MaxRequestBodySize {
			onError(413, true)
			return
		}
		if p.bodyDecoder.Done() {
			p.state = StateHandling
			p.dispatch()
		}
		return
	}

	p.req.Content = append(p.req.Content, data...)
	p.req.ContentReceived = int64(len(p.req.Content))
	if p.req.ContentReceived >= p.req.ContentLength {
		p.state = StateHandling
		p.dispatch()
	}
}

func (p *ServerProto) bodyComplete() bool {
	if p.req.ChunkedEncoding {
		return p.bodyDecoder != nil && p.bodyDecoder.Done()
	}
	return p.req.ContentReceived >= p.req.ContentLength
}

func (p *ServerProto) dispatch() {
	resp := p.disp.Dispatch(p.req, p)
	if resp == nil {
		return // handler deferred to a worker/async path; SendResponse arrives later.
	}
	p.SendResponse(resp)
}

// SetSubrequest marks p as driving a child, socket-less connection
// (internal/subrequest): completed responses are handed to fn instead of
// being finalized and written to Out. Finalize/PumpWrite never run for a
// subrequest proto.
func (p *ServerProto) SetSubrequest(fn func(*Response)) {
	p.onSubresponse = fn
}

// SendResponse finalises resp and transitions to SEND_HEADERS, called
// either synchronously from dispatch or later by a worker-thread
// completion callback (spec.md §4.4 step 3). On a subrequest proto this
// instead hands the raw Response to onSubresponse (spec.md §4.5): a
// subrequest's "response" is a value the parent streams from, never
// wire bytes.
func (p *ServerProto) SendResponse(resp *Response) {
	if p.onSubresponse != nil {
		resp.KeepAlive = false
		p.resp = resp
		p.state = StateSendBody
		p.onSubresponse(resp)
		return
	}
	resp.KeepAlive = p.req.KeepAlive
	resp.Finalize(p.arena, p.loop.HTTPDate(), p.req.Proto)
	p.resp = resp
	p.state = StateSendHeaders
	p.writeCursor = 0
	p.PumpWrite()
}

// PumpWrite drains HeaderBlock then the body through Out; the connection
// layer calls this again whenever Out becomes writable.
func (p *ServerProto) PumpWrite() {
	if p.Out == nil || p.resp == nil {
		return
	}
	if p.state == StateSendHeaders {
		n, err := p.Out.Write(p.resp.HeaderBlock[p.writeCursor:], stream.FlagMore)
		if err != nil {
			return
		}
		p.writeCursor += n
		if p.writeCursor >= len(p.resp.HeaderBlock) {
			p.state = StateSendBody
			p.writeCursor = 0
		} else {
			return
		}
	}
	if p.state == StateSendBody {
		p.pumpBody()
	}
}

func (p *ServerProto) pumpBody() {
	r := p.resp
	switch r.Kind {
	case ContentNone:
		p.finishResponse()
	case ContentMemory:
		n, err := p.Out.Write(r.MemContent[p.writeCursor:], 0)
		if err != nil {
			return
		}
		p.writeCursor += n
		if p.writeCursor >= len(r.MemContent) {
			p.finishResponse()
		}
	case ContentFile:
		n, err := p.Out.Sendfile(r.FileFD, r.FileOffset+int64(p.writeCursor), r.FileEnd-r.FileOffset-int64(p.writeCursor))
		if err != nil {
			return
		}
		p.writeCursor += int(n)
		if int64(p.writeCursor) >= r.FileEnd-r.FileOffset {
			p.finishResponse()
		}
	case ContentStream:
		p.pumpStreamBody()
	}
}

func (p *ServerProto) pumpStreamBody() {
	buf := make([]byte, 32*1024)
	for {
		n, eof, err := p.resp.ContentOut.Read(buf)
		if err != nil {
			p.abortConnection()
			return
		}
		if n > 0 {
			chunk := buf[:n]
			if p.resp.ContentLength < 0 {
				chunk = p.resp.coder.Encode(nil, chunk, eof == stream.EOF)
			}
			if _, werr := p.Out.Write(chunk, stream.FlagMore); werr != nil {
				return
			}
		} else if eof == stream.EOF && p.resp.ContentLength < 0 {
			p.Out.Write(p.resp.coder.Encode(nil, nil, true), 0)
		}
		if eof == stream.EOF {
			p.finishResponse()
			return
		}
		if n == 0 {
			return // wait for more data to become ready
		}
	}
}

// finishResponse implements spec.md §4.2's keep-alive transition: reset
// the arena and return to WAITING, or request a close.
func (p *ServerProto) finishResponse() {
	keepAlive := p.resp.KeepAlive
	p.req = nil
	p.resp = nil
	p.bodySink = nil
	p.bodyDecoder = nil

	if keepAlive {
		p.arena.Reset()
		p.state = StateWaiting
		p.keepAliveTimer = p.loop.SetTimer(eventloop.TimerKeepAlive, func() {
			if p.state == StateWaiting && p.onClose != nil {
				p.onClose()
			}
		})
	} else {
		p.state = StateWaiting
		if p.onClose != nil {
			p.onClose()
		}
	}
}

// abortConnection forces an immediate non-keep-alive close, used when a
// streamed response's content_out reports a hard error mid-transfer
// (spec.md §4.5: "failure of a subrequest after streaming has started on
// any node closes the parent connection").
func (p *ServerProto) abortConnection() {
	p.req = nil
	p.resp = nil
	p.bodySink = nil
	p.bodyDecoder = nil
	p.state = StateWaiting
	if p.onClose != nil {
		p.onClose()
	}
}

// SetOnClose registers the callback the connection layer uses to request
// socket shutdown once the response finishes on a non-keep-alive
// connection.
func (p *ServerProto) SetOnClose(fn func()) { p.onClose = fn }
