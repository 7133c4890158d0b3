// Package subrequest implements spec.md §4.5's in-process requests: a
// handler spawns a child server connection with no OS socket, driven
// purely by a synthesized Request and an in-memory byte sink, and the
// resulting Response is spliced into the parent response as a
// stream.Node instead of being serialized to wire bytes.
//
// Grounded on the teacher's core/sse.Broker/stream.go pattern of
// multiplexing byte-producing sources into one flow (cited in
// SPEC_FULL.md §4.5), adapted from pub/sub fan-out to the strict
// in-order node concatenation spec.md's Streamer requires.
package subrequest

import (
	"errors"

	"github.com/nxweb/nxweb/internal/arena"
	"github.com/nxweb/nxweb/internal/eventloop"
	"github.com/nxweb/nxweb/internal/httpserver"
	"github.com/nxweb/nxweb/internal/reqid"
	"github.com/nxweb/nxweb/internal/stream"
)

// ErrFailed is reported to a Spawn callback when the child handler
// produced an error response (status >= 400). Per spec.md §4.5 SSI-style
// inclusion semantics, an erroring subrequest is treated as a failed
// node, not as literal error-page content.
var ErrFailed = errors.New("subrequest: handler returned an error response")

// Request is what a handler supplies to splice in a child request; it
// mirrors the handful of httpserver.Request fields a subrequest target
// actually needs (no wire framing, no body streaming).
type Request struct {
	Method  string
	URI     string
	Host    string
	Headers map[string]string
	Body    []byte
}

// Spawn dispatches req as a child of parent through disp and reports the
// resulting stream.Node to onReady exactly once. onReady may run
// synchronously, before Spawn returns, if the matched handler resolves
// inline (cache hit, static file); otherwise it runs later, from the
// same worker-completion callback an ordinary async request uses (spec.md
// §4.5: "the dispatcher runs as if it were a first-class request").
func Spawn(loop *eventloop.Loop, gen *reqid.Generator, disp httpserver.Dispatcher, a *arena.Arena, parent *httpserver.Request, req Request, onReady func(stream.Node, error)) {
	child := httpserver.NewServerProto(loop, gen, disp, a)
	child.SetParent(parent, parent.RootID)
	child.SetSubrequest(func(resp *httpserver.Response) {
		onReady(responseNode(resp))
	})

	method := req.Method
	if method == "" {
		method = "GET"
	}
	hreq := &httpserver.Request{
		Method:        method,
		Get:           method == "GET",
		Post:          method == "POST",
		URI:           req.URI,
		RawURI:        req.URI,
		Host:          req.Host,
		Headers:       req.Headers,
		HTTP11:        true,
		ContentLength: int64(len(req.Body)),
		Content:       req.Body,
	}
	child.DispatchRequest(hreq)
}

// responseNode converts a resolved child Response into the stream.Node
// its content source maps to, or ErrFailed for an error status.
func responseNode(resp *httpserver.Response) (stream.Node, error) {
	if resp.Status >= 400 {
		return stream.Node{}, ErrFailed
	}
	switch resp.Kind {
	case httpserver.ContentMemory:
		return stream.Node{Bytes: resp.MemContent}, nil
	case httpserver.ContentFile:
		return stream.Node{FileFD: resp.FileFD, FileOffset: resp.FileOffset, FileEnd: resp.FileEnd, IsFile: true}, nil
	case httpserver.ContentStream:
		return stream.Node{Source: resp.ContentOut}, nil
	default:
		return stream.Node{}, nil
	}
}
