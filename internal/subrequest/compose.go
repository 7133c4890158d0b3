package subrequest

import (
	"github.com/nxweb/nxweb/internal/arena"
	"github.com/nxweb/nxweb/internal/eventloop"
	"github.com/nxweb/nxweb/internal/httpserver"
	"github.com/nxweb/nxweb/internal/reqid"
	"github.com/nxweb/nxweb/internal/stream"
)

// ssiErrorPlaceholder is the literal fallback body spec.md §4.5 names for
// a subrequest that fails before any of its content has been streamed.
var ssiErrorPlaceholder = []byte("<!--[ssi error]-->")

// Item is one element of a composite body as a handler authors it:
// either a literal fragment or a subrequest to splice in.
type Item struct {
	Bytes []byte
	Sub   *Request
}

// Compose runs every subrequest in items concurrently and invokes done
// with the assembled stream.Streamer once all of them have resolved.
// Because no node has begun streaming to the client yet at that point, a
// failed subrequest here is always a "failure before streaming" per
// spec.md §4.5: it is replaced with the ssi-error placeholder rather
// than aborting the whole composite. A mid-stream failure on a node
// that's already an Istream (e.g. a proxied subrequest whose backend
// drops) is instead handled later by httpserver.ServerProto's
// abortConnection, once that node is actually being read from.
func Compose(loop *eventloop.Loop, gen *reqid.Generator, disp httpserver.Dispatcher, a *arena.Arena, parent *httpserver.Request, items []Item, done func(*stream.Streamer)) {
	nodes := make([]stream.Node, len(items))
	pending := 0
	for _, it := range items {
		if it.Sub != nil {
			pending++
		}
	}

	if pending == 0 {
		s := stream.NewStreamer()
		for _, it := range items {
			s.Add(stream.Node{Bytes: it.Bytes})
		}
		done(s)
		return
	}

	remaining := pending
	finish := func() {
		s := stream.NewStreamer()
		for _, n := range nodes {
			s.Add(n)
		}
		done(s)
	}

	for i, it := range items {
		if it.Sub == nil {
			nodes[i] = stream.Node{Bytes: it.Bytes}
			continue
		}
		idx := i
		Spawn(loop, gen, disp, a, parent, *it.Sub, func(n stream.Node, err error) {
			if err != nil {
				nodes[idx] = stream.Node{Bytes: ssiErrorPlaceholder}
			} else {
				nodes[idx] = n
			}
			remaining--
			if remaining == 0 {
				finish()
			}
		})
	}
}
