// Package httpserver implements the HTTP/1.1 server protocol state
// machine spec.md §4.2 specifies: request parsing into the connection's
// arena, chunked decode/encode, 100-continue, response framing and
// keep-alive.
//
// Grounded on the teacher's core/http package (parser.go's line/header
// scanning, request.go's pooled Request, context_fd.go's response
// writing) generalized from zero-allocation-via-unsafe-aliasing into
// arena-backed copies (internal/arena), since spec.md's arena invariant
// ("A Request's arena outlives every pointer into it") requires owned
// memory rather than aliasing the scratch read buffer, which gets reused
// across keep-alive requests.
package httpserver

import (
	"github.com/nxweb/nxweb/internal/arena"
	"github.com/nxweb/nxweb/internal/reqid"
)

// Request is one parsed request. Known headers are copied into the named
// fields below; they are not removed from the Headers map.
type Request struct {
	Method  string
	Head    bool // original method was HEAD, rewritten to GET
	Get     bool
	Post    bool

	URI     string // canonical path, post dot-normalisation
	RawURI  string // as received, before normalisation
	Host    string // lowercased

	Proto     string
	HTTP11    bool
	KeepAlive bool

	Headers map[string]string // every header by lowercased name, including those promoted below

	Range             string
	Cookie            string
	UserAgent         string
	ContentType       string
	ContentLength     int64 // -1 when absent
	TransferEncoding  string
	Connection        string
	AcceptEncoding    string
	IfModifiedSince   string
	Expect            string
	XNXWEBSSI         string
	XNXWEBTemplates   string

	ChunkedEncoding    bool
	Expect100Continue  bool
	AcceptGzipEncoding bool

	Content         []byte // in-memory-buffered body, once complete
	ContentReceived int64

	ID       reqid.ID
	RootID   reqid.ID
	ParentReq *Request

	Params  map[string]string // lazy, populated by handler/router
	Cookies map[string]string // lazy, PARSE_COOKIES flag

	arena *arena.Arena

	// filterData holds one slot per registered filter, indexed by filter
	// registration order, for per-request filter state (spec.md §4.3
	// "per-request FilterData slot").
	filterData []any
}

// Reset clears a pooled Request for reuse on the next keep-alive request
// or pool checkout, dropping the arena reference (the caller resets the
// arena itself since it is owned by the connection, not the request).
func (r *Request) Reset() {
	*r = Request{ContentLength: -1}
}

// Arena returns the request's backing allocator.
func (r *Request) Arena() *arena.Arena { return r.arena }

// FilterData returns the per-filter slot at idx, or nil if nothing was
// stored there; SetFilterData grows the slice.
func (r *Request) FilterData(idx int) any {
	if idx >= len(r.filterData) {
		return nil
	}
	return r.filterData[idx]
}

// SetFilterData stores a filter's per-request state at idx.
func (r *Request) SetFilterData(idx int, v any) {
	for len(r.filterData) <= idx {
		r.filterData = append(r.filterData, nil)
	}
	r.filterData[idx] = v
}
