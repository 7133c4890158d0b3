package httpserver

import (
	"strconv"
	"strings"
	"time"

	"github.com/nxweb/nxweb/internal/arena"
	"github.com/nxweb/nxweb/internal/eventloop"
	"github.com/nxweb/nxweb/internal/stream"
)

// ContentKind identifies which of the three mutually exclusive content
// sources a Response carries, per spec.md §4.2 "Content sources".
type ContentKind int

const (
	ContentNone ContentKind = iota
	ContentMemory
	ContentFile
	ContentStream
)

// Response mirrors spec.md §3's Response entity.
type Response struct {
	Status int

	// ExtraHeaders are caller-supplied headers not covered by a dedicated
	// field below; the whitelist filter in Finalize drops anything that
	// collides with a dedicated field (spec.md §4.2 step 3).
	ExtraHeaders map[string]string

	Kind ContentKind

	MemContent []byte

	FileFD     int
	FileOffset int64
	FileEnd    int64
	FileMeta   *FileMeta // nil means "uninitialised" (spec.md §9 open question)

	ContentOut stream.Istream

	ContentLength int64 // -1 selects chunked framing
	ContentType   string

	LastModified time.Time
	HasLastMod   bool
	Expires      time.Time
	HasExpires   bool
	ETag         string
	CacheControl string // raw override; empty means assemble from below
	Private      bool
	NoCache      bool
	MaxAge       int // -1 serialises as "max-age=0"
	HasMaxAge    bool

	KeepAlive bool

	// HeaderBlock is the finalised raw header bytes, written into the
	// arena as a single string (spec.md §4.2 step 5).
	HeaderBlock []byte

	coder ChunkedCoder
}

// FileMeta makes the "is this sendfile_info actually set" ambiguity
// spec.md §9 flags explicit instead of relying on a zero st_ino sentinel:
// a nil *FileMeta on Response means no file source at all.
type FileMeta struct {
	Size    int64
	ModTime time.Time
}

// reservedHeaders are filtered out of ExtraHeaders because they are
// always set from dedicated Response fields, per spec.md §4.2 step 3.
var reservedHeaders = map[string]bool{
	"date": true, "connection": true, "content-length": true,
	"transfer-encoding": true, "server": true, "content-type": true,
	"last-modified": true, "etag": true, "expires": true, "cache-control": true,
}

// suppressBody lists statuses that never carry an entity body, per
// spec.md §4.2 step 2.
var suppressBody = map[int]bool{204: true, 205: true, 304: true}

// serverToken is the Server header value, spec.md §4.2 step 3 ("Server:
// nxweb/<rev>"). The module keeps its own revision string here rather
// than borrowing the upstream project's.
const serverToken = "nxweb/1"

// Finalize assembles the raw header block per the ordered steps in
// spec.md §4.2: choose framing, suppress body if applicable, emit
// mandatory headers, assemble Cache-Control, then write the block into a.
// proto is the request's own protocol string (e.g. "HTTP/1.0"); an empty
// proto falls back to "HTTP/1.1" for responses with no originating
// request (spec.md §8 S1: the status line must echo the request's
// version, not a hardcoded one).
func (r *Response) Finalize(a *arena.Arena, httpDate, proto string) {
	chunked := r.ContentLength < 0 && r.Kind != ContentNone
	if suppressBody[r.Status] {
		r.Kind = ContentNone
		r.ContentLength = 0
		chunked = false
	}

	a.StartStream()
	writeStatusLine(a, proto, r.Status)
	writeHeader(a, "Server", serverToken)
	writeHeader(a, "Date", httpDate)
	if r.KeepAlive {
		writeHeader(a, "Connection", "keep-alive")
	} else {
		writeHeader(a, "Connection", "close")
	}

	if chunked {
		writeHeader(a, "Transfer-Encoding", "chunked")
	} else if !suppressBody[r.Status] {
		writeHeader(a, "Content-Length", strconv.FormatInt(r.ContentLength, 10))
	}

	if r.ContentType != "" {
		writeHeader(a, "Content-Type", r.ContentType)
	}
	if r.HasLastMod {
		writeHeader(a, "Last-Modified", eventloop.FormatHTTPDate(r.LastModified))
	}
	if r.ETag != "" {
		writeHeader(a, "ETag", r.ETag)
	}
	if r.HasExpires {
		writeHeader(a, "Expires", eventloop.FormatHTTPDate(r.Expires))
	}

	cc := r.CacheControl
	if cc == "" {
		cc = r.assembleCacheControl()
	}
	if cc != "" {
		writeHeader(a, "Cache-Control", cc)
	}

	for k, v := range r.ExtraHeaders {
		if reservedHeaders[strings.ToLower(k)] {
			continue
		}
		writeHeader(a, k, v)
	}

	a.Append([]byte("\r\n"))
	r.HeaderBlock = a.FinishStream()
}

func (r *Response) assembleCacheControl() string {
	var parts []string
	if r.Private {
		parts = append(parts, "private")
	}
	if r.NoCache {
		parts = append(parts, "no-cache")
	}
	if r.HasMaxAge {
		age := r.MaxAge
		if age == -1 {
			age = 0
		}
		parts = append(parts, "max-age="+strconv.Itoa(age))
	}
	return strings.Join(parts, ", ")
}

func writeStatusLine(a *arena.Arena, proto string, status int) {
	if proto == "" {
		proto = "HTTP/1.1"
	}
	a.Append([]byte(proto))
	a.Append([]byte(" "))
	a.Append([]byte(strconv.Itoa(status)))
	a.Append([]byte(" "))
	a.Append([]byte(statusText(status)))
	a.Append([]byte("\r\n"))
}

func writeHeader(a *arena.Arena, name, value string) {
	a.Append([]byte(name))
	a.Append([]byte(": "))
	a.Append([]byte(value))
	a.Append([]byte("\r\n"))
}

func statusText(code int) string {
	if t, ok := statusTexts[code]; ok {
		return t
	}
	return "Status"
}

var statusTexts = map[int]string{
	100: "Continue", 200: "OK", 201: "Created", 204: "No Content",
	205: "Reset Content", 206: "Partial Content", 301: "Moved Permanently",
	302: "Found", 303: "See Other", 304: "Not Modified",
	400: "Bad Request", 403: "Forbidden", 404: "Not Found",
	405: "Method Not Allowed", 413: "Payload Too Large",
	414: "URI Too Long", 500: "Internal Server Error",
	501: "Not Implemented", 502: "Bad Gateway", 503: "Service Unavailable",
	504: "Gateway Timeout",
}
