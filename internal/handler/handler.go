// Package handler implements the handler/filter chain spec.md §4.3
// describes: an ordered registry, per-handler filter arrays, URI-decode
// and cache-key-composition passes, and dispatch into a selected
// handler's callbacks.
package handler

import "github.com/nxweb/nxweb/internal/httpserver"

// Result is the small enum handler/filter callbacks return, spec.md §7:
// "Handler callbacks return a small enum {OK, NEXT, ASYNC, ERROR,
// REVALIDATE, MISS, DELAY}."
type Result int

const (
	ResultOK Result = iota
	ResultNext
	ResultAsync
	ResultError
	ResultRevalidate
	ResultMiss
	ResultDelay
)

// Method bitmask flags, spec.md §4.3 "flags: (method mask + INWORKER + ...)".
type Flags uint32

const (
	MethodGet Flags = 1 << iota
	MethodPost
	MethodPut
	MethodDelete
	MethodHead
	MethodOptions
	MethodPatch

	FlagInWorker
	FlagParseParameters
	FlagParseCookies
	FlagAcceptContent

	methodMask = MethodGet | MethodPost | MethodPut | MethodDelete | MethodHead | MethodOptions | MethodPatch
)

var methodFlag = map[string]Flags{
	"GET": MethodGet, "POST": MethodPost, "PUT": MethodPut,
	"DELETE": MethodDelete, "HEAD": MethodHead, "OPTIONS": MethodOptions,
	"PATCH": MethodPatch,
}

// SecurityMode restricts a handler to plaintext-only, TLS-only, or either,
// spec.md §4.3 dispatch rule 1 ("security mode compatible").
type SecurityMode int

const (
	SecurityAny SecurityMode = iota
	SecurityInsecureOnly
	SecurityOnly
)

// Callbacks bundles the handler function-pointer set from spec.md §3.
// Every field is optional; a nil OnSelect always matches. With a nil
// OnRequest the dispatcher serves the built-in 404, unless OnHeaders
// returned ResultAsync and sends its own response through the proto.
type Callbacks struct {
	OnSelect            func(req *httpserver.Request) Result
	OnHeaders           func(req *httpserver.Request, p *httpserver.ServerProto) Result
	OnPostData          func(req *httpserver.Request, data []byte)
	OnPostDataComplete  func(req *httpserver.Request) Result
	OnRequest           func(req *httpserver.Request) *httpserver.Response
	OnComplete          func(req *httpserver.Request)
	OnError             func(req *httpserver.Request, status int) *httpserver.Response
	OnGenerateCacheKey  func(req *httpserver.Request) string
}

// Handler is a registry node, spec.md §3's Handler entity.
type Handler struct {
	Name     string
	Prefix   string
	Vhost    string // leading '.' = wildcard suffix match
	Priority int
	Flags    Flags
	Security SecurityMode
	Filters  []Filter

	Callbacks Callbacks

	// Params carries handler-specific configuration (dir, uri, memcache,
	// size, …) per spec.md §3; components read it with type assertions
	// on whatever concrete config struct they registered.
	Params any
}

func (h *Handler) allowsMethod(method string) bool {
	bit, ok := methodFlag[method]
	if !ok {
		return true
	}
	if h.Flags&methodMask == 0 {
		return true // no method bits set: any method allowed
	}
	return h.Flags&bit != 0
}

// matchesVhost implements spec.md §4.3 rule 3: "wildcard suffix .domain
// matches foo.domain or domain."
func (h *Handler) matchesVhost(host string) bool {
	if h.Vhost == "" {
		return true
	}
	if h.Vhost[0] == '.' {
		suffix := h.Vhost
		bare := suffix[1:]
		return host == bare || (len(host) > len(suffix) && host[len(host)-len(suffix):] == suffix) || host == suffix
	}
	return host == h.Vhost
}

// matchesPrefix implements spec.md §4.3 rule 4: the prefix must match and
// the next URI byte must be one of \0 (end of string), '/', '?', ';'. A
// prefix that itself ends in '/' (such as the catch-all "/") already ends
// on a segment boundary, so any URI it prefixes matches.
func (h *Handler) matchesPrefix(uri string) bool {
	if h.Prefix == "" {
		return true
	}
	if len(uri) < len(h.Prefix) || uri[:len(h.Prefix)] != h.Prefix {
		return false
	}
	if len(uri) == len(h.Prefix) || h.Prefix[len(h.Prefix)-1] == '/' {
		return true
	}
	switch uri[len(h.Prefix)] {
	case '/', '?', ';':
		return true
	default:
		return false
	}
}
