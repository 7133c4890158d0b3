package handler

import (
	"sort"
	"strings"

	"github.com/nxweb/nxweb/internal/httpserver"
)

// Registry is the global singly-linked handler list ordered by ascending
// priority, spec.md §4.3 "Registration."
//
// Grounded on the teacher's core/router.RadixRouter: that router's
// first-byte `indices` map is adapted here into firstSegment, a plain
// map from a path's first static segment to the subset of handlers that
// could possibly match it, pruning the linear scan spec.md §4.3
// describes ("scan handlers in order") down to a short candidate list
// without reimplementing full radix parameter matching, which the spec's
// prefix+terminator matching rule doesn't need.
type Registry struct {
	handlers     []*Handler
	firstSegment map[string][]*Handler
	fallback     []*Handler // handlers with no static first segment (prefix "" or "/")
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{firstSegment: make(map[string][]*Handler)}
}

// Add registers h, re-sorting the handler list by ascending priority.
func (r *Registry) Add(h *Handler) {
	r.handlers = append(r.handlers, h)
	sort.SliceStable(r.handlers, func(i, j int) bool {
		return r.handlers[i].Priority < r.handlers[j].Priority
	})
	r.reindex()
}

func (r *Registry) reindex() {
	r.firstSegment = make(map[string][]*Handler)
	r.fallback = nil
	for _, h := range r.handlers {
		seg := firstSegment(h.Prefix)
		if seg == "" {
			r.fallback = append(r.fallback, h)
			continue
		}
		r.firstSegment[seg] = append(r.firstSegment[seg], h)
	}
}

func firstSegment(prefix string) string {
	if len(prefix) < 2 || prefix[0] != '/' {
		return ""
	}
	rest := prefix[1:]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return "/" + rest[:i]
	}
	return "/" + rest
}

// candidates returns every registered handler whose prefix could match
// uri, in registry (priority) order: the indexed bucket for uri's first
// segment, merged with handlers that have no indexable first segment.
func (r *Registry) candidates(uri string) []*Handler {
	if len(r.fallback) == 0 {
		return r.firstSegment[firstSegment(uri)]
	}
	want := make(map[*Handler]bool, 8)
	for _, h := range r.firstSegment[firstSegment(uri)] {
		want[h] = true
	}
	for _, h := range r.fallback {
		want[h] = true
	}
	out := make([]*Handler, 0, len(want))
	for _, h := range r.handlers {
		if want[h] {
			out = append(out, h)
		}
	}
	return out
}

// Select runs spec.md §4.3's dispatch algorithm: scan candidates in
// order, apply the four match rules, then run OnSelect. Returns the
// chosen handler, or nil if every handler fell through (caller serves the
// built-in 404). selectErr reports that the matched handler's OnSelect
// returned ResultError: per spec.md §4.3 the caller must "emit a response
// and stop" rather than continue into cache lookup/OnHeaders/OnRequest on
// that handler.
func (r *Registry) Select(req *httpserver.Request, secure bool) (h *Handler, selectErr bool) {
	for _, h := range r.candidates(req.URI) {
		if !securityCompatible(h.Security, secure) {
			continue
		}
		if !h.allowsMethod(req.Method) {
			continue
		}
		if !h.matchesVhost(req.Host) {
			continue
		}
		if !h.matchesPrefix(req.URI) {
			continue
		}
		if h.Callbacks.OnSelect != nil {
			switch h.Callbacks.OnSelect(req) {
			case ResultNext:
				continue
			case ResultError:
				return h, true
			}
		}
		return h, false
	}
	return nil, false
}

func securityCompatible(mode SecurityMode, secure bool) bool {
	switch mode {
	case SecurityInsecureOnly:
		return !secure
	case SecurityOnly:
		return secure
	default:
		return true
	}
}
