package handler

import "github.com/nxweb/nxweb/internal/httpserver"

// Dispatcher implements httpserver.Dispatcher on top of a Registry,
// running the full select → filter-pipeline → on_request flow spec.md
// §4.3 describes. It is the data-flow spine spec.md §2 names:
// "dispatcher → handler.on_select → (optional) memory-cache lookup →
// handler.on_headers → ... → handler.on_request ... → response object →
// filter chain → server protocol (emit)."
type Dispatcher struct {
	Registry *Registry
	Secure   bool
	Cache    CacheLookup

	// OnWorkerRequest, if set and a matched handler has FlagInWorker,
	// offloads OnRequest to the worker factory; a nil OnWorkerRequest
	// runs everything inline.
	OnWorkerRequest func(h *Handler, req *httpserver.Request, proto *httpserver.ServerProto)
}

// CacheLookup is the subset of internal/cache.MemCache the dispatcher
// needs, kept as an interface here to avoid handler depending on cache's
// concrete refcount/eviction machinery.
type CacheLookup interface {
	Lookup(key string) (*httpserver.Response, bool)
	Release(resp *httpserver.Response)
}

// Dispatch implements httpserver.Dispatcher.
func (d *Dispatcher) Dispatch(req *httpserver.Request, proto *httpserver.ServerProto) *httpserver.Response {
	h, selectErr := d.Registry.Select(req, d.Secure)
	if h == nil {
		return notFound()
	}
	if selectErr {
		return d.emitError(h, req, 500)
	}

	d.runDecodeURI(h, req)

	key := ""
	if h.Callbacks.OnGenerateCacheKey != nil {
		key = h.Callbacks.OnGenerateCacheKey(req)
		for _, f := range h.Filters {
			key = f.TranslateCacheKey(req, key)
		}
	}

	if key != "" && d.Cache != nil {
		if resp, ok := d.serveFromCache(h, req, key); ok {
			return resp
		}
	}

	if h.Callbacks.OnHeaders != nil {
		switch h.Callbacks.OnHeaders(req, proto) {
		case ResultError:
			return d.emitError(h, req, 500)
		case ResultAsync:
			return nil // handler will call proto.SendResponse later
		}
	}

	if h.Flags&FlagInWorker != 0 && d.OnWorkerRequest != nil {
		d.OnWorkerRequest(h, req, proto)
		return nil
	}

	return d.runRequest(h, req)
}

// emitError builds the response for a handler-signaled failure (OnSelect
// or OnHeaders returning ResultError), per spec.md §4.3's "emit a
// response and stop." The handler gets first say via OnError; a nil
// callback or nil return falls back to the built-in status page.
func (d *Dispatcher) emitError(h *Handler, req *httpserver.Request, status int) *httpserver.Response {
	if h.Callbacks.OnError != nil {
		if resp := h.Callbacks.OnError(req, status); resp != nil {
			return resp
		}
	}
	return errorResponse(status)
}

func (d *Dispatcher) runRequest(h *Handler, req *httpserver.Request) *httpserver.Response {
	var resp *httpserver.Response
	if h.Callbacks.OnRequest != nil {
		resp = h.Callbacks.OnRequest(req)
	}
	if resp == nil {
		resp = notFound()
	}
	d.runDoFilter(h, req, resp)
	if h.Callbacks.OnComplete != nil {
		h.Callbacks.OnComplete(req)
	}
	for _, f := range h.Filters {
		f.Finalize(req)
	}
	return resp
}

// runDecodeURI runs DecodeURI from last filter to first, per spec.md
// §4.3. A rewritten URI is not re-checked against the handler prefix.
func (d *Dispatcher) runDecodeURI(h *Handler, req *httpserver.Request) {
	for i := len(h.Filters) - 1; i >= 0; i-- {
		if rewritten, changed := h.Filters[i].DecodeURI(req); changed {
			req.URI = rewritten
		}
	}
}

// serveFromCache runs ServeFromCache from last filter to first; a filter
// after the one that serves still runs DoFilter on the way back out
// (spec.md §4.3).
func (d *Dispatcher) serveFromCache(h *Handler, req *httpserver.Request, key string) (*httpserver.Response, bool) {
	for i := len(h.Filters) - 1; i >= 0; i-- {
		resp, ok := h.Filters[i].ServeFromCache(req, key)
		if !ok {
			continue
		}
		for j := i + 1; j < len(h.Filters); j++ {
			h.Filters[j].DoFilter(req, resp)
		}
		return resp, true
	}
	if resp, ok := d.Cache.Lookup(key); ok {
		return resp, true
	}
	return nil, false
}

// runDoFilter runs DoFilter forward over every filter, per spec.md §4.3
// "Outbound do_filter: runs forward on the assembled response."
func (d *Dispatcher) runDoFilter(h *Handler, req *httpserver.Request, resp *httpserver.Response) {
	for _, f := range h.Filters {
		f.DoFilter(req, resp)
	}
}
