package handler

import "github.com/nxweb/nxweb/internal/httpserver"

// Filter is {name, init, decode_uri, translate_cache_key,
// serve_from_cache, do_filter, finalize} from spec.md §3/§4.3. A Filter
// that only needs one phase embeds BaseFilter for the pass-through rest.
type Filter interface {
	Name() string

	// DecodeURI may rewrite req.URI; filters run in reverse registration
	// order for this phase (spec.md §4.3 "from last filter to first").
	DecodeURI(req *httpserver.Request) (rewritten string, changed bool)

	// TranslateCacheKey extends key; filters run in forward registration
	// order.
	TranslateCacheKey(req *httpserver.Request, key string) string

	// ServeFromCache may answer the request directly; filters run in
	// reverse order, and any filter after the one that served still runs
	// DoFilter on the way back out (spec.md §4.3).
	ServeFromCache(req *httpserver.Request, key string) (*httpserver.Response, bool)

	// DoFilter post-processes an assembled response; filters run forward.
	// The Dispatcher ignores the returned Result: ResultDelay does not
	// suspend the chain.
	DoFilter(req *httpserver.Request, resp *httpserver.Response) Result

	// Finalize releases any per-request FilterData the filter attached.
	Finalize(req *httpserver.Request)
}

// BaseFilter gives every hook a pass-through default so concrete filters
// only override what they need, mirroring spec.md §9's "base handler
// inherits defaults" pattern turned into Go's embedding.
type BaseFilter struct{ FilterName string }

func (b BaseFilter) Name() string { return b.FilterName }
func (b BaseFilter) DecodeURI(*httpserver.Request) (string, bool) { return "", false }
func (b BaseFilter) TranslateCacheKey(_ *httpserver.Request, key string) string { return key }
func (b BaseFilter) ServeFromCache(*httpserver.Request, string) (*httpserver.Response, bool) {
	return nil, false
}
func (b BaseFilter) DoFilter(*httpserver.Request, *httpserver.Response) Result { return ResultOK }
func (b BaseFilter) Finalize(*httpserver.Request) {}
