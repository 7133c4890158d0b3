package handler

import "github.com/nxweb/nxweb/internal/httpserver"

// RedirectConfig configures a host-redirect handler, supplemented from
// original_source's src/lib/modules/host_redirect.c, which the
// distillation dropped: a small handler that redirects a whole vhost to a
// canonical host (301 when Permanent, else 302), preserving path and query.
type RedirectConfig struct {
	TargetHost string
	Permanent  bool // true -> 301, false -> 302
}

// NewHostRedirectHandler builds a Handler that redirects every request on
// vhost to cfg.TargetHost.
func NewHostRedirectHandler(vhost string, priority int, cfg RedirectConfig) *Handler {
	status := 302
	if cfg.Permanent {
		status = 301
	}
	h := &Handler{
		Name:     "host_redirect",
		Vhost:    vhost,
		Priority: priority,
		Params:   cfg,
	}
	h.Callbacks.OnRequest = func(req *httpserver.Request) *httpserver.Response {
		location := "http://" + cfg.TargetHost + req.RawURI
		return &httpserver.Response{
			Status:        status,
			Kind:          httpserver.ContentNone,
			ContentLength: 0,
			ExtraHeaders:  map[string]string{"Location": location},
		}
	}
	return h
}
