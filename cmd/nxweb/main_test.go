package main

import (
	"testing"

	"github.com/nxweb/nxweb/internal/httpserver"
)

func TestDefaultDispatcherRegistersStaticFileHandler(t *testing.T) {
	d := defaultDispatcher(nil)
	if d.Registry == nil {
		t.Fatal("Registry is nil")
	}

	req := &httpserver.Request{Method: "GET", Get: true, URI: "/index.html"}
	h, _ := d.Registry.Select(req, false)
	if h == nil {
		t.Fatal("no handler matched /index.html, want the default static-file catch-all")
	}
	if h.Prefix != "/" {
		t.Errorf("matched handler prefix = %q, want \"/\"", h.Prefix)
	}
}
