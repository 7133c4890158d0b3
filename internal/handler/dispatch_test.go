package handler

import (
	"testing"

	"github.com/nxweb/nxweb/internal/httpserver"
)

func TestDispatchRunsOnRequest(t *testing.T) {
	r := NewRegistry()
	r.Add(&Handler{Prefix: "/", Callbacks: Callbacks{
		OnRequest: func(req *httpserver.Request) *httpserver.Response {
			return &httpserver.Response{Status: 200}
		},
	}})
	d := &Dispatcher{Registry: r}

	resp := d.Dispatch(&httpserver.Request{Method: "GET", URI: "/x"}, nil)
	if resp == nil || resp.Status != 200 {
		t.Fatalf("Dispatch returned %v, want status 200", resp)
	}
}

func TestDispatchFallsThroughToNotFound(t *testing.T) {
	d := &Dispatcher{Registry: NewRegistry()}
	resp := d.Dispatch(&httpserver.Request{Method: "GET", URI: "/x"}, nil)
	if resp == nil || resp.Status != 404 {
		t.Fatalf("Dispatch over an empty registry returned %v, want 404", resp)
	}
}

// When OnSelect returns ResultError, Dispatch must stop and emit an
// error response instead of continuing into OnHeaders/OnRequest.
func TestDispatchStopsOnSelectError(t *testing.T) {
	ranOnRequest := false
	r := NewRegistry()
	r.Add(&Handler{Prefix: "/", Callbacks: Callbacks{
		OnSelect: func(req *httpserver.Request) Result { return ResultError },
		OnRequest: func(req *httpserver.Request) *httpserver.Response {
			ranOnRequest = true
			return &httpserver.Response{Status: 200}
		},
	}})
	d := &Dispatcher{Registry: r}

	resp := d.Dispatch(&httpserver.Request{Method: "GET", URI: "/x"}, nil)
	if ranOnRequest {
		t.Fatal("OnRequest ran despite OnSelect returning ResultError")
	}
	if resp == nil || resp.Status != 500 {
		t.Fatalf("Dispatch returned %v, want a 500 error response", resp)
	}
}

// A handler's own OnError callback gets first say over the built-in
// error page once it's actually wired to something that can fail.
func TestDispatchUsesHandlerOnError(t *testing.T) {
	r := NewRegistry()
	r.Add(&Handler{Prefix: "/", Callbacks: Callbacks{
		OnSelect: func(req *httpserver.Request) Result { return ResultError },
		OnError: func(req *httpserver.Request, status int) *httpserver.Response {
			return &httpserver.Response{Status: status, ContentType: "application/json"}
		},
	}})
	d := &Dispatcher{Registry: r}

	resp := d.Dispatch(&httpserver.Request{Method: "GET", URI: "/x"}, nil)
	if resp == nil || resp.ContentType != "application/json" {
		t.Fatalf("Dispatch returned %v, want the handler's own OnError response", resp)
	}
}

// OnHeaders returning ResultError must also stop the chain and route
// through the same emitError path rather than proceeding to OnRequest.
func TestDispatchStopsOnHeadersError(t *testing.T) {
	ranOnRequest := false
	r := NewRegistry()
	r.Add(&Handler{Prefix: "/", Callbacks: Callbacks{
		OnHeaders: func(req *httpserver.Request, p *httpserver.ServerProto) Result { return ResultError },
		OnRequest: func(req *httpserver.Request) *httpserver.Response {
			ranOnRequest = true
			return &httpserver.Response{Status: 200}
		},
	}})
	d := &Dispatcher{Registry: r}

	resp := d.Dispatch(&httpserver.Request{Method: "GET", URI: "/x"}, nil)
	if ranOnRequest {
		t.Fatal("OnRequest ran despite OnHeaders returning ResultError")
	}
	if resp == nil || resp.Status != 500 {
		t.Fatalf("Dispatch returned %v, want a 500 error response", resp)
	}
}
