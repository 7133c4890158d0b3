package handler

import (
	"testing"

	"github.com/nxweb/nxweb/internal/httpserver"
)

func TestPrefixDispatchMatchesTerminators(t *testing.T) {
	h := &Handler{Prefix: "/api"}
	matches := []string{"/api", "/api/x", "/api?q", "/api;v"}
	for _, uri := range matches {
		if !h.matchesPrefix(uri) {
			t.Errorf("matchesPrefix(%q) = false, want true", uri)
		}
	}
	if h.matchesPrefix("/apix") {
		t.Error("matchesPrefix(\"/apix\") = true, want false (not a proper prefix)")
	}
}

func TestVhostWildcardMatch(t *testing.T) {
	h := &Handler{Vhost: ".example.com"}
	for _, host := range []string{"foo.example.com", "example.com"} {
		if !h.matchesVhost(host) {
			t.Errorf("matchesVhost(%q) = false, want true", host)
		}
	}
	if h.matchesVhost("badexample.com") {
		t.Error("matchesVhost(\"badexample.com\") = true, want false")
	}
}

func TestSelectPicksFirstMatchingHandlerInPriorityOrder(t *testing.T) {
	r := NewRegistry()
	r.Add(&Handler{Name: "low", Prefix: "/", Priority: 10})
	r.Add(&Handler{Name: "high", Prefix: "/", Priority: 1})

	h, selectErr := r.Select(&httpserver.Request{Method: "GET", URI: "/x"}, false)
	if h == nil || h.Name != "high" {
		t.Fatalf("Select returned %v, want the priority-1 handler", h)
	}
	if selectErr {
		t.Error("selectErr = true for a normal match")
	}
}

func TestSelectHonorsOnSelectNext(t *testing.T) {
	r := NewRegistry()
	r.Add(&Handler{Name: "skip", Prefix: "/", Priority: 1, Callbacks: Callbacks{
		OnSelect: func(req *httpserver.Request) Result { return ResultNext },
	}})
	r.Add(&Handler{Name: "fallback", Prefix: "/", Priority: 2})

	h, selectErr := r.Select(&httpserver.Request{Method: "GET", URI: "/x"}, false)
	if h == nil || h.Name != "fallback" {
		t.Fatalf("Select returned %v, want fallback after ResultNext", h)
	}
	if selectErr {
		t.Error("selectErr = true, want false")
	}
}

func TestSelectReportsOnSelectError(t *testing.T) {
	r := NewRegistry()
	r.Add(&Handler{Name: "broken", Prefix: "/", Priority: 1, Callbacks: Callbacks{
		OnSelect: func(req *httpserver.Request) Result { return ResultError },
	}})

	h, selectErr := r.Select(&httpserver.Request{Method: "GET", URI: "/x"}, false)
	if h == nil || h.Name != "broken" {
		t.Fatalf("Select returned %v, want the erroring handler itself", h)
	}
	if !selectErr {
		t.Error("selectErr = false, want true when OnSelect returns ResultError")
	}
}

func TestSelectReturnsNilWhenNothingMatches(t *testing.T) {
	r := NewRegistry()
	r.Add(&Handler{Name: "api", Prefix: "/api", Priority: 1})

	h, selectErr := r.Select(&httpserver.Request{Method: "GET", URI: "/other"}, false)
	if h != nil || selectErr {
		t.Errorf("Select(%v, %v), want (nil, false)", h, selectErr)
	}
}

func TestSelectSkipsIncompatibleSecurityMode(t *testing.T) {
	r := NewRegistry()
	r.Add(&Handler{Name: "secure-only", Prefix: "/", Priority: 1, Security: SecurityOnly})
	r.Add(&Handler{Name: "any", Prefix: "/", Priority: 2})

	h, _ := r.Select(&httpserver.Request{Method: "GET", URI: "/x"}, false)
	if h == nil || h.Name != "any" {
		t.Fatalf("Select over plaintext connection returned %v, want \"any\"", h)
	}
}
