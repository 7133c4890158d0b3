package handler

import "github.com/nxweb/nxweb/internal/httpserver"

// notFoundBodyTemplate is the built-in 404 HTML, spec.md §8 scenario S1: "non-empty
// HTML body including nxweb/<rev>."
const notFoundBodyTemplate = "<html><head><title>404 Not Found</title></head>" +
	"<body><h1>404 Not Found</h1><p>nxweb/1</p></body></html>"

// notFound builds the built-in 404 response, spec.md §4.3: "On fall-through,
// the built-in 404 handler is invoked."
func notFound() *httpserver.Response {
	body := []byte(notFoundBodyTemplate)
	return &httpserver.Response{
		Status:        404,
		Kind:          httpserver.ContentMemory,
		MemContent:    body,
		ContentLength: int64(len(body)),
		ContentType:   "text/html; charset=utf-8",
	}
}

// errorResponse builds a minimal response for protocol-level errors
// (400/413/414/501/etc, spec.md §7).
func errorResponse(status int) *httpserver.Response {
	body := []byte("<html><body><h1>" + statusLine(status) + "</h1></body></html>")
	return &httpserver.Response{
		Status:        status,
		Kind:          httpserver.ContentMemory,
		MemContent:    body,
		ContentLength: int64(len(body)),
		ContentType:   "text/html; charset=utf-8",
	}
}

func statusLine(status int) string {
	switch status {
	case 400:
		return "400 Bad Request"
	case 403:
		return "403 Forbidden"
	case 404:
		return "404 Not Found"
	case 405:
		return "405 Method Not Allowed"
	case 408:
		return "408 Request Timeout"
	case 413:
		return "413 Payload Too Large"
	case 414:
		return "414 URI Too Long"
	case 501:
		return "501 Not Implemented"
	case 502:
		return "502 Bad Gateway"
	case 504:
		return "504 Gateway Timeout"
	default:
		return "500 Internal Server Error"
	}
}
