package httpserver

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/nxweb/nxweb/internal/arena"
)

var (
	ErrMalformed    = errors.New("httpserver: malformed request line or headers")
	ErrMissingHost  = errors.New("httpserver: missing Host header")
	ErrBadTrailer   = errors.New("httpserver: illegal Trailer header")
	ErrHeaderTooBig = errors.New("httpserver: request header block too large")
	ErrURITooLong   = errors.New("httpserver: request URI too long")
)

// MaxHeadersSize is NXWEB_MAX_REQUEST_HEADERS_SIZE (spec.md §4.2): exceeding
// it while still awaiting the end-of-headers terminator is a 400.
var MaxHeadersSize = 8192

// MaxURILength bounds the request-line URI (spec.md §7: "URI too long ⇒
// 414, close"). The spec names no fixed constant for this limit; 8192 is
// chosen to match MaxHeadersSize's order of magnitude.
var MaxURILength = 8192

// MaxRequestBodySize is NXWEB_MAX_REQUEST_BODY_SIZE (spec.md §4.2 body
// mode 3, §7: "Body too large ⇒ 413, close"), enforced against the
// in-memory buffering sink. The spec names no fixed default; 10MiB is
// chosen as a conventional default for an in-memory body cap.
var MaxRequestBodySize int64 = 10 << 20

// FindHeadersEnd locates the end of the header block ("\r\n\r\n" or
// "\n\n"), returning the offset just past the terminator, or -1 if the
// headers are not yet complete. Callers must also enforce MaxHeadersSize
// themselves against the still-incomplete buffer length.
func FindHeadersEnd(buf []byte) int {
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		return i + 4
	}
	if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
		return i + 2
	}
	return -1
}

// ParseRequest parses one complete HTTP request (request line + headers)
// out of buf, copying every retained string into a, per the arena
// ownership invariant (spec.md §3). buf is the raw bytes up to and
// including the headers terminator; any bytes after headersEnd are the
// start of the body and are left for the caller.
func ParseRequest(buf []byte, a *arena.Arena) (*Request, error) {
	lineEnd := bytes.IndexByte(buf, '\n')
	if lineEnd < 0 {
		return nil, ErrMalformed
	}
	line := buf[:lineEnd]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 < 0 {
		return nil, ErrMalformed
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 < 0 {
		return nil, ErrMalformed
	}
	sp2 += sp1 + 1

	req := &Request{ContentLength: -1, arena: a}
	method := strings.ToUpper(string(line[:sp1]))
	if method == "HEAD" {
		req.Head = true
		method = "GET"
	}
	req.Method = a.AppendString(method)
	req.Get = req.Method == "GET"
	req.Post = req.Method == "POST"

	if sp2-(sp1+1) > MaxURILength {
		return nil, ErrURITooLong
	}
	rawURI := a.AppendString(string(line[sp1+1 : sp2]))
	req.RawURI = rawURI
	req.Proto = a.AppendString(string(line[sp2+1:]))
	req.HTTP11 = req.Proto == "HTTP/1.1"
	req.KeepAlive = req.HTTP11

	absHost := ""
	if host, path, ok := SplitAbsoluteURI(rawURI); ok {
		absHost = a.AppendString(host)
		rawURI = path
	}

	normalized, ok := NormalizeURI(rawURI)
	if !ok {
		return nil, ErrMalformed
	}
	req.URI = a.AppendString(normalized)

	headerData := buf[lineEnd+1:]
	if err := parseHeaders(req, headerData, a); err != nil {
		return nil, err
	}
	// An absolute-form request-URI's host takes precedence over a Host
	// header, which parseHeaders has just copied into req.Host.
	if absHost != "" {
		req.Host = absHost
	}

	if req.Host == "" {
		if h, ok := req.Headers["host"]; ok {
			req.Host = strings.ToLower(h)
		}
	}
	if req.Host == "" {
		return nil, ErrMissingHost
	}

	switch strings.ToLower(req.Connection) {
	case "close":
		req.KeepAlive = false
	case "keep-alive":
		req.KeepAlive = true
	}

	if req.TransferEncoding != "" && strings.Contains(strings.ToLower(req.TransferEncoding), "chunked") {
		req.ChunkedEncoding = true
	} else if req.ContentType != "" || req.Headers["content-length"] != "" {
		if cl, ok := req.Headers["content-length"]; ok {
			if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
				req.ContentLength = n
			}
		}
	}
	if cl, ok := req.Headers["content-length"]; ok && req.ContentLength < 0 {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			req.ContentLength = n
		}
	}

	if strings.EqualFold(req.Expect, "100-continue") {
		req.Expect100Continue = true
	}
	if strings.Contains(strings.ToLower(req.AcceptEncoding), "gzip") {
		req.AcceptGzipEncoding = true
	}

	return req, nil
}

// knownHeaders are copied into named Request fields. parseHeaders also
// keeps them, like every other header, in the generic Headers map.
var knownHeaders = map[string]func(*Request, string){
	"host":               func(r *Request, v string) { r.Host = strings.ToLower(v) },
	"range":              func(r *Request, v string) { r.Range = v },
	"cookie":             func(r *Request, v string) { r.Cookie = v },
	"user-agent":         func(r *Request, v string) { r.UserAgent = v },
	"content-type":       func(r *Request, v string) { r.ContentType = v },
	"transfer-encoding":  func(r *Request, v string) { r.TransferEncoding = v },
	"connection":         func(r *Request, v string) { r.Connection = v },
	"accept-encoding":    func(r *Request, v string) { r.AcceptEncoding = v },
	"if-modified-since":  func(r *Request, v string) { r.IfModifiedSince = v },
	"expect":             func(r *Request, v string) { r.Expect = v },
	"x-nxweb-ssi":        func(r *Request, v string) { r.XNXWEBSSI = v },
	"x-nxweb-templates":  func(r *Request, v string) { r.XNXWEBTemplates = v },
}

func parseHeaders(req *Request, data []byte, a *arena.Arena) error {
	req.Headers = make(map[string]string, 8)
	var lastKey string

	for len(data) > 0 {
		lineEnd := bytes.IndexByte(data, '\n')
		if lineEnd < 0 {
			lineEnd = len(data)
		}
		line := data[:lineEnd]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		if len(line) == 0 {
			break
		}

		// Header folding: leading whitespace continues the previous value
		// (spec.md §6 "header folding").
		if (line[0] == ' ' || line[0] == '\t') && lastKey != "" {
			cont := strings.TrimSpace(string(line))
			merged := a.AppendString(req.Headers[lastKey] + " " + cont)
			req.Headers[lastKey] = merged
			if fn, ok := knownHeaders[lastKey]; ok {
				fn(req, merged)
			}
			if lineEnd == len(data) {
				break
			}
			data = data[lineEnd+1:]
			continue
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return ErrMalformed
		}
		key := strings.ToLower(strings.TrimSpace(string(line[:colon])))
		value := strings.TrimSpace(string(line[colon+1:]))

		if key == "trailer" {
			return ErrBadTrailer
		}
		if !httpguts.ValidHeaderFieldName(key) || !httpguts.ValidHeaderFieldValue(value) {
			return ErrMalformed
		}

		value = a.AppendString(value)
		req.Headers[key] = value
		lastKey = key
		if fn, ok := knownHeaders[key]; ok {
			fn(req, value)
		}

		if lineEnd == len(data) {
			break
		}
		data = data[lineEnd+1:]
	}
	return nil
}
