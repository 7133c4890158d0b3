// Package mime provides the extension-to-content-type-and-charset table
// spec.md §1 lists as an out-of-scope external collaborator ("MIME
// tables") but §4.2 depends on for static-file responses ("a resolved
// MIME type"). Supplemented from original_source's mod_http_file module,
// which pairs a charset with specific text types rather than leaving it
// to a global default.
package mime

import (
	"path/filepath"
	"strings"
)

// Type is a resolved content type and optional charset.
type Type struct {
	ContentType string
	Charset     string // empty when not applicable (binary types)
}

var table = map[string]Type{
	".html": {"text/html", "utf-8"},
	".htm":  {"text/html", "utf-8"},
	".css":  {"text/css", "utf-8"},
	".js":   {"application/javascript", "utf-8"},
	".json": {"application/json", "utf-8"},
	".xml":  {"application/xml", "utf-8"},
	".txt":  {"text/plain", "utf-8"},
	".csv":  {"text/csv", "utf-8"},
	".svg":  {"image/svg+xml", "utf-8"},

	".png":  {"image/png", ""},
	".jpg":  {"image/jpeg", ""},
	".jpeg": {"image/jpeg", ""},
	".gif":  {"image/gif", ""},
	".webp": {"image/webp", ""},
	".ico":  {"image/x-icon", ""},

	".woff":  {"font/woff", ""},
	".woff2": {"font/woff2", ""},
	".ttf":   {"font/ttf", ""},

	".pdf":  {"application/pdf", ""},
	".zip":  {"application/zip", ""},
	".gz":   {"application/gzip", ""},
	".wasm": {"application/wasm", ""},

	".mp4":  {"video/mp4", ""},
	".webm": {"video/webm", ""},
	".mp3":  {"audio/mpeg", ""},
}

// defaultType is served for unrecognised extensions.
var defaultType = Type{ContentType: "application/octet-stream"}

// Lookup resolves a file name's extension to a Type.
func Lookup(name string) Type {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := table[ext]; ok {
		return t
	}
	return defaultType
}

// String renders the resolved Content-Type header value, including a
// charset parameter when one applies.
func (t Type) String() string {
	if t.Charset == "" {
		return t.ContentType
	}
	return t.ContentType + "; charset=" + t.Charset
}
