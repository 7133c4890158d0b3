package handler

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/nxweb/nxweb/internal/httpserver"
	"github.com/nxweb/nxweb/internal/mime"
)

// StaticFileConfig configures a static-file handler (spec.md §3 Handler
// Params: "dir, uri, memcache, size, …").
type StaticFileConfig struct {
	Dir   string
	Cache *httpserver.FileCache
}

// NewStaticFileHandler builds a Handler serving files under cfg.Dir at
// the given prefix, implementing spec.md §7's forbidden-target and
// missing-trailing-slash error cases, and choosing a file content source
// for the response per spec.md §4.2.
//
// Grounded on the teacher's core/sendfile package for the file-serving
// shape (FileCache-backed open, GetContentType for the response header),
// generalized to return a Response rather than writing the socket
// directly.
func NewStaticFileHandler(prefix string, priority int, cfg StaticFileConfig) *Handler {
	h := &Handler{
		Name:     "static_file",
		Prefix:   prefix,
		Priority: priority,
		Flags:    MethodGet | MethodHead,
		Params:   cfg,
	}
	h.Callbacks.OnRequest = func(req *httpserver.Request) *httpserver.Response {
		rel := strings.TrimPrefix(req.URI, prefix)
		full := filepath.Join(cfg.Dir, filepath.FromSlash(rel))

		if !strings.HasPrefix(full, filepath.Clean(cfg.Dir)) {
			return errorResponse(403)
		}

		fi, err := os.Stat(full)
		if err != nil {
			return errorResponse(404)
		}
		if fi.IsDir() {
			if !strings.HasSuffix(req.URI, "/") {
				return &httpserver.Response{
					Status:        302,
					ContentLength: 0,
					ExtraHeaders:  map[string]string{"Location": req.URI + "/"},
				}
			}
			full = filepath.Join(full, "index.html")
			fi, err = os.Stat(full)
			if err != nil {
				return errorResponse(403)
			}
		}
		if !fi.Mode().IsRegular() {
			return errorResponse(403)
		}

		f, meta, err := cfg.Cache.Get(full)
		if err != nil {
			return errorResponse(404)
		}

		resp := &httpserver.Response{
			Status:        200,
			Kind:          httpserver.ContentFile,
			FileFD:        int(f.Fd()),
			FileOffset:    0,
			FileEnd:       meta.Size,
			FileMeta:      &meta,
			ContentLength: meta.Size,
			ContentType:   mime.Lookup(full).String(),
			LastModified:  meta.ModTime,
			HasLastMod:    true,
		}
		if req.IfModifiedSince != "" {
			if t, err := httpserver.ParseHTTPDate(req.IfModifiedSince); err == nil && !meta.ModTime.After(t) {
				resp.Status = 304
				resp.Kind = httpserver.ContentNone
				resp.ContentLength = 0
			}
		}
		return resp
	}
	h.Callbacks.OnGenerateCacheKey = func(req *httpserver.Request) string {
		return EncodeCacheKeyPath(req.Host + req.URI)
	}
	return h
}
