// Package arena implements nxb, the bump-allocated, chained-chunk region
// spec.md §9 calls out as "the single best tool for request-scoped data":
// every parsed header name/value, the canonical URI, and the assembled
// response header block live in one Arena for the lifetime of a request,
// then the whole thing is reset in one step on connection reuse (spec.md
// §3 "ArenaBuffer (nxb)").
//
// This is the Go realization of DESIGN NOTES §9's "memory-arena nxb":
// Alloc/Calloc/Append/StartStream/FinishStream map directly onto the
// original's contract, but chunk growth and the stream-finish write are
// expressed as ordinary slice operations instead of raw pointer chains.
package arena

// defaultChunkSize is the size of each chunk the arena grows by, matching
// the original nxb's default grow-by-chunks strategy (spec.md §2).
const defaultChunkSize = 4096

// chunk is one bump-allocated block in the chain.
type chunk struct {
	buf  []byte
	used int
}

// Arena is an append-only bump allocator with chained chunks and
// stream-finish semantics. It is not safe for concurrent use — each
// connection/request owns exactly one Arena, matching spec.md's "owner:
// connection/request" lifecycle.
type Arena struct {
	chunkSize int
	chunks    []*chunk
	// streaming holds the chunk+offset where an in-progress StartStream
	// write began, so FinishStream can return the contiguous slice.
	streamChunk *chunk
	streamStart int
}

// New creates an Arena with the given chunk size (0 selects the default).
func New(chunkSize int) *Arena {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Arena{chunkSize: chunkSize}
}

// Reset discards all chunks but the first, and rewinds it to empty. This
// is the "freed wholesale on connection reuse" operation from spec.md §3:
// keeping the first chunk avoids a reallocation for the next request's
// common case.
func (a *Arena) Reset() {
	if len(a.chunks) == 0 {
		return
	}
	first := a.chunks[0]
	first.used = 0
	a.chunks = a.chunks[:1]
	a.streamChunk = nil
	a.streamStart = 0
}

func (a *Arena) lastChunk(need int) *chunk {
	if n := len(a.chunks); n > 0 {
		c := a.chunks[n-1]
		if len(c.buf)-c.used >= need {
			return c
		}
	}
	size := a.chunkSize
	if need > size {
		size = need
	}
	c := &chunk{buf: make([]byte, size)}
	a.chunks = append(a.chunks, c)
	return c
}

// Alloc returns an uninitialized slice of n bytes that is valid for the
// lifetime of the arena.
func (a *Arena) Alloc(n int) []byte {
	c := a.lastChunk(n)
	start := c.used
	c.used += n
	return c.buf[start:c.used]
}

// Calloc returns a zeroed slice of n bytes.
func (a *Arena) Calloc(n int) []byte {
	b := a.Alloc(n)
	for i := range b {
		b[i] = 0
	}
	return b
}

// Append copies data into the arena and returns the stored copy. Used for
// header names/values and any other string that must outlive its source
// read buffer, per spec.md §3's "Request's arena outlives every pointer
// into it" invariant.
func (a *Arena) Append(data []byte) []byte {
	b := a.Alloc(len(data))
	copy(b, data)
	return b
}

// AppendString is Append for a string source, returning a string backed
// by arena memory (via an unsafe-free copy, unlike the teacher's
// unsafeString technique — correctness over the teacher's zero-copy trick
// here, since arena-backed strings must survive buffer reuse).
func (a *Arena) AppendString(s string) string {
	b := a.Append([]byte(s))
	return string(b)
}

// StartStream begins a contiguous write: subsequent Alloc/Append calls may
// relocate to a new chunk, so StartStream remembers the current position
// and FinishStream returns the run as a single slice, copying it together
// if it spilled into later chunks. This mirrors the original nxb's
// start_stream/finish_stream pair used to assemble multi-part writes (the
// response header block is built exactly this way in internal/httpserver).
func (a *Arena) StartStream() {
	if len(a.chunks) == 0 {
		a.chunks = append(a.chunks, &chunk{buf: make([]byte, a.chunkSize)})
	}
	a.streamChunk = a.chunks[len(a.chunks)-1]
	a.streamStart = a.streamChunk.used
}

// FinishStream returns the bytes written since StartStream. If chunk
// growth relocated the tail of the stream to a new chunk, FinishStream
// copies the whole run into one fresh, correctly sized allocation so
// callers always get a contiguous slice.
func (a *Arena) FinishStream() []byte {
	if a.streamChunk == nil {
		return nil
	}
	if a.streamChunk == a.chunks[len(a.chunks)-1] {
		out := a.streamChunk.buf[a.streamStart:a.streamChunk.used]
		a.streamChunk = nil
		return out
	}
	// The stream spanned a chunk boundary: collect the pieces.
	var total int
	startIdx := -1
	for i, c := range a.chunks {
		if c == a.streamChunk {
			startIdx = i
		}
	}
	for i := startIdx; i < len(a.chunks); i++ {
		c := a.chunks[i]
		from := 0
		if i == startIdx {
			from = a.streamStart
		}
		total += c.used - from
	}
	out := make([]byte, 0, total)
	for i := startIdx; i < len(a.chunks); i++ {
		c := a.chunks[i]
		from := 0
		if i == startIdx {
			from = a.streamStart
		}
		out = append(out, c.buf[from:c.used]...)
	}
	a.streamChunk = nil
	return out
}

// Len reports the total bytes currently allocated across all chunks,
// useful for bounding arena growth per connection (spec.md §8 property 7:
// "Keep-alive reuse: ... the server arena is bounded").
func (a *Arena) Len() int {
	n := 0
	for _, c := range a.chunks {
		n += c.used
	}
	return n
}
