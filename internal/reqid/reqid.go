// Package reqid composes the 64-bit unique request identifier (spec.md
// §6): high byte = thread number, next 32 bits = Unix-second wall time,
// low 24 bits = per-thread counter, serialised as 16 zero-padded hex
// digits. It also carries root-ID propagation for
// subrequests and the outbound X-NXWEB-Request-ID / X-NXWEB-Root-Request-ID
// headers (spec.md §6, supplemented from original_source/nxweb/nx_alloc.c
// and src/lib/http_server.c's request-id wiring dropped by the
// distillation).
package reqid

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ID is a request's 64-bit unique identifier.
type ID uint64

// Generator produces IDs for one net thread; threadNum must be unique per
// thread and fit in a byte (spec.md's NXWEB_MAX_NET_THREADS=16 bound).
type Generator struct {
	threadNum byte
	counter   atomic.Uint64
}

// NewGenerator returns a Generator for the given thread number (0-255).
func NewGenerator(threadNum byte) *Generator {
	return &Generator{threadNum: threadNum}
}

// Next composes a new ID: high byte = thread number, next 32 bits =
// Unix-second wall time truncated to 32 bits, low 24 bits = a per-thread
// monotonic counter masked to 24 bits (8 + 32 + 24 = 64). The counter
// wraps after 2^24 IDs, so IDs stay unique only while one thread mints
// fewer than that within one wall-time second.
func (g *Generator) Next() ID {
	slice := uint64(time.Now().Unix()) & 0xFFFFFFFF
	n := g.counter.Add(1) & 0xFFFFFF
	return ID(uint64(g.threadNum)<<56 | slice<<24 | n)
}

// String renders the ID as 16 zero-padded hex digits, spec.md §6.
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// Pair carries a request's own ID plus the root ID of the subrequest
// chain it belongs to, for the X-NXWEB-Request-ID / X-NXWEB-Root-Request-ID
// outbound headers (spec.md §6). For a top-level request, Root == Self.
type Pair struct {
	Self ID
	Root ID
}

// Child derives a subrequest's Pair from its parent, keeping Root fixed
// while minting a fresh Self — the "root_req" propagation original_source
// threads through every subrequest level (src/lib/http_subrequest.c).
func (p Pair) Child(self ID) Pair {
	return Pair{Self: self, Root: p.Root}
}
