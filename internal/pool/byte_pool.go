package pool

import "sync"

// bucketSizes are the tiered read-buffer sizes, grounded on the teacher's
// core/pools.BytePool tier table. spec.md §2 calls for "connection-scoped
// arena buffers, and read buffers" to come from chunked pools rather than
// one-size-fits-all allocation, since request lines, headers and bodies
// have very different typical sizes.
var bucketSizes = [...]int{512, 1024, 4096, 16384, 65536}

// BytePool hands out []byte buffers from the smallest tier that satisfies
// the request, each tier backed by its own sync.Pool. Buffers larger than
// the biggest tier are allocated directly and never pooled.
type BytePool struct {
	tiers [len(bucketSizes)]sync.Pool
}

// NewBytePool constructs a BytePool with one sync.Pool per tier.
func NewBytePool() *BytePool {
	bp := &BytePool{}
	for i, size := range bucketSizes {
		size := size
		bp.tiers[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return bp
}

func tierFor(n int) int {
	for i, size := range bucketSizes {
		if n <= size {
			return i
		}
	}
	return -1
}

// Get returns a buffer with length n (capacity may exceed n when served
// from a tier).
func (bp *BytePool) Get(n int) []byte {
	i := tierFor(n)
	if i < 0 {
		return make([]byte, n)
	}
	bufp := bp.tiers[i].Get().(*[]byte)
	return (*bufp)[:n]
}

// Put returns a buffer to its tier pool. Buffers not matching an exact
// tier capacity (e.g. a caller-reslicable buffer from a bigger source) are
// dropped rather than mis-filed into the wrong tier.
func (bp *BytePool) Put(b []byte) {
	c := cap(b)
	for i, size := range bucketSizes {
		if c == size {
			full := b[:size]
			bp.tiers[i].Put(&full)
			return
		}
	}
}
