// Package pool implements the fixed-sized recyclable object pools spec.md
// §2 calls out as "≈5% of core": connection objects, arena buffers and
// read buffers, grown by chunks and garbage-collected between loop
// iterations. Grounded directly on the teacher's core/pools.SmartPool
// (warmup, hit-rate statistics, auto-optimize) and core/pools.BytePool
// (tiered byte-slice sizes), adapted from a teacher-global sync.Pool per
// kind into one pool instance owned by each net thread (spec.md §5:
// "Object pools are per-thread; never shared").
package pool

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats mirrors the teacher's SmartPoolStats shape.
type Stats struct {
	Gets    uint64
	Puts    uint64
	News    uint64
	HitRate float64
	Uptime  time.Duration
}

// Object is a pool of same-typed, reusable objects with warmup and a
// reset hook run on Put. It is the generalization of the teacher's
// SmartPool (which hard-coded http.FDContext/http.Request) to any
// poolable type via a constructor/reset pair, since spec.md needs the
// same pooling discipline for connections, arenas and read buffers alike.
type Object struct {
	pool      sync.Pool
	resetFunc func(any)

	gets, puts, news atomic.Uint64
	startTime        time.Time

	warmupSize int
}

// Config configures an Object pool.
type Config struct {
	New        func() any
	Reset      func(any)
	WarmupSize int
}

// New creates and warms up an Object pool per Config.
func New(cfg Config) *Object {
	if cfg.WarmupSize == 0 {
		cfg.WarmupSize = 100
	}
	o := &Object{
		resetFunc:  cfg.Reset,
		warmupSize: cfg.WarmupSize,
		startTime:  time.Now(),
	}
	o.pool.New = func() any {
		o.news.Add(1)
		return cfg.New()
	}
	for i := 0; i < cfg.WarmupSize; i++ {
		o.pool.Put(cfg.New())
	}
	return o
}

// Get acquires an object, allocating a fresh one on a pool miss.
func (o *Object) Get() any {
	o.gets.Add(1)
	return o.pool.Get()
}

// Put resets and returns an object to the pool.
func (o *Object) Put(v any) {
	if v == nil {
		return
	}
	o.puts.Add(1)
	if o.resetFunc != nil {
		o.resetFunc(v)
	}
	o.pool.Put(v)
}

// Stats reports current pool statistics, used by internal/diag's
// SIGUSR2 dump and internal/metrics' Prometheus gauges.
func (o *Object) Stats() Stats {
	gets := o.gets.Load()
	puts := o.puts.Load()
	news := o.news.Load()
	var hitRate float64
	if gets > 0 {
		hits := gets - news
		if hits > 0 {
			hitRate = float64(hits) / float64(gets)
		}
	}
	return Stats{Gets: gets, Puts: puts, News: news, HitRate: hitRate, Uptime: time.Since(o.startTime)}
}
