// Package cache implements the in-memory response cache spec.md §4.3/§3
// describes: one process-global hash (a Go map) plus an LRU doubly-linked
// list over refcounted CacheRec entries, keyed by the filter-chain
// composed cache key.
//
// Grounded on no single teacher file (the teacher has no response cache);
// built from spec.md §3/§4.3/§8 property 6 and §9's "Reference counting
// into the cache" design note ("Arc<CacheEntry> ... LRU holds weak
// references plus an owning slot whose drop unlinks the entry"), realized
// here as Go's container/list (the teacher's own choice for LRU structures
// in core/sendfile.FileCache and core/pools.byte_pool tiering) plus a
// plain map for the hash half, with explicit refcounts instead of Rust's
// Arc.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/nxweb/nxweb/internal/httpserver"
)

// Rec is spec.md §3's CacheRec entity.
type Rec struct {
	Key           string
	ContentLength int64
	ContentType   string
	Charset       string
	Expires       time.Time
	LastModified  time.Time
	Gzip          bool
	Bytes         []byte

	refcount int
	element  *list.Element
}

// MemCache is the process-global response cache. All operations are
// taken under one mutex, held only across hash/LRU updates and never
// across I/O, per spec.md §5: "it is process-global; all operations are
// done under _nxweb_cache_mutex, which is held only across hash and LRU
// updates, never across I/O."
type MemCache struct {
	mu       sync.Mutex
	entries  map[string]*Rec
	lru      *list.List // front = most recently used
	capacity int
	maxItem  int64
	ttl      time.Duration

	hits, misses uint64
}

// Config configures a MemCache, spec.md §4.3: "Capacity
// NXWEB_MAX_CACHED_ITEMS; item size cap NXWEB_MAX_CACHED_ITEM_SIZE;
// default TTL 30 s."
type Config struct {
	Capacity    int
	MaxItemSize int64
	TTL         time.Duration
}

// New creates a MemCache per cfg, filling in spec defaults for zero values.
func New(cfg Config) *MemCache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}
	if cfg.MaxItemSize <= 0 {
		cfg.MaxItemSize = 1 << 20
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &MemCache{
		entries:  make(map[string]*Rec),
		lru:      list.New(),
		capacity: cfg.Capacity,
		maxItem:  cfg.MaxItemSize,
		ttl:      cfg.TTL,
	}
}

// Lookup answers spec.md §4.3's "not-modified-since is evaluated before
// refcount is incremented" ordering by leaving 304 decisions to the
// caller (internal/handler) and only ever incrementing refcount on an
// actual cache hit that will back a live Response.
func (c *MemCache) Lookup(key string) (*httpserver.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[key]
	if !ok || time.Now().After(rec.Expires) {
		c.misses++
		return nil, false
	}
	c.hits++
	rec.refcount++
	c.lru.MoveToFront(rec.element)

	return &httpserver.Response{
		Status:        200,
		Kind:          httpserver.ContentMemory,
		MemContent:    rec.Bytes,
		ContentLength: rec.ContentLength,
		ContentType:   rec.ContentType,
		LastModified:  rec.LastModified,
		HasLastMod:    true,
		ExtraHeaders:  map[string]string{"X-Nxweb-Cache-Key": key},
	}, true
}

// Release decrements the refcount the Response returned by Lookup was
// holding, per spec.md §3's invariant: "A CacheRec's refcount is >=
// number of live Responses pointing at its bytes." Call this from the
// protocol's response-complete finalizer (spec.md §4.3).
func (c *MemCache) Release(resp *httpserver.Response) {
	key, ok := resp.ExtraHeaders["X-Nxweb-Cache-Key"]
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.entries[key]
	if !ok {
		return
	}
	if rec.refcount > 0 {
		rec.refcount--
	}
}

// Put inserts or replaces the entry for key, evicting the LRU tail while
// over capacity, skipping any entry whose refcount > 0 — spec.md §9 open
// question, decided here to accept the pathological case rather than
// evict soft limits strictly (see DESIGN.md).
func (c *MemCache) Put(rec *Rec) bool {
	if int64(len(rec.Bytes)) > c.maxItem {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec.Expires.IsZero() {
		rec.Expires = time.Now().Add(c.ttl)
	}
	if existing, ok := c.entries[rec.Key]; ok {
		c.lru.Remove(existing.element)
	}
	rec.element = c.lru.PushFront(rec)
	c.entries[rec.Key] = rec

	c.evictOverCapacity()
	return true
}

// evictOverCapacity walks backwards from the LRU tail, skipping any
// refcount>0 entry, per spec.md §9: "cache_check_size walks only
// backwards from LRU tail skipping any refcount>0 entry; in pathological
// cases this can leave the cache over capacity indefinitely."
func (c *MemCache) evictOverCapacity() {
	for len(c.entries) > c.capacity {
		e := c.lru.Back()
		evicted := false
		for e != nil {
			rec := e.Value.(*Rec)
			prev := e.Prev()
			if rec.refcount == 0 {
				c.lru.Remove(e)
				delete(c.entries, rec.Key)
				evicted = true
				break
			}
			e = prev
		}
		if !evicted {
			return
		}
	}
}

// Revalidate refreshes an entry's expiry in place if revalidatedMtime
// matches the stored LastModified, per spec.md §4.3: "if a
// revalidated_mtime is supplied and matches the stored entry's
// last_modified, the expiry is refreshed in place."
func (c *MemCache) Revalidate(key string, revalidatedMtime time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.entries[key]
	if !ok || !rec.LastModified.Equal(revalidatedMtime) {
		return false
	}
	rec.Expires = time.Now().Add(c.ttl)
	return true
}

// Stats reports hit/miss counters and live-entry count for
// internal/metrics and internal/diag.
func (c *MemCache) Stats() (hits, misses uint64, entries, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.entries), c.capacity
}
