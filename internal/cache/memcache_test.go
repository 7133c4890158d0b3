package cache

import (
	"testing"
	"time"
)

func TestLookupMissIncrementsMisses(t *testing.T) {
	c := New(Config{})
	if _, ok := c.Lookup("missing"); ok {
		t.Fatal("Lookup on empty cache reported a hit")
	}
	hits, misses, _, _ := c.Stats()
	if hits != 0 || misses != 1 {
		t.Errorf("hits=%d misses=%d, want 0/1", hits, misses)
	}
}

func TestPutThenLookupHits(t *testing.T) {
	c := New(Config{})
	c.Put(&Rec{Key: "/a", Bytes: []byte("hello"), ContentLength: 5, ContentType: "text/plain"})

	resp, ok := c.Lookup("/a")
	if !ok {
		t.Fatal("Lookup after Put reported a miss")
	}
	if string(resp.MemContent) != "hello" {
		t.Errorf("MemContent = %q, want \"hello\"", resp.MemContent)
	}
	hits, misses, entries, _ := c.Stats()
	if hits != 1 || misses != 0 || entries != 1 {
		t.Errorf("hits=%d misses=%d entries=%d, want 1/0/1", hits, misses, entries)
	}
}

func TestPutRejectsOversizedItem(t *testing.T) {
	c := New(Config{MaxItemSize: 4})
	ok := c.Put(&Rec{Key: "/big", Bytes: []byte("way too big")})
	if ok {
		t.Fatal("Put accepted an item larger than MaxItemSize")
	}
	if _, ok := c.Lookup("/big"); ok {
		t.Fatal("oversized item was stored despite Put returning false")
	}
}

func TestLookupOnExpiredEntryMisses(t *testing.T) {
	c := New(Config{})
	c.Put(&Rec{Key: "/stale", Bytes: []byte("x"), Expires: time.Now().Add(-time.Second)})

	if _, ok := c.Lookup("/stale"); ok {
		t.Fatal("Lookup returned an already-expired entry")
	}
}

func TestEvictionSkipsEntriesWithLiveRefcount(t *testing.T) {
	c := New(Config{Capacity: 1})
	c.Put(&Rec{Key: "/first", Bytes: []byte("a")})
	// Lookup bumps /first's refcount to 1, so it must survive the next Put's eviction pass.
	resp, ok := c.Lookup("/first")
	if !ok {
		t.Fatal("Lookup missed the entry Put just stored")
	}

	c.Put(&Rec{Key: "/second", Bytes: []byte("b")})

	if _, ok := c.Lookup("/first"); !ok {
		t.Error("/first was evicted while its refcount was still > 0")
	}
	c.Release(resp)
}

func TestReleaseDecrementsRefcountAllowingEviction(t *testing.T) {
	c := New(Config{Capacity: 1})
	c.Put(&Rec{Key: "/first", Bytes: []byte("a")})
	resp, _ := c.Lookup("/first")
	c.Release(resp)

	c.Put(&Rec{Key: "/second", Bytes: []byte("b")})

	if _, ok := c.Lookup("/first"); ok {
		t.Error("/first should have been evicted once its refcount dropped back to 0")
	}
	if _, ok := c.Lookup("/second"); !ok {
		t.Error("/second is missing after evicting /first")
	}
}

func TestRevalidateRefreshesMatchingMtime(t *testing.T) {
	c := New(Config{})
	mtime := time.Now().Add(-time.Hour)
	c.Put(&Rec{Key: "/a", Bytes: []byte("x"), Expires: time.Now().Add(time.Millisecond), LastModified: mtime})

	if !c.Revalidate("/a", mtime) {
		t.Fatal("Revalidate with matching mtime returned false")
	}
	time.Sleep(2 * time.Millisecond)
	if _, ok := c.Lookup("/a"); !ok {
		t.Error("entry expired despite a successful Revalidate refreshing it")
	}
}

func TestRevalidateRejectsMismatchedMtime(t *testing.T) {
	c := New(Config{})
	c.Put(&Rec{Key: "/a", Bytes: []byte("x"), LastModified: time.Now()})

	if c.Revalidate("/a", time.Now().Add(-time.Hour)) {
		t.Error("Revalidate succeeded despite a mismatched mtime")
	}
}
