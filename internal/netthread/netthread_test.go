package netthread

import (
	"io"
	"syscall"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/nxweb/nxweb/internal/accesslog"
	"github.com/nxweb/nxweb/internal/cache"
	"github.com/nxweb/nxweb/internal/handler"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	al, err := accesslog.Open("/dev/null")
	if err != nil {
		t.Fatalf("accesslog.Open: %v", err)
	}
	t.Cleanup(func() { al.Close() })

	return Config{
		MaxWorkers:    2,
		PollWaitMs:    10,
		ArenaWarmup:   1,
		ArenaChunkLen: 4096,
		Dispatcher:    &handler.Dispatcher{Registry: handler.NewRegistry(), Cache: cache.New(cache.Config{})},
		Cache:         cache.New(cache.Config{}),
		AccessLog:     al,
		Log:           log,
	}
}

func TestCountBounded(t *testing.T) {
	n := Count()
	if n < 1 || n > MaxNetThreads {
		t.Fatalf("Count() = %d, want between 1 and %d", n, MaxNetThreads)
	}
}

func TestNewBuildsPerThreadState(t *testing.T) {
	nt, err := New(0, testConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if nt.Loop() == nil {
		t.Error("Loop() returned nil")
	}
	if nt.AccessLog() == nil {
		t.Error("AccessLog() returned nil")
	}
	if got := nt.ActiveConnections(); got != 0 {
		t.Errorf("ActiveConnections() = %d, want 0 before any accept", got)
	}
}

func TestOnAcceptTracksActiveConnections(t *testing.T) {
	nt, err := New(1, testConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	defer syscall.Close(fds[1])
	if err := syscall.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}

	nt.onAccept(fds[0])
	if got := nt.ActiveConnections(); got != 1 {
		t.Fatalf("ActiveConnections() = %d, want 1 after onAccept", got)
	}

	c, ok := nt.conns[fds[0]]
	if !ok {
		t.Fatal("onAccept did not register the connection under its fd")
	}
	c.Close()
	if got := nt.ActiveConnections(); got != 0 {
		t.Errorf("ActiveConnections() = %d, want 0 after Close", got)
	}
}

func TestStatsReflectsCacheAndArenaPool(t *testing.T) {
	nt, err := New(0, testConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stats := nt.Stats()
	if stats.ThreadNum != 0 {
		t.Errorf("ThreadNum = %d, want 0", stats.ThreadNum)
	}
	if stats.ActiveConnections != 0 {
		t.Errorf("ActiveConnections = %d, want 0", stats.ActiveConnections)
	}
	if stats.CacheEntries != 0 {
		t.Errorf("CacheEntries = %d, want 0 for a fresh cache", stats.CacheEntries)
	}
	if stats.ArenaPool.Gets != 0 {
		t.Errorf("ArenaPool.Gets = %d, want 0 before any accept", stats.ArenaPool.Gets)
	}
}
